package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RateLimiter is the single entry point callers use. It consults the
// whitelist and blacklist, resolves the applicable rules, dispatches each to
// its strategy and combines the results under most-restrictive-wins.
//
// Infrastructure faults during Check fail open: the request is admitted and
// the error logged, never surfaced to the caller. Only context cancellation
// propagates as an error.
type RateLimiter struct {
	store      CounterStore
	rules      *RuleService
	strategies map[Algorithm]Strategy
	violations *ViolationLog
	metrics    *Metrics
	logger     zerolog.Logger
	clock      func() time.Time
}

func NewRateLimiter(store CounterStore, rules *RuleService, violations *ViolationLog, metrics *Metrics, logger zerolog.Logger) *RateLimiter {
	return &RateLimiter{
		store:      store,
		rules:      rules,
		strategies: NewStrategies(store),
		violations: violations,
		metrics:    metrics,
		logger:     logger,
		clock:      time.Now,
	}
}

// Check decides admission for one request. The returned error is non-nil
// only when ctx was cancelled.
func (l *RateLimiter) Check(ctx context.Context, req CheckRequest) (CheckResult, error) {
	start := l.clock()
	defer l.metrics.observeCheck(start)

	cost := req.Cost
	if cost <= 0 {
		cost = 1
	}

	if l.rules.IsWhitelisted(req.Identifier, req.IdentifierType) {
		// whitelisted callers never touch counter state
		return l.unrestricted(), nil
	}

	if l.rules.IsBlacklisted(req.Identifier, req.IdentifierType) {
		l.recordViolation(req, Rule{Name: BlacklistRuleName}, cost)
		l.metrics.decision(BlacklistRuleName, "", false)
		return CheckResult{
			Allowed:    false,
			Remaining:  0,
			Limit:      0,
			ResetAt:    start.Add(blacklistRetryAfter),
			RetryAfter: blacklistRetryAfter,
		}, nil
	}

	applicable := l.rules.ApplicableRules(req.IdentifierType, req.Endpoint)
	if len(applicable) == 0 {
		return l.unrestricted(), nil
	}

	var best *CheckResult
	for _, rule := range applicable {
		strategy, ok := l.strategies[rule.Algorithm]
		if !ok {
			// guarded at registration time, but never let a bad table
			// entry take the service down
			l.logger.Error().Str("rule", rule.ID).Str("algorithm", string(rule.Algorithm)).
				Msg("no strategy for algorithm, skipping rule")
			continue
		}

		result, err := strategy.Check(ctx, compositeKey(rule, req.Identifier, req.Endpoint), rule, cost)
		if err != nil {
			if isCancellation(ctx, err) {
				return CheckResult{}, ctx.Err()
			}
			// fail open: the protected resource's availability beats
			// strict enforcement when the store is down
			l.metrics.failOpen()
			l.logger.Warn().Err(err).Str("rule", rule.ID).
				Msg("counter store unavailable, admitting request")
			return l.unrestricted(), nil
		}

		l.metrics.decision(rule.ID, rule.Algorithm, result.Allowed)

		if !result.Allowed {
			// first deny wins; later rules are not evaluated so their
			// counters see no wasted writes
			l.recordViolation(req, rule, cost)
			return result, nil
		}

		if best == nil || result.Remaining < best.Remaining {
			r := result
			best = &r
		}
	}

	if best == nil {
		return l.unrestricted(), nil
	}
	return *best, nil
}

// Status reports the current quota without consuming any. The result is the
// most restrictive across applicable rules, mirroring Check.
func (l *RateLimiter) Status(ctx context.Context, identifier string, idType IdentifierType, endpoint string) (CheckResult, error) {
	if l.rules.IsWhitelisted(identifier, idType) {
		return l.unrestricted(), nil
	}
	if l.rules.IsBlacklisted(identifier, idType) {
		return CheckResult{
			Allowed:    false,
			ResetAt:    l.clock().Add(blacklistRetryAfter),
			RetryAfter: blacklistRetryAfter,
		}, nil
	}

	applicable := l.rules.ApplicableRules(idType, endpoint)
	if len(applicable) == 0 {
		return l.unrestricted(), nil
	}

	var best *CheckResult
	for _, rule := range applicable {
		strategy, ok := l.strategies[rule.Algorithm]
		if !ok {
			continue
		}

		result, err := strategy.Status(ctx, compositeKey(rule, identifier, endpoint), rule)
		if err != nil {
			return CheckResult{}, err
		}
		if best == nil || result.Remaining < best.Remaining {
			r := result
			best = &r
		}
	}

	if best == nil {
		return l.unrestricted(), nil
	}
	return *best, nil
}

// Reset clears counter state for an identifier across all rules that could
// apply to it. Best-effort: endpoint-scoped counters keyed under specific
// endpoints are left to expire via TTL, as is fixed-window history.
func (l *RateLimiter) Reset(ctx context.Context, identifier string, idType IdentifierType) error {
	var firstErr error
	for _, rule := range l.rules.RulesForIdentifier(idType) {
		strategy, ok := l.strategies[rule.Algorithm]
		if !ok {
			continue
		}
		if err := strategy.Reset(ctx, compositeKey(rule, identifier, "")); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (l *RateLimiter) unrestricted() CheckResult {
	return CheckResult{
		Allowed:   true,
		Remaining: Unlimited,
		Limit:     Unlimited,
		ResetAt:   l.clock(),
	}
}

func (l *RateLimiter) recordViolation(req CheckRequest, rule Rule, cost int64) {
	if l.violations == nil {
		return
	}
	l.violations.Publish(Violation{
		ID:                uuid.NewString(),
		Identifier:        req.Identifier,
		IdentifierType:    req.IdentifierType,
		Endpoint:          req.Endpoint,
		RuleID:            rule.ID,
		RuleName:          rule.Name,
		AllowedLimit:      rule.Limit,
		AttemptedRequests: rule.Limit + cost,
		ViolatedAt:        l.clock(),
	})
}

// compositeKey scopes counters per (rule, caller) and, when the rule is
// endpoint-scoped, per endpoint.
func compositeKey(rule Rule, identifier, endpoint string) string {
	key := rule.ID + ":" + identifier
	if rule.EndpointPattern != "" && rule.EndpointPattern != "*" && endpoint != "" {
		key += ":" + endpoint
	}
	return key
}

func isCancellation(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
