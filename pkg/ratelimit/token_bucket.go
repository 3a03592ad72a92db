package ratelimit

import (
	"context"
	"math"
	"time"
)

// TokenBucketStrategy grants a bucket of rule.Limit tokens that refills
// continuously at limit/window tokens per second. A full bucket absorbs an
// instantaneous burst of the whole limit, after which traffic is paced at
// the refill rate.
type TokenBucketStrategy struct {
	store CounterStore
	clock func() time.Time
}

func NewTokenBucketStrategy(store CounterStore) *TokenBucketStrategy {
	return &TokenBucketStrategy{store: store, clock: time.Now}
}

// tokenBucketScript refills from the elapsed time and consumes in one atomic
// step. KEYS[1] holds the fractional token count, KEYS[2] the last refill
// timestamp in ms. Denials persist nothing: the lazily computed refill gives
// the same answer on the next attempt.
const tokenBucketScript = `
local cost = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local rate = tonumber(ARGV[3])
local now = tonumber(ARGV[4])
local ttl = tonumber(ARGV[5])

local tokens = tonumber(redis.call('GET', KEYS[1]))
local last = tonumber(redis.call('GET', KEYS[2]))
if tokens == nil or last == nil then
	tokens = capacity
	last = now
end

local elapsed = (now - last) / 1000
if elapsed > 0 then
	tokens = math.min(capacity, tokens + elapsed * rate)
end

if tokens >= cost then
	tokens = tokens - cost
	redis.call('SET', KEYS[1], string.format('%.6f', tokens), 'EX', ttl)
	redis.call('SET', KEYS[2], now, 'EX', ttl)
	return {1, math.floor(tokens), 0}
end

local retry = math.ceil((cost - tokens) / rate)
if retry < 1 then
	retry = 1
end
return {0, math.floor(tokens), retry}
`

func (s *TokenBucketStrategy) Check(ctx context.Context, key string, rule Rule, cost int64) (CheckResult, error) {
	now := s.clock()
	rate := refillRate(rule)
	tokensKey, refillKey := s.keys(key)

	res, err := s.store.Eval(ctx, tokenBucketScript,
		[]string{tokensKey, refillKey},
		cost, rule.Limit, rate, now.UnixMilli(), int64(windowSeconds(rule)))
	if err != nil {
		return CheckResult{}, err
	}

	vals, err := evalInts(res, 3)
	if err != nil {
		return CheckResult{}, err
	}

	result := CheckResult{
		Allowed:   vals[0] == 1,
		Remaining: clampRemaining(vals[1]),
		Limit:     rule.Limit,
		ResetAt:   fullBucketAt(now, rule.Limit-vals[1], rate),
	}
	if !result.Allowed {
		result.RetryAfter = secondsDuration(vals[2])
	}
	return result, nil
}

func (s *TokenBucketStrategy) Status(ctx context.Context, key string, rule Rule) (CheckResult, error) {
	now := s.clock()
	rate := refillRate(rule)
	tokensKey, refillKey := s.keys(key)

	tokens, err := s.store.GetFloat(ctx, tokensKey)
	if err != nil {
		return CheckResult{}, err
	}
	lastMs, err := s.store.Get(ctx, refillKey)
	if err != nil {
		return CheckResult{}, err
	}

	if lastMs == 0 {
		// untouched bucket: full
		return CheckResult{Allowed: true, Remaining: rule.Limit, Limit: rule.Limit, ResetAt: now}, nil
	}

	elapsed := float64(now.UnixMilli()-lastMs) / 1000
	if elapsed > 0 {
		tokens = math.Min(float64(rule.Limit), tokens+elapsed*rate)
	}

	remaining := int64(tokens)
	result := CheckResult{
		Allowed:   tokens >= 1,
		Remaining: remaining,
		Limit:     rule.Limit,
		ResetAt:   fullBucketAt(now, rule.Limit-remaining, rate),
	}
	if !result.Allowed {
		result.RetryAfter = time.Duration(math.Ceil((1-tokens)/rate)) * time.Second
	}
	return result, nil
}

func (s *TokenBucketStrategy) Reset(ctx context.Context, key string) error {
	tokensKey, refillKey := s.keys(key)
	return s.store.Delete(ctx, tokensKey, refillKey)
}

func (s *TokenBucketStrategy) keys(key string) (string, string) {
	base := storageKey(TokenBucket, key)
	return base, base + ":refill"
}

// fullBucketAt estimates when the bucket is back at capacity given the
// current deficit.
func fullBucketAt(now time.Time, deficit int64, rate float64) time.Time {
	if deficit <= 0 {
		return now
	}
	return now.Add(time.Duration(math.Ceil(float64(deficit)/rate)) * time.Second)
}
