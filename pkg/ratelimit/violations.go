package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ViolationSink receives denied-request records. Sink failures must never
// fail the check that produced the violation.
type ViolationSink interface {
	Record(ctx context.Context, v Violation) error
}

// ViolationLog decouples the hot check path from the audit sink: Publish is
// a non-blocking channel send and a single worker goroutine drains it. A
// slow sink drops records rather than adding latency to checks.
type ViolationLog struct {
	sink    ViolationSink
	logger  zerolog.Logger
	metrics *Metrics

	ch   chan Violation
	once sync.Once
	done chan struct{}
}

func NewViolationLog(sink ViolationSink, logger zerolog.Logger, metrics *Metrics) *ViolationLog {
	l := &ViolationLog{
		sink:    sink,
		logger:  logger,
		metrics: metrics,
		ch:      make(chan Violation, 256),
		done:    make(chan struct{}),
	}
	go l.run()
	return l
}

// Publish hands a violation to the worker without blocking the caller.
func (l *ViolationLog) Publish(v Violation) {
	select {
	case l.ch <- v:
	default:
		l.metrics.violationDropped()
		l.logger.Debug().Str("rule", v.RuleName).Msg("violation log full, record dropped")
	}
}

// Close stops the worker after draining buffered records.
func (l *ViolationLog) Close() {
	l.once.Do(func() {
		close(l.ch)
		<-l.done
	})
}

func (l *ViolationLog) run() {
	defer close(l.done)

	for v := range l.ch {
		l.logger.Warn().
			Str("identifier", v.Identifier).
			Str("identifier_type", string(v.IdentifierType)).
			Str("endpoint", v.Endpoint).
			Str("rule_id", v.RuleID).
			Str("rule", v.RuleName).
			Int64("limit", v.AllowedLimit).
			Int64("attempted", v.AttemptedRequests).
			Time("violated_at", v.ViolatedAt).
			Msg("rate limit violation")

		if l.sink == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := l.sink.Record(ctx, v); err != nil {
			l.logger.Error().Err(err).Msg("violation sink write failed")
		}
		cancel()
	}
}

const (
	recentViolationsKey = "ratelimit:violations:recent"
	recentViolationsCap = 200
	recentViolationsTTL = time.Hour
)

// RedisViolationSink keeps a capped, short-TTL list of recent violations for
// the admin surface. Durable audit is the structured log; this is a window
// into the last hour.
type RedisViolationSink struct {
	client *redis.Client
}

func NewRedisViolationSink(client *redis.Client) *RedisViolationSink {
	return &RedisViolationSink{client: client}
}

func (s *RedisViolationSink) Record(ctx context.Context, v Violation) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal violation: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, recentViolationsKey, data)
	pipe.LTrim(ctx, recentViolationsKey, 0, recentViolationsCap-1)
	pipe.Expire(ctx, recentViolationsKey, recentViolationsTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record violation: %w", err)
	}
	return nil
}

// Recent returns up to n of the most recent violations, newest first.
func (s *RedisViolationSink) Recent(ctx context.Context, n int64) ([]Violation, error) {
	if n <= 0 {
		n = recentViolationsCap
	}

	raw, err := s.client.LRange(ctx, recentViolationsKey, 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("list violations: %w", err)
	}

	violations := make([]Violation, 0, len(raw))
	for _, item := range raw {
		var v Violation
		if err := json.Unmarshal([]byte(item), &v); err != nil {
			continue
		}
		violations = append(violations, v)
	}
	return violations, nil
}
