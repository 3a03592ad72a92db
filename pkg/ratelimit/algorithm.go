package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Strategy is the contract every rate limiting algorithm implements.
// Check decides admission for cost units against rule. Status reports the
// same quota figures without consuming any. Reset clears the counter state
// for key (best-effort, counters also expire on their own via TTL).
type Strategy interface {
	Check(ctx context.Context, key string, rule Rule, cost int64) (CheckResult, error)
	Status(ctx context.Context, key string, rule Rule) (CheckResult, error)
	Reset(ctx context.Context, key string) error
}

// NewStrategies builds the full strategy table over one counter store.
func NewStrategies(store CounterStore) map[Algorithm]Strategy {
	return map[Algorithm]Strategy{
		FixedWindow:   NewFixedWindowStrategy(store),
		SlidingWindow: NewSlidingWindowStrategy(store),
		TokenBucket:   NewTokenBucketStrategy(store),
		LeakyBucket:   NewLeakyBucketStrategy(store),
	}
}

// storageKey builds the externally visible counter key. The
// "ratelimit:{algorithm}:{key}" layout is shared with other consumers of the
// store and must stay stable.
func storageKey(alg Algorithm, key string) string {
	return "ratelimit:" + string(alg) + ":" + key
}

// evalInts normalizes a script result into an int64 slice of length want.
// Every check script returns {allowed, remaining, retryAfterSeconds}.
func evalInts(res interface{}, want int) ([]int64, error) {
	raw, ok := res.([]interface{})
	if !ok || len(raw) != want {
		return nil, fmt.Errorf("unexpected script result %v", res)
	}

	out := make([]int64, want)
	for i, v := range raw {
		n, ok := v.(int64)
		if !ok {
			return nil, fmt.Errorf("unexpected script result element %v", v)
		}
		out[i] = n
	}
	return out, nil
}

func clampRemaining(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}

// refillRate is the steady-state throughput of a rule in units per second.
func refillRate(rule Rule) float64 {
	return float64(rule.Limit) / rule.Window.Seconds()
}

func secondsDuration(s int64) time.Duration {
	return time.Duration(s) * time.Second
}
