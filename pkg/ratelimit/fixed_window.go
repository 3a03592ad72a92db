package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"
)

// FixedWindowStrategy counts requests per fixed time window. The counter key
// carries the window index, so a fresh window starts at zero and stale
// windows expire on their own. The boundary burst (up to 2x the limit when
// traffic straddles two windows) is an inherent property of the algorithm.
type FixedWindowStrategy struct {
	store CounterStore
	clock func() time.Time
}

func NewFixedWindowStrategy(store CounterStore) *FixedWindowStrategy {
	return &FixedWindowStrategy{store: store, clock: time.Now}
}

// fixedWindowScript admits and counts in one atomic step. Denials leave the
// counter untouched.
const fixedWindowScript = `
local cost = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local count = tonumber(redis.call('GET', KEYS[1]) or '0')
if count + cost > limit then
	local remaining = limit - count
	if remaining < 0 then
		remaining = 0
	end
	return {0, remaining, 0}
end

local total = redis.call('INCRBY', KEYS[1], cost)
redis.call('EXPIRE', KEYS[1], ttl)
return {1, limit - total, 0}
`

func (s *FixedWindowStrategy) Check(ctx context.Context, key string, rule Rule, cost int64) (CheckResult, error) {
	now := s.clock()
	windowSeconds := windowSeconds(rule)
	index := now.Unix() / windowSeconds
	windowEnd := time.Unix((index+1)*windowSeconds, 0)

	res, err := s.store.Eval(ctx, fixedWindowScript,
		[]string{s.windowKey(key, index)},
		cost, rule.Limit, windowSeconds)
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
		ResetAt:   windowEnd,
	}
	if !result.Allowed {
		result.RetryAfter = secondsUntil(now, windowEnd)
	}
	return result, nil
}

func (s *FixedWindowStrategy) Status(ctx context.Context, key string, rule Rule) (CheckResult, error) {
	now := s.clock()
	windowSeconds := windowSeconds(rule)
	index := now.Unix() / windowSeconds
	windowEnd := time.Unix((index+1)*windowSeconds, 0)

	count, err := s.store.Get(ctx, s.windowKey(key, index))
	if err != nil {
		return CheckResult{}, err
	}

	remaining := clampRemaining(rule.Limit - count)
	result := CheckResult{
		Allowed:   remaining > 0,
		Remaining: remaining,
		Limit:     rule.Limit,
		ResetAt:   windowEnd,
	}
	if !result.Allowed {
		result.RetryAfter = secondsUntil(now, windowEnd)
	}
	return result, nil
}

// Reset is a no-op: window keys carry their index, are not individually
// tracked, and expire via TTL.
func (s *FixedWindowStrategy) Reset(ctx context.Context, key string) error {
	return nil
}

func (s *FixedWindowStrategy) windowKey(key string, index int64) string {
	return fmt.Sprintf("%s:%d", storageKey(FixedWindow, key), index)
}

func windowSeconds(rule Rule) int64 {
	s := int64(rule.Window / time.Second)
	if s < 1 {
		s = 1
	}
	return s
}

func secondsUntil(now, deadline time.Time) time.Duration {
	s := math.Ceil(deadline.Sub(now).Seconds())
	if s < 1 {
		s = 1
	}
	return time.Duration(s) * time.Second
}
