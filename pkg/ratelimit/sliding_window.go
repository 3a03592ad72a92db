package ratelimit

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
)

// SlidingWindowStrategy keeps a sorted set of request timestamps per key and
// bounds the count inside the trailing window. It is the most accurate of
// the four strategies (no boundary burst) at the cost of one set entry per
// admitted unit.
type SlidingWindowStrategy struct {
	store CounterStore
	clock func() time.Time
}

func NewSlidingWindowStrategy(store CounterStore) *SlidingWindowStrategy {
	return &SlidingWindowStrategy{store: store, clock: time.Now}
}

// slidingWindowScript prunes, counts and admits in one atomic step. Scores
// and the window are in milliseconds. On deny the retry hint comes from the
// oldest surviving entry: the window frees capacity when it ages out.
const slidingWindowScript = `
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])
local member = ARGV[5]

redis.call('ZREMRANGEBYSCORE', KEYS[1], 0, now - window)
local count = redis.call('ZCARD', KEYS[1])

if count + cost > limit then
	local remaining = limit - count
	if remaining < 0 then
		remaining = 0
	end
	local retry = math.ceil(window / 1000)
	local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
	if oldest[2] then
		retry = math.ceil((tonumber(oldest[2]) + window - now) / 1000)
	end
	if retry < 1 then
		retry = 1
	end
	return {0, remaining, retry}
end

for i = 1, cost do
	redis.call('ZADD', KEYS[1], now, member .. '-' .. i)
end
redis.call('PEXPIRE', KEYS[1], window)
return {1, limit - count - cost, 0}
`

func (s *SlidingWindowStrategy) Check(ctx context.Context, key string, rule Rule, cost int64) (CheckResult, error) {
	now := s.clock()

	res, err := s.store.Eval(ctx, slidingWindowScript,
		[]string{storageKey(SlidingWindow, key)},
		now.UnixMilli(), rule.Window.Milliseconds(), rule.Limit, cost, uuid.NewString())
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
		ResetAt:   now.Add(rule.Window),
	}
	if !result.Allowed {
		result.RetryAfter = secondsDuration(vals[2])
		result.ResetAt = now.Add(result.RetryAfter)
	}
	return result, nil
}

// Status prunes expired entries and counts the rest. The prune is a write in
// the strict sense but an idempotent one: it never changes what a
// concurrent Check would decide.
func (s *SlidingWindowStrategy) Status(ctx context.Context, key string, rule Rule) (CheckResult, error) {
	now := s.clock()
	setKey := storageKey(SlidingWindow, key)
	cutoff := float64(now.UnixMilli() - rule.Window.Milliseconds())

	if err := s.store.RemoveFromSortedSetByScore(ctx, setKey, 0, cutoff); err != nil {
		return CheckResult{}, err
	}
	count, err := s.store.CountSortedSetByScore(ctx, setKey, cutoff, math.Inf(1))
	if err != nil {
		return CheckResult{}, err
	}

	remaining := clampRemaining(rule.Limit - count)
	result := CheckResult{
		Allowed:   remaining > 0,
		Remaining: remaining,
		Limit:     rule.Limit,
		ResetAt:   now.Add(rule.Window),
	}
	if !result.Allowed {
		result.RetryAfter = secondsUntil(now, result.ResetAt)
	}
	return result, nil
}

func (s *SlidingWindowStrategy) Reset(ctx context.Context, key string) error {
	return s.store.Delete(ctx, storageKey(SlidingWindow, key))
}
