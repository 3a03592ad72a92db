package ratelimit

import (
	"context"
	"math"
	"time"
)

// LeakyBucketStrategy is the inverse of the token bucket: requests pour into
// a bucket of capacity rule.Limit and the fill level drains at limit/window
// units per second. A burst can never push the in-flight level past the
// capacity, so traffic is smoothed rather than allowed to spike.
type LeakyBucketStrategy struct {
	store CounterStore
	clock func() time.Time
}

func NewLeakyBucketStrategy(store CounterStore) *LeakyBucketStrategy {
	return &LeakyBucketStrategy{store: store, clock: time.Now}
}

// leakyBucketScript drains from the elapsed time and fills in one atomic
// step. KEYS[1] holds the fractional fill level, KEYS[2] the last leak
// timestamp in ms.
const leakyBucketScript = `
local cost = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local rate = tonumber(ARGV[3])
local now = tonumber(ARGV[4])
local ttl = tonumber(ARGV[5])

local level = tonumber(redis.call('GET', KEYS[1]))
local last = tonumber(redis.call('GET', KEYS[2]))
if level == nil or last == nil then
	level = 0
	last = now
end

local elapsed = (now - last) / 1000
if elapsed > 0 then
	level = math.max(0, level - elapsed * rate)
end

if level + cost <= capacity then
	level = level + cost
	redis.call('SET', KEYS[1], string.format('%.6f', level), 'EX', ttl)
	redis.call('SET', KEYS[2], now, 'EX', ttl)
	return {1, math.floor(capacity - level), 0}
end

local retry = math.ceil((level + cost - capacity) / rate)
if retry < 1 then
	retry = 1
end
return {0, math.floor(capacity - level), retry}
`

func (s *LeakyBucketStrategy) Check(ctx context.Context, key string, rule Rule, cost int64) (CheckResult, error) {
	now := s.clock()
	rate := refillRate(rule)
	levelKey, leakKey := s.keys(key)

	res, err := s.store.Eval(ctx, leakyBucketScript,
		[]string{levelKey, leakKey},
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
		ResetAt:   emptyBucketAt(now, rule.Limit-vals[1], rate),
	}
	if !result.Allowed {
		result.RetryAfter = secondsDuration(vals[2])
	}
	return result, nil
}

func (s *LeakyBucketStrategy) Status(ctx context.Context, key string, rule Rule) (CheckResult, error) {
	now := s.clock()
	rate := refillRate(rule)
	levelKey, leakKey := s.keys(key)

	level, err := s.store.GetFloat(ctx, levelKey)
	if err != nil {
		return CheckResult{}, err
	}
	lastMs, err := s.store.Get(ctx, leakKey)
	if err != nil {
		return CheckResult{}, err
	}

	if lastMs == 0 {
		// untouched bucket: empty
		return CheckResult{Allowed: true, Remaining: rule.Limit, Limit: rule.Limit, ResetAt: now}, nil
	}

	elapsed := float64(now.UnixMilli()-lastMs) / 1000
	if elapsed > 0 {
		level = math.Max(0, level-elapsed*rate)
	}

	remaining := clampRemaining(rule.Limit - int64(math.Floor(level)))
	result := CheckResult{
		Allowed:   level+1 <= float64(rule.Limit),
		Remaining: remaining,
		Limit:     rule.Limit,
		ResetAt:   emptyBucketAt(now, int64(math.Ceil(level)), rate),
	}
	if !result.Allowed {
		result.RetryAfter = time.Duration(math.Ceil((level+1-float64(rule.Limit))/rate)) * time.Second
	}
	return result, nil
}

func (s *LeakyBucketStrategy) Reset(ctx context.Context, key string) error {
	levelKey, leakKey := s.keys(key)
	return s.store.Delete(ctx, levelKey, leakKey)
}

func (s *LeakyBucketStrategy) keys(key string) (string, string) {
	base := storageKey(LeakyBucket, key)
	return base, base + ":leak"
}

// emptyBucketAt estimates when the current fill level has fully drained.
func emptyBucketAt(now time.Time, level int64, rate float64) time.Time {
	if level <= 0 {
		return now
	}
	return now.Add(time.Duration(math.Ceil(float64(level)/rate)) * time.Second)
}
