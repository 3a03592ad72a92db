package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func slidingWindowRule(limit int64, window time.Duration) Rule {
	return Rule{
		ID:             "sw-test",
		Name:           "sliding window test",
		IdentifierType: IdentifierIP,
		Algorithm:      SlidingWindow,
		Limit:          limit,
		Window:         window,
		Enabled:        true,
	}
}

func TestSlidingWindow_MonotonicQuota(t *testing.T) {
	_, client, cleanup := setupTestRedis(t)
	defer cleanup()

	strategy := NewSlidingWindowStrategy(NewRedisCounterStore(client))
	now := time.Unix(1_700_000_000, 0)
	strategy.clock = func() time.Time { return now }

	rule := slidingWindowRule(5, time.Second)
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		result, err := strategy.Check(ctx, "sw:client", rule, 1)
		require.NoError(t, err)
		assert.True(t, result.Allowed, "request %d should be allowed", i)
		assert.Equal(t, 5-i, result.Remaining)
	}

	result, err := strategy.Check(ctx, "sw:client", rule, 1)
	require.NoError(t, err)
	assert.False(t, result.Allowed, "6th request should be denied")
}

func TestSlidingWindow_NoBoundaryBurst(t *testing.T) {
	// the distinguishing property against the fixed window: no trailing
	// 1-second interval ever admits more than the limit
	_, client, cleanup := setupTestRedis(t)
	defer cleanup()

	strategy := NewSlidingWindowStrategy(NewRedisCounterStore(client))
	now := time.Unix(3_000, 0).Add(900 * time.Millisecond)
	strategy.clock = func() time.Time { return now }

	rule := slidingWindowRule(5, time.Second)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		result, err := strategy.Check(ctx, "sw:burst", rule, 1)
		require.NoError(t, err)
		assert.True(t, result.Allowed, "pre-boundary request %d", i+1)
	}

	// crossing the wall-clock second does not open fresh quota
	now = time.Unix(3_001, 0).Add(50 * time.Millisecond)
	result, err := strategy.Check(ctx, "sw:burst", rule, 1)
	require.NoError(t, err)
	assert.False(t, result.Allowed, "burst across the boundary must be denied")

	// retry hint points at the oldest entry aging out
	assert.Equal(t, time.Second, result.RetryAfter)

	// once the whole window has passed the entries expire
	now = time.Unix(3_001, 0).Add(950 * time.Millisecond)
	result, err = strategy.Check(ctx, "sw:burst", rule, 1)
	require.NoError(t, err)
	assert.True(t, result.Allowed, "request after the window drained should pass")
}

func TestSlidingWindow_PartialExpiry(t *testing.T) {
	_, client, cleanup := setupTestRedis(t)
	defer cleanup()

	strategy := NewSlidingWindowStrategy(NewRedisCounterStore(client))
	now := time.Unix(4_000, 0)
	strategy.clock = func() time.Time { return now }

	rule := slidingWindowRule(3, time.Second)
	ctx := context.Background()

	// two requests at t0, one at t0+600ms
	for i := 0; i < 2; i++ {
		result, err := strategy.Check(ctx, "sw:partial", rule, 1)
		require.NoError(t, err)
		require.True(t, result.Allowed)
	}
	now = now.Add(600 * time.Millisecond)
	result, err := strategy.Check(ctx, "sw:partial", rule, 1)
	require.NoError(t, err)
	require.True(t, result.Allowed)

	// full: t0+800ms is denied
	now = time.Unix(4_000, 0).Add(800 * time.Millisecond)
	result, err = strategy.Check(ctx, "sw:partial", rule, 1)
	require.NoError(t, err)
	assert.False(t, result.Allowed)

	// at t0+1100ms the two t0 entries have aged out
	now = time.Unix(4_001, 0).Add(100 * time.Millisecond)
	result, err = strategy.Check(ctx, "sw:partial", rule, 1)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, int64(1), result.Remaining)
}

func TestSlidingWindow_StatusPrunesButDoesNotConsume(t *testing.T) {
	_, client, cleanup := setupTestRedis(t)
	defer cleanup()

	strategy := NewSlidingWindowStrategy(NewRedisCounterStore(client))
	now := time.Unix(5_000, 0)
	strategy.clock = func() time.Time { return now }

	rule := slidingWindowRule(5, time.Second)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := strategy.Check(ctx, "sw:status", rule, 1)
		require.NoError(t, err)
	}

	for i := 0; i < 3; i++ {
		status, err := strategy.Status(ctx, "sw:status", rule)
		require.NoError(t, err)
		assert.Equal(t, int64(2), status.Remaining, "status read %d must not consume quota", i+1)
	}

	// status after expiry reports a drained window
	now = now.Add(2 * time.Second)
	status, err := strategy.Status(ctx, "sw:status", rule)
	require.NoError(t, err)
	assert.Equal(t, int64(5), status.Remaining)
}

func TestSlidingWindow_Reset(t *testing.T) {
	_, client, cleanup := setupTestRedis(t)
	defer cleanup()

	strategy := NewSlidingWindowStrategy(NewRedisCounterStore(client))
	now := time.Unix(6_000, 0)
	strategy.clock = func() time.Time { return now }

	rule := slidingWindowRule(2, time.Second)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := strategy.Check(ctx, "sw:reset", rule, 1)
		require.NoError(t, err)
	}

	result, err := strategy.Check(ctx, "sw:reset", rule, 1)
	require.NoError(t, err)
	require.False(t, result.Allowed)

	require.NoError(t, strategy.Reset(ctx, "sw:reset"))

	result, err = strategy.Check(ctx, "sw:reset", rule, 1)
	require.NoError(t, err)
	assert.True(t, result.Allowed, "reset must clear the window")
}
