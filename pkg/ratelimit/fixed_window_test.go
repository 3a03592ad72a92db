package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedWindowRule(limit int64, window time.Duration) Rule {
	return Rule{
		ID:             "fw-test",
		Name:           "fixed window test",
		IdentifierType: IdentifierIP,
		Algorithm:      FixedWindow,
		Limit:          limit,
		Window:         window,
		Enabled:        true,
	}
}

func TestFixedWindow_MonotonicQuota(t *testing.T) {
	_, client, cleanup := setupTestRedis(t)
	defer cleanup()

	strategy := NewFixedWindowStrategy(NewRedisCounterStore(client))
	now := time.Unix(1_700_000_000, 0)
	strategy.clock = func() time.Time { return now }

	rule := fixedWindowRule(5, time.Minute)
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		result, err := strategy.Check(ctx, "fw:client", rule, 1)
		require.NoError(t, err)
		assert.True(t, result.Allowed, "request %d should be allowed", i)
		assert.Equal(t, 5-i, result.Remaining, "remaining after request %d", i)
		assert.Equal(t, time.Duration(0), result.RetryAfter)
	}

	result, err := strategy.Check(ctx, "fw:client", rule, 1)
	require.NoError(t, err)
	assert.False(t, result.Allowed, "6th request should be denied")
	assert.Equal(t, int64(0), result.Remaining)
	assert.Greater(t, result.RetryAfter, time.Duration(0))
}

func TestFixedWindow_BoundaryBurst(t *testing.T) {
	// up to 2x the limit can pass when traffic straddles a window
	// boundary; this is an inherent property of the algorithm
	_, client, cleanup := setupTestRedis(t)
	defer cleanup()

	strategy := NewFixedWindowStrategy(NewRedisCounterStore(client))
	now := time.Unix(2_000, 0).Add(900 * time.Millisecond)
	strategy.clock = func() time.Time { return now }

	rule := fixedWindowRule(5, time.Second)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		result, err := strategy.Check(ctx, "fw:burst", rule, 1)
		require.NoError(t, err)
		assert.True(t, result.Allowed, "pre-boundary request %d", i+1)
	}

	// just past the boundary a fresh window opens
	now = time.Unix(2_001, 0).Add(50 * time.Millisecond)
	for i := 0; i < 5; i++ {
		result, err := strategy.Check(ctx, "fw:burst", rule, 1)
		require.NoError(t, err)
		assert.True(t, result.Allowed, "post-boundary request %d", i+1)
	}

	result, err := strategy.Check(ctx, "fw:burst", rule, 1)
	require.NoError(t, err)
	assert.False(t, result.Allowed, "6th request inside one window should be denied")
}

func TestFixedWindow_WeightedCost(t *testing.T) {
	_, client, cleanup := setupTestRedis(t)
	defer cleanup()

	strategy := NewFixedWindowStrategy(NewRedisCounterStore(client))
	now := time.Unix(1_700_000_000, 0)
	strategy.clock = func() time.Time { return now }

	rule := fixedWindowRule(10, time.Minute)
	ctx := context.Background()

	result, err := strategy.Check(ctx, "fw:cost", rule, 7)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, int64(3), result.Remaining)

	// a cost that does not fit is denied without consuming quota
	result, err = strategy.Check(ctx, "fw:cost", rule, 4)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, int64(3), result.Remaining)

	result, err = strategy.Check(ctx, "fw:cost", rule, 3)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, int64(0), result.Remaining)
}

func TestFixedWindow_StatusIsReadOnly(t *testing.T) {
	_, client, cleanup := setupTestRedis(t)
	defer cleanup()

	strategy := NewFixedWindowStrategy(NewRedisCounterStore(client))
	now := time.Unix(1_700_000_000, 0)
	strategy.clock = func() time.Time { return now }

	rule := fixedWindowRule(5, time.Minute)
	ctx := context.Background()

	_, err := strategy.Check(ctx, "fw:status", rule, 2)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		status, err := strategy.Status(ctx, "fw:status", rule)
		require.NoError(t, err)
		assert.True(t, status.Allowed)
		assert.Equal(t, int64(3), status.Remaining, "status read %d must not change remaining", i+1)
	}
}

func TestFixedWindow_ResetAtIsWindowEnd(t *testing.T) {
	_, client, cleanup := setupTestRedis(t)
	defer cleanup()

	strategy := NewFixedWindowStrategy(NewRedisCounterStore(client))
	now := time.Unix(90, 0) // mid-window for a 60s window
	strategy.clock = func() time.Time { return now }

	rule := fixedWindowRule(5, time.Minute)

	result, err := strategy.Check(context.Background(), "fw:reset", rule, 1)
	require.NoError(t, err)
	assert.Equal(t, time.Unix(120, 0), result.ResetAt,
		fmt.Sprintf("window containing t=90 ends at t=120, got %v", result.ResetAt))
}
