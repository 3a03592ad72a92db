package ratelimit

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	require.NoError(t, client.Ping(context.Background()).Err())

	cleanup := func() {
		client.Close()
		mr.Close()
	}
	return mr, client, cleanup
}

func TestRedisCounterStore_Increment(t *testing.T) {
	_, client, cleanup := setupTestRedis(t)
	defer cleanup()

	store := NewRedisCounterStore(client)
	ctx := context.Background()

	val, err := store.Increment(ctx, "counter", 1, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), val)

	val, err = store.Increment(ctx, "counter", 3, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(4), val)

	ttl, err := store.TTL(ctx, "counter")
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0), "increment must set a TTL")
}

func TestRedisCounterStore_GetMissingKey(t *testing.T) {
	_, client, cleanup := setupTestRedis(t)
	defer cleanup()

	store := NewRedisCounterStore(client)
	ctx := context.Background()

	val, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, int64(0), val)

	f, err := store.GetFloat(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, float64(0), f)

	ttl, err := store.TTL(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), ttl)
}

func TestRedisCounterStore_SetGetDelete(t *testing.T) {
	_, client, cleanup := setupTestRedis(t)
	defer cleanup()

	store := NewRedisCounterStore(client)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "key", 42, time.Minute))

	val, err := store.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, int64(42), val)

	require.NoError(t, store.Delete(ctx, "key"))

	val, err = store.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, int64(0), val)
}

func TestRedisCounterStore_SortedSet(t *testing.T) {
	_, client, cleanup := setupTestRedis(t)
	defer cleanup()

	store := NewRedisCounterStore(client)
	ctx := context.Background()

	added, err := store.AddToSortedSet(ctx, "set", 100, "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = store.AddToSortedSet(ctx, "set", 200, "b", time.Minute)
	require.NoError(t, err)
	assert.True(t, added)

	// re-adding an existing member is not a new entry
	added, err = store.AddToSortedSet(ctx, "set", 300, "a", time.Minute)
	require.NoError(t, err)
	assert.False(t, added)

	count, err := store.CountSortedSetByScore(ctx, "set", 150, math.Inf(1))
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	require.NoError(t, store.RemoveFromSortedSetByScore(ctx, "set", 0, 250))

	count, err = store.CountSortedSetByScore(ctx, "set", 0, math.Inf(1))
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRedisCounterStore_Eval(t *testing.T) {
	_, client, cleanup := setupTestRedis(t)
	defer cleanup()

	store := NewRedisCounterStore(client)
	ctx := context.Background()

	res, err := store.Eval(ctx, `return {tonumber(ARGV[1]) + 1, 2, 3}`, []string{"unused"}, 41)
	require.NoError(t, err)

	vals, err := evalInts(res, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{42, 2, 3}, vals)
}
