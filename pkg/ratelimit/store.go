package ratelimit

import (
	"context"
	"time"
)

// CounterStore is the shared, atomic key-value backend all strategies
// coordinate through. It is the only cross-process state in the system, so
// every operation must be safe under arbitrary concurrent callers. Compound
// read-modify-write sequences go through Eval so the store applies them
// atomically server-side.
type CounterStore interface {
	// Increment atomically adds n to the integer at key and refreshes its
	// TTL in the same round trip, returning the new value.
	Increment(ctx context.Context, key string, n int64, ttl time.Duration) (int64, error)

	// Get returns the integer at key, or 0 when the key is absent.
	Get(ctx context.Context, key string) (int64, error)

	// GetFloat returns the float at key, or 0 when the key is absent.
	// Bucket strategies store fractional token and fill levels.
	GetFloat(ctx context.Context, key string) (float64, error)

	Set(ctx context.Context, key string, value int64, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error

	// TTL reports the remaining lifetime of key, 0 when the key is absent
	// or carries no expiry.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// AddToSortedSet inserts member with the given score and refreshes the
	// set's TTL, reporting whether the member was newly added.
	AddToSortedSet(ctx context.Context, key string, score float64, member string, ttl time.Duration) (bool, error)
	RemoveFromSortedSetByScore(ctx context.Context, key string, min, max float64) error
	CountSortedSetByScore(ctx context.Context, key string, min, max float64) (int64, error)

	// Eval runs a server-side script against keys with args and returns the
	// raw script result.
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error)
}
