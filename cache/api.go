package cache

import (
	"context"
	"time"
)

// Cache is the read/write surface of a Depot.
// All methods are safe for concurrent use by multiple goroutines.
type Cache[K comparable, V any] interface {
	// Get returns the value for k. A missing or stale key is populated by the
	// default factory; the caller waits up to the default timeout and then
	// gets the stale value, if any.
	Get(ctx context.Context, k K) (V, bool)

	// GetTimeout is Get with an explicit timeout (Forever, NoWait or a bound).
	GetTimeout(ctx context.Context, k K, timeout time.Duration) (V, bool)

	// GetWith is GetTimeout populating with f instead of the default factory.
	GetWith(ctx context.Context, f Factory[K, V], k K, timeout time.Duration) (V, bool)

	// Put stores v under k bypassing the factory.
	Put(k K, v V)

	// Invalidate marks k stale; the next read repopulates it.
	Invalidate(k K) bool

	// Remove deletes k and returns the removed value.
	Remove(k K) (V, bool)

	// Len returns the number of valid entries.
	Len() int

	// Close stops background work.
	Close() error
}
