package cache

import (
	"context"
	"time"
)

// Factory creates the value for a key.
//
// Returning ErrAbort (or an error wrapping it) leaves the cache untouched.
// Any other error is recorded on the entry and the previous value, if any,
// stays servable as stale.
type Factory[K comparable, V any] interface {
	Create(ctx context.Context, k K) (V, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc[K comparable, V any] func(ctx context.Context, k K) (V, error)

// Create calls f(ctx, k).
func (f FactoryFunc[K, V]) Create(ctx context.Context, k K) (V, error) {
	return f(ctx, k)
}

// PerishablesFactory is a Factory whose values are valid for a bounded time.
// A non-positive ValidDuration makes every created value stale on arrival.
type PerishablesFactory[K comparable, V any] interface {
	Factory[K, V]
	ValidDuration() time.Duration
}

// WithTTL wraps f so that created values expire after ttl.
func WithTTL[K comparable, V any](f Factory[K, V], ttl time.Duration) PerishablesFactory[K, V] {
	return ttlFactory[K, V]{Factory: f, ttl: ttl}
}

type ttlFactory[K comparable, V any] struct {
	Factory[K, V]
	ttl time.Duration
}

func (f ttlFactory[K, V]) ValidDuration() time.Duration { return f.ttl }

// Perishable is implemented by cached values that know when they went stale.
// IsValid is consulted on every hit.
type Perishable interface {
	IsValid() bool
}

// Filter selects keys for bulk invalidation and removal.
type Filter[K comparable] func(k K) bool

// InvalidationListener is notified, on the invalidating goroutine, when a key
// moves from valid to invalid.
type InvalidationListener[K comparable] interface {
	Invalidated(k K)
}

// InvalidationListenerFunc adapts a function to InvalidationListener.
type InvalidationListenerFunc[K comparable] func(k K)

// Invalidated calls f(k).
func (f InvalidationListenerFunc[K]) Invalidated(k K) { f(k) }
