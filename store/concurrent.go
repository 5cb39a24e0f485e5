package store

import "github.com/puzpuzpuz/xsync/v3"

// Concurrent is a lock-free-read Store backed by xsync.MapOf.
type Concurrent[K comparable, V any] struct {
	m *xsync.MapOf[K, V]
}

var _ Store[string, int] = (*Concurrent[string, int])(nil)

// NewConcurrent creates an empty Concurrent store.
func NewConcurrent[K comparable, V any]() *Concurrent[K, V] {
	return &Concurrent[K, V]{m: xsync.NewMapOf[K, V]()}
}

func (s *Concurrent[K, V]) Get(k K) (V, bool) { return s.m.Load(k) }

func (s *Concurrent[K, V]) Put(k K, v V) (V, bool) { return s.m.LoadAndStore(k, v) }

func (s *Concurrent[K, V]) Remove(k K) (V, bool) { return s.m.LoadAndDelete(k) }

func (s *Concurrent[K, V]) Len() int { return s.m.Size() }

func (s *Concurrent[K, V]) Clear() { s.m.Clear() }

// Range does not block writers; entries changed during the walk may or may
// not be observed.
func (s *Concurrent[K, V]) Range(fn func(k K, v V) bool) { s.m.Range(fn) }
