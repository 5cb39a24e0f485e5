package store

import "sync"

// Synchronized decorates a Store with a read/write mutex.
type Synchronized[K comparable, V any] struct {
	mu sync.RWMutex
	s  Store[K, V]
}

var _ Store[string, int] = (*Synchronized[string, int])(nil)

// NewSynchronized wraps s. The caller must not use s directly afterwards.
func NewSynchronized[K comparable, V any](s Store[K, V]) *Synchronized[K, V] {
	return &Synchronized[K, V]{s: s}
}

func (s *Synchronized[K, V]) Get(k K) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.s.Get(k)
}

func (s *Synchronized[K, V]) Put(k K, v V) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.s.Put(k, v)
}

func (s *Synchronized[K, V]) Remove(k K) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.s.Remove(k)
}

func (s *Synchronized[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.s.Len()
}

func (s *Synchronized[K, V]) Clear() {
	s.mu.Lock()
	s.s.Clear()
	s.mu.Unlock()
}

// Range iterates a snapshot taken under the read lock, so fn may call back
// into the store.
func (s *Synchronized[K, V]) Range(fn func(k K, v V) bool) {
	type kv struct {
		k K
		v V
	}

	s.mu.RLock()
	snapshot := make([]kv, 0, s.s.Len())
	s.s.Range(func(k K, v V) bool {
		snapshot = append(snapshot, kv{k, v})
		return true
	})
	s.mu.RUnlock()

	for _, e := range snapshot {
		if !fn(e.k, e.v) {
			return
		}
	}
}
