package store

import "github.com/dolthub/swiss"

// Map is a non-concurrent Store backed by a SwissTable.
type Map[K comparable, V any] struct {
	m *swiss.Map[K, V]
}

var _ Store[string, int] = (*Map[string, int])(nil)

// NewMap creates a Map sized for about capacity entries.
func NewMap[K comparable, V any](capacity int) *Map[K, V] {
	if capacity < 8 {
		capacity = 8
	}
	return &Map[K, V]{m: swiss.NewMap[K, V](uint32(capacity))}
}

func (s *Map[K, V]) Get(k K) (V, bool) { return s.m.Get(k) }

func (s *Map[K, V]) Put(k K, v V) (V, bool) {
	old, ok := s.m.Get(k)
	s.m.Put(k, v)
	return old, ok
}

func (s *Map[K, V]) Remove(k K) (V, bool) {
	old, ok := s.m.Get(k)
	if ok {
		s.m.Delete(k)
	}
	return old, ok
}

func (s *Map[K, V]) Len() int { return s.m.Count() }

func (s *Map[K, V]) Clear() { s.m.Clear() }

// Range must not mutate the map from fn.
func (s *Map[K, V]) Range(fn func(k K, v V) bool) {
	s.m.Iter(func(k K, v V) (stop bool) {
		return !fn(k, v)
	})
}
