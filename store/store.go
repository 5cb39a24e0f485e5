// Package store defines the key/value contract shared by the LRU and the
// Depot buckets, together with a few backing implementations.
package store

// Store is a key/value map.
//
// Implementations differ in their concurrency guarantees: Map is not safe for
// concurrent use and must be wrapped with NewSynchronized when shared;
// Synchronized, Concurrent, Soft and lru.Cache are.
type Store[K comparable, V any] interface {
	// Get returns the value stored under k.
	Get(k K) (V, bool)

	// Put stores v under k and returns the value it replaced, if any.
	Put(k K, v V) (old V, replaced bool)

	// Remove deletes k and returns the removed value, if any.
	Remove(k K) (V, bool)

	// Len returns the number of stored entries.
	Len() int

	// Clear removes every entry.
	Clear()

	// Range calls fn for every entry until fn returns false.
	// Concurrent implementations iterate a best-effort snapshot.
	Range(fn func(k K, v V) bool)
}

// Contains reports whether s holds k.
func Contains[K comparable, V any](s Store[K, V], k K) bool {
	_, ok := s.Get(k)
	return ok
}

// Keys returns the keys of s in iteration order.
func Keys[K comparable, V any](s Store[K, V]) []K {
	keys := make([]K, 0, s.Len())
	s.Range(func(k K, _ V) bool {
		keys = append(keys, k)
		return true
	})
	return keys
}
