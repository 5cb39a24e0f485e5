package util

import "runtime"

// ReasonableStripeCount picks a practical default stripe count based on CPU
// parallelism. Heuristic: nextPow2(4*GOMAXPROCS), clamped to [16..1024].
func ReasonableStripeCount() int {
	p := runtime.GOMAXPROCS(0)
	if p < 1 {
		p = 1
	}
	n := int(NextPow2(uint64(p * 4)))
	if n < 16 {
		n = 16
	}
	if n > 1024 {
		n = 1024
	}
	return n
}

// StripeIndex maps a 64-bit hash to a stripe index.
// Assumes stripe count is a power of two for the fast mask path,
// but remains correct for arbitrary counts (uses modulo).
func StripeIndex(hash uint64, stripes int) int {
	if stripes <= 1 {
		return 0
	}
	if IsPowerOfTwo(uint64(stripes)) {
		return int(hash & uint64(stripes-1))
	}
	return int(hash % uint64(stripes))
}

// Stripes is a fixed set of mutexes selected by key hash.
// Two keys may share a stripe; a key always maps to the same one.
type Stripes[K comparable] struct {
	locks  []PaddedMutex
	hasher Hasher[K]
}

// NewStripes allocates n stripes, rounded up to a power of two.
// n <= 0 picks ReasonableStripeCount.
func NewStripes[K comparable](n int) *Stripes[K] {
	if n <= 0 {
		n = ReasonableStripeCount()
	}
	n = int(NextPow2(uint64(n)))
	return &Stripes[K]{
		locks:  make([]PaddedMutex, n),
		hasher: NewHasher[K](),
	}
}

// Lock acquires the stripe guarding k and returns its unlock function.
func (s *Stripes[K]) Lock(k K) (unlock func()) {
	m := &s.locks[StripeIndex(s.hasher.Hash(k), len(s.locks))]
	m.Lock()
	return m.Unlock
}

// Len returns the number of stripes.
func (s *Stripes[K]) Len() int { return len(s.locks) }
