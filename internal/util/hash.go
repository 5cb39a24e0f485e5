package util

import (
	"github.com/dolthub/maphash"
	"github.com/zeebo/xxh3"
)

// Hasher hashes keys of any comparable type.
// String keys take the xxh3 fast path; every other type goes through
// dolthub/maphash, which hashes the runtime representation of the key.
type Hasher[K comparable] struct {
	keyIsString bool
	generic     maphash.Hasher[K]
}

// NewHasher returns a Hasher for K.
func NewHasher[K comparable]() Hasher[K] {
	var zero K
	_, isString := any(zero).(string)
	return Hasher[K]{
		keyIsString: isString,
		generic:     maphash.NewHasher[K](),
	}
}

// Hash returns a 64-bit hash of k.
func (h Hasher[K]) Hash(k K) uint64 {
	if h.keyIsString {
		return xxh3.HashString(any(k).(string))
	}
	return h.generic.Hash(k)
}
