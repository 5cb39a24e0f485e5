package cache

import (
	"fmt"
	"sync"

	"github.com/IvanBrykalov/depot/internal/util"
	"github.com/IvanBrykalov/depot/lru"
	"github.com/IvanBrykalov/depot/store"
)

// buckets is the two-bucket partition of cached wrappers.
//
// A key lives in at most one bucket. Single-key transitions run under the
// key's stripe plus the bulk lock in read mode; bulk transitions hold the
// bulk lock exclusively. Methods with the Locked suffix expect lock(k) held.
type buckets[K comparable, V any] struct {
	valid   store.Store[K, *Wrapper[V]]
	invalid store.Store[K, *Wrapper[V]]

	stripes *util.Stripes[K]
	bulk    sync.RWMutex
}

func newBuckets[K comparable, V any](valid, invalid store.Store[K, *Wrapper[V]], stripes int) *buckets[K, V] {
	return &buckets[K, V]{
		valid:   valid,
		invalid: invalid,
		stripes: util.NewStripes[K](stripes),
	}
}

func (b *buckets[K, V]) lock(k K) (unlock func()) {
	b.bulk.RLock()
	u := b.stripes.Lock(k)
	return func() {
		u()
		b.bulk.RUnlock()
	}
}

type peeker[K comparable, V any] interface {
	Peek(k K) (V, bool)
}

// peekValid reads the valid bucket without counting it as an access.
func (b *buckets[K, V]) peekValid(k K) (*Wrapper[V], bool) {
	if p, ok := b.valid.(peeker[K, *Wrapper[V]]); ok {
		return p.Peek(k)
	}
	return b.valid.Get(k)
}

// readLocked is the reader's view of k: the valid bucket is consulted through
// Get so an LRU-backed bucket records the access.
func (b *buckets[K, V]) readLocked(k K) (w *Wrapper[V], valid bool) {
	if w, ok := b.valid.Get(k); ok {
		return w, true
	}
	w, _ = b.invalid.Get(k)
	return w, false
}

// peekLocked returns the wrapper for k from either bucket.
func (b *buckets[K, V]) peekLocked(k K) (w *Wrapper[V], valid bool) {
	if w, ok := b.peekValid(k); ok {
		return w, true
	}
	w, _ = b.invalid.Get(k)
	return w, false
}

// promoteLocked makes w the valid wrapper for k.
func (b *buckets[K, V]) promoteLocked(k K, w *Wrapper[V]) {
	b.invalid.Remove(k)
	b.valid.Put(k, w)
}

// demoteLocked makes w the invalid wrapper for k.
func (b *buckets[K, V]) demoteLocked(k K, w *Wrapper[V]) {
	w.setValid(false)
	b.valid.Remove(k)
	b.invalid.Put(k, w)
}

// invalidateLocked moves the valid wrapper for k, if any, to the invalid bucket.
func (b *buckets[K, V]) invalidateLocked(k K) (*Wrapper[V], bool) {
	w, ok := b.valid.Remove(k)
	if !ok {
		return nil, false
	}
	w.setValid(false)
	b.invalid.Put(k, w)
	return w, true
}

// removeLocked deletes k from both buckets.
func (b *buckets[K, V]) removeLocked(k K) (*Wrapper[V], bool) {
	vw, vok := b.valid.Remove(k)
	iw, iok := b.invalid.Remove(k)
	if iok {
		iw.drop()
	}
	if vok {
		vw.drop()
		return vw, true
	}
	return iw, iok
}

// evictedLocked demotes a wrapper that the valid bucket dropped on its own.
// It reports false when k was repopulated, removed or already demoted since.
func (b *buckets[K, V]) evictedLocked(k K, w *Wrapper[V]) bool {
	if w.isDropped() {
		return false
	}
	if _, ok := b.peekValid(k); ok {
		return false
	}
	if _, ok := b.invalid.Get(k); ok {
		return false
	}
	w.setValid(false)
	b.invalid.Put(k, w)
	return true
}

// invalidateIf moves every valid key accepted by f to the invalid bucket.
func (b *buckets[K, V]) invalidateIf(f Filter[K]) []K {
	b.bulk.Lock()
	defer b.bulk.Unlock()

	var moved []K
	for _, k := range store.Keys[K, *Wrapper[V]](b.valid) {
		if f != nil && !f(k) {
			continue
		}
		w, ok := b.valid.Remove(k)
		if !ok {
			continue
		}
		w.setValid(false)
		b.invalid.Put(k, w)
		moved = append(moved, k)
	}
	return moved
}

// removeIf deletes every key accepted by f from both buckets.
func (b *buckets[K, V]) removeIf(f Filter[K]) []K {
	b.bulk.Lock()
	defer b.bulk.Unlock()

	var removed []K
	for _, s := range []store.Store[K, *Wrapper[V]]{b.valid, b.invalid} {
		for _, k := range store.Keys[K, *Wrapper[V]](s) {
			if f != nil && !f(k) {
				continue
			}
			if w, ok := s.Remove(k); ok {
				w.drop()
				removed = append(removed, k)
			}
		}
	}
	return removed
}

// check verifies that no key sits in both buckets and that LRU-backed buckets
// are structurally sound.
func (b *buckets[K, V]) check() error {
	b.bulk.Lock()
	defer b.bulk.Unlock()

	var err error
	b.valid.Range(func(k K, _ *Wrapper[V]) bool {
		if _, ok := b.invalid.Get(k); ok {
			err = fmt.Errorf("cache: key %v is both valid and invalid", k)
			return false
		}
		return true
	})
	if err != nil {
		return err
	}

	for name, s := range map[string]store.Store[K, *Wrapper[V]]{"valid": b.valid, "invalid": b.invalid} {
		if c, ok := s.(*lru.Cache[K, *Wrapper[V]]); ok {
			if err := c.IntegrityCheck(); err != nil {
				return fmt.Errorf("cache: %s bucket: %w", name, err)
			}
		}
	}
	return nil
}
