package cache

import (
	"reflect"
	"sync"
	"time"
)

// Wrapper is the cache cell behind a key: the value plus its bookkeeping.
//
// A Depot keeps one Wrapper per live key and moves the same Wrapper between
// the valid and invalid buckets, so a caller holding it observes validity
// changes without another lookup. All accessors are safe for concurrent use.
type Wrapper[V any] struct {
	mu sync.RWMutex

	value V
	set   bool
	valid bool

	// dropped marks a wrapper removed from the Depot; it must not be put back.
	dropped bool

	arrived  time.Time
	accessed time.Time
	updated  time.Time
	expires  time.Time

	version uint64
	hits    uint64
	err     error
	elapsed time.Duration
}

func newWrapper[V any](now time.Time) *Wrapper[V] {
	return &Wrapper[V]{
		arrived:  now,
		accessed: now,
		elapsed:  -1,
	}
}

// Value returns the cached value and whether one was ever set.
func (w *Wrapper[V]) Value() (V, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.value, w.set
}

// IsSet reports whether a value was ever set.
func (w *Wrapper[V]) IsSet() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.set
}

// Valid reports whether the wrapper currently sits in the valid bucket.
func (w *Wrapper[V]) Valid() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.valid
}

// Arrived is when the key first got a wrapper. Repopulation keeps it.
func (w *Wrapper[V]) Arrived() time.Time {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.arrived
}

// Accessed is when the wrapper was last returned to a reader.
func (w *Wrapper[V]) Accessed() time.Time {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.accessed
}

// Updated is when the value last changed.
func (w *Wrapper[V]) Updated() time.Time {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.updated
}

// Expires is the absolute expiry set by a PerishablesFactory, zero if none.
func (w *Wrapper[V]) Expires() time.Time {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.expires
}

// Version increments every time the value changes.
func (w *Wrapper[V]) Version() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.version
}

// Hits counts fresh reads served by this wrapper.
func (w *Wrapper[V]) Hits() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.hits
}

// Err is the error of the last failed population, nil after a success.
func (w *Wrapper[V]) Err() error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.err
}

// Elapsed is the duration of the last population, or -1 when it failed or a
// reader gave up waiting for it.
func (w *Wrapper[V]) Elapsed() time.Duration {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.elapsed
}

// fresh reports whether the wrapper can be served without repopulation.
func (w *Wrapper[V]) fresh(now time.Time) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if !w.valid || !w.set {
		return false
	}
	if !w.expires.IsZero() && !now.Before(w.expires) {
		return false
	}
	if p, ok := any(w.value).(Perishable); ok && p != nil {
		return p.IsValid()
	}
	return true
}

func (w *Wrapper[V]) hit(now time.Time) {
	w.mu.Lock()
	w.hits++
	w.accessed = now
	w.mu.Unlock()
}

func (w *Wrapper[V]) touch(now time.Time) {
	w.mu.Lock()
	w.accessed = now
	w.mu.Unlock()
}

// store installs v as a valid value. Version and update time move only when
// the value differs from the previous one.
func (w *Wrapper[V]) store(v V, now time.Time, elapsed time.Duration, expires time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.set || !reflect.DeepEqual(w.value, v) {
		w.version++
		w.updated = now
	}
	w.value = v
	w.set = true
	w.valid = true
	w.err = nil
	w.elapsed = elapsed
	w.expires = expires
	w.accessed = now
}

func (w *Wrapper[V]) fail(err error) {
	w.mu.Lock()
	w.err = err
	w.elapsed = -1
	w.mu.Unlock()
}

func (w *Wrapper[V]) timedOut() {
	w.mu.Lock()
	w.elapsed = -1
	w.mu.Unlock()
}

func (w *Wrapper[V]) setValid(valid bool) {
	w.mu.Lock()
	w.valid = valid
	w.mu.Unlock()
}

func (w *Wrapper[V]) drop() {
	w.mu.Lock()
	w.valid = false
	w.dropped = true
	w.mu.Unlock()
}

func (w *Wrapper[V]) isDropped() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.dropped
}
