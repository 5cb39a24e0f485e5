// Package lru implements a bounded least-recently-used cache on top of an
// arbitrary backing store, with optional auto-tuning of its size bound and
// asynchronous expiration notifications.
//
// Every resident entry has exactly one handle in a concurrent ordered list:
// head is the coldest entry, tail the most recently used one. Get moves the
// entry's handle to the tail; Put appends a new handle and evicts from the
// head while the store is over its bound.
package lru

import (
	"context"
	"fmt"
	"sync"

	"github.com/bool64/ctxd"

	"github.com/IvanBrykalov/depot/internal/ordered"
	"github.com/IvanBrykalov/depot/internal/util"
	"github.com/IvanBrykalov/depot/store"
)

const (
	defaultInitialSize    = 1024
	defaultTargetHitRatio = 0.8
	defaultMemoryCeiling  = 0.9
	defaultWindow         = 16
)

// Entry is a resident key/value pair. The backing store holds *Entry values,
// so a nil V is still a present entry.
type Entry[K comparable, V any] struct {
	Key   K
	Value V

	handle ordered.Handle[*Entry[K, V]]
}

// ExpirationListener is notified about entries evicted by the size bound.
type ExpirationListener[K comparable, V any] interface {
	Expired(e Entry[K, V])
}

// ListenerFunc adapts a function to ExpirationListener.
type ListenerFunc[K comparable, V any] func(e Entry[K, V])

// Expired calls f(e).
func (f ListenerFunc[K, V]) Expired(e Entry[K, V]) { f(e) }

// Cache is a bounded LRU map. All methods are safe for concurrent use.
type Cache[K comparable, V any] struct {
	store store.Store[K, *Entry[K, V]]
	list  *ordered.List[*Entry[K, V]]

	// putMu serializes structural changes: Put, Remove, Clear and eviction.
	putMu   sync.Mutex
	maxSize util.PaddedAtomicInt64
	tuner   *tuner // nil when the bound is fixed

	hits   util.PaddedAtomicUint64
	misses util.PaddedAtomicUint64

	lmu       sync.RWMutex
	listeners map[uint64]ExpirationListener[K, V]
	nextID    uint64

	dispatcher     *Dispatcher
	ownsDispatcher bool

	name    string
	metrics Metrics
	log     ctxd.Logger
}

var _ store.Store[string, int] = (*Cache[string, int])(nil)

// New constructs a Cache with the provided Options.
func New[K comparable, V any](opt Options[K, V]) *Cache[K, V] {
	if opt.Store == nil {
		opt.Store = store.NewConcurrent[K, *Entry[K, V]]()
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Logger == nil {
		opt.Logger = ctxd.NoOpLogger{}
	}

	c := &Cache[K, V]{
		store:     opt.Store,
		list:      ordered.New[*Entry[K, V]](opt.PoolSize),
		listeners: make(map[uint64]ExpirationListener[K, V]),
		name:      opt.Name,
		metrics:   opt.Metrics,
		log:       opt.Logger,
	}

	c.dispatcher = opt.Dispatcher
	if c.dispatcher == nil {
		c.dispatcher = NewDispatcher(0, opt.Logger)
		c.ownsDispatcher = true
	}

	if opt.MaxSize > 0 {
		c.maxSize.Store(int64(opt.MaxSize))
		return c
	}

	// Auto-tuned bound.
	if opt.InitialSize <= 0 {
		opt.InitialSize = defaultInitialSize
	}
	if opt.TargetHitRatio <= 0 || opt.TargetHitRatio > 1 {
		opt.TargetHitRatio = defaultTargetHitRatio
	}
	if opt.MemoryCeiling <= 0 || opt.MemoryCeiling > 1 {
		opt.MemoryCeiling = defaultMemoryCeiling
	}
	if opt.MemoryUsage == nil {
		opt.MemoryUsage = heapUsage
	}
	if opt.Window <= 1 {
		opt.Window = defaultWindow
	}
	c.maxSize.Store(int64(opt.InitialSize))
	c.tuner = newTuner(opt.Window, opt.TargetHitRatio, opt.MemoryCeiling, opt.MemoryUsage)

	return c
}

// Get returns the value for k and promotes the entry to most recently used.
func (c *Cache[K, V]) Get(k K) (V, bool) {
	e, ok := c.store.Get(k)
	if !ok {
		c.misses.Add(1)
		c.metrics.Miss()
		var zero V
		return zero, false
	}

	c.list.MoveToTail(e.handle)
	c.hits.Add(1)
	c.metrics.Hit()
	return e.Value, true
}

// Put inserts or replaces k→v, then evicts the coldest entries while the
// cache is over its bound. Evicted entries are announced to listeners
// asynchronously.
func (c *Cache[K, V]) Put(k K, v V) (V, bool) {
	e := &Entry[K, V]{Key: k, Value: v}

	c.putMu.Lock()
	e.handle = c.list.Append(e)
	prev, replaced := c.store.Put(k, e)
	if replaced {
		c.list.Remove(prev.handle)
	}
	c.tuneLocked()
	evicted := c.enforceLocked()
	size := c.store.Len()
	c.putMu.Unlock()

	c.metrics.Size(size)
	c.notify(evicted)

	if replaced {
		return prev.Value, true
	}
	var zero V
	return zero, false
}

// Remove deletes k together with its list handle.
func (c *Cache[K, V]) Remove(k K) (V, bool) {
	c.putMu.Lock()
	e, ok := c.store.Remove(k)
	if ok {
		c.list.Remove(e.handle)
	}
	c.putMu.Unlock()

	if !ok {
		var zero V
		return zero, false
	}
	return e.Value, true
}

// Peek returns the value for k without promoting the entry or counting a
// hit or miss.
func (c *Cache[K, V]) Peek(k K) (V, bool) {
	e, ok := c.store.Get(k)
	if !ok {
		var zero V
		return zero, false
	}
	return e.Value, true
}

// Contains reports whether k is resident without promoting it.
func (c *Cache[K, V]) Contains(k K) bool {
	_, ok := c.store.Get(k)
	return ok
}

// Len returns the number of resident entries.
func (c *Cache[K, V]) Len() int {
	return c.store.Len()
}

// Clear removes every entry without notifying listeners.
func (c *Cache[K, V]) Clear() {
	c.putMu.Lock()
	c.store.Clear()
	c.list.Clear()
	c.putMu.Unlock()
}

// Range calls fn for resident entries until fn returns false.
// Entries are not promoted.
func (c *Cache[K, V]) Range(fn func(k K, v V) bool) {
	c.store.Range(func(k K, e *Entry[K, V]) bool {
		return fn(k, e.Value)
	})
}

// Keys returns a best-effort snapshot of resident keys.
func (c *Cache[K, V]) Keys() []K {
	return store.Keys[K, *Entry[K, V]](c.store)
}

// MaxSize returns the current size bound.
func (c *Cache[K, V]) MaxSize() int {
	return int(c.maxSize.Load())
}

// SetMaxSize fixes the bound at n and disables auto-tuning.
// Entries over the new bound are evicted immediately. n < 1 is ignored.
func (c *Cache[K, V]) SetMaxSize(n int) {
	if n < 1 {
		return
	}
	c.putMu.Lock()
	c.tuner = nil
	c.maxSize.Store(int64(n))
	evicted := c.enforceLocked()
	c.putMu.Unlock()

	c.notify(evicted)
}

// AutoTuned reports whether the bound is adjusted automatically.
func (c *Cache[K, V]) AutoTuned() bool {
	c.putMu.Lock()
	defer c.putMu.Unlock()
	return c.tuner != nil && !c.tuner.frozen
}

// HitRatio returns hits/(hits+misses) since creation or the last ResetStats.
func (c *Cache[K, V]) HitRatio() float64 {
	hits := c.hits.Load()
	total := hits + c.misses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// ResetStats zeroes the hit and miss counters.
func (c *Cache[K, V]) ResetStats() {
	c.hits.Store(0)
	c.misses.Store(0)
}

// AddListener registers l and returns an id for RemoveListener.
func (c *Cache[K, V]) AddListener(l ExpirationListener[K, V]) uint64 {
	c.lmu.Lock()
	defer c.lmu.Unlock()
	c.nextID++
	c.listeners[c.nextID] = l
	return c.nextID
}

// RemoveListener unregisters the listener with the given id.
func (c *Cache[K, V]) RemoveListener(id uint64) bool {
	c.lmu.Lock()
	defer c.lmu.Unlock()
	_, ok := c.listeners[id]
	delete(c.listeners, id)
	return ok
}

// IntegrityCheck verifies that every resident entry has exactly one list
// handle. Intended for tests.
func (c *Cache[K, V]) IntegrityCheck() error {
	c.putMu.Lock()
	defer c.putMu.Unlock()

	if s, l := c.store.Len(), c.list.Len(); s != l {
		return fmt.Errorf("lru: store holds %d entries, list holds %d", s, l)
	}
	return c.list.IntegrityCheck()
}

// Close waits for pending expiration notifications.
func (c *Cache[K, V]) Close() {
	if c.ownsDispatcher {
		c.dispatcher.Wait()
	}
}

// -------------------- internals (putMu held) --------------------

// enforceLocked evicts from the head until the store is within its bound.
func (c *Cache[K, V]) enforceLocked() []*Entry[K, V] {
	var evicted []*Entry[K, V]
	max := int(c.maxSize.Load())
	for c.store.Len() > max {
		e, ok := c.list.PollHead()
		if !ok {
			break
		}
		if cur, ok := c.store.Get(e.Key); ok && cur == e {
			c.store.Remove(e.Key)
		}
		evicted = append(evicted, e)
	}
	return evicted
}

// tuneLocked feeds the auto-tuner and applies its decision.
func (c *Cache[K, V]) tuneLocked() {
	t := c.tuner
	if t == nil || t.frozen {
		return
	}

	size := c.store.Len()
	if t.pressure() {
		if size < 1 {
			size = 1
		}
		t.frozen = true
		c.maxSize.Store(int64(size))
		c.log.Important(context.Background(), "memory ceiling reached, lru bound frozen",
			"name", c.name,
			"bound", size,
		)
		return
	}

	if !t.observe(Sample{Ratio: c.HitRatio(), Size: size}) {
		return
	}

	current := int(c.maxSize.Load())
	if next, ok := Tune(t.samples(), t.target, current); ok {
		c.maxSize.Store(int64(next))
		c.log.Debug(context.Background(), "lru bound adjusted",
			"name", c.name,
			"from", current,
			"to", next,
			"hitRatio", c.HitRatio(),
		)
	}
}

func (c *Cache[K, V]) notify(evicted []*Entry[K, V]) {
	if len(evicted) == 0 {
		return
	}

	c.log.Debug(context.Background(), "evicted lru entries",
		"name", c.name,
		"count", len(evicted),
	)

	c.lmu.RLock()
	ls := make([]ExpirationListener[K, V], 0, len(c.listeners))
	for _, l := range c.listeners {
		ls = append(ls, l)
	}
	c.lmu.RUnlock()

	for _, e := range evicted {
		c.metrics.Evict()
		ent := Entry[K, V]{Key: e.Key, Value: e.Value}
		for _, l := range ls {
			l := l
			c.dispatcher.Go(func() { l.Expired(ent) })
		}
	}
}
