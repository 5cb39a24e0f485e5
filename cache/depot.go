package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bool64/ctxd"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/IvanBrykalov/depot/lru"
	"github.com/IvanBrykalov/depot/queue"
	"github.com/IvanBrykalov/depot/store"
)

// Depot is a self-healing cache in front of a Factory.
// All methods are safe for concurrent use by multiple goroutines.
//
// Entries are split between a valid and an invalid bucket. Readers get valid
// entries directly; invalid ones trigger a single background population per
// key while readers wait for it up to their timeout and fall back to the
// stale value.
type Depot[K comparable, V any] struct {
	opt   Options[K, V]
	queue queue.Queue

	b          *buckets[K, V]
	retrievers *xsync.MapOf[K, *retriever[K, V]]
	expiry     *xsync.MapOf[K, time.Time]

	timeout atomic.Int64

	lmu       sync.RWMutex
	listeners []listenerEntry[K]
	nextID    uint64

	// LRU-backed buckets: owned ones are closed with the Depot, the valid one
	// (owned or not) reports evictions back as invalidations.
	owned    []*lru.Cache[K, *Wrapper[V]]
	validLRU *lru.Cache[K, *Wrapper[V]]
	evictID  uint64

	stats   counters
	metrics Metrics
	log     ctxd.Logger

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

type listenerEntry[K comparable] struct {
	id uint64
	l  InvalidationListener[K]
}

var _ Cache[string, int] = (*Depot[string, int])(nil)

// New constructs a Depot with the provided Options.
// It returns an error wrapping ErrInvalidOptions for unusable options.
func New[K comparable, V any](opt Options[K, V]) (*Depot[K, V], error) {
	if err := opt.validate(); err != nil {
		return nil, err
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Logger == nil {
		opt.Logger = ctxd.NoOpLogger{}
	}

	d := &Depot[K, V]{
		opt:        opt,
		queue:      opt.Queue,
		retrievers: xsync.NewMapOf[K, *retriever[K, V]](),
		expiry:     xsync.NewMapOf[K, time.Time](),
		stats:      newCounters(),
		metrics:    opt.Metrics,
		log:        opt.Logger,
	}
	d.timeout.Store(int64(opt.DefaultTimeout))

	valid := opt.Valid
	switch {
	case valid != nil:
		valid = d.synchronize(valid)
	case opt.AutoTune || opt.ValidCapacity > 0:
		valid = d.newLRU("valid", opt.ValidCapacity, opt.AutoTune)
	default:
		valid = store.NewConcurrent[K, *Wrapper[V]]()
	}

	invalid := opt.Invalid
	switch {
	case invalid != nil:
		invalid = d.synchronize(invalid)
	case opt.InvalidCapacity > 0:
		invalid = d.newLRU("invalid", opt.InvalidCapacity, false)
	default:
		invalid = store.NewConcurrent[K, *Wrapper[V]]()
	}

	d.b = newBuckets[K, V](valid, invalid, opt.Stripes)

	if c, ok := valid.(*lru.Cache[K, *Wrapper[V]]); ok {
		d.validLRU = c
		d.evictID = c.AddListener(lru.ListenerFunc[K, *Wrapper[V]](d.expired))
	}

	if opt.SweepInterval > 0 {
		d.stop = make(chan struct{})
		d.done = make(chan struct{})
		go d.sweep(opt.SweepInterval)
	}

	return d, nil
}

func (d *Depot[K, V]) newLRU(bucket string, capacity int, autoTune bool) *lru.Cache[K, *Wrapper[V]] {
	lo := lru.Options[K, *Wrapper[V]]{
		Name:       d.opt.Name + "." + bucket,
		MaxSize:    capacity,
		Dispatcher: d.opt.Dispatcher,
		Metrics:    d.opt.LRUMetrics,
		Logger:     d.opt.Logger,
	}
	if autoTune {
		lo.MaxSize = 0
		lo.TargetHitRatio = d.opt.TargetHitRatio
		lo.MemoryCeiling = d.opt.MemoryCeiling
	}
	c := lru.New(lo)
	d.owned = append(d.owned, c)
	return c
}

// synchronize wraps stores that are not safe for concurrent use.
func (d *Depot[K, V]) synchronize(s store.Store[K, *Wrapper[V]]) store.Store[K, *Wrapper[V]] {
	switch any(s).(type) {
	case *store.Map[K, *Wrapper[V]]:
		return store.NewSynchronized(s)
	case *store.Synchronized[K, *Wrapper[V]], *store.Concurrent[K, *Wrapper[V]],
		*store.Soft[*Wrapper[V]], *lru.Cache[K, *Wrapper[V]]:
		return s
	}
	if d.opt.Synchronize {
		return store.NewSynchronized(s)
	}
	return s
}

// ---- reads ----

// Get returns the value for k, populating it with Options.Factory and
// waiting up to the default timeout when it is missing or stale.
func (d *Depot[K, V]) Get(ctx context.Context, k K) (V, bool) {
	return unwrap(d.GetWrapped(ctx, k))
}

// GetTimeout is Get with an explicit timeout: Forever (negative) waits for
// the population, NoWait (zero) returns what is cached without waiting.
// When nothing at all is cached the wait is always unbounded.
func (d *Depot[K, V]) GetTimeout(ctx context.Context, k K, timeout time.Duration) (V, bool) {
	return unwrap(d.GetWrappedTimeout(ctx, k, timeout))
}

// GetWith is GetTimeout with an explicit factory.
func (d *Depot[K, V]) GetWith(ctx context.Context, f Factory[K, V], k K, timeout time.Duration) (V, bool) {
	return unwrap(d.GetWrappedWith(ctx, f, k, timeout))
}

// GetWrapped is Get returning the wrapper, nil when nothing is cached.
func (d *Depot[K, V]) GetWrapped(ctx context.Context, k K) *Wrapper[V] {
	return d.get(ctx, d.opt.Factory, k, d.DefaultTimeout())
}

// GetWrappedTimeout is GetTimeout returning the wrapper.
func (d *Depot[K, V]) GetWrappedTimeout(ctx context.Context, k K, timeout time.Duration) *Wrapper[V] {
	return d.get(ctx, d.opt.Factory, k, timeout)
}

// GetWrappedWith is GetWith returning the wrapper.
func (d *Depot[K, V]) GetWrappedWith(ctx context.Context, f Factory[K, V], k K, timeout time.Duration) *Wrapper[V] {
	return d.get(ctx, f, k, timeout)
}

func unwrap[V any](w *Wrapper[V]) (V, bool) {
	if w == nil {
		var zero V
		return zero, false
	}
	return w.Value()
}

func (d *Depot[K, V]) get(ctx context.Context, f Factory[K, V], k K, timeout time.Duration) *Wrapper[V] {
	if ctx == nil {
		ctx = context.Background()
	}
	d.stats.gets.Inc()

	w, ok := d.cached(ctx, k)
	if ok {
		d.stats.hits.Inc()
		d.metrics.Hit()
		return w
	}
	d.stats.misses.Inc()
	d.metrics.Miss()

	if f == nil {
		return w
	}
	if servable(w) && d.opt.ReturnInvalidWithoutWaiting {
		timeout = NoWait
	}

	for {
		r, _ := d.retrievers.LoadOrCompute(k, func() *retriever[K, V] {
			return newRetriever(d, k)
		})

		res, retry := r.await(ctx, f, w, timeout)
		if !retry {
			if res != nil {
				res.touch(time.Now())
			}
			return res
		}

		// The retriever finished between lookup and join: look again.
		if w, ok = d.cached(ctx, k); ok {
			return w
		}
	}
}

// cached returns the wrapper for k and whether it is fresh. A valid wrapper
// that is no longer fresh is invalidated on the way.
func (d *Depot[K, V]) cached(ctx context.Context, k K) (*Wrapper[V], bool) {
	now := time.Now()

	unlock := d.b.lock(k)
	w, valid := d.b.readLocked(k)
	if w == nil || !valid {
		unlock()
		return w, false
	}
	if w.fresh(now) {
		w.hit(now)
		unlock()
		return w, true
	}
	d.b.invalidateLocked(k)
	unlock()

	d.expiry.Delete(k)
	d.invalidated(ctx, k)
	return w, false
}

// best returns whatever is cached for k, valid or not.
func (d *Depot[K, V]) best(k K) *Wrapper[V] {
	unlock := d.b.lock(k)
	w, _ := d.b.peekLocked(k)
	unlock()
	return w
}

// ---- population ----

// create runs the factory, converting a panic into an error.
func (d *Depot[K, V]) create(ctx context.Context, f Factory[K, V], k K) (v V, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ctxd.NewError(ctx, "factory panicked", "panic", fmt.Sprint(r))
		}
	}()
	return f.Create(ctx, k)
}

// install stores a freshly created value for k and returns its wrapper.
func (d *Depot[K, V]) install(k K, v V, f Factory[K, V], elapsed time.Duration) *Wrapper[V] {
	now := time.Now()

	var (
		expires    time.Time
		perishable bool
		ttl        time.Duration
	)
	if pf, ok := f.(PerishablesFactory[K, V]); ok {
		perishable = true
		ttl = pf.ValidDuration()
		if ttl > 0 {
			expires = now.Add(ttl)
		}
	}

	unlock := d.b.lock(k)
	w, _ := d.b.peekLocked(k)
	if w == nil {
		w = newWrapper[V](now)
	}
	w.store(v, now, elapsed, expires)

	if perishable && ttl <= 0 {
		d.b.demoteLocked(k, w)
	} else {
		d.b.promoteLocked(k, w)
	}
	unlock()

	if expires.IsZero() {
		d.expiry.Delete(k)
	} else {
		d.expiry.Store(k, expires)
	}

	return w
}

// fail records err on the wrapper of k, creating an empty invalid one when
// nothing is cached, without touching validity.
func (d *Depot[K, V]) fail(ctx context.Context, k K, err error, elapsed time.Duration) {
	err = ctxd.WrapError(ctx, err, "failed to populate cache entry", "name", d.opt.Name, "key", k)

	unlock := d.b.lock(k)
	w, _ := d.b.peekLocked(k)
	if w == nil {
		w = newWrapper[V](time.Now())
		d.b.invalid.Put(k, w)
	}
	w.fail(err)
	unlock()

	d.stats.failures.Inc()
	d.metrics.Load(elapsed, false)
	d.log.Warn(ctx, "cache population failed",
		"name", d.opt.Name,
		"key", k,
		"error", err,
		"elapsed", elapsed.String(),
	)
}

// ---- writes ----

// Put stores v under k without calling the factory. Readers waiting for an
// in-flight population of k get v immediately; that population still
// completes and then overwrites v.
func (d *Depot[K, V]) Put(k K, v V) {
	now := time.Now()

	r, _ := d.retrievers.Load(k)
	if r != nil {
		r.mu.Lock()
		defer r.mu.Unlock()
	}

	unlock := d.b.lock(k)
	w, _ := d.b.peekLocked(k)
	if w == nil {
		w = newWrapper[V](now)
	}
	w.store(v, now, 0, time.Time{})
	d.b.promoteLocked(k, w)
	unlock()

	d.expiry.Delete(k)

	if r != nil {
		r.bypassLocked(w)
	}
}

// Invalidate moves k from valid to invalid and notifies invalidation
// listeners. It reports false when k was not valid.
func (d *Depot[K, V]) Invalidate(k K) bool {
	unlock := d.b.lock(k)
	_, ok := d.b.invalidateLocked(k)
	unlock()

	if !ok {
		return false
	}
	d.expiry.Delete(k)
	d.invalidated(context.Background(), k)
	return true
}

// InvalidateAll invalidates every valid key and returns their number.
func (d *Depot[K, V]) InvalidateAll() int {
	return d.InvalidateFunc(nil)
}

// InvalidateFunc invalidates every valid key accepted by f.
func (d *Depot[K, V]) InvalidateFunc(f Filter[K]) int {
	moved := d.b.invalidateIf(f)

	ctx := context.Background()
	for _, k := range moved {
		d.expiry.Delete(k)
		d.invalidated(ctx, k)
	}
	d.log.Debug(ctx, "invalidated cache entries", "name", d.opt.Name, "count", len(moved))
	return len(moved)
}

// Remove deletes k from the Depot and returns the removed value. A
// population in flight for k completes but its result is discarded.
func (d *Depot[K, V]) Remove(k K) (V, bool) {
	r, _ := d.retrievers.Load(k)
	if r != nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.discardLocked()
	}

	unlock := d.b.lock(k)
	w, ok := d.b.removeLocked(k)
	unlock()

	d.expiry.Delete(k)

	if !ok {
		var zero V
		return zero, false
	}
	return w.Value()
}

// RemoveAll deletes every key and returns their number.
func (d *Depot[K, V]) RemoveAll() int {
	return d.RemoveFunc(nil)
}

// RemoveFunc deletes every key accepted by f.
func (d *Depot[K, V]) RemoveFunc(f Filter[K]) int {
	var rs []*retriever[K, V]
	d.retrievers.Range(func(k K, r *retriever[K, V]) bool {
		if f == nil || f(k) {
			rs = append(rs, r)
		}
		return true
	})
	for _, r := range rs {
		r.mu.Lock()
		r.discardLocked()
		r.mu.Unlock()
	}

	removed := d.b.removeIf(f)
	for _, k := range removed {
		d.expiry.Delete(k)
	}
	d.log.Debug(context.Background(), "removed cache entries", "name", d.opt.Name, "count", len(removed))
	return len(removed)
}

// Cancel abandons the population in flight for k. Waiting readers fall back
// to the stale value. It reports false when nothing was in flight.
func (d *Depot[K, V]) Cancel(k K) bool {
	r, ok := d.retrievers.Load(k)
	if !ok {
		return false
	}
	return r.cancel()
}

// ---- listeners ----

// AddInvalidationListener registers l and returns an id for removal.
// Listeners run synchronously in registration order.
func (d *Depot[K, V]) AddInvalidationListener(l InvalidationListener[K]) uint64 {
	d.lmu.Lock()
	defer d.lmu.Unlock()
	d.nextID++
	d.listeners = append(d.listeners, listenerEntry[K]{id: d.nextID, l: l})
	return d.nextID
}

// RemoveInvalidationListener unregisters the listener with the given id.
func (d *Depot[K, V]) RemoveInvalidationListener(id uint64) bool {
	d.lmu.Lock()
	defer d.lmu.Unlock()
	for i, e := range d.listeners {
		if e.id == id {
			d.listeners = append(d.listeners[:i:i], d.listeners[i+1:]...)
			return true
		}
	}
	return false
}

func (d *Depot[K, V]) invalidated(ctx context.Context, k K) {
	d.stats.invalidations.Inc()
	d.metrics.Invalidate()

	d.lmu.RLock()
	ls := d.listeners
	d.lmu.RUnlock()

	for _, e := range ls {
		d.notify(ctx, e.l, k)
	}
}

func (d *Depot[K, V]) notify(ctx context.Context, l InvalidationListener[K], k K) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error(ctx, "invalidation listener panicked",
				"name", d.opt.Name,
				"key", k,
				"panic", fmt.Sprint(r),
			)
		}
	}()
	l.Invalidated(k)
}

// expired turns an LRU eviction from the valid bucket into an invalidation.
func (d *Depot[K, V]) expired(e lru.Entry[K, *Wrapper[V]]) {
	unlock := d.b.lock(e.Key)
	moved := d.b.evictedLocked(e.Key, e.Value)
	unlock()

	if moved {
		d.invalidated(context.Background(), e.Key)
	}
}

// ---- introspection ----

// DefaultTimeout returns the wait bound used by Get.
func (d *Depot[K, V]) DefaultTimeout() time.Duration {
	t := time.Duration(d.timeout.Load())
	if t <= 0 {
		return Forever
	}
	return t
}

// SetDefaultTimeout changes the wait bound used by Get; t <= 0 waits forever.
func (d *Depot[K, V]) SetDefaultTimeout(t time.Duration) {
	d.timeout.Store(int64(t))
}

// Len returns the number of valid entries.
func (d *Depot[K, V]) Len() int {
	return d.b.valid.Len()
}

// InvalidLen returns the number of invalid entries.
func (d *Depot[K, V]) InvalidLen() int {
	return d.b.invalid.Len()
}

// Range calls fn for valid entries until fn returns false. It does not count
// as access and sees a best-effort snapshot.
func (d *Depot[K, V]) Range(fn func(k K, v V) bool) {
	d.b.valid.Range(func(k K, w *Wrapper[V]) bool {
		v, ok := w.Value()
		if !ok {
			return true
		}
		return fn(k, v)
	})
}

// Stats returns a snapshot of the read and population counters.
func (d *Depot[K, V]) Stats() Stats {
	return d.stats.snapshot()
}

// ResetStats zeroes the counters.
func (d *Depot[K, V]) ResetStats() {
	d.stats.reset()
}

// IntegrityCheck verifies the bucket invariants. Intended for tests.
func (d *Depot[K, V]) IntegrityCheck() error {
	return d.b.check()
}

// Close stops the sweeper, detaches from a caller-supplied valid LRU and
// waits for pending notifications of the LRUs the Depot created.
// Reads and writes keep working after Close.
func (d *Depot[K, V]) Close() error {
	d.closeOnce.Do(func() {
		if d.stop != nil {
			close(d.stop)
			<-d.done
		}
		if d.validLRU != nil {
			d.validLRU.RemoveListener(d.evictID)
		}
		for _, c := range d.owned {
			c.Close()
		}
	})
	return nil
}
