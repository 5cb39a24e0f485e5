package cache

import (
	"context"
	"errors"
	"sync"
	"time"
)

// clockSlack is the remaining wait below which a waiter whose timer already
// fired gives up instead of sleeping again; timers and clocks are not precise
// enough to do better.
const clockSlack = 10 * time.Millisecond

// retriever coordinates the population of a single key.
//
// At most one retriever per key is registered at a time and it runs at most
// one population. It is released (unregistered) once that population ends in
// any way; the next miss registers a fresh one.
type retriever[K comparable, V any] struct {
	d   *Depot[K, V]
	key K

	mu sync.Mutex
	// wake is closed and replaced on every state change waiters care about.
	wake chan struct{}

	factory   Factory[K, V] // non-nil while a population is claimed
	ctx       context.Context
	result    *Wrapper[V]
	running   bool
	cancelled bool
	discarded bool
	released  bool
}

func newRetriever[K comparable, V any](d *Depot[K, V], k K) *retriever[K, V] {
	return &retriever[K, V]{
		d:    d,
		key:  k,
		wake: make(chan struct{}),
	}
}

// task is the unit handed to the queue.
type task[K comparable, V any] struct {
	r *retriever[K, V]
}

func (t task[K, V]) Service() { t.r.populate() }

func (t task[K, V]) Cancel() { t.r.cancel() }

// await joins or starts the population of r.key and waits for its outcome.
// retry is true when r was released before the caller could join it.
func (r *retriever[K, V]) await(ctx context.Context, f Factory[K, V], stale *Wrapper[V], timeout time.Duration) (w *Wrapper[V], retry bool) {
	d := r.d

	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		return nil, true
	}
	// A reader arriving after Remove must not take the discarded result: it
	// waits for the old population to end and then starts a new one. A
	// discard that found no claimed population has nothing to drop.
	if r.discarded && r.factory == nil && !r.cancelled {
		r.discarded = false
	}
	late := r.discarded && r.factory != nil
	claimed := false
	if r.factory == nil && !r.cancelled && !late {
		r.factory = f
		r.ctx = detach(ctx)
		claimed = true
	}
	r.mu.Unlock()

	if claimed && !d.queue.Enqueue(task[K, V]{r: r}) {
		if d.opt.Priority && (timeout != 0 || !servable(stale)) {
			d.log.Debug(ctx, "queue rejected population, running inline", "name", d.opt.Name, "key", r.key)
			r.populate()
		} else {
			d.log.Debug(ctx, "queue rejected population", "name", d.opt.Name, "key", r.key)
			r.mu.Lock()
			r.releaseLocked()
			r.mu.Unlock()
			return d.best(r.key), false
		}
	}

	w = r.wait(ctx, stale, timeout)
	if late {
		r.mu.Lock()
		retry = r.released && r.result == nil
		r.mu.Unlock()
		if retry {
			return nil, true
		}
	}
	return w, false
}

// servable reports whether w holds a value a reader could fall back on. A
// wrapper left behind by a failed first population has none.
func servable[V any](w *Wrapper[V]) bool {
	return w != nil && w.IsSet()
}

// wait blocks until r has a result, is cancelled or released, or the
// deadline passes. With nothing stale to fall back on the wait is unbounded.
func (r *retriever[K, V]) wait(ctx context.Context, stale *Wrapper[V], timeout time.Duration) *Wrapper[V] {
	unbounded := timeout < 0 || !servable(stale)
	if timeout == 0 && !unbounded {
		return r.d.best(r.key)
	}

	var (
		deadline time.Time
		timer    *time.Timer
		expired  <-chan time.Time
		fired    bool
	)
	if !unbounded {
		deadline = time.Now().Add(timeout)
		timer = time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	timedOut := false

	r.mu.Lock()
	for !r.settledLocked() {
		if !unbounded {
			left := time.Until(deadline)
			// A timer may fire a little before the clock reaches the deadline;
			// such a remainder is not worth another sleep.
			if left <= 0 || fired && left <= clockSlack {
				timedOut = true
				break
			}
			if fired {
				timer.Reset(left)
				fired = false
			}
		}
		if ctx.Err() != nil {
			timedOut = true
			break
		}

		wake := r.wake
		r.mu.Unlock()
		select {
		case <-wake:
		case <-expired:
			fired = true
		case <-ctx.Done():
		}
		r.mu.Lock()
	}
	res := r.result
	r.mu.Unlock()

	if res != nil {
		return res
	}

	w := r.d.best(r.key)
	if timedOut && w != nil {
		w.timedOut()
	}
	return w
}

func (r *retriever[K, V]) settledLocked() bool {
	return r.result != nil || r.cancelled || r.released
}

// populate runs the claimed factory and applies its outcome. It is the body
// of the queued task and runs at most once per retriever.
func (r *retriever[K, V]) populate() {
	r.mu.Lock()
	f, ctx := r.factory, r.ctx
	if f == nil || r.released || r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.mu.Unlock()

	d := r.d
	d.stats.populations.Inc()
	d.log.Debug(ctx, "populating cache entry", "name", d.opt.Name, "key", r.key)

	start := time.Now()
	v, err := d.create(ctx, f, r.key)
	elapsed := time.Since(start)

	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case r.discarded || r.cancelled:
		d.log.Debug(ctx, "discarding population result", "name", d.opt.Name, "key", r.key)
	case errors.Is(err, ErrAbort):
		r.cancelled = true
		d.stats.aborts.Inc()
		d.log.Debug(ctx, "population aborted", "name", d.opt.Name, "key", r.key)
	case err != nil:
		d.fail(ctx, r.key, err, elapsed)
	default:
		r.result = d.install(r.key, v, f, elapsed)
		d.metrics.Load(elapsed, true)
		d.log.Debug(ctx, "populated cache entry", "name", d.opt.Name, "key", r.key, "elapsed", elapsed.String())
	}

	r.releaseLocked()
}

// bypassLocked hands an externally stored wrapper to the waiters of an
// in-flight population. The population itself keeps running.
func (r *retriever[K, V]) bypassLocked(w *Wrapper[V]) {
	if r.released || r.factory == nil {
		return
	}
	r.result = w
	r.broadcastLocked()
}

// discardLocked makes a late population result for a removed key vanish.
func (r *retriever[K, V]) discardLocked() {
	r.discarded = true
	r.result = nil
}

// cancel clears the claim and wakes waiters, who fall back to stale data.
// A population that has not started yet is released right away; a running
// one finishes in the background and its result is dropped.
func (r *retriever[K, V]) cancel() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.released || r.factory == nil {
		return false
	}
	r.factory = nil
	r.cancelled = true
	if !r.running {
		r.releaseLocked()
		return true
	}
	r.broadcastLocked()
	return true
}

func (r *retriever[K, V]) broadcastLocked() {
	close(r.wake)
	r.wake = make(chan struct{})
}

// releaseLocked wakes everyone and unregisters r if it is still the
// registered retriever for its key.
func (r *retriever[K, V]) releaseLocked() {
	if r.released {
		return
	}
	r.released = true
	r.factory = nil
	r.broadcastLocked()

	r.d.retrievers.Compute(r.key, func(old *retriever[K, V], loaded bool) (*retriever[K, V], bool) {
		return old, !loaded || old == r
	})
}
