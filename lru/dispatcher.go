package lru

import (
	"context"
	"fmt"
	"sync"

	"github.com/bool64/ctxd"
	"github.com/gammazero/deque"
)

// Dispatcher runs fire-and-forget callbacks on at most workers goroutines.
// Callbacks never block the caller of Go; pending ones wait in a queue, and a
// panicking callback is logged and does not affect the others.
type Dispatcher struct {
	mu      sync.Mutex
	pending *deque.Deque[func()]
	running int
	workers int

	wg  sync.WaitGroup
	log ctxd.Logger
}

// NewDispatcher creates a Dispatcher running at most workers callbacks at
// once (workers <= 0 => 4). logger may be nil.
func NewDispatcher(workers int, logger ctxd.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}
	if logger == nil {
		logger = ctxd.NoOpLogger{}
	}
	return &Dispatcher{
		pending: deque.New[func()](),
		workers: workers,
		log:     logger,
	}
}

// Go schedules fn.
func (d *Dispatcher) Go(fn func()) {
	d.wg.Add(1)

	d.mu.Lock()
	d.pending.PushBack(fn)
	spawn := d.running < d.workers
	if spawn {
		d.running++
	}
	d.mu.Unlock()

	if spawn {
		go d.work()
	}
}

// work drains the queue and exits once it is empty.
func (d *Dispatcher) work() {
	for {
		d.mu.Lock()
		if d.pending.Len() == 0 {
			d.running--
			d.mu.Unlock()
			return
		}
		fn := d.pending.PopFront()
		d.mu.Unlock()

		d.run(fn)
	}
}

func (d *Dispatcher) run(fn func()) {
	defer d.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			d.log.Error(context.Background(), "expiration listener panicked", "panic", fmt.Sprint(r))
		}
	}()
	fn()
}

// Pending returns the number of callbacks waiting for a worker.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending.Len()
}

// Wait blocks until every scheduled callback has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
