package queue

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/bool64/ctxd"
	"golang.org/x/sync/semaphore"
)

// PoolConfig configures a Pool. Zero values are safe; defaults are applied in NewPool:
//   - Workers <= 0 => GOMAXPROCS
//   - Backlog < 0  => 0 (no waiting tasks, only running ones)
//   - nil Logger   => ctxd.NoOpLogger
type PoolConfig struct {
	// Name is added to logs.
	Name string

	// Workers bounds the number of tasks running at once.
	Workers int

	// Backlog bounds the number of accepted tasks waiting for a worker.
	Backlog int

	// Logger receives panics recovered from tasks.
	Logger ctxd.Logger
}

// Pool is a bounded Queue. Admission is non-blocking: a task is rejected when
// Workers+Backlog tasks are already accepted and not yet finished.
type Pool struct {
	cfg PoolConfig

	admit *semaphore.Weighted // running + waiting
	run   *semaphore.Weighted // running

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex // orders wg.Add against Close
	closed bool

	pending atomic.Int64
}

// NewPool creates a Pool.
func NewPool(cfg PoolConfig) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.Backlog < 0 {
		cfg.Backlog = 0
	}
	if cfg.Logger == nil {
		cfg.Logger = ctxd.NoOpLogger{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		cfg:    cfg,
		admit:  semaphore.NewWeighted(int64(cfg.Workers + cfg.Backlog)),
		run:    semaphore.NewWeighted(int64(cfg.Workers)),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Enqueue accepts t if the pool is open and has capacity.
func (p *Pool) Enqueue(t Task) bool {
	p.mu.RLock()
	if p.closed || !p.admit.TryAcquire(1) {
		p.mu.RUnlock()
		return false
	}
	p.wg.Add(1)
	p.mu.RUnlock()

	p.pending.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.admit.Release(1)
		defer p.pending.Add(-1)

		if err := p.run.Acquire(p.ctx, 1); err != nil {
			// Closed while waiting for a worker.
			p.safely("cancel", t.Cancel)
			return
		}
		defer p.run.Release(1)

		if p.ctx.Err() != nil {
			p.safely("cancel", t.Cancel)
			return
		}
		p.safely("service", t.Service)
	}()

	return true
}

// Pending returns the number of accepted tasks that have not finished.
func (p *Pool) Pending() int {
	return int(p.pending.Load())
}

// Close stops admission, cancels tasks still waiting for a worker and waits
// for running tasks to finish. Closing a closed pool returns ErrClosed.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()

	p.cfg.Logger.Debug(context.Background(), "task pool closed", "name", p.cfg.Name)
	return nil
}

func (p *Pool) safely(op string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.cfg.Logger.Error(context.Background(), "task panicked",
				"name", p.cfg.Name,
				"op", op,
				"panic", fmt.Sprint(r),
			)
		}
	}()
	fn()
}
