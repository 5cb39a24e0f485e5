package cache

import (
	"fmt"
	"time"

	"github.com/bool64/ctxd"

	"github.com/IvanBrykalov/depot/lru"
	"github.com/IvanBrykalov/depot/queue"
	"github.com/IvanBrykalov/depot/store"
)

// Metrics exposes Depot-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
type Metrics interface {
	Hit()
	Miss()
	// Load reports a finished population and whether it produced a value.
	Load(elapsed time.Duration, ok bool)
	Invalidate()
}

// NoopMetrics is a drop-in Metrics implementation that does nothing.
// It is safe for concurrent use and intended as the default when
// no observability backend is configured.
type NoopMetrics struct{}

func (NoopMetrics) Hit()                     {}
func (NoopMetrics) Miss()                    {}
func (NoopMetrics) Load(time.Duration, bool) {}
func (NoopMetrics) Invalidate()              {}

// Ensure NoopMetrics implements the Metrics interface at compile time.
var _ Metrics = NoopMetrics{}

// Timeouts with a special meaning for GetTimeout and GetWith.
const (
	// NoWait returns whatever is cached and refreshes in the background.
	NoWait time.Duration = 0
	// Forever waits for the population to finish.
	Forever time.Duration = -1
)

// Options configures a Depot. Zero values are safe except for Queue;
// defaults are applied in New():
//   - nil Valid    => LRU of ValidCapacity entries, auto-tuned LRU when AutoTune,
//     unbounded concurrent map otherwise
//   - nil Invalid  => LRU of InvalidCapacity entries, unbounded concurrent map when 0
//   - DefaultTimeout <= 0 => readers wait for the population to finish
//   - Stripes <= 0 => util.ReasonableStripeCount()
//   - nil Metrics/Logger => no-op
type Options[K comparable, V any] struct {
	// Name is added to logs.
	Name string

	// Factory populates missing and stale keys for Get and GetTimeout.
	// Without it only GetWith populates.
	Factory Factory[K, V]

	// Queue runs populations. Required.
	Queue queue.Queue

	// Valid and Invalid override the bucket stores.
	Valid   store.Store[K, *Wrapper[V]]
	Invalid store.Store[K, *Wrapper[V]]

	// ValidCapacity and InvalidCapacity bound the default bucket stores.
	ValidCapacity   int
	InvalidCapacity int

	// AutoTune lets the valid LRU size itself toward TargetHitRatio until
	// memory usage reaches MemoryCeiling (see lru.Options).
	AutoTune       bool
	TargetHitRatio float64
	MemoryCeiling  float64
	// Dispatcher runs LRU expiration notifications; nil gives each LRU its own.
	Dispatcher *lru.Dispatcher

	// DefaultTimeout bounds the wait of Get.
	DefaultTimeout time.Duration

	// ReturnInvalidWithoutWaiting serves stale values immediately and
	// refreshes them in the background.
	ReturnInvalidWithoutWaiting bool

	// Priority runs the population on the reader's goroutine when the Queue
	// rejects it. Otherwise the reader gets the stale value right away.
	Priority bool

	// Synchronize wraps caller-supplied stores in store.Synchronized.
	// A *store.Map is always wrapped.
	Synchronize bool

	// SweepInterval runs Evict periodically when positive.
	SweepInterval time.Duration

	// Stripes is the number of per-key lock stripes.
	Stripes int

	// Observability
	Logger     ctxd.Logger
	Metrics    Metrics
	LRUMetrics lru.Metrics
}

func (opt Options[K, V]) validate() error {
	switch {
	case opt.Queue == nil:
		return fmt.Errorf("%w: nil Queue", ErrInvalidOptions)
	case opt.ValidCapacity < 0:
		return fmt.Errorf("%w: negative ValidCapacity %d", ErrInvalidOptions, opt.ValidCapacity)
	case opt.InvalidCapacity < 0:
		return fmt.Errorf("%w: negative InvalidCapacity %d", ErrInvalidOptions, opt.InvalidCapacity)
	case opt.Valid != nil && (opt.ValidCapacity > 0 || opt.AutoTune):
		return fmt.Errorf("%w: Valid store conflicts with ValidCapacity/AutoTune", ErrInvalidOptions)
	case opt.Invalid != nil && opt.InvalidCapacity > 0:
		return fmt.Errorf("%w: Invalid store conflicts with InvalidCapacity", ErrInvalidOptions)
	case opt.AutoTune && opt.ValidCapacity > 0:
		return fmt.Errorf("%w: AutoTune conflicts with ValidCapacity", ErrInvalidOptions)
	case opt.TargetHitRatio < 0 || opt.TargetHitRatio > 1:
		return fmt.Errorf("%w: TargetHitRatio %v out of [0, 1]", ErrInvalidOptions, opt.TargetHitRatio)
	case opt.MemoryCeiling < 0 || opt.MemoryCeiling > 1:
		return fmt.Errorf("%w: MemoryCeiling %v out of [0, 1]", ErrInvalidOptions, opt.MemoryCeiling)
	case opt.SweepInterval < 0:
		return fmt.Errorf("%w: negative SweepInterval", ErrInvalidOptions)
	}
	return nil
}
