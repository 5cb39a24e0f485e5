package lru

import (
	"github.com/bool64/ctxd"

	"github.com/IvanBrykalov/depot/store"
)

// Metrics exposes LRU-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
type Metrics interface {
	Hit()
	Miss()
	Evict()
	Size(entries int)
}

// NoopMetrics is a drop-in Metrics implementation that does nothing.
type NoopMetrics struct{}

func (NoopMetrics) Hit()     {}
func (NoopMetrics) Miss()    {}
func (NoopMetrics) Evict()   {}
func (NoopMetrics) Size(int) {}

var _ Metrics = NoopMetrics{}

// Options configures a Cache. Zero values are safe; defaults are applied in New():
//   - MaxSize <= 0        => auto-tuned bound starting at InitialSize
//   - nil Store           => store.Concurrent
//   - TargetHitRatio == 0 => 0.8
//   - MemoryCeiling == 0  => 0.9
//   - nil MemoryUsage     => heap in use relative to the runtime memory limit
//   - Window <= 1         => 16
//   - nil Dispatcher      => a private dispatcher with 4 workers
//   - nil Metrics/Logger  => no-op
type Options[K comparable, V any] struct {
	// Name is added to logs.
	Name string

	// MaxSize is the guaranteed-resident entry count; <= 0 enables auto-tune.
	MaxSize int

	// Store is the backing map. It must be safe for concurrent reads and must
	// not drop entries on its own.
	Store store.Store[K, *Entry[K, V]]

	// PoolSize bounds the ordered list's recycled node pool (0 = auto).
	PoolSize int

	// ---- auto-tune ----

	// InitialSize is the starting bound when auto-tuning (default 1024).
	InitialSize int
	// TargetHitRatio is the hit ratio auto-tune steers toward, in (0, 1].
	TargetHitRatio float64
	// MemoryCeiling freezes the bound once MemoryUsage reaches it, in (0, 1].
	MemoryCeiling float64
	// MemoryUsage reports memory utilization in [0, 1].
	MemoryUsage func() float64
	// Window is the number of samples the hit-ratio tangent is computed over.
	Window int

	// ---- notifications & observability ----

	// Dispatcher runs expiration listeners; share one between caches to bound
	// the total number of concurrently running listeners.
	Dispatcher *Dispatcher
	Metrics    Metrics
	Logger     ctxd.Logger
}
