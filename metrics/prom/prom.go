package prom

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/depot/cache"
	"github.com/IvanBrykalov/depot/lru"
)

// Adapter implements cache.Metrics and exports Prometheus counters/gauges.
// Safe for concurrent use; all Prometheus metric types are goroutine-safe.
type Adapter struct {
	hits          prometheus.Counter
	misses        prometheus.Counter
	loads         *prometheus.CounterVec
	loadSeconds   prometheus.Histogram
	invalidations prometheus.Counter

	lruHits   prometheus.Counter
	lruMisses prometheus.Counter
	evicts    prometheus.Counter
	sizeEnt   prometheus.Gauge
}

// New constructs a Prometheus metrics adapter.
//   - reg:          registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil)
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		})
	}
	a := &Adapter{
		hits:   counter("hits_total", "Depot reads served from the valid bucket"),
		misses: counter("misses_total", "Depot reads that found no valid entry"),
		loads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "loads_total",
				Help:        "Factory populations by outcome",
				ConstLabels: constLabels,
			},
			[]string{"result"},
		),
		loadSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "load_duration_seconds",
			Help:        "Time spent in the factory per population",
			ConstLabels: constLabels,
			Buckets:     prometheus.ExponentialBuckets(0.0005, 4, 10),
		}),
		invalidations: counter("invalidations_total", "Entries moved to the invalid bucket"),
		lruHits:       counter("lru_hits_total", "Valid bucket LRU hits"),
		lruMisses:     counter("lru_misses_total", "Valid bucket LRU misses"),
		evicts:        counter("evictions_total", "Entries evicted by the valid bucket LRU"),
		sizeEnt: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "size_entries",
			Help:        "Number of entries resident in the valid bucket LRU",
			ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(a.hits, a.misses, a.loads, a.loadSeconds, a.invalidations,
		a.lruHits, a.lruMisses, a.evicts, a.sizeEnt)
	return a
}

// Hit increments the hit counter.
func (a *Adapter) Hit() { a.hits.Inc() }

// Miss increments the miss counter.
func (a *Adapter) Miss() { a.misses.Inc() }

// Load records one factory run and its duration.
func (a *Adapter) Load(elapsed time.Duration, ok bool) {
	a.loads.WithLabelValues(result(ok)).Inc()
	a.loadSeconds.Observe(elapsed.Seconds())
}

// Invalidate increments the invalidation counter.
func (a *Adapter) Invalidate() { a.invalidations.Inc() }

// LRU returns the view of a that plugs into lru.Options.Metrics.
func (a *Adapter) LRU() lru.Metrics { return lruAdapter{a} }

type lruAdapter struct{ a *Adapter }

func (l lruAdapter) Hit()             { l.a.lruHits.Inc() }
func (l lruAdapter) Miss()            { l.a.lruMisses.Inc() }
func (l lruAdapter) Evict()           { l.a.evicts.Inc() }
func (l lruAdapter) Size(entries int) { l.a.sizeEnt.Set(float64(entries)) }

// result maps a load outcome to a stable label value.
func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

// Compile-time check: ensure Adapter implements both metric sets.
var (
	_ cache.Metrics = (*Adapter)(nil)
	_ lru.Metrics   = lruAdapter{}
)
