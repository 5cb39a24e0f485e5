// Package bstats reports Depot and LRU events to a github.com/bool64/stats
// Tracker, labelled with the cache name.
package bstats

import (
	"context"
	"time"

	"github.com/bool64/stats"

	"github.com/IvanBrykalov/depot/cache"
	"github.com/IvanBrykalov/depot/lru"
)

// Metric names.
const (
	MetricHit        = "cache_hit"
	MetricMiss       = "cache_miss"
	MetricLoad       = "cache_load"
	MetricFailed     = "cache_load_failed"
	MetricLoadTime   = "cache_load_seconds"
	MetricInvalidate = "cache_invalidate"
	MetricLRUHit     = "cache_lru_hit"
	MetricLRUMiss    = "cache_lru_miss"
	MetricEvict      = "cache_evict"
	MetricItems      = "cache_items"
)

// Adapter implements cache.Metrics on top of a stats.Tracker.
type Adapter struct {
	st   stats.Tracker
	name string
}

// New returns an adapter that labels every metric with name.
func New(st stats.Tracker, name string) *Adapter {
	if st == nil {
		st = stats.NoOp{}
	}
	return &Adapter{st: st, name: name}
}

func (a *Adapter) add(name string, delta float64) {
	a.st.Add(context.Background(), name, delta, "name", a.name)
}

func (a *Adapter) Hit()  { a.add(MetricHit, 1) }
func (a *Adapter) Miss() { a.add(MetricMiss, 1) }

func (a *Adapter) Load(elapsed time.Duration, ok bool) {
	if ok {
		a.add(MetricLoad, 1)
	} else {
		a.add(MetricFailed, 1)
	}
	a.add(MetricLoadTime, elapsed.Seconds())
}

func (a *Adapter) Invalidate() { a.add(MetricInvalidate, 1) }

// LRU returns the view of a that plugs into lru.Options.Metrics.
func (a *Adapter) LRU() lru.Metrics { return lruAdapter{a} }

type lruAdapter struct{ a *Adapter }

func (l lruAdapter) Hit()   { l.a.add(MetricLRUHit, 1) }
func (l lruAdapter) Miss()  { l.a.add(MetricLRUMiss, 1) }
func (l lruAdapter) Evict() { l.a.add(MetricEvict, 1) }

func (l lruAdapter) Size(entries int) {
	l.a.st.Set(context.Background(), MetricItems, float64(entries), "name", l.a.name)
}

var (
	_ cache.Metrics = (*Adapter)(nil)
	_ lru.Metrics   = lruAdapter{}
)
