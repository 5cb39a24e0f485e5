package cache

import (
	"encoding/gob"

	"github.com/puzpuzpuz/xsync/v3"
)

// Stats is a point-in-time copy of the Depot counters.
type Stats struct {
	Gets          int64
	Hits          int64
	Misses        int64
	Populations   int64
	Failures      int64
	Aborts        int64
	Invalidations int64
}

// HitRatio returns Hits/Gets, or 0 before the first read.
func (s Stats) HitRatio() float64 {
	if s.Gets == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Gets)
}

type counters struct {
	gets          *xsync.Counter
	hits          *xsync.Counter
	misses        *xsync.Counter
	populations   *xsync.Counter
	failures      *xsync.Counter
	aborts        *xsync.Counter
	invalidations *xsync.Counter
}

func newCounters() counters {
	return counters{
		gets:          xsync.NewCounter(),
		hits:          xsync.NewCounter(),
		misses:        xsync.NewCounter(),
		populations:   xsync.NewCounter(),
		failures:      xsync.NewCounter(),
		aborts:        xsync.NewCounter(),
		invalidations: xsync.NewCounter(),
	}
}

func (c counters) snapshot() Stats {
	return Stats{
		Gets:          c.gets.Value(),
		Hits:          c.hits.Value(),
		Misses:        c.misses.Value(),
		Populations:   c.populations.Value(),
		Failures:      c.failures.Value(),
		Aborts:        c.aborts.Value(),
		Invalidations: c.invalidations.Value(),
	}
}

func (c counters) reset() {
	c.gets.Reset()
	c.hits.Reset()
	c.misses.Reset()
	c.populations.Reset()
	c.failures.Reset()
	c.aborts.Reset()
	c.invalidations.Reset()
}

type countingWriter int64

func (w *countingWriter) Write(p []byte) (int, error) {
	*w += countingWriter(len(p))
	return len(p), nil
}

// AverageEntrySize gob-encodes up to n valid values and returns their mean
// encoded size in bytes, for capacity planning. Each value is encoded with a
// fresh encoder, so type descriptors are included.
func (d *Depot[K, V]) AverageEntrySize(n int) (float64, error) {
	if n <= 0 {
		return 0, nil
	}

	var (
		total   countingWriter
		sampled int
		err     error
	)
	d.b.valid.Range(func(_ K, w *Wrapper[V]) bool {
		v, ok := w.Value()
		if !ok {
			return true
		}
		if err = gob.NewEncoder(&total).Encode(v); err != nil {
			return false
		}
		sampled++
		return sampled < n
	})
	if err != nil {
		return 0, err
	}
	if sampled == 0 {
		return 0, nil
	}
	return float64(total) / float64(sampled), nil
}
