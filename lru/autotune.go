package lru

import (
	"math"
	"runtime"
	"runtime/debug"

	"github.com/gammazero/deque"
)

const (
	// damping scales every proportional step toward the target.
	damping = 0.9
	// maxShrink is the largest accepted downward move, as a fraction of the bound.
	maxShrink = 0.1
	// maxGrowth caps an upward move at this multiple of the bound.
	maxGrowth = 2.0
	// probeStep is the upward move tried when the window shows no size change.
	probeStep = 0.1
)

// Sample is one observation of the cache: hit ratio at a given occupancy.
type Sample struct {
	Ratio float64
	Size  int
}

// Tune computes the next size bound from a window of samples (oldest first).
// It returns false when the bound should stay as it is.
//
// The tangent is the discrete derivative of hit ratio with respect to size
// between the oldest and the newest sample. The bound moves by a damped
// proportional step toward the size expected to close the gap between the
// newest ratio and target. Upward moves are capped at maxGrowth times the
// bound; downward moves larger than maxShrink of the bound are rejected.
//
// A window without size movement gives no tangent: if the cache is full and
// still below target, the bound is probed upward by probeStep.
func Tune(samples []Sample, target float64, current int) (int, bool) {
	if len(samples) < 2 || current < 1 {
		return current, false
	}
	first, last := samples[0], samples[len(samples)-1]
	gap := target - last.Ratio

	dSize := last.Size - first.Size
	if dSize == 0 {
		if gap > 0 && last.Size >= current {
			return clampGrowth(current, float64(current)*probeStep), true
		}
		return current, false
	}

	tangent := (last.Ratio - first.Ratio) / float64(dSize)
	if tangent <= 0 || math.IsNaN(tangent) || math.IsInf(tangent, 0) {
		return current, false
	}

	step := damping * gap / tangent
	if math.IsNaN(step) || math.IsInf(step, 0) {
		return current, false
	}

	if step < 0 {
		if -step > float64(current)*maxShrink {
			return current, false
		}
		next := current + int(step)
		if next < 1 {
			next = 1
		}
		return next, next != current
	}

	next := clampGrowth(current, step)
	return next, next != current
}

func clampGrowth(current int, step float64) int {
	limit := float64(current) * maxGrowth
	next := float64(current) + step
	if next > limit {
		next = limit
	}
	if next < float64(current)+1 {
		next = float64(current) + 1
	}
	return int(next)
}

// tuner carries the mutable auto-tune state. Guarded by Cache.putMu.
type tuner struct {
	window  *deque.Deque[Sample]
	size    int
	target  float64
	ceiling float64
	usage   func() float64
	puts    int
	frozen  bool
}

func newTuner(size int, target, ceiling float64, usage func() float64) *tuner {
	return &tuner{
		window:  deque.New[Sample](size),
		size:    size,
		target:  target,
		ceiling: ceiling,
		usage:   usage,
	}
}

// observe records s and reports whether the window is full.
func (t *tuner) observe(s Sample) bool {
	t.window.PushBack(s)
	for t.window.Len() > t.size {
		t.window.PopFront()
	}
	return t.window.Len() == t.size
}

func (t *tuner) samples() []Sample {
	out := make([]Sample, t.window.Len())
	for i := range out {
		out[i] = t.window.At(i)
	}
	return out
}

// pressure samples memory utilization once per window of puts.
func (t *tuner) pressure() bool {
	t.puts++
	if t.puts%t.size != 0 {
		return false
	}
	return t.usage() >= t.ceiling
}

// heapUsage reports heap in use relative to the runtime soft memory limit.
// Without a limit there is no ceiling to measure against and it reports 0.
func heapUsage() float64 {
	limit := debug.SetMemoryLimit(-1)
	if limit <= 0 || limit == math.MaxInt64 {
		return 0
	}

	m := runtime.MemStats{}
	runtime.ReadMemStats(&m)

	return float64(m.HeapInuse) / float64(limit)
}
