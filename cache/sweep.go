package cache

import (
	"context"
	"time"
)

// Evict invalidates every valid entry whose factory-assigned expiry has
// passed and returns their number. It is what the sweeper runs; call it
// directly to drive expiry from an external scheduler.
func (d *Depot[K, V]) Evict() int {
	return d.evictAt(time.Now())
}

func (d *Depot[K, V]) evictAt(now time.Time) int {
	var due []K
	d.expiry.Range(func(k K, at time.Time) bool {
		if !now.Before(at) {
			due = append(due, k)
		}
		return true
	})

	ctx := context.Background()
	n := 0
	for _, k := range due {
		unlock := d.b.lock(k)
		w, valid := d.b.peekLocked(k)
		moved := false
		if valid && !w.fresh(now) {
			_, moved = d.b.invalidateLocked(k)
		}
		unlock()

		d.expiry.Compute(k, func(at time.Time, loaded bool) (time.Time, bool) {
			// Keep a deadline refreshed by a newer population.
			return at, !loaded || !now.Before(at)
		})

		if moved {
			n++
			d.invalidated(ctx, k)
		}
	}

	if n > 0 {
		d.log.Debug(ctx, "swept expired cache entries", "name", d.opt.Name, "count", n)
	}
	return n
}

// sweep runs Evict every interval until Close.
func (d *Depot[K, V]) sweep(interval time.Duration) {
	defer close(d.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stop:
			return
		case now := <-ticker.C:
			d.evictAt(now)
		}
	}
}
