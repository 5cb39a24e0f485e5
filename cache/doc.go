// Package cache provides Depot, a self-healing concurrent cache in front of
// a value factory.
//
// Design
//
//   - Buckets: every cached key has one Wrapper that lives either in the valid
//     or in the invalid bucket. Invalidation moves the same Wrapper, so holders
//     see the validity flip. Each bucket is a store.Store: an LRU (bounded or
//     auto-tuned), a concurrent map, a soft store or a caller-supplied map.
//
//   - Population: a miss or a stale hit registers a per-key retriever and
//     hands one task to a queue.Queue. Concurrent readers of the key join the
//     same retriever, so the factory never runs twice at once for a key.
//
//   - Waiting: readers wait up to their timeout and then take the stale value.
//     When nothing at all is cached the wait is unbounded. NoWait returns the
//     stale value immediately and refreshes in the background.
//
//   - Failures: factory errors are recorded on the Wrapper (Err, Elapsed) and
//     the stale value keeps being served. ErrAbort leaves everything as it was.
//
//   - Expiry: a PerishablesFactory gives values a lifetime; values
//     implementing Perishable report their own. Evict (or SweepInterval)
//     invalidates what has expired. Evictions from a valid LRU become
//     invalidations, never silent deletes.
//
// Basic usage
//
//	pool := queue.NewPool(queue.PoolConfig{Workers: 8, Backlog: 256})
//	defer pool.Close()
//
//	d, err := cache.New(cache.Options[string, []byte]{
//	    Queue:         pool,
//	    ValidCapacity: 10_000,
//	    Factory: cache.FactoryFunc[string, []byte](func(ctx context.Context, k string) ([]byte, error) {
//	        return fetch(ctx, k)
//	    }),
//	    DefaultTimeout: 100 * time.Millisecond,
//	})
//	if err != nil {
//	    return err
//	}
//	defer d.Close()
//
//	v, ok := d.Get(ctx, "key")
//
// Exporting metrics
//
//	m := prom.New(nil, "depot", "users", nil)
//	d, err := cache.New(cache.Options[string, []byte]{
//	    Queue:      pool,
//	    Metrics:    m,
//	    LRUMetrics: m.LRU(),
//	})
package cache
