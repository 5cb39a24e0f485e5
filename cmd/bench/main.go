// Command bench runs a synthetic workload against a Depot and exposes optional pprof/Prometheus endpoints.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/IvanBrykalov/depot/cache"
	pmet "github.com/IvanBrykalov/depot/metrics/prom"
	"github.com/IvanBrykalov/depot/queue"
)

func main() {
	// ---- Flags ----
	var (
		capacity = flag.Int("cap", 100_000, "valid bucket capacity (entries, 0 = auto-tune)")
		invalid  = flag.Int("invalid_cap", 0, "invalid bucket capacity (0 = unbounded)")
		target   = flag.Float64("target", 0.9, "auto-tune target hit ratio")

		populators = flag.Int("populators", runtime.GOMAXPROCS(0), "population pool workers")
		backlog    = flag.Int("backlog", 1024, "population pool backlog")
		latency    = flag.Duration("latency", time.Millisecond, "simulated factory latency")
		timeout    = flag.Duration("timeout", 5*time.Millisecond, "default wait for a refresh when stale data exists")

		workers  = flag.Int("workers", 2*runtime.GOMAXPROCS(0), "number of worker goroutines")
		duration = flag.Duration("duration", 10*time.Second, "benchmark duration")
		readPct  = flag.Int("reads", 90, "read percentage [0..100]; the rest is split between Put and Invalidate")

		keys    = flag.Int("keys", 1_000_000, "keyspace size")
		zipfS   = flag.Float64("zipf_s", 1.1, "Zipf s > 1 (skew)")
		zipfV   = flag.Float64("zipf_v", 1.0, "Zipf v")
		seed    = flag.Int64("seed", time.Now().UnixNano(), "random seed")
		preload = flag.Int("preload", 0, "preload entries (0 = cap/2)")

		pprofAddr   = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
		metricsAddr = flag.String("http", ":8080", "serve Prometheus metrics at addr")
	)
	flag.Parse()

	// ---- pprof server (on DefaultServeMux) ----
	if *pprofAddr != "" {
		go func() {
			log.Printf("pprof: serving at %s", *pprofAddr)
			log.Println(http.ListenAndServe(*pprofAddr, nil))
		}()
	}

	// ---- Prometheus metrics (on DefaultServeMux) ----
	metrics := pmet.New(nil, "depot", "bench", nil)
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Printf("metrics: serving at %s", *metricsAddr)
		log.Println(http.ListenAndServe(*metricsAddr, nil))
	}()

	// ---- Build depot ----
	pool := queue.NewPool(queue.PoolConfig{Name: "bench", Workers: *populators, Backlog: *backlog})
	defer func() { _ = pool.Close() }()

	lat := *latency
	opt := cache.Options[string, string]{
		Name:            "bench",
		Queue:           pool,
		InvalidCapacity: *invalid,
		DefaultTimeout:  *timeout,
		Metrics:         metrics,
		LRUMetrics:      metrics.LRU(),
		Factory: cache.FactoryFunc[string, string](func(_ context.Context, k string) (string, error) {
			time.Sleep(lat)
			return "v:" + k, nil
		}),
	}
	if *capacity > 0 {
		opt.ValidCapacity = *capacity
	} else {
		opt.AutoTune = true
		opt.TargetHitRatio = *target
	}
	d, err := cache.New(opt)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = d.Close() }()

	// ---- Preload half capacity to get a realistic hit-rate ----
	pl := *preload
	if pl == 0 {
		pl = *capacity / 2
	}
	for i := 0; i < pl; i++ {
		k := "k:" + strconv.Itoa(i)
		d.Put(k, "v:"+k)
	}

	// ---- Snapshot flags for goroutines ----
	readPctVal := *readPct
	writePctVal := readPctVal + (100-readPctVal)/2
	keysMax := uint64(*keys - 1)
	seedBase := *seed
	zipfSVal := *zipfS
	zipfVVal := *zipfV
	workersN := *workers
	if workersN <= 0 {
		workersN = 1
	}

	// ---- Load generation ----
	var reads, writes, invalidations, served, total uint64
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(workersN)
	for w := 0; w < workersN; w++ {
		go func(id int) {
			defer wg.Done()

			// Each worker gets its own RNG + Zipf (rand.Rand is NOT goroutine-safe).
			localR := rand.New(rand.NewSource(seedBase + int64(id)*9973))
			localZipf := rand.NewZipf(localR, zipfSVal, zipfVVal, keysMax)

			keyByZipf := func() string {
				return "k:" + strconv.FormatUint(localZipf.Uint64(), 10)
			}

			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				atomic.AddUint64(&total, 1)
				switch n := int(localR.Int31n(100)); {
				case n < readPctVal:
					atomic.AddUint64(&reads, 1)
					if _, ok := d.Get(context.Background(), keyByZipf()); ok {
						atomic.AddUint64(&served, 1)
					}
				case n < writePctVal:
					atomic.AddUint64(&writes, 1)
					k := keyByZipf()
					d.Put(k, "v:"+k)
				default:
					atomic.AddUint64(&invalidations, 1)
					d.Invalidate(keyByZipf())
				}
			}
		}(w)
	}
	wg.Wait()
	elapsed := time.Since(start)

	// ---- Report ----
	ops := atomic.LoadUint64(&total)
	st := d.Stats()

	fmt.Printf("cap=%d invalid_cap=%d workers=%d populators=%d keys=%d dur=%v seed=%d\n",
		*capacity, *invalid, workersN, *populators, *keys, elapsed, seedBase)
	fmt.Printf("ops=%d (%.0f ops/s)  reads=%d  puts=%d  invalidations=%d  served=%d\n",
		ops, float64(ops)/elapsed.Seconds(), atomic.LoadUint64(&reads), atomic.LoadUint64(&writes),
		atomic.LoadUint64(&invalidations), atomic.LoadUint64(&served))
	fmt.Printf("hits=%d  misses=%d  hit-rate=%.2f%%  populations=%d  failures=%d\n",
		st.Hits, st.Misses, st.HitRatio()*100, st.Populations, st.Failures)
	fmt.Printf("Len()=%d  InvalidLen()=%d\n", d.Len(), d.InvalidLen())
}
