package cache

import (
	"context"
	"math/rand"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// A mixed workload of concurrent Get/Put/Invalidate/Remove/Cancel on a small
// keyspace over bounded buckets. Should pass under `-race`; the factory must
// never run twice at once for a key and the buckets must stay consistent.
func TestRace_Mixed(t *testing.T) {
	inflight := xsync.NewMapOf[string, *atomic.Int32]()
	var overlaps atomic.Int64

	d := newDepot(t, Options[string, []byte]{
		ValidCapacity:   64,
		InvalidCapacity: 64,
		DefaultTimeout:  20 * time.Millisecond,
		Factory: FactoryFunc[string, []byte](func(_ context.Context, k string) ([]byte, error) {
			n, _ := inflight.LoadOrCompute(k, func() *atomic.Int32 { return new(atomic.Int32) })
			if n.Add(1) > 1 {
				overlaps.Add(1)
			}
			defer n.Add(-1)
			time.Sleep(time.Duration(rand.Intn(200)) * time.Microsecond)
			return []byte(k), nil
		}),
	})

	workers := 4 * runtime.GOMAXPROCS(0)
	keyspace := 256
	deadline := time.Now().Add(time.Second)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(id int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)*9973))
			ctx := context.Background()
			for time.Now().Before(deadline) {
				k := "k:" + strconv.Itoa(r.Intn(keyspace))
				switch r.Intn(100) {
				case 0, 1: // ~2%: Remove
					d.Remove(k)
				case 2, 3: // ~2%: Cancel
					d.Cancel(k)
				case 4, 5, 6, 7, 8: // ~5%: Invalidate
					d.Invalidate(k)
				case 9, 10, 11, 12, 13: // ~5%: Put
					d.Put(k, []byte(k))
				default: // ~86%: Get
					if v, ok := d.GetTimeout(ctx, k, NoWait); ok && string(v) != k {
						t.Errorf("key %s holds %q", k, v)
					}
				}
			}
		}(w)
	}
	wg.Wait()

	if n := overlaps.Load(); n != 0 {
		t.Fatalf("factory ran concurrently for the same key %d times", n)
	}
	if err := d.IntegrityCheck(); err != nil {
		t.Fatal(err)
	}
}

// One hundred goroutines read the same cold key at once.
// The factory should run exactly once.
func TestRace_ColdKey(t *testing.T) {
	var calls int64

	d := newDepot(t, Options[string, string]{
		Factory: FactoryFunc[string, string](func(_ context.Context, k string) (string, error) {
			atomic.AddInt64(&calls, 1)
			time.Sleep(2 * time.Millisecond) // simulate I/O
			return "v:" + k, nil
		}),
	})

	const goroutines = 100
	key := "same-key"

	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(goroutines)

	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			<-start
			v, ok := d.Get(context.Background(), key)
			if !ok || v != "v:"+key {
				t.Errorf("unexpected value: %q ok=%v", v, ok)
			}
		}()
	}

	close(start)
	wg.Wait()

	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Fatalf("factory should run once, got %d", got)
	}

	// Subsequent call should be a pure cache hit.
	if v, ok := d.GetTimeout(context.Background(), key, NoWait); !ok || v != "v:"+key {
		t.Fatalf("second Get failed: v=%q ok=%v", v, ok)
	}
}
