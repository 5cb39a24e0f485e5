package lru

import (
	"math/rand"
	"sort"
	"strconv"
	"sync"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/depot/store"
)

func newFixed[V any](t *testing.T, max int) *Cache[string, V] {
	t.Helper()
	c := New(Options[string, V]{MaxSize: max})
	t.Cleanup(c.Close)
	return c
}

// Bound 2: the first of three inserted keys is evicted.
func TestCache_BoundEvictsOldest(t *testing.T) {
	t.Parallel()

	c := newFixed[int](t, 2)
	c.Put("A", 1)
	c.Put("B", 2)
	c.Put("C", 3)

	if c.Contains("A") {
		t.Fatal("A must be evicted")
	}
	if !c.Contains("B") || !c.Contains("C") {
		t.Fatal("B and C must be resident")
	}
	if c.Len() != 2 {
		t.Fatalf("Len want 2, got %d", c.Len())
	}
	if err := c.IntegrityCheck(); err != nil {
		t.Fatal(err)
	}
}

// Get moves a key to the fresh end and changes the eviction order.
func TestCache_GetPromotes(t *testing.T) {
	t.Parallel()

	c := newFixed[int](t, 3)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)

	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("Get(a) want 1, got %d ok=%v", v, ok)
	}
	c.Put("d", 4)

	if c.Contains("b") {
		t.Fatal("b must be evicted after a was touched")
	}
	for _, k := range []string{"a", "c", "d"} {
		if !c.Contains(k) {
			t.Fatalf("%s must be resident", k)
		}
	}
}

// Without reads, evicted keys are exactly the least recently inserted ones.
func TestCache_EvictsInInsertionOrder(t *testing.T) {
	t.Parallel()

	const n = 5
	c := newFixed[int](t, n)

	var (
		mu      sync.Mutex
		evicted []string
	)
	c.AddListener(ListenerFunc[string, int](func(e Entry[string, int]) {
		mu.Lock()
		evicted = append(evicted, e.Key)
		mu.Unlock()
	}))

	for i := 0; i < 3*n; i++ {
		c.Put(strconv.Itoa(i), i)
	}
	c.Close()

	mu.Lock()
	defer mu.Unlock()
	sort.Slice(evicted, func(i, j int) bool {
		a, _ := strconv.Atoi(evicted[i])
		b, _ := strconv.Atoi(evicted[j])
		return a < b
	})
	if len(evicted) != 2*n {
		t.Fatalf("want %d evictions, got %d", 2*n, len(evicted))
	}
	for i, k := range evicted {
		if k != strconv.Itoa(i) {
			t.Fatalf("eviction %d want key %d, got %s", i, i, k)
		}
	}
}

func TestCache_ReplaceKeepsSingleHandle(t *testing.T) {
	t.Parallel()

	c := newFixed[int](t, 4)
	c.Put("a", 1)
	old, replaced := c.Put("a", 2)
	if !replaced || old != 1 {
		t.Fatalf("Put want replaced old=1, got %d %v", old, replaced)
	}
	if v, _ := c.Get("a"); v != 2 {
		t.Fatalf("Get want 2, got %d", v)
	}
	if err := c.IntegrityCheck(); err != nil {
		t.Fatal(err)
	}
}

// nil values are present entries.
func TestCache_NilValue(t *testing.T) {
	t.Parallel()

	c := newFixed[*int](t, 4)
	c.Put("nil", nil)

	v, ok := c.Get("nil")
	if !ok || v != nil {
		t.Fatalf("Get want (nil, true), got (%v, %v)", v, ok)
	}
	if !c.Contains("nil") {
		t.Fatal("nil value must be reported as present")
	}
	if _, ok := c.Remove("nil"); !ok {
		t.Fatal("Remove must find the nil entry")
	}
	if c.Contains("nil") {
		t.Fatal("removed entry must be gone")
	}
}

func TestCache_RemoveAndClear(t *testing.T) {
	t.Parallel()

	c := newFixed[int](t, 10)
	for i := 0; i < 5; i++ {
		c.Put(strconv.Itoa(i), i)
	}

	v, ok := c.Remove("3")
	if !ok || v != 3 {
		t.Fatalf("Remove want 3, got %d ok=%v", v, ok)
	}
	if _, ok := c.Remove("3"); ok {
		t.Fatal("second Remove must report false")
	}
	if err := c.IntegrityCheck(); err != nil {
		t.Fatal(err)
	}

	keys := c.Keys()
	if len(keys) != 4 {
		t.Fatalf("Keys want 4, got %v", keys)
	}

	c.Clear()
	if c.Len() != 0 {
		t.Fatalf("Len after Clear want 0, got %d", c.Len())
	}
	if err := c.IntegrityCheck(); err != nil {
		t.Fatal(err)
	}
}

func TestCache_HitRatio(t *testing.T) {
	t.Parallel()

	c := newFixed[int](t, 4)
	c.Put("a", 1)
	c.Get("a")
	c.Get("a")
	c.Get("a")
	c.Get("missing")

	if r := c.HitRatio(); r != 0.75 {
		t.Fatalf("HitRatio want 0.75, got %v", r)
	}
	c.ResetStats()
	if r := c.HitRatio(); r != 0 {
		t.Fatalf("HitRatio after reset want 0, got %v", r)
	}
}

func TestCache_SetMaxSizeShrinks(t *testing.T) {
	t.Parallel()

	c := newFixed[int](t, 10)
	for i := 0; i < 10; i++ {
		c.Put(strconv.Itoa(i), i)
	}
	c.SetMaxSize(3)

	if c.Len() != 3 || c.MaxSize() != 3 {
		t.Fatalf("want 3 entries and bound 3, got %d and %d", c.Len(), c.MaxSize())
	}
	for _, k := range []string{"7", "8", "9"} {
		if !c.Contains(k) {
			t.Fatalf("%s must survive the shrink", k)
		}
	}
}

// Every registered listener sees each eviction once; a panicking listener
// does not affect the others.
func TestCache_ListenersIsolated(t *testing.T) {
	t.Parallel()

	c := New(Options[string, int]{MaxSize: 1})

	var got sync.Map
	c.AddListener(ListenerFunc[string, int](func(Entry[string, int]) { panic("listener") }))
	c.AddListener(ListenerFunc[string, int](func(e Entry[string, int]) {
		if _, loaded := got.LoadOrStore(e.Key, e.Value); loaded {
			t.Errorf("key %s notified twice", e.Key)
		}
	}))
	removed := c.AddListener(ListenerFunc[string, int](func(Entry[string, int]) {
		t.Error("removed listener must not be called")
	}))
	if !c.RemoveListener(removed) {
		t.Fatal("RemoveListener must find the listener")
	}

	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)
	c.Close()

	for k, want := range map[string]int{"a": 1, "b": 2} {
		v, ok := got.Load(k)
		if !ok || v.(int) != want {
			t.Fatalf("eviction of %s not delivered (got %v)", k, v)
		}
	}
}

// Works on top of a non-concurrent store when guarded by Synchronized.
func TestCache_SynchronizedStore(t *testing.T) {
	t.Parallel()

	st := store.NewSynchronized[string, *Entry[string, int]](store.NewMap[string, *Entry[string, int]](0))
	c := New(Options[string, int]{MaxSize: 8, Store: st})
	t.Cleanup(c.Close)

	for i := 0; i < 20; i++ {
		c.Put(strconv.Itoa(i), i)
	}
	if c.Len() != 8 {
		t.Fatalf("Len want 8, got %d", c.Len())
	}
	if err := c.IntegrityCheck(); err != nil {
		t.Fatal(err)
	}
}

// Concurrent puts, gets and removes keep store and list in step and respect
// the bound.
func TestCache_ConcurrentIntegrity(t *testing.T) {
	const (
		bound   = 64
		workers = 8
		ops     = 3_000
	)
	c := New(Options[int, int]{MaxSize: bound})
	t.Cleanup(c.Close)

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			r := rand.New(rand.NewSource(int64(w) + 1))
			for i := 0; i < ops; i++ {
				k := r.Intn(256)
				switch r.Intn(4) {
				case 0, 1:
					c.Put(k, i)
				case 2:
					c.Get(k)
				default:
					c.Remove(k)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	if c.Len() > bound {
		t.Fatalf("Len %d exceeds bound %d", c.Len(), bound)
	}
	if err := c.IntegrityCheck(); err != nil {
		t.Fatal(err)
	}
}

// Auto-tune grows a full cache that stays below its target hit ratio.
func TestCache_AutoTuneGrows(t *testing.T) {
	t.Parallel()

	c := New(Options[int, int]{
		InitialSize: 8,
		Window:      4,
		MemoryUsage: func() float64 { return 0 },
	})
	t.Cleanup(c.Close)

	if !c.AutoTuned() {
		t.Fatal("zero MaxSize must enable auto-tune")
	}
	for i := 0; i < 100; i++ {
		c.Put(i, i)
	}
	if c.MaxSize() <= 8 {
		t.Fatalf("bound must grow past 8, got %d", c.MaxSize())
	}
	if c.Len() > c.MaxSize() {
		t.Fatalf("Len %d exceeds bound %d", c.Len(), c.MaxSize())
	}
}

// Memory pressure freezes the bound at the current occupancy for good.
func TestCache_MemoryPressureFreezes(t *testing.T) {
	t.Parallel()

	c := New(Options[int, int]{
		InitialSize: 10,
		Window:      4,
		MemoryUsage: func() float64 { return 1 },
	})
	t.Cleanup(c.Close)

	for i := 0; i < 4; i++ {
		c.Put(i, i)
	}
	if c.AutoTuned() {
		t.Fatal("auto-tune must be frozen")
	}
	if c.MaxSize() != 4 {
		t.Fatalf("bound want 4, got %d", c.MaxSize())
	}

	for i := 4; i < 50; i++ {
		c.Put(i, i)
	}
	if c.MaxSize() != 4 || c.Len() != 4 {
		t.Fatalf("frozen bound must hold: bound %d, len %d", c.MaxSize(), c.Len())
	}
}
