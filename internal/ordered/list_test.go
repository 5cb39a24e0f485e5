package ordered

import (
	"math/rand"
	"sync"
	"testing"
)

// Values come out of PollHead in append order.
func TestList_AppendPollFIFO(t *testing.T) {
	t.Parallel()

	l := New[int](0)
	for i := 0; i < 5; i++ {
		l.Append(i)
	}
	if l.Len() != 5 {
		t.Fatalf("Len want 5, got %d", l.Len())
	}
	for i := 0; i < 5; i++ {
		v, ok := l.PollHead()
		if !ok || v != i {
			t.Fatalf("PollHead want %d, got %d ok=%v", i, v, ok)
		}
	}
	if _, ok := l.PollHead(); ok {
		t.Fatal("PollHead on empty list must report false")
	}
	if err := l.IntegrityCheck(); err != nil {
		t.Fatal(err)
	}
}

// Removing the same handle twice succeeds once; size drops by exactly one.
func TestList_RemoveIdempotent(t *testing.T) {
	t.Parallel()

	l := New[string](0)
	l.Append("a")
	h := l.Append("b")
	l.Append("c")

	if !l.Remove(h) {
		t.Fatal("first Remove must succeed")
	}
	if l.Remove(h) {
		t.Fatal("second Remove must fail")
	}
	if l.Len() != 2 {
		t.Fatalf("Len want 2, got %d", l.Len())
	}
	if l.Remove(Handle[string]{}) {
		t.Fatal("Remove of the null handle must fail")
	}
	if err := l.IntegrityCheck(); err != nil {
		t.Fatal(err)
	}

	v, _ := l.PollHead()
	w, _ := l.PollHead()
	if v != "a" || w != "c" {
		t.Fatalf("remaining order want a,c got %s,%s", v, w)
	}
}

// A handle whose node was recycled must not affect the node's new owner.
func TestList_StaleHandleAfterRecycle(t *testing.T) {
	t.Parallel()

	l := New[int](1)
	h := l.Append(1)
	if _, ok := l.PollHead(); !ok {
		t.Fatal("expected a value")
	}
	// The pool has capacity 1, so this Append reuses the node behind h.
	h2 := l.Append(2)
	if h.n != h2.n {
		t.Skip("node was not recycled; nothing to check")
	}
	if l.Remove(h) || l.MoveToTail(h) {
		t.Fatal("stale handle must be rejected")
	}
	if l.Len() != 1 {
		t.Fatalf("Len want 1, got %d", l.Len())
	}
	if !l.Remove(h2) {
		t.Fatal("live handle must be accepted")
	}
}

// MoveToTail changes poll order.
func TestList_MoveToTail(t *testing.T) {
	t.Parallel()

	l := New[int](0)
	h1 := l.Append(1)
	l.Append(2)
	h3 := l.Append(3)

	if !l.MoveToTail(h1) {
		t.Fatal("MoveToTail must succeed")
	}
	if !l.MoveToTail(h3) {
		t.Fatal("MoveToTail of a middle node must succeed")
	}
	if err := l.IntegrityCheck(); err != nil {
		t.Fatal(err)
	}

	want := []int{2, 1, 3}
	for _, w := range want {
		v, ok := l.PollHead()
		if !ok || v != w {
			t.Fatalf("PollHead want %d, got %d ok=%v", w, v, ok)
		}
	}
	if l.MoveToTail(h1) {
		t.Fatal("MoveToTail of a polled handle must fail")
	}
}

func TestList_Clear(t *testing.T) {
	t.Parallel()

	l := New[int](0)
	hs := make([]Handle[int], 0, 10)
	for i := 0; i < 10; i++ {
		hs = append(hs, l.Append(i))
	}
	l.Clear()
	if l.Len() != 0 {
		t.Fatalf("Len after Clear want 0, got %d", l.Len())
	}
	for _, h := range hs {
		if l.Remove(h) {
			t.Fatal("handles must be stale after Clear")
		}
	}
	l.Append(42)
	if v, ok := l.PollHead(); !ok || v != 42 {
		t.Fatalf("list must be usable after Clear, got %d ok=%v", v, ok)
	}
	if err := l.IntegrityCheck(); err != nil {
		t.Fatal(err)
	}
}

// Concurrent appenders, pollers, removers and movers.
// Should pass under `-race`; the final structure must be consistent.
func TestList_ConcurrentMix(t *testing.T) {
	l := New[int](8)

	const (
		workers = 8
		ops     = 2_000
	)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(id int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(int64(id) * 7919))
			var mine []Handle[int]
			for i := 0; i < ops; i++ {
				switch r.Intn(4) {
				case 0, 1:
					mine = append(mine, l.Append(i))
				case 2:
					l.PollHead()
				default:
					if len(mine) == 0 {
						continue
					}
					j := r.Intn(len(mine))
					if r.Intn(2) == 0 {
						l.Remove(mine[j])
						mine = append(mine[:j], mine[j+1:]...)
					} else {
						l.MoveToTail(mine[j])
					}
				}
			}
		}(w)
	}
	wg.Wait()

	if err := l.IntegrityCheck(); err != nil {
		t.Fatal(err)
	}

	n := l.Len()
	for i := 0; i < n; i++ {
		if _, ok := l.PollHead(); !ok {
			t.Fatalf("expected %d values, ran out at %d", n, i)
		}
	}
	if l.Len() != 0 {
		t.Fatalf("Len want 0 after draining, got %d", l.Len())
	}
}
