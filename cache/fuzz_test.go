package cache

import (
	"context"
	"strings"
	"testing"

	"github.com/IvanBrykalov/depot/queue"
)

// Fuzz Put/Get/Invalidate/Remove semantics under arbitrary string inputs.
// Guards against panics and ensures core invariants hold.
// NOTE: We cap key/value lengths to avoid pathological memory usage
// during fuzzing (this does not weaken the invariants we check).
func FuzzDepot_PutGetRemove(f *testing.F) {
	// Seed corpus: empty, ASCII, Unicode, long strings.
	f.Add("", "")
	f.Add("a", "1")
	f.Add("b", "2")
	f.Add("αβγ", "δ")
	f.Add("emoji🙂", "🙂🙂")
	f.Add("long", strings.Repeat("x", 1024))

	f.Fuzz(func(t *testing.T, k, v string) {
		// Cap lengths to keep memory bounded during fuzzing.
		const limit = 1 << 12 // 4096
		if len(k) > limit {
			k = k[:limit]
		}
		if len(v) > limit {
			v = v[:limit]
		}

		d, err := New(Options[string, string]{Queue: queue.Reject{}, ValidCapacity: 16})
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { _ = d.Close() })
		ctx := context.Background()

		// Put -> Get must return the same value.
		d.Put(k, v)
		got, ok := d.GetTimeout(ctx, k, NoWait)
		if !ok || got != v {
			t.Fatalf("after Put/Get: want %q, got %q ok=%v", v, got, ok)
		}

		// Invalidate keeps the value servable as stale.
		if !d.Invalidate(k) {
			t.Fatalf("Invalidate must return true")
		}
		if got, ok := d.GetTimeout(ctx, k, NoWait); !ok || got != v {
			t.Fatalf("after Invalidate: want stale %q, got %q ok=%v", v, got, ok)
		}

		// Remove must delete and return the value once.
		if got, ok := d.Remove(k); !ok || got != v {
			t.Fatalf("Remove: want %q, got %q ok=%v", v, got, ok)
		}
		if _, ok := d.GetTimeout(ctx, k, NoWait); ok {
			t.Fatalf("key must be absent after Remove")
		}
		if err := d.IntegrityCheck(); err != nil {
			t.Fatal(err)
		}
	})
}
