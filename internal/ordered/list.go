// Package ordered implements a concurrent doubly linked list with O(1)
// append, poll-from-head and removal by handle.
//
// Design
//
//   - Two locks: headMu guards the poll path, tailMu guards the append path.
//     A producer appending at the tail and a consumer polling the head do not
//     contend unless the list holds a single element.
//
//   - Removal of an arbitrary node (and MoveToTail) takes both locks in a
//     fixed order: tailMu, then headMu. Every path that needs both uses the
//     same order.
//
//   - A sentinel head node removes the empty-list special cases. The tail
//     pointer refers to the sentinel when the list is empty.
//
//   - next links are atomic pointers: the only field both ends may touch
//     concurrently is the last node's next link (appender writes it, poller
//     reads it to learn whether the polled node is the last one).
//
//   - Nodes are recycled through a bounded free list. Each recycle bumps the
//     node generation, so handles that outlived their node are rejected.
package ordered

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/IvanBrykalov/depot/internal/util"
)

type node[T any] struct {
	value   T
	prev    *node[T]
	next    atomic.Pointer[node[T]]
	gen     uint64
	removed bool
}

// Handle identifies an appended value. The zero Handle is the null handle.
type Handle[T any] struct {
	n   *node[T]
	gen uint64
}

// IsZero reports whether h is the null handle.
func (h Handle[T]) IsZero() bool { return h.n == nil }

// List is a concurrent ordered list. Head is the oldest element, tail the newest.
// All methods are safe for concurrent use.
type List[T any] struct {
	// ---- poll side ----
	headMu sync.Mutex
	head   node[T] // sentinel

	_ util.CacheLinePad

	// ---- append side ----
	tailMu sync.Mutex
	tail   *node[T]

	size util.PaddedAtomicInt64
	pool chan *node[T]
}

// New creates an empty list whose node pool holds up to poolSize recycled nodes.
// poolSize <= 0 picks 4*GOMAXPROCS.
func New[T any](poolSize int) *List[T] {
	if poolSize <= 0 {
		poolSize = 4 * runtime.GOMAXPROCS(0)
	}
	l := &List[T]{pool: make(chan *node[T], poolSize)}
	l.tail = &l.head
	return l
}

// Append adds v at the tail and returns its handle.
func (l *List[T]) Append(v T) Handle[T] {
	n := l.borrow()
	n.value = v

	l.tailMu.Lock()
	l.linkLastLocked(n)
	h := Handle[T]{n: n, gen: n.gen}
	l.tailMu.Unlock()

	return h
}

// PollHead removes and returns the oldest value. It returns false on an
// empty list without blocking.
func (l *List[T]) PollHead() (T, bool) {
	l.headMu.Lock()
	first := l.head.next.Load()
	if first == nil {
		l.headMu.Unlock()
		var zero T
		return zero, false
	}
	if next := first.next.Load(); next != nil {
		// first is not the last node: the append side cannot touch it.
		l.head.next.Store(next)
		next.prev = &l.head
		l.size.Add(-1)
		v := l.retireLocked(first)
		l.headMu.Unlock()
		return v, true
	}
	l.headMu.Unlock()

	// Single-node case: the tail pointer moves, so both locks are needed.
	l.tailMu.Lock()
	l.headMu.Lock()
	defer l.tailMu.Unlock()
	defer l.headMu.Unlock()

	first = l.head.next.Load()
	if first == nil {
		var zero T
		return zero, false
	}
	l.unlinkLocked(first)
	return l.retireLocked(first), true
}

// Remove detaches the value behind h. It returns false for the null handle,
// an already removed handle, a handle of a recycled node or an empty list.
func (l *List[T]) Remove(h Handle[T]) bool {
	if h.n == nil {
		return false
	}
	l.tailMu.Lock()
	l.headMu.Lock()
	defer l.tailMu.Unlock()
	defer l.headMu.Unlock()

	if !l.liveLocked(h) {
		return false
	}
	l.unlinkLocked(h.n)
	l.retireLocked(h.n)
	return true
}

// MoveToTail re-appends the node behind h at the tail, keeping the handle
// valid. It returns false under the same conditions as Remove.
func (l *List[T]) MoveToTail(h Handle[T]) bool {
	if h.n == nil {
		return false
	}
	l.tailMu.Lock()
	l.headMu.Lock()
	defer l.tailMu.Unlock()
	defer l.headMu.Unlock()

	if !l.liveLocked(h) {
		return false
	}
	if l.tail == h.n {
		return true
	}
	l.unlinkLocked(h.n)
	l.linkLastLocked(h.n)
	return true
}

// Len returns a best-effort element count.
func (l *List[T]) Len() int {
	return int(l.size.Load())
}

// Clear removes every element. Handles issued before Clear become stale.
func (l *List[T]) Clear() {
	l.tailMu.Lock()
	l.headMu.Lock()
	defer l.tailMu.Unlock()
	defer l.headMu.Unlock()

	for n := l.head.next.Load(); n != nil; {
		next := n.next.Load()
		l.unlinkLocked(n)
		l.retireLocked(n)
		n = next
	}
}

// IntegrityCheck walks the list forward and backward and verifies the
// doubly linked invariant and the element count. Intended for tests.
func (l *List[T]) IntegrityCheck() error {
	l.tailMu.Lock()
	l.headMu.Lock()
	defer l.tailMu.Unlock()
	defer l.headMu.Unlock()

	size := int(l.size.Load())

	forward := 0
	last := &l.head
	for n := l.head.next.Load(); n != nil; n = n.next.Load() {
		if n.prev != last {
			return fmt.Errorf("ordered: broken back link at position %d", forward)
		}
		if n.removed {
			return fmt.Errorf("ordered: removed node linked at position %d", forward)
		}
		last = n
		forward++
	}
	if last != l.tail {
		return fmt.Errorf("ordered: tail pointer does not match last node")
	}

	backward := 0
	for n := l.tail; n != &l.head; n = n.prev {
		if n == nil {
			return fmt.Errorf("ordered: backward walk fell off the list after %d nodes", backward)
		}
		backward++
		if backward > forward {
			return fmt.Errorf("ordered: backward walk longer than forward walk (%d)", forward)
		}
	}

	if forward != size || backward != size {
		return fmt.Errorf("ordered: size %d, forward %d, backward %d", size, forward, backward)
	}
	return nil
}

// -------------------- internals --------------------

// linkLastLocked appends n after the tail. tailMu must be held.
func (l *List[T]) linkLastLocked(n *node[T]) {
	n.prev = l.tail
	n.removed = false
	n.next.Store(nil)
	l.tail.next.Store(n)
	l.tail = n
	l.size.Add(1)
}

// unlinkLocked detaches n. Both locks must be held.
func (l *List[T]) unlinkLocked(n *node[T]) {
	prev := n.prev
	next := n.next.Load()
	prev.next.Store(next)
	if next != nil {
		next.prev = prev
	} else {
		l.tail = prev
	}
	l.size.Add(-1)
}

// retireLocked marks n removed, returns its value and recycles it.
func (l *List[T]) retireLocked(n *node[T]) T {
	v := n.value
	n.removed = true
	l.release(n)
	return v
}

func (l *List[T]) liveLocked(h Handle[T]) bool {
	return h.n.gen == h.gen && !h.n.removed && l.size.Load() > 0
}

func (l *List[T]) borrow() *node[T] {
	select {
	case n := <-l.pool:
		return n
	default:
		return &node[T]{}
	}
}

func (l *List[T]) release(n *node[T]) {
	var zero T
	n.value = zero
	n.prev = nil
	n.next.Store(nil)
	n.gen++
	select {
	case l.pool <- n:
	default:
		// Pool full: let the GC take it.
	}
}
