package queue

import (
	"sync/atomic"
	"testing"
	"time"
)

type funcTask struct {
	service  func()
	canceled atomic.Bool
}

func (t *funcTask) Service() { t.service() }
func (t *funcTask) Cancel()  { t.canceled.Store(true) }

func TestPool_RunsAcceptedTasks(t *testing.T) {
	t.Parallel()

	p := NewPool(PoolConfig{Workers: 2, Backlog: 8})
	t.Cleanup(func() { _ = p.Close() })

	var ran atomic.Int64
	done := make(chan struct{}, 10)
	for i := 0; i < 10; i++ {
		ok := p.Enqueue(&funcTask{service: func() {
			ran.Add(1)
			done <- struct{}{}
		}})
		if !ok {
			t.Fatalf("task %d rejected", i)
		}
	}
	for i := 0; i < 10; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d tasks ran", ran.Load())
		}
	}
}

// With all workers busy and no backlog, Enqueue rejects without blocking.
func TestPool_RejectsWhenFull(t *testing.T) {
	t.Parallel()

	p := NewPool(PoolConfig{Workers: 1})
	t.Cleanup(func() { _ = p.Close() })

	release := make(chan struct{})
	started := make(chan struct{})
	if !p.Enqueue(&funcTask{service: func() {
		close(started)
		<-release
	}}) {
		t.Fatal("first task must be accepted")
	}
	<-started

	if p.Enqueue(&funcTask{service: func() {}}) {
		t.Fatal("second task must be rejected")
	}
	close(release)
}

// Close cancels tasks waiting for a worker and rejects new ones.
func TestPool_CloseCancelsWaiting(t *testing.T) {
	t.Parallel()

	p := NewPool(PoolConfig{Workers: 1, Backlog: 1})

	release := make(chan struct{})
	started := make(chan struct{})
	p.Enqueue(&funcTask{service: func() {
		close(started)
		<-release
	}})
	<-started

	waiting := &funcTask{service: func() { t.Error("waiting task must not run") }}
	if !p.Enqueue(waiting) {
		t.Fatal("backlog slot must accept the task")
	}

	closed := make(chan error)
	go func() { closed <- p.Close() }()

	// Give Close a moment to cancel the waiting task, then let the running one finish.
	time.Sleep(20 * time.Millisecond)
	close(release)

	if err := <-closed; err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !waiting.canceled.Load() {
		t.Fatal("waiting task must be canceled")
	}
	if p.Enqueue(&funcTask{service: func() {}}) {
		t.Fatal("closed pool must reject")
	}
	if err := p.Close(); err != ErrClosed {
		t.Fatalf("second Close want ErrClosed, got %v", err)
	}
}

// A panicking task does not take the pool down.
func TestPool_RecoversPanics(t *testing.T) {
	t.Parallel()

	p := NewPool(PoolConfig{Workers: 1, Backlog: 1})
	t.Cleanup(func() { _ = p.Close() })

	p.Enqueue(&funcTask{service: func() { panic("boom") }})

	done := make(chan struct{})
	deadline := time.Now().Add(2 * time.Second)
	for !p.Enqueue(&funcTask{service: func() { close(done) }}) {
		if time.Now().After(deadline) {
			t.Fatal("pool never accepted a task after the panic")
		}
		time.Sleep(time.Millisecond)
	}
	<-done
}

func TestDirectAndReject(t *testing.T) {
	t.Parallel()

	var ran bool
	if !(Direct{}).Enqueue(&funcTask{service: func() { ran = true }}) || !ran {
		t.Fatal("Direct must run the task inline")
	}
	if (Reject{}).Enqueue(&funcTask{service: func() { t.Error("must not run") }}) {
		t.Fatal("Reject must reject")
	}
}
