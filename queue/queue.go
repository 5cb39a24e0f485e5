// Package queue provides task-execution services for the Depot.
//
// The Depot only needs two things from a Queue: whether a task was accepted,
// and that an accepted task's Service eventually runs on some goroutine (or
// its Cancel is called if the queue shuts down first).
package queue

// Task is a unit of work run by a Queue.
type Task interface {
	// Service runs the task.
	Service()
	// Cancel is called instead of Service when an accepted task is dropped.
	Cancel()
}

// Queue accepts tasks for asynchronous execution.
type Queue interface {
	// Enqueue hands t over for execution. It never blocks; false means the
	// task was rejected and will not run.
	Enqueue(t Task) bool
}

// SentinelError is an error.
type SentinelError string

// Error implements error.
func (e SentinelError) Error() string {
	return string(e)
}

// ErrClosed indicates the pool no longer accepts tasks.
const ErrClosed = SentinelError("queue is closed")

// Direct runs every task synchronously on the enqueuing goroutine.
type Direct struct{}

// Enqueue runs t and reports acceptance.
func (Direct) Enqueue(t Task) bool {
	t.Service()
	return true
}

// Reject accepts nothing. Useful to force the fallback paths of a caller.
type Reject struct{}

// Enqueue always returns false.
func (Reject) Enqueue(Task) bool { return false }

var (
	_ Queue = Direct{}
	_ Queue = Reject{}
	_ Queue = (*Pool)(nil)
)
