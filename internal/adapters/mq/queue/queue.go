// Package queue holds pending client-side sync tasks in submission order.
//
// Enqueue never blocks: a full or closed queue rejects the task and the
// caller decides what to do with it.
package queue

import (
	"context"
	"sync"

	"github.com/okian/shopstudy/pkg/metrics"
)

const defaultQueueCapacity = 1024

// Task is one deferred call to the study API.
type Task struct {
	// Name labels the operation in logs, metrics and diagnostics.
	Name string
	// Key is set for one-shot operations and empty for repeatable ones.
	Key string
	// Run performs the call.
	Run func(ctx context.Context) error
}

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a task. It returns ErrFull or ErrClosed when the task was
	// not accepted.
	Enqueue(ctx context.Context, t Task) error

	// Dequeue returns a channel that yields tasks in FIFO order. The channel
	// is closed once the queue is closed and drained, or ctx is done.
	Dequeue(ctx context.Context) <-chan Task

	// Len returns the number of pending tasks.
	Len() int

	// Close stops accepting tasks. Pending tasks are still delivered.
	Close() error

	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	tasks    chan Task
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.tasks = make(chan Task, q.capacity)
	metrics.UpdateSyncQueueSize(0)
	return q
}

// Enqueue adds a task to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, t Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordErrorByComponent("queue", "closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return err
	}

	select {
	case q.tasks <- t:
		metrics.UpdateSyncQueueSize(len(q.tasks))
		return nil
	default:
		metrics.RecordErrorByComponent("queue", "queue_full")
		return ErrFull
	}
}

// Dequeue returns a channel that will receive tasks as they become available.
// A single consumer preserves submission order.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Task {
	out := make(chan Task)
	go func() {
		defer close(out)
		for {
			var (
				t  Task
				ok bool
			)
			select {
			case t, ok = <-q.tasks:
				if !ok {
					return
				}
			case <-ctx.Done():
				return
			}
			select {
			case out <- t:
				metrics.UpdateSyncQueueSize(len(q.tasks))
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current number of queued tasks.
func (q *InMemoryQueue) Len() int {
	return len(q.tasks)
}

// Close gracefully shuts down the queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.tasks)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
