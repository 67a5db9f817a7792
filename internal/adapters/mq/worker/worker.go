package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/shopstudy/internal/adapters/mq/queue"
	"github.com/okian/shopstudy/pkg/logger"
	"github.com/okian/shopstudy/pkg/metrics"
)

const defaultTaskTimeout = 10 * time.Second

// Task outcomes as recorded in metrics.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

// Queue defines how workers receive tasks.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Task
}

// Reporter is told how each task ended. err is nil on success.
type Reporter func(ctx context.Context, t queue.Task, err error, took time.Duration)

// Worker runs queued tasks.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue is
	// closed and drained.
	Run(ctx context.Context)

	// Shutdown stops the worker without draining.
	Shutdown(ctx context.Context) error

	// Wait blocks until Run has returned.
	Wait(ctx context.Context) error
}

// InMemoryWorker processes tasks strictly in the order they are dequeued.
// Failures are reported, never retried.
type InMemoryWorker struct {
	queue       Queue
	name        string
	taskTimeout time.Duration
	reporter    Reporter

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:       q,
		name:        "worker",
		taskTimeout: defaultTaskTimeout,
		reporter:    func(context.Context, queue.Task, error, time.Duration) {},
		shutdown:    make(chan struct{}),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named("worker")
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tasks := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case t, ok := <-tasks:
			if !ok {
				return
			}
			w.process(ctx, t)
		}
	}
}

// Shutdown signals the loop to stop after the current task.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}
	return w.Wait(ctx)
}

// Wait blocks until Run returns or ctx is done.
func (w *InMemoryWorker) Wait(ctx context.Context) error {
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) process(ctx context.Context, t queue.Task) {
	start := time.Now()
	err := w.run(ctx, t)
	took := time.Since(start)

	if err != nil {
		metrics.RecordSyncTask(t.Name, OutcomeFailed)
		metrics.RecordErrorByComponent("worker", "task_failed")
		metrics.RecordErrorLatency("worker", "task_failed", float64(took.Milliseconds()))
	} else {
		metrics.RecordSyncTask(t.Name, OutcomeOK)
	}
	w.reporter(ctx, t, err, took)
}

// run executes one task under the timeout. A panic becomes an error.
func (w *InMemoryWorker) run(ctx context.Context, t queue.Task) (err error) {
	if t.Run == nil {
		return fmt.Errorf("task %s: no function", t.Name)
	}
	if w.taskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.taskTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", t.Name, r)
		}
	}()
	return t.Run(ctx)
}
