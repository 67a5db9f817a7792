// Package syncer runs client-side persistence calls in the background.
//
// BestEffort never blocks the caller and never reports a failure back to
// it: failed calls land in Diagnostics and the log, and are not retried.
// Tasks run one at a time in submission order.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/shopstudy/internal/adapters/mq/queue"
	"github.com/okian/shopstudy/internal/adapters/mq/worker"
	"github.com/okian/shopstudy/internal/domain/dedupe"
	"github.com/okian/shopstudy/internal/domain/model"
	"github.com/okian/shopstudy/pkg/logger"
	"github.com/okian/shopstudy/pkg/metrics"
)

const (
	defaultCapacity    = 256
	defaultDiagLimit   = 100
	defaultTaskTimeout = 10 * time.Second
)

// Outcomes recorded in metrics and diagnostics.
const (
	OutcomeDropped   = "dropped"
	OutcomeDuplicate = "duplicate"
)

// Task is one persistence call.
type Task struct {
	// Name labels the call, e.g. "consent" or "event:step_entered".
	Name string
	// Key marks a one-shot call. A second task with the same key is dropped.
	Key string
	// Call performs the request. The session may be nil.
	Call func(ctx context.Context) (*model.Session, error)
}

// Syncer owns the queue and the single worker draining it.
type Syncer struct {
	capacity    int
	diagLimit   int
	taskTimeout time.Duration
	dedupe      dedupe.Deduper
	onResult    func(ctx context.Context, task string, sess *model.Session)
	now         func() time.Time
	log         logger.Logger

	queue  *queue.InMemoryQueue
	worker *worker.InMemoryWorker
	diag   *Diagnostics

	mu      sync.Mutex
	started bool
	closed  bool
}

// New creates a syncer. Call Start before submitting tasks.
func New(opts ...Option) *Syncer {
	s := &Syncer{
		capacity:    defaultCapacity,
		diagLimit:   defaultDiagLimit,
		taskTimeout: defaultTaskTimeout,
		onResult:    func(context.Context, string, *model.Session) {},
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Get().Named("syncer")
	}
	if s.dedupe == nil {
		s.dedupe = dedupe.NewInMemoryDeduper()
	}
	s.diag = NewDiagnostics(s.diagLimit)
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.capacity))
	s.worker = worker.NewInMemoryWorker(s.queue,
		worker.WithName("sync"),
		worker.WithLogger(s.log),
		worker.WithTaskTimeout(s.taskTimeout),
		worker.WithReporter(s.report),
	)
	return s
}

// Start launches the worker. It stops when ctx is cancelled or Close
// has drained the queue.
func (s *Syncer) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.closed {
		return
	}
	s.started = true
	go s.worker.Run(ctx)
}

// BestEffort submits t and returns immediately. It reports whether the
// task was accepted; a rejected task is recorded, never returned as an error.
func (s *Syncer) BestEffort(ctx context.Context, t Task) bool {
	if t.Call == nil {
		s.capture(ctx, t, OutcomeDropped, ErrNoCall)
		return false
	}
	if t.Key != "" && s.dedupe.SeenAndRecord(ctx, t.Key) {
		metrics.RecordSyncTask(t.Name, OutcomeDuplicate)
		s.log.Debug(ctx, "duplicate one-shot task dropped",
			logger.String("task", t.Name), logger.String("key", t.Key))
		return false
	}

	call := t.Call
	err := s.queue.Enqueue(ctx, queue.Task{
		Name: t.Name,
		Key:  t.Key,
		Run: func(ctx context.Context) error {
			sess, err := call(ctx)
			if err != nil {
				return err
			}
			if sess != nil {
				s.onResult(ctx, t.Name, sess)
			}
			return nil
		},
	})
	if err != nil {
		if t.Key != "" {
			s.dedupe.Unrecord(ctx, t.Key)
		}
		s.capture(ctx, t, OutcomeDropped, err)
		return false
	}
	return true
}

// report receives worker outcomes.
func (s *Syncer) report(ctx context.Context, t queue.Task, err error, took time.Duration) {
	if err == nil {
		s.log.Debug(ctx, "sync task done", logger.String("task", t.Name), logger.Duration("took", took))
		return
	}
	s.capture(ctx, Task{Name: t.Name, Key: t.Key}, worker.OutcomeFailed, err)
}

func (s *Syncer) capture(ctx context.Context, t Task, outcome string, err error) {
	if outcome != worker.OutcomeFailed {
		metrics.RecordSyncTask(t.Name, outcome)
	}
	s.diag.add(Failure{Task: t.Name, Key: t.Key, Outcome: outcome, Err: err.Error(), At: s.now()})
	s.log.Warn(ctx, "best-effort sync failed",
		logger.String("task", t.Name),
		logger.String("outcome", outcome),
		logger.Error(err),
	)
}

// Diagnostics returns the failure log.
func (s *Syncer) Diagnostics() *Diagnostics { return s.diag }

// Pending returns the number of queued tasks.
func (s *Syncer) Pending() int { return s.queue.Len() }

// Close stops accepting tasks and waits for the queued ones to finish.
// It is safe to call more than once.
func (s *Syncer) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	started := s.started
	s.mu.Unlock()

	if err := s.queue.Close(); err != nil {
		return fmt.Errorf("close queue: %w", err)
	}
	if !started {
		if n := s.queue.Len(); n > 0 {
			return fmt.Errorf("%w: %d tasks discarded", ErrNotStarted, n)
		}
		return nil
	}
	if err := s.worker.Wait(ctx); err != nil {
		return errors.Join(err, fmt.Errorf("%d tasks pending", s.queue.Len()))
	}
	return nil
}
