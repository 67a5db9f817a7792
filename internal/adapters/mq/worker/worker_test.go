package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"
	"go.uber.org/goleak"

	"github.com/okian/shopstudy/internal/adapters/mq/queue"
	"github.com/okian/shopstudy/internal/adapters/mq/worker"
	"github.com/okian/shopstudy/pkg/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type outcome struct {
	name string
	err  error
}

type recorder struct {
	mu   sync.Mutex
	seen []outcome
}

func (r *recorder) report(_ context.Context, t queue.Task, err error, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, outcome{name: t.Name, err: err})
}

func (r *recorder) outcomes() []outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]outcome(nil), r.seen...)
}

func newWorker(q worker.Queue, rec *recorder, opts ...worker.Option) *worker.InMemoryWorker {
	opts = append([]worker.Option{
		worker.WithLogger(logger.NewNop()),
		worker.WithReporter(rec.report),
	}, opts...)
	return worker.NewInMemoryWorker(q, opts...)
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a queue and a worker", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(16))
		rec := &recorder{}
		ctx := context.Background()

		convey.Convey("When tasks succeed and fail", func() {
			var order []string
			step := func(name string, err error) queue.Task {
				return queue.Task{Name: name, Run: func(context.Context) error {
					order = append(order, name)
					return err
				}}
			}
			boom := errors.New("network down")
			for _, tk := range []queue.Task{
				step("consent", nil),
				step("pre_survey", boom),
				step("requirements", nil),
			} {
				convey.So(q.Enqueue(ctx, tk), convey.ShouldBeNil)
			}
			_ = q.Close()

			w := newWorker(q, rec, worker.WithName("sync"))
			w.Run(ctx)

			convey.Convey("Then every task runs once in order and failures do not stop the loop", func() {
				convey.So(order, convey.ShouldResemble, []string{"consent", "pre_survey", "requirements"})
				got := rec.outcomes()
				convey.So(len(got), convey.ShouldEqual, 3)
				convey.So(got[0].err, convey.ShouldBeNil)
				convey.So(errors.Is(got[1].err, boom), convey.ShouldBeTrue)
				convey.So(got[2].err, convey.ShouldBeNil)
			})
		})

		convey.Convey("When a task panics or has no function", func() {
			_ = q.Enqueue(ctx, queue.Task{Name: "bad", Run: func(context.Context) error { panic("oops") }})
			_ = q.Enqueue(ctx, queue.Task{Name: "empty"})
			_ = q.Close()

			newWorker(q, rec).Run(ctx)

			convey.Convey("Then both are reported as failures", func() {
				got := rec.outcomes()
				convey.So(len(got), convey.ShouldEqual, 2)
				convey.So(got[0].err, convey.ShouldNotBeNil)
				convey.So(got[0].err.Error(), convey.ShouldContainSubstring, "panicked")
				convey.So(got[1].err, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When a task outlives its timeout", func() {
			_ = q.Enqueue(ctx, queue.Task{Name: "slow", Run: func(c context.Context) error {
				<-c.Done()
				return c.Err()
			}})
			_ = q.Close()

			newWorker(q, rec, worker.WithTaskTimeout(10*time.Millisecond)).Run(ctx)

			convey.Convey("Then it fails with a deadline error", func() {
				got := rec.outcomes()
				convey.So(len(got), convey.ShouldEqual, 1)
				convey.So(errors.Is(got[0].err, context.DeadlineExceeded), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the worker is shut down while idle", func() {
			w := newWorker(q, rec)
			go w.Run(ctx)

			shutdownCtx, cancel := context.WithTimeout(ctx, time.Second)
			defer cancel()
			err := w.Shutdown(shutdownCtx)
			_ = q.Close()

			convey.Convey("Then it stops and a second shutdown is harmless", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
			})
		})

		convey.Convey("When the context is cancelled", func() {
			w := newWorker(q, rec)
			runCtx, cancel := context.WithCancel(ctx)
			go w.Run(runCtx)
			cancel()

			waitCtx, waitCancel := context.WithTimeout(ctx, time.Second)
			defer waitCancel()
			err := w.Wait(waitCtx)
			_ = q.Close()

			convey.Convey("Then Run returns", func() {
				convey.So(err, convey.ShouldBeNil)
			})
		})

		convey.Convey("When waiting on a worker that never ran", func() {
			w := newWorker(q, rec)
			waitCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
			defer cancel()
			err := w.Wait(waitCtx)
			_ = q.Close()

			convey.Convey("Then the wait times out", func() {
				convey.So(errors.Is(err, context.DeadlineExceeded), convey.ShouldBeTrue)
			})
		})
	})
}
