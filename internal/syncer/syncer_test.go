package syncer_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/goleak"

	"github.com/okian/shopstudy/internal/domain/dedupe"
	"github.com/okian/shopstudy/internal/domain/model"
	"github.com/okian/shopstudy/internal/syncer"
	"github.com/okian/shopstudy/pkg/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type calls struct {
	mu    sync.Mutex
	names []string
}

func (c *calls) task(name, key string, err error) syncer.Task {
	return syncer.Task{Name: name, Key: key, Call: func(context.Context) (*model.Session, error) {
		c.mu.Lock()
		c.names = append(c.names, name)
		c.mu.Unlock()
		if err != nil {
			return nil, err
		}
		return &model.Session{ParticipantID: "p-" + name}, nil
	}}
}

func (c *calls) list() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.names...)
}

func TestSyncer(t *testing.T) {
	Convey("Given a started syncer", t, func() {
		ctx := context.Background()
		var (
			mu      sync.Mutex
			mirrors []string
		)
		s := syncer.New(
			syncer.WithLogger(logger.NewNop()),
			syncer.WithDiagnosticsLimit(2),
			syncer.WithOnResult(func(_ context.Context, _ string, sess *model.Session) {
				mu.Lock()
				mirrors = append(mirrors, sess.ParticipantID)
				mu.Unlock()
			}),
		)
		s.Start(ctx)
		c := &calls{}

		Convey("Tasks run in submission order and report results", func() {
			So(s.BestEffort(ctx, c.task("consent", "p/consent", nil)), ShouldBeTrue)
			So(s.BestEffort(ctx, c.task("event", "", nil)), ShouldBeTrue)
			So(s.BestEffort(ctx, c.task("pre_survey", "p/pre_survey", nil)), ShouldBeTrue)
			So(s.Close(ctx), ShouldBeNil)

			So(c.list(), ShouldResemble, []string{"consent", "event", "pre_survey"})
			mu.Lock()
			So(mirrors, ShouldResemble, []string{"p-consent", "p-event", "p-pre_survey"})
			mu.Unlock()
			So(s.Diagnostics().Total(), ShouldEqual, 0)
		})

		Convey("Repeated one-shot keys are dropped but repeatable tasks are not", func() {
			So(s.BestEffort(ctx, c.task("choice", "p/choice", nil)), ShouldBeTrue)
			So(s.BestEffort(ctx, c.task("choice", "p/choice", nil)), ShouldBeFalse)
			So(s.BestEffort(ctx, c.task("rating", "", nil)), ShouldBeTrue)
			So(s.BestEffort(ctx, c.task("rating", "", nil)), ShouldBeTrue)
			So(s.Close(ctx), ShouldBeNil)

			So(c.list(), ShouldResemble, []string{"choice", "rating", "rating"})
			So(s.Diagnostics().Total(), ShouldEqual, 0)
		})

		Convey("Failures are captured without stopping later tasks", func() {
			boom := errors.New("connection refused")
			So(s.BestEffort(ctx, c.task("a", "", boom)), ShouldBeTrue)
			So(s.BestEffort(ctx, c.task("b", "", boom)), ShouldBeTrue)
			So(s.BestEffort(ctx, c.task("c", "", boom)), ShouldBeTrue)
			So(s.BestEffort(ctx, c.task("d", "", nil)), ShouldBeTrue)
			So(s.Close(ctx), ShouldBeNil)

			So(c.list(), ShouldResemble, []string{"a", "b", "c", "d"})
			d := s.Diagnostics()
			So(d.Total(), ShouldEqual, 3)
			entries := d.Entries()
			So(len(entries), ShouldEqual, 2)
			So(entries[0].Task, ShouldEqual, "b")
			So(entries[1].Task, ShouldEqual, "c")
			So(entries[1].Outcome, ShouldEqual, "failed")
			So(entries[1].Err, ShouldContainSubstring, "connection refused")
		})

		Convey("A task without a call is rejected", func() {
			So(s.BestEffort(ctx, syncer.Task{Name: "empty"}), ShouldBeFalse)
			So(s.Close(ctx), ShouldBeNil)
			So(s.Diagnostics().Entries()[0].Outcome, ShouldEqual, syncer.OutcomeDropped)
		})

		Convey("After Close tasks are dropped and the key may be retried", func() {
			So(s.Close(ctx), ShouldBeNil)
			So(s.Close(ctx), ShouldBeNil)
			So(s.BestEffort(ctx, c.task("complete", "p/complete", nil)), ShouldBeFalse)
			So(s.BestEffort(ctx, c.task("complete", "p/complete", nil)), ShouldBeFalse)
			So(s.Diagnostics().Total(), ShouldEqual, 2)
		})
	})
}

func TestSyncerBackpressure(t *testing.T) {
	Convey("Given a full queue behind a blocked call", t, func() {
		ctx := context.Background()
		release := make(chan struct{})
		entered := make(chan struct{})
		d := dedupe.NewInMemoryDeduper()
		s := syncer.New(
			syncer.WithLogger(logger.NewNop()),
			syncer.WithCapacity(1),
			syncer.WithDeduper(d),
		)
		s.Start(ctx)

		blocked := syncer.Task{Name: "slow", Call: func(context.Context) (*model.Session, error) {
			close(entered)
			<-release
			return nil, nil
		}}
		quick := syncer.Task{Name: "quick", Call: func(context.Context) (*model.Session, error) { return nil, nil }}

		So(s.BestEffort(ctx, blocked), ShouldBeTrue)
		<-entered
		// The dequeue side holds one task while the worker is busy.
		So(s.BestEffort(ctx, quick), ShouldBeTrue)
		So(eventually(func() bool { return s.Pending() == 0 }), ShouldBeTrue)
		So(s.BestEffort(ctx, quick), ShouldBeTrue)
		So(s.Pending(), ShouldEqual, 1)

		Convey("Further tasks are dropped without blocking", func() {
			once := quick
			once.Key = "p/post_survey"
			start := time.Now()
			So(s.BestEffort(ctx, once), ShouldBeFalse)
			So(time.Since(start), ShouldBeLessThan, time.Second)
			So(d.Size(), ShouldEqual, 0)

			close(release)
			So(s.Close(ctx), ShouldBeNil)
			So(s.Diagnostics().Entries()[0].Outcome, ShouldEqual, syncer.OutcomeDropped)
		})
	})
}

func TestSyncerTimeout(t *testing.T) {
	Convey("Given a call that outlives the task timeout", t, func() {
		ctx := context.Background()
		s := syncer.New(syncer.WithLogger(logger.NewNop()), syncer.WithTaskTimeout(10*time.Millisecond))
		s.Start(ctx)
		s.BestEffort(ctx, syncer.Task{Name: "hang", Call: func(c context.Context) (*model.Session, error) {
			<-c.Done()
			return nil, c.Err()
		}})
		So(s.Close(ctx), ShouldBeNil)

		Convey("It is recorded as a failure", func() {
			So(s.Diagnostics().Entries()[0].Err, ShouldContainSubstring, "deadline")
		})
	})
}

func TestSyncerNotStarted(t *testing.T) {
	Convey("Closing a syncer that never started reports discarded work", t, func() {
		ctx := context.Background()
		s := syncer.New(syncer.WithLogger(logger.NewNop()))
		s.BestEffort(ctx, syncer.Task{Name: "x", Call: func(context.Context) (*model.Session, error) { return nil, nil }})
		So(errors.Is(s.Close(ctx), syncer.ErrNotStarted), ShouldBeTrue)
	})
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return cond()
}
