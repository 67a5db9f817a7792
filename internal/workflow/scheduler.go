package workflow

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Token cancels a scheduled callback. Cancel is idempotent.
type Token interface {
	Cancel()
}

// Scheduler runs callbacks one at a time on a single logical thread.
type Scheduler interface {
	// Now returns the scheduler's clock.
	Now() time.Time
	// After runs fn on the loop once d has elapsed, unless cancelled first.
	After(d time.Duration, fn func()) Token
	// Post runs fn on the loop as soon as possible. It reports false when
	// the loop no longer accepts work.
	Post(fn func()) bool
}

const loopBacklog = 64

// Loop is a real-time Scheduler backed by one goroutine.
type Loop struct {
	tasks chan func()
	done  chan struct{}
	once  sync.Once

	mu     sync.Mutex
	timers map[*loopTimer]struct{}
}

// NewLoop creates a loop. Run must be called to start it.
func NewLoop() *Loop {
	return &Loop{
		tasks:  make(chan func(), loopBacklog),
		done:   make(chan struct{}),
		timers: make(map[*loopTimer]struct{}),
	}
}

// Run processes callbacks until ctx is cancelled. Pending timers are
// stopped on return.
func (l *Loop) Run(ctx context.Context) {
	defer l.stop()
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-l.tasks:
			fn()
		}
	}
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} { return l.done }

func (l *Loop) stop() {
	l.once.Do(func() {
		close(l.done)
		l.mu.Lock()
		for t := range l.timers {
			t.timer.Stop()
		}
		l.timers = nil
		l.mu.Unlock()
	})
}

// Now implements Scheduler.
func (l *Loop) Now() time.Time { return time.Now() }

// Post implements Scheduler.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.tasks <- fn:
		return true
	case <-l.done:
		return false
	}
}

// After implements Scheduler. The cancellation flag is checked on the loop,
// so a timer that already fired but has not run yet is still suppressed.
func (l *Loop) After(d time.Duration, fn func()) Token {
	t := &loopTimer{loop: l}
	l.mu.Lock()
	if l.timers == nil {
		l.mu.Unlock()
		t.cancelled.Store(true)
		return t
	}
	l.timers[t] = struct{}{}
	t.timer = time.AfterFunc(d, func() {
		l.forget(t)
		l.Post(func() {
			if !t.cancelled.Load() {
				fn()
			}
		})
	})
	l.mu.Unlock()
	return t
}

func (l *Loop) forget(t *loopTimer) {
	l.mu.Lock()
	if l.timers != nil {
		delete(l.timers, t)
	}
	l.mu.Unlock()
}

type loopTimer struct {
	loop      *Loop
	timer     *time.Timer
	cancelled atomic.Bool
}

func (t *loopTimer) Cancel() {
	if t.cancelled.Swap(true) {
		return
	}
	if t.timer != nil {
		t.timer.Stop()
		t.loop.forget(t)
	}
}
