package workflow

import (
	"sort"
	"time"
)

// ManualScheduler is a Scheduler on a virtual clock. Time only moves on
// Advance. Posted callbacks run immediately, or after the current callback
// when posted from inside one. It must be driven from a single goroutine.
type ManualScheduler struct {
	now      time.Time
	seq      int
	timers   []*manualTimer
	pending  []func()
	draining bool
}

// NewManualScheduler starts the virtual clock at start.
func NewManualScheduler(start time.Time) *ManualScheduler {
	return &ManualScheduler{now: start}
}

type manualTimer struct {
	due       time.Time
	seq       int
	fn        func()
	cancelled bool
}

func (t *manualTimer) Cancel() { t.cancelled = true }

// Now implements Scheduler.
func (m *ManualScheduler) Now() time.Time { return m.now }

// After implements Scheduler.
func (m *ManualScheduler) After(d time.Duration, fn func()) Token {
	m.seq++
	t := &manualTimer{due: m.now.Add(d), seq: m.seq, fn: fn}
	m.timers = append(m.timers, t)
	return t
}

// Post implements Scheduler.
func (m *ManualScheduler) Post(fn func()) bool {
	m.pending = append(m.pending, fn)
	m.drain()
	return true
}

func (m *ManualScheduler) drain() {
	if m.draining {
		return
	}
	m.draining = true
	defer func() { m.draining = false }()
	for len(m.pending) > 0 {
		fn := m.pending[0]
		m.pending = m.pending[1:]
		fn()
	}
}

// Advance moves the clock forward by d, firing due timers in order. Timers
// scheduled by those callbacks fire too if they fall inside the window.
func (m *ManualScheduler) Advance(d time.Duration) {
	end := m.now.Add(d)
	for {
		t := m.next(end)
		if t == nil {
			break
		}
		m.now = t.due
		m.Post(t.fn)
	}
	m.now = end
}

// next removes and returns the earliest live timer due by end.
func (m *ManualScheduler) next(end time.Time) *manualTimer {
	live := m.timers[:0]
	for _, t := range m.timers {
		if !t.cancelled {
			live = append(live, t)
		}
	}
	m.timers = live
	sort.SliceStable(m.timers, func(i, j int) bool {
		if m.timers[i].due.Equal(m.timers[j].due) {
			return m.timers[i].seq < m.timers[j].seq
		}
		return m.timers[i].due.Before(m.timers[j].due)
	})
	if len(m.timers) == 0 || m.timers[0].due.After(end) {
		return nil
	}
	t := m.timers[0]
	m.timers = m.timers[1:]
	return t
}

// Pending returns the number of live timers.
func (m *ManualScheduler) Pending() int {
	n := 0
	for _, t := range m.timers {
		if !t.cancelled {
			n++
		}
	}
	return n
}
