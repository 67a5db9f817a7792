package workflow

import "time"

// Countdown is the timer owned by one requirement step. It holds the expiry
// timer and the hurry-up sub-timer; Cancel stops both.
type Countdown struct {
	sched   Scheduler
	started time.Time
	total   time.Duration
	expiry  Token
	hurry   Token
	done    bool
}

// StartCountdown schedules onHurry at hurryAt and onExpire at total. A
// hurryAt outside (0, total) disables the hint.
func StartCountdown(s Scheduler, total, hurryAt time.Duration, onHurry, onExpire func()) *Countdown {
	c := &Countdown{sched: s, started: s.Now(), total: total}
	if hurryAt > 0 && hurryAt < total && onHurry != nil {
		c.hurry = s.After(hurryAt, onHurry)
	}
	c.expiry = s.After(total, func() {
		c.done = true
		if c.hurry != nil {
			c.hurry.Cancel()
		}
		onExpire()
	})
	return c
}

// Cancel stops both timers.
func (c *Countdown) Cancel() {
	if c == nil || c.done {
		return
	}
	c.done = true
	c.expiry.Cancel()
	if c.hurry != nil {
		c.hurry.Cancel()
	}
}

// Remaining is the time left before expiry.
func (c *Countdown) Remaining() time.Duration {
	if c == nil || c.done {
		return 0
	}
	left := c.total - c.sched.Now().Sub(c.started)
	if left < 0 {
		return 0
	}
	return left
}

// Active reports whether the countdown is still running.
func (c *Countdown) Active() bool { return c != nil && !c.done }
