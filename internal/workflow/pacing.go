package workflow

import "time"

// Pacing holds the fixed delays of the flow. They emulate an assistant
// "thinking" and keep elapsed time uniform across participants.
type Pacing struct {
	Loading    time.Duration // loading screen before the assistant starts
	Starting   time.Duration // "starting" screen before the first question
	Countdown  time.Duration // time allowed per requirement step
	HurryUp    time.Duration // offset into the countdown when the hurry-up hint shows
	Transition time.Duration // waiting screen before the guide
}

// DefaultPacing returns the delays used with real participants.
func DefaultPacing() Pacing {
	return Pacing{
		Loading:    3 * time.Second,
		Starting:   2 * time.Second,
		Countdown:  30 * time.Second,
		HurryUp:    20 * time.Second,
		Transition: 6 * time.Second,
	}
}

// Scale multiplies every delay by f. Non-positive factors leave p unchanged.
func (p Pacing) Scale(f float64) Pacing {
	if f <= 0 {
		return p
	}
	s := func(d time.Duration) time.Duration { return time.Duration(float64(d) * f) }
	return Pacing{
		Loading:    s(p.Loading),
		Starting:   s(p.Starting),
		Countdown:  s(p.Countdown),
		HurryUp:    s(p.HurryUp),
		Transition: s(p.Transition),
	}
}
