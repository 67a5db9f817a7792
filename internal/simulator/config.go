package simulator

import (
	"fmt"
	"time"

	"github.com/okian/shopstudy/internal/domain/types"
)

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL       string        // Base URL of the service
	AdminPassword string        // Password for the admin endpoints used in verification
	Participants  int           // Number of synthetic participants
	Concurrency   int           // Participants in flight at once
	PassiveRate   float64       // Share of participants who let every countdown run out
	DeclineRate   float64       // Share of participants who decline consent
	PacingScale   float64       // Multiplier applied to the workflow delays
	Timeout       time.Duration // HTTP request timeout
	OutputFile    string        // Optional JSON file for per-participant results
	LogFile       string        // Optional log file
	Verbose       bool          // Enable debug logging
}

// Validate reports the first unusable setting.
func (c *Config) Validate() error {
	switch {
	case c.BaseURL == "":
		return fmt.Errorf("%w: base url must not be empty", ErrInvalidConfig)
	case c.Participants <= 0:
		return fmt.Errorf("%w: participants must be positive", ErrInvalidConfig)
	case c.Concurrency <= 0:
		return fmt.Errorf("%w: concurrency must be positive", ErrInvalidConfig)
	case c.PassiveRate < 0 || c.DeclineRate < 0 || c.PassiveRate+c.DeclineRate > 1:
		return fmt.Errorf("%w: passive and decline rates must be within [0,1] together", ErrInvalidConfig)
	case c.PacingScale <= 0:
		return fmt.Errorf("%w: pacing scale must be positive", ErrInvalidConfig)
	}
	return nil
}

// Behaviour is how a synthetic participant moves through the study.
type Behaviour string

const (
	// Engaged participants answer every question and rate every product.
	Engaged Behaviour = "engaged"
	// Passive participants let the countdowns expire and skip the product cards.
	Passive Behaviour = "passive"
	// Decliner participants refuse consent and end up in an aborted debrief.
	Decliner Behaviour = "decliner"
)

// Result is what one participant did, as seen by the client.
type Result struct {
	Index         int             `json:"index"`
	ParticipantID string          `json:"participantId,omitempty"`
	Condition     types.Condition `json:"condition,omitempty"`
	Behaviour     Behaviour       `json:"behaviour"`
	Ratings       int             `json:"ratings"`
	Choice        string          `json:"choice,omitempty"`
	Aborted       bool            `json:"aborted"`
	SyncFailures  int             `json:"syncFailures"`
	Duration      time.Duration   `json:"duration"`
	Err           string          `json:"error,omitempty"`
}

// Stats holds run statistics.
type Stats struct {
	Participants     int
	Completed        int
	Aborted          int
	Failed           int
	SyncFailures     int
	SessionsVerified int
	EventsVerified   int
	ByCondition      map[types.Condition]int
	ByBehaviour      map[Behaviour]int
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
}
