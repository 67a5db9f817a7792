package model

import (
	"time"

	"github.com/okian/shopstudy/internal/domain/types"
)

// Event is an immutable telemetry record.
type Event struct {
	ID            string          `json:"id"`
	ParticipantID string          `json:"participantId"`
	EventType     types.EventType `json:"eventType"`
	Step          types.Step      `json:"step,omitempty"`
	EventData     Blob            `json:"eventData,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

// EventInput is what callers supply; the store assigns id and timestamp.
type EventInput struct {
	ParticipantID string
	EventType     types.EventType
	Step          types.Step
	EventData     Blob
}

// NewEvent builds an event stamped at now, clamped to be no earlier than the
// participant's previous event.
func NewEvent(id string, in EventInput, now, prev time.Time) *Event {
	return &Event{
		ID:            id,
		ParticipantID: in.ParticipantID,
		EventType:     in.EventType,
		Step:          in.Step,
		EventData:     in.EventData.Clone(),
		Timestamp:     NextTimestamp(now, prev),
	}
}

// Clone returns a deep copy.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	c := *e
	c.EventData = e.EventData.Clone()
	return &c
}
