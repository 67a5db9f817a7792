// Package repository defines the session store contract and its file and
// relational implementations.
package repository

import (
	"context"
	"time"

	"github.com/okian/shopstudy/internal/domain/model"
	"github.com/okian/shopstudy/internal/domain/types"
	"github.com/okian/shopstudy/pkg/metrics"
)

// Store owns sessions and the event log. Returned values are copies; callers
// may mutate them freely.
type Store interface {
	// CreateSession allocates an id and persists an empty session.
	CreateSession(ctx context.Context, condition types.Condition) (*model.Session, error)

	// GetSession returns ErrNotFound if the participant is unknown.
	GetSession(ctx context.Context, participantID string) (*model.Session, error)

	// UpdateSession merges patch onto the stored record, stamps updatedAt and
	// persists it. Returns ErrNotFound, never creating a record, if the
	// participant is unknown.
	UpdateSession(ctx context.Context, participantID string, patch model.SessionPatch) (*model.Session, error)

	// ListSessions returns every session, newest createdAt first.
	ListSessions(ctx context.Context) ([]*model.Session, error)

	// LogEvent appends an event. The participant is not checked.
	LogEvent(ctx context.Context, in model.EventInput) (*model.Event, error)

	// Events returns one participant's events in append order.
	Events(ctx context.Context, participantID string) ([]*model.Event, error)

	// AllEvents returns every event in append order.
	AllEvents(ctx context.Context) ([]*model.Event, error)

	// Counts returns the number of sessions and events held.
	Counts(ctx context.Context) (sessions, events int, err error)

	// Backend names the implementation for logs and metrics.
	Backend() string

	Close(ctx context.Context) error
}

func observe(backend, op string, start time.Time, err error) {
	metrics.RecordStoreOperation(backend, op, float64(time.Since(start).Microseconds())/1000, err)
}
