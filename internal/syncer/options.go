package syncer

import (
	"context"
	"time"

	"github.com/okian/shopstudy/internal/domain/dedupe"
	"github.com/okian/shopstudy/internal/domain/model"
	"github.com/okian/shopstudy/pkg/logger"
)

// Option configures a Syncer.
type Option func(*Syncer)

// WithCapacity bounds the number of pending tasks.
func WithCapacity(n int) Option {
	return func(s *Syncer) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithDiagnosticsLimit bounds the failure log.
func WithDiagnosticsLimit(n int) Option {
	return func(s *Syncer) {
		if n > 0 {
			s.diagLimit = n
		}
	}
}

// WithDeduper replaces the one-shot key tracker.
func WithDeduper(d dedupe.Deduper) Option {
	return func(s *Syncer) {
		if d != nil {
			s.dedupe = d
		}
	}
}

// WithOnResult is called on the worker goroutine after every successful
// task that returned a session.
func WithOnResult(fn func(ctx context.Context, task string, sess *model.Session)) Option {
	return func(s *Syncer) {
		if fn != nil {
			s.onResult = fn
		}
	}
}

// WithTaskTimeout bounds a single call.
func WithTaskTimeout(d time.Duration) Option {
	return func(s *Syncer) {
		if d > 0 {
			s.taskTimeout = d
		}
	}
}

// WithClock sets the time source for diagnostics.
func WithClock(now func() time.Time) Option {
	return func(s *Syncer) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Syncer) {
		if l != nil {
			s.log = l
		}
	}
}
