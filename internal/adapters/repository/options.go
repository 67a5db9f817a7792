package repository

import (
	"time"

	"github.com/google/uuid"

	"github.com/okian/shopstudy/pkg/logger"
)

// Option applies a configuration option to a store.
type Option func(*options)

type options struct {
	now       func() time.Time
	newID     func() string
	log       logger.Logger
	slowQuery time.Duration
}

func defaultOptions() options {
	return options{
		now:       time.Now,
		newID:     uuid.NewString,
		log:       logger.NewNop(),
		slowQuery: 200 * time.Millisecond,
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDGenerator overrides how participant and event ids are allocated.
func WithIDGenerator(gen func() string) Option {
	return func(o *options) {
		if gen != nil {
			o.newID = gen
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithSlowQueryThreshold sets when SQL statements are logged as slow.
func WithSlowQueryThreshold(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.slowQuery = d
		}
	}
}
