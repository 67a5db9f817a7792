package workflow

import (
	"github.com/okian/shopstudy/internal/content"
	"github.com/okian/shopstudy/pkg/logger"
)

// Option configures a Workflow.
type Option func(*Workflow)

// WithPacing sets the flow delays.
func WithPacing(p Pacing) Option {
	return func(w *Workflow) { w.pacing = p }
}

// WithCatalog sets the fixtures the flow shows.
func WithCatalog(c content.Catalog) Option {
	return func(w *Workflow) { w.catalog = c }
}

// WithObserver is called on the scheduler for every step change.
func WithObserver(fn func(Transition)) Option {
	return func(w *Workflow) {
		if fn != nil {
			w.observers = append(w.observers, fn)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(w *Workflow) {
		if l != nil {
			w.log = l
		}
	}
}
