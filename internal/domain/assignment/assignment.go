// Package assignment draws the experiment condition for new participants.
package assignment

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/okian/shopstudy/internal/domain/types"
)

// Option applies a configuration option to the RandomAssigner.
type Option func(*RandomAssigner)

// WithSeed makes draws reproducible.
func WithSeed(seed int64) Option {
	return func(a *RandomAssigner) {
		a.rng = rand.New(rand.NewSource(seed)) //nolint:gosec // assignment is not security sensitive
	}
}

// WithRand supplies the random source directly.
func WithRand(r *rand.Rand) Option {
	return func(a *RandomAssigner) {
		if r != nil {
			a.rng = r
		}
	}
}

// WithConditions restricts or reorders the variants drawn from.
// Unknown variants are dropped; an empty result keeps the default set.
func WithConditions(conds ...types.Condition) Option {
	return func(a *RandomAssigner) {
		var valid []types.Condition
		for _, c := range conds {
			if c.Valid() {
				valid = append(valid, c)
			}
		}
		if len(valid) > 0 {
			a.conditions = valid
		}
	}
}

// Assigner picks a condition for a new session.
type Assigner interface {
	Assign(ctx context.Context) types.Condition
}

// RandomAssigner draws uniformly and independently per call. It does not
// balance the cohort.
type RandomAssigner struct {
	mu         sync.Mutex
	rng        *rand.Rand
	conditions []types.Condition
}

// NewRandomAssigner creates an assigner over types.Conditions().
func NewRandomAssigner(opts ...Option) *RandomAssigner {
	a := &RandomAssigner{
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // assignment is not security sensitive
		conditions: types.Conditions(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assign returns one condition.
func (a *RandomAssigner) Assign(_ context.Context) types.Condition {
	a.mu.Lock()
	i := a.rng.Intn(len(a.conditions))
	a.mu.Unlock()
	return a.conditions[i]
}

// Fixed always returns the same condition. Useful in tests and pilots.
type Fixed types.Condition

// Assign returns the fixed condition.
func (f Fixed) Assign(context.Context) types.Condition { return types.Condition(f) }
