// Package workflow is the client-side state machine that walks a
// participant through the study.
//
// All state is owned by a Scheduler: actions are posted onto it and timer
// callbacks run on it, so no two pieces of workflow code ever run at once.
// Persistence goes through a best-effort Sync and never holds up a
// transition; only session creation blocks and reports its error.
package workflow

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/okian/shopstudy/internal/content"
	"github.com/okian/shopstudy/internal/domain/model"
	"github.com/okian/shopstudy/internal/domain/types"
	"github.com/okian/shopstudy/internal/syncer"
	"github.com/okian/shopstudy/pkg/logger"
)

// API is the subset of the study API the workflow calls.
type API interface {
	CreateSession(ctx context.Context) (*model.Session, error)
	SubmitConsent(ctx context.Context, participantID string, age, data bool) (*model.Session, error)
	SubmitPreSurvey(ctx context.Context, participantID string, answers model.PreSurvey) (*model.Session, error)
	UpdateRequirements(ctx context.Context, participantID string, req model.Requirements,
		target *model.NormalizedTarget, flags *model.DeviationFlags) (*model.Session, error)
	AddRating(ctx context.Context, participantID string, r model.RatingAction) (*model.Session, error)
	RecordGuideTime(ctx context.Context, participantID string, start, cont time.Time) (*model.Session, error)
	RecordChoice(ctx context.Context, participantID, productID string, at time.Time) (*model.Session, error)
	SubmitPostSurvey(ctx context.Context, participantID string, answers model.PostSurvey) (*model.Session, error)
	Complete(ctx context.Context, participantID string, at time.Time) (*model.Session, error)
	LogEvent(ctx context.Context, in model.EventInput) (*model.Event, error)
}

// Sync accepts persistence calls without waiting for them.
type Sync interface {
	BestEffort(ctx context.Context, t syncer.Task) bool
}

// Transition describes one step change.
type Transition struct {
	From types.Step
	To   types.Step
	At   time.Time
}

// Snapshot is a copy of the observable workflow state.
type Snapshot struct {
	Step          types.Step
	ParticipantID string
	Condition     types.Condition
	Requirements  *model.Requirements
	ProductIndex  int
	Product       *content.Product
	HurryUp       bool
	Counting      bool // a requirement countdown is running
	Remaining     time.Duration
	Aborted       bool
	Choice        string
	Session       *model.Session
}

// Workflow sequences one participant.
type Workflow struct {
	api       API
	sync      Sync
	sched     Scheduler
	pacing    Pacing
	catalog   content.Catalog
	observers []func(Transition)
	log       logger.Logger

	// Owned by the scheduler.
	ctx           context.Context
	participantID string
	mirror        *model.Session
	step          types.Step
	req           model.Requirements
	productIdx    int
	countdown     *Countdown
	delay         Token
	hurry         bool
	aborted       bool
	guideStart    time.Time
	choice        string

	obs struct {
		mu      sync.Mutex
		step    types.Step
		changed chan struct{}
	}
}

// New creates a workflow in the start step.
func New(api API, s Sync, sched Scheduler, opts ...Option) *Workflow {
	w := &Workflow{
		api:     api,
		sync:    s,
		sched:   sched,
		pacing:  DefaultPacing(),
		catalog: content.Default(),
		ctx:     context.Background(),
		step:    types.StepStart,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.log == nil {
		w.log = logger.Get().Named("workflow")
	}
	w.obs.step = types.StepStart
	w.obs.changed = make(chan struct{})
	return w
}

// Begin creates the participant's session. It is the only call that waits
// for the server, and its error is returned unchanged.
func (w *Workflow) Begin(ctx context.Context) (*model.Session, error) {
	if err := w.do(func() error {
		if w.participantID != "" {
			return ErrInvalidTransition
		}
		return nil
	}); err != nil {
		return nil, err
	}

	sess, err := w.api.CreateSession(ctx)
	if err != nil {
		w.log.Error(ctx, "session creation failed", logger.Error(err))
		return nil, err
	}

	err = w.do(func() error {
		w.ctx = context.WithoutCancel(ctx)
		w.participantID = sess.ParticipantID
		w.mirror = sess.Clone()
		w.logEvent(types.EventStepEntered, types.StepStart,
			model.StepEnteredData{To: types.StepStart, At: w.sched.Now()}.Blob())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Snapshot returns the current state.
func (w *Workflow) Snapshot() Snapshot {
	var snap Snapshot
	_ = w.do(func() error {
		snap = Snapshot{
			Step:          w.step,
			ParticipantID: w.participantID,
			Requirements:  w.req.Clone(),
			ProductIndex:  w.productIdx,
			HurryUp:       w.hurry,
			Counting:      w.countdown.Active(),
			Remaining:     w.countdown.Remaining(),
			Aborted:       w.aborted,
			Choice:        w.choice,
			Session:       w.mirror.Clone(),
		}
		if w.mirror != nil {
			snap.Condition = w.mirror.Condition
		}
		if w.step == types.StepProductCards && w.productIdx < len(w.catalog.Products) {
			p := w.catalog.Products[w.productIdx]
			snap.Product = &p
		}
		return nil
	})
	return snap
}

// Step returns the current step without going through the scheduler.
func (w *Workflow) Step() types.Step {
	w.obs.mu.Lock()
	defer w.obs.mu.Unlock()
	return w.obs.step
}

// Wait blocks until the workflow has reached step, or moved past it in flow
// order. It returns ErrFinished if the study ends at debrief first.
func (w *Workflow) Wait(ctx context.Context, step types.Step) error {
	target := slices.Index(types.Steps(), step)
	for {
		w.obs.mu.Lock()
		cur, changed := w.obs.step, w.obs.changed
		w.obs.mu.Unlock()

		if cur == step {
			return nil
		}
		if cur == types.StepDebrief {
			return ErrFinished
		}
		if target >= 0 && slices.Index(types.Steps(), cur) > target {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// do runs fn on the scheduler and waits for its result.
func (w *Workflow) do(fn func() error) error {
	res := make(chan error, 1)
	if !w.sched.Post(func() { res <- fn() }) {
		return ErrStopped
	}
	var stopped <-chan struct{}
	if d, ok := w.sched.(interface{ Done() <-chan struct{} }); ok {
		stopped = d.Done()
	}
	select {
	case err := <-res:
		return err
	case <-stopped:
		select {
		case err := <-res:
			return err
		default:
			return ErrStopped
		}
	}
}

// enter switches to step and arms whatever timer the step owns.
func (w *Workflow) enter(to types.Step) {
	from := w.step
	now := w.sched.Now()
	w.step = to
	w.hurry = false

	w.logEvent(types.EventStepEntered, to, model.StepEnteredData{From: from, To: to, At: now}.Blob())
	w.publish(Transition{From: from, To: to, At: now})

	switch to {
	case types.StepLoading:
		w.delay = w.sched.After(w.pacing.Loading, func() { w.enter(types.StepStarting) })
	case types.StepStarting:
		w.delay = w.sched.After(w.pacing.Starting, func() { w.enter(types.RequirementSteps()[0]) })
	case types.StepAmount, types.StepBudget, types.StepAttributes, types.StepGrind:
		step := to
		w.countdown = StartCountdown(w.sched, w.pacing.Countdown, w.pacing.HurryUp,
			func() {
				if w.step == step {
					w.hurry = true
				}
			},
			func() {
				if w.step == step {
					w.skipRequirement(step, "timeout")
				}
			},
		)
	case types.StepProductCards:
		w.productIdx = 0
		if len(w.catalog.Products) == 0 {
			w.enter(types.StepTransition)
		}
	case types.StepTransition:
		w.delay = w.sched.After(w.pacing.Transition, func() { w.enter(types.StepFinalGuide) })
	case types.StepFinalGuide:
		w.guideStart = now
		w.logEvent(types.EventGuideViewed, to, model.Blob{"recommended": w.catalog.RecommendedID})
	}
}

func (w *Workflow) publish(t Transition) {
	w.obs.mu.Lock()
	w.obs.step = t.To
	close(w.obs.changed)
	w.obs.changed = make(chan struct{})
	w.obs.mu.Unlock()

	for _, fn := range w.observers {
		fn(t)
	}
}

func (w *Workflow) cancelTimers() {
	w.countdown.Cancel()
	w.countdown = nil
	if w.delay != nil {
		w.delay.Cancel()
		w.delay = nil
	}
}
