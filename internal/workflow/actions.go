package workflow

import (
	"context"
	"slices"

	"github.com/okian/shopstudy/internal/domain/dedupe"
	"github.com/okian/shopstudy/internal/domain/model"
	"github.com/okian/shopstudy/internal/domain/preferences"
	"github.com/okian/shopstudy/internal/domain/types"
	"github.com/okian/shopstudy/internal/syncer"
)

// Skip reasons recorded with requirement_skipped.
const (
	ReasonTimeout = "timeout"
	ReasonSkip    = "skip"
)

// action runs fn on the scheduler once the session exists and the
// workflow is in one of the allowed steps.
func (w *Workflow) action(fn func() error, allowed ...types.Step) error {
	return w.do(func() error {
		if w.participantID == "" {
			return ErrNotStarted
		}
		if len(allowed) > 0 && !slices.Contains(allowed, w.step) {
			return ErrInvalidTransition
		}
		return fn()
	})
}

// Consent records the two consent boxes. Declining either ends the study.
func (w *Workflow) Consent(age, data bool) error {
	return w.action(func() error {
		w.push("consent", true, func(ctx context.Context) (*model.Session, error) {
			return w.api.SubmitConsent(ctx, w.participantID, age, data)
		})
		if !age || !data {
			w.abort("consent_declined")
			return nil
		}
		w.enter(types.StepPreSurvey)
		return nil
	}, types.StepStart)
}

// Abort ends the study early from any step before debrief.
func (w *Workflow) Abort(reason string) error {
	return w.action(func() error {
		if w.step == types.StepDebrief {
			return ErrInvalidTransition
		}
		w.abort(reason)
		return nil
	})
}

func (w *Workflow) abort(reason string) {
	w.cancelTimers()
	w.aborted = true
	w.logEvent(types.EventStudyAborted, w.step, model.Blob{"reason": reason})
	w.enter(types.StepDebrief)
}

// SubmitPreSurvey stores the pre-task answers and starts the assistant.
func (w *Workflow) SubmitPreSurvey(answers model.PreSurvey) error {
	return w.action(func() error {
		w.push("pre_survey", true, func(ctx context.Context) (*model.Session, error) {
			return w.api.SubmitPreSurvey(ctx, w.participantID, answers)
		})
		w.enter(types.StepLoading)
		return nil
	}, types.StepPreSurvey)
}

// Answer answers the current requirement step. Every selected id must be
// an option of the step; at least one option or some free text is needed.
func (w *Workflow) Answer(selected []string, freeText string) error {
	return w.action(func() error {
		if len(selected) == 0 && freeText == "" {
			return ErrEmptyAnswer
		}
		for _, id := range selected {
			if _, ok := w.catalog.Option(w.step, id); !ok {
				return ErrUnknownOption
			}
		}
		step := w.step
		w.countdown.Cancel()
		w.req.Set(step, model.RequirementAnswer{
			Selected:   slices.Clone(selected),
			FreeText:   freeText,
			AnsweredAt: model.Normalize(w.sched.Now()),
		})
		w.logEvent(types.EventRequirementAnswered, step, model.RequirementAnsweredData{
			Step: step, Selected: selected, FreeText: freeText,
		}.Blob())
		w.syncRequirements()
		w.nextRequirement(step)
		return nil
	}, types.RequirementSteps()...)
}

// Skip passes on the current requirement step.
func (w *Workflow) Skip() error {
	return w.action(func() error {
		w.skipRequirement(w.step, ReasonSkip)
		return nil
	}, types.RequirementSteps()...)
}

func (w *Workflow) skipRequirement(step types.Step, reason string) {
	w.countdown.Cancel()
	w.req.Set(step, model.RequirementAnswer{
		Skipped:    true,
		SkipReason: reason,
		AnsweredAt: model.Normalize(w.sched.Now()),
	})
	w.logEvent(types.EventRequirementSkipped, step, model.RequirementSkippedData{Step: step, Reason: reason}.Blob())
	w.syncRequirements()
	w.nextRequirement(step)
}

func (w *Workflow) nextRequirement(step types.Step) {
	w.countdown = nil
	steps := types.RequirementSteps()
	i := slices.Index(steps, step)
	if i >= 0 && i+1 < len(steps) {
		w.enter(steps[i+1])
		return
	}
	w.enter(types.StepReviewGate)
}

// syncRequirements sends the whole requirement set with its derived target
// and flags.
func (w *Workflow) syncRequirements() {
	req := *w.req.Clone()
	target, flags := preferences.Evaluate(&req, w.catalog)
	w.push("requirements", false, func(ctx context.Context) (*model.Session, error) {
		return w.api.UpdateRequirements(ctx, w.participantID, req, &target, &flags)
	})
}

// ReviewProducts opens the product cards.
func (w *Workflow) ReviewProducts() error {
	return w.action(func() error {
		w.enter(types.StepProductCards)
		return nil
	}, types.StepReviewGate)
}

// SkipAll bypasses the product cards.
func (w *Workflow) SkipAll() error {
	return w.action(func() error {
		w.logEvent(types.EventProductCardsSkipped, w.step, nil)
		w.enter(types.StepTransition)
		return nil
	}, types.StepReviewGate)
}

// Rate judges the product card currently shown.
func (w *Workflow) Rate(productID string, kind types.RatingKind, reason string) error {
	return w.action(func() error {
		if w.productIdx >= len(w.catalog.Products) || w.catalog.Products[w.productIdx].ID != productID {
			return ErrUnknownProduct
		}
		if !kind.Valid() {
			return ErrUnknownOption
		}
		rating := model.RatingAction{
			ProductID:       productID,
			Action:          kind,
			Reason:          reason,
			ClientTimestamp: model.Normalize(w.sched.Now()),
		}
		w.push("rating", false, func(ctx context.Context) (*model.Session, error) {
			return w.api.AddRating(ctx, w.participantID, rating)
		})
		w.productIdx++
		if w.productIdx >= len(w.catalog.Products) {
			w.enter(types.StepTransition)
		}
		return nil
	}, types.StepProductCards)
}

// ContinueFromGuide leaves the recommendation guide.
func (w *Workflow) ContinueFromGuide() error {
	return w.action(func() error {
		start, cont := w.guideStart, w.sched.Now()
		w.push("guide_time", true, func(ctx context.Context) (*model.Session, error) {
			return w.api.RecordGuideTime(ctx, w.participantID, start, cont)
		})
		w.enter(types.StepChoice)
		return nil
	}, types.StepFinalGuide)
}

// Choose records the final product choice.
func (w *Workflow) Choose(productID string) error {
	return w.action(func() error {
		if _, ok := w.catalog.Product(productID); !ok {
			return ErrUnknownProduct
		}
		at := w.sched.Now()
		w.choice = productID
		w.push("choice", true, func(ctx context.Context) (*model.Session, error) {
			return w.api.RecordChoice(ctx, w.participantID, productID, at)
		})
		w.enter(types.StepPostSurvey)
		return nil
	}, types.StepChoice)
}

// SubmitPostSurvey stores the final answers and completes the study.
func (w *Workflow) SubmitPostSurvey(answers model.PostSurvey) error {
	return w.action(func() error {
		w.push("post_survey", true, func(ctx context.Context) (*model.Session, error) {
			return w.api.SubmitPostSurvey(ctx, w.participantID, answers)
		})
		at := w.sched.Now()
		w.push("complete", true, func(ctx context.Context) (*model.Session, error) {
			return w.api.Complete(ctx, w.participantID, at)
		})
		w.enter(types.StepDebrief)
		return nil
	}, types.StepPostSurvey)
}

// push hands a call to the syncer. A session it returns replaces the
// mirror on the scheduler.
func (w *Workflow) push(name string, once bool, call func(ctx context.Context) (*model.Session, error)) {
	t := syncer.Task{Name: name}
	if once {
		t.Key = dedupe.Key(w.participantID, name)
	}
	t.Call = func(ctx context.Context) (*model.Session, error) {
		sess, err := call(ctx)
		if err == nil && sess != nil {
			mirrored := sess.Clone()
			w.sched.Post(func() { w.mirror = mirrored })
		}
		return sess, err
	}
	w.sync.BestEffort(w.ctx, t)
}

func (w *Workflow) logEvent(et types.EventType, step types.Step, data model.Blob) {
	in := model.EventInput{ParticipantID: w.participantID, EventType: et, Step: step, EventData: data}
	w.push("event:"+string(et), false, func(ctx context.Context) (*model.Session, error) {
		_, err := w.api.LogEvent(ctx, in)
		return nil, err
	})
}
