package workflow_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/okian/shopstudy/internal/domain/model"
	"github.com/okian/shopstudy/internal/domain/types"
	"github.com/okian/shopstudy/internal/syncer"
)

var errOffline = errors.New("offline")

// fakeAPI keeps one session and records every call.
type fakeAPI struct {
	mu        sync.Mutex
	sess      *model.Session
	calls     []string
	events    []model.EventInput
	failAll   bool
	failStart bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{sess: model.NewSession("p-1", types.ConditionTreatment, epoch)}
}

func (f *fakeAPI) record(name string, mutate func(s *model.Session)) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	if f.failAll {
		return nil, errOffline
	}
	if mutate != nil {
		mutate(f.sess)
	}
	return f.sess.Clone(), nil
}

func (f *fakeAPI) callList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAPI) eventTypes() []types.EventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]types.EventType, len(f.events))
	for i, e := range f.events {
		out[i] = e.EventType
	}
	return out
}

func (f *fakeAPI) eventsOf(et types.EventType) []model.EventInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.EventInput
	for _, e := range f.events {
		if e.EventType == et {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeAPI) session() *model.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sess.Clone()
}

func (f *fakeAPI) CreateSession(context.Context) (*model.Session, error) {
	if f.failStart {
		return nil, errOffline
	}
	return f.record("create", nil)
}

func (f *fakeAPI) SubmitConsent(_ context.Context, _ string, age, data bool) (*model.Session, error) {
	return f.record("consent", func(s *model.Session) { s.ConsentAge, s.ConsentData = age, data })
}

func (f *fakeAPI) SubmitPreSurvey(_ context.Context, _ string, a model.PreSurvey) (*model.Session, error) {
	return f.record("pre_survey", func(s *model.Session) { s.PreSurvey = &a })
}

func (f *fakeAPI) UpdateRequirements(_ context.Context, _ string, req model.Requirements,
	target *model.NormalizedTarget, flags *model.DeviationFlags,
) (*model.Session, error) {
	return f.record("requirements", func(s *model.Session) {
		s.Requirements, s.NormalizedTarget, s.DeviationFlags = &req, target, flags
	})
}

func (f *fakeAPI) AddRating(_ context.Context, _ string, r model.RatingAction) (*model.Session, error) {
	return f.record("rating", func(s *model.Session) { s.ProductRatings = append(s.ProductRatings, r) })
}

func (f *fakeAPI) RecordGuideTime(_ context.Context, _ string, start, cont time.Time) (*model.Session, error) {
	return f.record("guide_time", func(s *model.Session) {
		secs := cont.Sub(start).Seconds()
		s.GuideViewStartTs, s.GuideContinueTs, s.GuideReadSeconds = &start, &cont, &secs
	})
}

func (f *fakeAPI) RecordChoice(_ context.Context, _ string, productID string, at time.Time) (*model.Session, error) {
	return f.record("choice", func(s *model.Session) { s.ChoiceProductID, s.ChoiceTimestamp = &productID, &at })
}

func (f *fakeAPI) SubmitPostSurvey(_ context.Context, _ string, a model.PostSurvey) (*model.Session, error) {
	return f.record("post_survey", func(s *model.Session) { s.PostSurvey = &a })
}

func (f *fakeAPI) Complete(_ context.Context, _ string, at time.Time) (*model.Session, error) {
	return f.record("complete", func(s *model.Session) { s.CompletedAt = &at })
}

func (f *fakeAPI) LogEvent(_ context.Context, in model.EventInput) (*model.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return nil, errOffline
	}
	f.events = append(f.events, in)
	return &model.Event{ID: "e", ParticipantID: in.ParticipantID, EventType: in.EventType}, nil
}

// inlineSync runs every task immediately on the caller and remembers it.
type inlineSync struct {
	tasks  []syncer.Task
	failed int
}

func (s *inlineSync) BestEffort(ctx context.Context, t syncer.Task) bool {
	s.tasks = append(s.tasks, t)
	if _, err := t.Call(ctx); err != nil {
		s.failed++
	}
	return true
}

func (s *inlineSync) keys() []string {
	var out []string
	for _, t := range s.tasks {
		if t.Key != "" {
			out = append(out, t.Key)
		}
	}
	return out
}
