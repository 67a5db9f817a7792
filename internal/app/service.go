// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/shopstudy/internal/adapters/repository"
	"github.com/okian/shopstudy/internal/content"
	"github.com/okian/shopstudy/internal/domain/assignment"
	"github.com/okian/shopstudy/internal/domain/model"
	"github.com/okian/shopstudy/internal/domain/preferences"
	"github.com/okian/shopstudy/internal/domain/types"
	"github.com/okian/shopstudy/internal/export"
	"github.com/okian/shopstudy/pkg/logger"
	"github.com/okian/shopstudy/pkg/metrics"
)

// Service implements the API dependencies for the study backend.
type Service struct {
	mu sync.RWMutex

	// Core components
	store    repository.Store
	assigner assignment.Assigner
	catalog  content.Catalog
	now      func() time.Time

	// State
	started bool

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the session store. The service owns it from Start on and
// closes it in Stop.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithAssigner sets the condition assigner.
func WithAssigner(a assignment.Assigner) Option {
	return func(s *Service) {
		if a != nil {
			s.assigner = a
		}
	}
}

// WithCatalog sets the content used to validate choices and normalize
// requirements.
func WithCatalog(c content.Catalog) Option {
	return func(s *Service) {
		s.catalog = c
	}
}

// WithClock overrides the time source for fields the service fills in.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		assigner: assignment.NewRandomAssigner(),
		catalog:  content.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start checks the service is wired and marks it ready.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	if s.store == nil {
		return ErrNoStore
	}

	sessions, events, err := s.store.Counts(ctx)
	if err != nil {
		return fmt.Errorf("service start: %w", err)
	}
	metrics.UpdateStoreTotals(sessions, events)

	s.started = true
	s.logger.Info(ctx, "study service started",
		logger.String("backend", s.store.Backend()),
		logger.Int("sessions", sessions),
		logger.Int("events", events),
	)
	return nil
}

// Stop closes the store. It is safe to call more than once.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.started = false
	s.logger.Info(ctx, "stopping study service...")
	if err := s.store.Close(ctx); err != nil {
		s.logger.Error(ctx, "failed to close store", logger.Error(err))
		return err
	}
	s.logger.Info(ctx, "study service stopped")
	return nil
}

func (s *Service) ready() (repository.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.store, nil
}

// CreateSession assigns a condition, persists a fresh session and logs
// session_created.
func (s *Service) CreateSession(ctx context.Context) (*model.Session, error) {
	store, err := s.ready()
	if err != nil {
		return nil, err
	}
	cond := s.assigner.Assign(ctx)
	sess, err := store.CreateSession(ctx, cond)
	if err != nil {
		return nil, err
	}
	metrics.RecordSessionCreated(string(cond))

	if _, err := s.logEvent(ctx, store, model.EventInput{
		ParticipantID: sess.ParticipantID,
		EventType:     types.EventSessionCreated,
		Step:          types.StepStart,
		EventData:     model.Blob{"condition": string(cond)},
	}); err != nil {
		return nil, err
	}
	s.logger.Debug(ctx, "session created",
		logger.String("participantID", sess.ParticipantID),
		logger.String("condition", string(cond)),
	)
	return sess, nil
}

// GetSession returns ErrNotFound for an unknown participant.
func (s *Service) GetSession(ctx context.Context, participantID string) (*model.Session, error) {
	store, err := s.ready()
	if err != nil {
		return nil, err
	}
	return store.GetSession(ctx, participantID)
}

// RecordConsent stores both consent flags. Anything short of both being
// true is logged as a decline.
func (s *Service) RecordConsent(ctx context.Context, participantID string, age, data bool) (*model.Session, error) {
	et := types.EventConsentDeclined
	if age && data {
		et = types.EventConsentGiven
	}
	return s.mutate(ctx, participantID,
		model.SessionPatch{ConsentAge: &age, ConsentData: &data},
		model.EventInput{
			EventType: et,
			Step:      types.StepStart,
			EventData: model.Blob{"consentAge": age, "consentData": data},
		})
}

// SubmitPreSurvey overwrites the pre-survey answers.
func (s *Service) SubmitPreSurvey(ctx context.Context, participantID string, answers model.PreSurvey) (*model.Session, error) {
	return s.mutate(ctx, participantID,
		model.SessionPatch{PreSurvey: &answers},
		model.EventInput{EventType: types.EventPreSurveySubmitted, Step: types.StepPreSurvey})
}

// UpdateRequirements replaces the requirement record. A missing target or
// missing flags are derived from the requirements and the catalog.
func (s *Service) UpdateRequirements(ctx context.Context, participantID string, req model.Requirements, target *model.NormalizedTarget, flags *model.DeviationFlags) (*model.Session, error) {
	if target == nil || flags == nil {
		t, f := preferences.Evaluate(&req, s.catalog)
		if target == nil {
			target = &t
		}
		if flags == nil {
			flags = &f
		}
	}

	answered := make([]any, 0, len(types.RequirementSteps()))
	for _, step := range types.RequirementSteps() {
		if a := req.Answer(step); a != nil && !a.Skipped {
			answered = append(answered, string(step))
		}
	}
	return s.mutate(ctx, participantID,
		model.SessionPatch{Requirements: &req, NormalizedTarget: target, DeviationFlags: flags},
		model.EventInput{
			EventType: types.EventRequirementsUpdated,
			EventData: model.Blob{"answered": answered, "deviates": flags.Any()},
		})
}

// AddRating appends one rating. Duplicates are kept.
func (s *Service) AddRating(ctx context.Context, participantID string, r model.RatingAction) (*model.Session, error) {
	if _, ok := s.catalog.Product(r.ProductID); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProduct, r.ProductID)
	}
	if r.ClientTimestamp.IsZero() {
		r.ClientTimestamp = s.now()
	}
	store, err := s.ready()
	if err != nil {
		return nil, err
	}
	sess, err := store.UpdateSession(ctx, participantID, model.SessionPatch{AppendRatings: []model.RatingAction{r}})
	if err != nil {
		return nil, err
	}
	metrics.RecordSessionUpdate("ratings")
	metrics.RecordRating(string(r.Action))

	data := model.ProductRatedData{
		ProductID: r.ProductID,
		Action:    r.Action,
		Reason:    r.Reason,
		Index:     len(sess.ProductRatings) - 1,
	}
	if _, err := s.logEvent(ctx, store, model.EventInput{
		ParticipantID: participantID,
		EventType:     types.EventProductRated,
		Step:          types.StepProductCards,
		EventData:     data.Blob(),
	}); err != nil {
		return nil, err
	}
	return sess, nil
}

// RecordGuideTime stores the guide reading window. When seconds is nil it
// is computed from the two timestamps.
func (s *Service) RecordGuideTime(ctx context.Context, participantID string, start, cont time.Time, seconds *float64) (*model.Session, error) {
	if cont.Before(start) {
		return nil, fmt.Errorf("%w: guide continue precedes view start", ErrInvalidInput)
	}
	if seconds == nil {
		d := cont.Sub(start).Seconds()
		seconds = &d
	}
	return s.mutate(ctx, participantID,
		model.SessionPatch{GuideViewStartTs: &start, GuideContinueTs: &cont, GuideReadSeconds: seconds},
		model.EventInput{
			EventType: types.EventGuideTimeRecorded,
			Step:      types.StepFinalGuide,
			EventData: model.Blob{"seconds": *seconds},
		})
}

// RecordChoice stores the final product decision.
func (s *Service) RecordChoice(ctx context.Context, participantID, productID string, at time.Time) (*model.Session, error) {
	if _, ok := s.catalog.Product(productID); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProduct, productID)
	}
	if at.IsZero() {
		at = s.now()
	}
	recommended := productID == s.catalog.RecommendedID
	return s.mutate(ctx, participantID,
		model.SessionPatch{ChoiceProductID: &productID, ChoiceTimestamp: &at},
		model.EventInput{
			EventType: types.EventChoiceMade,
			Step:      types.StepChoice,
			EventData: model.Blob{"productId": productID, "recommended": recommended},
		})
}

// SubmitPostSurvey overwrites the post-survey answers.
func (s *Service) SubmitPostSurvey(ctx context.Context, participantID string, answers model.PostSurvey) (*model.Session, error) {
	return s.mutate(ctx, participantID,
		model.SessionPatch{PostSurvey: &answers},
		model.EventInput{EventType: types.EventPostSurveySubmitted, Step: types.StepPostSurvey})
}

// Complete stamps completedAt, at now when at is zero.
func (s *Service) Complete(ctx context.Context, participantID string, at time.Time) (*model.Session, error) {
	if at.IsZero() {
		at = s.now()
	}
	sess, err := s.mutate(ctx, participantID,
		model.SessionPatch{CompletedAt: &at},
		model.EventInput{EventType: types.EventStudyCompleted, Step: types.StepDebrief})
	if err == nil {
		metrics.RecordSessionCompleted()
	}
	return sess, err
}

// LogEvent appends a free-form event without checking the participant.
func (s *Service) LogEvent(ctx context.Context, in model.EventInput) (*model.Event, error) {
	store, err := s.ready()
	if err != nil {
		return nil, err
	}
	return s.logEvent(ctx, store, in)
}

// ListSessions returns every session, newest first.
func (s *Service) ListSessions(ctx context.Context) ([]*model.Session, error) {
	store, err := s.ready()
	if err != nil {
		return nil, err
	}
	return store.ListSessions(ctx)
}

// AllEvents returns the full event log in append order.
func (s *Service) AllEvents(ctx context.Context) ([]*model.Event, error) {
	store, err := s.ready()
	if err != nil {
		return nil, err
	}
	return store.AllEvents(ctx)
}

// Events returns one participant's events.
func (s *Service) Events(ctx context.Context, participantID string) ([]*model.Event, error) {
	store, err := s.ready()
	if err != nil {
		return nil, err
	}
	return store.Events(ctx, participantID)
}

// ExportBundles pairs every session with its events for the exporters.
func (s *Service) ExportBundles(ctx context.Context) ([]export.Bundle, error) {
	store, err := s.ready()
	if err != nil {
		return nil, err
	}
	sessions, err := store.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	events, err := store.AllEvents(ctx)
	if err != nil {
		return nil, err
	}
	return export.Bundles(sessions, events), nil
}

// mutate applies one patch and, only if it succeeded, logs one event.
func (s *Service) mutate(ctx context.Context, participantID string, patch model.SessionPatch, in model.EventInput) (*model.Session, error) {
	store, err := s.ready()
	if err != nil {
		return nil, err
	}
	sess, err := store.UpdateSession(ctx, participantID, patch)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Error(ctx, "session update failed",
				logger.String("participantID", participantID),
				logger.Any("fields", patch.Fields()),
				logger.Error(err),
			)
		}
		return nil, err
	}
	for _, f := range patch.Fields() {
		metrics.RecordSessionUpdate(f)
	}

	in.ParticipantID = participantID
	if _, err := s.logEvent(ctx, store, in); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Service) logEvent(ctx context.Context, store repository.Store, in model.EventInput) (*model.Event, error) {
	ev, err := store.LogEvent(ctx, in)
	if err != nil {
		s.logger.Error(ctx, "event log failed",
			logger.String("participantID", in.ParticipantID),
			logger.String("eventType", string(in.EventType)),
			logger.Error(err),
		)
		return nil, err
	}
	metrics.RecordEventLogged(string(ev.EventType))
	return ev, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started": s.started,
	}
	if !s.started {
		return stats
	}

	stats["backend"] = s.store.Backend()
	sessions, events, err := s.store.Counts(context.Background())
	if err != nil {
		stats["error"] = err.Error()
		return stats
	}
	stats["sessions"] = sessions
	stats["events"] = events
	metrics.UpdateStoreTotals(sessions, events)
	if totals, err := metrics.Totals(); err == nil {
		stats["counters"] = totals
	}
	return stats
}
