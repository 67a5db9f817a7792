package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/shopstudy/internal/adapters/repository"
	service "github.com/okian/shopstudy/internal/app"
	"github.com/okian/shopstudy/internal/domain/assignment"
	"github.com/okian/shopstudy/internal/domain/model"
	"github.com/okian/shopstudy/internal/domain/types"
	"github.com/okian/shopstudy/pkg/logger"
	"github.com/okian/shopstudy/pkg/metrics"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

// failingStore fails LogEvent or UpdateSession on demand.
type failingStore struct {
	repository.Store
	failUpdate bool
	failLog    bool
	logged     int
}

var errInjected = errors.New("injected")

func (f *failingStore) UpdateSession(ctx context.Context, id string, p model.SessionPatch) (*model.Session, error) {
	if f.failUpdate {
		return nil, errInjected
	}
	return f.Store.UpdateSession(ctx, id, p)
}

func (f *failingStore) LogEvent(ctx context.Context, in model.EventInput) (*model.Event, error) {
	if f.failLog {
		return nil, errInjected
	}
	f.logged++
	return f.Store.LogEvent(ctx, in)
}

func newFileStore(t *testing.T) repository.Store {
	t.Helper()
	store, err := repository.OpenFileStore(context.Background(), t.TempDir(), repository.WithLogger(logger.NewNop()))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return store
}

func startedService(t *testing.T, store repository.Store) *service.Service {
	t.Helper()
	if store == nil {
		store = newFileStore(t)
	}
	svc := service.New(
		service.WithStore(store),
		service.WithLogger(logger.NewNop()),
		service.WithAssigner(assignment.Fixed(types.ConditionTreatment)),
	)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	return svc
}

func gaugeValue(name string) float64 {
	families, err := metrics.GetRegistry().Gather()
	if err != nil {
		return -1
	}
	for _, mf := range families {
		if mf.GetName() == name && len(mf.GetMetric()) > 0 {
			return mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	return -1
}

func TestService_Lifecycle(t *testing.T) {
	ctx := context.Background()

	Convey("Given a service without a store", t, func() {
		svc := service.New(service.WithLogger(logger.NewNop()))

		Convey("Start fails", func() {
			So(errors.Is(svc.Start(ctx), service.ErrNoStore), ShouldBeTrue)
		})

		Convey("Operations report it is not started", func() {
			_, err := svc.CreateSession(ctx)
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			So(svc.GetStats()["started"], ShouldEqual, false)
		})
	})

	Convey("Given a started service", t, func() {
		svc := startedService(t, nil)

		Convey("Stats report the backend and counts", func() {
			stats := svc.GetStats()
			So(stats["started"], ShouldEqual, true)
			So(stats["backend"], ShouldEqual, "file")
			So(stats["sessions"], ShouldEqual, 0)
			So(stats["counters"], ShouldNotBeNil)
		})

		Convey("Stats publish the store gauges", func() {
			_, err := svc.CreateSession(ctx)
			So(err, ShouldBeNil)
			_, err = svc.CreateSession(ctx)
			So(err, ShouldBeNil)

			stats := svc.GetStats()
			So(gaugeValue("shopstudy_api_sessions"), ShouldEqual, 2.0)
			So(gaugeValue("shopstudy_api_events"), ShouldEqual, float64(stats["events"].(int)))
		})

		Convey("Stop is idempotent and closes the store", func() {
			So(svc.Stop(ctx), ShouldBeNil)
			So(svc.Stop(ctx), ShouldBeNil)
			So(svc.GetStats()["started"], ShouldEqual, false)
			_, err := svc.GetSession(ctx, "anything")
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
		})
	})
}

func TestService_CreateSession(t *testing.T) {
	ctx := context.Background()

	Convey("Given a service with a fixed assigner", t, func() {
		svc := startedService(t, nil)
		defer svc.Stop(ctx)

		sess, err := svc.CreateSession(ctx)
		So(err, ShouldBeNil)

		Convey("The session carries the assigned condition and defaults", func() {
			So(sess.ParticipantID, ShouldNotBeEmpty)
			So(sess.Condition, ShouldEqual, types.ConditionTreatment)
			So(sess.ConsentAge, ShouldBeFalse)
			So(sess.ProductRatings, ShouldBeEmpty)
		})

		Convey("A session_created event is logged", func() {
			events, err := svc.Events(ctx, sess.ParticipantID)
			So(err, ShouldBeNil)
			So(events, ShouldHaveLength, 1)
			So(events[0].EventType, ShouldEqual, types.EventSessionCreated)
			So(events[0].EventData.String("condition"), ShouldEqual, "treatment")
		})
	})
}

func TestService_Mutations(t *testing.T) {
	ctx := context.Background()

	Convey("Given a created session", t, func() {
		svc := startedService(t, nil)
		defer svc.Stop(ctx)
		sess, err := svc.CreateSession(ctx)
		So(err, ShouldBeNil)
		id := sess.ParticipantID

		lastEvent := func() *model.Event {
			events, err := svc.Events(ctx, id)
			So(err, ShouldBeNil)
			return events[len(events)-1]
		}

		Convey("Full consent logs consent_given", func() {
			got, err := svc.RecordConsent(ctx, id, true, true)
			So(err, ShouldBeNil)
			So(got.ConsentAge, ShouldBeTrue)
			So(got.ConsentData, ShouldBeTrue)
			So(lastEvent().EventType, ShouldEqual, types.EventConsentGiven)
		})

		Convey("Partial consent logs consent_declined", func() {
			got, err := svc.RecordConsent(ctx, id, true, false)
			So(err, ShouldBeNil)
			So(got.ConsentData, ShouldBeFalse)
			So(lastEvent().EventType, ShouldEqual, types.EventConsentDeclined)
		})

		Convey("Requirements without target derive it from the catalog", func() {
			req := model.Requirements{
				Amount: &model.RequirementAnswer{Selected: []string{"250_500"}},
				Budget: &model.RequirementAnswer{Selected: []string{"under_10"}},
				Grind:  &model.RequirementAnswer{Skipped: true, SkipReason: "timeout"},
			}
			got, err := svc.UpdateRequirements(ctx, id, req, nil, nil)
			So(err, ShouldBeNil)
			So(got.NormalizedTarget, ShouldNotBeNil)
			So(got.NormalizedTarget.MinGrams, ShouldEqual, 250)
			So(got.NormalizedTarget.MaxGrams, ShouldEqual, 500)
			So(got.DeviationFlags, ShouldNotBeNil)
			So(got.DeviationFlags.OverBudget, ShouldBeTrue)

			ev := lastEvent()
			So(ev.EventType, ShouldEqual, types.EventRequirementsUpdated)
			So(ev.EventData["answered"], ShouldResemble, []any{"amount", "budget"})
			So(ev.EventData["deviates"], ShouldEqual, true)
		})

		Convey("Client supplied target and flags are stored as given", func() {
			target := &model.NormalizedTarget{MinGrams: 1}
			flags := &model.DeviationFlags{}
			got, err := svc.UpdateRequirements(ctx, id, model.Requirements{}, target, flags)
			So(err, ShouldBeNil)
			So(got.NormalizedTarget.MinGrams, ShouldEqual, 1)
			So(got.DeviationFlags.Any(), ShouldBeFalse)
		})

		Convey("Ratings append in order and are not deduplicated", func() {
			_, err := svc.AddRating(ctx, id, model.RatingAction{ProductID: "c1", Action: types.RatingInterested})
			So(err, ShouldBeNil)
			got, err := svc.AddRating(ctx, id, model.RatingAction{ProductID: "c1", Action: types.RatingNotInterested, Reason: "price"})
			So(err, ShouldBeNil)
			So(got.ProductRatings, ShouldHaveLength, 2)
			So(got.ProductRatings[0].Action, ShouldEqual, types.RatingInterested)
			So(got.ProductRatings[1].Reason, ShouldEqual, "price")
			So(got.ProductRatings[0].ClientTimestamp.IsZero(), ShouldBeFalse)

			ev := lastEvent()
			So(ev.EventType, ShouldEqual, types.EventProductRated)
			So(ev.EventData["index"], ShouldEqual, 1.0)
		})

		Convey("An unknown product is rejected before touching the store", func() {
			_, err := svc.AddRating(ctx, id, model.RatingAction{ProductID: "nope", Action: types.RatingInterested})
			So(errors.Is(err, service.ErrUnknownProduct), ShouldBeTrue)
			_, err = svc.RecordChoice(ctx, id, "nope", time.Time{})
			So(errors.Is(err, service.ErrUnknownProduct), ShouldBeTrue)
			events, _ := svc.Events(ctx, id)
			So(events, ShouldHaveLength, 1)
		})

		Convey("Guide time computes seconds when absent", func() {
			start := time.Date(2026, 5, 2, 12, 0, 0, 0, time.UTC)
			got, err := svc.RecordGuideTime(ctx, id, start, start.Add(90*time.Second), nil)
			So(err, ShouldBeNil)
			So(*got.GuideReadSeconds, ShouldEqual, 90.0)
			So(lastEvent().EventType, ShouldEqual, types.EventGuideTimeRecorded)

			_, err = svc.RecordGuideTime(ctx, id, start, start.Add(-time.Second), nil)
			So(errors.Is(err, service.ErrInvalidInput), ShouldBeTrue)
		})

		Convey("Choice, post-survey and completion are recorded", func() {
			got, err := svc.RecordChoice(ctx, id, "c6", time.Time{})
			So(err, ShouldBeNil)
			So(*got.ChoiceProductID, ShouldEqual, "c6")
			So(got.ChoiceTimestamp, ShouldNotBeNil)
			So(lastEvent().EventData["recommended"], ShouldEqual, true)

			_, err = svc.SubmitPostSurvey(ctx, id, model.PostSurvey{Satisfaction: 6, Trust: 5, PerceivedControl: 4, Confidence: 6, WouldUseAgain: 7})
			So(err, ShouldBeNil)

			got, err = svc.Complete(ctx, id, time.Time{})
			So(err, ShouldBeNil)
			So(got.Completed(), ShouldBeTrue)
			So(lastEvent().EventType, ShouldEqual, types.EventStudyCompleted)
		})

		Convey("Re-submission overwrites", func() {
			_, err := svc.SubmitPreSurvey(ctx, id, model.PreSurvey{AgeRange: "18-24", Gender: "x", ShoppingFrequency: "daily", AIFamiliarity: 1, AITrust: 1})
			So(err, ShouldBeNil)
			got, err := svc.SubmitPreSurvey(ctx, id, model.PreSurvey{AgeRange: "25-34", Gender: "x", ShoppingFrequency: "daily", AIFamiliarity: 2, AITrust: 2})
			So(err, ShouldBeNil)
			So(got.PreSurvey.AgeRange, ShouldEqual, "25-34")
			events, _ := svc.Events(ctx, id)
			So(events, ShouldHaveLength, 3)
		})
	})
}

func TestService_UnknownParticipant(t *testing.T) {
	ctx := context.Background()

	Convey("Given an unknown participant id", t, func() {
		svc := startedService(t, nil)
		defer svc.Stop(ctx)

		Convey("Reads and mutations return ErrNotFound and log nothing", func() {
			_, err := svc.GetSession(ctx, "missing")
			So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)
			_, err = svc.RecordConsent(ctx, "missing", true, true)
			So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)
			_, err = svc.AddRating(ctx, "missing", model.RatingAction{ProductID: "c1", Action: types.RatingInterested})
			So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)

			events, err := svc.AllEvents(ctx)
			So(err, ShouldBeNil)
			So(events, ShouldBeEmpty)
		})

		Convey("Generic events are accepted anyway", func() {
			ev, err := svc.LogEvent(ctx, model.EventInput{ParticipantID: "missing", EventType: "custom_tag"})
			So(err, ShouldBeNil)
			So(ev.ID, ShouldNotBeEmpty)
		})
	})
}

func TestService_StorageFaults(t *testing.T) {
	ctx := context.Background()

	Convey("Given a store that fails updates", t, func() {
		fs := &failingStore{Store: newFileStore(t)}
		svc := startedService(t, fs)
		defer svc.Stop(ctx)
		sess, err := svc.CreateSession(ctx)
		So(err, ShouldBeNil)
		logged := fs.logged
		fs.failUpdate = true

		Convey("The mutation fails and no event is logged", func() {
			_, err := svc.RecordConsent(ctx, sess.ParticipantID, true, true)
			So(errors.Is(err, errInjected), ShouldBeTrue)
			So(fs.logged, ShouldEqual, logged)
		})
	})

	Convey("Given a store that fails event logging", t, func() {
		fs := &failingStore{Store: newFileStore(t), failLog: true}
		svc := startedService(t, fs)
		defer svc.Stop(ctx)

		Convey("Session creation surfaces the fault", func() {
			_, err := svc.CreateSession(ctx)
			So(errors.Is(err, errInjected), ShouldBeTrue)
		})
	})
}
