package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then every collector is registered", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "shopstudy")
				manager.sessionsCreated.WithLabelValues("control").Inc()
				n, err := testutil.GatherAndCount(registry, "shopstudy_api_sessions_created_total")
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("study"),
				WithSubsystem("pilot"),
				WithMetricPrefix("v2"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then names carry the namespace, subsystem and prefix", func() {
				So(manager.histogramBuckets, ShouldResemble, []float64{0.1, 0.5, 1.0})
				manager.sessionsCompleted.Inc()
				n, err := testutil.GatherAndCount(registry, "study_pilot_v2_sessions_completed_total")
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
			})
		})

		Convey("When metrics are disabled", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithMetricsEnabled(false), WithPrometheusRegistry(registry))

			Convey("Then collectors work but nothing is registered", func() {
				So(func() { manager.eventsLogged.WithLabelValues("step_entered").Inc() }, ShouldNotPanic)
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				So(families, ShouldBeEmpty)
			})
		})

		Convey("When empty option values are given", func() {
			manager := NewManager(
				WithNamespace(""),
				WithSubsystem(""),
				WithHistogramBuckets(nil),
				WithPrometheusRegistry(prometheus.NewRegistry()),
			)

			Convey("Then defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "shopstudy")
				So(manager.subsystem, ShouldEqual, "api")
				So(manager.histogramBuckets, ShouldNotBeEmpty)
			})
		})
	})
}

func TestStudyRecorders(t *testing.T) {
	Convey("Given the global recorders", t, func() {
		Convey("When a session moves through the study", func() {
			before := testutil.ToFloat64(globalManager.sessionsCreated.WithLabelValues("treatment"))
			RecordSessionCreated("treatment")
			RecordSessionUpdate("pre_survey")
			RecordEventLogged("step_entered")
			RecordRating("interested")
			RecordSessionCompleted()

			Convey("Then the counters move", func() {
				So(testutil.ToFloat64(globalManager.sessionsCreated.WithLabelValues("treatment")), ShouldEqual, before+1)
				So(testutil.ToFloat64(globalManager.ratingsRecorded.WithLabelValues("interested")), ShouldBeGreaterThanOrEqualTo, 1)
			})
		})

		Convey("When gauges are updated", func() {
			UpdateStoreTotals(12, 340)
			UpdateSyncQueueSize(3)

			Convey("Then they hold the last value", func() {
				So(testutil.ToFloat64(globalManager.sessionsTotal), ShouldEqual, 12)
				So(testutil.ToFloat64(globalManager.eventsTotal), ShouldEqual, 340)
				So(testutil.ToFloat64(globalManager.syncQueueSize), ShouldEqual, 3)
			})
		})

		Convey("When a store operation fails", func() {
			before := testutil.ToFloat64(globalManager.storeErrors.WithLabelValues("file", "update"))
			RecordStoreOperation("file", "update", 1.5, errors.New("disk full"))
			RecordStoreOperation("file", "update", 0.7, nil)

			Convey("Then only the failure is counted as an error", func() {
				So(testutil.ToFloat64(globalManager.storeErrors.WithLabelValues("file", "update")), ShouldEqual, before+1)
			})
		})

		Convey("When recording the remaining families", func() {
			So(func() {
				RecordAdminAuthFailure("/admin/sessions")
				RecordExport("csv")
				RecordSyncTask("rating", "ok")
				RecordSyncTask("complete", "duplicate")
				RecordHTTPRequest("/session", "POST", "200")
				RecordHTTPRequestDuration("/session", "POST", "200", 4.2)
				RecordErrorByComponent("repository", "io")
				RecordErrorByType("io", "error")
				RecordErrorByEndpoint("/event", "POST", "validation_error")
				RecordErrorLatency("repository", "io", 12)
				UpdateSystemMemoryUsage(64 << 20)
				UpdateSystemGoroutineCount(42)
				RecordSystemGCPauseTime(0.3)
			}, ShouldNotPanic)
		})
	})
}

func TestTotals(t *testing.T) {
	Convey("Given recorded counters", t, func() {
		RecordExport("jsonl")
		RecordExport("csv")

		Convey("When totals are gathered", func() {
			totals, err := Totals()

			Convey("Then counter families are summed across labels", func() {
				So(err, ShouldBeNil)
				So(totals["shopstudy_api_exports_total"], ShouldBeGreaterThanOrEqualTo, 2)
				_, hasGauge := totals["shopstudy_api_sessions"]
				So(hasGauge, ShouldBeFalse)
			})
		})
	})
}

func TestGetRegistry(t *testing.T) {
	Convey("Given the custom registry", t, func() {
		So(GetRegistry(), ShouldNotBeNil)
		So(GetRegistry(), ShouldEqual, customRegistry)
	})
}
