// Package metrics provides Prometheus metrics for the shopstudy service.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Manager owns every collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Study
	sessionsCreated   *prometheus.CounterVec
	sessionUpdates    *prometheus.CounterVec
	eventsLogged      *prometheus.CounterVec
	ratingsRecorded   *prometheus.CounterVec
	sessionsCompleted prometheus.Counter
	sessionsTotal     prometheus.Gauge
	eventsTotal       prometheus.Gauge

	// Admin surface
	adminAuthFailures *prometheus.CounterVec
	exportsServed     *prometheus.CounterVec

	// Store
	storeOpLatency *prometheus.HistogramVec
	storeErrors    *prometheus.CounterVec

	// Client-side best-effort sync
	syncTasks     *prometheus.CounterVec
	syncQueueSize prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // package-level recorders write here

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // served by /healthz

func init() { //nolint:gochecknoinits // global recorders must be usable without setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "shopstudy",
		subsystem:        "api",
		histogramBuckets: []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		enabled:          true,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registerer()).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registerer()).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registerer()).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	}, labels)
}

// registerer returns nil when metrics are disabled, so collectors are created
// but never exposed.
func (m *Manager) registerer() prometheus.Registerer {
	if !m.enabled {
		return nil
	}
	return m.registry
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.sessionsCreated = m.counterVec("sessions_created_total",
		"Sessions created, by assigned condition", "condition")
	m.sessionUpdates = m.counterVec("session_updates_total",
		"Partial session updates applied, by field group", "field")
	m.eventsLogged = m.counterVec("events_logged_total",
		"Telemetry events appended, by event type", "event_type")
	m.ratingsRecorded = m.counterVec("ratings_recorded_total",
		"Product rating actions appended, by action", "action")
	m.sessionsCompleted = m.counterVec("sessions_completed_total",
		"Sessions marked complete").WithLabelValues()
	m.sessionsTotal = m.gauge("sessions", "Sessions currently held by the store")
	m.eventsTotal = m.gauge("events", "Events currently held by the store")

	m.adminAuthFailures = m.counterVec("admin_auth_failures_total",
		"Admin requests rejected for a wrong password, by route", "route")
	m.exportsServed = m.counterVec("exports_total",
		"Export downloads served, by format", "format")

	m.storeOpLatency = m.histogramVec("store_operation_latency_milliseconds",
		"Latency of session store operations", m.histogramBuckets, "backend", "op")
	m.storeErrors = m.counterVec("store_errors_total",
		"Session store operations that failed", "backend", "op")

	m.syncTasks = m.counterVec("sync_tasks_total",
		"Best-effort sync tasks, by task and outcome", "task", "outcome")
	m.syncQueueSize = m.gauge("sync_queue_size", "Pending best-effort sync tasks")

	m.httpRequests = m.counterVec("http_requests_total",
		"HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", m.histogramBuckets, "endpoint", "method", "status_code")

	m.errorRateByComponent = m.counterVec("errors_by_component_total",
		"Errors by component and type", "component", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total",
		"Errors by type and severity", "error_type", "severity")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total",
		"Errors by endpoint", "endpoint", "method", "error_type")
	m.errorLatency = m.histogramVec("error_latency_milliseconds",
		"Latency of operations that ended in an error", m.histogramBuckets, "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Number of goroutines")
	m.systemGCPauseTime = promauto.With(m.registerer()).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("system_gc_pause_milliseconds"),
		Help:        "Average GC pause in milliseconds",
		Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100},
		ConstLabels: m.customLabels,
	})
}

// RecordSessionCreated counts a new session for its condition.
func RecordSessionCreated(condition string) {
	globalManager.sessionsCreated.WithLabelValues(condition).Inc()
}

// RecordSessionUpdate counts a merged partial update.
func RecordSessionUpdate(field string) {
	globalManager.sessionUpdates.WithLabelValues(field).Inc()
}

// RecordEventLogged counts an appended telemetry event.
func RecordEventLogged(eventType string) {
	globalManager.eventsLogged.WithLabelValues(eventType).Inc()
}

// RecordRating counts an appended rating action.
func RecordRating(action string) {
	globalManager.ratingsRecorded.WithLabelValues(action).Inc()
}

// RecordSessionCompleted counts a completion.
func RecordSessionCompleted() {
	globalManager.sessionsCompleted.Inc()
}

// UpdateStoreTotals sets the session and event gauges.
func UpdateStoreTotals(sessions, events int) {
	globalManager.sessionsTotal.Set(float64(sessions))
	globalManager.eventsTotal.Set(float64(events))
}

// RecordAdminAuthFailure counts a rejected admin password.
func RecordAdminAuthFailure(route string) {
	globalManager.adminAuthFailures.WithLabelValues(route).Inc()
}

// RecordExport counts a served export.
func RecordExport(format string) {
	globalManager.exportsServed.WithLabelValues(format).Inc()
}

// RecordStoreOperation records the latency of a store call and counts failures.
func RecordStoreOperation(backend, op string, latencyMs float64, err error) {
	globalManager.storeOpLatency.WithLabelValues(backend, op).Observe(latencyMs)
	if err != nil {
		globalManager.storeErrors.WithLabelValues(backend, op).Inc()
	}
}

// RecordSyncTask counts a best-effort sync outcome: ok, failed, dropped or duplicate.
func RecordSyncTask(task, outcome string) {
	globalManager.syncTasks.WithLabelValues(task, outcome).Inc()
}

// UpdateSyncQueueSize sets the pending sync task gauge.
func UpdateSyncQueueSize(size int) {
	globalManager.syncQueueSize.Set(float64(size))
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Totals sums every counter family in the registry, keyed by fully qualified
// metric name. Used by the stats endpoint.
func Totals() (map[string]float64, error) {
	families, err := customRegistry.Gather()
	if err != nil {
		return nil, errors.Join(ErrGatherFailed, err)
	}
	out := make(map[string]float64)
	for _, mf := range families {
		if mf.GetType() != dto.MetricType_COUNTER {
			continue
		}
		var sum float64
		for _, m := range mf.GetMetric() {
			sum += m.GetCounter().GetValue()
		}
		out[mf.GetName()] = sum
	}
	return out, nil
}
