// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	service "github.com/okian/shopstudy/internal/app"
	"github.com/okian/shopstudy/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	SessionDependencies
	EventDependencies
	AdminDependencies
}

// Server wires HTTP routes for the study API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	sessionHandler *SessionHandler
	eventsHandler  *EventsHandler
	adminHandler   *AdminHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	o := options{log: logger.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	codec := &codec{log: o.log, validate: NewValidator()}
	return &Server{
		healthHandler:  NewHealthHandler(),
		statsHandler:   NewStatsHandler(statsProvider),
		sessionHandler: NewSessionHandler(deps, codec),
		eventsHandler:  NewEventsHandler(deps, codec),
		adminHandler:   NewAdminHandler(deps, o.adminPassword, codec),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	handle := func(pattern, endpoint string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, MetricsMiddleware(h, endpoint))
	}

	handle("GET /healthz", "healthz", s.healthHandler.HandleHealth)
	handle("GET /stats", "stats", s.statsHandler.HandleStats)

	sh := s.sessionHandler
	handle("POST /api/session", "session_create", sh.HandleCreate)
	handle("GET /api/session/{id}", "session_get", sh.HandleGet)
	handle("PATCH /api/session/{id}/consent", "session_consent", sh.HandleConsent)
	handle("PATCH /api/session/{id}/pre-survey", "session_pre_survey", sh.HandlePreSurvey)
	handle("PATCH /api/session/{id}/requirements", "session_requirements", sh.HandleRequirements)
	handle("PATCH /api/session/{id}/guide-time", "session_guide_time", sh.HandleGuideTime)
	handle("PATCH /api/session/{id}/choice", "session_choice", sh.HandleChoice)
	handle("PATCH /api/session/{id}/post-survey", "session_post_survey", sh.HandlePostSurvey)
	handle("PATCH /api/session/{id}/complete", "session_complete", sh.HandleComplete)
	handle("POST /api/session/{id}/rating", "session_rating", sh.HandleRating)
	handle("POST /api/session/{id}/event", "session_event", s.eventsHandler.HandlePostEvent)

	ah := s.adminHandler
	handle("GET /api/admin/sessions", "admin_sessions", ah.HandleSessions)
	handle("GET /api/admin/events", "admin_events", ah.HandleEvents)
	handle("GET /api/admin/export/jsonl", "admin_export_jsonl", ah.HandleExportJSONL)
	handle("GET /api/admin/export/csv", "admin_export_csv", ah.HandleExportCSV)
}

// NewValidator returns a validator that reports JSON field names.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// codec decodes and validates request bodies and maps failures to responses.
type codec struct {
	log      logger.Logger
	validate *validator.Validate
}

// decode reads one JSON document into dst and validates it. An empty body
// is accepted only when allowEmpty is set.
func (c *codec) decode(r *http.Request, w http.ResponseWriter, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if !(allowEmpty && errors.Is(err, io.EOF)) {
			return fmt.Errorf("%w: decode: %w", ErrBadRequest, err)
		}
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON document", ErrBadRequest)
	}
	if err := c.validate.Struct(dst); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			return fmt.Errorf("%w: %w", ErrInternal, err)
		}
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return nil
}

// fail writes the response for err. Unclassified errors are storage or
// programming faults: they are logged and reported without detail.
func (c *codec) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, service.ErrUnknownProduct),
		errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", NewKind(op, ErrNotFound))
	case errors.Is(err, ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized", NewKind(op, ErrUnauthorized))
	default:
		c.log.Error(r.Context(), "request failed",
			logger.String("op", op),
			logger.String("path", r.URL.Path),
			logger.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", NewKind(op, ErrInternal))
	}
}
