package api

import (
	"bytes"
	"context"
	"crypto/subtle"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/okian/shopstudy/internal/domain/model"
	"github.com/okian/shopstudy/internal/export"
	"github.com/okian/shopstudy/pkg/metrics"
)

// AdminDependencies are the read-only operations behind /api/admin.
type AdminDependencies interface {
	ListSessions(ctx context.Context) ([]*model.Session, error)
	AllEvents(ctx context.Context) ([]*model.Event, error)
	ExportBundles(ctx context.Context) ([]export.Bundle, error)
}

// AdminHandler serves the password-gated listing and export routes.
type AdminHandler struct {
	deps     AdminDependencies
	password []byte
	codec    *codec
	now      func() time.Time
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(deps AdminDependencies, password string, c *codec) *AdminHandler {
	return &AdminHandler{deps: deps, password: []byte(password), codec: c, now: time.Now}
}

// authorized compares the supplied secret with the configured one. The
// secret comes from the password query parameter or the X-Admin-Password
// header; an empty secret never matches.
func (h *AdminHandler) authorized(r *http.Request) bool {
	got := r.URL.Query().Get("password")
	if got == "" {
		got = r.Header.Get("X-Admin-Password")
	}
	if got == "" || len(h.password) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), h.password) == 1
}

func (h *AdminHandler) guard(w http.ResponseWriter, r *http.Request, op, route string) bool {
	if h.authorized(r) {
		return true
	}
	metrics.RecordAdminAuthFailure(route)
	h.codec.fail(w, r, op, ErrUnauthorized)
	return false
}

// HandleSessions handles GET /api/admin/sessions.
func (h *AdminHandler) HandleSessions(w http.ResponseWriter, r *http.Request) {
	const op = "api.admin_sessions"
	if !h.guard(w, r, op, "sessions") {
		return
	}
	sessions, err := h.deps.ListSessions(r.Context())
	if err != nil {
		h.codec.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

// HandleEvents handles GET /api/admin/events.
func (h *AdminHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	const op = "api.admin_events"
	if !h.guard(w, r, op, "events") {
		return
	}
	events, err := h.deps.AllEvents(r.Context())
	if err != nil {
		h.codec.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// HandleExportJSONL handles GET /api/admin/export/jsonl.
func (h *AdminHandler) HandleExportJSONL(w http.ResponseWriter, r *http.Request) {
	h.export(w, r, "jsonl", "application/x-ndjson", export.WriteJSONL)
}

// HandleExportCSV handles GET /api/admin/export/csv.
func (h *AdminHandler) HandleExportCSV(w http.ResponseWriter, r *http.Request) {
	h.export(w, r, "csv", "text/csv; charset=utf-8", export.WriteCSV)
}

// export renders the whole file before writing so a failure still yields a
// clean 500.
func (h *AdminHandler) export(w http.ResponseWriter, r *http.Request, format, contentType string,
	write func(io.Writer, []export.Bundle) error) {
	op := "api.admin_export_" + format
	if !h.guard(w, r, op, "export_"+format) {
		return
	}
	bundles, err := h.deps.ExportBundles(r.Context())
	if err != nil {
		h.codec.fail(w, r, op, err)
		return
	}
	var buf bytes.Buffer
	if err := write(&buf, bundles); err != nil {
		h.codec.fail(w, r, op, err)
		return
	}
	metrics.RecordExport(format)

	name := fmt.Sprintf("study-sessions-%s.%s", h.now().UTC().Format("20060102-150405"), format)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
