package api

import (
	"context"
	"net/http"

	"github.com/okian/shopstudy/internal/domain/model"
	"github.com/okian/shopstudy/internal/domain/types"
)

// EventDependencies defines the interface for event logging dependencies.
type EventDependencies interface {
	LogEvent(ctx context.Context, in model.EventInput) (*model.Event, error)
}

// eventRequest is the body of POST /api/session/{id}/event.
type eventRequest struct {
	EventType string     `json:"eventType" validate:"required,max=64"`
	Step      string     `json:"step" validate:"omitempty,max=32"`
	EventData model.Blob `json:"eventData"`
}

// EventsHandler handles event requests.
type EventsHandler struct {
	deps  EventDependencies
	codec *codec
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps EventDependencies, c *codec) *EventsHandler {
	return &EventsHandler{deps: deps, codec: c}
}

// HandlePostEvent handles POST /api/session/{id}/event. The participant is
// not looked up.
func (h *EventsHandler) HandlePostEvent(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_event"
	var req eventRequest
	if err := h.codec.decode(r, w, &req, false); err != nil {
		h.codec.fail(w, r, op, err)
		return
	}
	ev, err := h.deps.LogEvent(r.Context(), model.EventInput{
		ParticipantID: r.PathValue("id"),
		EventType:     types.EventType(req.EventType),
		Step:          types.Step(req.Step),
		EventData:     req.EventData,
	})
	if err != nil {
		h.codec.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}
