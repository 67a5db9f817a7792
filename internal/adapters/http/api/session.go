package api

import (
	"context"
	"net/http"
	"time"

	"github.com/okian/shopstudy/internal/domain/model"
)

// SessionDependencies are the session operations behind /api/session.
type SessionDependencies interface {
	CreateSession(ctx context.Context) (*model.Session, error)
	GetSession(ctx context.Context, participantID string) (*model.Session, error)
	RecordConsent(ctx context.Context, participantID string, age, data bool) (*model.Session, error)
	SubmitPreSurvey(ctx context.Context, participantID string, answers model.PreSurvey) (*model.Session, error)
	UpdateRequirements(ctx context.Context, participantID string, req model.Requirements, target *model.NormalizedTarget, flags *model.DeviationFlags) (*model.Session, error)
	AddRating(ctx context.Context, participantID string, r model.RatingAction) (*model.Session, error)
	RecordGuideTime(ctx context.Context, participantID string, start, cont time.Time, seconds *float64) (*model.Session, error)
	RecordChoice(ctx context.Context, participantID, productID string, at time.Time) (*model.Session, error)
	SubmitPostSurvey(ctx context.Context, participantID string, answers model.PostSurvey) (*model.Session, error)
	Complete(ctx context.Context, participantID string, at time.Time) (*model.Session, error)
}

type consentRequest struct {
	ConsentAge  *bool `json:"consentAge" validate:"required"`
	ConsentData *bool `json:"consentData" validate:"required"`
}

type requirementsRequest struct {
	Requirements     *model.Requirements     `json:"requirements" validate:"required"`
	NormalizedTarget *model.NormalizedTarget `json:"normalizedTarget"`
	DeviationFlags   *model.DeviationFlags   `json:"deviationFlags"`
}

type guideTimeRequest struct {
	GuideViewStartTs time.Time `json:"guideViewStartTs" validate:"required"`
	GuideContinueTs  time.Time `json:"guideContinueTs" validate:"required"`
	GuideReadSeconds *float64  `json:"guideReadSeconds" validate:"omitempty,gte=0"`
}

type choiceRequest struct {
	ChoiceProductID string    `json:"choiceProductId" validate:"required,max=64"`
	ChoiceTimestamp time.Time `json:"choiceTimestamp"`
}

type completeRequest struct {
	CompletedAt time.Time `json:"completedAt"`
}

// SessionHandler handles the participant session routes.
type SessionHandler struct {
	deps  SessionDependencies
	codec *codec
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(deps SessionDependencies, c *codec) *SessionHandler {
	return &SessionHandler{deps: deps, codec: c}
}

// HandleCreate handles POST /api/session.
func (h *SessionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	sess, err := h.deps.CreateSession(r.Context())
	if err != nil {
		h.codec.fail(w, r, "api.create_session", err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// HandleGet handles GET /api/session/{id}.
func (h *SessionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	sess, err := h.deps.GetSession(r.Context(), r.PathValue("id"))
	h.reply(w, r, "api.get_session", sess, err)
}

// HandleConsent handles PATCH /api/session/{id}/consent.
func (h *SessionHandler) HandleConsent(w http.ResponseWriter, r *http.Request) {
	const op = "api.consent"
	var req consentRequest
	if err := h.codec.decode(r, w, &req, false); err != nil {
		h.codec.fail(w, r, op, err)
		return
	}
	sess, err := h.deps.RecordConsent(r.Context(), r.PathValue("id"), *req.ConsentAge, *req.ConsentData)
	h.reply(w, r, op, sess, err)
}

// HandlePreSurvey handles PATCH /api/session/{id}/pre-survey.
func (h *SessionHandler) HandlePreSurvey(w http.ResponseWriter, r *http.Request) {
	const op = "api.pre_survey"
	var req model.PreSurvey
	if err := h.codec.decode(r, w, &req, false); err != nil {
		h.codec.fail(w, r, op, err)
		return
	}
	sess, err := h.deps.SubmitPreSurvey(r.Context(), r.PathValue("id"), req)
	h.reply(w, r, op, sess, err)
}

// HandleRequirements handles PATCH /api/session/{id}/requirements.
func (h *SessionHandler) HandleRequirements(w http.ResponseWriter, r *http.Request) {
	const op = "api.requirements"
	var req requirementsRequest
	if err := h.codec.decode(r, w, &req, false); err != nil {
		h.codec.fail(w, r, op, err)
		return
	}
	sess, err := h.deps.UpdateRequirements(r.Context(), r.PathValue("id"), *req.Requirements, req.NormalizedTarget, req.DeviationFlags)
	h.reply(w, r, op, sess, err)
}

// HandleGuideTime handles PATCH /api/session/{id}/guide-time.
func (h *SessionHandler) HandleGuideTime(w http.ResponseWriter, r *http.Request) {
	const op = "api.guide_time"
	var req guideTimeRequest
	if err := h.codec.decode(r, w, &req, false); err != nil {
		h.codec.fail(w, r, op, err)
		return
	}
	sess, err := h.deps.RecordGuideTime(r.Context(), r.PathValue("id"), req.GuideViewStartTs, req.GuideContinueTs, req.GuideReadSeconds)
	h.reply(w, r, op, sess, err)
}

// HandleChoice handles PATCH /api/session/{id}/choice.
func (h *SessionHandler) HandleChoice(w http.ResponseWriter, r *http.Request) {
	const op = "api.choice"
	var req choiceRequest
	if err := h.codec.decode(r, w, &req, false); err != nil {
		h.codec.fail(w, r, op, err)
		return
	}
	sess, err := h.deps.RecordChoice(r.Context(), r.PathValue("id"), req.ChoiceProductID, req.ChoiceTimestamp)
	h.reply(w, r, op, sess, err)
}

// HandlePostSurvey handles PATCH /api/session/{id}/post-survey.
func (h *SessionHandler) HandlePostSurvey(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_survey"
	var req model.PostSurvey
	if err := h.codec.decode(r, w, &req, false); err != nil {
		h.codec.fail(w, r, op, err)
		return
	}
	sess, err := h.deps.SubmitPostSurvey(r.Context(), r.PathValue("id"), req)
	h.reply(w, r, op, sess, err)
}

// HandleComplete handles PATCH /api/session/{id}/complete. The body is
// optional; completedAt defaults to the server time.
func (h *SessionHandler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	const op = "api.complete"
	var req completeRequest
	if err := h.codec.decode(r, w, &req, true); err != nil {
		h.codec.fail(w, r, op, err)
		return
	}
	sess, err := h.deps.Complete(r.Context(), r.PathValue("id"), req.CompletedAt)
	h.reply(w, r, op, sess, err)
}

// HandleRating handles POST /api/session/{id}/rating.
func (h *SessionHandler) HandleRating(w http.ResponseWriter, r *http.Request) {
	const op = "api.rating"
	var req model.RatingAction
	if err := h.codec.decode(r, w, &req, false); err != nil {
		h.codec.fail(w, r, op, err)
		return
	}
	sess, err := h.deps.AddRating(r.Context(), r.PathValue("id"), req)
	h.reply(w, r, op, sess, err)
}

func (h *SessionHandler) reply(w http.ResponseWriter, r *http.Request, op string, sess *model.Session, err error) {
	if err != nil {
		h.codec.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}
