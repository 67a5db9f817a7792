// Package client is a typed HTTP client for the study API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/okian/shopstudy/internal/domain/model"
	"github.com/okian/shopstudy/pkg/logger"
)

const (
	defaultTimeout = 15 * time.Second
	maxErrorBody   = 64 << 10
)

// Client talks to one study server.
type Client struct {
	base          string
	http          *http.Client
	adminPassword string
	log           logger.Logger
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", baseURL)
	}
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: defaultTimeout},
		log:  logger.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the server address.
func (c *Client) BaseURL() string { return c.base }

// CreateSession starts a new participant session.
func (c *Client) CreateSession(ctx context.Context) (*model.Session, error) {
	var out model.Session
	if err := c.do(ctx, http.MethodPost, "/api/session", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSession fetches a session.
func (c *Client) GetSession(ctx context.Context, participantID string) (*model.Session, error) {
	return c.session(ctx, http.MethodGet, participantID, "", nil)
}

// SubmitConsent records the two consent checkboxes.
func (c *Client) SubmitConsent(ctx context.Context, participantID string, age, data bool) (*model.Session, error) {
	body := map[string]bool{"consentAge": age, "consentData": data}
	return c.session(ctx, http.MethodPatch, participantID, "consent", body)
}

// SubmitPreSurvey stores the pre-task survey.
func (c *Client) SubmitPreSurvey(ctx context.Context, participantID string, answers model.PreSurvey) (*model.Session, error) {
	return c.session(ctx, http.MethodPatch, participantID, "pre-survey", answers)
}

// UpdateRequirements replaces the requirement answers. A nil target or flags
// lets the server derive them.
func (c *Client) UpdateRequirements(ctx context.Context, participantID string, req model.Requirements,
	target *model.NormalizedTarget, flags *model.DeviationFlags,
) (*model.Session, error) {
	body := struct {
		Requirements     model.Requirements      `json:"requirements"`
		NormalizedTarget *model.NormalizedTarget `json:"normalizedTarget,omitempty"`
		DeviationFlags   *model.DeviationFlags   `json:"deviationFlags,omitempty"`
	}{req, target, flags}
	return c.session(ctx, http.MethodPatch, participantID, "requirements", body)
}

// AddRating appends one product rating.
func (c *Client) AddRating(ctx context.Context, participantID string, r model.RatingAction) (*model.Session, error) {
	return c.session(ctx, http.MethodPost, participantID, "rating", r)
}

// RecordGuideTime stores how long the guide was read.
func (c *Client) RecordGuideTime(ctx context.Context, participantID string, start, cont time.Time) (*model.Session, error) {
	seconds := cont.Sub(start).Seconds()
	body := map[string]any{
		"guideViewStartTs": start,
		"guideContinueTs":  cont,
		"guideReadSeconds": seconds,
	}
	return c.session(ctx, http.MethodPatch, participantID, "guide-time", body)
}

// RecordChoice stores the final product choice.
func (c *Client) RecordChoice(ctx context.Context, participantID, productID string, at time.Time) (*model.Session, error) {
	body := map[string]any{"choiceProductId": productID, "choiceTimestamp": at}
	return c.session(ctx, http.MethodPatch, participantID, "choice", body)
}

// SubmitPostSurvey stores the post-task survey.
func (c *Client) SubmitPostSurvey(ctx context.Context, participantID string, answers model.PostSurvey) (*model.Session, error) {
	return c.session(ctx, http.MethodPatch, participantID, "post-survey", answers)
}

// Complete marks the study finished.
func (c *Client) Complete(ctx context.Context, participantID string, at time.Time) (*model.Session, error) {
	return c.session(ctx, http.MethodPatch, participantID, "complete", map[string]any{"completedAt": at})
}

// LogEvent posts a telemetry event.
func (c *Client) LogEvent(ctx context.Context, in model.EventInput) (*model.Event, error) {
	body := map[string]any{"eventType": in.EventType}
	if in.Step != "" {
		body["step"] = in.Step
	}
	if in.EventData != nil {
		body["eventData"] = in.EventData
	}
	var out model.Event
	if err := c.do(ctx, http.MethodPost, sessionPath(in.ParticipantID, "event"), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health probes GET /healthz.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, io.Discard)
}

// ListSessions returns every session, newest first.
func (c *Client) ListSessions(ctx context.Context) ([]*model.Session, error) {
	var out []*model.Session
	if err := c.do(ctx, http.MethodGet, c.adminPath("sessions"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListEvents returns every event in append order.
func (c *Client) ListEvents(ctx context.Context) ([]*model.Event, error) {
	var out []*model.Event
	if err := c.do(ctx, http.MethodGet, c.adminPath("events"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Export copies an admin export ("jsonl" or "csv") into w.
func (c *Client) Export(ctx context.Context, format string, w io.Writer) error {
	return c.do(ctx, http.MethodGet, c.adminPath("export/"+format), nil, w)
}

func (c *Client) session(ctx context.Context, method, participantID, action string, body any) (*model.Session, error) {
	var out model.Session
	if err := c.do(ctx, method, sessionPath(participantID, action), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func sessionPath(participantID, action string) string {
	p := "/api/session/" + url.PathEscape(participantID)
	if action != "" {
		p += "/" + action
	}
	return p
}

func (c *Client) adminPath(route string) string {
	return "/api/admin/" + route + "?password=" + url.QueryEscape(c.adminPassword)
}

// do sends body as JSON and decodes the reply into out. An io.Writer out
// receives the raw body.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		rd = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return fmt.Errorf("%s %s: %w", method, redactPath(path), err)
	}
	defer resp.Body.Close()
	c.log.Debug(ctx, "api call",
		logger.String("method", method),
		logger.String("path", redactPath(path)),
		logger.Int("status", resp.StatusCode),
		logger.Duration("took", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp, method, redactPath(path))
	}
	switch dst := out.(type) {
	case nil:
		return nil
	case io.Writer:
		if _, err := io.Copy(dst, resp.Body); err != nil {
			return fmt.Errorf("read %s: %w", redactPath(path), err)
		}
		return nil
	default:
		if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
			return fmt.Errorf("decode %s: %w", redactPath(path), err)
		}
		return nil
	}
}

func decodeError(resp *http.Response, method, path string) error {
	se := &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil {
		se.Code, se.Message = body.Code, body.Message
	} else {
		se.Message = strings.TrimSpace(string(raw))
	}
	return se
}

// redactPath drops the query so the admin secret never reaches logs or errors.
func redactPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		return path[:i]
	}
	return path
}
