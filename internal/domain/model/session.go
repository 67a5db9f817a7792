// Package model contains domain models passed between layers.
package model

import (
	"time"

	"github.com/okian/shopstudy/internal/domain/types"
)

// Session is the per-participant study record.
// JSON field names are the wire and file format.
type Session struct {
	ParticipantID string          `json:"participantId"`
	Condition     types.Condition `json:"condition"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`

	ConsentAge  bool `json:"consentAge"`
	ConsentData bool `json:"consentData"`

	PreSurvey  *PreSurvey  `json:"preSurvey"`
	PostSurvey *PostSurvey `json:"postSurvey"`

	Requirements     *Requirements     `json:"requirements"`
	NormalizedTarget *NormalizedTarget `json:"normalizedTarget"`
	DeviationFlags   *DeviationFlags   `json:"deviationFlags"`

	ProductRatings []RatingAction `json:"productRatings"`

	GuideViewStartTs *time.Time `json:"guideViewStartTs"`
	GuideContinueTs  *time.Time `json:"guideContinueTs"`
	GuideReadSeconds *float64   `json:"guideReadSeconds"`

	ChoiceProductID *string    `json:"choiceProductId"`
	ChoiceTimestamp *time.Time `json:"choiceTimestamp"`

	CompletedAt *time.Time `json:"completedAt"`
}

// NewSession returns an empty record for a freshly assigned participant.
func NewSession(id string, condition types.Condition, now time.Time) *Session {
	now = Normalize(now)
	return &Session{
		ParticipantID:  id,
		Condition:      condition,
		CreatedAt:      now,
		UpdatedAt:      now,
		ProductRatings: []RatingAction{},
	}
}

// Completed reports whether the study was marked finished.
func (s *Session) Completed() bool {
	return s.CompletedAt != nil
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.PreSurvey = s.PreSurvey.clone()
	c.PostSurvey = s.PostSurvey.clone()
	c.Requirements = s.Requirements.clone()
	c.NormalizedTarget = s.NormalizedTarget.clone()
	c.DeviationFlags = s.DeviationFlags.clone()
	c.ProductRatings = make([]RatingAction, len(s.ProductRatings))
	copy(c.ProductRatings, s.ProductRatings)
	c.GuideViewStartTs = clonePtr(s.GuideViewStartTs)
	c.GuideContinueTs = clonePtr(s.GuideContinueTs)
	c.GuideReadSeconds = clonePtr(s.GuideReadSeconds)
	c.ChoiceProductID = clonePtr(s.ChoiceProductID)
	c.ChoiceTimestamp = clonePtr(s.ChoiceTimestamp)
	c.CompletedAt = clonePtr(s.CompletedAt)
	return &c
}

// Normalize converts t to UTC at microsecond precision and drops the
// monotonic clock reading, so the value compares equal after a JSON or
// database round trip on either backend.
func Normalize(t time.Time) time.Time {
	return t.Round(0).UTC().Truncate(time.Microsecond)
}

// NextTimestamp returns now, clamped so it never precedes prev.
func NextTimestamp(now, prev time.Time) time.Time {
	now = Normalize(now)
	if now.Before(prev) {
		return Normalize(prev)
	}
	return now
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
