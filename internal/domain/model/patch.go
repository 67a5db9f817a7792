package model

import "time"

// SessionPatch is a partial update. Nil fields are left untouched; structured
// records replace the stored value wholesale and ratings are appended.
type SessionPatch struct {
	ConsentAge  *bool
	ConsentData *bool

	PreSurvey  *PreSurvey
	PostSurvey *PostSurvey

	Requirements     *Requirements
	NormalizedTarget *NormalizedTarget
	DeviationFlags   *DeviationFlags

	AppendRatings []RatingAction

	GuideViewStartTs *time.Time
	GuideContinueTs  *time.Time
	GuideReadSeconds *float64

	ChoiceProductID *string
	ChoiceTimestamp *time.Time

	CompletedAt *time.Time
}

// Apply merges the patch onto s. Identity fields and timestamps owned by the
// store (participantId, condition, createdAt, updatedAt) are never touched.
func (p SessionPatch) Apply(s *Session) {
	if p.ConsentAge != nil {
		s.ConsentAge = *p.ConsentAge
	}
	if p.ConsentData != nil {
		s.ConsentData = *p.ConsentData
	}
	if p.PreSurvey != nil {
		s.PreSurvey = p.PreSurvey.clone()
	}
	if p.PostSurvey != nil {
		s.PostSurvey = p.PostSurvey.clone()
	}
	if p.Requirements != nil {
		s.Requirements = p.Requirements.clone()
	}
	if p.NormalizedTarget != nil {
		s.NormalizedTarget = p.NormalizedTarget.clone()
	}
	if p.DeviationFlags != nil {
		s.DeviationFlags = p.DeviationFlags.clone()
	}
	for _, r := range p.AppendRatings {
		r.ClientTimestamp = Normalize(r.ClientTimestamp)
		s.ProductRatings = append(s.ProductRatings, r)
	}
	if p.GuideViewStartTs != nil {
		s.GuideViewStartTs = normalizedPtr(*p.GuideViewStartTs)
	}
	if p.GuideContinueTs != nil {
		s.GuideContinueTs = normalizedPtr(*p.GuideContinueTs)
	}
	if p.GuideReadSeconds != nil {
		s.GuideReadSeconds = clonePtr(p.GuideReadSeconds)
	}
	if p.ChoiceProductID != nil {
		s.ChoiceProductID = clonePtr(p.ChoiceProductID)
	}
	if p.ChoiceTimestamp != nil {
		s.ChoiceTimestamp = normalizedPtr(*p.ChoiceTimestamp)
	}
	if p.CompletedAt != nil {
		s.CompletedAt = normalizedPtr(*p.CompletedAt)
	}
}

// Fields names the field groups the patch touches, for metrics and logs.
func (p SessionPatch) Fields() []string {
	var out []string
	if p.ConsentAge != nil || p.ConsentData != nil {
		out = append(out, "consent")
	}
	if p.PreSurvey != nil {
		out = append(out, "pre_survey")
	}
	if p.Requirements != nil || p.NormalizedTarget != nil || p.DeviationFlags != nil {
		out = append(out, "requirements")
	}
	if len(p.AppendRatings) > 0 {
		out = append(out, "ratings")
	}
	if p.GuideViewStartTs != nil || p.GuideContinueTs != nil || p.GuideReadSeconds != nil {
		out = append(out, "guide_time")
	}
	if p.ChoiceProductID != nil || p.ChoiceTimestamp != nil {
		out = append(out, "choice")
	}
	if p.PostSurvey != nil {
		out = append(out, "post_survey")
	}
	if p.CompletedAt != nil {
		out = append(out, "complete")
	}
	return out
}

// Empty reports whether the patch changes nothing.
func (p SessionPatch) Empty() bool {
	return len(p.Fields()) == 0
}

func normalizedPtr(t time.Time) *time.Time {
	t = Normalize(t)
	return &t
}
