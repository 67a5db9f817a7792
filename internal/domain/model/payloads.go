package model

import (
	"time"

	"github.com/okian/shopstudy/internal/domain/types"
)

// PreSurvey holds the answers given before the shopping task.
// Likert items are on a 1-7 scale.
type PreSurvey struct {
	AgeRange          string `json:"ageRange" validate:"required"`
	Gender            string `json:"gender" validate:"required"`
	ShoppingFrequency string `json:"shoppingFrequency" validate:"required"`
	AIFamiliarity     int    `json:"aiFamiliarity" validate:"min=1,max=7"`
	AITrust           int    `json:"aiTrust" validate:"min=1,max=7"`
	Extra             Blob   `json:"extra,omitempty"`
}

func (p *PreSurvey) clone() *PreSurvey {
	if p == nil {
		return nil
	}
	c := *p
	c.Extra = p.Extra.Clone()
	return &c
}

// PostSurvey holds the answers given after the final choice.
type PostSurvey struct {
	Satisfaction     int    `json:"satisfaction" validate:"min=1,max=7"`
	Trust            int    `json:"trust" validate:"min=1,max=7"`
	PerceivedControl int    `json:"perceivedControl" validate:"min=1,max=7"`
	Confidence       int    `json:"confidence" validate:"min=1,max=7"`
	WouldUseAgain    int    `json:"wouldUseAgain" validate:"min=1,max=7"`
	Comments         string `json:"comments,omitempty" validate:"max=4000"`
	Extra            Blob   `json:"extra,omitempty"`
}

func (p *PostSurvey) clone() *PostSurvey {
	if p == nil {
		return nil
	}
	c := *p
	c.Extra = p.Extra.Clone()
	return &c
}

// RequirementAnswer is the outcome of one requirement step.
type RequirementAnswer struct {
	Selected   []string  `json:"selected,omitempty"`
	FreeText   string    `json:"freeText,omitempty" validate:"max=2000"`
	Skipped    bool      `json:"skipped"`
	SkipReason string    `json:"skipReason,omitempty"`
	AnsweredAt time.Time `json:"answeredAt"`
}

func (a *RequirementAnswer) clone() *RequirementAnswer {
	if a == nil {
		return nil
	}
	c := *a
	c.Selected = cloneStrings(a.Selected)
	return &c
}

// Requirements collects the answers per dimension. A nil entry was not reached yet.
type Requirements struct {
	Amount     *RequirementAnswer `json:"amount,omitempty" validate:"omitempty"`
	Budget     *RequirementAnswer `json:"budget,omitempty" validate:"omitempty"`
	Attributes *RequirementAnswer `json:"attributes,omitempty" validate:"omitempty"`
	Grind      *RequirementAnswer `json:"grind,omitempty" validate:"omitempty"`
}

// Answer returns the answer for a requirement step.
func (r *Requirements) Answer(step types.Step) *RequirementAnswer {
	if r == nil {
		return nil
	}
	switch step {
	case types.StepAmount:
		return r.Amount
	case types.StepBudget:
		return r.Budget
	case types.StepAttributes:
		return r.Attributes
	case types.StepGrind:
		return r.Grind
	default:
		return nil
	}
}

// Set stores the answer for a requirement step. Non-requirement steps are ignored.
func (r *Requirements) Set(step types.Step, a RequirementAnswer) {
	switch step {
	case types.StepAmount:
		r.Amount = &a
	case types.StepBudget:
		r.Budget = &a
	case types.StepAttributes:
		r.Attributes = &a
	case types.StepGrind:
		r.Grind = &a
	}
}

// Clone returns a deep copy.
func (r *Requirements) Clone() *Requirements { return r.clone() }

func (r *Requirements) clone() *Requirements {
	if r == nil {
		return nil
	}
	return &Requirements{
		Amount:     r.Amount.clone(),
		Budget:     r.Budget.clone(),
		Attributes: r.Attributes.clone(),
		Grind:      r.Grind.clone(),
	}
}

// NormalizedTarget is the machine-readable form of the requirements.
// Zero ranges mean the dimension was skipped.
type NormalizedTarget struct {
	MinGrams   int      `json:"minGrams"`
	MaxGrams   int      `json:"maxGrams"`
	MinPrice   float64  `json:"minPrice"`
	MaxPrice   float64  `json:"maxPrice"`
	Attributes []string `json:"attributes,omitempty"`
	Grinds     []string `json:"grinds,omitempty"`
}

func (n *NormalizedTarget) clone() *NormalizedTarget {
	if n == nil {
		return nil
	}
	c := *n
	c.Attributes = cloneStrings(n.Attributes)
	c.Grinds = cloneStrings(n.Grinds)
	return &c
}

// DeviationFlags describe how the recommended product departs from the target.
type DeviationFlags struct {
	Skipped           []string `json:"skipped,omitempty"`
	AmountOutOfRange  bool     `json:"amountOutOfRange"`
	OverBudget        bool     `json:"overBudget"`
	GrindMismatch     bool     `json:"grindMismatch"`
	MissingAttributes []string `json:"missingAttributes,omitempty"`
}

// Any reports whether at least one deviation was flagged.
func (d *DeviationFlags) Any() bool {
	if d == nil {
		return false
	}
	return d.AmountOutOfRange || d.OverBudget || d.GrindMismatch || len(d.MissingAttributes) > 0
}

func (d *DeviationFlags) clone() *DeviationFlags {
	if d == nil {
		return nil
	}
	c := *d
	c.Skipped = cloneStrings(d.Skipped)
	c.MissingAttributes = cloneStrings(d.MissingAttributes)
	return &c
}

// RatingAction is one judgement on a product card.
type RatingAction struct {
	ProductID       string           `json:"productId" validate:"required"`
	Action          types.RatingKind `json:"action" validate:"required,oneof=interested not_interested"`
	Reason          string           `json:"reason,omitempty" validate:"max=2000"`
	ClientTimestamp time.Time        `json:"clientTimestamp"`
}
