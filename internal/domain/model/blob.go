package model

import (
	"time"

	"github.com/okian/shopstudy/internal/domain/types"
)

// Blob is free-form telemetry, kept in the shape encoding/json produces:
// numbers are float64, lists are []any, objects are map[string]any.
type Blob map[string]any

// Clone deep-copies nested maps and lists.
func (b Blob) Clone() Blob {
	if b == nil {
		return nil
	}
	out := make(Blob, len(b))
	for k, v := range b {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return map[string]any(Blob(t).Clone())
	case Blob:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}

// String returns the string stored under key, or "".
func (b Blob) String(key string) string {
	s, _ := b[key].(string)
	return s
}

func stringList(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

// StepEnteredData accompanies step_entered.
type StepEnteredData struct {
	From types.Step
	To   types.Step
	At   time.Time
}

func (d StepEnteredData) Blob() Blob {
	return Blob{
		"from": string(d.From),
		"to":   string(d.To),
		"at":   Normalize(d.At).Format(time.RFC3339Nano),
	}
}

// RequirementAnsweredData accompanies requirement_answered.
type RequirementAnsweredData struct {
	Step     types.Step
	Selected []string
	FreeText string
}

func (d RequirementAnsweredData) Blob() Blob {
	b := Blob{
		"step":     string(d.Step),
		"selected": stringList(d.Selected),
	}
	if d.FreeText != "" {
		b["freeText"] = d.FreeText
	}
	return b
}

// RequirementSkippedData accompanies requirement_skipped. Reason is "timeout"
// when the countdown ran out and "skip" for an explicit skip.
type RequirementSkippedData struct {
	Step   types.Step
	Reason string
}

func (d RequirementSkippedData) Blob() Blob {
	return Blob{
		"step":   string(d.Step),
		"reason": d.Reason,
	}
}

// ProductRatedData accompanies product_rated.
type ProductRatedData struct {
	ProductID string
	Action    types.RatingKind
	Reason    string
	Index     int
}

func (d ProductRatedData) Blob() Blob {
	b := Blob{
		"productId": d.ProductID,
		"action":    string(d.Action),
		"index":     float64(d.Index),
	}
	if d.Reason != "" {
		b["reason"] = d.Reason
	}
	return b
}
