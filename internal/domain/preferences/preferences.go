// Package preferences turns requirement answers into a normalized target and
// flags how a product deviates from it.
package preferences

import (
	"slices"

	"github.com/okian/shopstudy/internal/content"
	"github.com/okian/shopstudy/internal/domain/model"
	"github.com/okian/shopstudy/internal/domain/types"
)

// Normalize maps selected option ids onto numeric ranges and canonical lists.
// Range dimensions take the union of the selected ranges. Skipped, unanswered
// and unknown selections contribute nothing. Free text stays in the requirements.
func Normalize(req *model.Requirements, c content.Catalog) model.NormalizedTarget {
	var t model.NormalizedTarget

	if lo, hi, ok := rangeOf(req.Answer(types.StepAmount), types.StepAmount, c); ok {
		t.MinGrams, t.MaxGrams = int(lo), int(hi)
	}
	if lo, hi, ok := rangeOf(req.Answer(types.StepBudget), types.StepBudget, c); ok {
		t.MinPrice, t.MaxPrice = lo, hi
	}
	t.Attributes = known(req.Answer(types.StepAttributes), types.StepAttributes, c)
	t.Grinds = known(req.Answer(types.StepGrind), types.StepGrind, c)
	return t
}

func rangeOf(a *model.RequirementAnswer, step types.Step, c content.Catalog) (lo, hi float64, ok bool) {
	if a == nil || a.Skipped {
		return 0, 0, false
	}
	for _, id := range a.Selected {
		o, found := c.Option(step, id)
		if !found {
			continue
		}
		if !ok || o.Min < lo {
			lo = o.Min
		}
		if !ok || o.Max > hi {
			hi = o.Max
		}
		ok = true
	}
	return lo, hi, ok
}

// known returns the selected ids that exist, de-duplicated, in question order.
func known(a *model.RequirementAnswer, step types.Step, c content.Catalog) []string {
	if a == nil || a.Skipped {
		return nil
	}
	q, ok := c.Question(step)
	if !ok {
		return nil
	}
	var out []string
	for _, o := range q.Options {
		if slices.Contains(a.Selected, o.ID) {
			out = append(out, o.ID)
		}
	}
	return out
}

// Deviations compares a product against the target. Dimensions without a
// target never deviate.
func Deviations(req *model.Requirements, t model.NormalizedTarget, p content.Product) model.DeviationFlags {
	var d model.DeviationFlags
	for _, step := range types.RequirementSteps() {
		if a := req.Answer(step); a == nil || a.Skipped {
			d.Skipped = append(d.Skipped, string(step))
		}
	}
	if t.MaxGrams > 0 && (p.Grams < t.MinGrams || p.Grams > t.MaxGrams) {
		d.AmountOutOfRange = true
	}
	if t.MaxPrice > 0 && p.Price > t.MaxPrice {
		d.OverBudget = true
	}
	if len(t.Grinds) > 0 && !slices.Contains(t.Grinds, p.Grind) {
		d.GrindMismatch = true
	}
	for _, a := range t.Attributes {
		if !slices.Contains(p.Attributes, a) {
			d.MissingAttributes = append(d.MissingAttributes, a)
		}
	}
	return d
}

// Evaluate normalizes the requirements and checks them against the
// catalog's recommended product.
func Evaluate(req *model.Requirements, c content.Catalog) (model.NormalizedTarget, model.DeviationFlags) {
	t := Normalize(req, c)
	return t, Deviations(req, t, c.Recommended())
}
