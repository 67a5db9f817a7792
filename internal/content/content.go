// Package content holds the static study fixtures: requirement questions,
// the mock product catalog and the recommendation guide.
package content

import (
	_ "embed"

	"github.com/okian/shopstudy/internal/domain/types"
)

// Option is one selectable answer of a requirement question. Min and Max
// carry the numeric range for amount (grams) and budget (price) options.
type Option struct {
	ID    string  `json:"id"`
	Label string  `json:"label"`
	Min   float64 `json:"min,omitempty"`
	Max   float64 `json:"max,omitempty"`
}

// Question is shown on one requirement step.
type Question struct {
	Step        types.Step `json:"step"`
	Prompt      string     `json:"prompt"`
	MultiSelect bool       `json:"multiSelect"`
	Options     []Option   `json:"options"`
}

// Product is a mock catalog entry.
type Product struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Brand      string   `json:"brand"`
	Price      float64  `json:"price"`
	Grams      int      `json:"grams"`
	Grind      string   `json:"grind"`
	Attributes []string `json:"attributes"`
	Blurb      string   `json:"blurb"`
}

// Catalog bundles every fixture used by the flow.
type Catalog struct {
	Questions     []Question
	Products      []Product
	RecommendedID string
	Guide         string
}

//go:embed guide.md
var guide string

// Default returns the fixtures the study runs with.
func Default() Catalog {
	return Catalog{
		Questions:     questions(),
		Products:      products(),
		RecommendedID: "c6",
		Guide:         guide,
	}
}

// Product looks up a product by id.
func (c Catalog) Product(id string) (Product, bool) {
	for _, p := range c.Products {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}

// Recommended returns the product the guide recommends.
func (c Catalog) Recommended() Product {
	p, _ := c.Product(c.RecommendedID)
	return p
}

// Question returns the question asked on a requirement step.
func (c Catalog) Question(step types.Step) (Question, bool) {
	for _, q := range c.Questions {
		if q.Step == step {
			return q, true
		}
	}
	return Question{}, false
}

// Option looks up an answer option of a requirement step.
func (c Catalog) Option(step types.Step, id string) (Option, bool) {
	q, ok := c.Question(step)
	if !ok {
		return Option{}, false
	}
	for _, o := range q.Options {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}
