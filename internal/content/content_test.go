package content_test

import (
	"strings"
	"testing"

	"github.com/okian/shopstudy/internal/content"
	"github.com/okian/shopstudy/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestCatalog(t *testing.T) {
	Convey("Given the default catalog", t, func() {
		c := content.Default()

		Convey("Then every requirement step has a question", func() {
			for _, step := range types.RequirementSteps() {
				q, ok := c.Question(step)
				So(ok, ShouldBeTrue)
				So(q.Options, ShouldNotBeEmpty)
			}
			_, ok := c.Question(types.StepChoice)
			So(ok, ShouldBeFalse)
		})

		Convey("Then option ids are unique per question", func() {
			for _, q := range c.Questions {
				seen := map[string]bool{}
				for _, o := range q.Options {
					So(seen[o.ID], ShouldBeFalse)
					seen[o.ID] = true
				}
			}
		})

		Convey("Then there are six products with unique ids", func() {
			So(len(c.Products), ShouldEqual, 6)
			seen := map[string]bool{}
			for _, p := range c.Products {
				So(seen[p.ID], ShouldBeFalse)
				seen[p.ID] = true
			}
		})

		Convey("Then the recommended product exists and is named in the guide", func() {
			p, ok := c.Product(c.RecommendedID)
			So(ok, ShouldBeTrue)
			So(c.Recommended(), ShouldResemble, p)
			So(strings.Contains(c.Guide, p.Name), ShouldBeTrue)
		})

		Convey("Then product attributes and grinds use known option ids", func() {
			for _, p := range c.Products {
				_, ok := c.Option(types.StepGrind, p.Grind)
				So(ok, ShouldBeTrue)
				for _, a := range p.Attributes {
					_, ok := c.Option(types.StepAttributes, a)
					So(ok, ShouldBeTrue)
				}
			}
		})

		Convey("Then lookups miss cleanly", func() {
			_, ok := c.Product("nope")
			So(ok, ShouldBeFalse)
			_, ok = c.Option(types.StepAmount, "nope")
			So(ok, ShouldBeFalse)
			_, ok = c.Option(types.StepDebrief, "under_250")
			So(ok, ShouldBeFalse)
		})
	})
}
