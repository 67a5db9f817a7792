package content

import "github.com/okian/shopstudy/internal/domain/types"

func questions() []Question {
	return []Question{
		{
			Step:        types.StepAmount,
			Prompt:      "How much coffee do you usually buy at once?",
			MultiSelect: true,
			Options: []Option{
				{ID: "under_250", Label: "Less than 250 g", Min: 0, Max: 249},
				{ID: "250_500", Label: "250 to 500 g", Min: 250, Max: 500},
				{ID: "500_1000", Label: "500 g to 1 kg", Min: 501, Max: 1000},
				{ID: "over_1000", Label: "More than 1 kg", Min: 1001, Max: 5000},
			},
		},
		{
			Step:        types.StepBudget,
			Prompt:      "What would you like to spend per bag?",
			MultiSelect: true,
			Options: []Option{
				{ID: "under_10", Label: "Under $10", Min: 0, Max: 9.99},
				{ID: "10_15", Label: "$10 to $15", Min: 10, Max: 15},
				{ID: "15_20", Label: "$15 to $20", Min: 15.01, Max: 20},
				{ID: "over_20", Label: "More than $20", Min: 20.01, Max: 100},
			},
		},
		{
			Step:        types.StepAttributes,
			Prompt:      "Which qualities matter to you?",
			MultiSelect: true,
			Options: []Option{
				{ID: "light_roast", Label: "Light roast"},
				{ID: "medium_roast", Label: "Medium roast"},
				{ID: "dark_roast", Label: "Dark roast"},
				{ID: "fruity", Label: "Fruity notes"},
				{ID: "chocolatey", Label: "Chocolatey notes"},
				{ID: "smooth", Label: "Smooth, low acidity"},
				{ID: "organic", Label: "Organic"},
				{ID: "fair_trade", Label: "Fair trade"},
				{ID: "single_origin", Label: "Single origin"},
				{ID: "decaf", Label: "Decaf"},
			},
		},
		{
			Step:        types.StepGrind,
			Prompt:      "How do you brew?",
			MultiSelect: true,
			Options: []Option{
				{ID: "whole_bean", Label: "I grind my own beans"},
				{ID: "ground", Label: "Filter / drip"},
				{ID: "espresso", Label: "Espresso machine"},
				{ID: "coarse", Label: "French press or cold brew"},
			},
		},
	}
}

func products() []Product {
	return []Product{
		{
			ID: "c1", Name: "Morning Ritual Blend", Brand: "Hearth & Co",
			Price: 12.99, Grams: 250, Grind: "whole_bean",
			Attributes: []string{"medium_roast", "chocolatey", "fair_trade"},
			Blurb:      "A balanced everyday blend with cocoa and toasted nut notes.",
		},
		{
			ID: "c2", Name: "Highland Washed", Brand: "Summit Roasters",
			Price: 18.50, Grams: 340, Grind: "ground",
			Attributes: []string{"light_roast", "fruity", "organic", "single_origin"},
			Blurb:      "Bright and clean with stone fruit sweetness.",
		},
		{
			ID: "c3", Name: "Dark Harbor Espresso", Brand: "Portside",
			Price: 15.00, Grams: 500, Grind: "espresso",
			Attributes: []string{"dark_roast", "chocolatey"},
			Blurb:      "Heavy body and a long bittersweet finish.",
		},
		{
			ID: "c4", Name: "Evening Decaf", Brand: "Hearth & Co",
			Price: 11.25, Grams: 250, Grind: "ground",
			Attributes: []string{"decaf", "medium_roast", "organic"},
			Blurb:      "Swiss water decaf that keeps its caramel sweetness.",
		},
		{
			ID: "c5", Name: "Glacier Cold Brew", Brand: "Glacier",
			Price: 16.75, Grams: 454, Grind: "coarse",
			Attributes: []string{"medium_roast", "smooth", "fair_trade"},
			Blurb:      "Coarse ground for steeping, low acidity.",
		},
		{
			ID: "c6", Name: "Yirgacheffe Natural", Brand: "Summit Roasters",
			Price: 22.00, Grams: 340, Grind: "whole_bean",
			Attributes: []string{"light_roast", "fruity", "single_origin", "organic", "fair_trade"},
			Blurb:      "Blueberry and jasmine, roasted to order.",
		},
	}
}
