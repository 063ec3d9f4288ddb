package pricing

import "fmt"

// ScoreWeight is one match-scoring criterion and its contribution to the
// 0-100 match score.
type ScoreWeight struct {
	Criterion string
	Points    int
}

// RuleSet is the per-product-type configuration the prompt builder renders:
// required extracted fields, exclusion predicates and either weighted match
// scoring with a threshold (cards) or mandatory exact-match fields (laptops).
// Rule sets are data, not control flow; adding a product type means adding a
// value here, not touching the pipeline.
type RuleSet struct {
	Product        ProductType
	Label          string // human name used in prompts, e.g. "hockey cards"
	Heading        string // heading for the domain rules section, e.g. "Hockey Card"
	TitleStructure string // typical listing title layout, empty when not useful
	RequiredFields []string
	ExclusionRules []string

	// Weighted scoring (cards). MatchThreshold is the minimum score for
	// inclusion; zero means scoring is not used for this product.
	ScoringRules   []ScoreWeight
	MatchThreshold int

	// Mandatory exact-match fields (laptops). A listing missing or
	// mismatching any of these is excluded.
	MandatoryFields []string
}

var cardRules = RuleSet{
	Product:        ProductHockeyCard,
	Label:          "hockey cards",
	Heading:        "Hockey Card",
	TitleStructure: "YEAR/SEASON > BRAND/SET > INSERT/SUBSET > PLAYER NAME > CARD TYPE > ROOKIE (RC) > SERIAL (/XX) > CARD NUMBER (#XX) > GRADE",
	RequiredFields: []string{
		"year/season (e.g., 2016-17)",
		"brand/set (Upper Deck, The Cup, SP Authentic, OPC, etc.)",
		"insert/subset (Young Guns, FWA, Exquisite, etc.)",
		"player_name",
		"card_type (Auto, Patch, RPA, etc.)",
		"rookie_indicator (RC or implied like Young Guns)",
		"serial_number (/99, /25, 1/1)",
		"card_number (#201)",
		"grading_company (PSA, BGS, SGC)",
		"grade (10, 9.5, etc.)",
	},
	ExclusionRules: []string{
		"Lots/bundles",
		"Reprints",
		"Digital cards",
		"Empty boxes/cases",
		"Wrong player",
		"Wrong set/insert",
		"Wrong grade",
		`"Custom", "Fan made", "Read description"`,
		"Misleading listings",
	},
	ScoringRules: []ScoreWeight{
		{Criterion: "Same player", Points: 25},
		{Criterion: "Same set/insert", Points: 25},
		{Criterion: "Same grade & grader", Points: 30},
		{Criterion: "Same serial/parallel", Points: 15},
		{Criterion: "Same year", Points: 5},
	},
	MatchThreshold: 70,
}

var laptopRules = RuleSet{
	Product: ProductMacBook,
	Label:   "MacBooks",
	Heading: "MacBook",
	RequiredFields: []string{
		"product_line (MacBook Air / Pro)",
		"screen_size (13 / 14 / 15 / 16)",
		"chip (M1 / M1 Pro / M1 Max / M2 / M3, etc.)",
		"ram (8 / 16 / 32 / 64 / 96 GB)",
		"storage (256 / 512 / 1TB / 2TB, etc.)",
		"year",
		"condition",
		"battery_health (if mentioned)",
		"applecare (yes/no)",
	},
	ExclusionRules: []string{
		`"For parts"`,
		`"Broken"`,
		`"No power"`,
		"MDM, iCloud locked, Activation lock",
		"Logic board only",
		"Empty box",
		"Lot/bundle",
		"Wrong size, chip, RAM, or storage",
	},
	MandatoryFields: []string{
		"product line",
		"screen size",
		"chip",
		"RAM",
		"storage",
	},
}

// Rules returns the rule set for a product type.
func Rules(pt ProductType) (RuleSet, error) {
	switch pt {
	case ProductHockeyCard:
		return cardRules, nil
	case ProductMacBook:
		return laptopRules, nil
	default:
		return RuleSet{}, fmt.Errorf("no rule set for product type %q", pt)
	}
}
