package pricing

import "fmt"

// ProductType selects which rule set applies to a query.
type ProductType string

const (
	ProductHockeyCard ProductType = "hockey_card"
	ProductMacBook    ProductType = "macbook"
)

// ParseProductType converts the wire value from the pricing endpoint.
func ParseProductType(s string) (ProductType, error) {
	switch ProductType(s) {
	case ProductHockeyCard, ProductMacBook:
		return ProductType(s), nil
	default:
		return "", fmt.Errorf("unknown search type: %q", s)
	}
}

// Region is the marketplace region a query targets.
type Region string

const (
	RegionUS Region = "us"
	RegionCA Region = "ca"
)

// Currency of the aggregated price summary.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyCAD Currency = "CAD"
)

// Query is one pricing request. Constructed once per request and never
// mutated by the pipeline.
type Query struct {
	Text         string
	ProductType  ProductType
	Region       Region
	ForceRefresh bool
}

// RawListing is one sold listing as returned by the listing source.
// Any field may be empty; the prompt builder substitutes "N/A".
type RawListing struct {
	Title     string
	Price     string
	Shipping  string
	Location  string
	SoldDate  string
	Link      string
	Thumbnail string
}

// Comp is a listing after LLM classification.
type Comp struct {
	Title           string         `json:"title"`
	URL             string         `json:"url"`
	ImageURL        string         `json:"image_url"`
	SoldPrice       float64        `json:"sold_price"`
	Shipping        float64        `json:"shipping"`
	Location        string         `json:"location"`
	TotalUsed       float64        `json:"total_used"`
	SoldDate        string         `json:"sold_date"`
	Included        bool           `json:"included"`
	ExclusionReason string         `json:"exclusion_reason,omitempty"`
	MatchScore      int            `json:"match_score"`
	ExtractedFields map[string]any `json:"extracted_fields"`
}

// Confidence labels recognized in the summary.
const (
	ConfidenceLow    = "Low"
	ConfidenceMedium = "Medium"
	ConfidenceHigh   = "High"
)

// Summary is the aggregated price distribution over the included comps.
type Summary struct {
	MedianPrice     float64  `json:"median_price"`
	P25Price        float64  `json:"p25_price"`
	P75Price        float64  `json:"p75_price"`
	Currency        Currency `json:"currency"`
	ConfidenceScore int      `json:"confidence_score"`
	ConfidenceLabel string   `json:"confidence_label"`
	CompsUsed       int      `json:"comps_used"`
	CompsExcluded   int      `json:"comps_excluded"`
	Notes           []string `json:"notes"`
}

// Analysis is the unit of caching and the unit returned to the caller.
type Analysis struct {
	Summary Summary `json:"summary"`
	Comps   []Comp  `json:"comps"`
}

// ComposePrice applies the region price-composition rule: US uses the item
// price only, CA folds shipping into the total. Taxes, duties and customs
// are never included.
func ComposePrice(region Region, itemPrice, shippingPrice float64) float64 {
	if region == RegionCA {
		return itemPrice + shippingPrice
	}
	return itemPrice
}
