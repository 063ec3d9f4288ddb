// Package serpapi queries the SerpApi eBay engine for recently sold
// listings. It is the pipeline's only listing source.
package serpapi

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"pricecomp/internal/pricing"
)

const defaultBaseURL = "https://serpapi.com"

type ClientOpts struct {
	// BaseURL overrides the SerpApi endpoint, used in tests.
	BaseURL string
}

// Client is a SerpApi HTTP client.
type Client struct {
	httpClient *resty.Client
}

func NewClient(opts ClientOpts) *Client {
	baseURL := defaultBaseURL
	if opts.BaseURL != "" {
		baseURL = opts.BaseURL
	}
	httpClient := resty.New().
		SetDebug(false).
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json")

	return &Client{httpClient: httpClient}
}

type priceField struct {
	Raw   string  `json:"raw"`
	Value float64 `json:"value"`
}

// display prefers the marketplace's raw string ("C $1,200.00") over the
// parsed numeric value.
func (p priceField) display() string {
	if p.Raw != "" {
		return p.Raw
	}
	if p.Value != 0 {
		return strconv.FormatFloat(p.Value, 'f', 2, 64)
	}
	return ""
}

type organicResult struct {
	Title     string     `json:"title"`
	Price     priceField `json:"price"`
	Shipping  priceField `json:"shipping"`
	Location  string     `json:"location"`
	Date      string     `json:"date"`
	Link      string     `json:"link"`
	Thumbnail string     `json:"thumbnail"`
}

type searchResponse struct {
	OrganicResults []organicResult `json:"organic_results"`
}

// ebayDomain maps a region to the marketplace site searched.
func ebayDomain(region pricing.Region) string {
	if region == pricing.RegionCA {
		return "ebay.ca"
	}
	return "ebay.com"
}

// FetchSoldListings searches completed, sold eBay listings for the query.
// A response with no results returns an empty slice and nil error; deciding
// that zero results is fatal belongs to the pipeline.
func (c *Client) FetchSoldListings(ctx context.Context, query string, region pricing.Region, apiKey string) ([]pricing.RawListing, error) {
	result := &searchResponse{}

	res, err := c.httpClient.
		NewRequest().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"engine":      "ebay",
			"ebay_domain": ebayDomain(region),
			"_nkw":        query,
			"LH_Sold":     "1",
			"LH_Complete": "1",
			"api_key":     apiKey,
		}).
		SetResult(result).
		Get("/search")
	if err != nil {
		return nil, fmt.Errorf("SerpApi request failed: %w", err)
	}
	if res.IsError() {
		return nil, fmt.Errorf("SerpApi error: %s", res.Status())
	}

	listings := make([]pricing.RawListing, len(result.OrganicResults))
	for i, r := range result.OrganicResults {
		listings[i] = pricing.RawListing{
			Title:     r.Title,
			Price:     r.Price.display(),
			Shipping:  r.Shipping.display(),
			Location:  r.Location,
			SoldDate:  r.Date,
			Link:      r.Link,
			Thumbnail: r.Thumbnail,
		}
	}

	log.Debug().
		Str("query", query).
		Str("domain", ebayDomain(region)).
		Int("results", len(listings)).
		Msg("serpapi search complete")

	return listings, nil
}
