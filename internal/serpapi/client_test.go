package serpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricecomp/internal/pricing"
)

func TestFetchSoldListings(t *testing.T) {
	var req *http.Request
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req = r
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"organic_results": [
				{
					"title": "2016-17 Upper Deck Young Guns Auston Matthews PSA 10",
					"price": {"raw": "C $1,200.00", "value": 1200.0},
					"shipping": {"raw": "C $20.00", "value": 20.0},
					"location": "Toronto, Canada",
					"date": "Sep 12, 2025",
					"link": "https://www.ebay.ca/itm/1",
					"thumbnail": "https://i.ebayimg.com/1.jpg"
				},
				{
					"title": "Matthews Young Guns (no price shown)",
					"price": {"value": 950.5}
				}
			]
		}`))
	}))
	defer ts.Close()

	client := NewClient(ClientOpts{BaseURL: ts.URL})
	listings, err := client.FetchSoldListings(context.Background(), "matthews young guns psa 10", pricing.RegionCA, "secret-key")
	require.NoError(t, err)

	assert.Equal(t, "/search", req.URL.Path)
	q := req.URL.Query()
	assert.Equal(t, "ebay", q.Get("engine"))
	assert.Equal(t, "ebay.ca", q.Get("ebay_domain"))
	assert.Equal(t, "matthews young guns psa 10", q.Get("_nkw"))
	assert.Equal(t, "1", q.Get("LH_Sold"))
	assert.Equal(t, "1", q.Get("LH_Complete"))
	assert.Equal(t, "secret-key", q.Get("api_key"))

	require.Len(t, listings, 2)
	assert.Equal(t, pricing.RawListing{
		Title:     "2016-17 Upper Deck Young Guns Auston Matthews PSA 10",
		Price:     "C $1,200.00",
		Shipping:  "C $20.00",
		Location:  "Toronto, Canada",
		SoldDate:  "Sep 12, 2025",
		Link:      "https://www.ebay.ca/itm/1",
		Thumbnail: "https://i.ebayimg.com/1.jpg",
	}, listings[0])
	// Raw string absent: falls back to the numeric value.
	assert.Equal(t, "950.50", listings[1].Price)
	assert.Empty(t, listings[1].Shipping)
}

func TestFetchSoldListingsUSDomain(t *testing.T) {
	var req *http.Request
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req = r
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"organic_results": []}`))
	}))
	defer ts.Close()

	client := NewClient(ClientOpts{BaseURL: ts.URL})
	listings, err := client.FetchSoldListings(context.Background(), "macbook pro 14 m1", pricing.RegionUS, "k")
	require.NoError(t, err)

	assert.Equal(t, "ebay.com", req.URL.Query().Get("ebay_domain"))
	assert.Empty(t, listings)
}

func TestFetchSoldListingsServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer ts.Close()

	client := NewClient(ClientOpts{BaseURL: ts.URL})
	_, err := client.FetchSoldListings(context.Background(), "foo", pricing.RegionUS, "bad-key")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SerpApi error")
}
