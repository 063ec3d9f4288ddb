package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricecomp/internal/pipeline"
	"pricecomp/internal/pricing"
	"pricecomp/internal/settings"
	"pricecomp/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakePricer struct {
	analysis *pricing.Analysis
	err      error
	lastQ    pricing.Query
	lastCfg  settings.Settings
}

func (f *fakePricer) Run(ctx context.Context, q pricing.Query, cfg settings.Settings) (*pricing.Analysis, error) {
	f.lastQ = q
	f.lastCfg = cfg
	return f.analysis, f.err
}

type fakeStore struct {
	settings   *settings.Settings
	history    []storage.HistoryRecord
	historyErr error
}

func (f *fakeStore) GetCachedAnalysis(searchType, searchQuery string, now time.Time) (*pricing.Analysis, error) {
	return nil, nil
}

func (f *fakeStore) PutCachedAnalysis(searchType, searchQuery string, a *pricing.Analysis, expiresAt time.Time) error {
	return nil
}

func (f *fakeStore) AppendHistory(rec storage.HistoryRecord) error {
	f.history = append(f.history, rec)
	return nil
}

func (f *fakeStore) ListHistory(limit int) ([]storage.HistoryRecord, error) {
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	if limit > len(f.history) {
		limit = len(f.history)
	}
	return f.history[:limit], nil
}

func (f *fakeStore) GetSettings() (*settings.Settings, error) { return f.settings, nil }

func (f *fakeStore) SaveSettings(s settings.Settings) error {
	f.settings = &s
	return nil
}

func (f *fakeStore) Close() error { return nil }

func storedSettings() *settings.Settings {
	cfg := settings.Defaults()
	cfg.SerpAPIKey = "serp-secret-key"
	cfg.LLMAPIKey = "llm-secret-key-long"
	return &cfg
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	return m
}

func TestPriceMissingFields(t *testing.T) {
	s := New(&fakePricer{}, &fakeStore{settings: storedSettings()})

	w := doJSON(t, s.Handler(), http.MethodPost, "/api/price", map[string]any{"query": "macbook pro"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Missing required fields: query and type", decodeBody(t, w)["error"])

	w = doJSON(t, s.Handler(), http.MethodPost, "/api/price", map[string]any{"type": "macbook"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPriceUnknownType(t *testing.T) {
	s := New(&fakePricer{}, &fakeStore{settings: storedSettings()})

	w := doJSON(t, s.Handler(), http.MethodPost, "/api/price", map[string]any{"query": "q", "type": "vinyl"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPriceSuccess(t *testing.T) {
	analysis := &pricing.Analysis{
		Summary: pricing.Summary{
			MedianPrice:     510,
			P25Price:        480,
			P75Price:        540,
			Currency:        pricing.CurrencyCAD,
			ConfidenceScore: 82,
			ConfidenceLabel: pricing.ConfidenceHigh,
			CompsUsed:       4,
			Notes:           []string{},
		},
		Comps: []pricing.Comp{{Title: "comp", Included: true, MatchScore: 90}},
	}
	pricer := &fakePricer{analysis: analysis}
	s := New(pricer, &fakeStore{settings: storedSettings()})

	w := doJSON(t, s.Handler(), http.MethodPost, "/api/price", map[string]any{
		"query":        "matthews young guns psa 10",
		"type":         "hockey_card",
		"forceRefresh": true,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var got pricing.Analysis
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, *analysis, got)

	assert.Equal(t, "matthews young guns psa 10", pricer.lastQ.Text)
	assert.Equal(t, pricing.ProductHockeyCard, pricer.lastQ.ProductType)
	assert.True(t, pricer.lastQ.ForceRefresh)
	// Region comes from stored settings, not the request.
	assert.Equal(t, pricing.RegionCA, pricer.lastQ.Region)
	assert.Equal(t, "serp-secret-key", pricer.lastCfg.SerpAPIKey)
}

func TestPriceErrorMapping(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"not configured", pipeline.ErrNotConfigured, http.StatusInternalServerError},
		{"no listings", pipeline.ErrNoListings, http.StatusInternalServerError},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"fetch failure", &pipeline.FetchError{Err: errors.New("boom")}, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := New(&fakePricer{err: tc.err}, &fakeStore{settings: storedSettings()})
			w := doJSON(t, s.Handler(), http.MethodPost, "/api/price", map[string]any{
				"query": "q", "type": "macbook",
			})
			assert.Equal(t, tc.wantCode, w.Code)
			assert.NotEmpty(t, decodeBody(t, w)["error"])
		})
	}
}

func TestPriceTimeoutIsRetryable(t *testing.T) {
	s := New(&fakePricer{err: context.DeadlineExceeded}, &fakeStore{settings: storedSettings()})
	w := doJSON(t, s.Handler(), http.MethodPost, "/api/price", map[string]any{
		"query": "q", "type": "macbook",
	})
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.Equal(t, true, decodeBody(t, w)["retryable"])
}

func TestGetSettingsCreatesDefaults(t *testing.T) {
	store := &fakeStore{}
	s := New(&fakePricer{}, store)

	w := doJSON(t, s.Handler(), http.MethodGet, "/api/settings", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "claude", body["llm_provider"])
	assert.Equal(t, "CAD", body["default_currency"])
	assert.Equal(t, "ca", body["default_region"])
	assert.Equal(t, true, body["use_ai_filtering"])
	assert.Equal(t, "", body["serpapi_key"])

	require.NotNil(t, store.settings, "defaults row is created on first read")
}

func TestGetSettingsMasksCredentials(t *testing.T) {
	s := New(&fakePricer{}, &fakeStore{settings: storedSettings()})

	w := doJSON(t, s.Handler(), http.MethodGet, "/api/settings", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "serp...-key", body["serpapi_key"])
	assert.Equal(t, "llm-...long", body["llm_api_key"])
}

func TestUpdateSettingsKeepsBlankCredentials(t *testing.T) {
	store := &fakeStore{settings: storedSettings()}
	s := New(&fakePricer{}, store)

	w := doJSON(t, s.Handler(), http.MethodPost, "/api/settings", map[string]any{
		"serpapi_key":      "",
		"llm_api_key":      "",
		"llm_provider":     "openai",
		"default_currency": "USD",
		"default_region":   "us",
		"use_ai_filtering": false,
	})
	require.Equal(t, http.StatusOK, w.Code)

	// Stored credentials survived the blank update; the rest changed.
	assert.Equal(t, "serp-secret-key", store.settings.SerpAPIKey)
	assert.Equal(t, "llm-secret-key-long", store.settings.LLMAPIKey)
	assert.Equal(t, "openai", store.settings.LLMProvider)
	assert.Equal(t, pricing.CurrencyUSD, store.settings.Currency)
	assert.False(t, store.settings.UseAIFiltering)

	// The response is masked, never the raw keys.
	body := decodeBody(t, w)
	assert.Equal(t, "serp...-key", body["serpapi_key"])
}

func TestUpdateSettingsRejectsUnknownProvider(t *testing.T) {
	store := &fakeStore{settings: storedSettings()}
	s := New(&fakePricer{}, store)

	w := doJSON(t, s.Handler(), http.MethodPost, "/api/settings", map[string]any{
		"llm_provider":     "grok",
		"default_currency": "CAD",
		"default_region":   "ca",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "claude", store.settings.LLMProvider, "rejected update must not be saved")
}

func TestHistory(t *testing.T) {
	store := &fakeStore{settings: storedSettings()}
	store.history = []storage.HistoryRecord{
		{SearchType: "hockey_card", SearchQuery: "mcdavid psa 10", MedianPrice: 800, Currency: pricing.CurrencyCAD},
		{SearchType: "macbook", SearchQuery: "mbp 14 m1 pro", MedianPrice: 1100, Currency: pricing.CurrencyCAD},
	}
	s := New(&fakePricer{}, store)

	w := doJSON(t, s.Handler(), http.MethodGet, "/api/history?limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		History []historyEntry `json:"history"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.History, 1)
	assert.Equal(t, "mcdavid psa 10", body.History[0].SearchQuery)
}

func TestHistoryBadLimit(t *testing.T) {
	s := New(&fakePricer{}, &fakeStore{settings: storedSettings()})
	w := doJSON(t, s.Handler(), http.MethodGet, "/api/history?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealth(t *testing.T) {
	s := New(&fakePricer{}, &fakeStore{})
	w := doJSON(t, s.Handler(), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	s := New(&fakePricer{}, &fakeStore{})
	req := httptest.NewRequest(http.MethodOptions, "/api/price", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
