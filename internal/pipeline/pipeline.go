// Package pipeline orchestrates one pricing request: cache check, listing
// fetch, LLM comp analysis, persistence, response.
package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"pricecomp/internal/pricing"
	"pricecomp/internal/settings"
	"pricecomp/internal/storage"
)

// CacheTTL is how long a computed analysis stays fresh.
const CacheTTL = time.Hour

// ListingSource retrieves recently sold listings for a query.
type ListingSource interface {
	FetchSoldListings(ctx context.Context, query string, region pricing.Region, apiKey string) ([]pricing.RawListing, error)
}

// Analyzer runs the LLM comp analysis over a rendered prompt.
type Analyzer interface {
	Analyze(ctx context.Context, instructions, payload string, currency pricing.Currency, region pricing.Region) (*pricing.Analysis, error)
}

// AnalyzerFactory builds an Analyzer for the configured provider selector
// and credential.
type AnalyzerFactory func(ctx context.Context, provider, apiKey string) (Analyzer, error)

// Pipeline executes pricing requests. Each request is independent; the only
// shared state is the store and the in-flight request groups.
type Pipeline struct {
	source      ListingSource
	store       storage.Store
	newAnalyzer AnalyzerFactory
	now         func() time.Time

	// flights coalesces concurrent identical uncached queries so a burst
	// for one key costs a single fetch + analysis. forceRefresh requests
	// bypass coalescing and overwrite the cache (last write wins).
	flights singleflight.Group
}

func New(source ListingSource, store storage.Store, newAnalyzer AnalyzerFactory) *Pipeline {
	return &Pipeline{
		source:      source,
		store:       store,
		newAnalyzer: newAnalyzer,
		now:         time.Now,
	}
}

// Run executes one pricing request: CHECK_CACHE, then on a miss FETCH,
// ANALYZE, PERSIST, RESPOND. forceRefresh skips the cache check entirely.
func (p *Pipeline) Run(ctx context.Context, q pricing.Query, cfg settings.Settings) (*pricing.Analysis, error) {
	if !cfg.Configured() {
		return nil, ErrNotConfigured
	}

	if q.ForceRefresh {
		return p.refresh(ctx, q, cfg)
	}

	cached, err := p.store.GetCachedAnalysis(string(q.ProductType), q.Text, p.now())
	if err != nil {
		// A broken cache read degrades to a miss, it never fails the request.
		log.Warn().Err(err).Msg("cache lookup failed, treating as miss")
	} else if cached != nil {
		log.Debug().
			Str("type", string(q.ProductType)).
			Str("query", q.Text).
			Msg("cache hit")
		return cached, nil
	}

	key := string(q.ProductType) + "\x00" + q.Text
	// The flight runs on the initiating caller's ctx, so joined callers
	// share its fate: if that request is canceled mid-flight, everyone in
	// the flight gets its context error. All callers arrive with the same
	// server-imposed deadline, and a joiner losing its flight can simply
	// reissue the request.
	v, err, shared := p.flights.Do(key, func() (any, error) {
		return p.refresh(ctx, q, cfg)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		log.Debug().Str("query", q.Text).Msg("joined in-flight analysis")
	}
	return v.(*pricing.Analysis), nil
}

func (p *Pipeline) refresh(ctx context.Context, q pricing.Query, cfg settings.Settings) (*pricing.Analysis, error) {
	listings, err := p.source.FetchSoldListings(ctx, q.Text, q.Region, cfg.SerpAPIKey)
	if err != nil {
		return nil, &FetchError{Err: err}
	}
	if len(listings) == 0 {
		return nil, ErrNoListings
	}
	log.Info().
		Str("type", string(q.ProductType)).
		Str("query", q.Text).
		Int("listings", len(listings)).
		Msg("fetched sold listings")

	rules, err := pricing.Rules(q.ProductType)
	if err != nil {
		return nil, err
	}
	instructions, payload := pricing.BuildPrompt(pricing.PromptInput{
		Rules:          rules,
		Currency:       cfg.Currency,
		Region:         q.Region,
		UseAIFiltering: cfg.UseAIFiltering,
	}, listings)

	analyzer, err := p.newAnalyzer(ctx, cfg.LLMProvider, cfg.LLMAPIKey)
	if err != nil {
		return nil, err
	}
	analysis, err := analyzer.Analyze(ctx, instructions, payload, cfg.Currency, q.Region)
	if err != nil {
		return nil, err
	}
	log.Info().
		Int("compsUsed", analysis.Summary.CompsUsed).
		Int("compsExcluded", analysis.Summary.CompsExcluded).
		Float64("medianPrice", analysis.Summary.MedianPrice).
		Msg("comp analysis complete")

	p.persist(q, analysis)

	return analysis, nil
}

// persist writes the cache entry and the history record synchronously.
// Failures are non-fatal: the computed price is valid even when it could
// not be durably recorded, so they are logged and the response proceeds.
func (p *Pipeline) persist(q pricing.Query, analysis *pricing.Analysis) {
	now := p.now()

	if err := p.store.PutCachedAnalysis(string(q.ProductType), q.Text, analysis, now.Add(CacheTTL)); err != nil {
		perr := &PersistenceError{Op: "cache write", Err: err}
		log.Error().Err(perr).Str("query", q.Text).Msg("failed to persist analysis")
	}

	rec := storage.HistoryRecord{
		SearchType:      string(q.ProductType),
		SearchQuery:     q.Text,
		MedianPrice:     analysis.Summary.MedianPrice,
		Currency:        analysis.Summary.Currency,
		CompsUsed:       analysis.Summary.CompsUsed,
		CompsExcluded:   analysis.Summary.CompsExcluded,
		ConfidenceScore: analysis.Summary.ConfidenceScore,
		CreatedAt:       now,
	}
	if err := p.store.AppendHistory(rec); err != nil {
		perr := &PersistenceError{Op: "history append", Err: err}
		log.Error().Err(perr).Str("query", q.Text).Msg("failed to persist analysis")
	}
}
