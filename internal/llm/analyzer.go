package llm

import (
	"context"

	"github.com/rs/zerolog/log"

	"pricecomp/internal/pricing"
)

// Analyzer sends a rendered prompt to a provider and validates the
// completion against the analysis schema. Provider errors and schema
// violations both fail the call; there is no partial result.
type Analyzer struct {
	provider Provider
}

func NewAnalyzer(p Provider) *Analyzer {
	return &Analyzer{provider: p}
}

// Analyze invokes the provider and parses the returned completion.
func (a *Analyzer) Analyze(ctx context.Context, instructions, payload string, currency pricing.Currency, region pricing.Region) (*pricing.Analysis, error) {
	raw, err := a.provider.Complete(ctx, instructions, payload)
	if err != nil {
		return nil, err
	}

	analysis, err := pricing.ParseAnalysis(raw, currency, region)
	if err != nil {
		// Keep the offending text around for diagnosis.
		log.Error().
			Err(err).
			Str("provider", a.provider.Name()).
			Str("response", truncate(raw, 2000)).
			Msg("llm output failed schema validation")
		return nil, err
	}

	return analysis, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
