// Package settings holds the runtime configuration for the pricing
// service. Settings are an explicit value passed into the pipeline per
// request, never ambient state.
package settings

import (
	"fmt"
	"strings"

	"pricecomp/internal/llm"
	"pricecomp/internal/pricing"
)

// Settings is the persisted configuration row.
type Settings struct {
	SerpAPIKey     string           `json:"serpapi_key"`
	LLMAPIKey      string           `json:"llm_api_key"`
	LLMProvider    string           `json:"llm_provider"`
	Currency       pricing.Currency `json:"default_currency"`
	Region         pricing.Region   `json:"default_region"`
	UseAIFiltering bool             `json:"use_ai_filtering"`
}

// Defaults returns the settings created when no row exists yet.
func Defaults() Settings {
	return Settings{
		LLMProvider:    llm.ProviderClaude,
		Currency:       pricing.CurrencyCAD,
		Region:         pricing.RegionCA,
		UseAIFiltering: true,
	}
}

// Configured reports whether both external API credentials are present.
func (s Settings) Configured() bool {
	return s.SerpAPIKey != "" && s.LLMAPIKey != ""
}

// Validate checks the enum-valued fields.
func (s Settings) Validate() error {
	switch s.LLMProvider {
	case llm.ProviderClaude, llm.ProviderOpenAI, llm.ProviderGemini:
	default:
		return fmt.Errorf("unknown llm provider: %q", s.LLMProvider)
	}
	switch s.Currency {
	case pricing.CurrencyUSD, pricing.CurrencyCAD:
	default:
		return fmt.Errorf("unknown currency: %q", s.Currency)
	}
	switch s.Region {
	case pricing.RegionUS, pricing.RegionCA:
	default:
		return fmt.Errorf("unknown region: %q", s.Region)
	}
	return nil
}

// Masked returns a copy safe to return to clients: credentials are reduced
// to first4...last4.
func (s Settings) Masked() Settings {
	s.SerpAPIKey = MaskKey(s.SerpAPIKey)
	s.LLMAPIKey = MaskKey(s.LLMAPIKey)
	return s
}

// MaskKey masks a credential as first4...last4. Keys too short to mask
// safely come back empty.
func MaskKey(key string) string {
	if len(key) < 8 {
		return ""
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// Merge applies an update on top of the current settings. Blank credential
// fields mean "leave unchanged"; every other field always overwrites.
func Merge(current, update Settings) Settings {
	merged := update
	if strings.TrimSpace(update.SerpAPIKey) == "" {
		merged.SerpAPIKey = current.SerpAPIKey
	}
	if strings.TrimSpace(update.LLMAPIKey) == "" {
		merged.LLMAPIKey = current.LLMAPIKey
	}
	return merged
}
