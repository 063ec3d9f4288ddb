// Package llm holds the language model provider adapters and the comp
// analyzer that validates their output against the analysis schema.
package llm

import (
	"context"
	"fmt"
)

// Recognized provider selectors, supplied by configuration.
const (
	ProviderClaude = "claude"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Usage contains token usage and cost information for one call.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
	CostUSD      float64
}

// Provider sends one instructions+payload pair to a language model backend
// and returns the raw completion text. Backends differ in request/response
// shape but share this contract; adding a provider means adding an adapter.
type Provider interface {
	Name() string
	Complete(ctx context.Context, instructions, payload string) (string, error)
}

// NewProvider returns the adapter for the configured provider selector.
func NewProvider(ctx context.Context, name, apiKey string) (Provider, error) {
	switch name {
	case ProviderClaude:
		return NewClaudeProvider(apiKey, ""), nil
	case ProviderOpenAI:
		return NewOpenAIProvider(apiKey, ""), nil
	case ProviderGemini:
		return NewGeminiProvider(ctx, apiKey)
	default:
		return nil, fmt.Errorf("unknown llm provider: %q", name)
	}
}

func tokenCost(inputTokens, outputTokens int64, inputPrice, outputPrice float64) float64 {
	inputCost := float64(inputTokens) / 1_000_000 * inputPrice
	outputCost := float64(outputTokens) / 1_000_000 * outputPrice
	return inputCost + outputCost
}
