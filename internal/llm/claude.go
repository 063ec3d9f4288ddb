package llm

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const (
	claudeBaseURL   = "https://api.anthropic.com"
	claudeModel     = "claude-3-5-sonnet-20240620"
	claudeMaxTokens = 4096
)

// Claude pricing (per million tokens)
const (
	claudeInputPricePerMillion  = 3.00
	claudeOutputPricePerMillion = 15.00
)

// ClaudeProvider calls the Anthropic messages API.
type ClaudeProvider struct {
	httpClient *resty.Client
	apiKey     string
}

// NewClaudeProvider creates a Claude adapter. baseURL overrides the API
// endpoint for tests; empty means the real API.
func NewClaudeProvider(apiKey, baseURL string) *ClaudeProvider {
	if baseURL == "" {
		baseURL = claudeBaseURL
	}
	return &ClaudeProvider{
		httpClient: resty.New().SetBaseURL(baseURL),
		apiKey:     apiKey,
	}
}

func (p *ClaudeProvider) Name() string { return ProviderClaude }

type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	System    string          `json:"system"`
	Messages  []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
}

// Complete sends the instructions as the system prompt and the payload as a
// single user message, returning the completion text.
func (p *ClaudeProvider) Complete(ctx context.Context, instructions, payload string) (string, error) {
	result := &claudeResponse{}

	res, err := p.httpClient.
		NewRequest().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("x-api-key", p.apiKey).
		SetHeader("anthropic-version", "2023-06-01").
		SetBody(claudeRequest{
			Model:     claudeModel,
			MaxTokens: claudeMaxTokens,
			System:    instructions,
			Messages:  []claudeMessage{{Role: "user", Content: payload}},
		}).
		SetResult(result).
		Post("/v1/messages")
	if err != nil {
		return "", fmt.Errorf("Claude API error: %w", err)
	}
	if res.IsError() {
		return "", fmt.Errorf("Claude API error: %s - %s", res.Status(), res.String())
	}
	if len(result.Content) == 0 {
		return "", fmt.Errorf("no response from Claude")
	}

	usage := Usage{
		InputTokens:  result.Usage.InputTokens,
		OutputTokens: result.Usage.OutputTokens,
		TotalTokens:  result.Usage.InputTokens + result.Usage.OutputTokens,
		CostUSD:      tokenCost(result.Usage.InputTokens, result.Usage.OutputTokens, claudeInputPricePerMillion, claudeOutputPricePerMillion),
	}
	log.Info().
		Str("model", claudeModel).
		Int64("inputTokens", usage.InputTokens).
		Int64("outputTokens", usage.OutputTokens).
		Float64("costUSD", usage.CostUSD).
		Msg("comp analysis llm call")

	return result.Content[0].Text, nil
}
