package llm

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const (
	openaiBaseURL = "https://api.openai.com"
	openaiModel   = "gpt-4o"
)

// GPT-4o pricing (per million tokens)
const (
	openaiInputPricePerMillion  = 2.50
	openaiOutputPricePerMillion = 10.00
)

// OpenAIProvider calls the OpenAI chat completions API.
type OpenAIProvider struct {
	httpClient *resty.Client
	apiKey     string
}

// NewOpenAIProvider creates an OpenAI adapter. baseURL overrides the API
// endpoint for tests; empty means the real API.
func NewOpenAIProvider(apiKey, baseURL string) *OpenAIProvider {
	if baseURL == "" {
		baseURL = openaiBaseURL
	}
	return &OpenAIProvider{
		httpClient: resty.New().SetBaseURL(baseURL),
		apiKey:     apiKey,
	}
}

func (p *OpenAIProvider) Name() string { return ProviderOpenAI }

type openaiRequest struct {
	Model          string              `json:"model"`
	Messages       []openaiMessage     `json:"messages"`
	ResponseFormat *openaiRespFormat   `json:"response_format,omitempty"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiRespFormat struct {
	Type string `json:"type"`
}

type openaiResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
}

// Complete sends the instructions as the system message and the payload as
// the user message, with JSON-object response format enforced.
func (p *OpenAIProvider) Complete(ctx context.Context, instructions, payload string) (string, error) {
	result := &openaiResponse{}

	res, err := p.httpClient.
		NewRequest().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", "Bearer "+p.apiKey).
		SetBody(openaiRequest{
			Model: openaiModel,
			Messages: []openaiMessage{
				{Role: "system", Content: instructions},
				{Role: "user", Content: payload},
			},
			ResponseFormat: &openaiRespFormat{Type: "json_object"},
		}).
		SetResult(result).
		Post("/v1/chat/completions")
	if err != nil {
		return "", fmt.Errorf("GPT API error: %w", err)
	}
	if res.IsError() {
		return "", fmt.Errorf("GPT API error: %s - %s", res.Status(), res.String())
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no response from OpenAI")
	}

	usage := Usage{
		InputTokens:  result.Usage.PromptTokens,
		OutputTokens: result.Usage.CompletionTokens,
		TotalTokens:  result.Usage.TotalTokens,
		CostUSD:      tokenCost(result.Usage.PromptTokens, result.Usage.CompletionTokens, openaiInputPricePerMillion, openaiOutputPricePerMillion),
	}
	log.Info().
		Str("model", openaiModel).
		Int64("inputTokens", usage.InputTokens).
		Int64("outputTokens", usage.OutputTokens).
		Float64("costUSD", usage.CostUSD).
		Msg("comp analysis llm call")

	return result.Choices[0].Message.Content, nil
}
