package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures the ungrounded OpenAI provider
type OpenAIConfig struct {
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
	BaseURL     string // empty means the public endpoint
}

// OpenAIProvider answers from model knowledge and attached news text only
type OpenAIProvider struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY is not set", ErrProviderNotConfigured)
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	return &OpenAIProvider{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

// Name returns the provider variant name
func (o *OpenAIProvider) Name() string {
	return ProviderOpenAI
}

// Grounded is always false, the model has no search tool
func (o *OpenAIProvider) Grounded() bool {
	return false
}

// Generate sends the prompt as a single chat completion
func (o *OpenAIProvider) Generate(ctx context.Context, prompt string) (*Generation, error) {
	resp, err := o.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model:       o.model,
			Temperature: o.temperature,
			MaxTokens:   o.maxTokens,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: "You report official school and office closures in Iran. Reply with a single JSON object only.",
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
		},
	)
	if err != nil {
		return nil, classifyOpenAIError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no response choices from OpenAI", ErrMalformedUpstream)
	}

	return &Generation{
		Text:       strings.TrimSpace(resp.Choices[0].Message.Content),
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return statusError(ProviderOpenAI, apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		body := ""
		if reqErr.Err != nil {
			body = reqErr.Err.Error()
		}
		return statusError(ProviderOpenAI, reqErr.HTTPStatusCode, body)
	}
	return fmt.Errorf("%w: openai request failed: %v", ErrUpstream, err)
}

// EstimateCost estimates USD cost for gpt-4o-mini token usage
func (o *OpenAIProvider) EstimateCost(tokensUsed int) float64 {
	// Blended input/output rate per 1K tokens
	costPer1K := 0.0003
	return float64(tokensUsed) / 1000.0 * costPer1K
}

// GetModel returns the current model being used
func (o *OpenAIProvider) GetModel() string {
	return o.model
}
