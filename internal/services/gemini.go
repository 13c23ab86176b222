package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// GeminiConfig configures a Gemini provider
type GeminiConfig struct {
	APIKey      string
	Model       string
	Grounded    bool // attach the Google Search tool
	Temperature float32
	MaxTokens   int32
	BaseURL     string // empty means the public endpoint
}

// GeminiProvider calls Gemini, optionally grounded with Google Search
type GeminiProvider struct {
	client      *genai.Client
	model       string
	grounded    bool
	temperature float32
	maxTokens   int32
}

// NewGeminiProvider creates a Gemini provider
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: GEMINI_API_KEY is not set", ErrProviderNotConfigured)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Gemini client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = "gemini-2.5-flash-lite"
	}

	return &GeminiProvider{
		client:      client,
		model:       model,
		grounded:    cfg.Grounded,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

// Name returns the provider variant name
func (g *GeminiProvider) Name() string {
	if g.grounded {
		return ProviderGeminiSearch
	}
	return ProviderGemini
}

// Grounded reports whether the Google Search tool is attached
func (g *GeminiProvider) Grounded() bool {
	return g.grounded
}

// GetModel returns the Gemini model being used
func (g *GeminiProvider) GetModel() string {
	return g.model
}

// Generate sends the prompt once and concatenates the text parts of the first candidate
func (g *GeminiProvider) Generate(ctx context.Context, prompt string) (*Generation, error) {
	temperature := g.temperature
	config := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: g.maxTokens,
	}
	if g.grounded {
		config.Tools = []*genai.Tool{
			{GoogleSearch: &genai.GoogleSearch{}},
		}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), config)
	if err != nil {
		return nil, classifyGeminiError(err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("%w: gemini returned no candidate parts", ErrMalformedUpstream)
	}

	candidate := resp.Candidates[0]
	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil && part.Text != "" {
			text.WriteString(part.Text)
		}
	}

	generation := &Generation{Text: strings.TrimSpace(text.String())}
	generation.SourceURIs = groundingURIs(candidate.GroundingMetadata)
	generation.SourceCount = len(generation.SourceURIs)
	if resp.UsageMetadata != nil {
		generation.TokensUsed = int(resp.UsageMetadata.TotalTokenCount)
	}

	return generation, nil
}

// groundingURIs lists the distinct web URIs the answer was grounded on
func groundingURIs(meta *genai.GroundingMetadata) []string {
	if meta == nil {
		return nil
	}

	seen := make(map[string]bool)
	var uris []string
	for _, chunk := range meta.GroundingChunks {
		if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" {
			continue
		}
		if !seen[chunk.Web.URI] {
			seen[chunk.Web.URI] = true
			uris = append(uris, chunk.Web.URI)
		}
	}
	return uris
}

// classifyGeminiError maps SDK errors onto the provider error taxonomy
func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return statusError(ProviderGemini, apiErr.Code, apiErr.Message)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return statusError(ProviderGemini, apiErrPtr.Code, apiErrPtr.Message)
	}
	return fmt.Errorf("%w: gemini request failed: %v", ErrUpstream, err)
}

// statusError converts an upstream HTTP status into a provider error
func statusError(provider string, status int, body string) error {
	if status == http.StatusTooManyRequests {
		return quotaError(provider, body)
	}
	return upstreamError(provider, status, body)
}
