package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(v float64) *float64 { return &v }

func TestBuildHolidayPrompt(t *testing.T) {
	// 22:00 UTC is already the next day in Tehran
	date := time.Date(2026, 1, 4, 22, 0, 0, 0, time.UTC)

	t.Run("grounded with hints", func(t *testing.T) {
		prompt := BuildHolidayPrompt(PromptInput{
			City:     "Tehran",
			Date:     date,
			LastIQ:   floatPtr(182),
			LastTH:   floatPtr(150.5),
			Grounded: true,
		})
		assert.Contains(t, prompt, "Tehran")
		assert.Contains(t, prompt, "2026-01-05")
		assert.Contains(t, prompt, "Google Search")
		assert.Contains(t, prompt, "182")
		assert.Contains(t, prompt, "150.5")
		for _, key := range []string{"elementary", "middle", "high", "university", "offices", "isOff", "probability"} {
			assert.Contains(t, prompt, key)
		}
	})

	t.Run("ungrounded with news", func(t *testing.T) {
		prompt := BuildHolidayPrompt(PromptInput{
			City: "Karaj",
			Date: date,
			News: []NewsDocument{{URL: "https://example.ir/news/1", Content: "مدارس فردا تعطیل است"}},
		})
		assert.NotContains(t, prompt, "Google Search")
		assert.Contains(t, prompt, "https://example.ir/news/1")
		assert.Contains(t, prompt, "مدارس فردا تعطیل است")
		assert.NotContains(t, prompt, "آخرین شاخص")
	})
}

func newGeminiTestServer(t *testing.T, status int, body string, captured *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if captured != nil {
			raw, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(raw, captured)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGeminiProvider_Generate(t *testing.T) {
	ctx := context.Background()

	t.Run("grounded reply with sources", func(t *testing.T) {
		var captured map[string]any
		srv := newGeminiTestServer(t, http.StatusOK, `{
			"candidates": [{
				"content": {"role": "model", "parts": [{"text": "{\"overall\":"}, {"text": "{\"isOff\":true}}"}]},
				"groundingMetadata": {"groundingChunks": [
					{"web": {"uri": "https://isna.ir/a", "title": "isna"}},
					{"web": {"uri": "https://irna.ir/b", "title": "irna"}},
					{"web": {"uri": "https://isna.ir/a", "title": "isna"}}
				]}
			}],
			"usageMetadata": {"totalTokenCount": 42}
		}`, &captured)

		provider, err := NewGeminiProvider(ctx, GeminiConfig{
			APIKey:      "test-key",
			Grounded:    true,
			Temperature: 0.3,
			MaxTokens:   1024,
			BaseURL:     srv.URL,
		})
		require.NoError(t, err)
		assert.Equal(t, ProviderGeminiSearch, provider.Name())
		assert.True(t, provider.Grounded())
		assert.Equal(t, "gemini-2.5-flash-lite", provider.GetModel())

		gen, err := provider.Generate(ctx, "prompt")
		require.NoError(t, err)
		assert.Equal(t, `{"overall":{"isOff":true}}`, gen.Text)
		assert.Equal(t, 2, gen.SourceCount)
		assert.Equal(t, []string{"https://isna.ir/a", "https://irna.ir/b"}, gen.SourceURIs)
		assert.Equal(t, 42, gen.TokensUsed)
		assert.Contains(t, captured, "tools")
	})

	t.Run("plain variant sends no tools", func(t *testing.T) {
		var captured map[string]any
		srv := newGeminiTestServer(t, http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"hello"}]}}]}`, &captured)

		provider, err := NewGeminiProvider(ctx, GeminiConfig{APIKey: "k", BaseURL: srv.URL})
		require.NoError(t, err)
		assert.Equal(t, ProviderGemini, provider.Name())

		gen, err := provider.Generate(ctx, "prompt")
		require.NoError(t, err)
		assert.Equal(t, "hello", gen.Text)
		assert.Zero(t, gen.SourceCount)
		assert.NotContains(t, captured, "tools")
	})

	t.Run("quota", func(t *testing.T) {
		srv := newGeminiTestServer(t, http.StatusTooManyRequests,
			`{"error":{"code":429,"message":"Resource has been exhausted","status":"RESOURCE_EXHAUSTED"}}`, nil)
		provider, err := NewGeminiProvider(ctx, GeminiConfig{APIKey: "k", BaseURL: srv.URL})
		require.NoError(t, err)

		_, err = provider.Generate(ctx, "prompt")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrQuotaExceeded)
	})

	t.Run("upstream error", func(t *testing.T) {
		srv := newGeminiTestServer(t, http.StatusInternalServerError,
			`{"error":{"code":500,"message":"internal","status":"INTERNAL"}}`, nil)
		provider, err := NewGeminiProvider(ctx, GeminiConfig{APIKey: "k", BaseURL: srv.URL})
		require.NoError(t, err)

		_, err = provider.Generate(ctx, "prompt")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUpstream)
		assert.NotErrorIs(t, err, ErrQuotaExceeded)
	})

	t.Run("no candidates", func(t *testing.T) {
		srv := newGeminiTestServer(t, http.StatusOK, `{"candidates":[]}`, nil)
		provider, err := NewGeminiProvider(ctx, GeminiConfig{APIKey: "k", BaseURL: srv.URL})
		require.NoError(t, err)

		_, err = provider.Generate(ctx, "prompt")
		assert.ErrorIs(t, err, ErrMalformedUpstream)
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := NewGeminiProvider(ctx, GeminiConfig{})
		assert.ErrorIs(t, err, ErrProviderNotConfigured)
	})
}

func newOpenAITestServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIProvider_Generate(t *testing.T) {
	ctx := context.Background()

	t.Run("reply", func(t *testing.T) {
		srv := newOpenAITestServer(t, http.StatusOK, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "  {\"overall\":{}}  "}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`)

		provider, err := NewOpenAIProvider(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1", Temperature: 0.3, MaxTokens: 1024})
		require.NoError(t, err)
		assert.Equal(t, ProviderOpenAI, provider.Name())
		assert.False(t, provider.Grounded())
		assert.Equal(t, "gpt-4o-mini", provider.GetModel())

		gen, err := provider.Generate(ctx, "prompt")
		require.NoError(t, err)
		assert.Equal(t, `{"overall":{}}`, gen.Text)
		assert.Equal(t, 15, gen.TokensUsed)
		assert.Zero(t, gen.SourceCount)
		assert.InDelta(t, 0.0003, provider.EstimateCost(1000), 1e-9)
	})

	t.Run("quota", func(t *testing.T) {
		srv := newOpenAITestServer(t, http.StatusTooManyRequests,
			`{"error":{"message":"You exceeded your current quota","type":"insufficient_quota","code":"insufficient_quota"}}`)
		provider, err := NewOpenAIProvider(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1"})
		require.NoError(t, err)

		_, err = provider.Generate(ctx, "prompt")
		assert.ErrorIs(t, err, ErrQuotaExceeded)
	})

	t.Run("upstream error", func(t *testing.T) {
		srv := newOpenAITestServer(t, http.StatusBadGateway, `bad gateway`)
		provider, err := NewOpenAIProvider(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1"})
		require.NoError(t, err)

		_, err = provider.Generate(ctx, "prompt")
		assert.ErrorIs(t, err, ErrUpstream)
	})

	t.Run("no choices", func(t *testing.T) {
		srv := newOpenAITestServer(t, http.StatusOK, `{"id":"x","object":"chat.completion","choices":[]}`)
		provider, err := NewOpenAIProvider(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1"})
		require.NoError(t, err)

		_, err = provider.Generate(ctx, "prompt")
		assert.ErrorIs(t, err, ErrMalformedUpstream)
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := NewOpenAIProvider(OpenAIConfig{})
		assert.ErrorIs(t, err, ErrProviderNotConfigured)
	})
}
