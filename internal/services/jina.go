package services

import (
	"compress/gzip"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// JinaReader extracts page content through the Jina AI Reader proxy
type JinaReader struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	userAgent  string
}

// NewJinaReader creates a Jina reader. apiKey is optional.
func NewJinaReader(apiKey string, timeout time.Duration) *JinaReader {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		IdleConnTimeout: 90 * time.Second,
	}

	return &JinaReader{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		baseURL:   "https://r.jina.ai",
		apiKey:    apiKey,
		userAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	}
}

// WithBaseURL points the reader at another Reader endpoint
func (j *JinaReader) WithBaseURL(baseURL string) *JinaReader {
	j.baseURL = strings.TrimRight(baseURL, "/")
	return j
}

// Name identifies the reader in logs
func (j *JinaReader) Name() string { return "jina" }

// Fetch makes a single Reader request for the URL
func (j *JinaReader) Fetch(ctx context.Context, url string) (string, error) {
	if err := ValidateURL(url); err != nil {
		return "", err
	}

	jinaURL := fmt.Sprintf("%s/%s", j.baseURL, url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jinaURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	j.setHeaders(req)

	resp, err := j.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("jina request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("jina returned status %d: %s", resp.StatusCode, string(body))
	}

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return "", fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gzipReader.Close()
		reader = gzipReader
	}

	content, err := io.ReadAll(io.LimitReader(reader, maxNewsBodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read jina response: %w", err)
	}

	contentStr := string(content)

	// Shorter bodies are almost always an error page
	if len(contentStr) < 100 {
		return "", fmt.Errorf("content too short (%d chars), might be an error page", len(contentStr))
	}

	return contentStr, nil
}

func (j *JinaReader) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", j.userAgent)
	req.Header.Set("Accept", "text/plain, text/markdown;q=0.9, */*;q=0.8")
	req.Header.Set("Accept-Language", "fa-IR,fa;q=0.9,en;q=0.8")
	req.Header.Set("Accept-Encoding", "identity")
	if j.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+j.apiKey)
	}
}

// ValidateURL performs basic URL validation before a page is fetched
func ValidateURL(url string) error {
	if url == "" {
		return fmt.Errorf("URL cannot be empty")
	}

	if len(url) > 2048 {
		return fmt.Errorf("URL too long: %d characters", len(url))
	}

	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return fmt.Errorf("URL must start with http:// or https://")
	}

	return nil
}
