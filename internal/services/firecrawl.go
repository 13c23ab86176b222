package services

import (
	"context"
	"fmt"
	"time"

	"github.com/mendableai/firecrawl-go"
)

// FirecrawlReader scrapes news pages to Markdown through Firecrawl
type FirecrawlReader struct {
	client *firecrawl.FirecrawlApp
}

// NewFirecrawlReader creates a Firecrawl-backed reader. A positive timeout
// replaces the SDK's 60s HTTP client timeout.
func NewFirecrawlReader(apiKey, apiURL string, timeout time.Duration) (*FirecrawlReader, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("FIRECRAWL_API_KEY is required for the firecrawl news reader")
	}
	if apiURL == "" {
		apiURL = "https://api.firecrawl.dev"
	}

	app, err := firecrawl.NewFirecrawlApp(apiKey, apiURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize FireCrawl client: %w", err)
	}
	if timeout > 0 {
		app.Client.Timeout = timeout
	}

	return &FirecrawlReader{client: app}, nil
}

// Name identifies the reader in logs
func (f *FirecrawlReader) Name() string { return "firecrawl" }

type scrapeResult struct {
	doc *firecrawl.FirecrawlDocument
	err error
}

// Fetch scrapes the URL. The SDK takes no context, so the scrape runs in its
// own goroutine and Fetch returns as soon as ctx is done; the abandoned call
// is still bounded by the client timeout.
func (f *FirecrawlReader) Fetch(ctx context.Context, url string) (string, error) {
	if err := ValidateURL(url); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	done := make(chan scrapeResult, 1)
	go func() {
		doc, err := f.client.ScrapeURL(url, nil)
		done <- scrapeResult{doc: doc, err: err}
	}()

	var res scrapeResult
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("FireCrawl scrape of %s abandoned: %w", url, ctx.Err())
	case res = <-done:
	}

	if res.err != nil {
		return "", fmt.Errorf("FireCrawl scrape failed: %w", res.err)
	}
	if res.doc == nil {
		return "", fmt.Errorf("FireCrawl returned no document for %s", url)
	}
	return res.doc.Markdown, nil
}
