package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	// MaxNewsChars caps the text kept per source before it goes into the prompt
	MaxNewsChars = 6000

	maxNewsBodyBytes   = 2 << 20
	maxNewsConcurrency = 3
)

// NewsDocument is the readable text of one news page
type NewsDocument struct {
	URL     string
	Content string
}

// NewsReader turns a page URL into readable text
type NewsReader interface {
	Name() string
	Fetch(ctx context.Context, url string) (string, error)
}

// DirectReader fetches pages itself and converts the HTML to Markdown
type DirectReader struct {
	httpClient *http.Client
	userAgent  string
}

// NewDirectReader creates a reader with the given per-request timeout
func NewDirectReader(timeout time.Duration) *DirectReader {
	return &DirectReader{
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	}
}

// Name identifies the reader in logs
func (d *DirectReader) Name() string { return "direct" }

// Fetch downloads the page and returns it as Markdown
func (d *DirectReader) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "fa-IR,fa;q=0.9,en;q=0.8")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("news request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("news source returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxNewsBodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read news page: %w", err)
	}

	markdown, err := htmltomarkdown.ConvertString(string(body))
	if err != nil {
		return "", fmt.Errorf("converting HTML to markdown: %w", err)
	}
	return markdown, nil
}

// NewsCollector fetches the configured sources concurrently. Failed sources
// are logged and skipped; they never fail the refresh.
type NewsCollector struct {
	reader  NewsReader
	sources []string
	timeout time.Duration
	metrics *Metrics
	logger  zerolog.Logger
}

// NewNewsCollector creates a collector. A nil reader or an empty source list
// makes Collect a no-op.
func NewNewsCollector(reader NewsReader, sources []string, timeout time.Duration, metrics *Metrics, logger zerolog.Logger) *NewsCollector {
	return &NewsCollector{
		reader:  reader,
		sources: sources,
		timeout: timeout,
		metrics: metrics,
		logger:  logger,
	}
}

// Enabled reports whether Collect can return anything
func (c *NewsCollector) Enabled() bool {
	return c != nil && c.reader != nil && len(c.sources) > 0
}

// Collect reads every source and returns the non-empty documents in source order
func (c *NewsCollector) Collect(ctx context.Context) []NewsDocument {
	if !c.Enabled() {
		return nil
	}

	docs := make([]NewsDocument, len(c.sources))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxNewsConcurrency)

	for idx, source := range c.sources {
		g.Go(func() error {
			content, err := c.fetch(gCtx, source)
			content = truncateRunes(strings.TrimSpace(content), MaxNewsChars)
			if err != nil || content == "" {
				c.logger.Warn().
					Err(err).
					Str("reader", c.reader.Name()).
					Str("source", source).
					Msg("news source skipped")
				c.count("error")
				return nil // one bad source never fails the batch
			}
			docs[idx] = NewsDocument{URL: source, Content: content}
			c.count("success")
			return nil
		})
	}
	_ = g.Wait()

	var out []NewsDocument
	for _, doc := range docs {
		if doc.Content != "" {
			out = append(out, doc)
		}
	}
	return out
}

// fetch reads one source under its own timeout, started when the fetch starts
func (c *NewsCollector) fetch(ctx context.Context, source string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return c.reader.Fetch(ctx, source)
}

func (c *NewsCollector) count(outcome string) {
	if c.metrics != nil {
		c.metrics.NewsFetchTotal.WithLabelValues(outcome).Inc()
	}
}

// truncateRunes keeps at most max runes of s
func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
