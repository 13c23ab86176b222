package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"holiday-status-api/internal/models"
)

// stubProvider returns a canned generation and records prompts
type stubProvider struct {
	name       string
	grounded   bool
	generation *Generation
	err        error
	prompts    []string
}

func (s *stubProvider) Name() string   { return s.name }
func (s *stubProvider) Grounded() bool { return s.grounded }

func (s *stubProvider) Generate(ctx context.Context, prompt string) (*Generation, error) {
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return nil, s.err
	}
	return s.generation, nil
}

type failingCache struct {
	ResultCache
	putErr error
}

func (f *failingCache) Put(ctx context.Context, city string, result *models.AnalysisResult) error {
	return f.putErr
}

type recordingPublisher struct {
	cities []string
	err    error
}

func (r *recordingPublisher) Publish(ctx context.Context, city string, result *models.AnalysisResult) ([]*S3UploadResult, error) {
	r.cities = append(r.cities, city)
	if r.err != nil {
		return nil, r.err
	}
	return []*S3UploadResult{{Key: LatestKey(city)}}, nil
}

var testNow = time.Date(2026, 1, 5, 6, 30, 0, 0, time.UTC)

func newTestService(t *testing.T, provider ModelProvider, news *NewsCollector, publisher ResultPublisher) (*HolidayService, *MemoryCache, *Metrics) {
	t.Helper()
	cache := NewMemoryCache()
	metrics := NewMetrics(prometheus.NewRegistry())
	opts := HolidayServiceOptions{
		Cache:    cache,
		Provider: provider,
		News:     news,
		Metrics:  metrics,
		Clock:    clockwork.NewFakeClockAt(testNow),
		Logger:   zerolog.Nop(),
	}
	if publisher != nil {
		opts.Publisher = publisher
	}
	return NewHolidayService(opts), cache, metrics
}

func TestHolidayService_GetMissing(t *testing.T) {
	svc, _, metrics := newTestService(t, nil, nil, nil)

	_, err := svc.Get(context.Background(), "Paris")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheRequests.WithLabelValues("get", "miss")))
}

func TestHolidayService_RefreshManual(t *testing.T) {
	ctx := context.Background()
	publisher := &recordingPublisher{}
	svc, _, metrics := newTestService(t, nil, nil, publisher)

	manual := json.RawMessage(`{
		"overall": {"isOff": true, "probability": 90, "message": "تعطیل", "updatedAt": "2026-01-05T05:00:00Z"},
		"grades": {"university": {"isOff": false, "probability": 20}}
	}`)

	result, err := svc.RefreshManual(ctx, "Tehran", manual)
	require.NoError(t, err)
	assert.Equal(t, models.ProviderManual, result.Provider)
	assert.True(t, result.Overall.IsOff)
	assert.Equal(t, "2026-01-05T05:00:00Z", result.Overall.UpdatedAt)
	assert.True(t, result.Grades.Elementary.IsOff, "missing grades inherit overall")
	assert.Equal(t, float64(ManualDefaultProbability), result.Grades.Elementary.Probability)
	assert.False(t, result.Grades.University.IsOff)

	cached, err := svc.Get(ctx, "Tehran")
	require.NoError(t, err)
	assert.Equal(t, result, cached)
	assert.Equal(t, []string{"Tehran"}, publisher.cities)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RefreshTotal.WithLabelValues("manual", "success")))

	for _, bad := range []string{`[1,2]`, `"text"`, `42`, `{broken`} {
		_, err := svc.RefreshManual(ctx, "Tehran", json.RawMessage(bad))
		assert.ErrorIs(t, err, ErrInvalidManual, bad)
	}

	cached, err = svc.Get(ctx, "Tehran")
	require.NoError(t, err)
	assert.Equal(t, result, cached, "rejected overrides leave the cache alone")
}

func TestHolidayService_RefreshFromModel(t *testing.T) {
	ctx := context.Background()
	provider := &stubProvider{
		name:     ProviderGeminiSearch,
		grounded: true,
		generation: &Generation{
			Text:        "```json\n{\"overall\":{\"isOff\":true,\"probability\":80,\"reason\":\"آلودگی هوا\"},\"grades\":{\"offices\":{\"isOff\":false}}}\n```",
			SourceCount: 2,
		},
	}
	reader := &stubReader{pages: map[string]string{"https://isna.ir": "خبر"}}
	news := NewNewsCollector(reader, []string{"https://isna.ir"}, time.Second, nil, zerolog.Nop())

	svc, _, metrics := newTestService(t, provider, news, nil)
	assert.Equal(t, ProviderGeminiSearch, svc.ProviderName())

	iq := 190.0
	result, err := svc.RefreshFromModel(ctx, "Tehran", &models.RefreshContext{LastIQ: &iq})
	require.NoError(t, err)

	assert.Equal(t, ProviderGeminiSearch, result.Provider)
	assert.True(t, result.Overall.IsOff)
	assert.Equal(t, 80.0, result.Overall.Probability)
	assert.Equal(t, "آلودگی هوا", result.Overall.Message)
	assert.Equal(t, 3, result.Overall.SourcesCount, "news docs plus grounding sources")
	assert.Equal(t, "2026-01-05T06:30:00Z", result.Overall.UpdatedAt)
	assert.True(t, result.Grades.High.IsOff)
	assert.False(t, result.Grades.Offices.IsOff)
	assert.Empty(t, result.DebugError)

	require.Len(t, provider.prompts, 1)
	assert.Contains(t, provider.prompts[0], "Tehran")
	assert.Contains(t, provider.prompts[0], "190")
	assert.Contains(t, provider.prompts[0], "https://isna.ir")

	cached, err := svc.Get(ctx, "Tehran")
	require.NoError(t, err)
	assert.Equal(t, result, cached)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RefreshTotal.WithLabelValues("model", "success")))
}

func TestHolidayService_RefreshFromModelUnparseable(t *testing.T) {
	provider := &stubProvider{name: ProviderOpenAI, generation: &Generation{Text: "I could not find anything."}}
	svc, _, metrics := newTestService(t, provider, nil, nil)

	result, err := svc.RefreshFromModel(context.Background(), "Tehran", nil)
	require.NoError(t, err)
	assert.False(t, result.Overall.IsOff)
	assert.Equal(t, float64(ModelDefaultProbability), result.Overall.Probability)
	assert.Equal(t, NoStructuredOutputMessage, result.Overall.Message)
	assert.Equal(t, "I could not find anything.", result.DebugRaw)
	assert.NotEmpty(t, result.DebugError)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.NormalizeFallback.WithLabelValues("model")))
}

func TestHolidayService_RefreshFromModelFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("no provider", func(t *testing.T) {
		svc, _, _ := newTestService(t, nil, nil, nil)
		assert.Empty(t, svc.ProviderName())
		_, err := svc.RefreshFromModel(ctx, "Tehran", nil)
		assert.ErrorIs(t, err, ErrProviderNotConfigured)
	})

	t.Run("quota leaves cache untouched", func(t *testing.T) {
		provider := &stubProvider{name: ProviderGemini, err: quotaError(ProviderGemini, "exhausted")}
		svc, cache, metrics := newTestService(t, provider, nil, nil)
		require.NoError(t, cache.Put(ctx, "Tehran", sampleResult()))

		_, err := svc.RefreshFromModel(ctx, "Tehran", nil)
		assert.ErrorIs(t, err, ErrQuotaExceeded)

		cached, err := svc.Get(ctx, "Tehran")
		require.NoError(t, err)
		assert.Equal(t, sampleResult(), cached)
		assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RefreshTotal.WithLabelValues("model", "error")))
	})

	t.Run("cache write failure", func(t *testing.T) {
		provider := &stubProvider{name: ProviderGemini, generation: &Generation{Text: "{}"}}
		svc := NewHolidayService(HolidayServiceOptions{
			Cache:    &failingCache{ResultCache: NewMemoryCache(), putErr: errors.New("disk full")},
			Provider: provider,
			Logger:   zerolog.Nop(),
		})
		_, err := svc.RefreshFromModel(ctx, "Tehran", nil)
		assert.ErrorContains(t, err, "disk full")
	})

	t.Run("publish failure is not fatal", func(t *testing.T) {
		provider := &stubProvider{name: ProviderGemini, generation: &Generation{Text: "{}"}}
		publisher := &recordingPublisher{err: errors.New("access denied")}
		svc, _, _ := newTestService(t, provider, nil, publisher)

		_, err := svc.RefreshFromModel(ctx, "Tehran", nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"Tehran"}, publisher.cities)
	})
}

func TestHolidayService_CheckModelDoesNotStore(t *testing.T) {
	ctx := context.Background()
	provider := &stubProvider{
		name:       ProviderOpenAI,
		generation: &Generation{Text: `{"overall":{"isOff":true,"probability":70,"reason":"آلودگی"}}`, TokensUsed: 42},
	}
	news := NewNewsCollector(&stubReader{pages: map[string]string{"https://a.ir": "خبر"}}, []string{"https://a.ir"}, time.Second, nil, zerolog.Nop())
	publisher := &recordingPublisher{}
	svc, cache, metrics := newTestService(t, provider, news, publisher)
	assert.Same(t, provider, svc.Provider())

	check, err := svc.CheckModel(ctx, "Tehran", nil)
	require.NoError(t, err)
	assert.True(t, check.Result.Overall.IsOff)
	assert.Equal(t, ProviderOpenAI, check.Result.Provider)
	assert.Equal(t, 1, check.Result.Overall.SourcesCount)
	assert.Equal(t, 42, check.Generation.TokensUsed)
	require.Len(t, check.News, 1)
	require.Len(t, provider.prompts, 1)
	assert.Contains(t, provider.prompts[0], "خبر")

	_, err = cache.Get(ctx, "Tehran")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, publisher.cities)
	assert.Zero(t, testutil.ToFloat64(metrics.RefreshTotal.WithLabelValues("model", "success")))
}

func TestHolidayService_CheckModelWithoutProvider(t *testing.T) {
	svc, _, _ := newTestService(t, nil, nil, nil)
	assert.Nil(t, svc.Provider())

	_, err := svc.CheckModel(context.Background(), "Tehran", nil)
	assert.ErrorIs(t, err, ErrProviderNotConfigured)
}
