package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"holiday-status-api/internal/models"
)

// ErrInvalidManual is returned when a manual override is not a JSON object
var ErrInvalidManual = errors.New("manual override must be a JSON object")

// ResultPublisher receives every freshly stored result
type ResultPublisher interface {
	Publish(ctx context.Context, city string, result *models.AnalysisResult) ([]*S3UploadResult, error)
}

// HolidayServiceOptions wires the collaborators of a HolidayService.
// Provider, News and Publisher may be nil.
type HolidayServiceOptions struct {
	Cache     ResultCache
	Provider  ModelProvider
	News      *NewsCollector
	Publisher ResultPublisher
	Metrics   *Metrics
	Clock     clockwork.Clock
	Logger    zerolog.Logger
}

// HolidayService reads cached closure status and refreshes it from a model
// or from an operator override.
type HolidayService struct {
	cache      ResultCache
	provider   ModelProvider
	news       *NewsCollector
	publisher  ResultPublisher
	normalizer *Normalizer
	metrics    *Metrics
	clock      clockwork.Clock
	logger     zerolog.Logger
}

// NewHolidayService creates the service
func NewHolidayService(opts HolidayServiceOptions) *HolidayService {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &HolidayService{
		cache:      opts.Cache,
		provider:   opts.Provider,
		news:       opts.News,
		publisher:  opts.Publisher,
		normalizer: NewNormalizer(clock),
		metrics:    metrics,
		clock:      clock,
		logger:     opts.Logger,
	}
}

// Get returns the cached result for a city, or ErrNotFound
func (s *HolidayService) Get(ctx context.Context, city string) (*models.AnalysisResult, error) {
	result, err := s.cache.Get(ctx, city)
	switch {
	case errors.Is(err, ErrNotFound):
		s.metrics.CacheRequests.WithLabelValues("get", "miss").Inc()
		return nil, err
	case err != nil:
		s.metrics.CacheRequests.WithLabelValues("get", "error").Inc()
		return nil, err
	}
	s.metrics.CacheRequests.WithLabelValues("get", "hit").Inc()
	return result, nil
}

// RefreshManual stores an operator override without calling any model
func (s *HolidayService) RefreshManual(ctx context.Context, city string, manual json.RawMessage) (*models.AnalysisResult, error) {
	var decoded any
	if err := json.Unmarshal(manual, &decoded); err != nil {
		s.metrics.RefreshTotal.WithLabelValues("manual", "error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidManual, err)
	}
	obj, ok := decoded.(map[string]any)
	if !ok {
		s.metrics.RefreshTotal.WithLabelValues("manual", "error").Inc()
		return nil, ErrInvalidManual
	}

	if _, ok := asObject(obj["overall"]); !ok {
		s.metrics.NormalizeFallback.WithLabelValues("manual").Inc()
	}

	result := s.normalizer.BuildManualResult(obj)
	if err := s.store(ctx, city, &result); err != nil {
		s.metrics.RefreshTotal.WithLabelValues("manual", "error").Inc()
		return nil, err
	}

	s.metrics.RefreshTotal.WithLabelValues("manual", "success").Inc()
	s.logger.Info().
		Str("city", city).
		Bool("is_off", result.Overall.IsOff).
		Msg("manual holiday status stored")
	return &result, nil
}

// ModelCheck is one model round trip, normalized but not stored
type ModelCheck struct {
	Result     models.AnalysisResult
	Generation *Generation
	News       []NewsDocument
	Duration   time.Duration
}

// CheckModel collects news, prompts the provider and normalizes the reply
// without touching the cache or the publisher.
func (s *HolidayService) CheckModel(ctx context.Context, city string, rc *models.RefreshContext) (*ModelCheck, error) {
	if s.provider == nil {
		return nil, ErrProviderNotConfigured
	}

	docs := s.news.Collect(ctx)

	in := PromptInput{
		City:     city,
		Date:     s.clock.Now(),
		Grounded: s.provider.Grounded(),
		News:     docs,
	}
	if rc != nil {
		in.LastIQ = rc.LastIQ
		in.LastTH = rc.LastTH
	}

	start := s.clock.Now()
	generation, err := s.provider.Generate(ctx, BuildHolidayPrompt(in))
	elapsed := s.clock.Since(start)
	s.metrics.ProviderDuration.WithLabelValues(s.provider.Name()).Observe(elapsed.Seconds())
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("city", city).
			Str("provider", s.provider.Name()).
			Msg("model call failed")
		return nil, err
	}

	result := s.normalizer.NormalizeReply(generation.Text, len(docs)+generation.SourceCount)
	result.Provider = s.provider.Name()
	if result.DebugError != "" {
		s.metrics.NormalizeFallback.WithLabelValues("model").Inc()
		s.logger.Warn().
			Str("city", city).
			Str("provider", result.Provider).
			Str("parse_error", result.DebugError).
			Msg("model reply had no usable JSON, using defaults")
	}

	return &ModelCheck{
		Result:     result,
		Generation: generation,
		News:       docs,
		Duration:   elapsed,
	}, nil
}

// RefreshFromModel asks the configured provider about today's closures and
// stores the normalized answer. Provider failures leave the cache untouched.
func (s *HolidayService) RefreshFromModel(ctx context.Context, city string, rc *models.RefreshContext) (*models.AnalysisResult, error) {
	check, err := s.CheckModel(ctx, city, rc)
	if err != nil {
		s.metrics.RefreshTotal.WithLabelValues("model", "error").Inc()
		return nil, err
	}

	result := check.Result
	if err := s.store(ctx, city, &result); err != nil {
		s.metrics.RefreshTotal.WithLabelValues("model", "error").Inc()
		return nil, err
	}

	s.metrics.RefreshTotal.WithLabelValues("model", "success").Inc()
	s.logger.Info().
		Str("city", city).
		Str("provider", result.Provider).
		Bool("is_off", result.Overall.IsOff).
		Float64("probability", result.Overall.Probability).
		Int("sources", result.Overall.SourcesCount).
		Int("news_docs", len(check.News)).
		Int("tokens", check.Generation.TokensUsed).
		Msg("holiday status refreshed")
	return &result, nil
}

// Provider returns the configured provider, nil when none is set
func (s *HolidayService) Provider() ModelProvider {
	return s.provider
}

// ProviderName reports the configured provider, or "" when none is set
func (s *HolidayService) ProviderName() string {
	if s.provider == nil {
		return ""
	}
	return s.provider.Name()
}

// store writes the cache and then publishes. Publish failures are logged only.
func (s *HolidayService) store(ctx context.Context, city string, result *models.AnalysisResult) error {
	if err := s.cache.Put(ctx, city, result); err != nil {
		s.metrics.CacheRequests.WithLabelValues("put", "error").Inc()
		return fmt.Errorf("failed to cache holiday status: %w", err)
	}
	s.metrics.CacheRequests.WithLabelValues("put", "ok").Inc()

	if s.publisher == nil {
		return nil
	}
	uploads, err := s.publisher.Publish(ctx, city, result)
	if err != nil {
		s.logger.Warn().Err(err).Str("city", city).Msg("failed to publish holiday status snapshot")
		return nil
	}
	for _, upload := range uploads {
		s.logger.Debug().Str("key", upload.Key).Int64("size", upload.Size).Msg("snapshot published")
	}
	return nil
}
