// Package app wires configuration into a ready HolidayService and Handler.
// Every binary in cmd/ builds its dependencies through here.
package app

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"holiday-status-api/internal/api"
	"holiday-status-api/internal/config"
	"holiday-status-api/internal/services"
)

// App holds the wired components
type App struct {
	Config  *config.Config
	Service *services.HolidayService
	Handler *api.Handler
	Metrics *services.Metrics
	Logger  zerolog.Logger

	closers []func() error
}

// Close releases connections opened by Build
func (a *App) Close() error {
	var firstErr error
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Build creates every component the configuration asks for. reg may be nil.
// Missing model keys are logged, not fatal: refreshes then fail with ai-not-configured.
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger, reg prometheus.Registerer) (*App, error) {
	a := &App{
		Config:  cfg,
		Metrics: services.NewMetrics(reg),
		Logger:  logger,
	}

	for _, key := range cfg.LegacyAdminKeysSeen {
		logger.Warn().Str("key", key).Msg("legacy admin secret is ignored, set ADMIN_HOLIDAY_TOKEN instead")
	}
	if cfg.AdminToken == "" {
		logger.Warn().Msg("ADMIN_HOLIDAY_TOKEN is not set, refreshes will be rejected")
	}

	var awsCfg *aws.Config
	loadAWS := func() (aws.Config, error) {
		if awsCfg != nil {
			return *awsCfg, nil
		}
		loaded, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
		}
		awsCfg = &loaded
		return loaded, nil
	}

	cache, err := a.buildCache(ctx, cfg, loadAWS)
	if err != nil {
		return nil, err
	}

	provider, err := BuildProvider(ctx, cfg)
	if err != nil {
		logger.Warn().Err(err).Str("provider", cfg.ModelProvider).Msg("model provider unavailable")
		provider = nil
	}

	reader, err := BuildNewsReader(cfg)
	if err != nil {
		return nil, err
	}
	news := services.NewNewsCollector(reader, cfg.NewsSources, cfg.NewsTimeout, a.Metrics, logger)

	var publisher services.ResultPublisher
	if cfg.S3BucketName != "" {
		loaded, err := loadAWS()
		if err != nil {
			return nil, err
		}
		publisher = services.NewS3Publisher(s3.NewFromConfig(loaded), cfg.S3BucketName, loaded.Region, nil)
	}

	a.Service = services.NewHolidayService(services.HolidayServiceOptions{
		Cache:     cache,
		Provider:  provider,
		News:      news,
		Publisher: publisher,
		Metrics:   a.Metrics,
		Logger:    logger,
	})
	a.Handler = api.NewHandler(a.Service, cfg.AdminToken, cfg.DefaultCity, logger)

	logger.Info().
		Str("cache", cfg.CacheBackend).
		Str("provider", a.Service.ProviderName()).
		Str("model", ProviderModel(provider)).
		Str("news_reader", cfg.NewsReader).
		Int("news_sources", len(cfg.NewsSources)).
		Bool("s3_publish", publisher != nil).
		Msg("holiday service ready")

	return a, nil
}

func (a *App) buildCache(ctx context.Context, cfg *config.Config, loadAWS func() (aws.Config, error)) (services.ResultCache, error) {
	switch cfg.CacheBackend {
	case "redis":
		cache, err := services.NewRedisCache(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, cache.Close)
		return cache, nil
	case "dynamodb":
		loaded, err := loadAWS()
		if err != nil {
			return nil, err
		}
		return services.NewDynamoDBCache(dynamodb.NewFromConfig(loaded), cfg.HolidayStatusTable), nil
	default:
		return services.NewMemoryCache(), nil
	}
}

// ProviderModel reports the model a provider calls, "" when unknown
func ProviderModel(provider services.ModelProvider) string {
	if m, ok := provider.(interface{ GetModel() string }); ok {
		return m.GetModel()
	}
	return ""
}

// BuildProvider creates the configured model provider
func BuildProvider(ctx context.Context, cfg *config.Config) (services.ModelProvider, error) {
	switch cfg.ModelProvider {
	case services.ProviderOpenAI:
		provider, err := services.NewOpenAIProvider(services.OpenAIConfig{
			APIKey:      cfg.OpenAIAPIKey,
			Model:       cfg.OpenAIModel,
			Temperature: cfg.ModelTemperature,
			MaxTokens:   cfg.ModelMaxTokens,
			BaseURL:     cfg.OpenAIBaseURL,
		})
		if err != nil {
			return nil, err
		}
		return provider, nil
	case services.ProviderGemini, services.ProviderGeminiSearch:
		provider, err := services.NewGeminiProvider(ctx, services.GeminiConfig{
			APIKey:      cfg.GeminiAPIKey,
			Model:       cfg.GeminiModel,
			Grounded:    cfg.ModelProvider == services.ProviderGeminiSearch,
			Temperature: cfg.ModelTemperature,
			MaxTokens:   int32(cfg.ModelMaxTokens),
			BaseURL:     cfg.GeminiBaseURL,
		})
		if err != nil {
			return nil, err
		}
		return provider, nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", services.ErrProviderNotConfigured, cfg.ModelProvider)
	}
}

// BuildNewsReader creates the configured news reader, nil for "none"
func BuildNewsReader(cfg *config.Config) (services.NewsReader, error) {
	switch cfg.NewsReader {
	case "direct":
		return services.NewDirectReader(cfg.NewsTimeout), nil
	case "jina":
		return services.NewJinaReader(cfg.JinaAPIKey, cfg.NewsTimeout), nil
	case "firecrawl":
		reader, err := services.NewFirecrawlReader(cfg.FirecrawlAPIKey, "", cfg.NewsTimeout)
		if err != nil {
			return nil, err
		}
		return reader, nil
	default:
		return nil, nil
	}
}
