package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// LegacyAdminTokenKeys are older secret names that are no longer read
var LegacyAdminTokenKeys = []string{"ADMIN_PASSWORD", "ADMIN_TOKEN"}

// Config holds every setting read from the environment
type Config struct {
	// Admin
	AdminToken          string
	LegacyAdminKeysSeen []string

	// Model
	ModelProvider    string  `validate:"oneof=gemini-search gemini openai"`
	GeminiAPIKey     string
	GeminiModel      string  `validate:"required"`
	GeminiBaseURL    string  `validate:"omitempty,url"`
	OpenAIAPIKey     string
	OpenAIModel      string  `validate:"required"`
	OpenAIBaseURL    string  `validate:"omitempty,url"`
	ModelTemperature float32 `validate:"gte=0,lte=2"`
	ModelMaxTokens   int     `validate:"gt=0"`

	// News context
	NewsReader      string   `validate:"oneof=none direct jina firecrawl"`
	NewsSources     []string `validate:"dive,url"`
	NewsTimeout     time.Duration
	JinaAPIKey      string
	FirecrawlAPIKey string `validate:"required_if=NewsReader firecrawl"`

	// Storage
	CacheBackend       string `validate:"oneof=memory redis dynamodb"`
	RedisURL           string `validate:"required_if=CacheBackend redis"`
	HolidayStatusTable string `validate:"required_if=CacheBackend dynamodb"`
	S3BucketName       string

	// Serving
	DefaultCity string `validate:"required,max=64"`
	HTTPAddr    string `validate:"required"`

	// Scheduled check
	HolidayAPIFunctionName string
	ScheduledCities        []string

	LogLevel  string
	LogFormat string `validate:"oneof=json console"`
}

var validate = validator.New()

// Load reads .env when present, applies defaults and validates the result.
// Missing API keys and admin token are allowed here and fail at request time.
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.AdminToken = getEnv("ADMIN_HOLIDAY_TOKEN", "")
	for _, key := range LegacyAdminTokenKeys {
		if getEnv(key, "") != "" {
			cfg.LegacyAdminKeysSeen = append(cfg.LegacyAdminKeysSeen, key)
		}
	}

	cfg.ModelProvider = strings.ToLower(getEnv("MODEL_PROVIDER", "gemini-search"))
	cfg.GeminiAPIKey = getEnv("GEMINI_API_KEY", "")
	cfg.GeminiModel = getEnv("GEMINI_MODEL", "gemini-2.5-flash-lite")
	cfg.GeminiBaseURL = getEnv("GEMINI_BASE_URL", "")
	cfg.OpenAIAPIKey = getEnv("OPENAI_API_KEY", "")
	cfg.OpenAIModel = getEnv("OPENAI_MODEL", "gpt-4o-mini")
	cfg.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", "")
	cfg.ModelTemperature = float32(getFloatEnv("MODEL_TEMPERATURE", 0.3))
	cfg.ModelMaxTokens = getIntEnv("MODEL_MAX_TOKENS", 1024)

	cfg.NewsReader = strings.ToLower(getEnv("NEWS_READER", "none"))
	cfg.NewsSources = getListEnv("NEWS_SOURCES", nil)
	cfg.NewsTimeout = getDuration("NEWS_TIMEOUT", 20*time.Second)
	cfg.JinaAPIKey = getEnv("JINA_API_KEY", "")
	cfg.FirecrawlAPIKey = getEnv("FIRECRAWL_API_KEY", "")

	cfg.CacheBackend = strings.ToLower(getEnv("CACHE_BACKEND", "memory"))
	cfg.RedisURL = getEnv("REDIS_URL", "redis://localhost:6379/0")
	cfg.HolidayStatusTable = getEnv("HOLIDAY_STATUS_TABLE", "")
	cfg.S3BucketName = getEnv("S3_BUCKET_NAME", "")

	cfg.DefaultCity = getEnv("DEFAULT_CITY", "Tehran")
	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8080")

	cfg.HolidayAPIFunctionName = getEnv("HOLIDAY_API_FUNCTION_NAME", "")
	cfg.ScheduledCities = getListEnv("SCHEDULED_CITIES", []string{"Tehran"})

	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", "json"))

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func getIntEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getFloatEnv(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

// getListEnv splits a comma-separated value, dropping empty entries
func getListEnv(key string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
