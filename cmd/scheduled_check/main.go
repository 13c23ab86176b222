package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	lambdaclient "github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/rs/zerolog"

	"holiday-status-api/internal/config"
	"holiday-status-api/internal/logging"
	"holiday-status-api/internal/services"
)

// CheckResponse summarizes one scheduled run
type CheckResponse struct {
	Refreshed []string          `json:"refreshed"`
	Failed    map[string]string `json:"failed,omitempty"`
}

var (
	trigger *services.RefreshTrigger
	cities  []string
	logger  zerolog.Logger
)

func setup() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("error", "json")
		bootLog.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger = logging.New(cfg.LogLevel, cfg.LogFormat)

	if cfg.HolidayAPIFunctionName == "" {
		logger.Fatal().Msg("HOLIDAY_API_FUNCTION_NAME environment variable not set")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load AWS config")
	}

	trigger = services.NewRefreshTrigger(lambdaclient.NewFromConfig(awsCfg), cfg.HolidayAPIFunctionName, cfg.AdminToken)
	cities = cfg.ScheduledCities
}

// handler refreshes every scheduled city in turn. One failing city does not stop the rest.
func handler(ctx context.Context, event events.CloudWatchEvent) (CheckResponse, error) {
	logger.Info().Str("event_id", event.ID).Strs("cities", cities).Msg("scheduled holiday check started")

	resp := CheckResponse{Failed: make(map[string]string)}
	for _, city := range cities {
		out, err := trigger.Trigger(ctx, city)
		if err != nil {
			resp.Failed[city] = err.Error()
			logger.Error().Err(err).Str("city", city).Msg("refresh invoke failed")
			continue
		}
		if out.StatusCode != http.StatusOK {
			resp.Failed[city] = fmt.Sprintf("status %d: %s", out.StatusCode, out.Body)
			logger.Error().Int("status", out.StatusCode).Str("city", city).Str("body", out.Body).Msg("refresh rejected")
			continue
		}
		resp.Refreshed = append(resp.Refreshed, city)
	}

	if len(resp.Refreshed) == 0 && len(resp.Failed) > 0 {
		return resp, fmt.Errorf("all %d scheduled refreshes failed", len(resp.Failed))
	}
	return resp, nil
}

func main() {
	setup()
	lambda.Start(handler)
}
