package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"

	"holiday-status-api/internal/app"
	"holiday-status-api/internal/config"
	"holiday-status-api/internal/logging"
)

// newApp loads the environment and wires the service for one cold start
func newApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	return app.Build(ctx, cfg, logger, nil)
}

func main() {
	// Build once per cold start; the memory cache lives as long as the container
	a, err := newApp(context.Background())
	if err != nil {
		bootLog := logging.New("error", "json")
		bootLog.Fatal().Err(err).Msg("failed to initialize holiday service")
	}
	defer a.Close()

	lambda.Start(a.Handler.Handle)
}
