package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"holiday-status-api/internal/api"
	"holiday-status-api/internal/app"
	"holiday-status-api/internal/config"
	"holiday-status-api/internal/logging"
)

// newServer wires the service behind the chi router with its own metrics registry
func newServer(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*http.Server, *app.App, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a, err := app.Build(ctx, cfg, log, reg)
	if err != nil {
		return nil, nil, err
	}

	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(a.Handler, reg),
		ReadHeaderTimeout: 10 * time.Second,
	}, a, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("error", "console")
		bootLog.Fatal().Err(err).Msg("failed to load configuration")
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, a, err := newServer(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize holiday service")
	}
	defer a.Close()

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	log.Info().Str("addr", cfg.HTTPAddr).Msg("holiday devserver started")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down holiday devserver")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown failed")
	}
}
