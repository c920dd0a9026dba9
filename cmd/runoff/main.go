package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/storm-data-runoff/internal/adapter/httpadapter"
	"github.com/couchcryptid/storm-data-runoff/internal/adapter/ipinfo"
	kafkaadapter "github.com/couchcryptid/storm-data-runoff/internal/adapter/kafka"
	"github.com/couchcryptid/storm-data-runoff/internal/adapter/openmeteo"
	"github.com/couchcryptid/storm-data-runoff/internal/config"
	"github.com/couchcryptid/storm-data-runoff/internal/domain"
	"github.com/couchcryptid/storm-data-runoff/internal/observability"
	"github.com/couchcryptid/storm-data-runoff/internal/pipeline"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	// Precipitation fetching (feature-flagged via OPENMETEO_ENABLED). When
	// disabled, requests must carry their own precipitation sample.
	var precipitation domain.PrecipitationSource
	if cfg.OpenMeteoEnabled {
		precipitation = openmeteo.NewSource(cfg, metrics, logger)
		metrics.PrecipitationEnabled.Set(1)
		logger.Info("open-meteo precipitation enabled",
			"cache_size", cfg.OpenMeteoCacheSize,
			"rate_limit", cfg.OpenMeteoRateLimit,
			"timeout", cfg.OpenMeteoTimeout,
		)
	} else {
		logger.Info("open-meteo precipitation disabled")
	}

	var locator domain.Locator
	if cfg.IPInfoEnabled {
		locator = ipinfo.NewClient(cfg.IPInfoToken, cfg.IPInfoTimeout, logger)
		logger.Info("ipinfo location lookup enabled")
	}

	reader := kafkaadapter.NewReader(cfg, logger)
	writer := kafkaadapter.NewWriter(cfg, logger)
	transformer := pipeline.NewTransformer(precipitation, locator, cfg.ForecastDays, cfg.PrecipitationBasis, logger, metrics)

	p := pipeline.New(reader, transformer, writer, logger, metrics, cfg.BatchSize).
		WithBackoff(cfg.BackoffInitial, cfg.BackoffMax)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, transformer, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}

	logger.Info("shutdown complete")
}
