package openmeteo

import (
	"log/slog"

	"github.com/couchcryptid/storm-data-runoff/internal/config"
	"github.com/couchcryptid/storm-data-runoff/internal/observability"
	"github.com/jonboulle/clockwork"
)

// NewSource builds the configured precipitation source: the API client behind
// a rate limiter, behind an LRU cache so cache hits spend no tokens.
// Forecast entries expire after OpenMeteoForecastTTL.
func NewSource(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *CachedSource {
	client := NewClient(cfg.OpenMeteoForecastURL, cfg.OpenMeteoArchiveURL, cfg.OpenMeteoTimeout, metrics, logger)
	limited := NewRateLimitedSource(client, cfg.OpenMeteoRateLimit, cfg.OpenMeteoRateBurst)
	return NewCachedSource(limited, cfg.OpenMeteoCacheSize, cfg.OpenMeteoForecastTTL, clockwork.NewRealClock(), metrics)
}
