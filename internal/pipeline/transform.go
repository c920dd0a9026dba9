package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/couchcryptid/storm-data-runoff/internal/domain"
	"github.com/couchcryptid/storm-data-runoff/internal/observability"
)

// RunoffTransformer turns site requests into runoff estimates. Precipitation
// missing from a request is fetched from the configured source.
type RunoffTransformer struct {
	precipitation domain.PrecipitationSource
	locator       domain.Locator
	forecastDays  int
	basis         string
	logger        *slog.Logger
	metrics       *observability.Metrics
}

// NewTransformer creates a RunoffTransformer. A nil precipitation source
// limits the transformer to requests that carry their own sample; a nil
// locator requires requests to carry coordinates.
func NewTransformer(precipitation domain.PrecipitationSource, locator domain.Locator, forecastDays int, basis string, logger *slog.Logger, metrics *observability.Metrics) *RunoffTransformer {
	return &RunoffTransformer{
		precipitation: precipitation,
		locator:       locator,
		forecastDays:  forecastDays,
		basis:         basis,
		logger:        logger,
		metrics:       metrics,
	}
}

// Estimate resolves precipitation for a normalized request and computes its
// runoff estimate.
func (t *RunoffTransformer) Estimate(ctx context.Context, req domain.SiteRequest) (domain.SiteEstimate, error) {
	sample, err := domain.ResolvePrecipitation(ctx, &req, t.precipitation, t.locator, t.forecastDays, t.logger)
	if err != nil {
		t.metrics.Estimates.WithLabelValues("error").Inc()
		return domain.SiteEstimate{}, err
	}

	est, err := domain.BuildSiteEstimate(req, sample, t.basis)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCurveNumber) {
			t.metrics.InvalidCurveNumber.Inc()
		}
		t.metrics.Estimates.WithLabelValues("error").Inc()
		return domain.SiteEstimate{}, err
	}

	t.metrics.Estimates.WithLabelValues(est.CurveNumberSource).Inc()
	t.metrics.CurveNumber.Observe(est.Runoff.CurveNumber)
	t.metrics.RunoffDepth.Observe(est.Runoff.RunoffMM)
	t.logger.Debug("runoff estimated",
		"site_id", est.SiteID,
		"mode", est.Mode,
		"curve_number", est.Runoff.CurveNumber,
		"curve_number_source", est.CurveNumberSource,
		"precipitation_mm", est.Runoff.PrecipitationMM,
		"runoff_mm", est.Runoff.RunoffMM,
	)
	return est, nil
}

// Transform parses a raw site request, estimates it, and serializes the result.
func (t *RunoffTransformer) Transform(ctx context.Context, raw domain.RawEvent) (domain.OutputEvent, error) {
	req, err := domain.ParseSiteRequest(raw)
	if err != nil {
		return domain.OutputEvent{}, err
	}
	est, err := t.Estimate(ctx, req)
	if err != nil {
		return domain.OutputEvent{}, err
	}
	return domain.SerializeSiteEstimate(est)
}
