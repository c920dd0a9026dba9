package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrMissingLocation is returned when precipitation must be fetched for a
// request that has no coordinates and no locator is available.
var ErrMissingLocation = errors.New("site location unavailable")

// ErrNoPrecipitationSource is returned when precipitation must be fetched but
// fetching is disabled.
var ErrNoPrecipitationSource = errors.New("no precipitation source configured")

// ErrProviderUnavailable marks an upstream failure unrelated to the request
// itself: a network error, timeout, throttling, or 5xx response. The same
// request may succeed later.
var ErrProviderUnavailable = errors.New("upstream provider unavailable")

// PrecipitationSource supplies rainfall totals for a point over a date range.
type PrecipitationSource interface {
	// Forecast returns predicted precipitation.
	Forecast(ctx context.Context, geo Geo, r DateRange) (PrecipitationSample, error)

	// Historical returns observed (reanalysis) precipitation.
	Historical(ctx context.Context, geo Geo, r DateRange) (PrecipitationSample, error)
}

// Locator resolves the caller's approximate position.
type Locator interface {
	Locate(ctx context.Context) (Geo, error)
}

// ResolveGeo returns the request's coordinates or, when absent, asks the
// locator. Located coordinates are written back to the request.
func ResolveGeo(ctx context.Context, req *SiteRequest, locator Locator, logger *slog.Logger) (Geo, error) {
	if req.Geo != nil {
		return *req.Geo, nil
	}
	if locator == nil {
		return Geo{}, ErrMissingLocation
	}
	geo, err := locator.Locate(ctx)
	if err != nil {
		logger.Warn("site location lookup failed", "site_id", req.SiteID, "error", err)
		return Geo{}, fmt.Errorf("%w: %w", ErrMissingLocation, err)
	}
	req.Geo = &geo
	return geo, nil
}

// ResolvePrecipitation returns the request's own sample or fetches one for
// the request's mode and range. Forecast requests without a range use the
// default window of forecastDays. A failed fetch is an error; it never
// degrades to zero rainfall. Errors keep their cause so callers can tell
// ErrProviderUnavailable apart from permanent failures.
func ResolvePrecipitation(ctx context.Context, req *SiteRequest, source PrecipitationSource, locator Locator, forecastDays int, logger *slog.Logger) (PrecipitationSample, error) {
	if req.Precipitation != nil {
		sample := *req.Precipitation
		sample.Source = "request"
		return sample, nil
	}
	if source == nil {
		return PrecipitationSample{}, ErrNoPrecipitationSource
	}

	geo, err := ResolveGeo(ctx, req, locator, logger)
	if err != nil {
		return PrecipitationSample{}, err
	}

	var r DateRange
	if req.Range != nil {
		r = *req.Range
	} else {
		r = ForecastWindow(forecastDays)
	}

	var sample PrecipitationSample
	switch req.Mode {
	case ModeHistorical:
		sample, err = source.Historical(ctx, geo, r)
	default:
		sample, err = source.Forecast(ctx, geo, r)
	}
	if err != nil {
		logger.Warn("precipitation fetch failed",
			"site_id", req.SiteID,
			"mode", req.Mode,
			"lat", geo.Lat,
			"lon", geo.Lon,
			"error", err,
		)
		return PrecipitationSample{}, fmt.Errorf("fetch %s precipitation: %w", req.Mode, err)
	}
	sample.Range = r
	sample.Source = req.Mode
	return sample, nil
}
