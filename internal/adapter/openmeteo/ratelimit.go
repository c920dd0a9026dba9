package openmeteo

import (
	"context"
	"fmt"

	"github.com/couchcryptid/storm-data-runoff/internal/domain"
	"golang.org/x/time/rate"
)

// RateLimitedSource wraps a PrecipitationSource with a token-bucket limiter
// shared by forecast and historical calls. Open-Meteo's free tier is limited
// per client IP.
type RateLimitedSource struct {
	inner   domain.PrecipitationSource
	limiter *rate.Limiter
}

// NewRateLimitedSource allows rps requests per second with the given burst.
// rps can be fractional for less than one request per second.
func NewRateLimitedSource(inner domain.PrecipitationSource, rps float64, burst int) *RateLimitedSource {
	return &RateLimitedSource{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (r *RateLimitedSource) Forecast(ctx context.Context, geo domain.Geo, dr domain.DateRange) (domain.PrecipitationSample, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return domain.PrecipitationSample{}, fmt.Errorf("rate limit wait canceled: %w", err)
	}
	return r.inner.Forecast(ctx, geo, dr)
}

func (r *RateLimitedSource) Historical(ctx context.Context, geo domain.Geo, dr domain.DateRange) (domain.PrecipitationSample, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return domain.PrecipitationSample{}, fmt.Errorf("rate limit wait canceled: %w", err)
	}
	return r.inner.Historical(ctx, geo, dr)
}

var (
	_ domain.PrecipitationSource = (*Client)(nil)
	_ domain.PrecipitationSource = (*CachedSource)(nil)
	_ domain.PrecipitationSource = (*RateLimitedSource)(nil)
)
