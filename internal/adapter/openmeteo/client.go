package openmeteo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/storm-data-runoff/internal/domain"
	"github.com/couchcryptid/storm-data-runoff/internal/observability"
)

// ErrNoData is returned when the API answers with no precipitation values
// for the requested range.
var ErrNoData = errors.New("open-meteo returned no precipitation values")

// ErrIncompleteData is returned when some values in the requested range are
// missing, as with archive days that have not been published yet. A partial
// total would understate rainfall.
var ErrIncompleteData = errors.New("open-meteo returned incomplete precipitation values")

const (
	kindForecast   = "forecast"
	kindHistorical = "historical"
)

// Client implements domain.PrecipitationSource using the Open-Meteo forecast
// and historical archive APIs.
type Client struct {
	httpClient  *http.Client
	forecastURL string
	archiveURL  string
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// NewClient creates an Open-Meteo client.
func NewClient(forecastURL, archiveURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		forecastURL: forecastURL,
		archiveURL:  archiveURL,
		metrics:     metrics,
		logger:      logger,
	}
}

// Forecast sums hourly forecast precipitation over the range.
func (c *Client) Forecast(ctx context.Context, geo domain.Geo, r domain.DateRange) (domain.PrecipitationSample, error) {
	params := pointParams(geo, r)
	params.Set("hourly", "precipitation")

	var body response
	if err := c.doRequest(ctx, c.forecastURL+"?"+params.Encode(), kindForecast, &body); err != nil {
		return domain.PrecipitationSample{}, err
	}
	return c.summarize(body.Hourly.Precipitation, kindForecast)
}

// Historical sums daily reanalysis precipitation over the range.
func (c *Client) Historical(ctx context.Context, geo domain.Geo, r domain.DateRange) (domain.PrecipitationSample, error) {
	params := pointParams(geo, r)
	params.Set("daily", "precipitation_sum")

	var body response
	if err := c.doRequest(ctx, c.archiveURL+"?"+params.Encode(), kindHistorical, &body); err != nil {
		return domain.PrecipitationSample{}, err
	}
	return c.summarize(body.Daily.PrecipitationSum, kindHistorical)
}

func pointParams(geo domain.Geo, r domain.DateRange) url.Values {
	return url.Values{
		"latitude":   {strconv.FormatFloat(geo.Lat, 'f', 4, 64)},
		"longitude":  {strconv.FormatFloat(geo.Lon, 'f', 4, 64)},
		"start_date": {r.StartDate()},
		"end_date":   {r.EndDate()},
		"timezone":   {"UTC"},
	}
}

func (c *Client) doRequest(ctx context.Context, fullURL, kind string, out *response) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.PrecipitationAPIDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.PrecipitationRequests.WithLabelValues(kind, "error").Inc()
		return fmt.Errorf("%w: %s precipitation request: %w", domain.ErrProviderUnavailable, kind, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.metrics.PrecipitationRequests.WithLabelValues(kind, "error").Inc()
		body, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("open-meteo API error: status %d: %s", resp.StatusCode, body)
		if retryableStatus(resp.StatusCode) {
			return fmt.Errorf("%w: %w", domain.ErrProviderUnavailable, err)
		}
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.metrics.PrecipitationRequests.WithLabelValues(kind, "error").Inc()
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// summarize totals a series. Every slot in the range must carry a value:
// an all-null series is ErrNoData and a partly null one is ErrIncompleteData.
func (c *Client) summarize(values []*float64, kind string) (domain.PrecipitationSample, error) {
	var total float64
	var n int
	for _, v := range values {
		if v == nil {
			continue
		}
		total += *v
		n++
	}
	switch {
	case n == 0:
		c.metrics.PrecipitationRequests.WithLabelValues(kind, "empty").Inc()
		return domain.PrecipitationSample{}, ErrNoData
	case n < len(values):
		c.metrics.PrecipitationRequests.WithLabelValues(kind, "incomplete").Inc()
		return domain.PrecipitationSample{}, fmt.Errorf("%w: %d of %d values reported", ErrIncompleteData, n, len(values))
	}
	c.metrics.PrecipitationRequests.WithLabelValues(kind, "success").Inc()
	c.logger.Debug("precipitation fetched", "kind", kind, "values", n, "total_mm", total)
	return domain.PrecipitationSample{
		TotalMM: total,
		MeanMM:  total / float64(n),
	}, nil
}

// retryableStatus reports whether a response status is worth retrying.
func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// Open-Meteo API response types.

type response struct {
	Hourly series `json:"hourly"`
	Daily  series `json:"daily"`
}

type series struct {
	Time             []string   `json:"time"`
	Precipitation    []*float64 `json:"precipitation"`
	PrecipitationSum []*float64 `json:"precipitation_sum"`
}
