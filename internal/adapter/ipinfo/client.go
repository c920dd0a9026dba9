package ipinfo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/storm-data-runoff/internal/domain"
)

const defaultBaseURL = "https://ipinfo.io"

// Client implements domain.Locator using the ipinfo.io IP geolocation API.
// It locates the host making the request, not an arbitrary address.
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates an ipinfo.io client. token may be empty for the
// unauthenticated tier.
func NewClient(token string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		token: token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: defaultBaseURL,
		logger:  logger,
	}
}

// Locate returns the approximate coordinates of the calling host.
func (c *Client) Locate(ctx context.Context) (domain.Geo, error) {
	u := c.baseURL + "/json"
	if c.token != "" {
		u += "?" + url.Values{"token": {c.token}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.Geo{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Geo{}, fmt.Errorf("%w: ipinfo request: %w", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("ipinfo API error: status %d: %s", resp.StatusCode, body)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return domain.Geo{}, fmt.Errorf("%w: %w", domain.ErrProviderUnavailable, err)
		}
		return domain.Geo{}, err
	}

	var info response
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return domain.Geo{}, fmt.Errorf("decode response: %w", err)
	}

	geo, err := parseLoc(info.Loc)
	if err != nil {
		return domain.Geo{}, err
	}
	c.logger.Debug("located host", "city", info.City, "region", info.Region, "lat", geo.Lat, "lon", geo.Lon)
	return geo, nil
}

// parseLoc parses ipinfo's "lat,lon" string.
func parseLoc(loc string) (domain.Geo, error) {
	latStr, lonStr, ok := strings.Cut(loc, ",")
	if !ok {
		return domain.Geo{}, fmt.Errorf("malformed loc %q", loc)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil || lat < -90 || lat > 90 {
		return domain.Geo{}, fmt.Errorf("malformed loc %q: bad latitude", loc)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
	if err != nil || lon < -180 || lon > 180 {
		return domain.Geo{}, fmt.Errorf("malformed loc %q: bad longitude", loc)
	}
	return domain.Geo{Lat: lat, Lon: lon}, nil
}

type response struct {
	IP     string `json:"ip"`
	City   string `json:"city"`
	Region string `json:"region"`
	Loc    string `json:"loc"`
}

var _ domain.Locator = (*Client)(nil)
