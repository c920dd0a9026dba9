package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// Estimation modes.
const (
	ModeForecast   = "forecast"
	ModeHistorical = "historical"
)

// Precipitation bases: which statistic of the sample feeds the calculator.
const (
	BasisTotal = "total"
	BasisMean  = "mean"
)

const dateLayout = "2006-01-02"

var (
	// ErrInvalidRequest is returned when a site request fails validation.
	ErrInvalidRequest = errors.New("invalid site request")

	// ErrInvalidDateRange is returned when a range ends before it starts.
	ErrInvalidDateRange = errors.New("invalid date range")
)

// DateRange is an inclusive range of UTC calendar days.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// NewDateRange parses YYYY-MM-DD bounds.
func NewDateRange(start, end string) (DateRange, error) {
	s, err := time.Parse(dateLayout, start)
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: start %q: %w", ErrInvalidDateRange, start, err)
	}
	e, err := time.Parse(dateLayout, end)
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: end %q: %w", ErrInvalidDateRange, end, err)
	}
	r := DateRange{Start: s, End: e}
	return r, r.Validate()
}

// IsZero reports whether neither bound is set.
func (r DateRange) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

// Validate checks that both bounds are set and ordered.
func (r DateRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return fmt.Errorf("%w: start and end are required", ErrInvalidDateRange)
	}
	if r.End.Before(r.Start) {
		return fmt.Errorf("%w: end %s before start %s", ErrInvalidDateRange, r.End.Format(dateLayout), r.Start.Format(dateLayout))
	}
	return nil
}

// StartDate formats the start bound as YYYY-MM-DD.
func (r DateRange) StartDate() string { return formatDate(r.Start) }

// EndDate formats the end bound as YYYY-MM-DD.
func (r DateRange) EndDate() string { return formatDate(r.End) }

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

type dateRangeJSON struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func (r DateRange) MarshalJSON() ([]byte, error) {
	return json.Marshal(dateRangeJSON{Start: r.StartDate(), End: r.EndDate()})
}

func (r *DateRange) UnmarshalJSON(data []byte) error {
	var raw dateRangeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Start == "" && raw.End == "" {
		*r = DateRange{}
		return nil
	}
	parsed, err := NewDateRange(raw.Start, raw.End)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ForecastWindow returns the range from today (UTC) through today plus days,
// so it covers days+1 calendar days.
func ForecastWindow(days int) DateRange {
	today := clock.Now().UTC().Truncate(24 * time.Hour)
	return DateRange{Start: today, End: today.AddDate(0, 0, days)}
}

// SiteRequest is the message consumed from the source topic (or posted to
// the HTTP API) describing one site to estimate.
type SiteRequest struct {
	SiteID             string               `json:"site_id"`
	Geo                *Geo                 `json:"geo,omitempty"`
	SlopeDegrees       float64              `json:"slope_degrees"`
	SoilTextureCode    *int                 `json:"soil_texture_code,omitempty"`
	NDVI               *float64             `json:"ndvi,omitempty"`
	Mode               string               `json:"mode,omitempty"`
	Range              *DateRange           `json:"range,omitempty"`
	Precipitation      *PrecipitationSample `json:"precipitation,omitempty"`
	CurveNumber        *float64             `json:"curve_number,omitempty"`
	HistoricalRunoffMM *float64             `json:"historical_runoff_mm,omitempty"`
	Basis              string               `json:"precipitation_basis,omitempty"`
}

// Factors returns the site factors carried by the request.
func (r SiteRequest) Factors() SiteFactors {
	return SiteFactors{
		SlopeDegrees:    r.SlopeDegrees,
		SoilTextureCode: r.SoilTextureCode,
		NDVI:            r.NDVI,
	}
}

// ParseSiteRequest decodes and validates a raw event's value.
func ParseSiteRequest(raw RawEvent) (SiteRequest, error) {
	var req SiteRequest
	if err := json.Unmarshal(raw.Value, &req); err != nil {
		return SiteRequest{}, fmt.Errorf("parse site request: %w", err)
	}
	if req.SiteID == "" && len(raw.Key) > 0 {
		req.SiteID = string(raw.Key)
	}
	if err := req.Normalize(); err != nil {
		return SiteRequest{}, err
	}
	return req, nil
}

// Normalize fills defaults and validates the request in place.
func (r *SiteRequest) Normalize() error {
	switch r.Mode {
	case "":
		r.Mode = ModeForecast
	case ModeForecast, ModeHistorical:
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, r.Mode)
	}

	switch r.Basis {
	case "", BasisTotal, BasisMean:
	default:
		return fmt.Errorf("%w: unknown precipitation basis %q", ErrInvalidRequest, r.Basis)
	}

	if math.IsNaN(r.SlopeDegrees) || r.SlopeDegrees < 0 {
		return fmt.Errorf("%w: slope_degrees must be >= 0", ErrInvalidRequest)
	}

	if r.Range != nil {
		if err := r.Range.Validate(); err != nil {
			return err
		}
	}

	if p := r.Precipitation; p != nil {
		if err := validatePrecipitation(p.TotalMM); err != nil {
			return err
		}
		if err := validatePrecipitation(p.MeanMM); err != nil {
			return err
		}
		if p.Range.IsZero() && r.Range != nil {
			p.Range = *r.Range
		}
	} else if r.Mode == ModeHistorical && r.Range == nil {
		return fmt.Errorf("%w: historical mode needs a range or a precipitation sample", ErrInvalidRequest)
	}

	if h := r.HistoricalRunoffMM; h != nil && (math.IsNaN(*h) || *h < 0) {
		return fmt.Errorf("%w: historical_runoff_mm must be >= 0", ErrInvalidRequest)
	}

	return nil
}

// PrecipitationDepth selects the depth fed to the calculator.
func PrecipitationDepth(s PrecipitationSample, basis string) float64 {
	if basis == BasisMean {
		return s.MeanMM
	}
	return s.TotalMM
}
