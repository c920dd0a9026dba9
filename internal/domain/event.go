package domain

import (
	"context"
	"time"
)

// RawEvent represents an unprocessed message from the source topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// OutputEvent is the serialized form destined for the sink topic.
type OutputEvent struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// Geo represents a WGS-84 latitude/longitude coordinate pair.
type Geo struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// SiteFactors are the terrain, soil, and vegetation readings for one site.
// A nil pointer means the provider had no reading; a pointer to zero is a
// measured zero.
type SiteFactors struct {
	SlopeDegrees    float64  `json:"slope_degrees"`
	SoilTextureCode *int     `json:"soil_texture_code,omitempty"` // USDA texture class ordinal
	NDVI            *float64 `json:"ndvi,omitempty"`
}

// PrecipitationSample is the rainfall observed or forecast over Range.
type PrecipitationSample struct {
	TotalMM float64   `json:"total_mm"`
	MeanMM  float64   `json:"mean_mm"`
	Range   DateRange `json:"range"`
	Source  string    `json:"source,omitempty"` // "request", "forecast", "historical"
}

// RunoffEstimate is the SCS result for a single precipitation depth and curve number.
type RunoffEstimate struct {
	PrecipitationMM         float64 `json:"precipitation_mm"`
	CurveNumber             float64 `json:"curve_number"`
	PotentialMaxRetentionMM float64 `json:"potential_max_retention_mm"`
	InitialAbstractionMM    float64 `json:"initial_abstraction_mm"`
	RunoffMM                float64 `json:"runoff_mm"`
}

// Comparison holds predicted versus historical runoff. AccuracyPct is nil
// when the historical value is zero.
type Comparison struct {
	PredictedMM  float64  `json:"predicted_mm"`
	HistoricalMM float64  `json:"historical_mm"`
	DifferenceMM float64  `json:"difference_mm"`
	AccuracyPct  *float64 `json:"accuracy_pct,omitempty"`
}

// SiteEstimate is the domain-rich record produced for each site request.
type SiteEstimate struct {
	ID                string              `json:"id"`
	SiteID            string              `json:"site_id"`
	Mode              string              `json:"mode"`
	Geo               *Geo                `json:"geo,omitempty"`
	Factors           SiteFactors         `json:"factors"`
	SoilClass         string              `json:"soil_class,omitempty"`
	SlopeClass        string              `json:"slope_class,omitempty"`
	CurveNumberSource string              `json:"curve_number_source"`
	Precipitation     PrecipitationSample `json:"precipitation"`
	Basis             string              `json:"precipitation_basis"`
	Runoff            RunoffEstimate      `json:"runoff"`
	Comparison        *Comparison         `json:"comparison,omitempty"`
	ProcessedAt       time.Time           `json:"processed_at"`
}
