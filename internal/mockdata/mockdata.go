// Package mockdata loads the site request fixtures in data/mock and checks
// estimates against their expected values.
package mockdata

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/couchcryptid/storm-data-runoff/internal/domain"
)

// DefaultPath is the fixture location relative to the repository root.
const DefaultPath = "data/mock/site_requests.json"

// tolerance absorbs float noise in already-rounded report values.
const tolerance = 0.005

// Case is one fixture request and its expected outcome.
type Case struct {
	Name     string          `json:"name"`
	Request  json.RawMessage `json:"request"`
	Expected Expected        `json:"expected"`
}

// Expected holds the reported values a case must produce. When Error is set
// the estimate must fail with an error containing it.
type Expected struct {
	Error                   string   `json:"error,omitempty"`
	CurveNumber             float64  `json:"curve_number"`
	CurveNumberSource       string   `json:"curve_number_source"`
	SoilClass               string   `json:"soil_class,omitempty"`
	SlopeClass              string   `json:"slope_class,omitempty"`
	PotentialMaxRetentionMM float64  `json:"potential_max_retention_mm"`
	InitialAbstractionMM    float64  `json:"initial_abstraction_mm"`
	RunoffMM                float64  `json:"runoff_mm"`
	DifferenceMM            *float64 `json:"difference_mm,omitempty"`
	AccuracyPct             *float64 `json:"accuracy_pct,omitempty"`
}

// Load reads fixture cases from path.
func Load(path string) ([]Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}
	var cases []Case
	if err := json.Unmarshal(data, &cases); err != nil {
		return nil, fmt.Errorf("decode fixtures %s: %w", path, err)
	}
	return cases, nil
}

// RawEvent wraps the case request as a source message keyed by case name.
func (c Case) RawEvent() domain.RawEvent {
	return domain.RawEvent{Key: []byte(c.Name), Value: c.Request}
}

// SiteRequest parses and normalizes the case request.
func (c Case) SiteRequest() (domain.SiteRequest, error) {
	return domain.ParseSiteRequest(c.RawEvent())
}

// Check compares an estimate outcome against the expectation and returns
// one message per mismatch.
func (e Expected) Check(est domain.SiteEstimate, err error) []string {
	if e.Error != "" {
		switch {
		case err == nil:
			return []string{fmt.Sprintf("expected error %q, got none", e.Error)}
		case !strings.Contains(err.Error(), e.Error):
			return []string{fmt.Sprintf("expected error %q, got %q", e.Error, err)}
		}
		return nil
	}
	if err != nil {
		return []string{fmt.Sprintf("unexpected error: %v", err)}
	}

	var problems []string
	checkFloat := func(field string, want, got float64) {
		if math.Abs(want-got) > tolerance {
			problems = append(problems, fmt.Sprintf("%s: want %.2f, got %.2f", field, want, got))
		}
	}
	checkString := func(field, want, got string) {
		if want != got {
			problems = append(problems, fmt.Sprintf("%s: want %q, got %q", field, want, got))
		}
	}

	checkFloat("curve_number", e.CurveNumber, est.Runoff.CurveNumber)
	checkString("curve_number_source", e.CurveNumberSource, est.CurveNumberSource)
	checkString("soil_class", e.SoilClass, est.SoilClass)
	checkString("slope_class", e.SlopeClass, est.SlopeClass)
	checkFloat("potential_max_retention_mm", e.PotentialMaxRetentionMM, est.Runoff.PotentialMaxRetentionMM)
	checkFloat("initial_abstraction_mm", e.InitialAbstractionMM, est.Runoff.InitialAbstractionMM)
	checkFloat("runoff_mm", e.RunoffMM, est.Runoff.RunoffMM)

	if e.DifferenceMM != nil || e.AccuracyPct != nil {
		if est.Comparison == nil {
			return append(problems, "comparison: missing")
		}
		if e.DifferenceMM != nil {
			checkFloat("difference_mm", *e.DifferenceMM, est.Comparison.DifferenceMM)
		}
		if e.AccuracyPct != nil {
			if est.Comparison.AccuracyPct == nil {
				problems = append(problems, "accuracy_pct: missing")
			} else {
				checkFloat("accuracy_pct", *e.AccuracyPct, *est.Comparison.AccuracyPct)
			}
		}
	}
	return problems
}
