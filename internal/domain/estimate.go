package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// BuildSiteEstimate runs the adjuster and calculator for a normalized request
// and a resolved precipitation sample. A curve number override on the request
// bypasses the adjuster but is still validated by the calculator. basis is
// used when the request does not name one.
func BuildSiteEstimate(req SiteRequest, sample PrecipitationSample, basis string) (SiteEstimate, error) {
	if req.Basis != "" {
		basis = req.Basis
	}
	if basis != BasisMean {
		basis = BasisTotal
	}

	factors := req.Factors()
	cn, source := AdjustFactors(factors)
	curveNumber := float64(cn)
	if req.CurveNumber != nil {
		curveNumber = *req.CurveNumber
		source = CurveNumberOverride
	}

	depth := PrecipitationDepth(sample, basis)
	runoff, err := EstimateRunoff(depth, curveNumber)
	if err != nil {
		return SiteEstimate{}, fmt.Errorf("estimate runoff for site %q: %w", req.SiteID, err)
	}

	est := SiteEstimate{
		SiteID:            req.SiteID,
		Mode:              req.Mode,
		Geo:               req.Geo,
		Factors:           factors,
		SlopeClass:        SlopeClass(factors.SlopeDegrees),
		CurveNumberSource: source,
		Precipitation:     sample,
		Basis:             basis,
		Runoff:            runoff,
		ProcessedAt:       clock.Now(),
	}
	if factors.SoilTextureCode != nil {
		est.SoilClass = SoilClass(*factors.SoilTextureCode)
	}
	if req.HistoricalRunoffMM != nil {
		// Compare at full precision; the calculator already validated its inputs.
		q, _ := CalculateRunoff(depth, curveNumber)
		c := CompareRunoff(q, *req.HistoricalRunoffMM)
		est.Comparison = &c
	}
	est.ID = generateID(req.SiteID, req.Geo, req.Mode, sample.Range)
	return est, nil
}

// SerializeSiteEstimate marshals an estimate into a sink message.
func SerializeSiteEstimate(e SiteEstimate) (OutputEvent, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return OutputEvent{}, fmt.Errorf("serialize site estimate: %w", err)
	}
	return OutputEvent{
		Key:   []byte(e.ID),
		Value: data,
		Headers: map[string]string{
			"site_id":      e.SiteID,
			"mode":         e.Mode,
			"processed_at": e.ProcessedAt.Format(time.RFC3339),
		},
	}, nil
}

// generateID produces a deterministic ID from the site, location, mode, and
// range so replays of the same request upsert the same estimate downstream.
func generateID(siteID string, geo *Geo, mode string, r DateRange) string {
	var lat, lon float64
	if geo != nil {
		lat, lon = geo.Lat, geo.Lon
	}
	input := fmt.Sprintf("%s|%.4f|%.4f|%s|%s|%s", siteID, lat, lon, mode, r.StartDate(), r.EndDate())
	hash := sha256.Sum256([]byte(input))
	short := hex.EncodeToString(hash[:8])
	if mode == "" {
		return short
	}
	return mode + "-" + short
}
