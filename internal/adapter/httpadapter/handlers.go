package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/couchcryptid/storm-data-runoff/internal/domain"
)

var errMissingParam = errors.New("missing required parameter")

// curveNumberResponse reports the adjuster's decision for a set of factors.
type curveNumberResponse struct {
	CurveNumber int                `json:"curve_number"`
	Source      string             `json:"source"`
	SoilClass   string             `json:"soil_class,omitempty"`
	SlopeClass  string             `json:"slope_class"`
	Factors     domain.SiteFactors `json:"factors"`
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	var req domain.SiteRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode site request: %w", err))
		return
	}
	if err := req.Normalize(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	est, err := s.estimator.Estimate(r.Context(), req)
	if err != nil {
		status := estimateErrorStatus(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error("estimate failed", "site_id", req.SiteID, "error", err)
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, est)
}

// estimateErrorStatus maps estimation failures to HTTP status codes.
func estimateErrorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrProviderUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrInvalidRequest),
		errors.Is(err, domain.ErrInvalidDateRange),
		errors.Is(err, domain.ErrInvalidPrecipitation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidCurveNumber),
		errors.Is(err, domain.ErrNoPrecipitationSource),
		errors.Is(err, domain.ErrMissingLocation):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) handleCurveNumber(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	soil, err := optionalInt(q.Get("soil"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("soil: %w", err))
		return
	}
	ndvi, err := optionalFloat(q.Get("ndvi"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("ndvi: %w", err))
		return
	}
	var slope float64
	if v := q.Get("slope"); v != "" {
		slope, err = strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("slope: %w", err))
			return
		}
	}

	factors := domain.SiteFactors{SlopeDegrees: slope, SoilTextureCode: soil, NDVI: ndvi}
	cn, source := domain.AdjustFactors(factors)
	resp := curveNumberResponse{
		CurveNumber: cn,
		Source:      source,
		SlopeClass:  domain.SlopeClass(slope),
		Factors:     factors,
	}
	if soil != nil {
		resp.SoilClass = domain.SoilClass(*soil)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRunoff(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	p, err := requiredFloat(q.Get("precipitation_mm"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("precipitation_mm: %w", err))
		return
	}
	cn, err := requiredFloat(q.Get("curve_number"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("curve_number: %w", err))
		return
	}

	est, err := domain.EstimateRunoff(p, cn)
	switch {
	case errors.Is(err, domain.ErrInvalidCurveNumber):
		writeError(w, http.StatusUnprocessableEntity, err)
	case err != nil:
		writeError(w, http.StatusBadRequest, err)
	default:
		writeJSON(w, http.StatusOK, est)
	}
}

// optionalInt parses an absent or empty parameter as nil.
func optionalInt(v string) (*int, error) {
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// optionalFloat parses an absent or empty parameter as nil.
func optionalFloat(v string) (*float64, error) {
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func requiredFloat(v string) (float64, error) {
	if v == "" {
		return 0, errMissingParam
	}
	return strconv.ParseFloat(v, 64)
}
