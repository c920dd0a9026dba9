package domain

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidCurveNumber is returned when a curve number is outside (0, 100].
	ErrInvalidCurveNumber = errors.New("invalid curve number")

	// ErrInvalidPrecipitation is returned for negative or non-finite precipitation.
	ErrInvalidPrecipitation = errors.New("invalid precipitation")
)

// initialAbstractionRatio is the standard SCS Ia/S ratio.
const initialAbstractionRatio = 0.2

// reportPrecision rounds reported values to two decimals.
const reportPrecision = 100

// CalculateRunoff returns the SCS runoff depth in millimeters for a
// precipitation depth in millimeters:
//
//	S  = 25400/CN - 254
//	Ia = 0.2 * S
//	Q  = 0                          if P <= Ia
//	Q  = (P - Ia)^2 / (P - Ia + S)  otherwise
//
// The result is not rounded.
func CalculateRunoff(precipitationMM, curveNumber float64) (float64, error) {
	s, ia, err := retention(curveNumber)
	if err != nil {
		return 0, err
	}
	if err := validatePrecipitation(precipitationMM); err != nil {
		return 0, err
	}
	return scsRunoff(precipitationMM, s, ia), nil
}

// EstimateRunoff runs the calculator and returns the full record with every
// field rounded to two decimals for reporting.
func EstimateRunoff(precipitationMM, curveNumber float64) (RunoffEstimate, error) {
	s, ia, err := retention(curveNumber)
	if err != nil {
		return RunoffEstimate{}, err
	}
	if err := validatePrecipitation(precipitationMM); err != nil {
		return RunoffEstimate{}, err
	}
	return RunoffEstimate{
		PrecipitationMM:         Round(precipitationMM),
		CurveNumber:             Round(curveNumber),
		PotentialMaxRetentionMM: Round(s),
		InitialAbstractionMM:    Round(ia),
		RunoffMM:                Round(scsRunoff(precipitationMM, s, ia)),
	}, nil
}

// PotentialMaxRetention returns S in millimeters for a curve number.
func PotentialMaxRetention(curveNumber float64) (float64, error) {
	s, _, err := retention(curveNumber)
	return s, err
}

// InitialAbstraction returns Ia in millimeters for a curve number.
func InitialAbstraction(curveNumber float64) (float64, error) {
	_, ia, err := retention(curveNumber)
	return ia, err
}

// Round rounds a value to two decimals.
func Round(v float64) float64 {
	return math.Round(v*reportPrecision) / reportPrecision
}

func retention(curveNumber float64) (s, ia float64, err error) {
	if math.IsNaN(curveNumber) || curveNumber <= 0 || curveNumber > 100 {
		return 0, 0, fmt.Errorf("%w: %g not in (0, 100]", ErrInvalidCurveNumber, curveNumber)
	}
	s = 25400/curveNumber - 254
	return s, initialAbstractionRatio * s, nil
}

func validatePrecipitation(p float64) error {
	if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
		return fmt.Errorf("%w: %g mm", ErrInvalidPrecipitation, p)
	}
	return nil
}

func scsRunoff(p, s, ia float64) float64 {
	if p <= ia {
		return 0
	}
	excess := p - ia
	return excess * excess / (excess + s)
}
