package domain

const (
	// MinCurveNumber and MaxCurveNumber bound the adjusted curve number.
	// The range is a project policy, not a physical limit: the calculator
	// itself accepts any value in (0, 100].
	MinCurveNumber = 50
	MaxCurveNumber = 98

	// DefaultCurveNumber is used when soil texture or NDVI is missing.
	DefaultCurveNumber = 75

	steepSlopeDegrees = 10
	flatSlopeDegrees  = 2
	slopeAdjustment   = 5
)

// Curve number provenance reported on each estimate.
const (
	CurveNumberAdjusted = "adjusted"
	CurveNumberDefault  = "default"
	CurveNumberOverride = "override"
)

// AdjustCurveNumber derives a curve number from site characteristics:
//   - soil texture code: <5 sandy (65), <7 loamy (75), else clayey (85)
//   - slope: >10° steep (+5), <2° flat (-5)
//
// Soil and slope only apply when both soil texture and NDVI are present;
// otherwise DefaultCurveNumber is used without slope adjustment. NDVI gates
// the branch and does not otherwise modulate the number. The result is
// clamped to [MinCurveNumber, MaxCurveNumber].
func AdjustCurveNumber(soilTextureCode *int, slopeDegrees float64, ndvi *float64) int {
	cn := DefaultCurveNumber
	if soilTextureCode != nil && ndvi != nil {
		cn = soilBaseCurveNumber(*soilTextureCode)
		switch {
		case slopeDegrees > steepSlopeDegrees:
			cn += slopeAdjustment
		case slopeDegrees < flatSlopeDegrees:
			cn -= slopeAdjustment
		}
	}
	return max(MinCurveNumber, min(cn, MaxCurveNumber))
}

// AdjustFactors is AdjustCurveNumber applied to a SiteFactors value. It also
// reports whether the soil/vegetation branch or the default was used.
func AdjustFactors(f SiteFactors) (int, string) {
	source := CurveNumberDefault
	if f.SoilTextureCode != nil && f.NDVI != nil {
		source = CurveNumberAdjusted
	}
	return AdjustCurveNumber(f.SoilTextureCode, f.SlopeDegrees, f.NDVI), source
}

func soilBaseCurveNumber(code int) int {
	switch {
	case code < 5:
		return 65
	case code < 7:
		return 75
	default:
		return 85
	}
}

// SoilClass names the texture band a soil code falls in.
func SoilClass(code int) string {
	switch {
	case code < 5:
		return "sandy"
	case code < 7:
		return "loamy"
	default:
		return "clayey"
	}
}

// SlopeClass names the slope band used by the adjuster.
func SlopeClass(slopeDegrees float64) string {
	switch {
	case slopeDegrees > steepSlopeDegrees:
		return "steep"
	case slopeDegrees < flatSlopeDegrees:
		return "flat"
	default:
		return "moderate"
	}
}
