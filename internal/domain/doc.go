// Package domain models surface-runoff estimation with the SCS Curve Number
// method.
//
// # Inputs
//
// Each estimate combines four scalars supplied by external providers:
//
//	slope_degrees      mean terrain slope (SRTM DEM derived)
//	soil_texture_code  dominant USDA texture class ordinal (OpenLandMap)
//	ndvi               mean vegetation index, -1..1 (MODIS MOD13A1, scaled by 0.0001)
//	precipitation      rainfall depth in mm over a date range (forecast or reanalysis)
//
// Soil and NDVI are optional. A missing reading is nil; zero is a valid
// measurement and is never treated as missing.
//
// # Curve Number
//
// [AdjustCurveNumber] picks a base number by soil band and shifts it by slope:
//
//	soil:  <5 sandy 65 | 5–6 loamy 75 | ≥7 clayey 85
//	slope: >10° +5 | <2° -5
//
// When soil or NDVI is missing the default 75 is used with no slope shift.
// The result is clamped to [50, 98]. The clamp is a project policy; the
// calculator accepts any curve number in (0, 100].
//
// # Runoff
//
// [CalculateRunoff] applies the standard SCS relations in millimeters:
//
//	S  = 25400/CN − 254
//	Ia = 0.2·S
//	Q  = (P − Ia)² / (P − Ia + S)   for P > Ia, else 0
//
// Reported values are rounded to two decimals by [EstimateRunoff]; the
// calculator itself keeps full precision.
//
// # Comparison
//
// When a historical runoff depth is known, [CompareRunoff] reports the signed
// difference and an accuracy of 100 − |Δ|/historical·100.
package domain
