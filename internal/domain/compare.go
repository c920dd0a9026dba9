package domain

import "math"

// CompareRunoff reports predicted minus historical runoff and an accuracy
// percentage of 100 - |difference|/historical*100. Accuracy is left nil when
// historical runoff is zero. It can go negative when the prediction is off
// by more than the historical value.
func CompareRunoff(predictedMM, historicalMM float64) Comparison {
	diff := predictedMM - historicalMM
	c := Comparison{
		PredictedMM:  Round(predictedMM),
		HistoricalMM: Round(historicalMM),
		DifferenceMM: Round(diff),
	}
	if historicalMM != 0 {
		acc := Round(100 - math.Abs(diff)/historicalMM*100)
		c.AccuracyPct = &acc
	}
	return c
}

// HistoricalRunoffFromMeters converts accumulated surface runoff reported in
// meters (GLDAS Qs_acc) to millimeters.
func HistoricalRunoffFromMeters(m float64) float64 {
	return m * 1000
}
