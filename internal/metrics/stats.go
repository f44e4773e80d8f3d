package metrics

import (
	"math"

	"github.com/wonny/aegis-metrics/internal/contracts"
)

// =============================================================================
// Pure statistics (no clamping, no logging)
// =============================================================================

// Mean 평균
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev 표본 표준편차 (n-1). Returns 0 for fewer than 2 values.
func StdDev(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	m := Mean(values)
	var ss float64
	for _, v := range values {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}

// SimpleReturns returns p[t]/p[t-1]-1 for consecutive points.
// A non-positive previous price yields NaN so that trimming drops it.
func SimpleReturns(points []contracts.PricePoint) []float64 {
	if len(points) < 2 {
		return nil
	}
	out := make([]float64, 0, len(points)-1)
	for i := 1; i < len(points); i++ {
		prev := points[i-1].Price
		if prev <= 0 {
			out = append(out, math.NaN())
			continue
		}
		out = append(out, points[i].Price/prev-1)
	}
	return out
}

// inBand returns &v when v is finite and within [lo, hi], nil otherwise
func inBand(v, lo, hi float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	if v < lo || v > hi {
		return nil
	}
	return &v
}
