package analytics

import "github.com/opensource-finance/sentinela/internal/domain"

// ComputeHHI returns the Herfindahl-Hirschman index of supplier shares given in
// percent. Shares are clamped to [0,100] and the result to [0,10000].
func ComputeHHI(shares []float64) domain.HHIResult {
	var sum float64
	for _, s := range shares {
		s = clamp(s, 0, 100)
		sum += s * s
	}
	sum = clamp(sum, 0, HHIMax)
	return domain.HHIResult{Value: sum, Level: HHILevel(sum)}
}

// HHILevel classifies an index value.
func HHILevel(value float64) string {
	switch {
	case value >= HHICritical:
		return domain.LevelCritical
	case value >= HHIHigh:
		return domain.LevelHigh
	case value >= HHIModerate:
		return domain.LevelMedium
	default:
		return domain.LevelLow
	}
}

func clamp(v, lo, hi float64) float64 {
	if v != v { // NaN
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
