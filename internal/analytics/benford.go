package analytics

import (
	"math"
	"strconv"

	"github.com/opensource-finance/sentinela/internal/domain"
	"gonum.org/v1/gonum/stat/distuv"
)

var chiSquared8 = distuv.ChiSquared{K: BenfordDegreesOfFreedom}

// LeadingDigit returns the first significant digit of |v|, or 0 for zero,
// NaN and infinities.
func LeadingDigit(v float64) int {
	v = math.Abs(v)
	if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	s := strconv.FormatFloat(v, 'e', -1, 64)
	return int(s[0] - '0')
}

// DigitCounts tallies leading digits of values; index 0 is digit 1.
func DigitCounts(values []float64) [9]int {
	var counts [9]int
	for _, v := range values {
		if d := LeadingDigit(v); d > 0 {
			counts[d-1]++
		}
	}
	return counts
}

// BenfordFromCounts runs the goodness-of-fit test on raw digit counts.
func BenfordFromCounts(counts [9]int) domain.BenfordResult {
	n := 0
	for _, c := range counts {
		if c > 0 {
			n += c
		}
	}
	if n == 0 {
		return emptyBenford()
	}

	var chi2 float64
	var observed [9]float64
	for i, c := range counts {
		if c < 0 {
			c = 0
		}
		expected := float64(n) * BenfordExpected[i] / 100
		diff := float64(c) - expected
		chi2 += diff * diff / expected
		observed[i] = float64(c) / float64(n) * 100
	}
	return benfordResult(chi2, observed, n)
}

// BenfordFromPercent runs the test on a distribution already expressed in
// percent. The vector is treated as a sample of 100; sampleSize is only used
// for the confidence flag.
func BenfordFromPercent(pct [9]float64, sampleSize int) domain.BenfordResult {
	var chi2 float64
	var observed [9]float64
	for i, o := range pct {
		o = clamp(o, 0, 100)
		diff := o - BenfordExpected[i]
		chi2 += diff * diff / BenfordExpected[i]
		observed[i] = o
	}
	return benfordResult(chi2, observed, sampleSize)
}

func benfordResult(chi2 float64, observed [9]float64, n int) domain.BenfordResult {
	r := domain.BenfordResult{
		Chi2:          chi2,
		PValue:        chiSquared8.Survival(chi2),
		Significant:   chi2 > BenfordCritical05,
		Level:         BenfordLevel(chi2),
		SampleSize:    n,
		LowConfidence: n < BenfordMinSample,
		Observed:      observed,
	}
	for i := range observed {
		r.PerDigitDeviation[i] = observed[i] - BenfordExpected[i]
	}
	return r
}

func emptyBenford() domain.BenfordResult {
	r := domain.BenfordResult{
		PValue:        1,
		Level:         BenfordNone,
		LowConfidence: true,
	}
	for i := range BenfordExpected {
		r.PerDigitDeviation[i] = -BenfordExpected[i]
	}
	return r
}

// BenfordLevel classifies a chi-square statistic against the critical values.
func BenfordLevel(chi2 float64) string {
	switch {
	case chi2 > BenfordCritical01:
		return BenfordSignificant
	case chi2 > BenfordCritical05:
		return BenfordElevated
	default:
		return BenfordNone
	}
}
