package analytics

import (
	"math"
	"sort"

	"github.com/opensource-finance/sentinela/internal/domain"
	"gonum.org/v1/gonum/stat"
)

// Direction says which tail of a metric is suspicious.
type Direction int

const (
	HigherIsBad Direction = iota
	LowerIsBad
	Neutral
)

// MetricStats is the population summary of one metric, computed once per
// snapshot and shared read-only by every entity evaluation.
type MetricStats struct {
	N      int
	Mean   float64
	StdDev float64
	sorted []float64
}

// NewMetricStats summarises values. Non-finite values are dropped. With fewer
// than three values the std-dev is left at 0 so every z-score is 0.
func NewMetricStats(values []float64) MetricStats {
	clean := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			clean = append(clean, v)
		}
	}
	sort.Float64s(clean)

	ms := MetricStats{N: len(clean), sorted: clean}
	if ms.N == 0 {
		return ms
	}
	if ms.N < MinOutlierGroup {
		ms.Mean = stat.Mean(clean, nil)
		return ms
	}
	ms.Mean, ms.StdDev = stat.MeanStdDev(clean, nil)
	if math.IsNaN(ms.StdDev) {
		ms.StdDev = 0
	}
	return ms
}

// ZScore returns (v - mean) / std, or 0 when the std-dev is 0.
func (ms MetricStats) ZScore(v float64) float64 {
	if ms.StdDev == 0 || ms.N < MinOutlierGroup {
		return 0
	}
	return (v - ms.Mean) / ms.StdDev
}

// Percentile returns the share of the population strictly below v, in percent.
func (ms MetricStats) Percentile(v float64) float64 {
	if ms.N == 0 {
		return 0
	}
	below := sort.SearchFloat64s(ms.sorted, v)
	return float64(below) / float64(ms.N) * 100
}

// Detect locates v within the population.
func (ms MetricStats) Detect(metricID string, v float64, dir Direction) domain.OutlierDetail {
	z := ms.ZScore(v)
	return domain.OutlierDetail{
		MetricID:   metricID,
		Value:      v,
		ZScore:     z,
		Percentile: ms.Percentile(v),
		Severity:   OutlierSeverity(z, dir),
		IsOutlier:  math.Abs(z) > OutlierZ,
	}
}

// OutlierSeverity grades a z-score. HigherIsBad looks at the positive tail,
// LowerIsBad mirrors it onto the negative tail and Neutral uses |z|.
func OutlierSeverity(z float64, dir Direction) string {
	var x float64
	switch dir {
	case HigherIsBad:
		x = z
	case LowerIsBad:
		x = -z
	default:
		x = math.Abs(z)
	}
	switch {
	case x > ZCritical:
		return SeverityCritical
	case x > ZHigh:
		return SeverityHigh
	case x > ZMedium:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
