package analytics

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"github.com/opensource-finance/sentinela/internal/domain"
)

// Pearson returns the correlation of x and y, or 0 when either side has no
// variance, the inputs are unusable, or there are fewer than MinOutlierGroup
// points (two points always correlate perfectly).
func Pearson(x, y []float64) float64 {
	if len(x) != len(y) || len(x) < MinOutlierGroup {
		return 0
	}
	r, err := stats.Pearson(x, y)
	if err != nil || math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return clamp(r, -1, 1)
}

// CorrelationMatrix computes Pearson r for every pair of metrics over the
// population. The result is symmetric with a diagonal of exactly 1.
func CorrelationMatrix(profiles []domain.EntityProfile, defs []MetricDefinition) [][]float64 {
	cols := make([][]float64, len(defs))
	for i, d := range defs {
		cols[i] = Column(profiles, d)
	}

	m := make([][]float64, len(defs))
	for i := range m {
		m[i] = make([]float64, len(defs))
		m[i][i] = 1
	}
	for i := 0; i < len(defs); i++ {
		for j := i + 1; j < len(defs); j++ {
			r := Pearson(cols[i], cols[j])
			m[i][j] = r
			m[j][i] = r
		}
	}
	return m
}

// StrongCorrelations lists off-diagonal pairs with |r| above the strong
// threshold, each pair once, sorted by |r| descending and truncated to topK.
func StrongCorrelations(matrix [][]float64, ids []string, topK int) []domain.CorrelationCell {
	if topK <= 0 {
		topK = DefaultTopCorrelations
	}
	var cells []domain.CorrelationCell
	for i := range matrix {
		for j := i + 1; j < len(matrix[i]) && j < len(ids); j++ {
			r := matrix[i][j]
			if math.Abs(r) > StrongCorrelation {
				cells = append(cells, domain.CorrelationCell{Row: ids[i], Col: ids[j], Coefficient: r})
			}
		}
	}
	sort.SliceStable(cells, func(a, b int) bool {
		ra, rb := math.Abs(cells[a].Coefficient), math.Abs(cells[b].Coefficient)
		if ra != rb {
			return ra > rb
		}
		if cells[a].Row != cells[b].Row {
			return cells[a].Row < cells[b].Row
		}
		return cells[a].Col < cells[b].Col
	})
	if len(cells) > topK {
		cells = cells[:topK]
	}
	return cells
}
