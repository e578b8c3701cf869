package analytics

import (
	"math"

	"github.com/montanaflynn/stats"
	"github.com/opensource-finance/sentinela/internal/domain"
)

// GroupAverages holds party, state and global means for one metric.
type GroupAverages struct {
	Global  float64
	ByParty map[string]float64
	ByState map[string]float64
}

// NewGroupAverages averages def over the population, per party and per state.
func NewGroupAverages(profiles []domain.EntityProfile, def MetricDefinition) GroupAverages {
	all := make([]float64, 0, len(profiles))
	party := make(map[string][]float64)
	state := make(map[string][]float64)
	for i := range profiles {
		p := &profiles[i]
		v := def.Extract(p)
		all = append(all, v)
		party[p.Party] = append(party[p.Party], v)
		state[p.State] = append(state[p.State], v)
	}

	g := GroupAverages{
		Global:  mean(all),
		ByParty: make(map[string]float64, len(party)),
		ByState: make(map[string]float64, len(state)),
	}
	for k, vs := range party {
		g.ByParty[k] = mean(vs)
	}
	for k, vs := range state {
		g.ByState[k] = mean(vs)
	}
	return g
}

// PartyAvg returns the party mean, falling back to the global mean.
func (g GroupAverages) PartyAvg(party string) float64 {
	if v, ok := g.ByParty[party]; ok {
		return v
	}
	return g.Global
}

// StateAvg returns the state mean, falling back to the global mean.
func (g GroupAverages) StateAvg(state string) float64 {
	if v, ok := g.ByState[state]; ok {
		return v
	}
	return g.Global
}

// Benchmark compares value against the entity's party and state.
func (g GroupAverages) Benchmark(metricID string, value float64, party, state string) domain.Benchmark {
	pa, sa := g.PartyAvg(party), g.StateAvg(state)
	return domain.Benchmark{
		MetricID:   metricID,
		Value:      value,
		PartyAvg:   pa,
		StateAvg:   sa,
		VsPartyPct: PctDiff(value, pa),
		VsStatePct: PctDiff(value, sa),
	}
}

// PctDiff returns (value - avg) / avg in percent, 0 when avg is 0.
func PctDiff(value, avg float64) float64 {
	if avg == 0 {
		return 0
	}
	return (value - avg) / avg * 100
}

// BenchmarkAnomalyScore weights the absolute party and state deviations.
func BenchmarkAnomalyScore(b domain.Benchmark) float64 {
	return BenchmarkPartyWeight*math.Abs(b.VsPartyPct) + BenchmarkStateWeight*math.Abs(b.VsStatePct)
}

func mean(vs []float64) float64 {
	m, err := stats.Mean(vs)
	if err != nil || math.IsNaN(m) {
		return 0
	}
	return m
}
