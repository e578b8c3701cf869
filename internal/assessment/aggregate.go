package assessment

import (
	"github.com/opensource-finance/sentinela/internal/analytics"
	"github.com/opensource-finance/sentinela/internal/domain"
)

// Aggregates is the read-only population summary computed once per snapshot.
// Phase-2 workers share it without locking.
type Aggregates struct {
	// Profiles are copies of the snapshot profiles with HHI and Benford derived.
	Profiles []domain.EntityProfile
	Metrics  []analytics.MetricDefinition

	Stats    map[string]analytics.MetricStats
	Averages map[string]analytics.GroupAverages

	// Total spending summaries per party and per state, for peer z-scores.
	PartySpending map[string]analytics.MetricStats
	StateSpending map[string]analytics.MetricStats

	Correlation [][]float64
	Strong      []domain.CorrelationCell

	Summary domain.PopulationSummary
}

// BuildAggregates runs phase 1 over a snapshot.
func BuildAggregates(snap *domain.Snapshot, metrics []analytics.MetricDefinition, topK int) *Aggregates {
	if len(metrics) == 0 {
		metrics = analytics.DefaultMetrics()
	}

	profiles := make([]domain.EntityProfile, len(snap.Profiles))
	for i, p := range snap.Profiles {
		profiles[i] = analytics.Derive(p)
	}

	agg := &Aggregates{
		Profiles: profiles,
		Metrics:  metrics,
		Stats:    make(map[string]analytics.MetricStats, len(metrics)),
		Averages: make(map[string]analytics.GroupAverages, len(metrics)),
	}
	for _, def := range metrics {
		agg.Stats[def.ID] = analytics.NewMetricStats(analytics.Column(profiles, def))
		agg.Averages[def.ID] = analytics.NewGroupAverages(profiles, def)
	}

	party := make(map[string][]float64)
	state := make(map[string][]float64)
	for i := range profiles {
		p := &profiles[i]
		party[p.Party] = append(party[p.Party], p.TotalSpending)
		state[p.State] = append(state[p.State], p.TotalSpending)
	}
	agg.PartySpending = groupStats(party)
	agg.StateSpending = groupStats(state)

	agg.Correlation = analytics.CorrelationMatrix(profiles, metrics)
	agg.Strong = analytics.StrongCorrelations(agg.Correlation, analytics.MetricIDs(metrics), topK)
	agg.Summary = analytics.Summarize(profiles)
	return agg
}

func groupStats(groups map[string][]float64) map[string]analytics.MetricStats {
	out := make(map[string]analytics.MetricStats, len(groups))
	for k, vs := range groups {
		out[k] = analytics.NewMetricStats(vs)
	}
	return out
}
