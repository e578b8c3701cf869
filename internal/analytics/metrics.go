package analytics

import "github.com/opensource-finance/sentinela/internal/domain"

// MetricDefinition names a numeric attribute of a profile.
type MetricDefinition struct {
	ID        string
	Label     string
	Direction Direction
	Extract   func(p *domain.EntityProfile) float64
}

// Metric identifiers.
const (
	MetricTotalSpending    = "totalSpending"
	MetricTransactionCount = "transactionCount"
	MetricAvgTicket        = "avgTicket"
	MetricSupplierCount    = "supplierCount"
	MetricHHI              = "hhi"
	MetricBenfordChi2      = "benfordChi2"
	MetricRoundValuePct    = "roundValuePct"
	MetricTopSupplierPct   = "topSupplierPct"
)

// DefaultMetrics is the metric set used for outliers, correlations and
// benchmarks. HHI and Benford extractors read the derived fields, so profiles
// must pass through Derive first.
func DefaultMetrics() []MetricDefinition {
	return []MetricDefinition{
		{ID: MetricTotalSpending, Label: "Total spending", Direction: HigherIsBad,
			Extract: func(p *domain.EntityProfile) float64 { return p.TotalSpending }},
		{ID: MetricTransactionCount, Label: "Transactions", Direction: Neutral,
			Extract: func(p *domain.EntityProfile) float64 { return float64(p.TransactionCount) }},
		{ID: MetricAvgTicket, Label: "Average ticket", Direction: HigherIsBad,
			Extract: func(p *domain.EntityProfile) float64 { return p.AvgTicket }},
		{ID: MetricSupplierCount, Label: "Suppliers", Direction: LowerIsBad,
			Extract: func(p *domain.EntityProfile) float64 { return float64(p.SupplierCount) }},
		{ID: MetricHHI, Label: "Supplier concentration (HHI)", Direction: HigherIsBad,
			Extract: func(p *domain.EntityProfile) float64 { return p.HHI.Value }},
		{ID: MetricBenfordChi2, Label: "First-digit chi-square", Direction: HigherIsBad,
			Extract: func(p *domain.EntityProfile) float64 { return p.Benford.Chi2 }},
		{ID: MetricRoundValuePct, Label: "Round values (%)", Direction: HigherIsBad,
			Extract: func(p *domain.EntityProfile) float64 { return p.RoundValuePct }},
		{ID: MetricTopSupplierPct, Label: "Top supplier share (%)", Direction: HigherIsBad,
			Extract: func(p *domain.EntityProfile) float64 { return p.TopSupplierPct() }},
	}
}

// MetricIDs lists the ids of defs in order.
func MetricIDs(defs []MetricDefinition) []string {
	ids := make([]string, len(defs))
	for i, d := range defs {
		ids[i] = d.ID
	}
	return ids
}

// Column extracts one metric across the population.
func Column(profiles []domain.EntityProfile, def MetricDefinition) []float64 {
	col := make([]float64, len(profiles))
	for i := range profiles {
		col[i] = def.Extract(&profiles[i])
	}
	return col
}

// Derive returns a copy of p with HHI and Benford filled from its own fields.
// The input profile is never modified.
func Derive(p domain.EntityProfile) domain.EntityProfile {
	p.HHI = ComputeHHI(p.SupplierShares())
	p.Benford = BenfordFromCounts(p.LeadingDigits)
	return p
}
