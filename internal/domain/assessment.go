package domain

import (
	"time"
)

// Assessment is the complete analysis of one population snapshot.
type Assessment struct {
	ID                 string    `json:"id"`
	DatasetID          string    `json:"datasetId"`
	SnapshotID         string    `json:"snapshotId"`
	InputHash          string    `json:"inputHash"`
	RulesHash          string    `json:"rulesHash"`
	MethodologyVersion string    `json:"methodologyVersion"`
	Timestamp          time.Time `json:"timestamp"`

	// Entities ordered by severity score, then anomaly count, then id.
	Entities []EntityReport `json:"entities"`

	Metrics            []string           `json:"metrics"`
	CorrelationMatrix  [][]float64        `json:"correlationMatrix"`
	StrongCorrelations []CorrelationCell  `json:"strongCorrelations"`
	LevelCounts        map[string]int     `json:"levelCounts"`
	Summary            PopulationSummary  `json:"summary"`
	Metadata           AssessmentMetadata `json:"metadata"`
}

// Entity returns the report for id.
func (a *Assessment) Entity(id string) (*EntityReport, bool) {
	for i := range a.Entities {
		if a.Entities[i].EntityID == id {
			return &a.Entities[i], true
		}
	}
	return nil, false
}

// EntityReport is the per-entity output of an assessment.
type EntityReport struct {
	EntityID string `json:"entityId"`
	Name     string `json:"name"`
	Party    string `json:"party"`
	State    string `json:"state"`

	RiskScore float64  `json:"riskScore"`
	RiskLevel string   `json:"riskLevel"`
	Penalties []string `json:"penalties,omitempty"`

	RedFlags      []string      `json:"redFlags"`
	AnomalyFlags  []AnomalyFlag `json:"anomalyFlags"`
	AnomalyCount  int           `json:"anomalyCount"`
	SeverityScore int           `json:"severityScore"`

	HHI     HHIResult     `json:"hhi"`
	Benford BenfordResult `json:"benford"`

	ZScoreParty float64 `json:"zScoreParty"`
	ZScoreState float64 `json:"zScoreState"`

	Outliers   []OutlierDetail `json:"outliers"`
	Benchmarks []Benchmark     `json:"benchmarks"`

	BenchmarkAnomalyScore float64 `json:"benchmarkAnomalyScore"`

	Timing     *TimingProfile    `json:"timing,omitempty"`
	Duplicates *DuplicateProfile `json:"duplicates,omitempty"`
}

// OutlierDetail locates an entity's metric within the population.
type OutlierDetail struct {
	MetricID   string  `json:"metricId"`
	Value      float64 `json:"value"`
	ZScore     float64 `json:"zScore"`
	Percentile float64 `json:"percentile"`
	Severity   string  `json:"severity"`
	IsOutlier  bool    `json:"isOutlier"`
}

// Benchmark compares a metric with party and state averages.
type Benchmark struct {
	MetricID   string  `json:"metricId"`
	Value      float64 `json:"value"`
	PartyAvg   float64 `json:"partyAvg"`
	StateAvg   float64 `json:"stateAvg"`
	VsPartyPct float64 `json:"vsPartyPct"`
	VsStatePct float64 `json:"vsStatePct"`
}

// CorrelationCell is one Pearson coefficient between two metrics.
type CorrelationCell struct {
	Row         string  `json:"row"`
	Col         string  `json:"col"`
	Coefficient float64 `json:"coefficient"`
}

// AssessmentMetadata contains processing information.
type AssessmentMetadata struct {
	TraceID           string `json:"traceId,omitempty"`
	EntitiesAssessed  int    `json:"entitiesAssessed"`
	RulesEvaluated    int    `json:"rulesEvaluated"`
	AggregateMs       int64  `json:"aggregateMs"`
	EntityMs          int64  `json:"entityMs"`
	TotalMs           int64  `json:"totalMs"`
	DroppedInactive   int    `json:"droppedInactive"`
	DroppedLeadership int    `json:"droppedLeadership"`
	CacheHit          bool   `json:"cacheHit"`
}

// EntitySummary is the list view of an entity report.
type EntitySummary struct {
	Rank          int     `json:"rank"`
	EntityID      string  `json:"entityId"`
	Name          string  `json:"name"`
	Party         string  `json:"party"`
	State         string  `json:"state"`
	RiskScore     float64 `json:"riskScore"`
	RiskLevel     string  `json:"riskLevel"`
	SeverityScore int     `json:"severityScore"`
	AnomalyCount  int     `json:"anomalyCount"`
}

// Summaries returns the ranked list view.
func (a *Assessment) Summaries() []EntitySummary {
	out := make([]EntitySummary, len(a.Entities))
	for i, e := range a.Entities {
		out[i] = EntitySummary{
			Rank:          i + 1,
			EntityID:      e.EntityID,
			Name:          e.Name,
			Party:         e.Party,
			State:         e.State,
			RiskScore:     e.RiskScore,
			RiskLevel:     e.RiskLevel,
			SeverityScore: e.SeverityScore,
			AnomalyCount:  e.AnomalyCount,
		}
	}
	return out
}

// PopulationSummary totals the assessed population for dashboards.
type PopulationSummary struct {
	Meta       SummaryMeta     `json:"meta"`
	ByMonth    []Breakdown     `json:"byMonth"`
	ByCategory []CategoryTotal `json:"byCategory"`
	ByParty    []GroupTotal    `json:"byParty"`
	ByState    []GroupTotal    `json:"byState"`
}

// SummaryMeta holds population-wide totals.
type SummaryMeta struct {
	TotalTransactions int     `json:"totalTransactions"`
	TotalSpending     float64 `json:"totalSpending"`
	TotalDeputies     int     `json:"totalDeputies"`
	TotalSuppliers    int     `json:"totalSuppliers"`
	Period            Period  `json:"period"`
}

// Period is an inclusive YYYY-MM range; both ends are empty without data.
type Period struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// CategoryTotal is spending in one expense category.
type CategoryTotal struct {
	Category         string  `json:"category"`
	Value            float64 `json:"value"`
	TransactionCount int     `json:"transactionCount"`
	Pct              float64 `json:"pct"`
}

// GroupTotal is spending by a party or a state.
type GroupTotal struct {
	Group        string  `json:"group"`
	Value        float64 `json:"value"`
	DeputyCount  int     `json:"deputyCount"`
	AvgPerDeputy float64 `json:"avgPerDeputy"`
}
