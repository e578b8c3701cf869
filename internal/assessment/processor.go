// Package assessment runs the two-phase analysis of a population snapshot:
// population aggregates first, then every entity in parallel.
package assessment

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/opensource-finance/sentinela/internal/analytics"
	"github.com/opensource-finance/sentinela/internal/domain"
	"github.com/opensource-finance/sentinela/internal/metrics"
	"github.com/opensource-finance/sentinela/internal/rules"
)

// Options configures a Processor.
type Options struct {
	// Workers bounds phase-2 parallelism.
	Workers int

	// TopCorrelations is how many strong correlations to report.
	TopCorrelations int

	// Metrics overrides the default metric set.
	Metrics []analytics.MetricDefinition

	// Recorder receives phase timings; may be nil.
	Recorder *metrics.Registry
}

// Processor turns snapshots into assessments.
type Processor struct {
	registry *rules.Registry
	opts     Options
	tracer   trace.Tracer
}

// NewProcessor creates a processor bound to a rule registry.
func NewProcessor(registry *rules.Registry, opts Options) *Processor {
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	if opts.TopCorrelations <= 0 {
		opts.TopCorrelations = analytics.DefaultTopCorrelations
	}
	if len(opts.Metrics) == 0 {
		opts.Metrics = analytics.DefaultMetrics()
	}
	return &Processor{
		registry: registry,
		opts:     opts,
		tracer:   otel.Tracer("sentinela/assessment"),
	}
}

// Assess analyses a snapshot. The snapshot is not modified.
func (p *Processor) Assess(ctx context.Context, snap *domain.Snapshot) (*domain.Assessment, error) {
	if snap == nil {
		return nil, fmt.Errorf("snapshot is required")
	}

	start := time.Now()
	rulesHash := p.registry.Fingerprint()
	ctx, span := p.tracer.Start(ctx, "assessment.Assess",
		trace.WithAttributes(
			attribute.String("dataset", snap.DatasetID),
			attribute.Int("entities", len(snap.Profiles)),
		))
	defer span.End()

	// Phase 1: population aggregates.
	agg := BuildAggregates(snap, p.opts.Metrics, p.opts.TopCorrelations)
	aggregateDur := time.Since(start)
	p.opts.Recorder.ObservePhase("aggregate", aggregateDur)

	// Phase 2: entities in parallel over the shared aggregates.
	entityStart := time.Now()
	reports := make([]domain.EntityReport, len(agg.Profiles))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)
	for i := range agg.Profiles {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			reports[i] = p.AssessEntity(agg, i)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("assess entities: %w", err)
	}
	entityDur := time.Since(entityStart)
	p.opts.Recorder.ObservePhase("entities", entityDur)

	Rank(reports)

	a := &domain.Assessment{
		ID:                 uuid.New().String(),
		DatasetID:          snap.DatasetID,
		SnapshotID:         snap.ID,
		InputHash:          snap.Hash(),
		RulesHash:          rulesHash,
		MethodologyVersion: analytics.MethodologyVersion,
		Timestamp:          time.Now().UTC(),
		Entities:           reports,
		Metrics:            analytics.MetricIDs(agg.Metrics),
		CorrelationMatrix:  agg.Correlation,
		StrongCorrelations: agg.Strong,
		LevelCounts:        LevelCounts(reports),
		Summary:            agg.Summary,
		Metadata: domain.AssessmentMetadata{
			TraceID:           span.SpanContext().TraceID().String(),
			EntitiesAssessed:  len(reports),
			RulesEvaluated:    p.registry.RulesCount() * len(reports),
			AggregateMs:       aggregateDur.Milliseconds(),
			EntityMs:          entityDur.Milliseconds(),
			TotalMs:           time.Since(start).Milliseconds(),
			DroppedInactive:   snap.DroppedInactive,
			DroppedLeadership: snap.DroppedLeadership,
		},
	}
	span.SetAttributes(attribute.Int("critical", a.LevelCounts[domain.LevelCritical]))
	return a, nil
}

// RulesFingerprint identifies the rule set assessments are produced with.
func (p *Processor) RulesFingerprint() string {
	return p.registry.Fingerprint()
}

// AssessEntity evaluates profile i against the population aggregates.
func (p *Processor) AssessEntity(agg *Aggregates, i int) domain.EntityReport {
	prof := &agg.Profiles[i]

	eval := p.registry.Evaluate(prof)
	zParty := agg.PartySpending[prof.Party].ZScore(prof.TotalSpending)
	zState := agg.StateSpending[prof.State].ZScore(prof.TotalSpending)

	risk := analytics.ScoreRisk(analytics.RiskInput{
		HHILevel:           prof.HHI.Level,
		BenfordSignificant: prof.Benford.Significant,
		RoundValuePct:      prof.RoundValuePct,
		TopSupplierPct:     prof.TopSupplierPct(),
		ZScoreParty:        zParty,
		ZScoreState:        zState,
	})

	report := domain.EntityReport{
		EntityID:      prof.ID,
		Name:          prof.Name,
		Party:         prof.Party,
		State:         prof.State,
		RiskScore:     risk.Score,
		RiskLevel:     risk.Level,
		Penalties:     risk.Penalties,
		RedFlags:      eval.Triggered,
		AnomalyFlags:  eval.Flags,
		AnomalyCount:  eval.AnomalyCount,
		SeverityScore: eval.SeverityScore,
		HHI:           prof.HHI,
		Benford:       prof.Benford,
		ZScoreParty:   zParty,
		ZScoreState:   zState,
		Outliers:      make([]domain.OutlierDetail, 0, len(agg.Metrics)),
		Benchmarks:    make([]domain.Benchmark, 0, len(agg.Metrics)),
		Timing:        prof.Timing,
		Duplicates:    prof.Duplicates,
	}

	for _, def := range agg.Metrics {
		v := def.Extract(prof)
		report.Outliers = append(report.Outliers, agg.Stats[def.ID].Detect(def.ID, v, def.Direction))
		b := agg.Averages[def.ID].Benchmark(def.ID, v, prof.Party, prof.State)
		report.Benchmarks = append(report.Benchmarks, b)
		if def.ID == analytics.MetricTotalSpending {
			report.BenchmarkAnomalyScore = analytics.BenchmarkAnomalyScore(b)
		}
	}
	return report
}

// Rank orders reports by severity score, anomaly count, then entity id.
func Rank(reports []domain.EntityReport) {
	key := func(r *domain.EntityReport) domain.RuleEvaluation {
		return domain.RuleEvaluation{EntityID: r.EntityID, SeverityScore: r.SeverityScore, AnomalyCount: r.AnomalyCount}
	}
	sort.SliceStable(reports, func(i, j int) bool {
		return rules.Outranks(key(&reports[i]), key(&reports[j]))
	})
}

// LevelCounts tallies reports per risk level. Every level is present.
func LevelCounts(reports []domain.EntityReport) map[string]int {
	counts := map[string]int{
		domain.LevelCritical: 0,
		domain.LevelHigh:     0,
		domain.LevelMedium:   0,
		domain.LevelLow:      0,
	}
	for _, r := range reports {
		counts[r.RiskLevel]++
	}
	return counts
}

// ShouldFlag reports whether an entity warrants a flagged event.
func ShouldFlag(r *domain.EntityReport) bool {
	return r.RiskLevel == domain.LevelCritical
}

// Reasons returns the human-readable labels of the rules that fired.
func Reasons(r *domain.EntityReport) []string {
	var reasons []string
	for _, f := range r.AnomalyFlags {
		if f.Label != "" {
			reasons = append(reasons, f.Label)
		}
	}
	return reasons
}
