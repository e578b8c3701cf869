package analytics

import (
	"math"
	"math/rand/v2"
	"sort"
	"testing"
	"time"

	"github.com/opensource-finance/sentinela/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeHHI(t *testing.T) {
	tests := []struct {
		name   string
		shares []float64
		value  float64
		level  string
	}{
		{"single supplier", []float64{100}, 10000, domain.LevelCritical},
		{"two equal", []float64{50, 50}, 5000, domain.LevelCritical},
		{"critical boundary", []float64{40, 30, 20, 10}, 3000, domain.LevelCritical},
		{"four equal", []float64{25, 25, 25, 25}, 2500, domain.LevelHigh},
		{"moderate boundary", []float64{30, 20, 10, 10}, 1500, domain.LevelMedium},
		{"fragmented", []float64{10, 10, 10, 10, 10, 10, 10, 10, 10, 10}, 1000, domain.LevelLow},
		{"no suppliers", nil, 0, domain.LevelLow},
		{"negative clamps to zero", []float64{-10, 50}, 2500, domain.LevelHigh},
		{"over 100 clamps", []float64{150}, 10000, domain.LevelCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeHHI(tt.shares)
			assert.InDelta(t, tt.value, got.Value, 1e-9)
			assert.Equal(t, tt.level, got.Level)
		})
	}
}

func TestComputeHHIBounds(t *testing.T) {
	got := ComputeHHI([]float64{100, 100, 100})
	assert.LessOrEqual(t, got.Value, HHIMax)
	assert.GreaterOrEqual(t, ComputeHHI([]float64{math.NaN()}).Value, 0.0)

	rng := rand.New(rand.NewPCG(11, 17))
	for i := 0; i < 500; i++ {
		shares := randomShares(rng, 1+rng.IntN(30))
		n := float64(len(shares))
		hhi := ComputeHHI(shares).Value
		assert.GreaterOrEqual(t, hhi, HHIMax/n-1e-6, "shares %v", shares)
		assert.LessOrEqual(t, hhi, HHIMax+1e-6, "shares %v", shares)
	}

	assert.InDelta(t, HHIMax/8, ComputeHHI([]float64{12.5, 12.5, 12.5, 12.5, 12.5, 12.5, 12.5, 12.5}).Value, 1e-9)
}

func TestComputeHHIMonotonic(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	for i := 0; i < 500; i++ {
		shares := randomShares(rng, 2+rng.IntN(20))
		sort.Sort(sort.Reverse(sort.Float64Slice(shares)))

		// move part of a smaller supplier's share onto a larger one
		big := rng.IntN(len(shares) - 1)
		small := big + 1 + rng.IntN(len(shares)-big-1)
		moved := shares[small] * rng.Float64()

		before := ComputeHHI(shares).Value
		next := append([]float64(nil), shares...)
		next[big] += moved
		next[small] -= moved
		after := ComputeHHI(next).Value

		require.GreaterOrEqual(t, after, before-1e-9, "from %v to %v", shares, next)
	}
}

// randomShares returns n positive percentages summing to 100.
func randomShares(rng *rand.Rand, n int) []float64 {
	weights := make([]float64, n)
	var total float64
	for i := range weights {
		weights[i] = 0.01 + rng.Float64()
		total += weights[i]
	}
	for i := range weights {
		weights[i] = weights[i] / total * 100
	}
	return weights
}

func TestLeadingDigit(t *testing.T) {
	cases := map[float64]int{
		1234.5: 1,
		0.05:   5,
		-87:    8,
		9e-7:   9,
		0:      0,
		100:    1,
	}
	for v, want := range cases {
		assert.Equal(t, want, LeadingDigit(v), "value %v", v)
	}
	assert.Equal(t, 0, LeadingDigit(math.Inf(1)))
}

func TestBenfordPerfectFit(t *testing.T) {
	r := BenfordFromPercent(BenfordExpected, 1000)

	assert.InDelta(t, 0, r.Chi2, 1e-9)
	assert.InDelta(t, 1, r.PValue, 1e-9)
	assert.False(t, r.Significant)
	assert.Equal(t, BenfordNone, r.Level)
	assert.False(t, r.LowConfidence)
	for _, d := range r.PerDigitDeviation {
		assert.InDelta(t, 0, d, 1e-9)
	}
}

func TestBenfordSkewed(t *testing.T) {
	t.Run("percent", func(t *testing.T) {
		r := BenfordFromPercent([9]float64{100}, 500)
		// (100-30.1)^2/30.1 plus the sum of the other expected shares
		want := 69.9*69.9/30.1 + 69.9
		assert.InDelta(t, want, r.Chi2, 1e-6)
		assert.True(t, r.Significant)
		assert.Equal(t, BenfordSignificant, r.Level)
		assert.Less(t, r.PValue, 0.01)
	})

	t.Run("counts", func(t *testing.T) {
		r := BenfordFromCounts([9]int{1000})
		assert.Greater(t, r.Chi2, 1000.0)
		assert.True(t, r.Significant)
		assert.Equal(t, 1000, r.SampleSize)
		assert.InDelta(t, 100, r.Observed[0], 1e-9)
		assert.InDelta(t, 69.9, r.PerDigitDeviation[0], 1e-9)
	})
}

func TestBenfordCountsMatchPercentAtHundred(t *testing.T) {
	counts := [9]int{40, 15, 10, 10, 8, 7, 4, 3, 3}
	var pct [9]float64
	for i, c := range counts {
		pct[i] = float64(c)
	}
	a := BenfordFromCounts(counts)
	b := BenfordFromPercent(pct, 100)
	assert.InDelta(t, a.Chi2, b.Chi2, 1e-9)
}

func TestBenfordLowConfidence(t *testing.T) {
	r := BenfordFromCounts([9]int{15, 9, 6, 5, 4, 3, 3, 3, 2})
	assert.Equal(t, 50, r.SampleSize)
	assert.True(t, r.LowConfidence)

	empty := BenfordFromCounts([9]int{})
	assert.True(t, empty.LowConfidence)
	assert.Equal(t, 0.0, empty.Chi2)
	assert.Equal(t, 1.0, empty.PValue)
}

func TestBenfordCriticalValues(t *testing.T) {
	assert.Equal(t, BenfordNone, BenfordLevel(BenfordCritical05))
	assert.Equal(t, BenfordElevated, BenfordLevel(15.52))
	assert.Equal(t, BenfordElevated, BenfordLevel(BenfordCritical01))
	assert.Equal(t, BenfordSignificant, BenfordLevel(20.1))

	assert.InDelta(t, 0.05, chiSquared8.Survival(BenfordCritical05), 1e-3)
	assert.InDelta(t, 0.01, chiSquared8.Survival(BenfordCritical01), 1e-3)
}

func TestMetricStats(t *testing.T) {
	ms := NewMetricStats([]float64{1, 2, 3, 4, 5})

	require.Equal(t, 5, ms.N)
	assert.InDelta(t, 3, ms.Mean, 1e-12)
	assert.InDelta(t, math.Sqrt(2.5), ms.StdDev, 1e-12)
	assert.InDelta(t, 2/math.Sqrt(2.5), ms.ZScore(5), 1e-12)

	assert.Equal(t, 0.0, ms.Percentile(1))
	assert.Equal(t, 40.0, ms.Percentile(3))
	assert.Equal(t, 80.0, ms.Percentile(5))
	assert.Equal(t, 100.0, ms.Percentile(6))
}

func TestMetricStatsDegenerate(t *testing.T) {
	t.Run("constant", func(t *testing.T) {
		ms := NewMetricStats([]float64{5, 5, 5, 5})
		assert.Equal(t, 0.0, ms.ZScore(5))
		assert.Equal(t, 0.0, ms.ZScore(50))
	})

	t.Run("too small", func(t *testing.T) {
		ms := NewMetricStats([]float64{1, 100})
		assert.Equal(t, 0.0, ms.ZScore(100))
		d := ms.Detect("x", 100, HigherIsBad)
		assert.False(t, d.IsOutlier)
		assert.Equal(t, SeverityLow, d.Severity)
	})

	t.Run("empty", func(t *testing.T) {
		ms := NewMetricStats(nil)
		assert.Equal(t, 0.0, ms.ZScore(1))
		assert.Equal(t, 0.0, ms.Percentile(1))
	})

	t.Run("non finite dropped", func(t *testing.T) {
		ms := NewMetricStats([]float64{1, math.NaN(), 2, math.Inf(1), 3})
		assert.Equal(t, 3, ms.N)
	})
}

func TestDetectOutlier(t *testing.T) {
	values := []float64{10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 100}
	ms := NewMetricStats(values)

	d := ms.Detect(MetricTotalSpending, 100, HigherIsBad)
	assert.True(t, d.IsOutlier)
	assert.Equal(t, SeverityCritical, d.Severity)
	assert.InDelta(t, 100*10.0/11, d.Percentile, 1e-9)

	low := ms.Detect(MetricTotalSpending, 10, HigherIsBad)
	assert.False(t, low.IsOutlier)
	assert.Equal(t, SeverityLow, low.Severity)
}

func TestOutlierSeverity(t *testing.T) {
	tests := []struct {
		z    float64
		dir  Direction
		want string
	}{
		{3.5, HigherIsBad, SeverityCritical},
		{2.5, HigherIsBad, SeverityHigh},
		{1.6, HigherIsBad, SeverityMedium},
		{-3.5, HigherIsBad, SeverityLow},
		{-3.5, LowerIsBad, SeverityCritical},
		{3.5, LowerIsBad, SeverityLow},
		{-2.5, Neutral, SeverityHigh},
		{1.6, Neutral, SeverityMedium},
		{2.0, Neutral, SeverityMedium},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, OutlierSeverity(tt.z, tt.dir), "z=%v dir=%v", tt.z, tt.dir)
	}
}

func TestScoreRisk(t *testing.T) {
	t.Run("all penalties clip to one", func(t *testing.T) {
		r := ScoreRisk(RiskInput{
			HHILevel:           domain.LevelCritical,
			BenfordSignificant: true,
			RoundValuePct:      40,
			TopSupplierPct:     100,
		})
		assert.Equal(t, 1.0, r.Score)
		assert.Equal(t, domain.LevelCritical, r.Level)
		assert.Equal(t, []string{PenaltyIDBenford, PenaltyIDRoundValues, PenaltyIDTopSupplier}, r.Penalties)
	})

	t.Run("clean low", func(t *testing.T) {
		r := ScoreRisk(RiskInput{HHILevel: domain.LevelLow, RoundValuePct: 5, TopSupplierPct: 20})
		assert.InDelta(t, RiskBaseLow, r.Score, 1e-12)
		assert.Equal(t, domain.LevelLow, r.Level)
		assert.Empty(t, r.Penalties)
	})

	t.Run("negative peer z counts", func(t *testing.T) {
		r := ScoreRisk(RiskInput{HHILevel: domain.LevelHigh, ZScoreParty: -2.5})
		assert.InDelta(t, RiskBaseHigh+PenaltyPartyOutlier, r.Score, 1e-12)
		assert.Equal(t, domain.LevelCritical, r.Level)
		assert.Equal(t, []string{PenaltyIDPartyOutlier}, r.Penalties)
	})

	t.Run("thresholds are strict", func(t *testing.T) {
		r := ScoreRisk(RiskInput{
			HHILevel:       domain.LevelMedium,
			RoundValuePct:  RiskRoundValuePct,
			TopSupplierPct: RiskTopSupplierPct,
			ZScoreState:    RiskPeerZ,
		})
		assert.Empty(t, r.Penalties)
		assert.InDelta(t, RiskBaseMedium, r.Score, 1e-12)
	})

	t.Run("unknown level uses low base", func(t *testing.T) {
		assert.InDelta(t, RiskBaseLow, ScoreRisk(RiskInput{}).Score, 1e-12)
	})
}

func TestScoreRiskTierBoundaries(t *testing.T) {
	// Everything in hundredths so expectations are exact.
	bases := map[string]int{
		domain.LevelCritical: 90,
		domain.LevelHigh:     70,
		domain.LevelMedium:   40,
		domain.LevelLow:      20,
	}
	penalties := []int{15, 10, 10, 8, 8}
	levelFor := func(h int) string {
		switch {
		case h >= 75:
			return domain.LevelCritical
		case h >= 55:
			return domain.LevelHigh
		case h >= 35:
			return domain.LevelMedium
		default:
			return domain.LevelLow
		}
	}

	for hhiLevel, base := range bases {
		for mask := 0; mask < 1<<len(penalties); mask++ {
			in := RiskInput{HHILevel: hhiLevel}
			want := base
			if mask&1 != 0 {
				in.BenfordSignificant = true
				want += penalties[0]
			}
			if mask&2 != 0 {
				in.RoundValuePct = RiskRoundValuePct + 1
				want += penalties[1]
			}
			if mask&4 != 0 {
				in.TopSupplierPct = RiskTopSupplierPct + 1
				want += penalties[2]
			}
			if mask&8 != 0 {
				in.ZScoreParty = -(RiskPeerZ + 1)
				want += penalties[3]
			}
			if mask&16 != 0 {
				in.ZScoreState = RiskPeerZ + 1
				want += penalties[4]
			}
			if want > 100 {
				want = 100
			}

			r := ScoreRisk(in)
			assert.Equal(t, float64(want)/100, r.Score, "base=%s mask=%05b", hhiLevel, mask)
			assert.Equal(t, levelFor(want), r.Level, "base=%s mask=%05b", hhiLevel, mask)
		}
	}

	// 0.2 + 0.15 + 0.10 + 0.10 sums to 0.5499999... in floating point
	r := ScoreRisk(RiskInput{
		HHILevel:           domain.LevelLow,
		BenfordSignificant: true,
		RoundValuePct:      RiskRoundValuePct + 1,
		TopSupplierPct:     RiskTopSupplierPct + 1,
	})
	assert.Equal(t, domain.LevelHigh, r.Level)
}

func TestLevelForScore(t *testing.T) {
	assert.Equal(t, domain.LevelCritical, LevelForScore(0.75))
	assert.Equal(t, domain.LevelHigh, LevelForScore(0.74))
	assert.Equal(t, domain.LevelHigh, LevelForScore(0.55))
	assert.Equal(t, domain.LevelMedium, LevelForScore(0.35))
	assert.Equal(t, domain.LevelLow, LevelForScore(0.34))
	assert.Equal(t, domain.LevelLow, LevelForScore(0))
}

func TestPearson(t *testing.T) {
	assert.InDelta(t, 1, Pearson([]float64{1, 2, 3}, []float64{2, 4, 6}), 1e-12)
	assert.InDelta(t, -1, Pearson([]float64{1, 2, 3}, []float64{6, 4, 2}), 1e-12)
	assert.Equal(t, 0.0, Pearson([]float64{1, 2, 3}, []float64{5, 5, 5}))
	assert.Equal(t, 0.0, Pearson([]float64{1}, []float64{1}))
	assert.Equal(t, 0.0, Pearson([]float64{1, 2}, []float64{1}))
	assert.Equal(t, 0.0, Pearson([]float64{1, 2}, []float64{3, 7}), "two points always line up")
}

func population() []domain.EntityProfile {
	mk := func(id, party, state string, total float64, tx, suppliers int, top float64) domain.EntityProfile {
		return Derive(domain.EntityProfile{
			ID:               id,
			Party:            party,
			State:            state,
			TotalSpending:    total,
			TransactionCount: tx,
			AvgTicket:        total / float64(tx),
			SupplierCount:    suppliers,
			TopSuppliers: []domain.SupplierShare{
				{Name: "a", SharePct: top},
				{Name: "b", SharePct: 100 - top},
			},
			RoundValuePct: top / 4,
			LeadingDigits: [9]int{30, 18, 12, 10, 8, 7, 6, 5, 4},
		})
	}
	return []domain.EntityProfile{
		mk("1", "PA", "SP", 100000, 200, 40, 30),
		mk("2", "PA", "RJ", 200000, 180, 20, 55),
		mk("3", "PB", "SP", 300000, 150, 10, 70),
		mk("4", "PB", "MG", 400000, 120, 5, 90),
	}
}

func TestCorrelationMatrix(t *testing.T) {
	defs := DefaultMetrics()
	m := CorrelationMatrix(population(), defs)

	require.Len(t, m, len(defs))
	for i := range m {
		assert.Equal(t, 1.0, m[i][i])
		for j := range m[i] {
			assert.Equal(t, m[i][j], m[j][i])
			assert.LessOrEqual(t, math.Abs(m[i][j]), 1.0)
		}
	}

	// benfordChi2 is identical for everyone
	bi := indexOf(MetricIDs(defs), MetricBenfordChi2)
	si := indexOf(MetricIDs(defs), MetricTotalSpending)
	assert.Equal(t, 0.0, m[bi][si])
}

func TestCorrelationMatrixSmallPopulation(t *testing.T) {
	defs := DefaultMetrics()
	m := CorrelationMatrix(population()[:2], defs)

	for i := range m {
		for j := range m[i] {
			if i == j {
				assert.Equal(t, 1.0, m[i][j])
			} else {
				assert.Equal(t, 0.0, m[i][j])
			}
		}
	}
	assert.Empty(t, StrongCorrelations(m, MetricIDs(defs), 10))
}

func TestStrongCorrelations(t *testing.T) {
	ids := []string{"a", "b", "c"}
	m := [][]float64{
		{1, 0.5, -0.9},
		{0.5, 1, 0.2},
		{-0.9, 0.2, 1},
	}
	got := StrongCorrelations(m, ids, 10)
	require.Len(t, got, 2)
	assert.Equal(t, domain.CorrelationCell{Row: "a", Col: "c", Coefficient: -0.9}, got[0])
	assert.Equal(t, domain.CorrelationCell{Row: "a", Col: "b", Coefficient: 0.5}, got[1])

	assert.Len(t, StrongCorrelations(m, ids, 1), 1)
}

func TestGroupAverages(t *testing.T) {
	pop := population()
	var def MetricDefinition
	for _, d := range DefaultMetrics() {
		if d.ID == MetricTotalSpending {
			def = d
		}
	}
	g := NewGroupAverages(pop, def)

	assert.InDelta(t, 250000, g.Global, 1e-9)
	assert.InDelta(t, 150000, g.PartyAvg("PA"), 1e-9)
	assert.InDelta(t, 200000, g.StateAvg("SP"), 1e-9)
	assert.InDelta(t, 250000, g.PartyAvg("NONE"), 1e-9)

	b := g.Benchmark(MetricTotalSpending, 300000, "PB", "SP")
	assert.InDelta(t, -14.2857, b.VsPartyPct, 1e-3)
	assert.InDelta(t, 50, b.VsStatePct, 1e-9)
}

func TestPctDiffAndBenchmarkScore(t *testing.T) {
	assert.Equal(t, 50.0, PctDiff(150, 100))
	assert.Equal(t, 0.0, PctDiff(150, 0))
	assert.Equal(t, 40.0, BenchmarkAnomalyScore(domain.Benchmark{VsPartyPct: 50, VsStatePct: -30}))
}

func expense(supplier string, amount string, date string) *domain.Expense {
	e := &domain.Expense{
		SupplierName:     supplier,
		SupplierDocument: supplier + "-doc",
		Amount:           decimal.RequireFromString(amount),
	}
	if date != "" {
		e.IssuedAt, _ = time.Parse("2006-01-02", date)
	}
	return e
}

func TestDetectDuplicates(t *testing.T) {
	ledger := []*domain.Expense{
		expense("acme", "1500.00", "2024-03-01"),
		expense("acme", "1500", "2024-03-01"), // exact, different scale
		expense("acme", "1500.00", "2024-03-04"), // near, 3 days later
		expense("acme", "1500.00", "2024-03-20"), // too far
		expense("other", "1500.00", "2024-03-01"), // different supplier
		expense("acme", "87.35", "2024-03-02"),
		expense("acme", "42.10", ""),
	}

	got := DetectDuplicates(ledger)
	assert.Equal(t, 1, got.ExactDuplicateCount)
	assert.Equal(t, 1, got.NearDuplicateCount)
	assert.InDelta(t, 5.0/7*100, got.DuplicateValueSharePct, 1e-9)
	assert.Equal(t, 1500.0, got.LargestDuplicatedAmount)
}

func TestDetectDuplicatesClean(t *testing.T) {
	got := DetectDuplicates([]*domain.Expense{
		expense("a", "10.00", "2024-01-01"),
		expense("b", "20.00", "2024-01-01"),
	})
	assert.Equal(t, domain.DuplicateProfile{}, got)
	assert.Equal(t, domain.DuplicateProfile{}, DetectDuplicates(nil))
}

func TestIsRoundAmount(t *testing.T) {
	assert.True(t, IsRoundAmount(decimal.RequireFromString("500.00")))
	assert.True(t, IsRoundAmount(decimal.NewFromInt(1200)))
	assert.False(t, IsRoundAmount(decimal.RequireFromString("500.01")))
	assert.False(t, IsRoundAmount(decimal.NewFromInt(150)))
	assert.False(t, IsRoundAmount(decimal.Zero))
	assert.False(t, IsRoundAmount(decimal.NewFromInt(-100)))
}

func TestAnalyzeTiming(t *testing.T) {
	got := AnalyzeTiming([]*domain.Expense{
		expense("a", "1", "2024-03-30"), // saturday, last week
		expense("a", "1", "2024-03-31"), // sunday, last day
		expense("a", "1", "2024-03-04"), // monday
		expense("a", "1", ""),
	})
	require.NotNil(t, got)
	assert.Equal(t, 3, got.DatedTransactions)
	assert.InDelta(t, 200.0/3, got.WeekendPct, 1e-9)
	assert.InDelta(t, 200.0/3, got.LastWeekPct, 1e-9)
	assert.InDelta(t, 100.0/3, got.LastDayPct, 1e-9)

	assert.Nil(t, AnalyzeTiming([]*domain.Expense{expense("a", "1", "")}))
}

func TestDeriveDoesNotMutate(t *testing.T) {
	p := domain.EntityProfile{TopSuppliers: []domain.SupplierShare{{SharePct: 100}}}
	d := Derive(p)
	assert.Equal(t, 10000.0, d.HHI.Value)
	assert.Equal(t, 0.0, p.HHI.Value)
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

func TestSummarize(t *testing.T) {
	profiles := []domain.EntityProfile{
		{
			ID: "1", Party: "PA", State: "SP", TotalSpending: 1000.10, TransactionCount: 3,
			TopSuppliers: []domain.SupplierShare{
				{Name: "Gráfica", Document: "111", Value: 700.10},
				{Name: "Posto", Document: "222", Value: 300},
			},
			ByMonth: []domain.Breakdown{
				{Label: "2024-02", Value: 600.10, TransactionCount: 2},
				{Label: "2024-01", Value: 400, TransactionCount: 1},
			},
			ByCategory: []domain.Breakdown{
				{Label: "DIVULGAÇÃO", Value: 700.10, TransactionCount: 2},
				{Label: "COMBUSTÍVEIS", Value: 300, TransactionCount: 1},
			},
		},
		{
			ID: "2", Party: "PA", State: "RJ", TotalSpending: 500.20, TransactionCount: 2,
			TopSuppliers: []domain.SupplierShare{
				{Name: "Gráfica LTDA", Document: "111", Value: 400},
				{Name: "Taxi sem CNPJ", Value: 100.20},
			},
			ByMonth: []domain.Breakdown{
				{Label: "2024-03", Value: 500.20, TransactionCount: 2},
			},
			ByCategory: []domain.Breakdown{
				{Label: "COMBUSTÍVEIS", Value: 500.20, TransactionCount: 2},
			},
		},
		{
			ID: "3", Party: "PB", State: "SP", TotalSpending: 200, TransactionCount: 1,
			ByMonth:    []domain.Breakdown{{Label: "2024-01", Value: 200, TransactionCount: 1}},
			ByCategory: []domain.Breakdown{{Label: "DIVULGAÇÃO", Value: 200, TransactionCount: 1}},
		},
	}

	got := Summarize(profiles)

	assert.Equal(t, 6, got.Meta.TotalTransactions)
	assert.Equal(t, 1700.30, got.Meta.TotalSpending)
	assert.Equal(t, 3, got.Meta.TotalDeputies)
	assert.Equal(t, 3, got.Meta.TotalSuppliers, "same document counts once, undocumented falls back to name")
	assert.Equal(t, domain.Period{Start: "2024-01", End: "2024-03"}, got.Meta.Period)

	require.Len(t, got.ByMonth, 3)
	assert.Equal(t, domain.Breakdown{Label: "2024-01", Value: 600, TransactionCount: 2}, got.ByMonth[0])

	require.Len(t, got.ByCategory, 2)
	assert.Equal(t, "DIVULGAÇÃO", got.ByCategory[0].Category)
	assert.Equal(t, 900.10, got.ByCategory[0].Value)
	assert.InDelta(t, 100, got.ByCategory[0].Pct+got.ByCategory[1].Pct, 0.011)

	require.Len(t, got.ByParty, 2)
	assert.Equal(t, domain.GroupTotal{Group: "PA", Value: 1500.30, DeputyCount: 2, AvgPerDeputy: 750.15}, got.ByParty[0])
	assert.Equal(t, domain.GroupTotal{Group: "PB", Value: 200, DeputyCount: 1, AvgPerDeputy: 200}, got.ByParty[1])

	require.Len(t, got.ByState, 2)
	assert.Equal(t, "SP", got.ByState[0].Group)
	assert.Equal(t, 600.05, got.ByState[0].AvgPerDeputy)
}

func TestSummarizeEmpty(t *testing.T) {
	got := Summarize(nil)
	assert.Zero(t, got.Meta.TotalSpending)
	assert.Equal(t, domain.Period{}, got.Meta.Period)
	assert.NotNil(t, got.ByMonth)
	assert.Empty(t, got.ByParty)
}
