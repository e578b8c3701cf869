package ingest

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/opensource-finance/sentinela/internal/analytics"
	"github.com/opensource-finance/sentinela/internal/domain"
)

// Options controls snapshot filtering.
type Options struct {
	MinSpending     float64
	MinTransactions int
}

// DefaultOptions mirrors the activity filter used for published snapshots.
func DefaultOptions() Options {
	return Options{
		MinSpending:     analytics.MinActiveSpending,
		MinTransactions: analytics.MinActiveTransactions,
	}
}

// BuildSnapshot aggregates a ledger into an immutable snapshot. Leadership
// rows (no CPF, only when the ledger carries CPFs at all) and inactive
// entities are dropped and counted. Profiles are ordered by id.
func BuildSnapshot(datasetID string, ledger []*domain.Expense, opts Options) *domain.Snapshot {
	snap := &domain.Snapshot{
		ID:         uuid.New().String(),
		DatasetID:  datasetID,
		CapturedAt: time.Now().UTC(),
	}

	hasDocuments := false
	for _, e := range ledger {
		if e != nil && e.EntityDocument != "" {
			hasDocuments = true
			break
		}
	}

	byEntity := make(map[string][]*domain.Expense)
	leadership := make(map[string]struct{})
	for _, e := range ledger {
		if e == nil {
			continue
		}
		if hasDocuments && e.EntityDocument == "" {
			leadership[e.EntityName] = struct{}{}
			continue
		}
		byEntity[e.EntityID] = append(byEntity[e.EntityID], e)
	}
	snap.DroppedLeadership = len(leadership)

	ids := make([]string, 0, len(byEntity))
	for id := range byEntity {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		p := BuildProfile(id, byEntity[id])
		if p.TotalSpending < opts.MinSpending || p.TransactionCount < opts.MinTransactions {
			snap.DroppedInactive++
			continue
		}
		snap.Profiles = append(snap.Profiles, p)
	}
	return snap
}

// BuildProfile aggregates one entity's ledger lines.
func BuildProfile(id string, lines []*domain.Expense) domain.EntityProfile {
	p := domain.EntityProfile{ID: id, TransactionCount: len(lines)}
	if len(lines) == 0 {
		return p
	}

	total := decimal.Zero
	names := make(map[string]int)
	parties := make(map[string]int)
	states := make(map[string]int)

	type bucket struct {
		name  string
		doc   string
		value decimal.Decimal
		count int
	}
	suppliers := make(map[string]*bucket)
	categories := make(map[string]*bucket)
	months := make(map[string]*bucket)
	add := func(m map[string]*bucket, key, name, doc string, amount decimal.Decimal) {
		b, ok := m[key]
		if !ok {
			b = &bucket{name: name, doc: doc}
			m[key] = b
		}
		b.value = b.value.Add(amount)
		b.count++
	}

	round := 0
	for _, e := range lines {
		total = total.Add(e.Amount)
		names[e.EntityName]++
		parties[e.Party]++
		states[e.State]++

		add(suppliers, e.SupplierKey(), e.SupplierName, e.SupplierDocument, e.Amount)
		add(categories, e.Category, e.Category, "", e.Amount)
		if period := e.Period(); period != "" {
			add(months, period, period, "", e.Amount)
		}

		if analytics.IsRoundAmount(e.Amount) {
			round++
		}
		if e.Amount.IsPositive() {
			if d := analytics.LeadingDigit(e.Amount.InexactFloat64()); d > 0 {
				p.LeadingDigits[d-1]++
			}
		}
	}

	p.Name = mode(names)
	p.Party = mode(parties)
	p.State = mode(states)
	p.TotalSpending = total.InexactFloat64()
	p.AvgTicket = total.Div(decimal.NewFromInt(int64(len(lines)))).InexactFloat64()
	p.SupplierCount = len(suppliers)
	p.RoundValuePct = float64(round) / float64(len(lines)) * 100

	p.TopSuppliers = make([]domain.SupplierShare, 0, len(suppliers))
	for _, b := range suppliers {
		share := 0.0
		if total.IsPositive() {
			share = b.value.Div(total).Mul(decimal.NewFromInt(100)).InexactFloat64()
		}
		p.TopSuppliers = append(p.TopSuppliers, domain.SupplierShare{
			Name:     b.name,
			Document: b.doc,
			Value:    b.value.InexactFloat64(),
			SharePct: share,
		})
	}
	sort.Slice(p.TopSuppliers, func(i, j int) bool {
		a, b := p.TopSuppliers[i], p.TopSuppliers[j]
		if a.Value != b.Value {
			return a.Value > b.Value
		}
		return a.Name < b.Name
	})

	toBreakdown := func(m map[string]*bucket) []domain.Breakdown {
		out := make([]domain.Breakdown, 0, len(m))
		for _, b := range m {
			out = append(out, domain.Breakdown{Label: b.name, Value: b.value.InexactFloat64(), TransactionCount: b.count})
		}
		return out
	}
	p.ByCategory = toBreakdown(categories)
	sort.Slice(p.ByCategory, func(i, j int) bool {
		if p.ByCategory[i].Value != p.ByCategory[j].Value {
			return p.ByCategory[i].Value > p.ByCategory[j].Value
		}
		return p.ByCategory[i].Label < p.ByCategory[j].Label
	})
	p.ByMonth = toBreakdown(months)
	sort.Slice(p.ByMonth, func(i, j int) bool { return p.ByMonth[i].Label < p.ByMonth[j].Label })

	p.Timing = analytics.AnalyzeTiming(lines)
	dup := analytics.DetectDuplicates(lines)
	p.Duplicates = &dup
	return p
}

// mode returns the most frequent key, ties broken alphabetically.
func mode(counts map[string]int) string {
	best, bestN := "", -1
	for k, n := range counts {
		if n > bestN || (n == bestN && k < best) {
			best, bestN = k, n
		}
	}
	return best
}
