package analytics

import (
	"sort"

	"github.com/opensource-finance/sentinela/internal/domain"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

type summaryBucket struct {
	value   decimal.Decimal
	count   int
	members map[string]struct{}
}

func (b *summaryBucket) add(v float64, n int, member string) {
	b.value = b.value.Add(decimal.NewFromFloat(v))
	b.count += n
	if member != "" {
		if b.members == nil {
			b.members = make(map[string]struct{})
		}
		b.members[member] = struct{}{}
	}
}

// Summarize totals a population by month, category, party and state.
// Suppliers are counted once across the population, by document when known
// and by name otherwise. Money is summed in decimal and reported to cents.
func Summarize(profiles []domain.EntityProfile) domain.PopulationSummary {
	total := decimal.Zero
	transactions := 0
	suppliers := make(map[string]struct{})
	months := make(map[string]*summaryBucket)
	categories := make(map[string]*summaryBucket)
	parties := make(map[string]*summaryBucket)
	states := make(map[string]*summaryBucket)

	bucket := func(m map[string]*summaryBucket, key string) *summaryBucket {
		b, ok := m[key]
		if !ok {
			b = &summaryBucket{value: decimal.Zero}
			m[key] = b
		}
		return b
	}

	for i := range profiles {
		p := &profiles[i]
		total = total.Add(decimal.NewFromFloat(p.TotalSpending))
		transactions += p.TransactionCount

		for _, s := range p.TopSuppliers {
			key := s.Document
			if key == "" {
				key = s.Name
			}
			if key != "" {
				suppliers[key] = struct{}{}
			}
		}
		for _, b := range p.ByMonth {
			bucket(months, b.Label).add(b.Value, b.TransactionCount, "")
		}
		for _, b := range p.ByCategory {
			bucket(categories, b.Label).add(b.Value, b.TransactionCount, "")
		}
		bucket(parties, p.Party).add(p.TotalSpending, p.TransactionCount, p.ID)
		bucket(states, p.State).add(p.TotalSpending, p.TransactionCount, p.ID)
	}

	out := domain.PopulationSummary{
		Meta: domain.SummaryMeta{
			TotalTransactions: transactions,
			TotalSpending:     cents(total),
			TotalDeputies:     len(profiles),
			TotalSuppliers:    len(suppliers),
		},
		ByMonth:    make([]domain.Breakdown, 0, len(months)),
		ByCategory: make([]domain.CategoryTotal, 0, len(categories)),
		ByParty:    groupTotals(parties),
		ByState:    groupTotals(states),
	}

	for label, b := range months {
		out.ByMonth = append(out.ByMonth, domain.Breakdown{Label: label, Value: cents(b.value), TransactionCount: b.count})
	}
	sort.Slice(out.ByMonth, func(i, j int) bool { return out.ByMonth[i].Label < out.ByMonth[j].Label })
	if n := len(out.ByMonth); n > 0 {
		out.Meta.Period = domain.Period{Start: out.ByMonth[0].Label, End: out.ByMonth[n-1].Label}
	}

	var categoryTotal decimal.Decimal
	for _, b := range categories {
		categoryTotal = categoryTotal.Add(b.value)
	}
	for label, b := range categories {
		pct := 0.0
		if categoryTotal.IsPositive() {
			pct = b.value.Div(categoryTotal).Mul(hundred).Round(2).InexactFloat64()
		}
		out.ByCategory = append(out.ByCategory, domain.CategoryTotal{
			Category:         label,
			Value:            cents(b.value),
			TransactionCount: b.count,
			Pct:              pct,
		})
	}
	sort.Slice(out.ByCategory, func(i, j int) bool {
		a, b := out.ByCategory[i], out.ByCategory[j]
		if a.Value != b.Value {
			return a.Value > b.Value
		}
		return a.Category < b.Category
	})
	return out
}

// groupTotals orders groups by spending, descending, then by name.
func groupTotals(groups map[string]*summaryBucket) []domain.GroupTotal {
	out := make([]domain.GroupTotal, 0, len(groups))
	for name, b := range groups {
		n := len(b.members)
		avg := 0.0
		if n > 0 {
			avg = b.value.Div(decimal.NewFromInt(int64(n))).Round(2).InexactFloat64()
		}
		out = append(out, domain.GroupTotal{
			Group:        name,
			Value:        cents(b.value),
			DeputyCount:  n,
			AvgPerDeputy: avg,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].Group < out[j].Group
	})
	return out
}

func cents(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}
