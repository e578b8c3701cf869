package analytics

import (
	"sort"
	"time"

	"github.com/opensource-finance/sentinela/internal/domain"
	"github.com/shopspring/decimal"
)

var roundModulus = decimal.NewFromInt(RoundValueModulus)

// IsRoundAmount reports whether amount is a positive whole multiple of 100.
func IsRoundAmount(amount decimal.Decimal) bool {
	if !amount.IsPositive() {
		return false
	}
	return amount.Mod(roundModulus).IsZero()
}

// amountKey is the canonical form used to compare amounts exactly.
func amountKey(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DetectDuplicates scans one entity's ledger for repeated charges.
//
// An exact duplicate shares supplier, amount and issue date with an earlier
// line. A near duplicate shares supplier and amount with a line issued 1 to 7
// days before it. Undated lines only count towards the recurring-amount share.
func DetectDuplicates(ledger []*domain.Expense) domain.DuplicateProfile {
	var out domain.DuplicateProfile
	if len(ledger) == 0 {
		return out
	}

	// supplier|amount -> issue day -> lines
	groups := make(map[string]map[time.Time][]*domain.Expense)
	amountSeen := make(map[string]int)

	for _, e := range ledger {
		if e == nil {
			continue
		}
		ak := amountKey(e.Amount)
		amountSeen[ak]++
		if !e.HasDate() {
			continue
		}
		k := e.SupplierKey() + "|" + ak
		byDay, ok := groups[k]
		if !ok {
			byDay = make(map[time.Time][]*domain.Expense)
			groups[k] = byDay
		}
		d := day(e.IssuedAt)
		byDay[d] = append(byDay[d], e)
	}

	largest := decimal.Zero
	mark := func(e *domain.Expense) {
		if e.Amount.GreaterThan(largest) {
			largest = e.Amount
		}
	}

	for _, byDay := range groups {
		days := make([]time.Time, 0, len(byDay))
		for d := range byDay {
			days = append(days, d)
		}
		sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

		for i, d := range days {
			lines := byDay[d]
			if len(lines) > 1 {
				out.ExactDuplicateCount += len(lines) - 1
				mark(lines[0])
			}
			if i == 0 {
				continue
			}
			gap := int(d.Sub(days[i-1]).Hours() / 24)
			if gap >= 1 && gap <= NearDuplicateWindowDay {
				out.NearDuplicateCount += len(lines)
				mark(lines[0])
			}
		}
	}

	recurring, total := 0, 0
	for _, e := range ledger {
		if e == nil {
			continue
		}
		total++
		if amountSeen[amountKey(e.Amount)] > 1 {
			recurring++
		}
	}
	if total > 0 {
		out.DuplicateValueSharePct = float64(recurring) / float64(total) * 100
	}
	out.LargestDuplicatedAmount = largest.InexactFloat64()
	return out
}
