package analytics

import (
	"time"

	"github.com/opensource-finance/sentinela/internal/domain"
)

// AnalyzeTiming measures weekend and month-end issuance over the dated lines
// of a ledger. It returns nil when no line carries an issue date.
func AnalyzeTiming(ledger []*domain.Expense) *domain.TimingProfile {
	var dated, weekend, lastWeek, lastDay int
	for _, e := range ledger {
		if e == nil || !e.HasDate() {
			continue
		}
		dated++
		t := e.IssuedAt
		if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
			weekend++
		}
		dim := daysIn(t.Year(), t.Month())
		if t.Day() > dim-7 {
			lastWeek++
		}
		if t.Day() == dim {
			lastDay++
		}
	}
	if dated == 0 {
		return nil
	}
	n := float64(dated)
	return &domain.TimingProfile{
		DatedTransactions: dated,
		WeekendPct:        float64(weekend) / n * 100,
		LastWeekPct:       float64(lastWeek) / n * 100,
		LastDayPct:        float64(lastDay) / n * 100,
	}
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
