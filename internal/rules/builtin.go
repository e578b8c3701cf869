package rules

import (
	"github.com/opensource-finance/sentinela/internal/analytics"
	"github.com/opensource-finance/sentinela/internal/domain"
)

// Canonical rule ids.
const (
	RuleHHICritical          = "hhi-critical"
	RuleHHIHigh              = "hhi-high"
	RuleBenfordSignificant   = "benford-significant"
	RuleBenfordElevated      = "benford-elevated"
	RuleRoundValues          = "round-values"
	RuleSingleSupplier       = "single-supplier"
	RuleLowSupplierDiversity = "low-supplier-diversity"
	RuleHighAvgTicket        = "high-avg-ticket"
	RuleWeekendElevated      = "weekend-elevated"
	RuleWeekendCritical      = "weekend-critical"
	RuleMonthEndWeek         = "month-end-week"
	RuleMonthEndDay          = "month-end-day"
	RuleDuplicateExact       = "duplicate-exact"
	RuleDuplicateNear        = "duplicate-near"
	RuleDuplicateRecurring   = "duplicate-recurring"
)

// CanonicalRules returns a fresh copy of the built-in anomaly rules, in
// registration order.
func CanonicalRules() []*domain.RuleConfig {
	general := analytics.RuleMinTransactions
	timing := analytics.TimingMinTransactions

	return []*domain.RuleConfig{
		canonical(RuleHHICritical, "Critical supplier concentration",
			"Spending is concentrated in very few suppliers (HHI above 3000).",
			"hhi > HHI_CRITICAL", domain.SeverityHigh, general),
		canonical(RuleHHIHigh, "High supplier concentration",
			"Supplier concentration between 2500 and 3000.",
			"hhi > HHI_HIGH && hhi <= HHI_CRITICAL", domain.SeverityMedium, general),
		canonical(RuleBenfordSignificant, "First digits deviate from Benford",
			"Leading-digit distribution departs from Benford's law at p < 0.01.",
			"benford_chi2 > BENFORD_CRITICAL_01", domain.SeverityHigh, general),
		canonical(RuleBenfordElevated, "First digits drift from Benford",
			"Leading-digit distribution departs from Benford's law at p < 0.05.",
			"benford_chi2 > BENFORD_CRITICAL_05 && benford_chi2 <= BENFORD_CRITICAL_01", domain.SeverityMedium, general),
		canonical(RuleRoundValues, "Many round amounts",
			"More than 30% of expenses are multiples of R$ 100 (typical is about 10%).",
			"round_value_pct > ROUND_VALUE_THRESHOLD", domain.SeverityMedium, general),
		canonical(RuleSingleSupplier, "Dominant supplier",
			"A single supplier received more than 70% of the spending.",
			"top_supplier_pct > SINGLE_SUPPLIER_SHARE", domain.SeverityHigh, general),
		canonical(RuleLowSupplierDiversity, "Few suppliers",
			"Fewer than 5 distinct suppliers.",
			"supplier_count < MIN_SUPPLIER_DIVERSITY", domain.SeverityLow, general),
		canonical(RuleHighAvgTicket, "High average ticket",
			"Average expense above R$ 5,000.",
			"avg_ticket > HIGH_AVG_TICKET", domain.SeverityMedium, general),
		canonical(RuleWeekendElevated, "Weekend expenses",
			"Between 15% and 25% of expenses issued on weekends (typical is about 7%).",
			"has_timing && weekend_pct > WEEKEND_ELEVATED && weekend_pct <= WEEKEND_CRITICAL", domain.SeverityMedium, timing),
		canonical(RuleWeekendCritical, "Frequent weekend expenses",
			"More than 25% of expenses issued on weekends.",
			"has_timing && weekend_pct > WEEKEND_CRITICAL", domain.SeverityHigh, timing),
		canonical(RuleMonthEndWeek, "Month-end clustering",
			"More than 40% of expenses issued in the last week of the month (typical is about 25%).",
			"has_timing && last_week_pct > MONTH_END_WEEK_THRESHOLD", domain.SeverityMedium, timing),
		canonical(RuleMonthEndDay, "Last-day clustering",
			"More than 10% of expenses issued on the last day of the month (typical is about 3.5%).",
			"has_timing && last_day_pct > MONTH_END_DAY_THRESHOLD", domain.SeverityHigh, timing),
		canonical(RuleDuplicateExact, "Exact duplicate charges",
			"Same supplier, amount and date charged more than once.",
			"has_duplicates && exact_duplicates >= EXACT_DUPLICATE_MIN", domain.SeverityHigh, general),
		canonical(RuleDuplicateNear, "Near-duplicate charges",
			"Same supplier and amount repeated within 7 days at least 3 times.",
			"has_duplicates && near_duplicates >= NEAR_DUPLICATE_MIN", domain.SeverityMedium, general),
		canonical(RuleDuplicateRecurring, "Recurring amounts",
			"More than half of the expenses repeat an amount seen elsewhere in the ledger.",
			"has_duplicates && recurring_amount_pct > RECURRING_AMOUNT_SHARE", domain.SeverityLow, general),
	}
}

func canonical(id, label, description, expr string, sev domain.Severity, minTx int) *domain.RuleConfig {
	return &domain.RuleConfig{
		ID:              id,
		Label:           label,
		Description:     description,
		Version:         analytics.MethodologyVersion,
		Expression:      expr,
		Severity:        sev,
		MinTransactions: minTx,
		Enabled:         true,
	}
}
