// Package analytics is the stateless statistical core: supplier concentration,
// first-digit tests, outliers, risk scoring, correlations and peer benchmarks.
//
// Every function is pure. Degenerate input (empty populations, zero variance,
// zero denominators) yields a neutral value instead of an error.
package analytics

// MethodologyVersion changes whenever a threshold or formula below changes.
const MethodologyVersion = "2.0.0"

// Supplier concentration (HHI, percent units, range 0-10000).
const (
	HHIModerate = 1500.0
	HHIHigh     = 2500.0
	HHICritical = 3000.0
	HHIMax      = 10000.0
)

// First-digit test, chi-square with 8 degrees of freedom.
const (
	BenfordDegreesOfFreedom = 8
	BenfordCritical05       = 15.51 // p < 0.05
	BenfordCritical01       = 20.09 // p < 0.01
	BenfordMinSample        = 100   // below this the result is low confidence
)

// BenfordExpected is the expected first-digit share in percent, index 0 is digit 1.
var BenfordExpected = [9]float64{30.1, 17.6, 12.5, 9.7, 7.9, 6.7, 5.8, 5.1, 4.6}

// Benford levels.
const (
	BenfordNone        = "none"
	BenfordElevated    = "elevated"
	BenfordSignificant = "significant"
)

// Outlier z-score thresholds.
const (
	ZCritical       = 3.0
	ZHigh           = 2.0
	ZMedium         = 1.5
	OutlierZ        = 2.0
	MinOutlierGroup = 3
)

// Outlier severities.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
)

// Risk scoring: base score per HHI level, additive penalties, level cut-offs.
const (
	RiskBaseCritical = 0.9
	RiskBaseHigh     = 0.7
	RiskBaseMedium   = 0.4
	RiskBaseLow      = 0.2

	PenaltyBenford      = 0.15
	PenaltyRoundValues  = 0.10
	PenaltyTopSupplier  = 0.10
	PenaltyPartyOutlier = 0.08
	PenaltyStateOutlier = 0.08

	RiskRoundValuePct  = 20.0
	RiskTopSupplierPct = 50.0
	RiskPeerZ          = 2.0

	RiskLevelCritical = 0.75
	RiskLevelHigh     = 0.55
	RiskLevelMedium   = 0.35
)

// Anomaly rule thresholds. Baselines are the typical population values the
// thresholds are set against.
const (
	RoundValueThreshold    = 30.0
	RoundValueBaseline     = 10.0
	SingleSupplierShare    = 70.0
	MinSupplierDiversity   = 5
	HighAvgTicket          = 5000.0 // BRL
	WeekendElevated        = 15.0
	WeekendCritical        = 25.0
	WeekendBaseline        = 7.0
	MonthEndWeekThreshold  = 40.0
	MonthEndWeekBaseline   = 25.0
	MonthEndDayThreshold   = 10.0
	MonthEndDayBaseline    = 3.5
	ExactDuplicateMin      = 1
	NearDuplicateMin       = 3
	RecurringAmountShare   = 50.0
	RuleMinTransactions    = 10
	TimingMinTransactions  = 50
	NearDuplicateWindowDay = 7
)

// Correlations.
const (
	StrongCorrelation      = 0.3
	DefaultTopCorrelations = 10
)

// Peer benchmarks.
const (
	BenchmarkPartyWeight = 0.5
	BenchmarkStateWeight = 0.5
)

// Snapshot activity filter.
const (
	MinActiveSpending     = 50000.0
	MinActiveTransactions = 20
)

// RoundValueModulus: an amount is round when it is a whole multiple of this.
const RoundValueModulus = 100

// Thresholds returns every named constant, for publication alongside results.
func Thresholds() map[string]float64 {
	return map[string]float64{
		"hhiModerate":            HHIModerate,
		"hhiHigh":                HHIHigh,
		"hhiCritical":            HHICritical,
		"benfordCritical05":      BenfordCritical05,
		"benfordCritical01":      BenfordCritical01,
		"benfordMinSample":       BenfordMinSample,
		"zCritical":              ZCritical,
		"zHigh":                  ZHigh,
		"zMedium":                ZMedium,
		"outlierZ":               OutlierZ,
		"riskBaseCritical":       RiskBaseCritical,
		"riskBaseHigh":           RiskBaseHigh,
		"riskBaseMedium":         RiskBaseMedium,
		"riskBaseLow":            RiskBaseLow,
		"penaltyBenford":         PenaltyBenford,
		"penaltyRoundValues":     PenaltyRoundValues,
		"penaltyTopSupplier":     PenaltyTopSupplier,
		"penaltyPartyOutlier":    PenaltyPartyOutlier,
		"penaltyStateOutlier":    PenaltyStateOutlier,
		"riskLevelCritical":      RiskLevelCritical,
		"riskLevelHigh":          RiskLevelHigh,
		"riskLevelMedium":        RiskLevelMedium,
		"roundValueThreshold":    RoundValueThreshold,
		"singleSupplierShare":    SingleSupplierShare,
		"minSupplierDiversity":   MinSupplierDiversity,
		"highAvgTicket":          HighAvgTicket,
		"weekendElevated":        WeekendElevated,
		"weekendCritical":        WeekendCritical,
		"monthEndWeekThreshold":  MonthEndWeekThreshold,
		"monthEndDayThreshold":   MonthEndDayThreshold,
		"recurringAmountShare":   RecurringAmountShare,
		"nearDuplicateWindowDay": NearDuplicateWindowDay,
		"strongCorrelation":      StrongCorrelation,
		"minActiveSpending":      MinActiveSpending,
		"minActiveTransactions":  MinActiveTransactions,
	}
}
