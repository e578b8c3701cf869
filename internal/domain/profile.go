package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Concentration levels, shared by HHI results and risk levels.
const (
	LevelCritical = "CRITICO"
	LevelHigh     = "ALTO"
	LevelMedium   = "MEDIO"
	LevelLow      = "BAIXO"
)

// EntityProfile is the aggregated spending profile of one legislator.
// Profiles are produced by ingestion and treated as read-only afterwards.
type EntityProfile struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Party string `json:"party"`
	State string `json:"state"`

	TotalSpending    float64 `json:"totalSpending"`
	TransactionCount int     `json:"transactionCount"`
	AvgTicket        float64 `json:"avgTicket"`
	SupplierCount    int     `json:"supplierCount"`

	// TopSuppliers is ordered by value, descending.
	TopSuppliers []SupplierShare `json:"topSuppliers"`
	ByCategory   []Breakdown     `json:"byCategory,omitempty"`
	ByMonth      []Breakdown     `json:"byMonth,omitempty"`

	RoundValuePct float64 `json:"roundValuePct"`

	// LeadingDigits holds counts of the first significant digit, index 0 is digit 1.
	LeadingDigits [9]int `json:"leadingDigits"`

	// Ledger-derived analyses; nil when the ledger was not available.
	Timing     *TimingProfile    `json:"timing,omitempty"`
	Duplicates *DuplicateProfile `json:"duplicates,omitempty"`

	// Optional enrichment.
	AttendanceRate *float64 `json:"attendanceRate,omitempty"`
	MandateCount   *int     `json:"mandateCount,omitempty"`

	// Derived by the assessment.
	HHI       HHIResult     `json:"hhi"`
	Benford   BenfordResult `json:"benford"`
	RiskScore float64       `json:"riskScore"`
	RiskLevel string        `json:"riskLevel"`
	RedFlags  []string      `json:"redFlags,omitempty"`
}

// TopSupplierPct is the share of the largest supplier, 0 when none.
func (p *EntityProfile) TopSupplierPct() float64 {
	if len(p.TopSuppliers) == 0 {
		return 0
	}
	return p.TopSuppliers[0].SharePct
}

// SupplierShares returns the share percentages of every listed supplier.
func (p *EntityProfile) SupplierShares() []float64 {
	shares := make([]float64, len(p.TopSuppliers))
	for i, s := range p.TopSuppliers {
		shares[i] = s.SharePct
	}
	return shares
}

// Attendance returns the attendance rate, defaulting to 0.
func (p *EntityProfile) Attendance() float64 {
	if p.AttendanceRate == nil {
		return 0
	}
	return *p.AttendanceRate
}

// Mandates returns the number of mandates, defaulting to 1.
func (p *EntityProfile) Mandates() int {
	if p.MandateCount == nil {
		return 1
	}
	return *p.MandateCount
}

// SupplierShare is one supplier's slice of an entity's spending.
type SupplierShare struct {
	Name     string  `json:"name"`
	Document string  `json:"document,omitempty"`
	Value    float64 `json:"value"`
	SharePct float64 `json:"sharePct"`
}

// Breakdown is a labelled spending bucket (category or month).
type Breakdown struct {
	Label            string  `json:"label"`
	Value            float64 `json:"value"`
	TransactionCount int     `json:"transactionCount"`
}

// HHIResult is the Herfindahl-Hirschman supplier concentration index.
type HHIResult struct {
	Value float64 `json:"value"`
	Level string  `json:"level"`
}

// BenfordResult is the first-digit goodness-of-fit result.
type BenfordResult struct {
	Chi2              float64    `json:"chi2"`
	PValue            float64    `json:"pValue"`
	Significant       bool       `json:"significant"`
	Level             string     `json:"level"`
	SampleSize        int        `json:"sampleSize"`
	LowConfidence     bool       `json:"lowConfidence"`
	Observed          [9]float64 `json:"observed"`
	PerDigitDeviation [9]float64 `json:"perDigitDeviation"`
}

// TimingProfile describes when in the week and month expenses were issued.
type TimingProfile struct {
	DatedTransactions int     `json:"datedTransactions"`
	WeekendPct        float64 `json:"weekendPct"`
	LastWeekPct       float64 `json:"lastWeekPct"`
	LastDayPct        float64 `json:"lastDayPct"`
}

// DuplicateProfile summarises repeated charges in an entity's ledger.
type DuplicateProfile struct {
	ExactDuplicateCount     int     `json:"exactDuplicateCount"`
	NearDuplicateCount      int     `json:"nearDuplicateCount"`
	DuplicateValueSharePct  float64 `json:"duplicateValueSharePct"`
	LargestDuplicatedAmount float64 `json:"largestDuplicatedAmount"`
}

// Snapshot is an immutable, ordered population of profiles.
type Snapshot struct {
	ID         string          `json:"id"`
	DatasetID  string          `json:"datasetId"`
	CapturedAt time.Time       `json:"capturedAt"`
	Profiles   []EntityProfile `json:"profiles"`

	// Counts of entities removed before analysis.
	DroppedInactive   int `json:"droppedInactive"`
	DroppedLeadership int `json:"droppedLeadership"`
}

// Hash returns a sha256 over the canonical JSON of the profiles.
// Two snapshots with the same profiles produce the same hash.
func (s *Snapshot) Hash() string {
	data, err := json.Marshal(s.Profiles)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
