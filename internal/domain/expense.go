package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Expense is one reimbursed expense line from the CEAP ledger.
type Expense struct {
	// Core identifiers
	ID        string `json:"id"`
	DatasetID string `json:"datasetId"`

	// Legislator the expense is attributed to. EntityDocument is the CPF;
	// rows without one belong to party leadership accounts.
	EntityID       string `json:"entityId"`
	EntityName     string `json:"entityName"`
	EntityDocument string `json:"entityDocument,omitempty"`
	Party          string `json:"party"`
	State          string `json:"state"`

	// Supplier (CNPJ or CPF of the payee)
	SupplierName     string `json:"supplierName"`
	SupplierDocument string `json:"supplierDocument,omitempty"`

	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`

	// Temporal. IssuedAt may be zero when only the competence month is known.
	IssuedAt  time.Time `json:"issuedAt"`
	Year      int       `json:"year"`
	Month     int       `json:"month"`
	CreatedAt time.Time `json:"createdAt"`
}

// SupplierKey identifies the payee, preferring the document over the name.
func (e *Expense) SupplierKey() string {
	if e.SupplierDocument != "" {
		return e.SupplierDocument
	}
	return e.SupplierName
}

// Period returns the competence month as YYYY-MM. Without a valid month
// it falls back to the issue date, and to "" when neither is known.
func (e *Expense) Period() string {
	if e.Month >= 1 && e.Month <= 12 && e.Year != 0 {
		return time.Date(e.Year, time.Month(e.Month), 1, 0, 0, 0, 0, time.UTC).Format("2006-01")
	}
	if e.HasDate() {
		return e.IssuedAt.Format("2006-01")
	}
	return ""
}

// HasDate reports whether the exact issue date is known.
func (e *Expense) HasDate() bool {
	return !e.IssuedAt.IsZero()
}

// ExpenseRequest is the API payload for ingesting ledger lines.
type ExpenseRequest struct {
	Expenses []*Expense `json:"expenses"`
}
