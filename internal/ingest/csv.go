// Package ingest turns raw CEAP ledger exports into expenses and aggregated
// entity profiles.
package ingest

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/sentinela/internal/domain"
)

// ErrInvalidRecord is returned when the file cannot be used at all.
var ErrInvalidRecord = errors.New("invalid ledger record")

// Report collects validation findings. Errors make the import fail;
// warnings are informational.
type Report struct {
	Rows     int      `json:"rows"`
	Accepted int      `json:"accepted"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Valid reports whether no blocking error was found.
func (r *Report) Valid() bool {
	return len(r.Errors) == 0
}

// columns holds header positions, -1 when absent.
type columns struct {
	name, value, fallbackV, year, month int
	cpf, ideCadastro, party, state      int
	supplier, supplierDoc, category     int
	issued                              int
}

func locate(header []string) (columns, []string) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(strings.Trim(h, "\ufeff\""))] = i
	}
	find := func(names ...string) int {
		for _, n := range names {
			if i, ok := idx[n]; ok {
				return i
			}
		}
		return -1
	}

	c := columns{
		name:        find("txNomeParlamentar", "nomeParlamentar"),
		value:       find("vlrLiquido", "vlrDocumento"),
		fallbackV:   find("vlrDocumento"),
		year:        find("numAno"),
		month:       find("numMes"),
		cpf:         find("cpf"),
		ideCadastro: find("ideCadastro"),
		party:       find("sgPartido"),
		state:       find("sgUF"),
		supplier:    find("txtFornecedor", "fornecedor"),
		supplierDoc: find("txtCNPJCPF"),
		category:    find("txtDescricao"),
		issued:      find("datEmissao"),
	}

	var missing []string
	if c.name < 0 {
		missing = append(missing, "Missing deputy name column (txNomeParlamentar or nomeParlamentar)")
	}
	if c.value < 0 {
		missing = append(missing, "Missing value column (vlrLiquido or vlrDocumento)")
	}
	if c.year < 0 {
		missing = append(missing, "Missing required column: numAno")
	}
	if c.month < 0 {
		missing = append(missing, "Missing required column: numMes")
	}
	return c, missing
}

// DetectSeparator guesses the field separator from the header line.
func DetectSeparator(header string) rune {
	if strings.Count(header, ";") > strings.Count(header, ",") {
		return ';'
	}
	return ','
}

// ParseCSV reads a CEAP export. Rows that cannot be parsed are skipped and
// reported as warnings; structural problems and invalid months are errors.
func ParseCSV(r io.Reader, datasetID string) ([]*domain.Expense, *Report, error) {
	br := bufio.NewReader(r)
	first, err := br.ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	if strings.TrimSpace(first) == "" {
		return nil, &Report{Warnings: []string{"Expense file is empty"}}, nil
	}

	reader := csv.NewReader(io.MultiReader(bytes.NewBufferString(first), br))
	reader.Comma = DetectSeparator(first)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	cols, missing := locate(header)
	report := &Report{}
	if len(missing) > 0 {
		report.Errors = missing
		return nil, report, fmt.Errorf("%w: %s", ErrInvalidRecord, strings.Join(missing, "; "))
	}

	var (
		out                                   []*domain.Expense
		negative, emptyDoc, nullName, badRows int
		invalidMonths                         int
		minYear, maxYear                      int
	)
	now := time.Now().UTC()

	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		report.Rows++
		if err != nil {
			badRows++
			continue
		}
		get := func(i int) string {
			if i < 0 || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}

		name := get(cols.name)
		if name == "" {
			nullName++
			continue
		}
		amount, ok := parseAmount(get(cols.value))
		if !ok && cols.fallbackV >= 0 && cols.fallbackV != cols.value {
			amount, ok = parseAmount(get(cols.fallbackV))
		}
		if !ok {
			badRows++
			continue
		}
		year, errY := strconv.Atoi(get(cols.year))
		month, errM := strconv.Atoi(get(cols.month))
		if errY != nil || errM != nil {
			badRows++
			continue
		}
		if month < 1 || month > 12 {
			invalidMonths++
			continue
		}
		if minYear == 0 || year < minYear {
			minYear = year
		}
		if year > maxYear {
			maxYear = year
		}
		if amount.IsNegative() {
			negative++
		}

		e := &domain.Expense{
			DatasetID:        datasetID,
			EntityName:       name,
			EntityDocument:   get(cols.cpf),
			Party:            get(cols.party),
			State:            get(cols.state),
			SupplierName:     get(cols.supplier),
			SupplierDocument: get(cols.supplierDoc),
			Category:         get(cols.category),
			Amount:           amount,
			Year:             year,
			Month:            month,
			CreatedAt:        now,
		}
		if e.SupplierDocument == "" {
			emptyDoc++
		}
		e.EntityID = firstNonEmpty(get(cols.ideCadastro), e.EntityDocument, name)
		if t, ok := parseDate(get(cols.issued)); ok {
			e.IssuedAt = t
		}
		out = append(out, e)
	}

	report.Accepted = len(out)
	if invalidMonths > 0 {
		report.Errors = append(report.Errors, fmt.Sprintf("Found %d records with invalid month values", invalidMonths))
	}
	if negative > 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("Found %d negative values", negative))
	}
	if nullName > 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("Found %d records without deputy name", nullName))
	}
	if badRows > 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("Skipped %d malformed records", badRows))
	}
	if emptyDoc > 0 && len(out) > 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("Found %d records with empty CNPJ (%.1f%%)",
			emptyDoc, float64(emptyDoc)/float64(len(out))*100))
	}
	if minYear != 0 && (minYear < 2000 || maxYear > 2030) {
		report.Warnings = append(report.Warnings, fmt.Sprintf("Unusual year range: %d-%d", minYear, maxYear))
	}

	if !report.Valid() {
		return out, report, fmt.Errorf("%w: %s", ErrInvalidRecord, strings.Join(report.Errors, "; "))
	}
	return out, report, nil
}

// parseAmount accepts "1234.56", "1234,56" and "1.234,56".
func parseAmount(s string) (decimal.Decimal, bool) {
	if s == "" {
		return decimal.Zero, false
	}
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func parseDate(s string) (time.Time, bool) {
	if len(s) < 10 {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", s[:10])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
