//go:build integration
// +build integration

// Package integration provides end-to-end tests against a running Sentinela
// server.
//
// These tests drive the complete pipeline over HTTP:
//
//	Ledger → Snapshot → Rules + Risk score → Ranking → Published assessment
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// Every test writes to its own dataset (X-Dataset-ID), so runs never see
// each other's ledgers. Point SENTINELA_TEST_URL at the server; it defaults
// to http://localhost:8080.
//
// LEDGER USED BY THE SCENARIOS:
//
// | Entity      | Lines | Suppliers | Amounts             | Expected level |
// |-------------|-------|-----------|---------------------|----------------|
// | concentrado | 30    | 1         | R$ 3000,00 each     | CRITICO        |
// | diverso-N   | 40    | 12        | spread, non-round   | not CRITICO    |
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

// TestConfig holds test environment configuration
type TestConfig struct {
	BaseURL string
}

func getTestConfig() TestConfig {
	baseURL := os.Getenv("SENTINELA_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return TestConfig{BaseURL: baseURL}
}

// ============================================================================
// API types (matching Sentinela's API contract)
// ============================================================================

type Expense struct {
	EntityID         string    `json:"entityId"`
	EntityName       string    `json:"entityName"`
	EntityDocument   string    `json:"entityDocument"`
	Party            string    `json:"party"`
	State            string    `json:"state"`
	SupplierName     string    `json:"supplierName"`
	SupplierDocument string    `json:"supplierDocument"`
	Category         string    `json:"category"`
	Amount           string    `json:"amount"`
	IssuedAt         time.Time `json:"issuedAt"`
	Year             int       `json:"year"`
	Month            int       `json:"month"`
}

type EntityReport struct {
	EntityID      string   `json:"entityId"`
	RiskScore     float64  `json:"riskScore"`
	RiskLevel     string   `json:"riskLevel"`
	RedFlags      []string `json:"redFlags"`
	SeverityScore int      `json:"severityScore"`
	AnomalyCount  int      `json:"anomalyCount"`
	HHI           struct {
		Value float64 `json:"value"`
		Level string  `json:"level"`
	} `json:"hhi"`
}

type Assessment struct {
	ID                 string         `json:"id"`
	DatasetID          string         `json:"datasetId"`
	InputHash          string         `json:"inputHash"`
	RulesHash          string         `json:"rulesHash"`
	MethodologyVersion string         `json:"methodologyVersion"`
	Entities           []EntityReport `json:"entities"`
	LevelCounts        map[string]int `json:"levelCounts"`
	Metrics            []string       `json:"metrics"`
	CorrelationMatrix  [][]float64    `json:"correlationMatrix"`
	Metadata           struct {
		CacheHit bool `json:"cacheHit"`
	} `json:"metadata"`
}

// ============================================================================
// Test helpers
// ============================================================================

func newDataset(t *testing.T) string {
	t.Helper()
	return "it-" + uuid.New().String()[:8]
}

func call(t *testing.T, cfg TestConfig, method, path, dataset string, body any, out any) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request: %v", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, cfg.BaseURL+path, reader)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if dataset != "" {
		req.Header.Set("X-Dataset-ID", dataset)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	if out != nil && resp.StatusCode < 300 {
		if err := json.Unmarshal(respBody, out); err != nil {
			t.Fatalf("Failed to unmarshal response: %v (body: %s)", err, string(respBody))
		}
	}
	return resp.StatusCode
}

func ledger() []Expense {
	var out []Expense
	add := func(entity, party, supplier, amount string, day int) {
		out = append(out, Expense{
			EntityID:         entity,
			EntityName:       "Deputado " + entity,
			EntityDocument:   "cpf-" + entity,
			Party:            party,
			State:            "MG",
			SupplierName:     "Fornecedor " + supplier,
			SupplierDocument: supplier,
			Category:         "LOCAÇÃO DE VEÍCULOS",
			Amount:           amount,
			IssuedAt:         time.Date(2024, 5, day, 0, 0, 0, 0, time.UTC),
			Year:             2024,
			Month:            5,
		})
	}
	for i := 0; i < 30; i++ {
		add("concentrado", "PA", "UNICO", "3000.00", 1+i%28)
	}
	for e := 0; e < 5; e++ {
		for i := 0; i < 40; i++ {
			add(fmt.Sprintf("diverso-%d", e), "PB", fmt.Sprintf("F%02d", i%12),
				fmt.Sprintf("%d.37", 1000+i*137%2000), 1+i%28)
		}
	}
	return out
}

func seedAndAssess(t *testing.T, cfg TestConfig, dataset string) Assessment {
	t.Helper()
	if code := call(t, cfg, http.MethodPost, "/expenses", dataset, map[string]any{"expenses": ledger()}, nil); code != http.StatusCreated {
		t.Fatalf("Expected 201 from /expenses, got %d", code)
	}
	var a Assessment
	if code := call(t, cfg, http.MethodPost, "/assessments", dataset, nil, &a); code != http.StatusOK {
		t.Fatalf("Expected 200 from /assessments, got %d", code)
	}
	return a
}

// ============================================================================
// SCENARIO 1: Concentrated spending is ranked first and flagged critical
// ============================================================================

func TestConcentratedEntity_RankedCritical(t *testing.T) {
	/*
	   SCENARIO: one deputy pays every reimbursement to a single supplier.

	   EXPECTED BEHAVIOR:
	   - HHI = 10000 (one supplier holds 100%) → base risk 0.9 → CRITICO
	   - hhi-critical and single-supplier fire, so the severity score leads
	   - diversified deputies stay below CRITICO
	*/
	cfg := getTestConfig()
	dataset := newDataset(t)

	a := seedAndAssess(t, cfg, dataset)

	if len(a.Entities) != 6 {
		t.Fatalf("Expected 6 entities, got %d", len(a.Entities))
	}
	top := a.Entities[0]
	if top.EntityID != "concentrado" {
		t.Errorf("Expected concentrado ranked first, got %s", top.EntityID)
	}
	if top.RiskLevel != "CRITICO" || top.HHI.Value != 10000 {
		t.Errorf("Expected CRITICO with HHI 10000, got %s / %.0f", top.RiskLevel, top.HHI.Value)
	}
	for _, e := range a.Entities[1:] {
		if e.RiskLevel == "CRITICO" {
			t.Errorf("Diversified entity %s should not be CRITICO", e.EntityID)
		}
	}
	if a.LevelCounts["CRITICO"] != 1 {
		t.Errorf("Expected exactly one CRITICO, got %d", a.LevelCounts["CRITICO"])
	}

	t.Logf("✓ concentrado ranked first: score=%.2f flags=%v", top.RiskScore, top.RedFlags)
}

// ============================================================================
// SCENARIO 2: Re-assessing an unchanged ledger reuses the cached result
// ============================================================================

func TestUnchangedLedger_CacheHit(t *testing.T) {
	cfg := getTestConfig()
	dataset := newDataset(t)

	first := seedAndAssess(t, cfg, dataset)

	var second Assessment
	call(t, cfg, http.MethodPost, "/assessments", dataset, nil, &second)
	if !second.Metadata.CacheHit || second.ID != first.ID {
		t.Errorf("Expected cached assessment %s, got %s (cacheHit=%v)", first.ID, second.ID, second.Metadata.CacheHit)
	}
}

// ============================================================================
// SCENARIO 3: Reads bind to the published assessment
// ============================================================================

func TestReadEndpoints(t *testing.T) {
	cfg := getTestConfig()
	dataset := newDataset(t)
	a := seedAndAssess(t, cfg, dataset)

	var latest Assessment
	if code := call(t, cfg, http.MethodGet, "/assessments/latest", dataset, nil, &latest); code != http.StatusOK || latest.ID != a.ID {
		t.Errorf("Expected latest %s, got %s (status %d)", a.ID, latest.ID, code)
	}

	var report EntityReport
	if code := call(t, cfg, http.MethodGet, "/entities/concentrado", dataset, nil, &report); code != http.StatusOK {
		t.Errorf("Expected 200 for entity, got %d", code)
	}
	if len(report.RedFlags) == 0 {
		t.Error("Expected red flags for concentrado")
	}

	var corr struct {
		Metrics []string    `json:"metrics"`
		Matrix  [][]float64 `json:"matrix"`
	}
	call(t, cfg, http.MethodGet, "/correlations", dataset, nil, &corr)
	for i := range corr.Matrix {
		if corr.Matrix[i][i] != 1 {
			t.Errorf("Expected unit diagonal at %d, got %f", i, corr.Matrix[i][i])
		}
	}

	if code := call(t, cfg, http.MethodGet, "/entities", newDataset(t), nil, nil); code != http.StatusNotFound {
		t.Errorf("Expected 404 for an empty dataset, got %d", code)
	}
}

// ============================================================================
// SCENARIO 4: A custom rule changes the rule set and forces a new run
// ============================================================================

func TestCustomRule_Reassesses(t *testing.T) {
	cfg := getTestConfig()
	dataset := newDataset(t)
	first := seedAndAssess(t, cfg, dataset)

	rule := map[string]any{
		"id":         "it-" + strings.ToLower(dataset),
		"label":      "Integration rule",
		"expression": "supplier_count == 1",
		"severity":   "low",
		"enabled":    true,
	}
	if code := call(t, cfg, http.MethodPost, "/rules", dataset, rule, nil); code != http.StatusCreated {
		t.Fatalf("Expected 201 creating rule, got %d", code)
	}

	var second Assessment
	call(t, cfg, http.MethodPost, "/assessments", dataset, nil, &second)
	if second.Metadata.CacheHit {
		t.Error("Expected a fresh assessment after adding a rule")
	}
	if second.RulesHash == first.RulesHash {
		t.Error("Expected the rules hash to change")
	}
	if second.Entities[0].AnomalyCount <= first.Entities[0].AnomalyCount {
		t.Errorf("Expected the new rule to fire for concentrado")
	}
}

// ============================================================================
// SCENARIO 5: Methodology is published
// ============================================================================

func TestMethodology(t *testing.T) {
	cfg := getTestConfig()

	var m struct {
		Version    string             `json:"version"`
		Thresholds map[string]float64 `json:"thresholds"`
	}
	if code := call(t, cfg, http.MethodGet, "/methodology", "", nil, &m); code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if m.Thresholds["hhiCritical"] != 3000 || m.Thresholds["benfordCritical01"] != 20.09 {
		t.Errorf("Unexpected thresholds: %v", m.Thresholds)
	}
}
