package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/sentinela/internal/analytics"
	"github.com/opensource-finance/sentinela/internal/assessment"
	"github.com/opensource-finance/sentinela/internal/bus"
	"github.com/opensource-finance/sentinela/internal/domain"
	"github.com/opensource-finance/sentinela/internal/ingest"
	"github.com/opensource-finance/sentinela/internal/metrics"
	"github.com/opensource-finance/sentinela/internal/repository"
	"github.com/opensource-finance/sentinela/internal/rules"
	"github.com/opensource-finance/sentinela/internal/worker"
)

// maxImportBytes bounds CSV uploads. A full yearly CEAP export is ~150MB.
const maxImportBytes = 256 << 20

// Handler holds dependencies for API handlers.
type Handler struct {
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	registry *rules.Registry
	worker   *worker.Worker
	store    *assessment.Store
	metrics  *metrics.Registry
	version  string

	configRules []domain.RuleConfig
}

// NewHandler creates a new API handler.
func NewHandler(deps Dependencies) *Handler {
	return &Handler{
		repo:     deps.Repo,
		cache:    deps.Cache,
		bus:      deps.Bus,
		registry: deps.Registry,
		worker:   deps.Worker,
		store:    deps.Store,
		metrics:  deps.Metrics,
		version:  deps.Version,

		configRules: deps.ConfigRules,
	}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready reports whether rules are loaded and assessments can run.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.registry == nil || h.registry.RulesCount() == 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"ready": "false",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// IngestExpenses persists a JSON batch of ledger lines and announces it.
func (h *Handler) IngestExpenses(w http.ResponseWriter, r *http.Request) {
	datasetID := GetDatasetID(r.Context())

	var req domain.ExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if len(req.Expenses) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "expenses must not be empty",
		})
		return
	}
	for i, e := range req.Expenses {
		if e == nil || e.EntityID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": fmt.Sprintf("expense %d: entityId is required", i),
			})
			return
		}
		if e.Month < 0 || e.Month > 12 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": fmt.Sprintf("expense %d: month must be between 1 and 12", i),
			})
			return
		}
		if e.Month == 0 && !e.HasDate() {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": fmt.Sprintf("expense %d: month or issuedAt is required", i),
			})
			return
		}
		e.DatasetID = datasetID
	}

	h.persist(w, r, datasetID, req.Expenses, nil)
}

// ImportCSV parses a CEAP export from the request body and persists it.
// The validation report is returned either way.
func (h *Handler) ImportCSV(w http.ResponseWriter, r *http.Request) {
	datasetID := GetDatasetID(r.Context())

	expenses, report, err := ingest.ParseCSV(http.MaxBytesReader(w, r.Body, maxImportBytes), datasetID)
	if err != nil && report == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}
	if err != nil || !report.Valid() {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":  "ledger failed validation",
			"report": report,
		})
		return
	}
	if len(expenses) == 0 {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"count":  0,
			"report": report,
		})
		return
	}

	h.persist(w, r, datasetID, expenses, report)
}

func (h *Handler) persist(w http.ResponseWriter, r *http.Request, datasetID string, expenses []*domain.Expense, report *ingest.Report) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}
	if err := h.repo.SaveExpenses(ctx, datasetID, expenses); err != nil {
		slog.Error("failed to save expenses", "dataset_id", datasetID, "count", len(expenses), "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save expenses",
		})
		return
	}
	h.metrics.AddExpenses(len(expenses))

	if h.bus != nil {
		event := domain.LedgerIngestedEvent{DatasetID: datasetID, Count: len(expenses)}
		if err := bus.PublishJSON(ctx, h.bus, datasetID, domain.TopicLedgerIngested, event); err != nil {
			slog.Error("failed to publish ledger event", "dataset_id", datasetID, "error", err)
		}
	}

	slog.Info("expenses ingested", "dataset_id", datasetID, "count", len(expenses))
	resp := map[string]interface{}{
		"datasetId": datasetID,
		"count":     len(expenses),
	}
	if report != nil {
		resp["report"] = report
	}
	writeJSON(w, http.StatusCreated, resp)
}

// RunAssessment assesses the dataset ledger now and returns the result.
func (h *Handler) RunAssessment(w http.ResponseWriter, r *http.Request) {
	if h.worker == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "worker not available",
		})
		return
	}

	res, err := h.worker.Run(r.Context(), GetDatasetID(r.Context()))
	if err != nil {
		slog.Error("assessment failed", "dataset_id", GetDatasetID(r.Context()), "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "assessment failed: " + err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, res.Assessment)
}

// current returns the published assessment for the request's dataset,
// loading the latest persisted one on a cold store. Handlers call it once
// so a concurrent publish cannot mix two runs in one response.
func (h *Handler) current(r *http.Request) *domain.Assessment {
	datasetID := GetDatasetID(r.Context())
	if a := h.store.Current(datasetID); a != nil {
		return a
	}
	if h.repo == nil {
		return nil
	}
	a, err := h.repo.LatestAssessment(r.Context(), datasetID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			slog.Error("failed to load latest assessment", "dataset_id", datasetID, "error", err)
		}
		return nil
	}
	h.store.Publish(a)
	return a
}

func writeNoAssessment(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "no assessment available, POST /assessments first",
	})
}

// LatestAssessment returns the current assessment.
func (h *Handler) LatestAssessment(w http.ResponseWriter, r *http.Request) {
	a := h.current(r)
	if a == nil {
		writeNoAssessment(w)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// GetAssessment retrieves an assessment run by ID.
func (h *Handler) GetAssessment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	datasetID := GetDatasetID(ctx)
	id := chi.URLParam(r, "id")

	if a := h.store.Current(datasetID); a != nil && a.ID == id {
		writeJSON(w, http.StatusOK, a)
		return
	}
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	a, err := h.repo.GetAssessment(ctx, datasetID, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "assessment not found",
			})
			return
		}
		slog.Error("failed to get assessment", "id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load assessment",
		})
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// ListEntities returns the ranked entity summaries of the current assessment.
// Optional filters: level, party, state, limit.
func (h *Handler) ListEntities(w http.ResponseWriter, r *http.Request) {
	a := h.current(r)
	if a == nil {
		writeNoAssessment(w)
		return
	}

	q := r.URL.Query()
	level := strings.ToUpper(q.Get("level"))
	party := strings.ToUpper(q.Get("party"))
	state := strings.ToUpper(q.Get("state"))
	limit := 0
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be a non-negative integer",
			})
			return
		}
		limit = n
	}

	out := make([]domain.EntitySummary, 0, len(a.Entities))
	for _, s := range a.Summaries() {
		if level != "" && s.RiskLevel != level {
			continue
		}
		if party != "" && strings.ToUpper(s.Party) != party {
			continue
		}
		if state != "" && strings.ToUpper(s.State) != state {
			continue
		}
		out = append(out, s)
		if limit > 0 && len(out) == limit {
			break
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"assessmentId": a.ID,
		"entities":     out,
		"count":        len(out),
		"levelCounts":  a.LevelCounts,
	})
}

// GetEntity returns the full report of one entity.
func (h *Handler) GetEntity(w http.ResponseWriter, r *http.Request) {
	a := h.current(r)
	if a == nil {
		writeNoAssessment(w)
		return
	}

	report, ok := a.Entity(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "entity not found",
		})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Correlations returns the metric correlation matrix and its strongest pairs.
func (h *Handler) Correlations(w http.ResponseWriter, r *http.Request) {
	a := h.current(r)
	if a == nil {
		writeNoAssessment(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"assessmentId": a.ID,
		"metrics":      a.Metrics,
		"matrix":       a.CorrelationMatrix,
		"strong":       a.StrongCorrelations,
		"threshold":    analytics.StrongCorrelation,
	})
}

// Aggregations serves the population totals and breakdowns of the current
// assessment.
func (h *Handler) Aggregations(w http.ResponseWriter, r *http.Request) {
	a := h.current(r)
	if a == nil {
		writeNoAssessment(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"assessmentId": a.ID,
		"timestamp":    a.Timestamp,
		"summary":      a.Summary,
	})
}

type metricInfo struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Direction string `json:"direction"`
}

// Methodology publishes the methodology version, every threshold and the
// canonical rule set, so results can be reproduced.
func (h *Handler) Methodology(w http.ResponseWriter, r *http.Request) {
	defs := analytics.DefaultMetrics()
	infos := make([]metricInfo, len(defs))
	for i, d := range defs {
		dir := "neutral"
		switch d.Direction {
		case analytics.HigherIsBad:
			dir = "higherIsBad"
		case analytics.LowerIsBad:
			dir = "lowerIsBad"
		}
		infos[i] = metricInfo{ID: d.ID, Label: d.Label, Direction: dir}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"version":    analytics.MethodologyVersion,
		"thresholds": analytics.Thresholds(),
		"metrics":    infos,
		"rules":      rules.CanonicalRules(),
	})
}

// ListRules returns the rules currently loaded in the registry.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loaded := h.registry.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules": loaded,
		"count": len(loaded),
	})
}

// GetRule retrieves a loaded rule by ID.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	for _, rule := range h.registry.GetLoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "rule not found",
	})
}

// CreateRuleRequest is the request body for creating a rule.
type CreateRuleRequest struct {
	ID              string          `json:"id"`
	Label           string          `json:"label"`
	Description     string          `json:"description,omitempty"`
	Version         string          `json:"version,omitempty"`
	Expression      string          `json:"expression"`
	Severity        domain.Severity `json:"severity"`
	MinTransactions int             `json:"minTransactions"`
	Enabled         bool            `json:"enabled"`
}

// CreateRule validates a rule, saves it for the dataset and, when enabled,
// loads it into the registry. Disabling a canonical rule takes effect on
// POST /rules/reload.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	datasetID := GetDatasetID(ctx)

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Label == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, label, and expression are required",
		})
		return
	}
	if !req.Severity.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "severity must be high, medium or low",
		})
		return
	}

	cfg := &domain.RuleConfig{
		ID:              req.ID,
		DatasetID:       datasetID,
		Label:           req.Label,
		Description:     req.Description,
		Version:         req.Version,
		Expression:      req.Expression,
		Severity:        req.Severity,
		MinTransactions: req.MinTransactions,
		Enabled:         req.Enabled,
	}

	if err := h.registry.ValidateRule(cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveRuleConfig(ctx, datasetID, cfg); err != nil {
			slog.Error("failed to save rule config", "id", cfg.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save rule",
			})
			return
		}
	}

	message := "Rule saved. Call POST /rules/reload to apply changes."
	if cfg.Enabled {
		if err := h.registry.LoadRule(cfg); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "failed to load rule: " + err.Error(),
			})
			return
		}
		message = "Rule saved and loaded."
	}

	slog.Info("rule created", "id", cfg.ID, "dataset_id", datasetID, "enabled", cfg.Enabled)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"rule":    cfg,
		"message": message,
	})
}

// ReloadRules replaces the loaded rules with the canonical set, then the
// configuration file's rules, then the dataset's stored rules. Cached
// assessments are keyed by the rule set too, so the next run reassesses.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	datasetID := GetDatasetID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	stored, err := h.repo.ListRuleConfigs(ctx, datasetID)
	if err != nil {
		slog.Error("failed to list rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	overrides := make([]*domain.RuleConfig, 0, len(h.configRules)+len(stored))
	for i := range h.configRules {
		cfg := h.configRules[i]
		overrides = append(overrides, &cfg)
	}
	overrides = append(overrides, stored...)

	if err := h.registry.ReloadRules(overrides); err != nil {
		slog.Error("failed to reload rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("rules reloaded",
		"dataset_id", datasetID,
		"configured", len(h.configRules),
		"stored", len(stored),
		"loaded", h.registry.RulesCount(),
	)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"stored":  len(stored),
		"count":   h.registry.RulesCount(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
