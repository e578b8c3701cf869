// Package rules provides the CEL-Go based anomaly rule registry.
package rules

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/opensource-finance/sentinela/internal/analytics"
	"github.com/opensource-finance/sentinela/internal/domain"
)

// Registry holds compiled anomaly rules in registration order.
type Registry struct {
	mu    sync.RWMutex
	env   *cel.Env
	rules []*CompiledRule
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.RuleConfig
	Program cel.Program
}

// NewRegistry creates an empty registry. Rule expressions see the profile
// variables below and every threshold as a named constant.
func NewRegistry() (*Registry, error) {
	opts := []cel.EnvOption{
		cel.Variable("hhi", cel.DoubleType),
		cel.Variable("benford_chi2", cel.DoubleType),
		cel.Variable("benford_sample", cel.IntType),
		cel.Variable("round_value_pct", cel.DoubleType),
		cel.Variable("top_supplier_pct", cel.DoubleType),
		cel.Variable("supplier_count", cel.IntType),
		cel.Variable("avg_ticket", cel.DoubleType),
		cel.Variable("total_spending", cel.DoubleType),
		cel.Variable("transaction_count", cel.IntType),
		cel.Variable("party", cel.StringType),
		cel.Variable("state", cel.StringType),
		// Ledger-derived; has_* is false when the ledger was not available.
		cel.Variable("has_timing", cel.BoolType),
		cel.Variable("weekend_pct", cel.DoubleType),
		cel.Variable("last_week_pct", cel.DoubleType),
		cel.Variable("last_day_pct", cel.DoubleType),
		cel.Variable("has_duplicates", cel.BoolType),
		cel.Variable("exact_duplicates", cel.IntType),
		cel.Variable("near_duplicates", cel.IntType),
		cel.Variable("recurring_amount_pct", cel.DoubleType),
	}
	for name, v := range doubleConstants {
		opts = append(opts, cel.Constant(name, cel.DoubleType, types.Double(v)))
	}
	for name, v := range intConstants {
		opts = append(opts, cel.Constant(name, cel.IntType, types.Int(v)))
	}

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Registry{env: env}, nil
}

// NewDefaultRegistry creates a registry preloaded with the canonical rules.
func NewDefaultRegistry() (*Registry, error) {
	r, err := NewRegistry()
	if err != nil {
		return nil, err
	}
	if err := r.LoadRules(CanonicalRules()); err != nil {
		return nil, err
	}
	return r, nil
}

var doubleConstants = map[string]float64{
	"HHI_HIGH":                 analytics.HHIHigh,
	"HHI_CRITICAL":             analytics.HHICritical,
	"BENFORD_CRITICAL_05":      analytics.BenfordCritical05,
	"BENFORD_CRITICAL_01":      analytics.BenfordCritical01,
	"ROUND_VALUE_THRESHOLD":    analytics.RoundValueThreshold,
	"SINGLE_SUPPLIER_SHARE":    analytics.SingleSupplierShare,
	"HIGH_AVG_TICKET":          analytics.HighAvgTicket,
	"WEEKEND_ELEVATED":         analytics.WeekendElevated,
	"WEEKEND_CRITICAL":         analytics.WeekendCritical,
	"MONTH_END_WEEK_THRESHOLD": analytics.MonthEndWeekThreshold,
	"MONTH_END_DAY_THRESHOLD":  analytics.MonthEndDayThreshold,
	"RECURRING_AMOUNT_SHARE":   analytics.RecurringAmountShare,
}

var intConstants = map[string]int64{
	"MIN_SUPPLIER_DIVERSITY": analytics.MinSupplierDiversity,
	"EXACT_DUPLICATE_MIN":    analytics.ExactDuplicateMin,
	"NEAR_DUPLICATE_MIN":     analytics.NearDuplicateMin,
}

// ValidateRule compiles and validates a rule without mutating loaded rules.
func (r *Registry) ValidateRule(cfg *domain.RuleConfig) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	_, err := r.compileRule(cfg)
	return err
}

// LoadRule compiles and registers a rule. A rule with an existing id is
// replaced in place, keeping its position.
func (r *Registry) LoadRule(cfg *domain.RuleConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	compiled, err := r.compileRule(cfg)
	if err != nil {
		return err
	}

	// Copy on write: Evaluate iterates the old slice without holding the lock.
	next := make([]*CompiledRule, len(r.rules), len(r.rules)+1)
	copy(next, r.rules)
	for i, existing := range next {
		if existing.Config.ID == cfg.ID {
			next[i] = compiled
			r.rules = next
			return nil
		}
	}
	r.rules = append(next, compiled)
	return nil
}

// LoadRules compiles and loads multiple rules, skipping disabled ones.
func (r *Registry) LoadRules(configs []*domain.RuleConfig) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := r.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadRules replaces the loaded set with the canonical rules followed by
// configs. Configs reusing a canonical id override it; disabled configs
// remove it. Nothing changes if any rule fails to compile.
func (r *Registry) ReloadRules(configs []*domain.RuleConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var order []string
	chosen := make(map[string]*domain.RuleConfig)
	for _, cfg := range append(CanonicalRules(), configs...) {
		if _, seen := chosen[cfg.ID]; !seen {
			order = append(order, cfg.ID)
		}
		chosen[cfg.ID] = cfg
	}

	next := make([]*CompiledRule, 0, len(order))
	for _, id := range order {
		cfg := chosen[id]
		if !cfg.Enabled {
			continue
		}
		compiled, err := r.compileRule(cfg)
		if err != nil {
			return err
		}
		next = append(next, compiled)
	}

	r.rules = next
	return nil
}

// RulesCount returns the number of loaded rules.
func (r *Registry) RulesCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rules)
}

// GetLoadedRules returns the loaded rule configurations in registration order.
func (r *Registry) GetLoadedRules() []*domain.RuleConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.RuleConfig, len(r.rules))
	for i, compiled := range r.rules {
		out[i] = compiled.Config
	}
	return out
}

// Fingerprint identifies the loaded rule set. It changes whenever a rule is
// added, removed, reordered or edited.
func (r *Registry) Fingerprint() string {
	r.mu.RLock()
	loaded := r.rules
	r.mu.RUnlock()

	h := sha256.New()
	for _, rule := range loaded {
		cfg := rule.Config
		fmt.Fprintf(h, "%s\x00%s\x00%s\x00%s\x00%d\n", cfg.ID, cfg.Version, cfg.Expression, cfg.Severity, cfg.MinTransactions)
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Evaluate runs every loaded rule against a profile whose HHI and Benford
// fields are already derived. Rules whose minimum activity is not exceeded
// are skipped.
func (r *Registry) Evaluate(p *domain.EntityProfile) domain.RuleEvaluation {
	r.mu.RLock()
	loaded := r.rules
	r.mu.RUnlock()

	out := domain.RuleEvaluation{EntityID: p.ID, Triggered: []string{}, Flags: []domain.AnomalyFlag{}}
	activation := Activation(p)

	for _, rule := range loaded {
		cfg := rule.Config
		if p.TransactionCount <= cfg.MinTransactions {
			continue
		}
		val, _, err := rule.Program.Eval(activation)
		if err != nil {
			out.Errors = append(out.Errors, fmt.Sprintf("%s: %v", cfg.ID, err))
			continue
		}
		if !isTrue(val) {
			continue
		}
		out.Triggered = append(out.Triggered, cfg.ID)
		out.Flags = append(out.Flags, domain.AnomalyFlag{
			RuleID:      cfg.ID,
			Label:       cfg.Label,
			Description: cfg.Description,
			Severity:    cfg.Severity,
		})
		out.AnomalyCount++
		out.SeverityScore += cfg.Severity.Weight()
	}
	return out
}

// Activation builds the CEL variables for a profile.
func Activation(p *domain.EntityProfile) map[string]any {
	a := map[string]any{
		"hhi":                  p.HHI.Value,
		"benford_chi2":         p.Benford.Chi2,
		"benford_sample":       int64(p.Benford.SampleSize),
		"round_value_pct":      p.RoundValuePct,
		"top_supplier_pct":     p.TopSupplierPct(),
		"supplier_count":       int64(p.SupplierCount),
		"avg_ticket":           p.AvgTicket,
		"total_spending":       p.TotalSpending,
		"transaction_count":    int64(p.TransactionCount),
		"party":                p.Party,
		"state":                p.State,
		"has_timing":           p.Timing != nil,
		"weekend_pct":          0.0,
		"last_week_pct":        0.0,
		"last_day_pct":         0.0,
		"has_duplicates":       p.Duplicates != nil,
		"exact_duplicates":     int64(0),
		"near_duplicates":      int64(0),
		"recurring_amount_pct": 0.0,
	}
	if t := p.Timing; t != nil {
		a["weekend_pct"] = t.WeekendPct
		a["last_week_pct"] = t.LastWeekPct
		a["last_day_pct"] = t.LastDayPct
	}
	if d := p.Duplicates; d != nil {
		a["exact_duplicates"] = int64(d.ExactDuplicateCount)
		a["near_duplicates"] = int64(d.NearDuplicateCount)
		a["recurring_amount_pct"] = d.DuplicateValueSharePct
	}
	return a
}

func isTrue(val ref.Val) bool {
	b, ok := val.(types.Bool)
	return ok && bool(b)
}

// Outranks orders entities by severity score, then anomaly count (both
// descending), then entity id ascending.
func Outranks(a, b domain.RuleEvaluation) bool {
	if a.SeverityScore != b.SeverityScore {
		return a.SeverityScore > b.SeverityScore
	}
	if a.AnomalyCount != b.AnomalyCount {
		return a.AnomalyCount > b.AnomalyCount
	}
	return a.EntityID < b.EntityID
}

// RankBySeverity sorts evaluations in place, most severe first.
func RankBySeverity(evals []domain.RuleEvaluation) {
	sort.SliceStable(evals, func(i, j int) bool { return Outranks(evals[i], evals[j]) })
}

// Close cleans up the registry.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = nil
	return nil
}

func (r *Registry) compileRule(cfg *domain.RuleConfig) (*CompiledRule, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("rule id is required")
	}
	if !cfg.Severity.Valid() {
		return nil, fmt.Errorf("rule %s: unknown severity %q", cfg.ID, cfg.Severity)
	}

	ast, issues := r.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	if outputType := ast.OutputType(); outputType != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", cfg.ID, outputType)
	}

	program, err := r.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}
