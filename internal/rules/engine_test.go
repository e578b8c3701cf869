package rules

import (
	"fmt"
	"sync"
	"testing"

	"github.com/opensource-finance/sentinela/internal/domain"
)

func newProfile(txCount int) *domain.EntityProfile {
	return &domain.EntityProfile{
		ID:               "dep-001",
		Name:             "Test Deputy",
		Party:            "PX",
		State:            "SP",
		TotalSpending:    200000,
		TransactionCount: txCount,
		AvgTicket:        1000,
		SupplierCount:    30,
		TopSuppliers:     []domain.SupplierShare{{Name: "A", SharePct: 20}},
		HHI:              domain.HHIResult{Value: 800, Level: domain.LevelLow},
		Benford:          domain.BenfordResult{Chi2: 3, SampleSize: txCount},
		RoundValuePct:    5,
	}
}

func mustRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewDefaultRegistry()
	if err != nil {
		t.Fatalf("failed to create registry: %v", err)
	}
	return r
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func TestRegistryCreation(t *testing.T) {
	r, err := NewRegistry()
	if err != nil {
		t.Fatalf("failed to create registry: %v", err)
	}
	defer r.Close()

	if r.RulesCount() != 0 {
		t.Errorf("expected 0 rules, got %d", r.RulesCount())
	}

	def := mustRegistry(t)
	if def.RulesCount() != len(CanonicalRules()) {
		t.Errorf("expected %d canonical rules, got %d", len(CanonicalRules()), def.RulesCount())
	}

	loaded := def.GetLoadedRules()
	if loaded[0].ID != RuleHHICritical || loaded[len(loaded)-1].ID != RuleDuplicateRecurring {
		t.Errorf("rules not in registration order: first=%s last=%s", loaded[0].ID, loaded[len(loaded)-1].ID)
	}
}

func TestLoadCustomRule(t *testing.T) {
	r := mustRegistry(t)

	rule := &domain.RuleConfig{
		ID:         "party-px-large",
		Label:      "Large PX spender",
		Expression: `party == "PX" && total_spending > 150000.0`,
		Severity:   domain.SeverityLow,
		Enabled:    true,
	}
	if err := r.LoadRule(rule); err != nil {
		t.Fatalf("failed to load rule: %v", err)
	}

	eval := r.Evaluate(newProfile(100))
	if !contains(eval.Triggered, "party-px-large") {
		t.Errorf("expected custom rule to trigger, got %v", eval.Triggered)
	}
	if eval.SeverityScore != 1 {
		t.Errorf("expected severity score 1, got %d", eval.SeverityScore)
	}
}

func TestLoadInvalidRule(t *testing.T) {
	r := mustRegistry(t)
	before := r.RulesCount()

	tests := []struct {
		name string
		rule *domain.RuleConfig
	}{
		{"syntax", &domain.RuleConfig{ID: "bad", Expression: "this is not valid CEL !!!", Severity: domain.SeverityLow}},
		{"non bool", &domain.RuleConfig{ID: "num", Expression: "hhi * 2.0", Severity: domain.SeverityLow}},
		{"unknown variable", &domain.RuleConfig{ID: "var", Expression: "amount > 1.0", Severity: domain.SeverityLow}},
		{"bad severity", &domain.RuleConfig{ID: "sev", Expression: "hhi > 1.0", Severity: "urgent"}},
		{"missing id", &domain.RuleConfig{Expression: "hhi > 1.0", Severity: domain.SeverityLow}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := r.LoadRule(tt.rule); err == nil {
				t.Error("expected error")
			}
			if err := r.ValidateRule(tt.rule); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	if r.RulesCount() != before {
		t.Errorf("invalid rules changed the registry: %d -> %d", before, r.RulesCount())
	}
	if err := r.ValidateRule(nil); err == nil {
		t.Error("expected error for nil rule")
	}
}

func TestConcentratedProfile(t *testing.T) {
	r := mustRegistry(t)

	p := newProfile(200)
	p.HHI = domain.HHIResult{Value: 10000, Level: domain.LevelCritical}
	p.TopSuppliers = []domain.SupplierShare{{Name: "Only", SharePct: 100}}
	p.SupplierCount = 1
	p.RoundValuePct = 40
	p.Benford.Chi2 = 25

	eval := r.Evaluate(p)

	want := []string{RuleHHICritical, RuleBenfordSignificant, RuleRoundValues, RuleSingleSupplier, RuleLowSupplierDiversity}
	if fmt.Sprint(eval.Triggered) != fmt.Sprint(want) {
		t.Fatalf("expected %v, got %v", want, eval.Triggered)
	}
	if eval.AnomalyCount != 5 {
		t.Errorf("expected 5 anomalies, got %d", eval.AnomalyCount)
	}
	if eval.SeverityScore != 12 {
		t.Errorf("expected severity score 12, got %d", eval.SeverityScore)
	}
	if len(eval.Flags) != 5 || eval.Flags[0].Severity != domain.SeverityHigh {
		t.Errorf("unexpected flags: %+v", eval.Flags)
	}
	if len(eval.Errors) != 0 {
		t.Errorf("unexpected errors: %v", eval.Errors)
	}
}

func TestCleanProfile(t *testing.T) {
	r := mustRegistry(t)
	eval := r.Evaluate(newProfile(200))
	if eval.AnomalyCount != 0 || len(eval.Triggered) != 0 {
		t.Errorf("expected no anomalies, got %v", eval.Triggered)
	}
	if eval.Triggered == nil {
		t.Error("triggered should be an empty list, not nil")
	}
}

func TestBoundaries(t *testing.T) {
	r := mustRegistry(t)

	tests := []struct {
		name  string
		setup func(p *domain.EntityProfile)
		want  string
		not   string
	}{
		{"hhi exactly 3000 is high", func(p *domain.EntityProfile) { p.HHI.Value = 3000 }, RuleHHIHigh, RuleHHICritical},
		{"hhi 3000.1 is critical", func(p *domain.EntityProfile) { p.HHI.Value = 3000.1 }, RuleHHICritical, RuleHHIHigh},
		{"chi2 exactly 20.09 is elevated", func(p *domain.EntityProfile) { p.Benford.Chi2 = 20.09 }, RuleBenfordElevated, RuleBenfordSignificant},
		{"chi2 20.1 is significant", func(p *domain.EntityProfile) { p.Benford.Chi2 = 20.1 }, RuleBenfordSignificant, RuleBenfordElevated},
		{"avg ticket above limit", func(p *domain.EntityProfile) { p.AvgTicket = 5000.01 }, RuleHighAvgTicket, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newProfile(200)
			tt.setup(p)
			eval := r.Evaluate(p)
			if !contains(eval.Triggered, tt.want) {
				t.Errorf("expected %s in %v", tt.want, eval.Triggered)
			}
			if tt.not != "" && contains(eval.Triggered, tt.not) {
				t.Errorf("did not expect %s in %v", tt.not, eval.Triggered)
			}
		})
	}

	p := newProfile(200)
	p.HHI.Value = 2500
	p.Benford.Chi2 = 15.51
	if eval := r.Evaluate(p); len(eval.Triggered) != 0 {
		t.Errorf("thresholds are exclusive, got %v", eval.Triggered)
	}
}

func TestMinTransactions(t *testing.T) {
	r := mustRegistry(t)

	p := newProfile(10)
	p.HHI.Value = 9000
	if eval := r.Evaluate(p); eval.AnomalyCount != 0 {
		t.Errorf("rules must not fire at 10 transactions, got %v", eval.Triggered)
	}

	p.TransactionCount = 11
	if eval := r.Evaluate(p); !contains(eval.Triggered, RuleHHICritical) {
		t.Errorf("expected %s at 11 transactions, got %v", RuleHHICritical, eval.Triggered)
	}

	p = newProfile(50)
	p.Timing = &domain.TimingProfile{DatedTransactions: 50, WeekendPct: 30}
	if eval := r.Evaluate(p); contains(eval.Triggered, RuleWeekendCritical) {
		t.Error("timing rules need more than 50 transactions")
	}

	p.TransactionCount = 51
	eval := r.Evaluate(p)
	if !contains(eval.Triggered, RuleWeekendCritical) || contains(eval.Triggered, RuleWeekendElevated) {
		t.Errorf("expected only weekend-critical, got %v", eval.Triggered)
	}
}

func TestTimingRules(t *testing.T) {
	r := mustRegistry(t)

	p := newProfile(100)
	p.Timing = &domain.TimingProfile{DatedTransactions: 100, WeekendPct: 20, LastWeekPct: 45, LastDayPct: 12}
	eval := r.Evaluate(p)

	for _, id := range []string{RuleWeekendElevated, RuleMonthEndWeek, RuleMonthEndDay} {
		if !contains(eval.Triggered, id) {
			t.Errorf("expected %s in %v", id, eval.Triggered)
		}
	}
	if eval.SeverityScore != 2+2+3 {
		t.Errorf("expected severity 7, got %d", eval.SeverityScore)
	}

	// No ledger: timing rules stay quiet regardless of the zero values.
	p.Timing = nil
	if eval := r.Evaluate(p); eval.AnomalyCount != 0 {
		t.Errorf("expected no anomalies without ledger, got %v", eval.Triggered)
	}
}

func TestDuplicateRules(t *testing.T) {
	r := mustRegistry(t)

	tests := []struct {
		dup  domain.DuplicateProfile
		want []string
	}{
		{domain.DuplicateProfile{ExactDuplicateCount: 1}, []string{RuleDuplicateExact}},
		{domain.DuplicateProfile{NearDuplicateCount: 2}, nil},
		{domain.DuplicateProfile{NearDuplicateCount: 3}, []string{RuleDuplicateNear}},
		{domain.DuplicateProfile{DuplicateValueSharePct: 60}, []string{RuleDuplicateRecurring}},
		{domain.DuplicateProfile{DuplicateValueSharePct: 50}, nil},
	}

	for i, tt := range tests {
		p := newProfile(100)
		dup := tt.dup
		p.Duplicates = &dup
		eval := r.Evaluate(p)
		if fmt.Sprint(eval.Triggered) != fmt.Sprint(append([]string{}, tt.want...)) {
			t.Errorf("case %d: expected %v, got %v", i, tt.want, eval.Triggered)
		}
	}
}

func TestRankBySeverity(t *testing.T) {
	evals := []domain.RuleEvaluation{
		{EntityID: "c", SeverityScore: 3, AnomalyCount: 1},
		{EntityID: "b", SeverityScore: 5, AnomalyCount: 2},
		{EntityID: "a", SeverityScore: 5, AnomalyCount: 2},
		{EntityID: "d", SeverityScore: 5, AnomalyCount: 3},
		{EntityID: "e"},
	}
	RankBySeverity(evals)

	got := ""
	for _, e := range evals {
		got += e.EntityID
	}
	if got != "dabce" {
		t.Errorf("expected order dabce, got %s", got)
	}
}

func TestReloadRules(t *testing.T) {
	r := mustRegistry(t)
	canonical := len(CanonicalRules())

	err := r.ReloadRules([]*domain.RuleConfig{
		{ID: RuleLowSupplierDiversity, Enabled: false},
		{ID: RuleHighAvgTicket, Expression: "avg_ticket > 500.0", Severity: domain.SeverityHigh, Enabled: true},
		{ID: "custom-1", Expression: "supplier_count > 20", Severity: domain.SeverityLow, Enabled: true},
	})
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if r.RulesCount() != canonical {
		t.Errorf("expected %d rules, got %d", canonical, r.RulesCount())
	}

	eval := r.Evaluate(newProfile(100))
	if !contains(eval.Triggered, RuleHighAvgTicket) || !contains(eval.Triggered, "custom-1") {
		t.Errorf("expected overridden and custom rules, got %v", eval.Triggered)
	}

	err = r.ReloadRules([]*domain.RuleConfig{{ID: "broken", Expression: "((", Severity: domain.SeverityLow, Enabled: true}})
	if err == nil {
		t.Fatal("expected reload error")
	}
	if r.RulesCount() != canonical {
		t.Errorf("failed reload must keep previous rules, got %d", r.RulesCount())
	}
}

func TestFingerprint(t *testing.T) {
	a, b := mustRegistry(t), mustRegistry(t)
	if a.Fingerprint() != b.Fingerprint() {
		t.Fatal("identical rule sets must share a fingerprint")
	}
	if len(a.Fingerprint()) != 16 {
		t.Errorf("expected 16 hex chars, got %q", a.Fingerprint())
	}

	before := a.Fingerprint()
	if err := a.ReloadRules([]*domain.RuleConfig{{ID: RuleLowSupplierDiversity, Enabled: false}}); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if a.Fingerprint() == before {
		t.Error("disabling a rule must change the fingerprint")
	}
}

func TestConcurrentEvaluate(t *testing.T) {
	r := mustRegistry(t)
	p := newProfile(100)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				r.Evaluate(p)
			}
		}()
	}
	for i := 0; i < 10; i++ {
		_ = r.LoadRule(&domain.RuleConfig{
			ID:         fmt.Sprintf("extra-%d", i),
			Expression: "hhi >= 0.0",
			Severity:   domain.SeverityLow,
			Enabled:    true,
		})
	}
	wg.Wait()

	if got := r.Evaluate(p).AnomalyCount; got != 10 {
		t.Errorf("expected 10 anomalies from extra rules, got %d", got)
	}
}
