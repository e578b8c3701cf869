package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opensource-finance/sentinela/internal/domain"
)

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(nil, env(nil))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.Tier != domain.TierCommunity {
		t.Errorf("expected community tier, got %s", cfg.Tier)
	}
	if cfg.Repository.Driver != "sqlite" || cfg.Cache.Type != "memory" || cfg.EventBus.Type != "channel" {
		t.Errorf("unexpected community backends: %+v", cfg)
	}
	if cfg.Analysis.DefaultDataset != "camara" {
		t.Errorf("expected default dataset camara, got %s", cfg.Analysis.DefaultDataset)
	}
}

func TestParseTier(t *testing.T) {
	tests := []struct {
		name   string
		yaml   string
		vars   map[string]string
		driver string
	}{
		{"FromFile", "tier: pro\n", nil, "postgres"},
		{"EnvWins", "tier: pro\n", map[string]string{"SENTINELA_TIER": "community"}, "sqlite"},
		{"EnvOnly", "", map[string]string{"SENTINELA_TIER": "PRO"}, "postgres"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tt.yaml), env(tt.vars))
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if cfg.Repository.Driver != tt.driver {
				t.Errorf("expected driver %s, got %s", tt.driver, cfg.Repository.Driver)
			}
		})
	}

	if _, err := Parse(nil, env(map[string]string{"SENTINELA_TIER": "enterprise"})); err == nil {
		t.Error("expected error for unknown tier")
	}
}

func TestParseYAML(t *testing.T) {
	data := []byte(`
server:
  port: 9090
cache:
  localTTL: 10m
analysis:
  defaultDataset: senado
  workers: 4
rules:
  - id: big-spender
    label: Big spender
    expression: total_spending > 1000000.0
    severity: medium
    minTransactions: 30
    enabled: true
`)
	cfg, err := Parse(data, env(nil))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("expected default host to survive, got %q", cfg.Server.Host)
	}
	if cfg.Cache.LocalTTL != 10*time.Minute {
		t.Errorf("expected 10m local TTL, got %v", cfg.Cache.LocalTTL)
	}
	if cfg.Analysis.DefaultDataset != "senado" || cfg.Analysis.Workers != 4 {
		t.Errorf("unexpected analysis config: %+v", cfg.Analysis)
	}
	if len(cfg.Rules) != 1 || cfg.Rules[0].MinTransactions != 30 || cfg.Rules[0].Severity != domain.SeverityMedium {
		t.Errorf("unexpected rules: %+v", cfg.Rules)
	}
}

func TestParseEnvOverrides(t *testing.T) {
	cfg, err := Parse([]byte("server:\n  port: 9090\n"), env(map[string]string{
		"SENTINELA_PORT":        "7070",
		"SENTINELA_DEBUG":       "true",
		"SENTINELA_SQLITE_PATH": "/tmp/x.db",
		"SENTINELA_WORKERS":     "2",
		"SENTINELA_DATASET":     "senado",
		"SENTINELA_DATASETS":    "camara, senado,,",
	}))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("expected env port 7070, got %d", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug logging, got %s", cfg.Logging.Level)
	}
	if cfg.Repository.SQLitePath != "/tmp/x.db" || cfg.Analysis.Workers != 2 || cfg.Analysis.DefaultDataset != "senado" {
		t.Errorf("unexpected overrides: %+v", cfg)
	}
	if ds := cfg.Analysis.WorkerDatasets(); len(ds) != 2 || ds[1] != "senado" {
		t.Errorf("unexpected worker datasets: %v", ds)
	}

	if _, err := Parse(nil, env(map[string]string{"SENTINELA_PORT": "eighty"})); err == nil {
		t.Error("expected error for non-numeric port")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.Config)
	}{
		{"Port", func(c *domain.Config) { c.Server.Port = 0 }},
		{"Driver", func(c *domain.Config) { c.Repository.Driver = "mysql" }},
		{"Cache", func(c *domain.Config) { c.Cache.Type = "memcached" }},
		{"Bus", func(c *domain.Config) { c.EventBus.Type = "kafka" }},
		{"Dataset", func(c *domain.Config) { c.Analysis.DefaultDataset = "" }},
		{"Rule", func(c *domain.Config) { c.Rules = []domain.RuleConfig{{ID: "r"}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := domain.DefaultConfig()
			tt.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	if err := Validate(domain.ProConfig()); err != nil {
		t.Errorf("pro config should be valid: %v", err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sentinela.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 8181\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SENTINELA_TIER", "")
	t.Setenv("SENTINELA_PORT", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 8181 {
		t.Errorf("expected port 8181, got %d", cfg.Server.Port)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
