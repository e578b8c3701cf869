// Sentinela - Irregularity analytics for legislators' expense reimbursements.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/opensource-finance/sentinela/internal/analytics"
	"github.com/opensource-finance/sentinela/internal/api"
	"github.com/opensource-finance/sentinela/internal/assessment"
	"github.com/opensource-finance/sentinela/internal/bus"
	"github.com/opensource-finance/sentinela/internal/cache"
	"github.com/opensource-finance/sentinela/internal/config"
	"github.com/opensource-finance/sentinela/internal/domain"
	"github.com/opensource-finance/sentinela/internal/ingest"
	"github.com/opensource-finance/sentinela/internal/metrics"
	"github.com/opensource-finance/sentinela/internal/repository"
	"github.com/opensource-finance/sentinela/internal/rules"
	"github.com/opensource-finance/sentinela/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg, err := config.Load(os.Getenv("SENTINELA_CONFIG"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}

	slog.SetDefault(newLogger(cfg.Logging))

	slog.Info("starting sentinela",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
		"methodology", analytics.MethodologyVersion,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"datasets", cfg.Analysis.WorkerDatasets(),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	registry, err := rules.NewDefaultRegistry()
	if err != nil {
		slog.Error("failed to initialize rule registry", "error", err)
		os.Exit(1)
	}
	if err := loadRules(ctx, repo, registry, cfg); err != nil {
		slog.Error("failed to load rules", "error", err)
		os.Exit(1)
	}
	slog.Info("rule registry initialized", "rules_count", registry.RulesCount())

	m := metrics.New()
	store := assessment.NewStore()
	processor := assessment.NewProcessor(registry, assessment.Options{
		Workers:         cfg.Analysis.Workers,
		TopCorrelations: cfg.Analysis.TopCorrelations,
		Recorder:        m,
	})

	w := worker.NewWorker(busImpl, repo, cacheImpl, processor, store, m, worker.Config{
		Datasets: cfg.Analysis.WorkerDatasets(),
		Snapshot: ingest.Options{
			MinSpending:     cfg.Analysis.MinActiveSpending,
			MinTransactions: cfg.Analysis.MinActiveTransactions,
		},
		CacheTTL: time.Duration(cfg.Analysis.CacheTTL) * time.Second,
	})
	if err := w.Start(); err != nil {
		slog.Error("failed to start worker", "error", err)
		os.Exit(1)
	}
	go warmUp(ctx, repo, w, cfg.Analysis.WorkerDatasets())

	srv := api.NewServer(cfg.Server, api.Dependencies{
		Repo:           repo,
		Cache:          cacheImpl,
		Bus:            busImpl,
		Registry:       registry,
		Worker:         w,
		Store:          store,
		Metrics:        m,
		ConfigRules:    cfg.Rules,
		Version:        Version,
		DefaultDataset: cfg.Analysis.DefaultDataset,
	})

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			cancel()
		}
	}()

	slog.Info("sentinela is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	<-ctx.Done()
	slog.Info("shutting down...")

	if err := w.Stop(); err != nil {
		slog.Error("failed to stop worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("sentinela shutdown complete")
}

func newLogger(cfg domain.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// loadRules applies rules from the config file, then the default dataset's
// stored rules, over the canonical set. Later entries win by id.
func loadRules(ctx context.Context, repo domain.Repository, registry *rules.Registry, cfg *domain.Config) error {
	var overrides []*domain.RuleConfig
	for i := range cfg.Rules {
		overrides = append(overrides, &cfg.Rules[i])
	}

	stored, err := repo.ListRuleConfigs(ctx, cfg.Analysis.DefaultDataset)
	if err != nil {
		slog.Warn("failed to list rules from database", "error", err)
	} else if len(stored) > 0 {
		slog.Info("loading rules from database", "count", len(stored))
		overrides = append(overrides, stored...)
	}

	if len(overrides) == 0 {
		return nil
	}
	return registry.ReloadRules(overrides)
}

// warmUp assesses datasets that already hold a ledger so reads work
// before the first ingestion event.
func warmUp(ctx context.Context, repo domain.Repository, w *worker.Worker, datasets []string) {
	for _, ds := range datasets {
		n, err := repo.CountExpenses(ctx, ds)
		if err != nil || n == 0 {
			continue
		}
		if _, err := w.Run(ctx, ds); err != nil {
			slog.Warn("initial assessment failed", "dataset_id", ds, "error", err)
		}
	}
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  SENTINELA")
	fmt.Println("  Expense irregularity analytics")
	fmt.Println()
	fmt.Printf("  Version:      %s\n", version)
	fmt.Printf("  Methodology:  %s\n", analytics.MethodologyVersion)
	fmt.Printf("  Tier:         %s\n", cfg.Tier)
	fmt.Printf("  Server:       http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /expenses            - Ingest ledger lines (JSON)")
	fmt.Println("    POST /expenses/import     - Import a CEAP CSV export")
	fmt.Println("    POST /assessments         - Assess the dataset now")
	fmt.Println("    GET  /assessments/latest  - Current assessment")
	fmt.Println("    GET  /entities            - Ranked entities")
	fmt.Println("    GET  /entities/{id}       - Entity report")
	fmt.Println("    GET  /correlations        - Metric correlations")
	fmt.Println("    GET  /aggregations        - Population totals and breakdowns")
	fmt.Println("    GET  /rules               - Loaded anomaly rules")
	fmt.Println("    POST /rules/reload        - Hot-reload rules from database")
	fmt.Println("    GET  /methodology         - Thresholds and version")
	fmt.Println("    GET  /health              - Health check")
	fmt.Println("    GET  /metrics             - Prometheus metrics")
	fmt.Println()
}
