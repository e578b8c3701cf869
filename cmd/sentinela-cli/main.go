// Sentinela - Irregularity analytics for legislators' expense reimbursements.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/sentinela/internal/config"
	"github.com/opensource-finance/sentinela/internal/domain"
	"github.com/opensource-finance/sentinela/internal/repository"
)

var (
	configPath string
	datasetID  string
	verbose    bool
)

// rootCmd is the base command for the Sentinela CLI
var rootCmd = &cobra.Command{
	Use:   "sentinela-cli",
	Short: "Offline tooling for the Sentinela expense analytics engine",
	Long: `sentinela-cli imports CEAP ledgers into the configured repository,
runs assessments from the repository or straight from a CSV export, and
lists the anomaly rules in force.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&datasetID, "dataset", "", "Dataset ID (defaults to analysis.defaultDataset)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging to stderr")

	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(assessCmd)
	rootCmd.AddCommand(rulesCmd)
}

// loadConfig resolves the configuration and the dataset flag.
func loadConfig() (*domain.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if datasetID == "" {
		datasetID = cfg.Analysis.DefaultDataset
	}
	return cfg, nil
}

func openRepository(cfg *domain.Config) (*repository.SQLRepository, error) {
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}
	return repo, nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
