package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/sentinela/internal/assessment"
	"github.com/opensource-finance/sentinela/internal/domain"
	"github.com/opensource-finance/sentinela/internal/ingest"
	"github.com/opensource-finance/sentinela/internal/rules"
)

var (
	assessCSV    string
	assessFormat string
	assessTop    int
)

// assessCmd implements 'sentinela-cli assess'
var assessCmd = &cobra.Command{
	Use:   "assess",
	Short: "Assess a dataset and print the ranked entities",
	Long: `Build a snapshot from the repository ledger (or from --csv without
touching the repository), assess it and print the result.

Example usage:
  sentinela-cli assess                          # Table of the top 20
  sentinela-cli assess --csv despesas.csv --format json
  sentinela-cli assess --top 0                  # Every entity`,
	RunE: runAssess,
}

func init() {
	assessCmd.Flags().StringVar(&assessCSV, "csv", "", "Assess a CSV export instead of the repository")
	assessCmd.Flags().StringVar(&assessFormat, "format", "table", "Output format: table, json")
	assessCmd.Flags().IntVar(&assessTop, "top", 20, "Entities to print in table format, 0 for all")
}

func runAssess(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	registry, err := rules.NewDefaultRegistry()
	if err != nil {
		return err
	}

	var ledger []*domain.Expense
	if assessCSV != "" {
		f, err := os.Open(assessCSV)
		if err != nil {
			return err
		}
		defer f.Close()
		var report *ingest.Report
		ledger, report, err = ingest.ParseCSV(f, datasetID)
		if err != nil {
			if report != nil {
				printReport(cmd, report)
			}
			return err
		}
	} else {
		repo, err := openRepository(cfg)
		if err != nil {
			return err
		}
		defer repo.Close()

		stored, err := repo.ListRuleConfigs(ctx, datasetID)
		if err != nil {
			return err
		}
		if err := registry.ReloadRules(stored); err != nil {
			return err
		}
		if ledger, err = repo.ListExpenses(ctx, datasetID); err != nil {
			return err
		}
	}

	snap := ingest.BuildSnapshot(datasetID, ledger, ingest.Options{
		MinSpending:     cfg.Analysis.MinActiveSpending,
		MinTransactions: cfg.Analysis.MinActiveTransactions,
	})
	processor := assessment.NewProcessor(registry, assessment.Options{
		Workers:         cfg.Analysis.Workers,
		TopCorrelations: cfg.Analysis.TopCorrelations,
	})
	a, err := processor.Assess(ctx, snap)
	if err != nil {
		return err
	}

	switch strings.ToLower(assessFormat) {
	case "json":
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(a)
	case "table":
		printAssessment(cmd.OutOrStdout(), a, assessTop)
		return nil
	default:
		return fmt.Errorf("unknown format %q", assessFormat)
	}
}

func printAssessment(out io.Writer, a *domain.Assessment, top int) {
	fmt.Fprintf(out, "dataset %s  entities %d  dropped inactive %d  dropped leadership %d\n",
		a.DatasetID, len(a.Entities), a.Metadata.DroppedInactive, a.Metadata.DroppedLeadership)
	fmt.Fprintf(out, "levels: %s %d  %s %d  %s %d  %s %d\n\n",
		domain.LevelCritical, a.LevelCounts[domain.LevelCritical],
		domain.LevelHigh, a.LevelCounts[domain.LevelHigh],
		domain.LevelMedium, a.LevelCounts[domain.LevelMedium],
		domain.LevelLow, a.LevelCounts[domain.LevelLow])

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tID\tNAME\tPARTY\tUF\tRISK\tLEVEL\tSEVERITY\tFLAGS")
	for _, s := range a.Summaries() {
		if top > 0 && s.Rank > top {
			break
		}
		report, _ := a.Entity(s.EntityID)
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%.2f\t%s\t%d\t%s\n",
			s.Rank, s.EntityID, s.Name, s.Party, s.State, s.RiskScore, s.RiskLevel,
			s.SeverityScore, strings.Join(report.RedFlags, ", "))
	}
	w.Flush()
}
