package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/sentinela/internal/ingest"
)

var importDryRun bool

// importCmd implements 'sentinela-cli import <csv>'
var importCmd = &cobra.Command{
	Use:   "import <csv>",
	Short: "Validate a CEAP CSV export and store it in the repository",
	Long: `Parse a CEAP export (';' or ',' separated), print the validation
report and persist the accepted lines under the selected dataset.

Example usage:
  sentinela-cli import despesas-2024.csv
  sentinela-cli import despesas-2024.csv --dataset camara --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Validate only, do not store")
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	expenses, report, err := ingest.ParseCSV(f, datasetID)
	if report != nil {
		printReport(cmd, report)
	}
	if err != nil {
		return err
	}
	if importDryRun || len(expenses) == 0 {
		return nil
	}

	repo, err := openRepository(cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	if err := repo.SaveExpenses(cmd.Context(), datasetID, expenses); err != nil {
		return fmt.Errorf("save expenses: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "stored %d lines in dataset %s\n", len(expenses), datasetID)
	return nil
}

func printReport(cmd *cobra.Command, r *ingest.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "rows: %d  accepted: %d\n", r.Rows, r.Accepted)
	for _, e := range r.Errors {
		fmt.Fprintf(out, "  error:   %s\n", e)
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(out, "  warning: %s\n", w)
	}
}
