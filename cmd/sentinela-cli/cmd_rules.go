package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/sentinela/internal/domain"
	"github.com/opensource-finance/sentinela/internal/rules"
)

var rulesStored bool

// rulesCmd implements 'sentinela-cli rules'
var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List the anomaly rules",
	Long: `List the canonical anomaly rules. With --stored the dataset's rules from
the repository are applied on top, as the server does on reload.`,
	RunE: runRules,
}

func init() {
	rulesCmd.Flags().BoolVar(&rulesStored, "stored", false, "Apply the dataset's stored rules")
}

func runRules(cmd *cobra.Command, args []string) error {
	registry, err := rules.NewDefaultRegistry()
	if err != nil {
		return err
	}

	if rulesStored {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		repo, err := openRepository(cfg)
		if err != nil {
			return err
		}
		defer repo.Close()

		stored, err := repo.ListRuleConfigs(cmd.Context(), datasetID)
		if err != nil {
			return err
		}
		if err := registry.ReloadRules(stored); err != nil {
			return err
		}
	}

	printRules(cmd, registry.GetLoadedRules())
	return nil
}

func printRules(cmd *cobra.Command, loaded []*domain.RuleConfig) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSEVERITY\tMIN TX\tVERSION\tEXPRESSION")
	for _, r := range loaded {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", r.ID, r.Severity, r.MinTransactions, r.Version, r.Expression)
	}
	w.Flush()
}
