package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"golang-liquidity-planner/internal/storage"
	"golang-liquidity-planner/pkg/errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Flags for the history command
var (
	historyDB     string
	historyLimit  int
	historyFormat string
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded planning runs",
	Long: `History lists the runs recorded with 'planner plan --record', newest first.

Examples:
  planner history --db planner.db
  planner history --db planner.db --limit 5 --output-format json`,

	PreRunE: validateHistoryFlags,
	RunE:    runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().StringVar(&historyDB, "db", "", "path to planner SQLite database (required)")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of runs to show (0 for all)")
	historyCmd.Flags().StringVarP(&historyFormat, "output-format", "f", "console", "output format: console, json, yaml")
}

func validateHistoryFlags(cmd *cobra.Command, args []string) error {
	bindFlags(cmd)

	historyDB = viper.GetString("db")
	historyLimit = viper.GetInt("limit")
	historyFormat = viper.GetString("output-format")

	if historyDB == "" {
		return errors.ValidationError(errors.CodeMissingField, "db", nil, nil).
			WithSuggestion("Pass --db with the database that holds the run history")
	}
	if historyLimit < 0 {
		return errors.ValidationError(errors.CodeOutOfRange, "limit", historyLimit, nil)
	}
	switch historyFormat {
	case "console", "json", "yaml":
	default:
		return errors.ConfigurationError(errors.CodeInvalidConfig, "output-format", historyFormat, nil).
			WithSuggestion("Valid formats: console, json, yaml")
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	store, err := storage.Open(ctx, historyDB)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(ctx, historyLimit)
	if err != nil {
		return err
	}

	return writeHistory(cmd.OutOrStdout(), runs)
}

func writeHistory(w io.Writer, runs []*storage.RunRecord) error {
	switch historyFormat {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(runs)
	case "yaml":
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(runs); err != nil {
			return err
		}
		return encoder.Close()
	}

	if len(runs) == 0 {
		fmt.Fprintf(w, "No recorded runs.\n")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "RUN\tCREATED\tSOURCE\tSEVERITY\tNEED\tSELL NOW\tREMAINING\tUNPLACED\n")
	for _, run := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			run.RunID,
			run.CreatedAt.Local().Format(time.DateTime),
			run.Source,
			run.Severity,
			run.NeedReserve.StringFixed(2),
			run.SellNowForeign.StringFixed(2),
			run.RemainingReserve.StringFixed(2),
			run.Leftover.StringFixed(2),
		)
	}
	return tw.Flush()
}
