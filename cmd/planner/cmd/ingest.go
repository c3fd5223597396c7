package cmd

import (
	"context"
	"fmt"
	"io"

	"golang-liquidity-planner/cmd/planner/config"
	"golang-liquidity-planner/internal/models"
	"golang-liquidity-planner/internal/parsers"
	"golang-liquidity-planner/internal/storage"
	"golang-liquidity-planner/pkg/errors"
	"golang-liquidity-planner/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flags for the ingest command
var (
	ingestDB        string
	ingestBalances  string
	ingestMovements string
	ingestRates     string
	batchSize       int
)

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Import balances, ledger movements and rates into the database",
	Long: `Ingest loads CSV exports into the planner database.

Balances replace the stored snapshot. Movements and rates are appended; card
usage for 'planner plan --db' is derived from the movements of the current
month.

Examples:
  planner ingest --db planner.db --balances balances.csv
  planner ingest --db planner.db --movements movements.csv --rates rates.csv`,

	PreRunE: validateIngestFlags,
	RunE:    runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringVar(&ingestDB, "db", "", "path to planner SQLite database (required)")
	ingestCmd.Flags().StringVarP(&ingestBalances, "balances", "b", "", "balances CSV file (replaces the stored snapshot)")
	ingestCmd.Flags().StringVarP(&ingestMovements, "movements", "m", "", "ledger movements CSV file")
	ingestCmd.Flags().StringVarP(&ingestRates, "rates", "r", "", "exchange rates CSV file")
	ingestCmd.Flags().IntVar(&batchSize, "batch-size", 500, "movements written per transaction")
}

func validateIngestFlags(cmd *cobra.Command, args []string) error {
	bindFlags(cmd)

	ingestDB = viper.GetString("db")
	ingestBalances = viper.GetString("balances")
	ingestMovements = viper.GetString("movements")
	ingestRates = viper.GetString("rates")
	batchSize = viper.GetInt("batch-size")

	if ingestDB == "" {
		return errors.ValidationError(errors.CodeMissingField, "db", nil, nil).
			WithSuggestion("Pass --db with the database to import into")
	}
	if ingestBalances == "" && ingestMovements == "" && ingestRates == "" {
		return errors.ValidationError(errors.CodeMissingField, "input", nil, nil).
			WithSuggestion("Pass at least one of --balances, --movements, --rates")
	}
	if batchSize <= 0 {
		return errors.ValidationError(errors.CodeOutOfRange, "batch-size", batchSize, nil)
	}

	for description, path := range map[string]string{
		"balances file":  ingestBalances,
		"movements file": ingestMovements,
		"rates file":     ingestRates,
	} {
		if path == "" {
			continue
		}
		if err := validateFileExists(path, description); err != nil {
			return err
		}
	}
	return nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	log := logger.WithComponent("cli")
	out := cmd.OutOrStdout()

	plannerConfig, err := config.LoadPlannerConfig(viper.GetViper(), log)
	if err != nil {
		return err
	}
	sourceConfig, err := config.CreateSourceConfig(viper.GetViper(), plannerConfig)
	if err != nil {
		return err
	}

	store, err := storage.Open(ctx, ingestDB)
	if err != nil {
		return err
	}
	defer store.Close()

	if ingestBalances != "" {
		stats, err := ingestBalanceFile(ctx, store, sourceConfig)
		if err != nil {
			return err
		}
		printIngestStats(out, "balances", stats)
	}

	if ingestMovements != "" {
		stats, err := ingestMovementFile(ctx, store, sourceConfig)
		if err != nil {
			return err
		}
		printIngestStats(out, "movements", stats)
	}

	if ingestRates != "" {
		stats, err := ingestRateFile(ctx, store, sourceConfig)
		if err != nil {
			return err
		}
		printIngestStats(out, "rates", stats)
	}

	return nil
}

func ingestBalanceFile(ctx context.Context, store *storage.Store, sourceConfig *parsers.SourceConfig) (*parsers.ParseStats, error) {
	parser, err := parsers.NewBalanceParser(sourceConfig)
	if err != nil {
		return nil, err
	}
	records, stats, err := parser.ParseBalances(ctx, ingestBalances)
	if err != nil {
		return stats, err
	}
	return stats, store.ReplaceBalances(ctx, records)
}

func ingestMovementFile(ctx context.Context, store *storage.Store, sourceConfig *parsers.SourceConfig) (*parsers.ParseStats, error) {
	parser, err := parsers.NewMovementParser(sourceConfig)
	if err != nil {
		return nil, err
	}
	return parser.ParseMovementsStream(ctx, ingestMovements, batchSize, func(batch []*models.Movement) error {
		return store.InsertMovements(ctx, batch)
	})
}

func ingestRateFile(ctx context.Context, store *storage.Store, sourceConfig *parsers.SourceConfig) (*parsers.ParseStats, error) {
	parser, err := parsers.NewRateParser(sourceConfig)
	if err != nil {
		return nil, err
	}
	rates, stats, err := parser.ParseRates(ctx, ingestRates)
	if err != nil {
		return stats, err
	}
	return stats, store.InsertRates(ctx, rates)
}

func printIngestStats(w io.Writer, kind string, stats *parsers.ParseStats) {
	fmt.Fprintf(w, "Imported %d %s (%s)\n", stats.RecordsValid, kind, stats.String())
	if stats.LegacyDecoded {
		fmt.Fprintf(w, "  note: file was not UTF-8 and was read as Windows-1252\n")
	}
	if viper.GetBool("verbose") {
		for _, msg := range stats.GetSampleErrors(10) {
			fmt.Fprintf(w, "  skipped: %s\n", msg)
		}
		for _, msg := range stats.GetSampleWarnings(10) {
			fmt.Fprintf(w, "  warning: %s\n", msg)
		}
	}
}
