package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang-liquidity-planner/cmd/planner/config"
	"golang-liquidity-planner/internal/liquidity"
	"golang-liquidity-planner/internal/reporter"
	"golang-liquidity-planner/internal/storage"
	"golang-liquidity-planner/pkg/errors"
	"golang-liquidity-planner/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Flags for the plan command
var (
	balancesFile string
	usageFile    string
	dbPath       string
	outputFormat string
	outputFile   string
	asOf         string
	recordRun    bool
	showProgress bool
)

// planCmd represents the plan command
var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Compute today's sale and where to place the proceeds",
	Long: `Plan reads a balance snapshot and this month's card usage, works out how much
foreign currency to sell to restore the reserve cushion and distributes the
proceeds across cards that can still receive funds.

The snapshot comes from CSV files (--balances and --usage) or from a database
filled by 'planner ingest' (--db). With both, the CSV files are planned and the
database supplies the stored buy rate and keeps the run history.

Examples:
  # Plan from CSV exports
  planner plan --balances balances.csv --usage usage.csv

  # Plan from the database and keep the run
  planner plan --db planner.db --record

  # Machine-readable output
  planner plan --db planner.db --output-format json --output-file plan.json

  # Reproduce a run for a past date
  planner plan --db planner.db --as-of 2024-03-15`,

	PreRunE: validatePlanFlags,
	RunE:    runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)

	// Input flags
	planCmd.Flags().StringVarP(&balancesFile, "balances", "b", "", "path to balances CSV file")
	planCmd.Flags().StringVarP(&usageFile, "usage", "u", "", "path to card usage CSV file")
	planCmd.Flags().StringVar(&dbPath, "db", "", "path to planner SQLite database")

	// Output flags
	planCmd.Flags().StringVarP(&outputFormat, "output-format", "f", "console", "output format: console, json, yaml, csv")
	planCmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "output file path (default: stdout)")

	// Run flags
	planCmd.Flags().StringVar(&asOf, "as-of", "", "plan as of this date (YYYY-MM-DD or RFC3339, default: now)")
	planCmd.Flags().BoolVar(&recordRun, "record", false, "record the run in the database history (requires --db)")
	planCmd.Flags().BoolVar(&showProgress, "progress", false, "show progress indicators")
}

// bindFlags binds cmd's flags to viper when the command runs, so commands
// that share a flag name do not overwrite each other's binding
func bindFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		viper.BindPFlag(f.Name, f)
	})
}

func validatePlanFlags(cmd *cobra.Command, args []string) error {
	bindFlags(cmd)

	// Get values from viper (allows override from config file)
	balancesFile = viper.GetString("balances")
	usageFile = viper.GetString("usage")
	dbPath = viper.GetString("db")
	outputFormat = viper.GetString("output-format")
	outputFile = viper.GetString("output-file")
	asOf = viper.GetString("as-of")
	recordRun = viper.GetBool("record")
	showProgress = viper.GetBool("progress")

	if (balancesFile == "") != (usageFile == "") {
		return errors.ValidationError(errors.CodeMissingField, "balances/usage", nil, nil).
			WithSuggestion("--balances and --usage must be given together")
	}
	if balancesFile == "" && dbPath == "" {
		return errors.ValidationError(errors.CodeMissingField, "source", nil, nil).
			WithSuggestion("Pass --balances and --usage, or --db")
	}
	if recordRun && dbPath == "" {
		return errors.ConfigurationError(errors.CodeConfigConflict, "record", true, fmt.Errorf("--record requires --db")).
			WithSuggestion("Pass --db to keep a run history")
	}

	if balancesFile != "" {
		if err := validateFileExists(balancesFile, "balances file"); err != nil {
			return err
		}
		if err := validateFileExists(usageFile, "usage file"); err != nil {
			return err
		}
	}

	if !reporter.OutputFormat(outputFormat).IsValid() {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "output-format", outputFormat, nil).
			WithSuggestion("Valid formats: console, json, yaml, csv")
	}

	if asOf != "" {
		if _, err := parseAsOf(asOf); err != nil {
			return errors.ValidationError(errors.CodeOutOfRange, "as-of", asOf, err).
				WithSuggestion("Use YYYY-MM-DD or an RFC3339 timestamp")
		}
	}

	return nil
}

// parseAsOf reads a date as the end of that day in UTC, or a full timestamp
func parseAsOf(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, err
	}
	return t.Add(24*time.Hour - time.Nanosecond), nil
}

func validateFileExists(filePath, description string) error {
	if filePath == "" {
		return errors.ValidationError(errors.CodeMissingField, description, nil, nil)
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return errors.FileError(errors.CodeFileNotFound, filePath, err).WithContext("description", description)
	}
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, filePath, err).WithContext("description", description)
	}

	if info.IsDir() {
		return errors.FileError(errors.CodeDirectoryError, filePath, fmt.Errorf("%s is a directory, expected a file", description))
	}

	// Check if file is readable
	file, err := os.Open(filePath)
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, filePath, err).WithContext("description", description)
	}
	file.Close()

	return nil
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	log := logger.WithComponent("cli")
	stderr := cmd.ErrOrStderr()

	if viper.GetBool("verbose") {
		fmt.Fprintf(stderr, "Starting planning run...\n")
		if balancesFile != "" {
			fmt.Fprintf(stderr, "Balances file: %s\n", balancesFile)
			fmt.Fprintf(stderr, "Usage file: %s\n", usageFile)
		}
		if dbPath != "" {
			fmt.Fprintf(stderr, "Database: %s\n", dbPath)
		}
		fmt.Fprintf(stderr, "Output format: %s\n", outputFormat)
		if outputFile != "" {
			fmt.Fprintf(stderr, "Output file: %s\n", outputFile)
		}
	}

	plannerConfig, err := config.LoadPlannerConfig(viper.GetViper(), log)
	if err != nil {
		return err
	}

	var store *storage.Store
	if dbPath != "" {
		store, err = storage.Open(ctx, dbPath)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	var (
		balances liquidity.BalanceSource
		usage    liquidity.UsageSource
		source   string
	)
	if balancesFile != "" {
		sourceConfig, err := config.CreateSourceConfig(viper.GetViper(), plannerConfig)
		if err != nil {
			return err
		}
		csvBalances, err := liquidity.NewCSVBalanceSource(balancesFile, sourceConfig)
		if err != nil {
			return err
		}
		csvUsage, err := liquidity.NewCSVUsageSource(usageFile, sourceConfig)
		if err != nil {
			return err
		}
		balances, usage, source = csvBalances, csvUsage, "csv"
	} else {
		balances, usage, source = store, store, "sqlite"
	}

	var opts []liquidity.Option
	if store != nil {
		opts = append(opts, liquidity.WithRateSource(store), liquidity.WithRecorder(store))
	}
	if showProgress {
		opts = append(opts, liquidity.WithProgress(config.ProgressPrinter(func(line string) {
			fmt.Fprintf(stderr, "\r%s", line)
		})))
	}

	service, err := liquidity.NewService(plannerConfig, balances, usage, opts...)
	if err != nil {
		return err
	}

	request := &liquidity.Request{Source: source, Record: recordRun}
	if asOf != "" {
		request.Now, _ = parseAsOf(asOf)
	}

	resp, err := service.Plan(ctx, request)
	if showProgress {
		fmt.Fprintf(stderr, "\n")
	}
	if err != nil {
		return err
	}

	if err := writeReport(resp, cmd.OutOrStdout(), log); err != nil {
		return err
	}

	if viper.GetBool("verbose") {
		result := resp.Result
		fmt.Fprintf(stderr, "\nPlanning completed: %s\n", result.Severity)
		fmt.Fprintf(stderr, "Need %s %s, sell %s %s now.\n",
			result.Need.NeedReserve.StringFixed(2), resp.ReserveCode,
			result.Plan.SellNow.Foreign.StringFixed(2), resp.ForeignCode)
		if resp.Recorded {
			fmt.Fprintf(stderr, "Recorded run %s.\n", resp.RunID)
		}
		fmt.Fprintf(stderr, "Processing time: %v\n", resp.Duration)
	}

	return nil
}

func writeReport(resp *liquidity.Response, stdout io.Writer, log logger.Logger) error {
	generator, err := reporter.NewSafeReportGenerator(config.CreateReportConfig(outputFormat), log)
	if err != nil {
		return err
	}

	if outputFile == "" {
		return generator.GenerateReportSafely(resp, stdout)
	}

	written, err := generator.WriteReportFile(resp, outputFile)
	if err != nil {
		return err
	}
	if filepath.Clean(written) != filepath.Clean(outputFile) {
		log.WithField("path", written).Warn("Report written to backup location")
	}
	return nil
}
