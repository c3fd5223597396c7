package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang-liquidity-planner/internal/liquidity"
	"golang-liquidity-planner/internal/models"
	"golang-liquidity-planner/internal/parsers"
	"golang-liquidity-planner/internal/planner"
	"golang-liquidity-planner/internal/storage"

	"github.com/shopspring/decimal"
)

// ScenarioResult is the outcome of validating one scenario directory
type ScenarioResult struct {
	Name       string
	Severity   planner.Severity
	Violations []string
	Warnings   []string
}

// IsValid reports whether the scenario passed every check
func (r *ScenarioResult) IsValid() bool {
	return len(r.Violations) == 0
}

func (r *ScenarioResult) fail(format string, args ...interface{}) {
	r.Violations = append(r.Violations, fmt.Sprintf(format, args...))
}

func main() {
	var (
		dataDir = flag.String("data-dir", "../generated", "Directory holding one sub-directory per scenario")
		asOf    = flag.String("as-of", "2024-03-20", "Planning date used to derive usage from movements (YYYY-MM-DD)")
		verbose = flag.Bool("verbose", false, "Verbose output")
	)
	flag.Parse()

	at, err := time.Parse("2006-01-02", *asOf)
	if err != nil {
		log.Fatalf("Invalid as-of date: %v", err)
	}
	at = at.Add(24*time.Hour - time.Nanosecond)

	entries, err := os.ReadDir(*dataDir)
	if err != nil {
		log.Fatalf("Failed to read data directory: %v", err)
	}

	fmt.Println("Snapshot Validator")
	fmt.Println("==================")
	fmt.Printf("Data directory: %s\n\n", *dataDir)

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	failed := 0
	for _, name := range names {
		result := validateScenario(context.Background(), filepath.Join(*dataDir, name), at)
		result.Name = name

		status := "PASS"
		if !result.IsValid() {
			status = "FAIL"
			failed++
		}
		fmt.Printf("%-12s %-5s severity=%s\n", name, status, result.Severity)
		for _, v := range result.Violations {
			fmt.Printf("  violation: %s\n", v)
		}
		if *verbose {
			for _, w := range result.Warnings {
				fmt.Printf("  warning: %s\n", w)
			}
		}
	}

	fmt.Printf("\n%d scenarios, %d failed\n", len(names), failed)
	if failed > 0 {
		os.Exit(1)
	}
}

// validateScenario plans the scenario from its CSV files, checks the plan's
// invariants and checks that usage derived from the movements matches the
// usage file
func validateScenario(ctx context.Context, dir string, at time.Time) *ScenarioResult {
	result := &ScenarioResult{}
	cfg := planner.DefaultConfig()
	sourceConfig := parsers.DefaultSourceConfig()
	sourceConfig.Location = time.UTC

	balances, err := liquidity.NewCSVBalanceSource(filepath.Join(dir, "balances.csv"), sourceConfig)
	if err != nil {
		result.fail("balances source: %v", err)
		return result
	}
	usage, err := liquidity.NewCSVUsageSource(filepath.Join(dir, "usage.csv"), sourceConfig)
	if err != nil {
		result.fail("usage source: %v", err)
		return result
	}

	service, err := liquidity.NewService(cfg, balances, usage)
	if err != nil {
		result.fail("service: %v", err)
		return result
	}
	resp, err := service.Plan(ctx, &liquidity.Request{Source: "csv", Now: at})
	if err != nil {
		result.fail("plan: %v", err)
		return result
	}
	for _, st := range resp.ParseStats {
		result.Warnings = append(result.Warnings, st.GetSampleWarnings(0)...)
	}

	checkPlan(result, resp.Result)
	checkDerivedUsage(ctx, result, dir, cfg, sourceConfig, at, usage)
	return result
}

func checkPlan(result *ScenarioResult, r *planner.Result) {
	result.Severity = r.Severity

	if r.Need.NeedReserve.IsNegative() {
		result.fail("need is negative: %s", r.Need.NeedReserve)
	}
	if r.Plan.SellNow.Foreign.GreaterThan(r.UsableForeign) {
		result.fail("sell-now %s exceeds usable inventory %s", r.Plan.SellNow.Foreign, r.UsableForeign)
	}
	if r.Plan.SellNow.ReserveIn.IsPositive() && !r.DistributionNow.Requested.Equal(r.Plan.SellNow.ReserveIn) {
		result.fail("sell-now distribution requested %s, sale brings %s", r.DistributionNow.Requested, r.Plan.SellNow.ReserveIn)
	}
	if r.Plan.RemainingReserve.IsPositive() != (r.Severity == planner.SeverityUrgent) {
		result.fail("severity %s does not match remaining %s", r.Severity, r.Plan.RemainingReserve)
	}

	checkDistribution(result, "now", r.DistributionNow)
	if r.DistributionTarget != nil {
		checkDistribution(result, "target", r.DistributionTarget)
	}
}

func checkDistribution(result *ScenarioResult, name string, d *planner.Distribution) {
	total := decimal.Zero
	for _, a := range d.Assignments {
		if !a.Assigned.IsPositive() {
			result.fail("%s: %s *%s assigned %s", name, a.Bank, a.MaskedID, a.Assigned)
		}
		if a.Tier == planner.TierOpen && a.Assigned.GreaterThan(a.CapacityBefore) {
			result.fail("%s: %s *%s assigned %s over capacity %s", name, a.Bank, a.MaskedID, a.Assigned, a.CapacityBefore)
		}
		total = total.Add(a.Assigned)
	}
	if !total.Equal(d.TotalAssigned) {
		result.fail("%s: assignments add to %s, total says %s", name, total, d.TotalAssigned)
	}
	if !total.Add(d.Leftover).Equal(d.Requested) {
		result.fail("%s: assigned %s + leftover %s != requested %s", name, total, d.Leftover, d.Requested)
	}
}

func checkDerivedUsage(ctx context.Context, result *ScenarioResult, dir string, cfg *planner.Config, sourceConfig *parsers.SourceConfig, at time.Time, fromFile liquidity.UsageSource) {
	movementsPath := filepath.Join(dir, "movements.csv")
	if _, err := os.Stat(movementsPath); err != nil {
		return
	}

	tmp, err := os.MkdirTemp("", "snapshot-validator")
	if err != nil {
		result.fail("temp dir: %v", err)
		return
	}
	defer os.RemoveAll(tmp)

	store, err := storage.Open(ctx, filepath.Join(tmp, "planner.db"))
	if err != nil {
		result.fail("store: %v", err)
		return
	}
	defer store.Close()

	parser, err := parsers.NewMovementParser(sourceConfig)
	if err != nil {
		result.fail("movement parser: %v", err)
		return
	}
	if _, err := parser.ParseMovementsStream(ctx, movementsPath, 200, func(batch []*models.Movement) error {
		return store.InsertMovements(ctx, batch)
	}); err != nil {
		result.fail("ingest movements: %v", err)
		return
	}

	derived, err := store.LoadUsage(ctx, cfg.ReserveCurrency, cfg.AssessableSet(), at, time.UTC)
	if err != nil {
		result.fail("derive usage: %v", err)
		return
	}
	expected, err := fromFile.LoadUsage(ctx, cfg.ReserveCurrency, cfg.AssessableSet(), at, time.UTC)
	if err != nil {
		result.fail("usage file: %v", err)
		return
	}

	byID := make(map[string]*models.UsageRow, len(derived))
	for _, row := range derived {
		byID[row.InstrumentID] = row
	}
	for _, want := range expected {
		got, ok := byID[want.InstrumentID]
		if !ok {
			if want.UsedOut.IsPositive() || !want.CurrentBalance.IsZero() {
				result.fail("card %s has no movements", models.MaskInstrumentID(want.InstrumentID))
			}
			continue
		}
		if !got.UsedOut.Equal(want.UsedOut) || !got.CurrentBalance.Equal(want.CurrentBalance) {
			result.fail("card %s: movements give used %s balance %s, usage file has %s / %s",
				models.MaskInstrumentID(want.InstrumentID), got.UsedOut, got.CurrentBalance, want.UsedOut, want.CurrentBalance)
		}
	}
}
