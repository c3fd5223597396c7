// Package reporter renders planning results.
//
// Supported output formats:
//   - Console: human-readable summary for terminal display
//   - JSON: structured data for programmatic consumption
//   - YAML: the same structure as JSON, for config-style tooling
//   - CSV: the placement plan, one row per assignment
//
// Example usage:
//
//	gen, err := reporter.NewReportGenerator(&reporter.ReportConfig{Format: reporter.FormatJSON})
//	err = gen.GenerateReport(resp, os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"golang-liquidity-planner/internal/liquidity"
	"golang-liquidity-planner/internal/planner"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// OutputFormat represents the supported report output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatYAML    OutputFormat = "yaml"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatYAML, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	// Detail level options
	IncludeCards       bool `json:"include_cards"`
	IncludeTarget      bool `json:"include_target"`
	IncludeDiagnostics bool `json:"include_diagnostics"`
	IncludeParseStats  bool `json:"include_parse_stats"`

	// Console formatting options
	MaxCardRows int `json:"max_card_rows"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:             FormatConsole,
		IncludeCards:       true,
		IncludeTarget:      true,
		IncludeDiagnostics: true,
		IncludeParseStats:  true,
		MaxCardRows:        20,
		CSVDelimiter:       ',',
		CSVHeaders:         true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	if c.MaxCardRows < 0 {
		return fmt.Errorf("max card rows cannot be negative, got %d", c.MaxCardRows)
	}
	if c.Format == FormatCSV && (c.CSVDelimiter == 0 || c.CSVDelimiter == '"' || c.CSVDelimiter == '\n') {
		return fmt.Errorf("invalid CSV delimiter %q", c.CSVDelimiter)
	}
	return nil
}

// ReportGenerator generates planning reports in various formats
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	return &ReportGenerator{config: config}, nil
}

// GetConfiguration returns the current configuration
func (rg *ReportGenerator) GetConfiguration() *ReportConfig {
	return rg.config
}

// GenerateReport writes a report of resp to writer
func (rg *ReportGenerator) GenerateReport(resp *liquidity.Response, writer io.Writer) error {
	if resp == nil || resp.Result == nil {
		return fmt.Errorf("planning response cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(resp, writer)
	case FormatJSON:
		return rg.generateJSONReport(resp, writer)
	case FormatYAML:
		return rg.generateYAMLReport(resp, writer)
	case FormatCSV:
		return rg.generateCSVReport(resp, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// severityHeadline explains each severity in one line
var severityHeadline = map[planner.Severity]string{
	planner.SeverityNormal:    "Cushion met, no sale needed",
	planner.SeverityPriority:  "Sell today; the sale covers the shortfall",
	planner.SeverityAttention: "Shortfall covered, but usable foreign inventory is under the minimum sale",
	planner.SeverityUrgent:    "Today's sale does not cover the shortfall",
}

func (rg *ReportGenerator) generateConsoleReport(resp *liquidity.Response, w io.Writer) error {
	r := resp.Result
	reserve := resp.ReserveCode
	foreign := resp.ForeignCode

	fmt.Fprintf(w, "LIQUIDITY PLAN\n")
	fmt.Fprintf(w, "Run:       %s\n", resp.RunID)
	fmt.Fprintf(w, "Generated: %s\n", resp.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Severity:  %s - %s\n\n", r.Severity, severityHeadline[r.Severity])

	fmt.Fprintf(w, "=== POSITION ===\n")
	fmt.Fprintf(w, "Assets:            %s %s\n", money(r.Totals.AssetsReserve), reserve)
	fmt.Fprintf(w, "Debts:             %s %s\n", money(r.Totals.DebtsReserve), reserve)
	fmt.Fprintf(w, "Cushion target:    %s %s\n", money(r.Need.CushionTarget), reserve)
	fmt.Fprintf(w, "Need:              %s %s\n", money(r.Need.NeedReserve), reserve)
	fmt.Fprintf(w, "Foreign inventory: %s %s (usable %s)\n", money(r.Totals.ForeignInventory), foreign, money(r.UsableForeign))
	if len(r.Totals.LiquidityByBank) > 0 {
		fmt.Fprintf(w, "Quick liquidity:   %s %s\n", money(r.Totals.LiquidityTotal), reserve)
		for _, bank := range sortedKeys(r.Totals.LiquidityByBank) {
			fmt.Fprintf(w, "  %-10s %s\n", bank, money(r.Totals.LiquidityByBank[bank]))
		}
	}
	fmt.Fprintf(w, "\n")

	fmt.Fprintf(w, "=== SALE ===\n")
	plan := r.Plan
	if plan.IsNoAction() {
		fmt.Fprintf(w, "No sale needed.\n")
	} else {
		fmt.Fprintf(w, "Net rate:   %s %s per %s\n", plan.EffectiveNetRate.StringFixed(2), reserve, foreign)
		fmt.Fprintf(w, "Target:     %s %s -> %s %s\n", money(plan.SellTarget.Foreign), foreign, money(plan.SellTarget.ReserveIn), reserve)
		fmt.Fprintf(w, "Sell now:   %s %s -> %s %s\n", money(plan.SellNow.Foreign), foreign, money(plan.SellNow.ReserveIn), reserve)
		if plan.SellNow.MinWarning {
			fmt.Fprintf(w, "  Sale dropped: usable inventory is under the minimum sale amount\n")
		}
		if plan.RemainingReserve.IsPositive() {
			fmt.Fprintf(w, "Remaining:  %s %s still short (%s %s more to sell)\n",
				money(plan.RemainingReserve), reserve, money(plan.RemainingForeign), foreign)
		}
	}
	if resp.BuyRate.Valid {
		fmt.Fprintf(w, "Buy rate:   %s %s per %s (%s)\n", resp.BuyRate.Decimal.StringFixed(2), reserve, foreign, resp.BuyRateOrigin)
	}
	fmt.Fprintf(w, "\n")

	if r.DistributionNow.Requested.IsPositive() {
		fmt.Fprintf(w, "=== PLACEMENT (SELL NOW) ===\n")
		rg.printDistribution(r.DistributionNow, reserve, w)
		fmt.Fprintf(w, "\n")
	}
	if rg.config.IncludeTarget && r.DistributionTarget != nil {
		fmt.Fprintf(w, "=== PLACEMENT (FULL TARGET) ===\n")
		rg.printDistribution(r.DistributionTarget, reserve, w)
		fmt.Fprintf(w, "\n")
	}
	if r.BolsaFees != nil {
		fmt.Fprintf(w, "NOTE: Funds routed through the unlimited wallet pay a transfer fee of %s%%",
			r.BolsaFees.Percent.Mul(decimal.NewFromInt(100)).String())
		if r.BolsaFees.Flat.IsPositive() {
			fmt.Fprintf(w, " plus %s %s", money(r.BolsaFees.Flat), reserve)
		}
		fmt.Fprintf(w, ".\n\n")
	}

	fmt.Fprintf(w, "=== PROJECTION ===\n")
	fmt.Fprintf(w, "Assets after sale:  %s %s\n", money(r.Projection.AssetsPost), reserve)
	fmt.Fprintf(w, "Debts:              %s %s\n", money(r.Projection.DebtAbs), reserve)
	fmt.Fprintf(w, "Uncovered debts:    %s %s\n", money(r.Projection.NegativesPost), reserve)
	fmt.Fprintf(w, "Cushion after sale: %s %s\n\n", money(r.Projection.CushionPost), reserve)

	if rg.config.IncludeCards && r.Classification != nil {
		fmt.Fprintf(w, "=== CARDS ===\n")
		rg.printCards(r.Classification, w)
		fmt.Fprintf(w, "\n")
	}

	if rg.config.IncludeDiagnostics {
		rg.printDiagnostics(r.Totals.Diagnostics, reserve, w)
	}

	if rg.config.IncludeParseStats {
		for _, st := range resp.ParseStats {
			if st.HasErrors() || st.HasWarnings() {
				fmt.Fprintf(w, "Input %s\n", st.String())
				for _, msg := range st.GetSampleErrors(5) {
					fmt.Fprintf(w, "  error: %s\n", msg)
				}
				for _, msg := range st.GetSampleWarnings(5) {
					fmt.Fprintf(w, "  warning: %s\n", msg)
				}
			}
		}
	}

	return nil
}

func (rg *ReportGenerator) printDistribution(dist *planner.Distribution, reserve string, w io.Writer) {
	fmt.Fprintf(w, "Requested: %s %s\n", money(dist.Requested), reserve)
	for i, a := range dist.Assignments {
		marker := ""
		if a.IsBolsa {
			marker = " [wallet]"
		}
		fmt.Fprintf(w, "  %d. %-8s *%-5s %14s  (%s, room %s -> %s)%s\n",
			i+1, a.Bank, a.MaskedID, money(a.Assigned), a.Tier, money(a.CapacityBefore), money(a.CapacityAfter), marker)
	}
	if dist.Leftover.IsPositive() {
		fmt.Fprintf(w, "  UNPLACED: %s %s has no card able to receive it\n", money(dist.Leftover), reserve)
	}
}

func (rg *ReportGenerator) printCards(c *planner.Classification, w io.Writer) {
	fmt.Fprintf(w, "Room this month: %s (deposit capacity %s)\n", money(c.TotalRemaining), money(c.TotalDepositCap))
	fmt.Fprintf(w, "Blocked: %d, Extendable: %d, Wallets: %d\n", c.BlockedCount, c.ExtendableCount, c.BolsaCount)

	for i, card := range c.Cards {
		if rg.config.MaxCardRows > 0 && i >= rg.config.MaxCardRows {
			fmt.Fprintf(w, "  ... and %d more\n", len(c.Cards)-rg.config.MaxCardRows)
			break
		}
		fmt.Fprintf(w, "  %-8s *%-5s %-10s used %14s  left %14s  cap %14s\n",
			card.Bank, card.MaskedID, card.Status, money(card.UsedOut), money(card.Remaining), money(card.DepositCap))
	}
}

func (rg *ReportGenerator) printDiagnostics(diag planner.AggregateDiagnostics, reserve string, w io.Writer) {
	if diag.ReceivablesExcluded == 0 && diag.ForeignIgnored == 0 && len(diag.IgnoredByCurrency) == 0 &&
		diag.UnknownBankReserve.IsZero() {
		return
	}
	fmt.Fprintf(w, "=== DIAGNOSTICS ===\n")
	fmt.Fprintf(w, "Records:              %d\n", diag.Records)
	if diag.ReceivablesExcluded > 0 {
		fmt.Fprintf(w, "Receivables excluded: %d (%s %s)\n", diag.ReceivablesExcluded, money(diag.ReceivableAmount), reserve)
	}
	if len(diag.IgnoredByCurrency) > 0 {
		total := 0
		parts := make([]string, 0, len(diag.IgnoredByCurrency))
		for _, code := range sortedKeys(diag.IgnoredByCurrency) {
			total += diag.IgnoredByCurrency[code]
			parts = append(parts, fmt.Sprintf("%s=%d", code, diag.IgnoredByCurrency[code]))
		}
		fmt.Fprintf(w, "Ignored currencies:   %d (%s)\n", total, strings.Join(parts, ", "))
	}
	if diag.ForeignIgnored > 0 {
		fmt.Fprintf(w, "Foreign not counted:  %d (zero or negative value)\n", diag.ForeignIgnored)
	}
	if !diag.UnknownBankReserve.IsZero() {
		fmt.Fprintf(w, "Reserve at other banks: %s %s\n", money(diag.UnknownBankReserve), reserve)
	}
	fmt.Fprintf(w, "\n")
}

// document builds the structured output shared by JSON and YAML
func (rg *ReportGenerator) document(resp *liquidity.Response) map[string]interface{} {
	r := resp.Result
	doc := map[string]interface{}{
		"run_id":           resp.RunID,
		"generated_at":     resp.GeneratedAt.Format(time.RFC3339),
		"reserve_currency": resp.ReserveCode,
		"foreign_currency": resp.ForeignCode,
		"severity":         r.Severity,
		"need":             r.Need,
		"plan":             r.Plan,
		"usable_foreign":   r.UsableForeign,
		"distribution_now": r.DistributionNow,
		"projection":       r.Projection,
		"uncovered":        r.HasUncovered(),
	}
	if resp.Source != "" {
		doc["source"] = resp.Source
	}
	if resp.Recorded {
		doc["recorded"] = true
	}
	if resp.BuyRate.Valid {
		doc["buy_rate"] = resp.BuyRate.Decimal
		doc["buy_rate_origin"] = resp.BuyRateOrigin
	}
	if rg.config.IncludeTarget && r.DistributionTarget != nil {
		doc["distribution_target"] = r.DistributionTarget
	}
	if r.BolsaFees != nil {
		doc["bolsa_fees"] = r.BolsaFees
	}
	if rg.config.IncludeCards {
		doc["classification"] = r.Classification
	}
	if rg.config.IncludeDiagnostics {
		doc["totals"] = r.Totals
	}
	if rg.config.IncludeParseStats && len(resp.ParseStats) > 0 {
		stats := make([]map[string]interface{}, 0, len(resp.ParseStats))
		for _, st := range resp.ParseStats {
			stats = append(stats, map[string]interface{}{
				"source":         st.Source,
				"records_parsed": st.RecordsParsed,
				"records_valid":  st.RecordsValid,
				"errors":         st.ErrorCount,
				"warnings":       len(st.Warnings),
			})
		}
		doc["inputs"] = stats
	}
	return doc
}

func (rg *ReportGenerator) generateJSONReport(resp *liquidity.Response, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(rg.document(resp))
}

func (rg *ReportGenerator) generateYAMLReport(resp *liquidity.Response, w io.Writer) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(rg.document(resp)); err != nil {
		return fmt.Errorf("failed to encode YAML report: %w", err)
	}
	return encoder.Close()
}

// generateCSVReport writes one row per assignment plus one row per unplaced
// amount
func (rg *ReportGenerator) generateCSVReport(resp *liquidity.Response, w io.Writer) error {
	csvWriter := csv.NewWriter(w)
	csvWriter.Comma = rg.config.CSVDelimiter

	if rg.config.CSVHeaders {
		headers := []string{
			"Run_ID",
			"Distribution",
			"Order",
			"Tier",
			"Bank",
			"Card",
			"Status",
			"Wallet",
			"Assigned",
			"Capacity_Before",
			"Capacity_After",
		}
		if err := csvWriter.Write(headers); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	write := func(name string, dist *planner.Distribution) error {
		if dist == nil {
			return nil
		}
		for i, a := range dist.Assignments {
			record := []string{
				resp.RunID,
				name,
				fmt.Sprintf("%d", i+1),
				a.Tier.String(),
				a.Bank,
				a.MaskedID,
				a.Status.String(),
				fmt.Sprintf("%t", a.IsBolsa),
				a.Assigned.String(),
				a.CapacityBefore.String(),
				a.CapacityAfter.String(),
			}
			if err := csvWriter.Write(record); err != nil {
				return fmt.Errorf("failed to write assignment record: %w", err)
			}
		}
		if dist.Leftover.IsPositive() {
			record := []string{resp.RunID, name, "", "unplaced", "", "", "", "", dist.Leftover.String(), "", ""}
			if err := csvWriter.Write(record); err != nil {
				return fmt.Errorf("failed to write leftover record: %w", err)
			}
		}
		return nil
	}

	if err := write("now", resp.Result.DistributionNow); err != nil {
		return err
	}
	if rg.config.IncludeTarget {
		if err := write("target", resp.Result.DistributionTarget); err != nil {
			return err
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
