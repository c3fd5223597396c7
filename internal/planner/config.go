// Package planner is the cash-liquidity planning engine.
//
// Given a snapshot of instrument balances and the month's inflow usage per
// deposit card, the engine computes:
//   - the reserve-currency shortfall against a cushion target
//   - how much foreign inventory to sell to cover it, now and in total
//   - each card's remaining monthly inflow allowance
//   - a deterministic, tiered distribution of the sale proceeds
//   - a severity level and the post-sale projection
//
// Every function is pure: no I/O, no logging, no shared state. Malformed or
// negative inputs are coerced toward a conservative plan rather than
// reported as errors.
//
// Example usage:
//
//	engine := planner.NewEngine(planner.DefaultConfig())
//	result := engine.Run(planner.Snapshot{Balances: balances, Usage: usage})
//	fmt.Println(result.Severity, result.Plan.SellNow.Foreign)
package planner

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"golang-liquidity-planner/internal/bankcode"

	"github.com/shopspring/decimal"
)

// Config holds every tunable of a planning run. Monetary values are in
// reserve-currency units unless the name says foreign.
type Config struct {
	// Currency classes
	ReserveCurrency   string   `json:"reserve_currency" yaml:"reserve_currency"`
	ForeignCurrencies []string `json:"foreign_currencies" yaml:"foreign_currencies"`

	// CushionTarget is the reserve buffer wanted after covering debts.
	CushionTarget decimal.Decimal `json:"cushion_target" yaml:"cushion_target"`

	// Sale parameters. SellRateNominal is reserve units per foreign unit.
	SellRateNominal  decimal.Decimal `json:"sell_rate_nominal" yaml:"sell_rate_nominal"`
	SellFeeFraction  decimal.Decimal `json:"sell_fee_fraction" yaml:"sell_fee_fraction"`
	FXMarginFraction decimal.Decimal `json:"fx_margin_fraction" yaml:"fx_margin_fraction"`
	SaleRounding     decimal.Decimal `json:"sale_rounding" yaml:"sale_rounding"`
	MinSellAmount    decimal.Decimal `json:"min_sell_amount" yaml:"min_sell_amount"`
	MinKeepForeign   decimal.Decimal `json:"min_keep_foreign" yaml:"min_keep_foreign"`

	// LiquidityBanks are the banks whose reserve balances count as quick liquidity.
	LiquidityBanks []string `json:"liquidity_banks" yaml:"liquidity_banks"`

	// Monthly inflow limits
	DefaultMonthlyLimit decimal.Decimal `json:"default_monthly_limit" yaml:"default_monthly_limit"`
	OverrideBank        string          `json:"override_bank" yaml:"override_bank"`
	OverrideLimit       decimal.Decimal `json:"override_limit" yaml:"override_limit"`
	ExtendableBanks     []string        `json:"extendable_banks" yaml:"extendable_banks"`
	AssessableBanks     []string        `json:"assessable_banks" yaml:"assessable_banks"`

	// BankOrder is the allocation preference, most preferred first.
	BankOrder []string `json:"bank_order" yaml:"bank_order"`

	// UnlimitedBank marks the bank whose instruments have no inflow ceiling.
	UnlimitedBank string `json:"unlimited_bank" yaml:"unlimited_bank"`

	// Free-text markers, matched case- and accent-insensitively.
	ReceivableMarkers []string `json:"receivable_markers" yaml:"receivable_markers"`
	UnlimitedMarkers  []string `json:"unlimited_markers" yaml:"unlimited_markers"`

	// Transfer fees charged when moving funds through an unlimited
	// instrument. Informational only; allocation ignores them.
	BolsaFlatFee    decimal.Decimal `json:"bolsa_flat_fee" yaml:"bolsa_flat_fee"`
	BolsaPercentFee decimal.Decimal `json:"bolsa_percent_fee" yaml:"bolsa_percent_fee"`

	// BuyRateOverride is used when no stored buy rate exists.
	BuyRateOverride decimal.NullDecimal `json:"buy_rate_override" yaml:"buy_rate_override"`

	// Timezone bounds the calendar month for usage aggregation.
	Timezone string `json:"timezone" yaml:"timezone"`
}

// DefaultConfig returns a configuration with the production defaults
func DefaultConfig() *Config {
	return &Config{
		ReserveCurrency:     "CUP",
		ForeignCurrencies:   []string{"USD", "MLC"},
		CushionTarget:       decimal.NewFromInt(150000),
		SellRateNominal:     decimal.NewFromInt(450),
		SellFeeFraction:     decimal.Zero,
		FXMarginFraction:    decimal.NewFromFloat(0.05),
		SaleRounding:        decimal.NewFromInt(10),
		MinSellAmount:       decimal.NewFromInt(40),
		MinKeepForeign:      decimal.Zero,
		LiquidityBanks:      []string{"BANDEC", "BPA", "METRO"},
		DefaultMonthlyLimit: decimal.NewFromInt(120000),
		OverrideBank:        "BPA",
		OverrideLimit:       decimal.NewFromInt(120000),
		ExtendableBanks:     []string{"BPA"},
		AssessableBanks:     []string{"BANDEC", "BPA", "METRO"},
		BankOrder:           []string{"BANDEC", "METRO", "BPA"},
		UnlimitedBank:       "BOLSA",
		ReceivableMarkers:   []string{"debe", "deuda", "prestamo", "por cobrar", "cxc", "adeuda"},
		UnlimitedMarkers:    []string{"bolsa", "monedero", "wallet"},
		BolsaFlatFee:        decimal.Zero,
		BolsaPercentFee:     decimal.NewFromFloat(0.01),
		Timezone:            "America/Havana",
	}
}

// Validate checks if the configuration is usable as given. The engine never
// calls it; callers that accept user input do.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ReserveCurrency) == "" {
		return fmt.Errorf("reserve currency cannot be empty")
	}

	for _, code := range c.ForeignCurrencies {
		if strings.EqualFold(strings.TrimSpace(code), strings.TrimSpace(c.ReserveCurrency)) {
			return fmt.Errorf("reserve currency %s cannot also be foreign", code)
		}
	}

	nonNegative := map[string]decimal.Decimal{
		"cushion_target":        c.CushionTarget,
		"sell_rate_nominal":     c.SellRateNominal,
		"min_sell_amount":       c.MinSellAmount,
		"min_keep_foreign":      c.MinKeepForeign,
		"default_monthly_limit": c.DefaultMonthlyLimit,
		"override_limit":        c.OverrideLimit,
		"bolsa_flat_fee":        c.BolsaFlatFee,
		"fx_margin_fraction":    c.FXMarginFraction,
	}
	for name, value := range nonNegative {
		if value.IsNegative() {
			return fmt.Errorf("%s cannot be negative: %s", name, value)
		}
	}

	for name, value := range map[string]decimal.Decimal{
		"sell_fee_fraction": c.SellFeeFraction,
		"bolsa_percent_fee": c.BolsaPercentFee,
	} {
		if value.IsNegative() || value.GreaterThanOrEqual(one) {
			return fmt.Errorf("%s must be in [0, 1): %s", name, value)
		}
	}

	if c.SaleRounding.LessThan(one) {
		return fmt.Errorf("sale rounding must be at least 1: %s", c.SaleRounding)
	}

	if c.BuyRateOverride.Valid && !c.BuyRateOverride.Decimal.IsPositive() {
		return fmt.Errorf("buy rate override must be positive: %s", c.BuyRateOverride.Decimal)
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone '%s': %w", c.Timezone, err)
	}

	return nil
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}

	clone := *c
	clone.ForeignCurrencies = append([]string(nil), c.ForeignCurrencies...)
	clone.LiquidityBanks = append([]string(nil), c.LiquidityBanks...)
	clone.ExtendableBanks = append([]string(nil), c.ExtendableBanks...)
	clone.AssessableBanks = append([]string(nil), c.AssessableBanks...)
	clone.BankOrder = append([]string(nil), c.BankOrder...)
	clone.ReceivableMarkers = append([]string(nil), c.ReceivableMarkers...)
	clone.UnlimitedMarkers = append([]string(nil), c.UnlimitedMarkers...)
	return &clone
}

// Location resolves Timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	if loc, err := time.LoadLocation(c.Timezone); err == nil {
		return loc
	}
	return time.UTC
}

// AssessableSet returns the normalized assessable banks
func (c *Config) AssessableSet() bankcode.Set {
	return bankcode.NewSet(c.AssessableBanks...)
}

// String returns a human-readable description of the configuration
func (c *Config) String() string {
	return fmt.Sprintf("Config{Reserve: %s, Cushion: %s, SellRate: %s, Fee: %s, Margin: %s, Rounding: %s, MinSell: %s}",
		c.ReserveCurrency, c.CushionTarget, c.SellRateNominal, c.SellFeeFraction,
		c.FXMarginFraction, c.SaleRounding, c.MinSellAmount)
}

// matchesAny reports whether any marker occurs in text, ignoring case and accents.
func matchesAny(text string, markers []string) bool {
	folded := bankcode.Fold(text)
	for _, m := range markers {
		m = bankcode.Fold(strings.TrimSpace(m))
		if m != "" && strings.Contains(folded, m) {
			return true
		}
	}
	return false
}
