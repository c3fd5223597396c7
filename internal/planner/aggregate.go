package planner

import (
	"golang-liquidity-planner/internal/bankcode"
	"golang-liquidity-planner/internal/models"

	"github.com/shopspring/decimal"
)

// Totals is the aggregated view of a balance snapshot
type Totals struct {
	AssetsReserve    decimal.Decimal            `json:"assets_reserve" yaml:"assets_reserve"`
	DebtsReserve     decimal.Decimal            `json:"debts_reserve" yaml:"debts_reserve"`
	NetReserve       decimal.Decimal            `json:"net_reserve" yaml:"net_reserve"`
	ForeignInventory decimal.Decimal            `json:"foreign_inventory" yaml:"foreign_inventory"`
	LiquidityByBank  map[string]decimal.Decimal `json:"liquidity_by_bank" yaml:"liquidity_by_bank"`
	LiquidityTotal   decimal.Decimal            `json:"liquidity_total" yaml:"liquidity_total"`
	Diagnostics      AggregateDiagnostics       `json:"diagnostics" yaml:"diagnostics"`
}

// AggregateDiagnostics records what the aggregation left out
type AggregateDiagnostics struct {
	Records             int                        `json:"records" yaml:"records"`
	ReceivablesExcluded int                        `json:"receivables_excluded" yaml:"receivables_excluded"`
	ReceivableAmount    decimal.Decimal            `json:"receivable_amount" yaml:"receivable_amount"`
	ForeignIgnored      int                        `json:"foreign_ignored" yaml:"foreign_ignored"`
	IgnoredByCurrency   map[string]int             `json:"ignored_by_currency,omitempty" yaml:"ignored_by_currency,omitempty"`
	UnknownBankReserve  decimal.Decimal            `json:"unknown_bank_reserve" yaml:"unknown_bank_reserve"`
	ForeignByCurrency   map[string]decimal.Decimal `json:"foreign_by_currency,omitempty" yaml:"foreign_by_currency,omitempty"`
}

// Aggregate splits a balance snapshot into reserve assets, reserve debts,
// foreign inventory and per-bank quick liquidity.
//
// Non-negative reserve balances whose owner, bank or label text mentions a
// receivable marker are excluded entirely. Negative reserve balances are
// debts regardless of text. Foreign balances are converted with their unit
// value; a zero unit value counts as 1.
func Aggregate(records []*models.BalanceRecord, cfg *Config) *Totals {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	reserve := models.NormalizeCurrency(cfg.ReserveCurrency)
	foreign := make(map[string]bool, len(cfg.ForeignCurrencies))
	for _, code := range cfg.ForeignCurrencies {
		foreign[models.NormalizeCurrency(code)] = true
	}
	liquidity := bankcode.NewSet(cfg.LiquidityBanks...)

	totals := &Totals{
		AssetsReserve:    decimal.Zero,
		DebtsReserve:     decimal.Zero,
		ForeignInventory: decimal.Zero,
		LiquidityByBank:  make(map[string]decimal.Decimal),
		LiquidityTotal:   decimal.Zero,
		Diagnostics: AggregateDiagnostics{
			ReceivableAmount:   decimal.Zero,
			UnknownBankReserve: decimal.Zero,
			IgnoredByCurrency:  make(map[string]int),
			ForeignByCurrency:  make(map[string]decimal.Decimal),
		},
	}

	for _, r := range records {
		if r == nil {
			continue
		}
		totals.Diagnostics.Records++

		currency := models.NormalizeCurrency(r.CurrencyCode)
		bank := bankcode.Normalize(r.BankCode)

		switch {
		case currency == reserve:
			totals.addReserve(r, bank, liquidity, cfg.ReceivableMarkers)

		case foreign[currency]:
			if !r.Amount.IsPositive() {
				totals.Diagnostics.ForeignIgnored++
				continue
			}
			converted := r.Amount.Mul(r.UnitValue)
			if !converted.IsPositive() {
				totals.Diagnostics.ForeignIgnored++
				continue
			}
			totals.ForeignInventory = totals.ForeignInventory.Add(converted)
			totals.Diagnostics.ForeignByCurrency[currency] = totals.Diagnostics.ForeignByCurrency[currency].Add(converted)

		default:
			key := currency
			if key == "" {
				key = "UNKNOWN"
			}
			totals.Diagnostics.IgnoredByCurrency[key]++
		}
	}

	totals.NetReserve = totals.AssetsReserve.Add(totals.DebtsReserve)
	for _, amount := range totals.LiquidityByBank {
		if amount.IsPositive() {
			totals.LiquidityTotal = totals.LiquidityTotal.Add(amount)
		}
	}

	return totals
}

func (t *Totals) addReserve(r *models.BalanceRecord, bank string, liquidity bankcode.Set, markers []string) {
	if bank == "" {
		t.Diagnostics.UnknownBankReserve = t.Diagnostics.UnknownBankReserve.Add(r.Amount)
	}

	// Debts are never liquidity, but the bank stays visible
	if r.Amount.IsNegative() {
		t.DebtsReserve = t.DebtsReserve.Add(r.Amount)
		if liquidity.Has(bank) {
			if _, ok := t.LiquidityByBank[bank]; !ok {
				t.LiquidityByBank[bank] = decimal.Zero
			}
		}
		return
	}

	if matchesAny(r.Text(), markers) {
		t.Diagnostics.ReceivablesExcluded++
		t.Diagnostics.ReceivableAmount = t.Diagnostics.ReceivableAmount.Add(r.Amount)
		return
	}

	t.AssetsReserve = t.AssetsReserve.Add(r.Amount)
	if liquidity.Has(bank) {
		t.LiquidityByBank[bank] = t.LiquidityByBank[bank].Add(r.Amount)
	}
}
