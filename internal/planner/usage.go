package planner

import (
	"golang-liquidity-planner/internal/bankcode"
	"golang-liquidity-planner/internal/models"

	"github.com/shopspring/decimal"
)

// Classification is the monthly limit assessment of every deposit card
type Classification struct {
	Cards           []*models.Card  `json:"cards" yaml:"cards"`
	TotalRemaining  decimal.Decimal `json:"total_remaining" yaml:"total_remaining"`
	TotalDepositCap decimal.Decimal `json:"total_deposit_cap" yaml:"total_deposit_cap"`
	BlockedCount    int             `json:"blocked_count" yaml:"blocked_count"`
	ExtendableCount int             `json:"extendable_count" yaml:"extendable_count"`
	BolsaCount      int             `json:"bolsa_count" yaml:"bolsa_count"`
}

// ClassifyUsage assesses each usage row against its bank's monthly limit.
// Rows are expected to be already filtered to the reserve currency and the
// assessable banks.
func ClassifyUsage(rows []*models.UsageRow, cfg *Config) *Classification {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	overrideBank := bankcode.Normalize(cfg.OverrideBank)
	unlimitedBank := bankcode.Normalize(cfg.UnlimitedBank)
	extendable := bankcode.NewSet(cfg.ExtendableBanks...)
	defaultLimit := models.MaxZero(cfg.DefaultMonthlyLimit)
	overrideLimit := models.MaxZero(cfg.OverrideLimit)

	result := &Classification{
		Cards:           make([]*models.Card, 0, len(rows)),
		TotalRemaining:  decimal.Zero,
		TotalDepositCap: decimal.Zero,
	}

	for _, row := range rows {
		if row == nil {
			continue
		}

		bank := bankcode.Normalize(row.BankCodeRaw)
		limit := defaultLimit
		if bank != "" && bank == overrideBank {
			limit = overrideLimit
		}

		remaining := models.MaxZero(limit.Sub(row.UsedOut.Abs()))
		balance := models.MaxZero(row.CurrentBalance)

		card := &models.Card{
			Bank:         bank,
			InstrumentID: row.InstrumentID,
			MaskedID:     models.MaskInstrumentID(row.InstrumentID),
			Label:        row.Label,
			UsedOut:      row.UsedOut.Abs(),
			Limit:        limit,
			Remaining:    remaining,
			Balance:      balance,
			DepositCap:   models.MaxZero(remaining.Sub(balance)),
			Status:       models.CardOK,
			IsBolsa:      (bank != "" && bank == unlimitedBank) || matchesAny(row.Label, cfg.UnlimitedMarkers),
		}

		if remaining.IsZero() {
			if extendable.Has(bank) {
				card.Status = models.CardExtendable
				result.ExtendableCount++
			} else {
				card.Status = models.CardBlocked
				result.BlockedCount++
			}
		}
		if card.IsBolsa {
			result.BolsaCount++
		}

		result.TotalRemaining = result.TotalRemaining.Add(card.Remaining)
		result.TotalDepositCap = result.TotalDepositCap.Add(card.DepositCap)
		result.Cards = append(result.Cards, card)
	}

	return result
}
