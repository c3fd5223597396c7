package planner

import (
	"golang-liquidity-planner/internal/models"

	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

// Need is the reserve shortfall against the cushion target
type Need struct {
	NeedReserve   decimal.Decimal `json:"need_reserve" yaml:"need_reserve"`
	CushionTarget decimal.Decimal `json:"cushion_target" yaml:"cushion_target"`
	Available     decimal.Decimal `json:"available" yaml:"available"`
	DebtAbs       decimal.Decimal `json:"debt_abs" yaml:"debt_abs"`
}

// ComputeNeed returns max(0, round(|debts| + cushion - assets)). Rounding is
// half away from zero to whole reserve units.
func ComputeNeed(assetsReserve, debtsReserve, cushionTarget decimal.Decimal) Need {
	debtAbs := debtsReserve.Abs()
	need := debtAbs.Add(cushionTarget).Sub(assetsReserve).Round(0)

	return Need{
		NeedReserve:   models.MaxZero(need),
		CushionTarget: cushionTarget,
		Available:     assetsReserve.Sub(debtAbs),
		DebtAbs:       debtAbs,
	}
}

// PlanInput carries the figures a sale plan is computed from
type PlanInput struct {
	NeedReserve      decimal.Decimal
	ForeignInventory decimal.Decimal
	SellRateNominal  decimal.Decimal
	MinSellAmount    decimal.Decimal
	SellFeeFraction  decimal.Decimal
	FXMarginFraction decimal.Decimal
	Rounding         decimal.Decimal
	MinKeepForeign   decimal.Decimal
}

// NewPlanInput takes the sale parameters from cfg
func NewPlanInput(need, foreignInventory decimal.Decimal, cfg *Config) PlanInput {
	return PlanInput{
		NeedReserve:      need,
		ForeignInventory: foreignInventory,
		SellRateNominal:  cfg.SellRateNominal,
		MinSellAmount:    cfg.MinSellAmount,
		SellFeeFraction:  cfg.SellFeeFraction,
		FXMarginFraction: cfg.FXMarginFraction,
		Rounding:         cfg.SaleRounding,
		MinKeepForeign:   cfg.MinKeepForeign,
	}
}

// Sale is an amount of foreign units and the reserve it brings in
type Sale struct {
	Foreign   decimal.Decimal `json:"foreign" yaml:"foreign"`
	ReserveIn decimal.Decimal `json:"reserve_in" yaml:"reserve_in"`
}

// ImmediateSale is the part of the target that inventory covers today.
// MinWarning is set when the sale was dropped for falling under the minimum.
type ImmediateSale struct {
	Foreign    decimal.Decimal `json:"foreign" yaml:"foreign"`
	ReserveIn  decimal.Decimal `json:"reserve_in" yaml:"reserve_in"`
	MinWarning bool            `json:"min_warning" yaml:"min_warning"`
}

// Plan is the foreign sale needed to cover a shortfall
type Plan struct {
	NeedReserve      decimal.Decimal `json:"need_reserve" yaml:"need_reserve"`
	SellTarget       Sale            `json:"sell_target" yaml:"sell_target"`
	SellNow          ImmediateSale   `json:"sell_now" yaml:"sell_now"`
	RemainingReserve decimal.Decimal `json:"remaining_reserve" yaml:"remaining_reserve"`
	RemainingForeign decimal.Decimal `json:"remaining_foreign" yaml:"remaining_foreign"`
	EffectiveNetRate decimal.Decimal `json:"effective_net_rate" yaml:"effective_net_rate"`
}

// IsNoAction reports whether the plan asks for no sale at all
func (p Plan) IsNoAction() bool {
	return p.SellTarget.Foreign.IsZero() && p.RemainingReserve.IsZero()
}

func zeroPlan(need, rate decimal.Decimal) Plan {
	return Plan{
		NeedReserve:      need,
		SellTarget:       Sale{Foreign: decimal.Zero, ReserveIn: decimal.Zero},
		SellNow:          ImmediateSale{Foreign: decimal.Zero, ReserveIn: decimal.Zero},
		RemainingReserve: decimal.Zero,
		RemainingForeign: decimal.Zero,
		EffectiveNetRate: rate,
	}
}

// ComputePlan derives the sale target and the immediate sale.
//
// The target carries the FX margin and is rounded up to the granularity; the
// immediate sale is only capped by usable inventory and the minimum sale.
func ComputePlan(in PlanInput) Plan {
	need := models.MaxZero(in.NeedReserve).Round(0)
	fee := clampFraction(in.SellFeeFraction)
	margin := models.MaxZero(in.FXMarginFraction)
	granularity := in.Rounding.Floor()
	if granularity.LessThan(one) {
		granularity = one
	}
	minSell := models.MaxZero(in.MinSellAmount)

	rate := models.MaxZero(in.SellRateNominal).Mul(one.Sub(fee)).Floor()
	if need.IsZero() || rate.IsZero() {
		return zeroPlan(need, rate)
	}

	// Target: raw units, plus margin, rounded up
	rawTarget := need.Div(rate).Ceil()
	marginUnits := rawTarget.Mul(margin).Ceil()
	target := rawTarget.Add(marginUnits).Div(granularity).Ceil().Mul(granularity)

	usable := UsableInventory(in.ForeignInventory, in.MinKeepForeign)
	sellNow := decimal.Min(usable, target)
	minWarning := false
	if target.IsPositive() && sellNow.LessThan(minSell) {
		sellNow = decimal.Zero
		minWarning = true
	}
	sellNowIn := sellNow.Mul(rate)

	remaining := models.MaxZero(need.Sub(sellNowIn))

	return Plan{
		NeedReserve: need,
		SellTarget: Sale{
			Foreign:   target,
			ReserveIn: target.Mul(rate),
		},
		SellNow: ImmediateSale{
			Foreign:    sellNow,
			ReserveIn:  sellNowIn,
			MinWarning: minWarning,
		},
		RemainingReserve: remaining,
		RemainingForeign: remaining.Div(rate).Ceil(),
		EffectiveNetRate: rate,
	}
}

// UsableInventory is the whole foreign units that may be sold after keeping
// the configured minimum.
func UsableInventory(foreignInventory, minKeepForeign decimal.Decimal) decimal.Decimal {
	return models.MaxZero(foreignInventory.Floor().Sub(models.MaxZero(minKeepForeign)))
}

func clampFraction(f decimal.Decimal) decimal.Decimal {
	if f.IsNegative() {
		return decimal.Zero
	}
	if f.GreaterThan(one) {
		return one
	}
	return f
}
