package planner

import (
	"golang-liquidity-planner/internal/models"

	"github.com/shopspring/decimal"
)

// Snapshot is the input of a single planning run
type Snapshot struct {
	Balances []*models.BalanceRecord
	Usage    []*models.UsageRow
}

// BolsaFees are the informational transfer fees shown when an unlimited
// instrument received funds.
type BolsaFees struct {
	Flat    decimal.Decimal `json:"flat" yaml:"flat"`
	Percent decimal.Decimal `json:"percent" yaml:"percent"`
}

// Result is everything a planning run produces
type Result struct {
	Totals             *Totals         `json:"totals" yaml:"totals"`
	Need               Need            `json:"need" yaml:"need"`
	Plan               Plan            `json:"plan" yaml:"plan"`
	UsableForeign      decimal.Decimal `json:"usable_foreign" yaml:"usable_foreign"`
	Classification     *Classification `json:"classification" yaml:"classification"`
	DistributionNow    *Distribution   `json:"distribution_now" yaml:"distribution_now"`
	DistributionTarget *Distribution   `json:"distribution_target,omitempty" yaml:"distribution_target,omitempty"`
	Projection         Projection      `json:"projection" yaml:"projection"`
	Severity           Severity        `json:"severity" yaml:"severity"`
	BolsaFees          *BolsaFees      `json:"bolsa_fees,omitempty" yaml:"bolsa_fees,omitempty"`
}

// Engine runs the planning pipeline with a fixed configuration. It holds no
// state between runs and is safe for concurrent use.
type Engine struct {
	config *Config
}

// NewEngine creates an engine with a private copy of config
func NewEngine(config *Config) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	return &Engine{config: config.Clone()}
}

// Config returns a copy of the engine configuration
func (e *Engine) Config() *Config {
	return e.config.Clone()
}

// Run computes the full plan for one snapshot
func (e *Engine) Run(snapshot Snapshot) *Result {
	cfg := e.config

	totals := Aggregate(snapshot.Balances, cfg)
	need := ComputeNeed(totals.AssetsReserve, totals.DebtsReserve, cfg.CushionTarget)
	plan := ComputePlan(NewPlanInput(need.NeedReserve, totals.ForeignInventory, cfg))
	usable := UsableInventory(totals.ForeignInventory, cfg.MinKeepForeign)

	classification := ClassifyUsage(snapshot.Usage, cfg)

	result := &Result{
		Totals:          totals,
		Need:            need,
		Plan:            plan,
		UsableForeign:   usable,
		Classification:  classification,
		DistributionNow: ComputeDistribution(plan.SellNow.ReserveIn, classification.Cards, cfg.BankOrder),
		Projection:      ComputeProjection(totals.AssetsReserve, totals.DebtsReserve, plan.SellNow.ReserveIn),
		Severity:        ComputeSeverity(need.NeedReserve, plan.SellNow.ReserveIn, usable, cfg.MinSellAmount),
	}

	// A residual shortfall gets a placement for the whole target too
	if plan.RemainingReserve.IsPositive() {
		result.DistributionTarget = ComputeDistribution(plan.SellTarget.ReserveIn, classification.Cards, cfg.BankOrder)
	}

	if result.DistributionNow.UsedBolsa || (result.DistributionTarget != nil && result.DistributionTarget.UsedBolsa) {
		result.BolsaFees = &BolsaFees{Flat: cfg.BolsaFlatFee, Percent: cfg.BolsaPercentFee}
	}

	return result
}

// HasUncovered reports whether any distribution left an amount unplaced
func (r *Result) HasUncovered() bool {
	if r.DistributionNow != nil && r.DistributionNow.Leftover.IsPositive() {
		return true
	}
	return r.DistributionTarget != nil && r.DistributionTarget.Leftover.IsPositive()
}
