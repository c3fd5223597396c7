package planner

import (
	"golang-liquidity-planner/internal/models"

	"github.com/shopspring/decimal"
)

// Severity is the single headline level of a planning run
type Severity string

const (
	// SeverityNormal means the cushion is already met
	SeverityNormal Severity = "NORMAL"
	// SeverityUrgent means today's sale does not cover the need
	SeverityUrgent Severity = "URGENT"
	// SeverityAttention means the need is covered but inventory is under the minimum sale
	SeverityAttention Severity = "ATTENTION"
	// SeverityPriority means the need is covered and the sale still has to happen
	SeverityPriority Severity = "PRIORITY"
)

// String returns the string representation of Severity
func (s Severity) String() string {
	return string(s)
}

// Rank orders severities from calm to critical
func (s Severity) Rank() int {
	switch s {
	case SeverityNormal:
		return 0
	case SeverityPriority:
		return 1
	case SeverityAttention:
		return 2
	case SeverityUrgent:
		return 3
	default:
		return -1
	}
}

// Projection is the reserve position after the immediate sale lands
type Projection struct {
	AssetsPost    decimal.Decimal `json:"assets_post" yaml:"assets_post"`
	DebtAbs       decimal.Decimal `json:"debt_abs" yaml:"debt_abs"`
	NegativesPost decimal.Decimal `json:"negatives_post" yaml:"negatives_post"`
	CushionPost   decimal.Decimal `json:"cushion_post" yaml:"cushion_post"`
}

// ComputeProjection adds the immediate sale proceeds to assets and nets debts.
func ComputeProjection(assetsReserve, debtsReserve, sellNowReserveIn decimal.Decimal) Projection {
	assetsPost := assetsReserve.Add(sellNowReserveIn)
	debtAbs := debtsReserve.Abs()

	return Projection{
		AssetsPost:    assetsPost,
		DebtAbs:       debtAbs,
		NegativesPost: models.MaxZero(debtAbs.Sub(assetsPost)),
		CushionPost:   models.MaxZero(assetsPost.Sub(debtAbs)),
	}
}

// ComputeSeverity classifies a run. Coverage is sellNowReserveIn / need,
// compared without dividing.
func ComputeSeverity(needReserve, sellNowReserveIn, usableForeign, minSellAmount decimal.Decimal) Severity {
	switch {
	case !needReserve.IsPositive():
		return SeverityNormal
	case sellNowReserveIn.LessThan(needReserve):
		return SeverityUrgent
	case usableForeign.LessThan(minSellAmount):
		return SeverityAttention
	default:
		return SeverityPriority
	}
}
