package parsers

import (
	"context"
	"io"

	"golang-liquidity-planner/internal/models"

	"github.com/shopspring/decimal"
)

var balanceColumns = []column{
	{name: "currency", required: true},
	{name: "amount", required: true},
	{name: "bank"},
	{name: "owner"},
	{name: "label"},
	{name: "unit_value"},
}

// BalanceParser reads the latest balance of each tracked instrument
type BalanceParser struct {
	*BaseParser
}

// NewBalanceParser creates a new BalanceParser with the given configuration
func NewBalanceParser(config *SourceConfig) (*BalanceParser, error) {
	base, err := NewBaseParser(config, "balance_parser")
	if err != nil {
		return nil, err
	}
	return &BalanceParser{BaseParser: base}, nil
}

// ParseBalances parses a balances CSV file
func (p *BalanceParser) ParseBalances(ctx context.Context, path string) ([]*models.BalanceRecord, *ParseStats, error) {
	stats := NewParseStats(path)
	src, err := p.open(path, balanceColumns, stats)
	if err != nil {
		return nil, stats, err
	}
	defer src.Close()

	return p.parse(ctx, src, stats)
}

// ParseBalancesFrom parses balances from an already open reader
func (p *BalanceParser) ParseBalancesFrom(ctx context.Context, name string, r io.Reader) ([]*models.BalanceRecord, *ParseStats, error) {
	stats := NewParseStats(name)
	src, err := p.newRowSource(name, r, balanceColumns)
	if err != nil {
		return nil, stats, err
	}
	return p.parse(ctx, src, stats)
}

func (p *BalanceParser) parse(ctx context.Context, src *rowSource, stats *ParseStats) ([]*models.BalanceRecord, *ParseStats, error) {
	var records []*models.BalanceRecord

	err := p.each(ctx, src, stats, func(r *row) {
		currency := r.text("currency")
		if currency == "" {
			r.fail("currency", "", "currency is required", nil)
			return
		}

		records = append(records, models.NewBalanceRecord(
			currency,
			r.text("bank"),
			r.text("owner"),
			r.text("label"),
			r.amount("amount", decimal.Zero),
			unitValue(r),
		))
		stats.RecordsValid++
	})

	p.logSummary(stats)
	return records, stats, err
}

// unitValue is 1 when the cell is blank; an unreadable value counts as 0
func unitValue(r *row) decimal.Decimal {
	if r.text("unit_value") == "" {
		return decimal.NewFromInt(1)
	}
	return r.amount("unit_value", decimal.Zero)
}
