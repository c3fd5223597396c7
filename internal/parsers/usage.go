package parsers

import (
	"context"
	"io"

	"golang-liquidity-planner/internal/models"

	"github.com/shopspring/decimal"
)

var usageColumns = []column{
	{name: "instrument_id", required: true},
	{name: "used_out", required: true},
	{name: "bank"},
	{name: "label"},
	{name: "current_balance"},
}

// UsageParser reads month-to-date usage already aggregated per deposit card
type UsageParser struct {
	*BaseParser
}

// NewUsageParser creates a new UsageParser with the given configuration
func NewUsageParser(config *SourceConfig) (*UsageParser, error) {
	base, err := NewBaseParser(config, "usage_parser")
	if err != nil {
		return nil, err
	}
	return &UsageParser{BaseParser: base}, nil
}

// ParseUsage parses a usage CSV file
func (p *UsageParser) ParseUsage(ctx context.Context, path string) ([]*models.UsageRow, *ParseStats, error) {
	stats := NewParseStats(path)
	src, err := p.open(path, usageColumns, stats)
	if err != nil {
		return nil, stats, err
	}
	defer src.Close()

	return p.parse(ctx, src, stats)
}

// ParseUsageFrom parses usage rows from an already open reader
func (p *UsageParser) ParseUsageFrom(ctx context.Context, name string, r io.Reader) ([]*models.UsageRow, *ParseStats, error) {
	stats := NewParseStats(name)
	src, err := p.newRowSource(name, r, usageColumns)
	if err != nil {
		return nil, stats, err
	}
	return p.parse(ctx, src, stats)
}

func (p *UsageParser) parse(ctx context.Context, src *rowSource, stats *ParseStats) ([]*models.UsageRow, *ParseStats, error) {
	var rows []*models.UsageRow

	err := p.each(ctx, src, stats, func(r *row) {
		id := r.text("instrument_id")
		if id == "" {
			r.fail("instrument_id", "", "instrument id is required", nil)
			return
		}

		rows = append(rows, &models.UsageRow{
			InstrumentID:   id,
			Label:          r.text("label"),
			BankCodeRaw:    r.text("bank"),
			UsedOut:        r.amount("used_out", decimal.Zero).Abs(),
			CurrentBalance: r.amount("current_balance", decimal.Zero),
		})
		stats.RecordsValid++
	})

	p.logSummary(stats)
	return rows, stats, err
}
