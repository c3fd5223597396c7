package parsers

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"golang-liquidity-planner/internal/models"
	"golang-liquidity-planner/pkg/logger"

	"github.com/shopspring/decimal"
)

var movementColumns = []column{
	{name: "instrument_id", required: true},
	{name: "currency", required: true},
	{name: "amount", required: true},
	{name: "occurred_at", required: true},
	{name: "bank"},
	{name: "label"},
}

// MovementBatchFunc receives parsed movements in batches
type MovementBatchFunc func([]*models.Movement) error

// MovementParser reads ledger movements
type MovementParser struct {
	*BaseParser
}

// NewMovementParser creates a new MovementParser with the given configuration
func NewMovementParser(config *SourceConfig) (*MovementParser, error) {
	base, err := NewBaseParser(config, "movement_parser")
	if err != nil {
		return nil, err
	}
	return &MovementParser{BaseParser: base}, nil
}

// ParseMovements parses a whole movements CSV file into memory
func (p *MovementParser) ParseMovements(ctx context.Context, path string) ([]*models.Movement, *ParseStats, error) {
	var all []*models.Movement
	stats, err := p.ParseMovementsStream(ctx, path, 0, func(batch []*models.Movement) error {
		all = append(all, batch...)
		return nil
	})
	return all, stats, err
}

// ParseMovementsStream parses a movements file and hands rows to fn in
// batches of batchSize, so large ledgers never sit in memory at once.
// A batchSize of zero or less delivers a single batch at the end.
func (p *MovementParser) ParseMovementsStream(ctx context.Context, path string, batchSize int, fn MovementBatchFunc) (*ParseStats, error) {
	stats := NewParseStats(path)
	src, err := p.open(path, movementColumns, stats)
	if err != nil {
		return stats, err
	}
	defer src.Close()

	return p.stream(ctx, src, stats, batchSize, fn)
}

// ParseMovementsFrom parses movements from an already open reader
func (p *MovementParser) ParseMovementsFrom(ctx context.Context, name string, r io.Reader, batchSize int, fn MovementBatchFunc) (*ParseStats, error) {
	stats := NewParseStats(name)
	src, err := p.newRowSource(name, r, movementColumns)
	if err != nil {
		return stats, err
	}
	return p.stream(ctx, src, stats, batchSize, fn)
}

func (p *MovementParser) stream(ctx context.Context, src *rowSource, stats *ParseStats, batchSize int, fn MovementBatchFunc) (*ParseStats, error) {
	loc := p.config.location()
	var batch []*models.Movement
	var callbackErr error

	flush := func() {
		if len(batch) == 0 || callbackErr != nil {
			return
		}
		if err := fn(batch); err != nil {
			callbackErr = err
			return
		}
		p.logger.WithFields(logger.Fields{"file": src.name, "batch": len(batch)}).Debug("Delivered movement batch")
		batch = nil
	}

	err := p.each(ctx, src, stats, func(r *row) {
		if callbackErr != nil {
			return
		}

		id := r.text("instrument_id")
		if id == "" {
			r.fail("instrument_id", "", "instrument id is required", nil)
			return
		}
		raw := r.text("occurred_at")
		at, err := models.ParseTimeWithFormats(raw, loc)
		if err != nil {
			r.fail("occurred_at", raw, "unparseable timestamp", err)
			return
		}
		currency := models.NormalizeCurrency(r.text("currency"))
		if currency == "" {
			r.fail("currency", "", "currency is required", nil)
			return
		}

		batch = append(batch, &models.Movement{
			InstrumentID: id,
			BankCode:     r.text("bank"),
			CurrencyCode: currency,
			Label:        r.text("label"),
			Amount:       r.amount("amount", decimal.Zero),
			OccurredAt:   at,
		})
		stats.RecordsValid++

		if batchSize > 0 && len(batch) >= batchSize {
			flush()
		}
	})
	if err == nil {
		flush()
	}

	p.logSummary(stats)
	if err != nil {
		return stats, err
	}
	if callbackErr != nil {
		return stats, fmt.Errorf("movement batch callback: %w", callbackErr)
	}
	return stats, nil
}

var rateColumns = []column{
	{name: "currency", required: true},
	{name: "direction", required: true},
	{name: "value", required: true},
	{name: "observed_at"},
}

// RateParser reads observed conversion rates
type RateParser struct {
	*BaseParser
	now func() time.Time
}

// NewRateParser creates a new RateParser with the given configuration
func NewRateParser(config *SourceConfig) (*RateParser, error) {
	base, err := NewBaseParser(config, "rate_parser")
	if err != nil {
		return nil, err
	}
	return &RateParser{BaseParser: base, now: time.Now}, nil
}

// ParseRates parses a rates CSV file. Rows without a timestamp are stamped
// with the parse time.
func (p *RateParser) ParseRates(ctx context.Context, path string) ([]*models.Rate, *ParseStats, error) {
	stats := NewParseStats(path)
	src, err := p.open(path, rateColumns, stats)
	if err != nil {
		return nil, stats, err
	}
	defer src.Close()

	return p.parse(ctx, src, stats)
}

// ParseRatesFrom parses rates from an already open reader
func (p *RateParser) ParseRatesFrom(ctx context.Context, name string, r io.Reader) ([]*models.Rate, *ParseStats, error) {
	stats := NewParseStats(name)
	src, err := p.newRowSource(name, r, rateColumns)
	if err != nil {
		return nil, stats, err
	}
	return p.parse(ctx, src, stats)
}

func (p *RateParser) parse(ctx context.Context, src *rowSource, stats *ParseStats) ([]*models.Rate, *ParseStats, error) {
	loc := p.config.location()
	now := p.now()
	var rates []*models.Rate

	err := p.each(ctx, src, stats, func(r *row) {
		currency := models.NormalizeCurrency(r.text("currency"))
		if currency == "" {
			r.fail("currency", "", "currency is required", nil)
			return
		}

		direction := parseDirection(r.text("direction"))
		if !direction.IsValid() {
			r.fail("direction", r.text("direction"), "direction must be buy or sell", nil)
			return
		}

		value := r.amount("value", decimal.Zero)
		if !value.IsPositive() {
			r.fail("value", r.text("value"), "rate must be positive", nil)
			return
		}

		observed := now
		if raw := r.text("observed_at"); raw != "" {
			at, err := models.ParseTimeWithFormats(raw, loc)
			if err != nil {
				r.fail("observed_at", raw, "unparseable timestamp", err)
				return
			}
			observed = at
		}

		rates = append(rates, &models.Rate{
			CurrencyCode: currency,
			Direction:    direction,
			Value:        value,
			ObservedAt:   observed,
		})
		stats.RecordsValid++
	})

	p.logSummary(stats)
	return rates, stats, err
}

// parseDirection accepts English and Spanish spellings
func parseDirection(s string) models.RateDirection {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy", "compra", "b":
		return models.RateBuy
	case "sell", "venta", "s":
		return models.RateSell
	default:
		return models.RateDirection(strings.ToLower(strings.TrimSpace(s)))
	}
}
