package liquidity

import (
	"context"
	"sync"
	"time"

	"golang-liquidity-planner/internal/bankcode"
	"golang-liquidity-planner/internal/models"
	"golang-liquidity-planner/internal/parsers"
	"golang-liquidity-planner/internal/storage"

	"github.com/shopspring/decimal"
)

// BalanceSource supplies the latest balance snapshot
type BalanceSource interface {
	LoadBalances(ctx context.Context) ([]*models.BalanceRecord, error)
}

// UsageSource supplies month-to-date usage for the assessable deposit cards
// in the reserve currency.
type UsageSource interface {
	LoadUsage(ctx context.Context, reserveCurrency string, assessable bankcode.Set, now time.Time, loc *time.Location) ([]*models.UsageRow, error)
}

// RateSource supplies stored buy rates. An invalid result means no rate.
type RateSource interface {
	LatestBuyRate(ctx context.Context, currency string) (decimal.NullDecimal, error)
}

// RunRecorder persists run summaries
type RunRecorder interface {
	RecordRun(ctx context.Context, run *storage.RunRecord) error
}

// StatsReporter is implemented by sources that parse files
type StatsReporter interface {
	Stats() *parsers.ParseStats
}

var (
	_ BalanceSource = (*storage.Store)(nil)
	_ UsageSource   = (*storage.Store)(nil)
	_ RateSource    = (*storage.Store)(nil)
	_ RunRecorder   = (*storage.Store)(nil)
)

// CSVBalanceSource reads balances from a CSV export on every load
type CSVBalanceSource struct {
	path   string
	parser *parsers.BalanceParser

	mu    sync.Mutex
	stats *parsers.ParseStats
}

// NewCSVBalanceSource creates a balance source for the file at path
func NewCSVBalanceSource(path string, config *parsers.SourceConfig) (*CSVBalanceSource, error) {
	parser, err := parsers.NewBalanceParser(config)
	if err != nil {
		return nil, err
	}
	return &CSVBalanceSource{path: path, parser: parser}, nil
}

// LoadBalances parses the file
func (s *CSVBalanceSource) LoadBalances(ctx context.Context) ([]*models.BalanceRecord, error) {
	records, stats, err := s.parser.ParseBalances(ctx, s.path)
	s.setStats(stats)
	return records, err
}

// Stats returns the statistics of the last load
func (s *CSVBalanceSource) Stats() *parsers.ParseStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *CSVBalanceSource) setStats(stats *parsers.ParseStats) {
	s.mu.Lock()
	s.stats = stats
	s.mu.Unlock()
}

// CSVUsageSource reads usage rows that are already aggregated for the
// current month. The file carries no currency column; every row is taken to
// be in the reserve currency.
type CSVUsageSource struct {
	path   string
	parser *parsers.UsageParser

	mu    sync.Mutex
	stats *parsers.ParseStats
}

// NewCSVUsageSource creates a usage source for the file at path
func NewCSVUsageSource(path string, config *parsers.SourceConfig) (*CSVUsageSource, error) {
	parser, err := parsers.NewUsageParser(config)
	if err != nil {
		return nil, err
	}
	return &CSVUsageSource{path: path, parser: parser}, nil
}

// LoadUsage parses the file and keeps rows of assessable banks
func (s *CSVUsageSource) LoadUsage(ctx context.Context, _ string, assessable bankcode.Set, _ time.Time, _ *time.Location) ([]*models.UsageRow, error) {
	rows, stats, err := s.parser.ParseUsage(ctx, s.path)
	s.mu.Lock()
	s.stats = stats
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	kept := rows[:0]
	for _, row := range rows {
		if assessable.Has(bankcode.Normalize(row.BankCodeRaw)) {
			kept = append(kept, row)
		}
	}
	return kept, nil
}

// Stats returns the statistics of the last load
func (s *CSVUsageSource) Stats() *parsers.ParseStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
