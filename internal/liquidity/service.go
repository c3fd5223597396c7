// Package liquidity runs planning requests end to end.
//
// The Service pulls a balance snapshot and monthly usage from its sources,
// resolves the buy rate shown alongside the plan, runs the planner engine and
// optionally records the run:
//
//	svc, err := liquidity.NewService(cfg, store, store,
//		liquidity.WithRateSource(store),
//		liquidity.WithRecorder(store),
//	)
//	resp, err := svc.Plan(ctx, &liquidity.Request{Source: "sqlite", Record: true})
package liquidity

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"golang-liquidity-planner/internal/models"
	"golang-liquidity-planner/internal/parsers"
	"golang-liquidity-planner/internal/planner"
	"golang-liquidity-planner/internal/storage"
	"golang-liquidity-planner/pkg/errors"
	"golang-liquidity-planner/pkg/logger"

	"github.com/shopspring/decimal"
)

// BuyRateOrigin tells where a displayed buy rate came from
type BuyRateOrigin string

const (
	BuyRateStored   BuyRateOrigin = "stored"
	BuyRateOverride BuyRateOrigin = "override"
	BuyRateNone     BuyRateOrigin = ""
)

// Request is a single planning request
type Request struct {
	// Source labels the run in the history, e.g. "csv" or "sqlite".
	Source string
	// Record stores the run summary through the configured recorder.
	Record bool
	// Now overrides the clock for the usage month window.
	Now time.Time
}

// Response is the outcome of a planning request
type Response struct {
	RunID         string                `json:"run_id" yaml:"run_id"`
	GeneratedAt   time.Time             `json:"generated_at" yaml:"generated_at"`
	Source        string                `json:"source,omitempty" yaml:"source,omitempty"`
	Recorded      bool                  `json:"recorded" yaml:"recorded"`
	ForeignCode   string                `json:"foreign_currency" yaml:"foreign_currency"`
	ReserveCode   string                `json:"reserve_currency" yaml:"reserve_currency"`
	BuyRate       decimal.NullDecimal   `json:"buy_rate" yaml:"-"`
	BuyRateOrigin BuyRateOrigin         `json:"buy_rate_origin,omitempty" yaml:"buy_rate_origin,omitempty"`
	Result        *planner.Result       `json:"result" yaml:"result"`
	ParseStats    []*parsers.ParseStats `json:"-" yaml:"-"`
	Duration      time.Duration         `json:"duration" yaml:"duration"`
}

// Progress reports the current step of a planning request
type Progress struct {
	Step           string        `json:"step"`
	CompletedSteps int           `json:"completed_steps"`
	TotalSteps     int           `json:"total_steps"`
	Elapsed        time.Duration `json:"elapsed"`
}

// PercentComplete returns the completed share as a percentage
func (p Progress) PercentComplete() float64 {
	if p.TotalSteps == 0 {
		return 0
	}
	return float64(p.CompletedSteps) / float64(p.TotalSteps) * 100
}

// ProgressCallback is called after every step
type ProgressCallback func(Progress)

const totalSteps = 4

// Service wires the sources to the planner engine
type Service struct {
	engine   *planner.Engine
	config   *planner.Config
	balances BalanceSource
	usage    UsageSource
	rates    RateSource
	recorder RunRecorder
	logger   logger.Logger
	now      func() time.Time

	callbacks []ProgressCallback
}

// Option customizes a Service
type Option func(*Service)

// WithRateSource sets where stored buy rates are read from
func WithRateSource(rates RateSource) Option {
	return func(s *Service) { s.rates = rates }
}

// WithRecorder sets where run summaries are stored
func WithRecorder(recorder RunRecorder) Option {
	return func(s *Service) { s.recorder = recorder }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithProgress registers a progress callback
func WithProgress(cb ProgressCallback) Option {
	return func(s *Service) { s.callbacks = append(s.callbacks, cb) }
}

// NewService creates a new planning service
func NewService(config *planner.Config, balances BalanceSource, usage UsageSource, opts ...Option) (*Service, error) {
	if config == nil {
		config = planner.DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "planner", config.String(), err)
	}
	if balances == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "balance_source", nil, nil).
			WithSuggestion("Provide a balances CSV file or a database")
	}
	if usage == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "usage_source", nil, nil).
			WithSuggestion("Provide a usage CSV file or a database")
	}

	s := &Service{
		engine:   planner.NewEngine(config),
		balances: balances,
		usage:    usage,
		logger:   logger.WithComponent("liquidity_service"),
		now:      time.Now,
	}
	s.config = s.engine.Config()
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Config returns a copy of the planner configuration
func (s *Service) Config() *planner.Config {
	return s.config.Clone()
}

// Plan loads a snapshot, runs the engine and optionally records the run
func (s *Service) Plan(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		req = &Request{}
	}
	start := time.Now()
	now := req.Now
	if now.IsZero() {
		now = s.now()
	}

	s.logger.WithFields(logger.Fields{
		"source": req.Source,
		"record": req.Record,
	}).Info("Starting planning run")

	s.report("Loading snapshot", 0, start)
	snapshot, err := s.loadSnapshot(ctx, now)
	if err != nil {
		s.logger.WithError(err).Error("Failed to load snapshot")
		return nil, err
	}

	s.report("Resolving buy rate", 1, start)
	buyRate, origin := s.resolveBuyRate(ctx)

	s.report("Computing plan", 2, start)
	result := s.engine.Run(snapshot)

	runID, err := storage.NewRunID(now)
	if err != nil {
		return nil, errors.InternalError(errors.CodeUnexpectedError, "run_id", err)
	}

	resp := &Response{
		RunID:         runID,
		GeneratedAt:   now,
		Source:        req.Source,
		ForeignCode:   s.primaryForeign(),
		ReserveCode:   s.config.ReserveCurrency,
		BuyRate:       buyRate,
		BuyRateOrigin: origin,
		Result:        result,
		ParseStats:    collectStats(s.balances, s.usage),
	}

	if req.Record {
		s.report("Recording run", 3, start)
		if err := s.record(ctx, resp); err != nil {
			return nil, err
		}
		resp.Recorded = true
	}

	resp.Duration = time.Since(start)
	s.report("Completed", totalSteps, start)

	s.logger.WithFields(logger.Fields{
		"run_id":        resp.RunID,
		"severity":      result.Severity,
		"need_reserve":  result.Need.NeedReserve.String(),
		"sell_now":      result.Plan.SellNow.Foreign.String(),
		"uncovered":     result.HasUncovered(),
		"duration":      resp.Duration,
		"balance_count": len(snapshot.Balances),
		"card_count":    len(snapshot.Usage),
	}).Info("Planning run completed")

	return resp, nil
}

// loadSnapshot reads balances and usage concurrently
func (s *Service) loadSnapshot(ctx context.Context, now time.Time) (planner.Snapshot, error) {
	var (
		wg         sync.WaitGroup
		balances   []*models.BalanceRecord
		usage      []*models.UsageRow
		balanceErr error
		usageErr   error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		balances, balanceErr = s.balances.LoadBalances(ctx)
	}()
	go func() {
		defer wg.Done()
		usage, usageErr = s.usage.LoadUsage(ctx, s.config.ReserveCurrency, s.config.AssessableSet(), now, s.config.Location())
	}()
	wg.Wait()

	if balanceErr != nil {
		return planner.Snapshot{}, sourceError("load_balances", balanceErr)
	}
	if usageErr != nil {
		return planner.Snapshot{}, sourceError("load_usage", usageErr)
	}

	s.logger.WithFields(logger.Fields{
		"balances": len(balances),
		"usage":    len(usage),
	}).Debug("Loaded snapshot")
	return planner.Snapshot{Balances: balances, Usage: usage}, nil
}

// sourceError keeps typed errors from the sources and wraps anything else
func sourceError(operation string, err error) error {
	if _, ok := errors.AsPlannerError(err); ok {
		return err
	}
	return errors.PlanningError(errors.CodeSourceUnavailable, operation, err)
}

// resolveBuyRate prefers a positive stored rate, then the configured
// override. Failures to read the stored rate fall through to the override.
func (s *Service) resolveBuyRate(ctx context.Context) (decimal.NullDecimal, BuyRateOrigin) {
	currency := s.primaryForeign()

	if s.rates != nil && currency != "" {
		rate, err := s.rates.LatestBuyRate(ctx, currency)
		switch {
		case err != nil:
			s.logger.WithError(err).WithField("currency", currency).Warn("Stored buy rate unavailable")
		case rate.Valid && rate.Decimal.IsPositive():
			return rate, BuyRateStored
		}
	}

	if o := s.config.BuyRateOverride; o.Valid && o.Decimal.IsPositive() {
		return o, BuyRateOverride
	}

	s.logger.WithField("currency", currency).Debug("No buy rate available")
	return decimal.NullDecimal{}, BuyRateNone
}

func (s *Service) primaryForeign() string {
	if len(s.config.ForeignCurrencies) == 0 {
		return ""
	}
	return models.NormalizeCurrency(s.config.ForeignCurrencies[0])
}

func (s *Service) record(ctx context.Context, resp *Response) error {
	if s.recorder == nil {
		return errors.PlanningError(errors.CodeRecordFailed, "record_run", nil).
			WithSuggestion("Pass --db to keep a run history")
	}

	payload, err := json.Marshal(resp.Result)
	if err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "encode_run", err)
	}

	result := resp.Result
	leftover := result.DistributionNow.Leftover
	if result.DistributionTarget != nil {
		leftover = decimal.Max(leftover, result.DistributionTarget.Leftover)
	}

	run := &storage.RunRecord{
		RunID:            resp.RunID,
		CreatedAt:        resp.GeneratedAt,
		Source:           resp.Source,
		Severity:         result.Severity.String(),
		NeedReserve:      result.Need.NeedReserve,
		SellNowForeign:   result.Plan.SellNow.Foreign,
		SellNowReserveIn: result.Plan.SellNow.ReserveIn,
		RemainingReserve: result.Plan.RemainingReserve,
		Leftover:         leftover,
		Payload:          string(payload),
	}
	if err := s.recorder.RecordRun(ctx, run); err != nil {
		s.logger.WithError(err).WithField("run_id", resp.RunID).Error("Failed to record run")
		return errors.WrapIfNeeded(err, errors.CategoryPlanning, errors.CodeRecordFailed, "failed to record run")
	}
	return nil
}

func (s *Service) report(step string, completed int, start time.Time) {
	if len(s.callbacks) == 0 {
		return
	}
	p := Progress{
		Step:           step,
		CompletedSteps: completed,
		TotalSteps:     totalSteps,
		Elapsed:        time.Since(start),
	}
	for _, cb := range s.callbacks {
		cb(p)
	}
}

func collectStats(sources ...interface{}) []*parsers.ParseStats {
	var stats []*parsers.ParseStats
	for _, src := range sources {
		if r, ok := src.(StatsReporter); ok {
			if st := r.Stats(); st != nil {
				stats = append(stats, st)
			}
		}
	}
	return stats
}
