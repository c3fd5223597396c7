package storage

import (
	"context"
	"time"

	"golang-liquidity-planner/internal/models"
	"golang-liquidity-planner/pkg/errors"

	"github.com/shopspring/decimal"
)

// RunRecord is the stored summary of one planning run
type RunRecord struct {
	RunID            string          `json:"run_id" yaml:"run_id"`
	CreatedAt        time.Time       `json:"created_at" yaml:"created_at"`
	Source           string          `json:"source" yaml:"source"`
	Severity         string          `json:"severity" yaml:"severity"`
	NeedReserve      decimal.Decimal `json:"need_reserve" yaml:"need_reserve"`
	SellNowForeign   decimal.Decimal `json:"sell_now_foreign" yaml:"sell_now_foreign"`
	SellNowReserveIn decimal.Decimal `json:"sell_now_reserve_in" yaml:"sell_now_reserve_in"`
	RemainingReserve decimal.Decimal `json:"remaining_reserve" yaml:"remaining_reserve"`
	Leftover         decimal.Decimal `json:"leftover" yaml:"leftover"`
	Payload          string          `json:"-" yaml:"-"`
}

// RecordRun stores a run summary. A missing RunID or CreatedAt is filled in.
func (s *Store) RecordRun(ctx context.Context, run *RunRecord) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = s.now()
	}
	if run.RunID == "" {
		id, err := NewRunID(run.CreatedAt)
		if err != nil {
			return errors.InternalError(errors.CodeUnexpectedError, "run_id", err)
		}
		run.RunID = id
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO plan_runs
		(run_id, created_at, source, severity, need_reserve, sell_now_foreign,
		 sell_now_reserve_in, remaining_reserve, leftover, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, formatTime(run.CreatedAt), run.Source, run.Severity,
		run.NeedReserve.String(), run.SellNowForeign.String(), run.SellNowReserveIn.String(),
		run.RemainingReserve.String(), run.Leftover.String(), run.Payload,
	)
	if err != nil {
		return errors.StorageError(errors.CodeStorageWrite, "record_run", err).WithContext("run_id", run.RunID)
	}

	s.logger.WithField("run_id", run.RunID).Debug("Recorded planning run")
	return nil
}

// ListRuns returns up to limit runs, newest first. A limit of zero or less
// returns every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*RunRecord, error) {
	query := `
		SELECT run_id, created_at, source, severity, need_reserve, sell_now_foreign,
		       sell_now_reserve_in, remaining_reserve, leftover, payload
		FROM plan_runs ORDER BY run_id DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.StorageError(errors.CodeStorageQuery, "list_runs", err)
	}
	defer rows.Close()

	var runs []*RunRecord
	for rows.Next() {
		var run RunRecord
		var createdText, need, sellForeign, sellIn, remaining, leftover string
		if err := rows.Scan(&run.RunID, &createdText, &run.Source, &run.Severity,
			&need, &sellForeign, &sellIn, &remaining, &leftover, &run.Payload); err != nil {
			return nil, errors.StorageError(errors.CodeStorageQuery, "list_runs", err)
		}

		if created, err := parseTime(createdText); err == nil {
			run.CreatedAt = created
		} else if created, err := RunIDTime(run.RunID); err == nil {
			run.CreatedAt = created
		}
		run.NeedReserve, _ = models.CoerceDecimal(need)
		run.SellNowForeign, _ = models.CoerceDecimal(sellForeign)
		run.SellNowReserveIn, _ = models.CoerceDecimal(sellIn)
		run.RemainingReserve, _ = models.CoerceDecimal(remaining)
		run.Leftover, _ = models.CoerceDecimal(leftover)

		runs = append(runs, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError(errors.CodeStorageQuery, "list_runs", err)
	}

	return runs, nil
}
