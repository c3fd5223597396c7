package storage

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"golang-liquidity-planner/internal/bankcode"
	"golang-liquidity-planner/internal/models"
	"golang-liquidity-planner/pkg/errors"
	"golang-liquidity-planner/pkg/logger"

	"github.com/shopspring/decimal"
)

// InsertMovements appends ledger movements in one transaction
func (s *Store) InsertMovements(ctx context.Context, movements []*models.Movement) error {
	if len(movements) == 0 {
		return nil
	}

	return s.withTx(ctx, "insert_movements", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO movements (instrument_id, bank, currency, label, amount, occurred_at)
			VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, m := range movements {
			if m == nil {
				continue
			}
			if _, err := stmt.ExecContext(ctx,
				m.InstrumentID, m.BankCode, models.NormalizeCurrency(m.CurrencyCode), m.Label,
				m.Amount.String(), formatTime(m.OccurredAt),
			); err != nil {
				return err
			}
		}
		return nil
	})
}

// MonthStart returns midnight of the first day of now's month in loc
func MonthStart(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
}

type usageAccumulator struct {
	row   *models.UsageRow
	order int
}

// LoadUsage aggregates month-to-date usage per instrument.
//
// UsedOut is the sum of magnitudes of negative reserve movements between the
// start of now's calendar month in loc and now. CurrentBalance is the sum of
// all reserve movements up to now. Only instruments whose latest bank
// normalizes into assessable are returned; bank and label come from the
// latest movement.
func (s *Store) LoadUsage(ctx context.Context, reserveCurrency string, assessable bankcode.Set, now time.Time, loc *time.Location) ([]*models.UsageRow, error) {
	start := MonthStart(now, loc)

	rows, err := s.db.QueryContext(ctx, `
		SELECT instrument_id, bank, label, amount, occurred_at
		FROM movements
		WHERE currency = ? AND occurred_at <= ?
		ORDER BY occurred_at, id`,
		models.NormalizeCurrency(reserveCurrency), formatTime(now))
	if err != nil {
		return nil, errors.StorageError(errors.CodeStorageQuery, "load_usage", err)
	}
	defer rows.Close()

	byInstrument := make(map[string]*usageAccumulator)
	for rows.Next() {
		var id, bank, label, amountText, occurredText string
		if err := rows.Scan(&id, &bank, &label, &amountText, &occurredText); err != nil {
			return nil, errors.StorageError(errors.CodeStorageQuery, "load_usage", err)
		}
		occurred, err := parseTime(occurredText)
		if err != nil {
			s.logger.WithError(err).WithField("instrument_id", id).Warn("Skipping movement with unreadable timestamp")
			continue
		}
		amount, _ := models.CoerceDecimal(amountText)

		acc, ok := byInstrument[id]
		if !ok {
			acc = &usageAccumulator{
				row: &models.UsageRow{
					InstrumentID:   id,
					UsedOut:        decimal.Zero,
					CurrentBalance: decimal.Zero,
				},
				order: len(byInstrument),
			}
			byInstrument[id] = acc
		}
		acc.row.BankCodeRaw = bank
		if label != "" {
			acc.row.Label = label
		}
		acc.row.CurrentBalance = acc.row.CurrentBalance.Add(amount)
		if amount.IsNegative() && !occurred.Before(start) {
			acc.row.UsedOut = acc.row.UsedOut.Add(amount.Abs())
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError(errors.CodeStorageQuery, "load_usage", err)
	}

	accs := make([]*usageAccumulator, 0, len(byInstrument))
	for _, acc := range byInstrument {
		if assessable.Has(bankcode.Normalize(acc.row.BankCodeRaw)) {
			accs = append(accs, acc)
		}
	}
	sort.Slice(accs, func(i, j int) bool { return accs[i].order < accs[j].order })

	usage := make([]*models.UsageRow, len(accs))
	for i, acc := range accs {
		usage[i] = acc.row
	}

	s.logger.WithFields(logger.Fields{
		"instruments": len(byInstrument),
		"assessed":    len(usage),
		"month_start": start.Format(time.RFC3339),
	}).Debug("Aggregated monthly usage")
	return usage, nil
}
