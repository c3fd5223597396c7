package storage

import (
	"context"
	"database/sql"

	"golang-liquidity-planner/internal/models"
	"golang-liquidity-planner/pkg/errors"

	"github.com/shopspring/decimal"
)

// InsertRates appends observed rates in one transaction
func (s *Store) InsertRates(ctx context.Context, rates []*models.Rate) error {
	if len(rates) == 0 {
		return nil
	}

	return s.withTx(ctx, "insert_rates", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO rates (currency, direction, value, observed_at)
			VALUES (?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, r := range rates {
			if r == nil {
				continue
			}
			if _, err := stmt.ExecContext(ctx,
				models.NormalizeCurrency(r.CurrencyCode), string(r.Direction), r.Value.String(), formatTime(r.ObservedAt),
			); err != nil {
				return err
			}
		}
		return nil
	})
}

// LatestBuyRate returns the most recent positive buy rate for currency.
// The result is invalid when none is stored.
func (s *Store) LatestBuyRate(ctx context.Context, currency string) (decimal.NullDecimal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT value FROM rates
		WHERE currency = ? AND direction = ?
		ORDER BY observed_at DESC, id DESC`,
		models.NormalizeCurrency(currency), string(models.RateBuy))
	if err != nil {
		return decimal.NullDecimal{}, errors.StorageError(errors.CodeStorageQuery, "latest_buy_rate", err)
	}
	defer rows.Close()

	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return decimal.NullDecimal{}, errors.StorageError(errors.CodeStorageQuery, "latest_buy_rate", err)
		}
		if value, ok := models.CoerceDecimal(text); ok && value.IsPositive() {
			return decimal.NewNullDecimal(value), nil
		}
	}
	if err := rows.Err(); err != nil {
		return decimal.NullDecimal{}, errors.StorageError(errors.CodeStorageQuery, "latest_buy_rate", err)
	}

	return decimal.NullDecimal{}, nil
}
