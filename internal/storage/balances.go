package storage

import (
	"context"
	"database/sql"

	"golang-liquidity-planner/internal/models"
	"golang-liquidity-planner/pkg/errors"
	"golang-liquidity-planner/pkg/logger"

	"github.com/shopspring/decimal"
)

// ReplaceBalances swaps the stored snapshot for records in one transaction
func (s *Store) ReplaceBalances(ctx context.Context, records []*models.BalanceRecord) error {
	importedAt := formatTime(s.now())

	err := s.withTx(ctx, "replace_balances", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM balances`); err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO balances (currency, bank, owner, label, amount, unit_value, imported_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, r := range records {
			if r == nil {
				continue
			}
			if _, err := stmt.ExecContext(ctx,
				r.CurrencyCode, r.BankCode, r.OwnerName, r.InstrumentLabel,
				r.Amount.String(), r.UnitValue.String(), importedAt,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.WithField("records", len(records)).Info("Replaced balance snapshot")
	return nil
}

// LoadBalances returns the stored snapshot in insertion order
func (s *Store) LoadBalances(ctx context.Context) ([]*models.BalanceRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT currency, bank, owner, label, amount, unit_value
		FROM balances ORDER BY id`)
	if err != nil {
		return nil, errors.StorageError(errors.CodeStorageQuery, "load_balances", err)
	}
	defer rows.Close()

	var records []*models.BalanceRecord
	coerced := 0
	for rows.Next() {
		var currency, bank, owner, label, amountText, unitText string
		if err := rows.Scan(&currency, &bank, &owner, &label, &amountText, &unitText); err != nil {
			return nil, errors.StorageError(errors.CodeStorageQuery, "load_balances", err)
		}

		amount, ok := models.CoerceDecimal(amountText)
		if !ok {
			coerced++
		}
		unit, ok := models.CoerceDecimal(unitText)
		if !ok {
			unit = decimal.NewFromInt(1)
			coerced++
		}
		records = append(records, models.NewBalanceRecord(currency, bank, owner, label, amount, unit))
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError(errors.CodeStorageQuery, "load_balances", err)
	}

	if coerced > 0 {
		s.logger.WithField("coerced", coerced).Warn("Malformed stored amounts replaced with defaults")
	}
	s.logger.WithFields(logger.Fields{"records": len(records)}).Debug("Loaded balances")
	return records, nil
}
