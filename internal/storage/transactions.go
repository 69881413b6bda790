package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/spice-assign/internal/common"
	"github.com/Veraticus/spice-assign/internal/model"
	"github.com/Veraticus/spice-assign/internal/service"
	"github.com/shopspring/decimal"
)

const transactionColumns = `id, hash, date, description, amount, source, destination, type, category, budget`

// SaveTransactions stores transactions, skipping any whose hash is already
// present. It returns how many were inserted.
func (s *SQLiteStorage) SaveTransactions(ctx context.Context, transactions []model.Transaction) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateTransactions(transactions); err != nil {
		return 0, err
	}

	inserted := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR IGNORE INTO transactions (`+transactionColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, txn := range transactions {
			if txn.Hash == "" {
				txn.Hash = txn.GenerateHash()
			}

			result, err := stmt.ExecContext(ctx,
				txn.ID,
				txn.Hash,
				txn.Date.Format(model.DateLayout),
				txn.Description,
				txn.Amount.StringFixed(2),
				accountValue(txn.Source),
				accountValue(txn.Destination),
				string(txn.Type),
				nullableString(txn.Category),
				nullableString(txn.Budget),
			)
			if err != nil {
				return fmt.Errorf("failed to save transaction %s: %w", txn.ID, err)
			}
			if n, _ := result.RowsAffected(); n > 0 {
				inserted++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	slog.Debug("saved transactions",
		"received", len(transactions),
		"inserted", inserted)
	return inserted, nil
}

// GetTransactions returns transactions matching filter ordered by date.
func (s *SQLiteStorage) GetTransactions(ctx context.Context, filter service.TransactionFilter) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if filter.StartDate != nil && filter.EndDate != nil && filter.EndDate.Before(*filter.StartDate) {
		return nil, fmt.Errorf("%w: end date %v is before start date %v", ErrInvalidDateRange, *filter.EndDate, *filter.StartDate)
	}

	var where []string
	var args []any

	if filter.StartDate != nil {
		where = append(where, "date >= ?")
		args = append(args, filter.StartDate.Format(model.DateLayout))
	}
	if filter.EndDate != nil {
		where = append(where, "date <= ?")
		args = append(args, filter.EndDate.Format(model.DateLayout))
	}
	if filter.Unlabeled != "" {
		column, err := labelColumn(filter.Unlabeled)
		if err != nil {
			return nil, err
		}
		where = append(where, fmt.Sprintf("(%s IS NULL OR %s = '')", column, column))
	}
	if len(filter.Types) > 0 {
		placeholders := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			placeholders[i] = "?"
			args = append(args, string(t))
		}
		where = append(where, "type IN ("+strings.Join(placeholders, ", ")+")")
	}

	query := "SELECT " + transactionColumns + " FROM transactions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var transactions []model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return transactions, nil
}

// GetTransactionByID returns one transaction or common.ErrNotFound.
func (s *SQLiteStorage) GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, "SELECT "+transactionColumns+" FROM transactions WHERE id = ?", id)
	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// ApplyLabels writes labels (transaction ID to label name) in a single
// database transaction. Every label must exist; otherwise nothing is written.
func (s *SQLiteStorage) ApplyLabels(ctx context.Context, kind model.AssignmentKind, labels map[string]string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	column, err := labelColumn(kind)
	if err != nil {
		return err
	}
	if len(labels) == 0 {
		return nil
	}

	table, _ := labelTable(kind)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for id, label := range labels {
			if err := validateString(label, "label"); err != nil {
				return fmt.Errorf("transaction %s: %w", id, err)
			}

			var canonical string
			err := tx.QueryRowContext(ctx, "SELECT name FROM "+table+" WHERE name = ?", label).Scan(&canonical)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%s %q: %w", kind, label, common.ErrNotFound)
			}
			if err != nil {
				return fmt.Errorf("failed to look up %s %q: %w", kind, label, err)
			}

			result, err := tx.ExecContext(ctx, "UPDATE transactions SET "+column+" = ? WHERE id = ?", canonical, id)
			if err != nil {
				return fmt.Errorf("failed to label transaction %s: %w", id, err)
			}
			if n, _ := result.RowsAffected(); n == 0 {
				return fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
			}
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (model.Transaction, error) {
	var (
		txn                 model.Transaction
		date, amount, typ   string
		source, destination sql.NullString
		category, budget    sql.NullString
	)

	if err := row.Scan(&txn.ID, &txn.Hash, &date, &txn.Description, &amount,
		&source, &destination, &typ, &category, &budget); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return txn, err
		}
		return txn, fmt.Errorf("failed to scan transaction: %w", err)
	}

	parsedDate, err := time.Parse(model.DateLayout, date)
	if err != nil {
		return txn, fmt.Errorf("transaction %s has invalid date %q: %w", txn.ID, date, err)
	}
	parsedAmount, err := decimal.NewFromString(amount)
	if err != nil {
		return txn, fmt.Errorf("transaction %s has invalid amount %q: %w", txn.ID, amount, err)
	}

	txn.Date = parsedDate
	txn.Amount = parsedAmount
	txn.Type = model.TransactionType(typ)
	txn.Source = accountFromColumn(source)
	txn.Destination = accountFromColumn(destination)
	txn.Category = category.String
	txn.Budget = budget.String
	return txn, nil
}

// accountValue maps an AccountRef to its column value: NULL for an explicit
// null, '' for an unreported account.
func accountValue(a model.AccountRef) any {
	if a.Null {
		return nil
	}
	return a.Name
}

func accountFromColumn(v sql.NullString) model.AccountRef {
	if !v.Valid {
		return model.NullAccount()
	}
	if v.String == "" {
		return model.AccountRef{}
	}
	return model.NamedAccount(v.String)
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
