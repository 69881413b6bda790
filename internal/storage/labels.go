package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/spice-assign/internal/common"
	"github.com/Veraticus/spice-assign/internal/model"
)

func labelTable(kind model.AssignmentKind) (string, error) {
	if err := validateKind(kind); err != nil {
		return "", err
	}
	return kind.Plural(), nil
}

func labelColumn(kind model.AssignmentKind) (string, error) {
	if err := validateKind(kind); err != nil {
		return "", err
	}
	return string(kind), nil
}

// ListLabels returns every label of kind ordered by name.
func (s *SQLiteStorage) ListLabels(ctx context.Context, kind model.AssignmentKind) ([]model.Label, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	table, err := labelTable(kind)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, "SELECT id, name, created_at FROM "+table+" ORDER BY name COLLATE NOCASE")
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var labels []model.Label
	for rows.Next() {
		label := model.Label{Kind: kind}
		if err := rows.Scan(&label.ID, &label.Name, &label.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", kind, err)
		}
		labels = append(labels, label)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s: %w", table, err)
	}

	slog.Debug("retrieved labels", "kind", kind, "count", len(labels))
	return labels, nil
}

// LabelNames returns the names of every label of kind.
func (s *SQLiteStorage) LabelNames(ctx context.Context, kind model.AssignmentKind) ([]string, error) {
	labels, err := s.ListLabels(ctx, kind)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(labels))
	for i, label := range labels {
		names[i] = label.Name
	}
	return names, nil
}

// CreateLabel adds a label. Names are unique ignoring case.
func (s *SQLiteStorage) CreateLabel(ctx context.Context, kind model.AssignmentKind, name string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	table, err := labelTable(kind)
	if err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	if err := validateString(name, "name"); err != nil {
		return err
	}
	if kind.IsUnassigned(name) {
		return fmt.Errorf("%w: %q is reserved", common.ErrInvalidLabel, name)
	}

	result, err := s.db.ExecContext(ctx, "INSERT OR IGNORE INTO "+table+" (name) VALUES (?)", name)
	if err != nil {
		return fmt.Errorf("failed to create %s %q: %w", kind, name, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%s %q: %w", kind, name, common.ErrDuplicateEntry)
	}

	slog.Info("created label", "kind", kind, "name", name)
	return nil
}

// DeleteLabel removes a label and clears it from every transaction carrying it.
func (s *SQLiteStorage) DeleteLabel(ctx context.Context, kind model.AssignmentKind, name string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	table, err := labelTable(kind)
	if err != nil {
		return err
	}
	column, _ := labelColumn(kind)
	if err := validateString(name, "name"); err != nil {
		return err
	}

	var cleared int64
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var canonical string
		err := tx.QueryRowContext(ctx, "SELECT name FROM "+table+" WHERE name = ?", name).Scan(&canonical)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%s %q: %w", kind, name, common.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to look up %s %q: %w", kind, name, err)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE name = ?", canonical); err != nil {
			return fmt.Errorf("failed to delete %s %q: %w", kind, canonical, err)
		}

		result, err := tx.ExecContext(ctx, "UPDATE transactions SET "+column+" = NULL WHERE "+column+" = ?", canonical)
		if err != nil {
			return fmt.Errorf("failed to clear %s %q: %w", kind, canonical, err)
		}
		cleared, _ = result.RowsAffected()
		return nil
	})
	if err != nil {
		return err
	}

	slog.Info("deleted label", "kind", kind, "name", name, "transactions_cleared", cleared)
	return nil
}
