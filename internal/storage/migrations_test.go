package storage

import (
	"context"
	"database/sql"
	"testing"

	"github.com/Veraticus/spice-assign/internal/model"
)

// TestMigration2_BudgetColumn checks a database created at version 1 keeps
// its rows and gains the budget column.
func TestMigration2_BudgetColumn(t *testing.T) {
	store, err := NewSQLiteStorage(MemoryPath)
	if err != nil {
		t.Fatalf("Failed to open storage: %v", err)
	}
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	err = store.withTx(ctx, func(tx *sql.Tx) error {
		if err := migrations[0].Up(tx); err != nil {
			return err
		}
		_, err := tx.Exec("PRAGMA user_version = 1")
		return err
	})
	if err != nil {
		t.Fatalf("Failed to create version 1 schema: %v", err)
	}

	_, err = store.db.ExecContext(ctx, `
		INSERT INTO transactions (id, hash, date, description, amount, source, destination, type, category)
		VALUES ('old-1', 'h1', '2023-12-31', 'Legacy', '12.00', 'Checking', NULL, 'withdrawal', NULL)`)
	if err != nil {
		t.Fatalf("Failed to seed version 1 row: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	txn, err := store.GetTransactionByID(ctx, "old-1")
	if err != nil {
		t.Fatalf("GetTransactionByID() error = %v", err)
	}
	if txn.Budget != "" {
		t.Errorf("Budget = %q, want empty", txn.Budget)
	}
	if txn.Destination.String() != "null" {
		t.Errorf("Destination = %q, want null", txn.Destination.String())
	}

	if err := store.CreateLabel(ctx, model.KindBudget, "Household"); err != nil {
		t.Errorf("CreateLabel(budget) after migration: %v", err)
	}
}
