// Package testutil provides ledger fixtures for tests: an in-memory SQLite
// ledger seeded with labels and transactions, cleaned up with the test.
package testutil

import (
	"context"
	"testing"

	"github.com/Veraticus/spice-assign/internal/model"
	"github.com/Veraticus/spice-assign/internal/service"
	"github.com/Veraticus/spice-assign/internal/storage"
)

// LedgerOptions describes the initial contents of a test ledger.
type LedgerOptions struct {
	Categories   []string
	Budgets      []string
	Transactions []model.Transaction
}

// TestLedger is a migrated in-memory ledger bound to a test.
type TestLedger struct {
	*storage.SQLiteStorage
	t *testing.T
}

// SetupTestLedger creates a new in-memory ledger seeded from opts.
// It automatically handles migrations and cleanup.
//
// Example:
//
//	ledger := testutil.SetupTestLedger(t, testutil.LedgerOptions{
//		Categories:   testutil.StandardCategories,
//		Transactions: testutil.SampleTransactions(),
//	})
func SetupTestLedger(t *testing.T, opts LedgerOptions) *TestLedger {
	t.Helper()

	store, err := storage.NewSQLiteStorage(storage.MemoryPath)
	if err != nil {
		t.Fatalf("failed to create test ledger: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	seed := []struct {
		kind  model.AssignmentKind
		names []string
	}{
		{model.KindCategory, opts.Categories},
		{model.KindBudget, opts.Budgets},
	}
	for _, s := range seed {
		for _, name := range s.names {
			if err := store.CreateLabel(ctx, s.kind, name); err != nil {
				t.Fatalf("failed to seed %s %q: %v", s.kind, name, err)
			}
		}
	}

	if len(opts.Transactions) > 0 {
		if _, err := store.SaveTransactions(ctx, opts.Transactions); err != nil {
			t.Fatalf("failed to seed transactions: %v", err)
		}
	}

	return &TestLedger{SQLiteStorage: store, t: t}
}

// MustGet returns the transaction with id or fails the test.
func (l *TestLedger) MustGet(id string) *model.Transaction {
	l.t.Helper()
	txn, err := l.GetTransactionByID(context.Background(), id)
	if err != nil {
		l.t.Fatalf("failed to get transaction %q: %v", id, err)
	}
	return txn
}

// Unlabeled returns the IDs of transactions with no label of kind.
func (l *TestLedger) Unlabeled(kind model.AssignmentKind) []string {
	l.t.Helper()
	txns, err := l.GetTransactions(context.Background(), service.TransactionFilter{Unlabeled: kind})
	if err != nil {
		l.t.Fatalf("failed to list unlabeled transactions: %v", err)
	}
	ids := make([]string, len(txns))
	for i, txn := range txns {
		ids[i] = txn.ID
	}
	return ids
}
