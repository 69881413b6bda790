// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/spice-assign/internal/model"
)

// TransactionFilter defines filtering options for transaction queries.
type TransactionFilter struct {
	StartDate *time.Time
	EndDate   *time.Time
	// Unlabeled restricts results to transactions with no label of this kind.
	Unlabeled model.AssignmentKind
	// Types restricts results to the given transaction types when non-empty.
	Types []model.TransactionType
	Limit int
}

// LabelSource supplies the current valid category and budget names.
// Names are assumed stable for the duration of one assignment run.
type LabelSource interface {
	LabelNames(ctx context.Context, kind model.AssignmentKind) ([]string, error)
}

// Ledger is the financial ledger the assignment run reads from and writes to.
type Ledger interface {
	LabelSource

	// Transaction operations
	SaveTransactions(ctx context.Context, transactions []model.Transaction) (int, error)
	GetTransactions(ctx context.Context, filter TransactionFilter) ([]model.Transaction, error)
	GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error)
	ApplyLabels(ctx context.Context, kind model.AssignmentKind, labels map[string]string) error

	// Label operations
	CreateLabel(ctx context.Context, kind model.AssignmentKind, name string) error
	DeleteLabel(ctx context.Context, kind model.AssignmentKind, name string) error

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// CompletionStats shows the results of an assignment run.
type CompletionStats struct {
	Kind        model.AssignmentKind
	Assignments []model.Assignment
	Total       int
	Assigned    int
	Unmatched   int
	Cached      int
	Applied     bool
	Duration    time.Duration
}
