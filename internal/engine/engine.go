// Package engine runs assignment passes over the ledger: it loads unlabeled
// transactions, asks the assigner for labels and writes them back.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/spice-assign/internal/common"
	"github.com/Veraticus/spice-assign/internal/llm"
	"github.com/Veraticus/spice-assign/internal/model"
	"github.com/Veraticus/spice-assign/internal/service"
)

// RunOptions controls a single assignment pass.
type RunOptions struct {
	Progress  llm.ProgressFunc
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	// DryRun computes assignments without writing them to the ledger.
	DryRun bool
}

// Engine orchestrates assignment passes.
type Engine struct {
	ledger   service.Ledger
	assigner Assigner
	logger   *slog.Logger
}

// New creates an engine with the given dependencies.
func New(ledger service.Ledger, assigner Assigner, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		ledger:   ledger,
		assigner: assigner,
		logger:   logger,
	}
}

// Run assigns a label of kind to every unlabeled transaction. Budgets only
// apply to withdrawals. Either every label is applied or none is.
func (e *Engine) Run(ctx context.Context, kind model.AssignmentKind, opts RunOptions) (*service.CompletionStats, error) {
	start := time.Now()
	if !kind.Valid() {
		return nil, common.NewUserError(
			fmt.Sprintf("Unknown assignment kind %q; use category or budget.", kind),
			fmt.Errorf("invalid kind %q", kind))
	}

	filter := service.TransactionFilter{
		Unlabeled: kind,
		StartDate: opts.StartDate,
		EndDate:   opts.EndDate,
		Limit:     opts.Limit,
	}
	if kind == model.KindBudget {
		filter.Types = []model.TransactionType{model.TypeWithdrawal}
	}

	transactions, err := e.ledger.GetTransactions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}

	stats := &service.CompletionStats{Kind: kind, Total: len(transactions)}
	if len(transactions) == 0 {
		e.logger.Info("Nothing to assign", "kind", kind)
		stats.Duration = time.Since(start)
		return stats, nil
	}

	names, err := e.ledger.LabelNames(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", kind.Plural(), err)
	}
	if len(names) == 0 {
		return nil, common.NewUserError(
			fmt.Sprintf("No %s are defined yet. Add one with `spice-assign %s add <name>`.", kind.Plural(), kind.Plural()),
			common.ErrNoOptions)
	}

	e.logger.Info("Starting assignment",
		"kind", kind,
		"transactions", len(transactions),
		"options", len(names),
		"dry_run", opts.DryRun)

	descriptors := make([]model.TransactionDescriptor, len(transactions))
	for i, txn := range transactions {
		descriptors[i] = txn.Descriptor()
	}

	var assignOpts []llm.AssignOption
	if opts.Progress != nil {
		assignOpts = append(assignOpts, llm.WithProgress(opts.Progress))
	}

	result := e.assigner.Assign(ctx, model.AssignmentRequest{
		Kind:         kind,
		Transactions: descriptors,
		Options:      names,
	}, assignOpts...)
	if !result.OK() {
		return nil, result.Failure.UserError()
	}
	if len(result.Labels) != len(transactions) {
		return nil, fmt.Errorf("%w: %d labels for %d transactions", common.ErrCountMismatch, len(result.Labels), len(transactions))
	}

	updates := make(map[string]string, len(transactions))
	stats.Assignments = make([]model.Assignment, len(transactions))
	for i, txn := range transactions {
		label := result.Labels[i]
		stats.Assignments[i] = model.Assignment{Transaction: txn, Label: label}
		if kind.IsUnassigned(label) {
			stats.Unmatched++
			continue
		}
		updates[txn.ID] = label
		stats.Assigned++
	}
	stats.Cached = result.Cached

	if !opts.DryRun && len(updates) > 0 {
		if err := e.ledger.ApplyLabels(ctx, kind, updates); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, common.NewUserError("Assignment was canceled; no changes were made.", err)
			}
			return nil, fmt.Errorf("failed to apply %s: %w", kind.Plural(), err)
		}
		stats.Applied = true
	}

	stats.Duration = time.Since(start)
	e.logger.Info("Assignment complete",
		"kind", kind,
		"assigned", stats.Assigned,
		"unmatched", stats.Unmatched,
		"cached", stats.Cached,
		"applied", stats.Applied,
		"duration", stats.Duration)

	return stats, nil
}
