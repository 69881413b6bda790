package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/Veraticus/spice-assign/internal/cli"
	"github.com/Veraticus/spice-assign/internal/model"
	"github.com/Veraticus/spice-assign/internal/ofx"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [files...]",
		Short: "Import transactions from OFX/QFX files",
		Long: `Import financial transactions from OFX or QFX (Quicken) files exported from your bank.
Transactions already in the ledger are skipped.

Examples:
  # Import single file
  spice-assign import ~/Downloads/chase_jan_2024.qfx

  # Import all QFX files in a directory
  spice-assign import ~/Downloads/*.qfx`,
		Args: cobra.MinimumNArgs(1),
		RunE: runImport,
	}

	cmd.Flags().BoolP("dry-run", "d", false, "Preview import without saving")

	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	out := cmd.OutOrStdout()

	files, err := expandFiles(args)
	if err != nil {
		return err
	}

	slog.Info("🌶️  Importing OFX files...",
		"file_count", len(files),
		"dry_run", dryRun)

	transactions, err := parseFiles(ctx, ofx.NewParser(), files)
	if err != nil {
		return err
	}
	if len(transactions) == 0 {
		fmt.Fprintln(out, cli.FormatWarning("No transactions found in any file."))
		return nil
	}

	fmt.Fprintln(out, summarizeImport(transactions))

	if dryRun {
		fmt.Fprintln(out, cli.FormatInfo("Dry run complete - no data saved."))
		return nil
	}

	store, err := initStorage(ctx, loadedConfig())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	inserted, err := store.SaveTransactions(ctx, transactions)
	if err != nil {
		return fmt.Errorf("failed to save transactions: %w", err)
	}

	fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Imported %d new transactions (%d already in the ledger).",
		inserted, len(transactions)-inserted)))
	return nil
}

// expandFiles expands glob patterns. Patterns matching nothing are kept
// when they name an existing file.
func expandFiles(patterns []string) ([]string, error) {
	var files []string
	seen := make(map[string]bool)
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", pattern, err)
		}
		if len(matches) == 0 {
			if _, err := os.Stat(pattern); err != nil {
				slog.Warn("No files found matching pattern", "pattern", pattern)
				continue
			}
			matches = []string{pattern}
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no files found to import")
	}
	return files, nil
}

// parseFiles parses every file, dropping transactions whose hash was seen in
// an earlier file. A file that fails to parse is skipped with a warning.
func parseFiles(ctx context.Context, parser *ofx.Parser, files []string) ([]model.Transaction, error) {
	var all []model.Transaction
	seen := make(map[string]bool)

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		transactions, err := parseFile(ctx, parser, path)
		if err != nil {
			slog.Error("Failed to parse OFX file", "file", path, "error", err)
			continue
		}

		added := 0
		for _, tx := range transactions {
			if seen[tx.Hash] {
				continue
			}
			seen[tx.Hash] = true
			all = append(all, tx)
			added++
		}
		slog.Info("Processed file",
			"file", filepath.Base(path),
			"transactions_found", len(transactions),
			"added", added,
			"duplicates", len(transactions)-added)
	}

	return all, nil
}

func parseFile(ctx context.Context, parser *ofx.Parser, path string) ([]model.Transaction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return parser.ParseFile(ctx, f)
}

// summarizeImport describes the date range, totals and accounts of an import.
func summarizeImport(transactions []model.Transaction) string {
	oldest, newest := transactions[0].Date, transactions[0].Date
	in, outTotal := decimal.Zero, decimal.Zero
	accounts := make(map[string]int)

	for _, tx := range transactions {
		if tx.Date.Before(oldest) {
			oldest = tx.Date
		}
		if tx.Date.After(newest) {
			newest = tx.Date
		}
		switch tx.Type {
		case model.TypeWithdrawal:
			outTotal = outTotal.Add(tx.Amount)
			accounts[tx.Source.String()]++
		case model.TypeDeposit:
			in = in.Add(tx.Amount)
			accounts[tx.Destination.String()]++
		default:
			accounts[tx.Source.String()]++
		}
	}

	names := make([]string, 0, len(accounts))
	for name := range accounts {
		names = append(names, name)
	}
	sort.Strings(names)

	summary := fmt.Sprintf("  • Transactions: %d\n", len(transactions)) +
		fmt.Sprintf("  • Date range: %s to %s\n", oldest.Format(model.DateLayout), newest.Format(model.DateLayout)) +
		fmt.Sprintf("  • Money out: $%s\n", outTotal.StringFixed(2)) +
		fmt.Sprintf("  • Money in: $%s\n", in.StringFixed(2)) +
		"  • Accounts:"
	for _, name := range names {
		summary += fmt.Sprintf("\n      %s (%d)", name, accounts[name])
	}

	return cli.RenderBox(cli.ChartIcon+" Import Summary", summary)
}
