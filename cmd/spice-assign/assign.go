package main

import (
	"fmt"
	"time"

	"github.com/Veraticus/spice-assign/internal/cli"
	"github.com/Veraticus/spice-assign/internal/engine"
	"github.com/Veraticus/spice-assign/internal/llm"
	"github.com/Veraticus/spice-assign/internal/model"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func assignCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Assign categories or budgets to unlabeled transactions",
		Long: `Send every unlabeled transaction to the configured LLM in batches and write the
returned labels back to the ledger. Either every label is written or none is.

Examples:
  # Categorize everything that has no category yet
  spice-assign assign

  # Preview budget assignments for the first 50 withdrawals
  spice-assign assign --kind budget --limit 50 --dry-run

  # Only transactions since March, with metrics on :9090
  spice-assign assign --since 2024-03-01 --metrics-addr :9090`,
		RunE: runAssign,
	}

	cmd.Flags().StringP("kind", "k", string(model.KindCategory), "what to assign (category, budget)")
	cmd.Flags().BoolP("dry-run", "d", false, "Preview assignments without saving")
	cmd.Flags().IntP("limit", "n", 0, "Assign at most this many transactions (0 for all)")
	cmd.Flags().String("since", "", "Only transactions on or after this date (YYYY-MM-DD)")
	cmd.Flags().BoolP("verbose", "v", false, "List every assignment")
	cmd.Flags().String("metrics-addr", "", "Serve prometheus metrics on this address while running")

	_ = viper.BindPFlag("metrics.addr", cmd.Flags().Lookup("metrics-addr"))

	return cmd
}

func runAssign(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg := loadedConfig()

	kindFlag, _ := cmd.Flags().GetString("kind")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	limit, _ := cmd.Flags().GetInt("limit")
	since, _ := cmd.Flags().GetString("since")
	verbose, _ := cmd.Flags().GetBool("verbose")

	kind, err := model.ParseAssignmentKind(kindFlag)
	if err != nil {
		return err
	}
	if limit < 0 {
		return fmt.Errorf("--limit cannot be negative")
	}

	opts := engine.RunOptions{DryRun: dryRun, Limit: limit}
	if since != "" {
		start, err := time.Parse(model.DateLayout, since)
		if err != nil {
			return fmt.Errorf("invalid --since date %q: %w", since, err)
		}
		opts.StartDate = &start
	}

	stopMetrics, err := startMetricsServer(viper.GetString("metrics.addr"))
	if err != nil {
		return err
	}
	defer stopMetrics()

	store, err := initStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	assigner, components, err := llm.NewAssignerFromConfig(cfg.LLM, nil)
	if err != nil {
		return err
	}
	defer components.Close()

	out := cmd.OutOrStdout()
	progress := cli.NewBatchProgress(cmd.ErrOrStderr(), fmt.Sprintf("Assigning %s...", kind.Plural()))
	opts.Progress = progress.Update

	stats, err := engine.New(store, assigner, nil).Run(ctx, kind, opts)
	if err != nil {
		return err
	}

	if stats.Total == 0 {
		fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Every transaction already has a %s.", kind)))
		return nil
	}

	if verbose || dryRun {
		fmt.Fprintln(out, cli.RenderAssignments(kind, stats.Assignments))
		fmt.Fprintln(out)
	}
	fmt.Fprintln(out, cli.RenderTotals(cli.LabelTotals(stats.Assignments)))
	fmt.Fprintln(out)
	fmt.Fprintln(out, cli.RenderSummary(stats))

	if stats.Unmatched > 0 {
		fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf(
			"%d transactions did not fit any %s and were left unlabeled.", stats.Unmatched, kind)))
	}
	return nil
}
