package main

import (
	"errors"
	"fmt"

	"github.com/Veraticus/spice-assign/internal/cli"
	"github.com/Veraticus/spice-assign/internal/common"
	"github.com/Veraticus/spice-assign/internal/model"
	"github.com/spf13/cobra"
)

// labelsCmd builds the "categories" or "budgets" command group.
func labelsCmd(kind model.AssignmentKind) *cobra.Command {
	cmd := &cobra.Command{
		Use:   kind.Plural(),
		Short: fmt.Sprintf("Manage %s", kind.Plural()),
		Long:  fmt.Sprintf("List, add and remove the %s that transactions can be assigned to.", kind.Plural()),
	}

	cmd.AddCommand(listLabelsCmd(kind))
	cmd.AddCommand(addLabelCmd(kind))
	cmd.AddCommand(removeLabelCmd(kind))

	return cmd
}

func listLabelsCmd(kind model.AssignmentKind) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: fmt.Sprintf("List all %s", kind.Plural()),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := initStorage(ctx, loadedConfig())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			labels, err := store.ListLabels(ctx, kind)
			if err != nil {
				return fmt.Errorf("failed to list %s: %w", kind.Plural(), err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderLabels(kind, labels))
			return nil
		},
	}
}

func addLabelCmd(kind model.AssignmentKind) *cobra.Command {
	return &cobra.Command{
		Use:   "add <name>...",
		Short: fmt.Sprintf("Add one or more %s", kind.Plural()),
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := initStorage(ctx, loadedConfig())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			out := cmd.OutOrStdout()
			for _, name := range args {
				err := store.CreateLabel(ctx, kind, name)
				switch {
				case errors.Is(err, common.ErrDuplicateEntry):
					fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf("%s %q already exists", kind, name)))
				case errors.Is(err, common.ErrInvalidLabel):
					return common.NewUserError(
						fmt.Sprintf("%q is reserved and cannot be used as a %s name.", name, kind), err)
				case err != nil:
					return fmt.Errorf("failed to add %s %q: %w", kind, name, err)
				default:
					fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Added %s %q", kind, name)))
				}
			}
			return nil
		},
	}
}

func removeLabelCmd(kind model.AssignmentKind) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <name>",
		Aliases: []string{"rm", "delete"},
		Short:   fmt.Sprintf("Remove a %s and clear it from transactions", kind),
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := initStorage(ctx, loadedConfig())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.DeleteLabel(ctx, kind, args[0]); err != nil {
				if errors.Is(err, common.ErrNotFound) {
					return common.NewUserError(fmt.Sprintf("No %s named %q.", kind, args[0]), err)
				}
				return fmt.Errorf("failed to remove %s %q: %w", kind, args[0], err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Removed %s %q", kind, args[0])))
			return nil
		},
	}
}
