package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alexanderramin/treeline/internal/domain"
)

func newItemCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "item",
		Short: "Mutate work items through the ledger",
	}
	cmd.AddCommand(newItemAddCmd(app), newItemMoveCmd(app), newItemRmCmd(app))
	return cmd
}

func newItemAddCmd(app *App) *cobra.Command {
	var parentID, afterID string
	cmd := &cobra.Command{
		Use:   "add <project-id> <title>",
		Short: "Insert a work item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			intent := domain.MutationIntent{
				Kind:      domain.MutationInsert,
				ProjectID: args[0],
				Title:     args[1],
			}
			if parentID != "" {
				intent.NewParentID = &parentID
			}
			if afterID != "" {
				intent.LeftNeighborID = &afterID
			}
			res, err := app.Ledger.Apply(cmd.Context(), intent)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "inserted %s at key %s\n", res.Item.ID, res.Item.OrderKey)
			return nil
		},
	}
	cmd.Flags().StringVar(&parentID, "parent", "", "parent item id (defaults to root)")
	cmd.Flags().StringVar(&afterID, "after", "", "insert directly after this sibling")
	return cmd
}

func newItemMoveCmd(app *App) *cobra.Command {
	var parentID, afterID, beforeID string
	var expectedVersion int64
	cmd := &cobra.Command{
		Use:   "move <project-id> <item-id>",
		Short: "Move or reorder a work item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			intent := domain.MutationIntent{
				Kind:      domain.MutationMove,
				ProjectID: args[0],
				ItemID:    args[1],
			}
			if parentID != "" {
				intent.NewParentID = &parentID
			}
			if afterID != "" {
				intent.LeftNeighborID = &afterID
			}
			if beforeID != "" {
				intent.RightNeighborID = &beforeID
			}
			if cmd.Flags().Changed("expect-version") {
				intent.ExpectedVersion = &expectedVersion
			}
			res, err := app.Ledger.Apply(cmd.Context(), intent)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "moved %s to key %s (v%d)\n", res.Item.ID, res.Item.OrderKey, res.Item.Version)
			return nil
		},
	}
	cmd.Flags().StringVar(&parentID, "parent", "", "new parent item id (defaults to root)")
	cmd.Flags().StringVar(&afterID, "after", "", "place directly after this sibling")
	cmd.Flags().StringVar(&beforeID, "before", "", "place directly before this sibling")
	cmd.Flags().Int64Var(&expectedVersion, "expect-version", 0, "reject if the item's version has changed")
	return cmd
}

func newItemRmCmd(app *App) *cobra.Command {
	var cascade bool
	cmd := &cobra.Command{
		Use:   "rm <project-id> <item-id>",
		Short: "Delete a work item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			intent := domain.MutationIntent{
				Kind:      domain.MutationDelete,
				ProjectID: args[0],
				ItemID:    args[1],
				Policy:    domain.DeletePromote,
			}
			if cascade {
				intent.Policy = domain.DeleteCascade
			}
			res, err := app.Ledger.Apply(cmd.Context(), intent)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d item(s)\n", len(res.Removed))
			return nil
		},
	}
	cmd.Flags().BoolVar(&cascade, "cascade", false, "delete the whole subtree instead of promoting children")
	return cmd
}
