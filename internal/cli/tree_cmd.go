package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alexanderramin/treeline/internal/cli/formatter"
	"github.com/alexanderramin/treeline/internal/domain"
)

func newTreeCmd(app *App) *cobra.Command {
	var showKeys bool
	cmd := &cobra.Command{
		Use:   "tree <project-id>",
		Short: "Print a project's work-item tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := app.Ledger.Snapshot(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			rows := flattenTree(items, showKeys)
			fmt.Fprint(cmd.OutOrStdout(), formatter.RenderTree(rows))
			return nil
		},
	}
	cmd.Flags().BoolVar(&showKeys, "keys", false, "show order keys")
	return cmd
}

// flattenTree orders items depth-first by order key and annotates each row
// with its level and last-sibling flag for the tree renderer.
func flattenTree(items []*domain.WorkItem, showKeys bool) []formatter.TreeItem {
	byParent := make(map[string][]*domain.WorkItem)
	for _, it := range items {
		key := ""
		if it.ParentID != nil {
			key = *it.ParentID
		}
		byParent[key] = append(byParent[key], it)
	}
	// Snapshot rows arrive ordered by order key inside each group.

	var rows []formatter.TreeItem
	var walk func(parentKey string, level int)
	walk = func(parentKey string, level int) {
		children := byParent[parentKey]
		for i, child := range children {
			row := formatter.TreeItem{
				Title:   child.Title,
				Level:   level,
				IsLast:  i == len(children)-1,
				Version: child.Version,
			}
			if showKeys {
				row.Detail = child.OrderKey
			}
			rows = append(rows, row)
			walk(child.ID, level+1)
		}
	}
	walk("", 0)
	return rows
}
