package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"spacesaver/internal/catalog"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	var stateFlag string
	var categoryFlag string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			entries, err := client.list(cmd.Context(), stateFlag, categoryFlag)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Catalog is empty")
				return nil
			}
			table := renderTable(
				[]string{"ID", "Path", "Category", "State", "Size", "Attempts"},
				buildListRows(entries),
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight},
			)
			fmt.Fprint(cmd.OutOrStdout(), table)
			return nil
		},
	}
	cmd.Flags().StringVar(&stateFlag, "state", "", "Filter by state (e.g. PENDING, DONE)")
	cmd.Flags().StringVar(&categoryFlag, "category", "", "Filter by category (tv or movie)")
	return cmd
}

func buildListRows(entries []catalog.MediaEntry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			e.ID,
			e.Path,
			string(e.Category),
			string(e.State),
			humanize.Bytes(uint64(e.SizeBytes)),
			strconv.Itoa(e.Attempts),
		})
	}
	return rows
}
