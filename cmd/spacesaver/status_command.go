package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"spacesaver/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show dependency health and catalog counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			for _, line := range renderSectionHeader("Dependencies", colorize) {
				fmt.Fprintln(stdout, line)
			}
			for _, r := range preflight.RunAll(cfg) {
				fmt.Fprintln(stdout, renderStatusLine(r.Name, statusKindFromPassed(r.Passed), r.Detail, colorize))
			}
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Catalog", colorize) {
				fmt.Fprintln(stdout, line)
			}

			client, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := client.status(cmd.Context())
			if err != nil {
				fmt.Fprintln(stdout, renderStatusLine("Daemon", statusWarn, err.Error(), colorize))
				return nil
			}

			rows := make([][]string, 0, len(resp.EntryCounts))
			for state, count := range resp.EntryCounts {
				rows = append(rows, []string{state, fmt.Sprintf("%d", count)})
			}
			if len(rows) == 0 {
				fmt.Fprintln(stdout, "Catalog is empty")
				return nil
			}
			fmt.Fprint(stdout, renderTable([]string{"State", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
			fmt.Fprintf(stdout, "Total: %d  Uptime: %.0fs\n", resp.Total, resp.UptimeS)
			return nil
		},
	}
	return cmd
}
