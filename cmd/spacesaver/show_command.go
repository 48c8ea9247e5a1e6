package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Display full detail for one catalog entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			entry, err := client.show(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			rows := [][]string{
				{"ID", entry.ID},
				{"Path", entry.Path},
				{"Category", string(entry.Category)},
				{"State", string(entry.State)},
				{"Codec", entry.Codec},
				{"Resolution", fmt.Sprintf("%dx%d", entry.Width, entry.Height)},
				{"Bitrate", humanize.SI(float64(entry.BitRateBPS), "bps")},
				{"Duration", fmt.Sprintf("%.1fs", entry.DurationS)},
				{"Size", humanize.Bytes(uint64(entry.SizeBytes))},
				{"Attempts", fmt.Sprintf("%d", entry.Attempts)},
				{"Content hash", entry.ContentHash},
				{"Workdir path", entry.WorkdirPath},
				{"Last error", entry.LastError},
				{"Updated", humanize.Time(entry.UpdatedAt)},
			}
			fmt.Fprint(out, renderTable([]string{"Field", "Value"}, rows, []columnAlignment{alignLeft, alignLeft}))
			return nil
		},
	}
	return cmd
}
