package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newEnqueueCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enqueue <id|best>",
		Short: "Move an entry back to PENDING, or promote the best SKIP/FAILED candidate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			if args[0] == "best" {
				id, err := client.enqueueBest(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(stdout, "Enqueued best candidate: %s\n", id)
				return nil
			}
			if err := client.enqueue(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Enqueued %s\n", args[0])
			return nil
		},
	}
	return cmd
}
