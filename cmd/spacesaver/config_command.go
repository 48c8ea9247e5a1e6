package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"spacesaver/internal/config"
)

const defaultConfigPath = "~/.config/spacesaver/config.toml"

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:         "config",
		Short:       "Configuration utilities",
		Annotations: map[string]string{"skipConfigLoad": "true"},
	}
	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigPathCommand())
	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a sample configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" {
				target = defaultConfigPath
			}
			expanded, err := config.ExpandPath(target)
			if err != nil {
				return fmt.Errorf("resolve config path: %w", err)
			}
			if err := config.CreateSample(expanded); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote sample configuration to %s\n", expanded)
			return nil
		},
	}
	cmd.Flags().StringVar(&targetPath, "path", "", "Destination path (default ~/.config/spacesaver/config.toml)")
	return cmd
}

func newConfigPathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the resolved default configuration path",
		RunE: func(cmd *cobra.Command, args []string) error {
			expanded, err := config.ExpandPath(defaultConfigPath)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), expanded)
			return nil
		},
	}
}
