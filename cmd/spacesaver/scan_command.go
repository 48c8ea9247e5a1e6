package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"spacesaver/internal/catalog"
	"spacesaver/internal/probe"
	"spacesaver/internal/scanner"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one scan pass over the configured media roots",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}

			store, err := catalog.Open(filepath.Join(cfg.Paths.WorkDir, "catalog.db"))
			if err != nil {
				return fmt.Errorf("open catalog: %w", err)
			}
			defer store.Close()

			inspector := probe.New(cfg.Encode.FFprobeBinary)

			roots := make([]scanner.Root, 0, len(cfg.MediaRoots()))
			for _, r := range cfg.MediaRoots() {
				roots = append(roots, scanner.Root{Path: r.Path, Category: catalog.Category(r.Category)})
			}

			sc := scanner.New(store, inspector, nil, scanner.Config{
				Roots:             roots,
				Extensions:        cfg.Workflow.MediaExtensions,
				TargetCodec:       cfg.Encode.TargetCodec,
				BitrateFloorTVBPS: cfg.Encode.BitrateFloorTVBPS,
				BitrateFloorMovie: cfg.Encode.BitrateFloorMovieBPS,
			})

			stdout := cmd.OutOrStdout()
			fmt.Fprintf(stdout, "Scanning %d media root(s)...\n", len(roots))
			if err := sc.Run(cmd.Context()); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			store.Wake()
			fmt.Fprintln(stdout, "Scan complete")
			return nil
		},
	}
	return cmd
}
