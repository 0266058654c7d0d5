package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/suitenumerique/ui-kit/internal/datasource"
)

func newSeedCmd(a *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "seed FIXTURE",
		Short: "Replace the database contents with a YAML fixture",
		Long: `Replace the database contents with a YAML fixture.

A fixture is a single root node with nested children:

  root:
    id: workspace
    title: Workspace
    children:
      - id: specs
        kind: folder
        children:
          - id: intro
            title: Introduction

Nodes with children default to folders, the others to files. A database
that already holds nodes is only overwritten with --force.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			f, err := datasource.LoadFixture(args[0])
			if err != nil {
				return err
			}

			if err := os.MkdirAll(filepath.Dir(a.cfg.Source.DBPath), 0o755); err != nil {
				return fmt.Errorf("creating database directory: %w", err)
			}
			src, err := datasource.OpenSQLite(a.cfg.Source.DBPath, datasource.WithLogger(a.logger))
			if err != nil {
				return err
			}
			defer src.Close()

			n, err := src.Count(ctx)
			if err != nil {
				return err
			}
			if n > 0 && !force {
				return fmt.Errorf("%s already holds %d nodes; pass --force to replace them", src.Path(), n)
			}
			if err := src.Seed(ctx, f); err != nil {
				return err
			}
			n, err = src.Count(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d nodes into %s\n", n, src.Path())
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "replace a non-empty database")
	return cmd
}
