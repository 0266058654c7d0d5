package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/suitenumerique/ui-kit/pkg/hooks"
	"github.com/suitenumerique/ui-kit/pkg/model"
	"github.com/suitenumerique/ui-kit/pkg/tree"
	"github.com/suitenumerique/ui-kit/pkg/treectx"
	"github.com/suitenumerique/ui-kit/pkg/ui"
	"github.com/suitenumerique/ui-kit/pkg/watcher"
)

var errNoTerminal = errors.New("browse needs a terminal; use `uikit-tree export` for scripts")

func newBrowseCmd(a *app) *cobra.Command {
	var noWatch bool

	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Open the interactive tree browser",
		Long: `Open the interactive tree browser.

Folders load their children page by page as they are expanded. Press m on a
document to pick it up, move with j/k, and drop with enter (before the row)
or i (into the folder). Moves are written back to the database. Changes made
by other processes are picked up while the browser runs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !term.IsTerminal(int(os.Stdout.Fd())) {
				return errNoTerminal
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			src, err := a.openSource(ctx)
			if err != nil {
				return err
			}
			defer src.Close()

			h, err := a.hookRunner(nil)
			if err != nil {
				return err
			}

			var p *treectx.Provider[model.Doc]
			persist := func(instr tree.MoveInstruction, _ *tree.Node[model.Doc]) {
				err := src.ApplyMove(ctx, instr)
				if err == nil && h != nil {
					go func(hctx hooks.MoveContext) {
						if err := h.RunWith(ctx, hooks.PostMove, hctx); err != nil {
							a.logger.Warn().Err(err).Msg("post-move hook")
						}
					}(a.moveContext(instr))
				}
				if err != nil {
					a.logger.Error().Err(err).Str("instruction", instr.String()).Msg("persisting move")
					// Bring the view back in line with what the database kept.
					go func() {
						if err := p.RefreshLoaded(ctx); err != nil {
							a.logger.Warn().Err(err).Msg("resync after failed move")
						}
					}()
				}
			}
			p, err = a.newProvider(ctx, src, true, persist)
			if err != nil {
				return err
			}
			defer p.Close()

			theme, err := ui.ThemeByName(a.cfg.UI.Theme, lipgloss.DefaultRenderer())
			if err != nil {
				return err
			}
			opts := []ui.Option{
				ui.WithTheme(theme),
				ui.WithStateDir(a.cfg.UI.StateDir),
				ui.WithContext(ctx),
				ui.WithModelLogger(a.logger),
			}
			if !noWatch {
				w, err := watcher.NewWatcher(src.Path(),
					watcher.WithCompanions("-wal"),
					watcher.WithLogger(a.logger),
					watcher.WithOnError(func(err error) {
						a.logger.Warn().Err(err).Msg("database watch")
					}),
				)
				if err != nil {
					return err
				}
				if err := w.Start(); err != nil {
					return fmt.Errorf("watching %s: %w", src.Path(), err)
				}
				defer w.Stop()
				opts = append(opts, ui.WithWatcher(w))
			}

			return runTUIProgram(ui.NewModel(p, opts...))
		},
	}
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not reload when the database changes")
	return cmd
}
