package main

import (
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/suitenumerique/ui-kit/pkg/model"
	"github.com/suitenumerique/ui-kit/pkg/tree"
)

func newMoveCmd(a *app) *cobra.Command {
	var index int

	cmd := &cobra.Command{
		Use:   "move NODE PARENT",
		Short: "Move a node under PARENT and persist the result",
		Long: `Move a node under PARENT and persist the result.

The move goes through the same checks as a drop in the browser: a node
cannot land inside itself or its descendants, nor inside a file. --index is
the position among PARENT's current children; the default appends. The
resolved move instruction is printed as JSON, then the post-move commands
from hooks.yaml run.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			src, err := a.openSource(ctx)
			if err != nil {
				return err
			}
			defer src.Close()

			var persistErr error
			p, err := a.newProvider(ctx, src, false, func(instr tree.MoveInstruction, _ *tree.Node[model.Doc]) {
				persistErr = src.ApplyMove(ctx, instr)
			})
			if err != nil {
				return err
			}
			defer p.Close()

			if err := loadAll(ctx, p); err != nil {
				return fmt.Errorf("loading tree: %w", err)
			}

			nodeID, parentID := args[0], args[1]
			at := index
			if at < 0 {
				at = len(p.Store().Children(parentID))
			}
			instr, err := p.Move(tree.MoveEvent[model.Doc]{
				DragIDs:  []string{nodeID},
				ParentID: parentID,
				Index:    at,
			})
			if err != nil {
				return err
			}
			if persistErr != nil {
				return fmt.Errorf("persisting %s: %w", instr, persistErr)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(instr); err != nil {
				return err
			}

			h, err := a.hookRunner(a.moveContext(*instr))
			if err != nil || h == nil {
				return err
			}
			err = h.RunPostMove(ctx)
			a.logger.Debug().Msg(h.Summary())
			return err
		},
	}
	cmd.Flags().IntVarP(&index, "index", "i", -1, "position among PARENT's children (-1 appends)")
	return cmd
}
