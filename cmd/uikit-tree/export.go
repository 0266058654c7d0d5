package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/suitenumerique/ui-kit/pkg/debug"
	"github.com/suitenumerique/ui-kit/pkg/export"
	"github.com/suitenumerique/ui-kit/pkg/hooks"
	"github.com/suitenumerique/ui-kit/pkg/model"
	"github.com/suitenumerique/ui-kit/pkg/tree"
)

func newExportCmd(a *app) *cobra.Command {
	var out, format string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Load the whole tree and print it as flat JSON, an outline, or a picture",
		Long: `Load the whole tree and print it as flat JSON, an outline, or a picture.

Every folder is loaded eagerly. The JSON form lists the tree in pre-order,
one object per node with its parent id and position; it can be read back
with tree.ReadJSON and tree.Unflatten. --format markdown prints a nested
list, styled on a terminal and raw when piped or saved with --output.
mermaid prints a flowchart of the folders. svg and png draw the tree as
an indented outline; png needs --output. The pre-export and post-export
commands from hooks.yaml run around the write.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer debug.LogEnterExit("export")()
			ctx := cmd.Context()

			src, err := a.openSource(ctx)
			if err != nil {
				return err
			}
			defer src.Close()

			p, err := a.newProvider(ctx, src, false, nil)
			if err != nil {
				return err
			}
			defer p.Close()

			if err := loadAll(ctx, p); err != nil {
				return fmt.Errorf("loading tree: %w", err)
			}
			root := p.Store().Snapshot()
			if err := tree.Check(root); err != nil {
				return err
			}

			if format == "" {
				format = formatFromPath(out)
			}

			flat := tree.Flatten(root)
			h, err := a.hookRunner(hooks.ExportContext{
				ExportPath:   out,
				ExportFormat: format,
				NodeCount:    len(flat),
				DBPath:       a.cfg.Source.DBPath,
				Timestamp:    time.Now(),
			})
			if err != nil {
				return err
			}
			if h != nil {
				if err := h.RunPreExport(ctx); err != nil {
					return fmt.Errorf("export cancelled: %w", err)
				}
			}
			if err := writeExport(cmd.OutOrStdout(), root, flat, format, out); err != nil {
				return err
			}
			if h != nil {
				err := h.RunPostExport(ctx)
				a.logger.Debug().Msg(h.Summary())
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "write to this file instead of stdout")
	cmd.Flags().StringVarP(&format, "format", "f", "", "json, markdown, mermaid, svg, or png (default from --output extension, else json)")
	return cmd
}

func writeExport(stdout io.Writer, root *tree.Node[model.Doc], flat []tree.FlatNode[model.Doc], format, out string) error {
	switch format {
	case "json":
	case "markdown", "mermaid":
		var text string
		var err error
		if format == "markdown" {
			text, err = export.GenerateMarkdown(root, "", time.Now())
		} else {
			text, err = export.GenerateMermaid(root)
		}
		if err != nil {
			return err
		}
		if out != "" {
			return export.SaveText(text, out)
		}
		if format == "markdown" {
			if width, ok := terminalWidth(stdout); ok {
				if text, err = renderMarkdown(text, width); err != nil {
					return err
				}
			}
		}
		_, err = io.WriteString(stdout, text)
		return err
	case "png":
		if out == "" {
			return fmt.Errorf("png export needs --output")
		}
		return export.SaveSnapshot(root, export.SnapshotOptions{Path: out, Format: format})
	case "svg":
		if out != "" {
			return export.SaveSnapshot(root, export.SnapshotOptions{Path: out, Format: format})
		}
		return export.WriteSVG(stdout, root, "")
	default:
		return fmt.Errorf("unknown format %q (want json, markdown, mermaid, svg, or png)", format)
	}

	w := stdout
	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	return tree.WriteJSON(w, flat)
}

// terminalWidth reports the column count of w when it is a terminal.
// Replaced in tests.
var terminalWidth = func(w io.Writer) (int, bool) {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0, false
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		width = 80
	}
	return width, true
}

// renderMarkdown styles the outline for a terminal.
func renderMarkdown(text string, width int) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("markdown renderer: %w", err)
	}
	return r.Render(text)
}

// formatFromPath picks the export format from an output file extension.
func formatFromPath(out string) string {
	switch strings.ToLower(filepath.Ext(out)) {
	case ".md", ".markdown":
		return "markdown"
	case ".mmd", ".mermaid":
		return "mermaid"
	case ".svg", ".png":
		f, _ := export.SnapshotFormat(out, "")
		return f
	default:
		return "json"
	}
}
