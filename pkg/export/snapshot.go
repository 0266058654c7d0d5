// Package export renders a loaded tree as a static SVG or PNG outline.
package export

import (
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strings"

	"git.sr.ht/~sbinet/gg"
	svg "github.com/ajstarks/svgo"
	"golang.org/x/image/font/basicfont"

	"github.com/suitenumerique/ui-kit/pkg/model"
	"github.com/suitenumerique/ui-kit/pkg/tree"
)

// SnapshotOptions controls snapshot export.
type SnapshotOptions struct {
	Path   string // Output path; format inferred from extension when Format is empty
	Format string // "svg" or "png" (case-insensitive)
	Title  string // Rendered in the summary block; defaults to the root title
}

// SaveSnapshot renders root and everything loaded below it to opts.Path.
func SaveSnapshot(root *tree.Node[model.Doc], opts SnapshotOptions) error {
	if root == nil {
		return fmt.Errorf("no tree to export")
	}
	if opts.Path == "" {
		return fmt.Errorf("output path is required")
	}
	format, err := SnapshotFormat(opts.Path, opts.Format)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}

	layout := buildLayout(root, opts.Title)
	if format == "png" {
		return renderPNG(opts.Path, layout)
	}
	f, err := os.Create(opts.Path)
	if err != nil {
		return err
	}
	defer f.Close()
	return renderSVG(f, layout)
}

// WriteSVG renders root as SVG to w.
func WriteSVG(w io.Writer, root *tree.Node[model.Doc], title string) error {
	if root == nil {
		return fmt.Errorf("no tree to export")
	}
	return renderSVG(w, buildLayout(root, title))
}

// SnapshotFormat resolves the output format from an explicit value or the
// file extension.
func SnapshotFormat(path, format string) (string, error) {
	f := strings.ToLower(strings.TrimPrefix(format, "."))
	if f == "" {
		f = strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	}
	switch f {
	case "svg", "png":
		return f, nil
	case "":
		return "svg", nil
	default:
		return "", fmt.Errorf("unsupported format %q (want svg or png)", f)
	}
}

// --- layout computation ----------------------------------------------------

const (
	padding      = 24.0
	headerHeight = 96.0
	indent       = 28.0
	rowHeight    = 30.0
	rowGap       = 8.0
	boxWidth     = 240.0
	minWidth     = 640
	minHeight    = 240
)

type layoutNode struct {
	ID     string
	Label  string
	Type   tree.NodeType
	Kind   model.Kind
	Depth  int
	Parent int // index into layoutResult.Nodes, -1 for the root
	X, Y   float64
	W, H   float64
}

type layoutResult struct {
	Nodes   []layoutNode
	Width   int
	Height  int
	Summary summaryInfo
}

type summaryInfo struct {
	Title    string
	Nodes    int
	Folders  int
	Files    int
	MaxDepth int
}

// buildLayout places one row per node in pre-order, indented by depth.
func buildLayout(root *tree.Node[model.Doc], title string) layoutResult {
	var res layoutResult
	place := func(n tree.TreeNode[model.Doc], depth, parent int) int {
		ln := layoutNode{
			ID:     n.NodeID(),
			Type:   n.Type(),
			Depth:  depth,
			Parent: parent,
			X:      padding + float64(depth)*indent,
			Y:      padding + headerHeight + float64(len(res.Nodes))*(rowHeight+rowGap),
			W:      boxWidth,
			H:      rowHeight,
		}
		switch v := n.(type) {
		case *tree.Node[model.Doc]:
			ln.Kind = v.Data.Kind
			ln.Label = v.Data.Title
			if ln.Label == "" {
				ln.Label = v.ID
			}
			res.Summary.Nodes++
			if v.Data.IsFolder() {
				res.Summary.Folders++
			} else {
				res.Summary.Files++
			}
		case *tree.Title[model.Doc]:
			ln.Label = strings.ToUpper(v.HeaderTitle)
		case *tree.ViewMore[model.Doc]:
			ln.Label = "… more"
		}
		if depth > res.Summary.MaxDepth {
			res.Summary.MaxDepth = depth
		}
		res.Nodes = append(res.Nodes, ln)
		return len(res.Nodes) - 1
	}

	var visit func(n *tree.Node[model.Doc], depth, idx int)
	visit = func(n *tree.Node[model.Doc], depth, idx int) {
		for _, c := range n.Children {
			ci := place(c, depth+1, idx)
			if node := tree.AsNode(c); node != nil {
				visit(node, depth+1, ci)
			}
		}
	}
	visit(root, 0, place(root, 0, -1))

	width := int(padding*2 + float64(res.Summary.MaxDepth)*indent + boxWidth)
	if width < minWidth {
		width = minWidth
	}
	height := int(padding*2 + headerHeight + float64(len(res.Nodes))*(rowHeight+rowGap))
	if height < minHeight {
		height = minHeight
	}
	res.Width, res.Height = width, height

	res.Summary.Title = title
	if strings.TrimSpace(res.Summary.Title) == "" {
		res.Summary.Title = res.Nodes[0].Label
	}
	return res
}

// --- rendering -------------------------------------------------------------

var (
	colorFolder   = color.RGBA{0xff, 0xe0, 0xb2, 0xff}
	colorFile     = color.RGBA{0xd6, 0xe4, 0xff, 0xff}
	colorTitle    = color.RGBA{0xe0, 0xf2, 0xf1, 0xff}
	colorViewMore = color.RGBA{0xf1, 0xf1, 0xf1, 0xff}
	colorStroke   = color.RGBA{0x22, 0x22, 0x22, 0xff}
	colorBranch   = color.RGBA{0x9e, 0x9e, 0x9e, 0xff}
	colorText     = color.RGBA{0x11, 0x11, 0x11, 0xff}
	colorSubtle   = color.RGBA{0x66, 0x66, 0x66, 0xff}
	colorBackdrop = color.RGBA{0xf9, 0xfa, 0xfb, 0xff}
	colorHeaderBG = color.RGBA{0xf3, 0xf4, 0xf6, 0xff}
)

func fillColor(n layoutNode) color.RGBA {
	switch n.Type {
	case tree.NodeTypeTitle:
		return colorTitle
	case tree.NodeTypeViewMore:
		return colorViewMore
	}
	if n.Kind == model.KindFolder {
		return colorFolder
	}
	return colorFile
}

// branch returns the elbow from a parent's left edge down to the middle of
// the child's left edge.
func branch(layout layoutResult, n layoutNode) (x1, y1, x2, y2 float64) {
	p := layout.Nodes[n.Parent]
	x1 = p.X + indent/2
	y1 = p.Y + p.H
	return x1, y1, n.X, n.Y + n.H/2
}

func summaryLines(s summaryInfo) []string {
	return []string{
		fmt.Sprintf("documents: %d  folders: %d  files: %d", s.Nodes, s.Folders, s.Files),
		fmt.Sprintf("depth: %d", s.MaxDepth),
	}
}

func renderPNG(path string, layout layoutResult) error {
	dc := gg.NewContext(layout.Width, layout.Height)
	dc.SetColor(colorBackdrop)
	dc.Clear()

	dc.SetColor(colorHeaderBG)
	dc.DrawRoundedRectangle(12, 12, float64(layout.Width)-24, headerHeight-16, 10)
	dc.Fill()

	dc.SetFontFace(basicfont.Face7x13)
	dc.SetColor(colorText)
	dc.DrawStringAnchored(layout.Summary.Title, 28, 40, 0, 0.5)
	dc.SetColor(colorSubtle)
	for i, line := range summaryLines(layout.Summary) {
		dc.DrawStringAnchored(line, 28, 60+float64(i)*18, 0, 0.5)
	}

	dc.SetColor(colorBranch)
	dc.SetLineWidth(1.5)
	for _, n := range layout.Nodes {
		if n.Parent < 0 {
			continue
		}
		x1, y1, x2, y2 := branch(layout, n)
		dc.DrawLine(x1, y1, x1, y2)
		dc.DrawLine(x1, y2, x2, y2)
		dc.Stroke()
	}

	for _, n := range layout.Nodes {
		if n.Type == tree.NodeTypeSeparator {
			dc.SetColor(colorBranch)
			dc.DrawLine(n.X, n.Y+n.H/2, n.X+n.W, n.Y+n.H/2)
			dc.Stroke()
			continue
		}
		dc.SetColor(fillColor(n))
		dc.DrawRoundedRectangle(n.X, n.Y, n.W, n.H, 6)
		dc.Fill()
		dc.SetColor(colorStroke)
		dc.SetLineWidth(1)
		dc.DrawRoundedRectangle(n.X, n.Y, n.W, n.H, 6)
		dc.Stroke()
		dc.SetColor(colorText)
		dc.DrawStringAnchored(truncate(n.Label, 30), n.X+10, n.Y+n.H/2, 0, 0.5)
	}

	return dc.SavePNG(path)
}

func renderSVG(w io.Writer, layout layoutResult) error {
	canvas := svg.New(w)
	canvas.Start(layout.Width, layout.Height)
	canvas.Rect(0, 0, layout.Width, layout.Height, fmt.Sprintf("fill:%s", css(colorBackdrop)))
	canvas.Roundrect(12, 12, layout.Width-24, int(headerHeight-16), 10, 10, fmt.Sprintf("fill:%s", css(colorHeaderBG)))

	canvas.Text(28, 40, layout.Summary.Title, fmt.Sprintf("fill:%s;font-size:16px;font-family:monospace;font-weight:bold", css(colorText)))
	for i, line := range summaryLines(layout.Summary) {
		canvas.Text(28, 60+i*18, line, fmt.Sprintf("fill:%s;font-size:13px;font-family:monospace", css(colorSubtle)))
	}

	for _, n := range layout.Nodes {
		if n.Parent < 0 {
			continue
		}
		x1, y1, x2, y2 := branch(layout, n)
		canvas.Polyline(
			[]int{int(x1), int(x1), int(x2)},
			[]int{int(y1), int(y2), int(y2)},
			fmt.Sprintf("fill:none;stroke:%s;stroke-width:1.5", css(colorBranch)),
		)
	}

	for _, n := range layout.Nodes {
		x, y := int(n.X), int(n.Y)
		if n.Type == tree.NodeTypeSeparator {
			canvas.Line(x, y+int(n.H/2), x+int(n.W), y+int(n.H/2),
				fmt.Sprintf("stroke:%s;stroke-width:1;stroke-dasharray:4,3", css(colorBranch)))
			continue
		}
		canvas.Roundrect(x, y, int(n.W), int(n.H), 6, 6,
			fmt.Sprintf("fill:%s;stroke:%s;stroke-width:1", css(fillColor(n)), css(colorStroke)))
		canvas.Text(x+10, y+int(n.H/2)+4, truncate(n.Label, 30),
			fmt.Sprintf("fill:%s;font-size:12px;font-family:monospace", css(colorText)))
	}

	canvas.End()
	return nil
}

// --- helpers ---------------------------------------------------------------

func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

func css(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
