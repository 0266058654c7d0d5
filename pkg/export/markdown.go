package export

import (
	"fmt"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/suitenumerique/ui-kit/pkg/model"
	"github.com/suitenumerique/ui-kit/pkg/tree"
)

// sanitizeMermaidID ensures an ID is valid for Mermaid diagrams.
// Mermaid node IDs must be alphanumeric with hyphens/underscores.
func sanitizeMermaidID(id string) string {
	var sb strings.Builder
	for _, r := range id {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			sb.WriteRune(r)
		}
	}
	if sb.Len() == 0 {
		return "node"
	}
	return sb.String()
}

// sanitizeMermaidText prepares text for use in Mermaid node labels.
func sanitizeMermaidText(text string) string {
	replacer := strings.NewReplacer(
		"\"", "'",
		"[", "(",
		"]", ")",
		"{", "(",
		"}", ")",
		"<", "&lt;",
		">", "&gt;",
		"|", "/",
		"`", "'",
		"\n", " ",
		"\r", "",
	)
	result := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, replacer.Replace(text))
	result = strings.TrimSpace(result)

	runes := []rune(result)
	if len(runes) > 40 {
		result = string(runes[:37]) + "..."
	}
	return result
}

func kindEmoji(d model.Doc) string {
	if d.IsFolder() {
		return "📁"
	}
	return "📄"
}

// GenerateMarkdown renders the loaded tree under root as a nested list.
// Separators become horizontal rules and title rows become bold labels.
func GenerateMarkdown(root *tree.Node[model.Doc], title string, generated time.Time) (string, error) {
	if root == nil {
		return "", fmt.Errorf("no tree to export")
	}
	if title == "" {
		title = root.Data.Title
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", title)
	if !generated.IsZero() {
		fmt.Fprintf(&sb, "*Generated: %s*\n\n", generated.Format(time.RFC1123))
	}

	var folders, files int
	tree.Walk(root, func(n tree.TreeNode[model.Doc], _ string, depth int) bool {
		indent := strings.Repeat("  ", depth)
		switch v := n.(type) {
		case *tree.Node[model.Doc]:
			if v.Data.IsFolder() {
				folders++
			} else {
				files++
			}
			fmt.Fprintf(&sb, "%s- %s %s", indent, kindEmoji(v.Data), v.Data.Title)
			if v.Data.IsFolder() && !v.HasLoadedChildren && v.ChildrenCount > 0 {
				fmt.Fprintf(&sb, " _(%d not loaded)_", v.ChildrenCount)
			}
			sb.WriteString("\n")
		case *tree.Title[model.Doc]:
			fmt.Fprintf(&sb, "%s- **%s**\n", indent, v.HeaderTitle)
		case *tree.Separator[model.Doc]:
			fmt.Fprintf(&sb, "%s- ---\n", indent)
		case *tree.ViewMore[model.Doc]:
			fmt.Fprintf(&sb, "%s- …\n", indent)
		}
		return true
	})
	fmt.Fprintf(&sb, "\n%d folders, %d files\n", folders, files)
	return sb.String(), nil
}

// GenerateMermaid renders the folder structure under root as a top-down
// Mermaid flowchart. Only document nodes are drawn.
func GenerateMermaid(root *tree.Node[model.Doc]) (string, error) {
	if root == nil {
		return "", fmt.Errorf("no tree to export")
	}
	ids := map[string]string{}
	used := map[string]int{}
	mermaidID := func(id string) string {
		if m, ok := ids[id]; ok {
			return m
		}
		base := sanitizeMermaidID(id)
		m := base
		if n := used[base]; n > 0 {
			m = fmt.Sprintf("%s_%d", base, n)
		}
		used[base]++
		ids[id] = m
		return m
	}

	var sb strings.Builder
	sb.WriteString("graph TD\n")
	node := func(n *tree.Node[model.Doc]) {
		label := sanitizeMermaidText(n.Data.Title)
		if n.Data.IsFolder() {
			fmt.Fprintf(&sb, "    %s[\"%s\"]\n", mermaidID(n.ID), label)
		} else {
			fmt.Fprintf(&sb, "    %s(\"%s\")\n", mermaidID(n.ID), label)
		}
	}
	node(root)
	tree.Walk(root, func(n tree.TreeNode[model.Doc], parentID string, _ int) bool {
		doc := tree.AsNode(n)
		if doc == nil {
			return true
		}
		node(doc)
		fmt.Fprintf(&sb, "    %s --> %s\n", mermaidID(parentID), mermaidID(doc.ID))
		return true
	})
	return sb.String(), nil
}

// SaveText writes generated text output to filename.
func SaveText(text, filename string) error {
	return os.WriteFile(filename, []byte(text), 0o644)
}
