package testutil

import (
	"fmt"

	"pgregory.net/rapid"

	"github.com/suitenumerique/ui-kit/pkg/model"
	"github.com/suitenumerique/ui-kit/pkg/tree"
)

// RapidTree draws a loaded doc tree of up to maxNodes nodes below the root.
// Ids are unique; separators and titles appear only under the root.
func RapidTree(t *rapid.T, maxNodes int) *tree.Node[model.Doc] {
	size := rapid.IntRange(0, maxNodes).Draw(t, "size")
	root := NewDefault().Root()
	folders := []*tree.Node[model.Doc]{root}
	for i := 0; i < size; i++ {
		parent := folders[rapid.IntRange(0, len(folders)-1).Draw(t, fmt.Sprintf("parent%d", i))]
		id := fmt.Sprintf("n%d", i)
		kind := rapid.SampledFrom([]string{"folder", "file", "separator", "title"}).Draw(t, fmt.Sprintf("kind%d", i))
		if parent != root && (kind == "separator" || kind == "title") {
			kind = "file"
		}
		switch kind {
		case "folder":
			f := &tree.Node[model.Doc]{ID: id, Data: Doc(id, true), HasLoadedChildren: true}
			attach[model.Doc](parent, f)
			folders = append(folders, f)
		case "file":
			attach[model.Doc](parent, &tree.Node[model.Doc]{ID: id, Data: Doc(id, false), HasLoadedChildren: true})
		case "separator":
			attach[model.Doc](parent, &tree.Separator[model.Doc]{ID: id})
		case "title":
			attach[model.Doc](parent, &tree.Title[model.Doc]{ID: id, HeaderTitle: id})
		}
	}
	return root
}

// RapidNodeID draws the id of a data node of root other than root itself, or
// returns false when there is none.
func RapidNodeID(t *rapid.T, root *tree.Node[model.Doc], label string) (string, bool) {
	var ids []string
	tree.Walk(root, func(n tree.TreeNode[model.Doc], _ string, _ int) bool {
		if n.Type() == tree.NodeTypeNode {
			ids = append(ids, n.NodeID())
		}
		return true
	})
	if len(ids) == 0 {
		return "", false
	}
	return rapid.SampledFrom(ids).Draw(t, label), true
}

// RapidFolderID draws the id of root or one of its folders.
func RapidFolderID(t *rapid.T, root *tree.Node[model.Doc], label string) string {
	ids := []string{root.ID}
	tree.Walk(root, func(n tree.TreeNode[model.Doc], _ string, _ int) bool {
		if node := tree.AsNode(n); node != nil && node.Data.IsFolder() {
			ids = append(ids, node.ID)
		}
		return true
	})
	return rapid.SampledFrom(ids).Draw(t, label)
}
