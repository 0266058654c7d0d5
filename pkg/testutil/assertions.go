package testutil

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/suitenumerique/ui-kit/pkg/model"
	"github.com/suitenumerique/ui-kit/pkg/tree"
)

func nopLogger() zerolog.Logger { return zerolog.Nop() }

// Shape is the id/parent/position skeleton of a tree.
type Shape struct {
	ID       string
	ParentID string
	Position int
}

// ShapeOf lists the skeleton of root in pre-order.
func ShapeOf[T any](root *tree.Node[T]) []Shape {
	flat := tree.Flatten(root)
	out := make([]Shape, len(flat))
	for i, f := range flat {
		out[i] = Shape{ID: f.ID, ParentID: f.ParentID, Position: f.Position}
	}
	return out
}

// AssertWellFormed fails the test when root breaks a structural invariant.
func AssertWellFormed[T any](t testing.TB, root *tree.Node[T]) {
	t.Helper()
	if err := tree.Check(root); err != nil {
		t.Fatalf("malformed tree: %v", err)
	}
}

// AssertStoreConsistent checks the tree and the store's parent index.
func AssertStoreConsistent[T any](t testing.TB, s *tree.Store[T]) {
	t.Helper()
	if err := s.Check(); err != nil {
		t.Fatalf("inconsistent store: %v", err)
	}
}

// AssertSameShape fails when a and b differ in ids, parents, or order.
func AssertSameShape[T any](t testing.TB, want, got *tree.Node[T]) {
	t.Helper()
	if diff := cmp.Diff(ShapeOf(want), ShapeOf(got)); diff != "" {
		t.Errorf("tree shape mismatch (-want +got):\n%s", diff)
	}
}

// AssertChildren fails unless parentID's children are exactly want, in order.
func AssertChildren[T any](t testing.TB, s *tree.Store[T], parentID string, want ...string) {
	t.Helper()
	got := s.Children(parentID)
	if len(want) == 0 && len(got) == 0 {
		return
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("children of %s mismatch (-want +got):\n%s", parentID, diff)
	}
}

// AssertChildrenCount fails unless the node's ChildrenCount hint is want.
func AssertChildrenCount[T any](t testing.TB, s *tree.Store[T], id string, want int) {
	t.Helper()
	n, ok := s.Get(id)
	if !ok {
		t.Fatalf("node %s not found", id)
	}
	node := tree.AsNode(n)
	if node == nil {
		t.Fatalf("node %s is a %s", id, n.Type())
	}
	if node.ChildrenCount != want {
		t.Errorf("ChildrenCount(%s) = %d, want %d", id, node.ChildrenCount, want)
	}
}

// IDs returns every id of the tree in pre-order, root first.
func IDs[T any](root *tree.Node[T]) []string {
	ids := []string{root.ID}
	tree.Walk(root, func(n tree.TreeNode[T], _ string, _ int) bool {
		ids = append(ids, n.NodeID())
		return true
	})
	return ids
}

// Doc is shorthand for a folder or file payload.
func Doc(title string, folder bool) model.Doc {
	kind := model.KindFile
	if folder {
		kind = model.KindFolder
	}
	return model.Doc{Title: title, Kind: kind}
}
