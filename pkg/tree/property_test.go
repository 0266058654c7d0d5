package tree_test

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"pgregory.net/rapid"

	"github.com/suitenumerique/ui-kit/pkg/model"
	"github.com/suitenumerique/ui-kit/pkg/testutil"
	"github.com/suitenumerique/ui-kit/pkg/tree"
)

// Random sequences of store operations, including ones that must fail,
// never leave two nodes sharing an id.
func TestStoreIDsStayUnique(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := testutil.NewStore(testutil.RapidTree(t, 12))
		steps := rapid.IntRange(1, 25).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			snap := s.Snapshot()
			id, ok := testutil.RapidNodeID(t, snap, fmt.Sprintf("id%d", i))
			parent := testutil.RapidFolderID(t, snap, fmt.Sprintf("parent%d", i))
			op := rapid.SampledFrom([]string{"add", "add-existing", "move", "delete", "merge"}).Draw(t, fmt.Sprintf("op%d", i))
			switch op {
			case "add":
				_ = s.AddChild(parent, file(fmt.Sprintf("new%d", i)))
			case "add-existing":
				if ok {
					_ = s.AddChild(parent, file(id))
				}
			case "move":
				if ok {
					idx := rapid.IntRange(-1, 5).Draw(t, fmt.Sprintf("index%d", i))
					_ = s.MoveNode(id, parent, idx, "")
				}
			case "delete":
				if ok {
					_ = s.DeleteNode(id)
				}
			case "merge":
				if ok {
					_ = s.UpdateNode(parent, tree.NodePatch[model.Doc]{Children: []doc{file(id)}})
				}
			}
			if err := s.Check(); err != nil {
				t.Fatalf("after %s: %v", op, err)
			}
		}
		ids := testutil.IDs(s.Snapshot())
		seen := make(map[string]bool, len(ids))
		for _, id := range ids {
			if seen[id] {
				t.Fatalf("duplicate id %s", id)
			}
			seen[id] = true
		}
		if len(ids) != s.Len() {
			t.Fatalf("reachable %d, indexed %d", len(ids), s.Len())
		}
	})
}

// Any move accepted by the drop gate keeps the node count and places the
// moved node exactly once.
func TestReconcilePreservesCount(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		root := testutil.RapidTree(t, 15)
		dragID, ok := testutil.RapidNodeID(t, root, "drag")
		if !ok {
			return
		}
		targetID := testutil.RapidFolderID(t, root, "target")
		s := testutil.NewStore(root)
		target, _ := s.Get(targetID)
		if tree.DisableDrop[model.Doc](s, []string{dragID}, target) {
			return
		}
		index := rapid.IntRange(0, len(s.Children(targetID))).Draw(t, "index")
		parentID, _ := s.ParentID(dragID)

		ev := tree.MoveEvent[model.Doc]{
			DragIDs:   []string{dragID},
			DragNodes: []tree.DragNode{{ID: dragID, ParentID: parentID}},
			ParentID:  targetID,
			Index:     index,
		}
		instr, next, err := tree.Reconcile(root, ev)
		if err != nil {
			t.Fatalf("Reconcile: %v", err)
		}
		if instr.SourceNodeID != dragID || instr.OldParentID != parentID {
			t.Fatalf("instruction %v", instr)
		}
		if got, want := tree.Count(next), tree.Count(root); got != want {
			t.Fatalf("Count = %d, want %d", got, want)
		}
		if err := tree.Check(next); err != nil {
			t.Fatal(err)
		}
		if _, newParent, _ := tree.Find(next, dragID); newParent != targetID {
			t.Fatalf("moved under %q, want %q", newParent, targetID)
		}
	})
}

// Flattening, encoding, decoding and rebuilding through AddChild yields the
// same tree.
func TestFlatRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		root := testutil.RapidTree(t, 20)
		flat := tree.Flatten(root)

		var buf bytes.Buffer
		if err := tree.WriteJSON(&buf, flat); err != nil {
			t.Fatal(err)
		}
		decoded, err := tree.ReadJSON[model.Doc](&buf)
		if err != nil {
			t.Fatal(err)
		}
		rebuilt, err := tree.Unflatten(decoded)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(flat, tree.Flatten(rebuilt)); diff != "" {
			t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
		}
	})
}
