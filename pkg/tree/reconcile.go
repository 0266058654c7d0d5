package tree

import (
	"fmt"

	"github.com/suitenumerique/ui-kit/pkg/metrics"
)

// MoveEvent is the drop event emitted by the drag-and-drop layer. ParentID is
// the container the rows were dropped into (empty for the root) and Index the
// insertion index among its children as displayed before the drop.
// ParentNode is informational and may be nil.
type MoveEvent[T any] struct {
	DragIDs    []string
	DragNodes  []DragNode
	ParentID   string
	ParentNode *Node[T]
	Index      int
}

// Reconcile applies ev to a deep copy of root and returns the resolved
// instruction with the new snapshot. root is never modified. Only the first
// dragged id is moved.
//
// Drop targets are not validated here; gate them with DisableDrop.
func Reconcile[T any](root *Node[T], ev MoveEvent[T]) (*MoveInstruction, *Node[T], error) {
	defer metrics.Timer(metrics.Reconcile)()

	if root == nil {
		return nil, nil, fmt.Errorf("reconcile: nil root")
	}
	if len(ev.DragIDs) == 0 {
		return nil, nil, fmt.Errorf("reconcile: no dragged node")
	}
	dragID := ev.DragIDs[0]
	if dragID == root.ID {
		return nil, nil, ErrRootImmutable
	}
	targetID := ev.ParentID
	if targetID == "" {
		targetID = root.ID
	}

	// The instruction reflects the tree the user dropped onto.
	found, _, ok := Find(root, targetID)
	if !ok {
		return nil, nil, notFound(targetID)
	}
	target := AsNode(found)
	if target == nil {
		return nil, nil, fmt.Errorf("%w: %q is not a data node", ErrInvalidDropTarget, targetID)
	}
	dragNodes := ev.DragNodes
	if len(dragNodes) == 0 {
		if _, pid, ok := Find(root, dragID); ok {
			dragNodes = []DragNode{{ID: dragID, ParentID: pid}}
		}
	}
	instr := ResolveMove(root.ID, dragID, dragNodes, targetID, ChildIDs(target), ev.Index)
	if instr == nil {
		return nil, nil, fmt.Errorf("reconcile: no anchor for index %d in %q", ev.Index, targetID)
	}

	next := root.deepCopy()
	moved, oldParent, oldIndex := spliceOut(next, dragID)
	if moved == nil {
		return nil, nil, notFound(dragID)
	}

	index := ev.Index
	if oldParent.ID == targetID && oldIndex < index {
		index--
	}

	dest := findNode(next, targetID)
	if dest == nil {
		// target was a data node before the splice, so it went out with the
		// moved subtree.
		return nil, nil, fmt.Errorf("%w: %q is inside %q", ErrInvalidDropTarget, targetID, dragID)
	}
	if dest.Children == nil {
		dest.Children = []TreeNode[T]{}
	}
	insertChild(dest, moved, index)
	if countsAsChild(moved) {
		if oldParent.ChildrenCount > 0 {
			oldParent.ChildrenCount--
		}
		dest.ChildrenCount++
	}
	return instr, next, nil
}

// spliceOut removes id from the tree rooted at root by depth-first search and
// returns it with its former parent and index.
func spliceOut[T any](root *Node[T], id string) (TreeNode[T], *Node[T], int) {
	for i, c := range root.Children {
		if c.NodeID() == id {
			root.Children = append(root.Children[:i], root.Children[i+1:]...)
			return c, root, i
		}
		if node := AsNode(c); node != nil {
			if n, p, idx := spliceOut(node, id); n != nil {
				return n, p, idx
			}
		}
	}
	return nil, nil, -1
}

func findNode[T any](root *Node[T], id string) *Node[T] {
	n, _, ok := Find(root, id)
	if !ok {
		return nil
	}
	return AsNode(n)
}
