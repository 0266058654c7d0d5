package tree

// WalkFunc is called for every node in pre-order. Returning false skips the
// node's children.
type WalkFunc[T any] func(n TreeNode[T], parentID string, depth int) bool

// Walk visits the descendants of root in display order. root itself is not
// visited.
func Walk[T any](root *Node[T], fn WalkFunc[T]) {
	if root == nil {
		return
	}
	walk(root, 0, fn)
}

func walk[T any](parent *Node[T], depth int, fn WalkFunc[T]) {
	for _, c := range parent.Children {
		if c == nil {
			continue
		}
		if !fn(c, parent.ID, depth) {
			continue
		}
		if node := AsNode(c); node != nil {
			walk(node, depth+1, fn)
		}
	}
}

// Count returns the number of nodes in the tree, root included.
func Count[T any](root *Node[T]) int {
	if root == nil {
		return 0
	}
	n := 1
	Walk(root, func(TreeNode[T], string, int) bool {
		n++
		return true
	})
	return n
}

// Find returns the node with the given id and the id of its parent. The
// parent of root is empty.
func Find[T any](root *Node[T], id string) (TreeNode[T], string, bool) {
	if root == nil {
		return nil, "", false
	}
	if root.ID == id {
		return root, "", true
	}
	var (
		found    TreeNode[T]
		parentID string
	)
	Walk(root, func(n TreeNode[T], pid string, _ int) bool {
		if found != nil {
			return false
		}
		if n.NodeID() == id {
			found, parentID = n, pid
			return false
		}
		return true
	})
	return found, parentID, found != nil
}

// ChildIDs returns the ids of node's children in order.
func ChildIDs[T any](node *Node[T]) []string {
	if node == nil {
		return nil
	}
	ids := make([]string, len(node.Children))
	for i, c := range node.Children {
		ids[i] = c.NodeID()
	}
	return ids
}
