package tree

// DescendantChecker is the part of Store that DisableDrop needs.
type DescendantChecker interface {
	IsDescendant(id, ancestorID string) bool
}

// DisableDrop reports whether target must refuse a drop of dragIDs. Only
// data nodes that allow drops qualify, and never the dragged nodes
// themselves or anything beneath them.
func DisableDrop[T any](tree DescendantChecker, dragIDs []string, target TreeNode[T]) bool {
	node := AsNode(target)
	if node == nil || !node.droppable() {
		return true
	}
	for _, id := range dragIDs {
		if id == node.ID || tree.IsDescendant(node.ID, id) {
			return true
		}
	}
	return false
}
