// Package tree is the state engine behind the tree view: an id-indexed,
// order-sensitive tree with lazy-loaded and paginated subtrees, a move
// resolver that turns drop gestures into semantic move instructions, and a
// reconciler that applies those instructions to a snapshot.
//
// Nodes are a closed set of variants (Node, Separator, Title, ViewMore).
// Code that branches on a TreeNode either implements Visitor, which the
// compiler checks for completeness, or ends its type switch with a default
// that reports ErrUnknownVariant.
package tree

import (
	"context"
	"fmt"
)

// NodeType is the discriminator of a TreeNode variant.
type NodeType int

const (
	NodeTypeNode NodeType = iota
	NodeTypeSeparator
	NodeTypeTitle
	NodeTypeViewMore
)

// String returns the wire name of the variant.
func (t NodeType) String() string {
	switch t {
	case NodeTypeNode:
		return "node"
	case NodeTypeSeparator:
		return "separator"
	case NodeTypeTitle:
		return "title"
	case NodeTypeViewMore:
		return "view-more"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// ParseNodeType is the inverse of NodeType.String.
func ParseNodeType(s string) (NodeType, error) {
	switch s {
	case "node":
		return NodeTypeNode, nil
	case "separator":
		return NodeTypeSeparator, nil
	case "title":
		return NodeTypeTitle, nil
	case "view-more":
		return NodeTypeViewMore, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownVariant, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t NodeType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *NodeType) UnmarshalText(b []byte) error {
	v, err := ParseNodeType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// TreeNode is implemented only by the four variants in this package.
type TreeNode[T any] interface {
	NodeID() string
	Type() NodeType
	Accept(v Visitor[T])
	clone() TreeNode[T]
	sealed()
}

// Visitor has one method per variant. Implementing it is the compile-time
// exhaustive way to branch on a TreeNode.
type Visitor[T any] interface {
	VisitNode(n *Node[T])
	VisitSeparator(s *Separator[T])
	VisitTitle(t *Title[T])
	VisitViewMore(v *ViewMore[T])
}

// Pagination describes how much of a node's child list has been fetched.
type Pagination struct {
	Page       int  `json:"page" yaml:"page"`
	PageSize   int  `json:"page_size" yaml:"page_size"`
	TotalCount int  `json:"total_count" yaml:"total_count"`
	HasMore    bool `json:"has_more" yaml:"has_more"`
}

// PaginatedChildren is one page of children as returned by a PageLoaderFunc.
type PaginatedChildren[T any] struct {
	Children   []TreeNode[T]
	Pagination Pagination
}

// Node is the only variant that carries data, has children, and can be
// dragged or dropped onto.
type Node[T any] struct {
	ID   string
	Data T

	// ChildrenCount is a hint of the total number of children; it can be
	// larger than len(Children) until every page is loaded.
	ChildrenCount int
	// HasLoadedChildren separates "no children" from "not fetched yet".
	HasLoadedChildren bool
	Children          []TreeNode[T]

	// CanDrop, when non-nil and false, refuses drops onto this node.
	CanDrop    *bool
	Pagination *Pagination
}

func (n *Node[T]) NodeID() string      { return n.ID }
func (n *Node[T]) Type() NodeType      { return NodeTypeNode }
func (n *Node[T]) Accept(v Visitor[T]) { v.VisitNode(n) }
func (n *Node[T]) sealed()             {}
func (n *Node[T]) clone() TreeNode[T]  { return n.deepCopy() }
func (n *Node[T]) droppable() bool     { return n.CanDrop == nil || *n.CanDrop }
func (n *Node[T]) expandable() bool    { return n.ChildrenCount > 0 || len(n.Children) > 0 }
func (n *Node[T]) needsChildren() bool { return !n.HasLoadedChildren && n.ChildrenCount > 0 }

func (n *Node[T]) childIndex(id string) int {
	for i, c := range n.Children {
		if c.NodeID() == id {
			return i
		}
	}
	return -1
}

// Expandable reports whether the node has, or claims to have, children.
func (n *Node[T]) Expandable() bool { return n.expandable() }

// NeedsChildren reports whether expanding the node should trigger a load.
func (n *Node[T]) NeedsChildren() bool { return n.needsChildren() }

// Droppable reports whether the node accepts drops.
func (n *Node[T]) Droppable() bool { return n.droppable() }

func (n *Node[T]) deepCopy() *Node[T] {
	cp := *n
	if n.CanDrop != nil {
		v := *n.CanDrop
		cp.CanDrop = &v
	}
	if n.Pagination != nil {
		p := *n.Pagination
		cp.Pagination = &p
	}
	if n.Children != nil {
		cp.Children = make([]TreeNode[T], len(n.Children))
		for i, c := range n.Children {
			cp.Children[i] = c.clone()
		}
	}
	return &cp
}

// Separator is a visual divider between rows.
type Separator[T any] struct {
	ID string
}

func (s *Separator[T]) NodeID() string      { return s.ID }
func (s *Separator[T]) Type() NodeType      { return NodeTypeSeparator }
func (s *Separator[T]) Accept(v Visitor[T]) { v.VisitSeparator(s) }
func (s *Separator[T]) sealed()             {}
func (s *Separator[T]) clone() TreeNode[T]  { cp := *s; return &cp }

// Title is a non-interactive section header.
type Title[T any] struct {
	ID          string
	HeaderTitle string
}

func (t *Title[T]) NodeID() string      { return t.ID }
func (t *Title[T]) Type() NodeType      { return NodeTypeTitle }
func (t *Title[T]) Accept(v Visitor[T]) { v.VisitTitle(t) }
func (t *Title[T]) sealed()             {}
func (t *Title[T]) clone() TreeNode[T]  { cp := *t; return &cp }

// ViewMore is the trailing row of a partially loaded child list.
// When OnLoadMore is nil the owner falls back to Store.LoadMore(ParentID).
type ViewMore[T any] struct {
	ID         string
	ParentID   string
	OnLoadMore func(ctx context.Context) error
}

func (v *ViewMore[T]) NodeID() string        { return v.ID }
func (v *ViewMore[T]) Type() NodeType        { return NodeTypeViewMore }
func (v *ViewMore[T]) Accept(vis Visitor[T]) { vis.VisitViewMore(v) }
func (v *ViewMore[T]) sealed()               {}
func (v *ViewMore[T]) clone() TreeNode[T]    { cp := *v; return &cp }

// ViewMoreID is the id given to the trailing ViewMore row of parentID.
func ViewMoreID(parentID string) string {
	return parentID + "::view-more"
}

// AsNode returns the Node variant, or nil for any other variant.
func AsNode[T any](n TreeNode[T]) *Node[T] {
	if node, ok := n.(*Node[T]); ok {
		return node
	}
	return nil
}

// Clone returns a deep copy of any variant.
func Clone[T any](n TreeNode[T]) TreeNode[T] {
	if n == nil {
		return nil
	}
	return n.clone()
}

// Bool returns a pointer to b, for optional fields such as CanDrop.
func Bool(b bool) *bool { return &b }
