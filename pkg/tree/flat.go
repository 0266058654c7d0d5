package tree

import (
	"fmt"
	"io"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// FlatNode is one row of the flat form of a tree. The first row of a flat
// list is the root and has no ParentID; every other row follows its parent.
type FlatNode[T any] struct {
	ID                string      `json:"id"`
	ParentID          string      `json:"parent_id,omitempty"`
	Type              NodeType    `json:"type"`
	Position          int         `json:"position"`
	Data              *T          `json:"data,omitempty"`
	HeaderTitle       string      `json:"header_title,omitempty"`
	ChildrenCount     int         `json:"children_count,omitempty"`
	HasLoadedChildren bool        `json:"has_loaded_children,omitempty"`
	CanDrop           *bool       `json:"can_drop,omitempty"`
	Pagination        *Pagination `json:"pagination,omitempty"`
}

// Flatten lists root and its descendants in pre-order.
func Flatten[T any](root *Node[T]) []FlatNode[T] {
	if root == nil {
		return nil
	}
	out := []FlatNode[T]{flatOf[T](root, "", 0)}
	var visit func(parent *Node[T])
	visit = func(parent *Node[T]) {
		for i, c := range parent.Children {
			out = append(out, flatOf(c, parent.ID, i))
			if node := AsNode(c); node != nil {
				visit(node)
			}
		}
	}
	visit(root)
	return out
}

func flatOf[T any](n TreeNode[T], parentID string, pos int) FlatNode[T] {
	f := FlatNode[T]{ID: n.NodeID(), ParentID: parentID, Type: n.Type(), Position: pos}
	switch v := n.(type) {
	case *Node[T]:
		data := v.Data
		f.Data = &data
		f.ChildrenCount = v.ChildrenCount
		f.HasLoadedChildren = v.HasLoadedChildren
		if v.CanDrop != nil {
			f.CanDrop = Bool(*v.CanDrop)
		}
		if v.Pagination != nil {
			p := *v.Pagination
			f.Pagination = &p
		}
	case *Title[T]:
		f.HeaderTitle = v.HeaderTitle
	}
	return f
}

// Unflatten rebuilds a tree from its flat form by adding each row to a fresh
// Store in order, then restoring the per-node hints that AddChild
// maintains on its own.
func Unflatten[T any](flat []FlatNode[T]) (*Node[T], error) {
	if len(flat) == 0 {
		return nil, fmt.Errorf("unflatten: empty list")
	}
	head := flat[0]
	if head.ParentID != "" || head.Type != NodeTypeNode {
		return nil, fmt.Errorf("unflatten: first row %q is not a root node", head.ID)
	}
	s := NewStore[T](head.ID, WithLogger[T](zerolog.Nop()))
	for _, f := range flat[1:] {
		if f.ParentID == "" {
			return nil, fmt.Errorf("unflatten: %q has no parent", f.ID)
		}
		n, err := f.TreeNode()
		if err != nil {
			return nil, err
		}
		if err := s.AddChild(f.ParentID, n); err != nil {
			return nil, fmt.Errorf("unflatten: %w", err)
		}
	}
	for _, f := range flat {
		if f.Type != NodeTypeNode {
			continue
		}
		patch := NodePatch[T]{
			ChildrenCount:     &f.ChildrenCount,
			HasLoadedChildren: &f.HasLoadedChildren,
			Pagination:        f.Pagination,
			Data:              f.Data,
			CanDrop:           f.CanDrop,
		}
		if err := s.UpdateNode(f.ID, patch); err != nil {
			return nil, fmt.Errorf("unflatten: %w", err)
		}
	}
	return s.Snapshot(), nil
}

// TreeNode returns the childless variant described by the row.
func (f FlatNode[T]) TreeNode() (TreeNode[T], error) {
	switch f.Type {
	case NodeTypeNode:
		n := &Node[T]{ID: f.ID}
		if f.Data != nil {
			n.Data = *f.Data
		}
		return n, nil
	case NodeTypeSeparator:
		return &Separator[T]{ID: f.ID}, nil
	case NodeTypeTitle:
		return &Title[T]{ID: f.ID, HeaderTitle: f.HeaderTitle}, nil
	case NodeTypeViewMore:
		return &ViewMore[T]{ID: f.ID, ParentID: f.ParentID}, nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownVariant, f.Type)
	}
}

// WriteJSON encodes flat as indented JSON.
func WriteJSON[T any](w io.Writer, flat []FlatNode[T]) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(flat); err != nil {
		return fmt.Errorf("encoding flat tree: %w", err)
	}
	return nil
}

// ReadJSON decodes a flat list written by WriteJSON.
func ReadJSON[T any](r io.Reader) ([]FlatNode[T], error) {
	var flat []FlatNode[T]
	if err := json.NewDecoder(r).Decode(&flat); err != nil {
		return nil, fmt.Errorf("decoding flat tree: %w", err)
	}
	return flat, nil
}
