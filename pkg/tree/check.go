package tree

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// ErrMalformedTree is returned by Check.
var ErrMalformedTree = errors.New("malformed tree")

// Check validates the shape of the tree under root: every id appears once,
// every node except root has exactly one parent, and parent links are
// acyclic. Stores maintain this by construction; Check exists for snapshots
// that came from elsewhere, such as imports or tests.
func Check[T any](root *Node[T]) error {
	if root == nil {
		return fmt.Errorf("%w: nil root", ErrMalformedTree)
	}
	g, index, err := parentGraph(root)
	if err != nil {
		return err
	}
	rootGID := index[root.ID]
	names := make(map[int64]string, len(index))
	for id, gid := range index {
		names[gid] = id
	}
	for _, n := range graph.NodesOf(g.Nodes()) {
		in := g.To(n.ID()).Len()
		switch {
		case n.ID() == rootGID && in != 0:
			return fmt.Errorf("%w: root %q has a parent", ErrMalformedTree, root.ID)
		case n.ID() != rootGID && in != 1:
			return fmt.Errorf("%w: %q has %d parents", ErrMalformedTree, names[n.ID()], in)
		}
	}
	if _, err := topo.Sort(g); err != nil {
		return fmt.Errorf("%w: cycle: %v", ErrMalformedTree, err)
	}
	return nil
}

// parentGraph builds the parent->child graph of the tree and the map from
// node ids to graph ids. A repeated id reuses the first graph node and is
// not descended into again, so duplicates surface as extra parents and
// cycles as unsortable graphs.
func parentGraph[T any](root *Node[T]) (*simple.DirectedGraph, map[string]int64, error) {
	g := simple.NewDirectedGraph()
	index := map[string]int64{}

	add := func(id string) (int64, bool) {
		if n, ok := index[id]; ok {
			return n, false
		}
		n := g.NewNode()
		g.AddNode(n)
		index[id] = n.ID()
		return n.ID(), true
	}
	add(root.ID)

	var visit func(parent *Node[T]) error
	visit = func(parent *Node[T]) error {
		from := index[parent.ID]
		for _, c := range parent.Children {
			if c == nil {
				return fmt.Errorf("%w: nil child under %q", ErrMalformedTree, parent.ID)
			}
			to, fresh := add(c.NodeID())
			if to == from {
				return fmt.Errorf("%w: %q is its own child", ErrMalformedTree, parent.ID)
			}
			if g.HasEdgeFromTo(from, to) {
				return fmt.Errorf("%w: %w: %q twice under %q", ErrMalformedTree, ErrDuplicateID, c.NodeID(), parent.ID)
			}
			g.SetEdge(g.NewEdge(g.Node(from), g.Node(to)))
			if node := AsNode(c); node != nil && fresh {
				if err := visit(node); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := visit(root); err != nil {
		return nil, nil, err
	}
	return g, index, nil
}

// Check validates the canonical tree and that the store's parent index agrees
// with the child slices.
func (s *Store[T]) Check() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := Check(s.root); err != nil {
		return err
	}
	seen := 1
	var mismatch error
	Walk(s.root, func(n TreeNode[T], parentID string, _ int) bool {
		seen++
		if mismatch != nil {
			return false
		}
		if got, ok := s.parents[n.NodeID()]; !ok || got != parentID {
			mismatch = fmt.Errorf("%w: %q indexed under %q, found under %q", ErrMalformedTree, n.NodeID(), got, parentID)
		} else if s.nodes[n.NodeID()] != n {
			mismatch = fmt.Errorf("%w: %q index points at a stale node", ErrMalformedTree, n.NodeID())
		}
		return true
	})
	if mismatch != nil {
		return mismatch
	}
	if seen != len(s.nodes) {
		return fmt.Errorf("%w: %d nodes indexed, %d reachable", ErrMalformedTree, len(s.nodes), seen)
	}
	return nil
}
