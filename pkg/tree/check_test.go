package tree

import (
	"errors"
	"testing"
)

func n(id string, children ...TreeNode[string]) *Node[string] {
	return &Node[string]{ID: id, Children: children, HasLoadedChildren: true}
}

func TestCheck(t *testing.T) {
	shared := n("s")
	loop := n("loop")
	loop.Children = []TreeNode[string]{n("inner", loop)}
	self := n("self")
	self.Children = []TreeNode[string]{self}
	cyclicRoot := n("root")
	cyclicRoot.Children = []TreeNode[string]{n("a", cyclicRoot)}

	tests := []struct {
		name    string
		root    *Node[string]
		wantErr bool
	}{
		{"empty", n("root"), false},
		{"nested", n("root", n("a", n("a1")), &Separator[string]{ID: "s"}, n("b")), false},
		{"same id twice", n("root", n("a"), n("b", n("a"))), true},
		{"shared pointer", n("root", shared, n("b", shared)), true},
		{"duplicate sibling", n("root", n("a"), n("a")), true},
		{"cycle", n("root", loop), true},
		{"own child", n("root", self), true},
		{"root below itself", cyclicRoot, true},
		{"nil child", n("root", nil), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(tt.root)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Check() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrMalformedTree) {
				t.Errorf("error %v does not wrap ErrMalformedTree", err)
			}
		})
	}
}

func TestStoreCheckDetectsBypassedMutation(t *testing.T) {
	s := NewStore[string]("root")
	if err := s.Replace(n("root", n("a", n("a1")), n("b"))); err != nil {
		t.Fatal(err)
	}
	if err := s.Check(); err != nil {
		t.Fatalf("fresh store: %v", err)
	}
	// Mutating a node behind the store's back breaks the parent index.
	a := AsNode(s.nodes["a"])
	b := AsNode(s.nodes["b"])
	b.Children = append(b.Children, a.Children[0])
	a.Children = nil
	if err := s.Check(); !errors.Is(err, ErrMalformedTree) {
		t.Errorf("Check() = %v, want ErrMalformedTree", err)
	}
}

func TestVisitorIsExhaustive(t *testing.T) {
	var c kindCounter
	root := n("root", n("a"), &Separator[string]{ID: "s"}, &Title[string]{ID: "t"}, &ViewMore[string]{ID: "v"})
	for _, child := range root.Children {
		child.Accept(&c)
	}
	if c != (kindCounter{1, 1, 1, 1}) {
		t.Errorf("counts = %+v", c)
	}
}

type kindCounter struct{ nodes, seps, titles, more int }

func (k *kindCounter) VisitNode(*Node[string])           { k.nodes++ }
func (k *kindCounter) VisitSeparator(*Separator[string]) { k.seps++ }
func (k *kindCounter) VisitTitle(*Title[string])         { k.titles++ }
func (k *kindCounter) VisitViewMore(*ViewMore[string])   { k.more++ }
