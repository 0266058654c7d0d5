package ui_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/suitenumerique/ui-kit/pkg/dnd"
	"github.com/suitenumerique/ui-kit/pkg/model"
	"github.com/suitenumerique/ui-kit/pkg/testutil"
	"github.com/suitenumerique/ui-kit/pkg/tree"
	"github.com/suitenumerique/ui-kit/pkg/treectx"
	"github.com/suitenumerique/ui-kit/pkg/ui"
)

type docNode = tree.TreeNode[model.Doc]

func file(id string) *tree.Node[model.Doc] {
	return &tree.Node[model.Doc]{ID: id, Data: testutil.Doc(id, false), HasLoadedChildren: true, CanDrop: tree.Bool(false)}
}

func folder(id string, children ...docNode) *tree.Node[model.Doc] {
	return &tree.Node[model.Doc]{ID: id, Data: testutil.Doc(id, true), HasLoadedChildren: true, ChildrenCount: len(children), Children: children}
}

func lazyFolder(id string, count int) *tree.Node[model.Doc] {
	return &tree.Node[model.Doc]{ID: id, Data: testutil.Doc(id, true), ChildrenCount: count}
}

// sampleTree:
//
//	root
//	  a (folder)
//	    a1
//	    a2
//	  b (folder, 2 unloaded children)
//	  sep
//	  recent (section title)
//	  c
func sampleTree() *tree.Node[model.Doc] {
	return folder("root",
		folder("a", file("a1"), file("a2")),
		lazyFolder("b", 2),
		&tree.Separator[model.Doc]{ID: "sep"},
		&tree.Title[model.Doc]{ID: "recent", HeaderTitle: "Recent"},
		file("c"),
	)
}

// idleScheduler never fires, so hover expands stay pending.
type idleScheduler struct{}

type idleTimer struct{}

func (idleTimer) Stop() bool { return true }

func (idleScheduler) AfterFunc(time.Duration, func()) dnd.Timer { return idleTimer{} }

func newProvider(t *testing.T, root *tree.Node[model.Doc], opts ...treectx.Option[model.Doc]) *treectx.Provider[model.Doc] {
	t.Helper()
	opts = append([]treectx.Option[model.Doc]{
		treectx.WithLogger[model.Doc](zerolog.Nop()),
		treectx.WithScheduler[model.Doc](idleScheduler{}),
	}, opts...)
	p := treectx.New[model.Doc](root.ID, opts...)
	if err := p.Store().Replace(root); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	t.Cleanup(p.Close)
	return p
}

func rowIDs(rows []ui.Row) []string {
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	return ids
}

type treectxProvider = treectx.Provider[model.Doc]

func treectxLoader(fn func(id string) []docNode) treectx.Option[model.Doc] {
	return treectx.WithLoadChildren[model.Doc](func(_ context.Context, n *tree.Node[model.Doc]) ([]docNode, error) {
		return fn(n.ID), nil
	})
}
