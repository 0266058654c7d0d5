package treectx

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suitenumerique/ui-kit/pkg/dnd"
	"github.com/suitenumerique/ui-kit/pkg/model"
	"github.com/suitenumerique/ui-kit/pkg/testutil"
	"github.com/suitenumerique/ui-kit/pkg/tree"
)

type docNode = tree.TreeNode[model.Doc]

func leaf(id string) *tree.Node[model.Doc] {
	return &tree.Node[model.Doc]{ID: id, Data: testutil.Doc(id, false), HasLoadedChildren: true}
}

func dir(id string, children ...docNode) *tree.Node[model.Doc] {
	return &tree.Node[model.Doc]{ID: id, Data: testutil.Doc(id, true), HasLoadedChildren: true, ChildrenCount: len(children), Children: children}
}

func lazy(id string, count int) *tree.Node[model.Doc] {
	return &tree.Node[model.Doc]{ID: id, Data: testutil.Doc(id, true), ChildrenCount: count}
}

func newProvider(t *testing.T, opts ...Option[model.Doc]) *Provider[model.Doc] {
	t.Helper()
	opts = append([]Option[model.Doc]{WithLogger[model.Doc](zerolog.Nop())}, opts...)
	p := New[model.Doc]("root", opts...)
	root := dir("root", dir("a", leaf("a1"), leaf("a2")), lazy("b", 2), leaf("c"))
	require.NoError(t, p.Store().Replace(root))
	t.Cleanup(p.Close)
	return p
}

// next waits for the next event of the given kind.
func next(t *testing.T, ch <-chan Event, kind EventKind) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			require.True(t, ok, "subscription closed")
			if ev.Kind == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %s event", kind)
		}
	}
}

func TestMoveAppliesAndNotifies(t *testing.T) {
	var (
		mu    sync.Mutex
		moves []tree.MoveInstruction
		seen  *tree.Node[model.Doc]
	)
	p := newProvider(t, WithAfterMove(func(instr tree.MoveInstruction, root *tree.Node[model.Doc]) {
		mu.Lock()
		defer mu.Unlock()
		moves = append(moves, instr)
		seen = root
	}))
	events, cancel := p.Subscribe()
	defer cancel()

	instr, err := p.Move(tree.MoveEvent[model.Doc]{DragIDs: []string{"c"}, ParentID: "a", Index: 1})
	require.NoError(t, err)
	assert.Equal(t, tree.MoveInstruction{SourceNodeID: "c", TargetNodeID: "a1", Mode: tree.MoveRight, OldParentID: "root"}, *instr)

	testutil.AssertChildren(t, p.Store(), "a", "a1", "c", "a2")
	testutil.AssertChildren(t, p.Store(), "root", "a", "b")
	testutil.AssertStoreConsistent(t, p.Store())

	mu.Lock()
	require.Len(t, moves, 1)
	assert.Equal(t, *instr, moves[0])
	require.NotNil(t, seen)
	testutil.AssertSameShape(t, p.Store().Snapshot(), seen)
	mu.Unlock()

	assert.Equal(t, tree.ChangeReplace, next(t, events, EventChanged).Change.Kind)
	ev := next(t, events, EventMoved)
	assert.Equal(t, "c", ev.ID)
}

func TestMoveRejectsInvalidTargets(t *testing.T) {
	var called int32
	p := newProvider(t, WithAfterMove(func(tree.MoveInstruction, *tree.Node[model.Doc]) {
		atomic.AddInt32(&called, 1)
	}))
	require.NoError(t, p.Store().AddChild("", &tree.Separator[model.Doc]{ID: "sep"}))

	tests := []struct {
		name   string
		drag   string
		target string
	}{
		{"onto itself", "a", "a"},
		{"into descendant", "a", "a1"},
		{"onto separator", "c", "sep"},
		{"missing target", "c", "nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := p.Store().Snapshot()
			_, err := p.Move(tree.MoveEvent[model.Doc]{DragIDs: []string{tt.drag}, ParentID: tt.target})
			assert.ErrorIs(t, err, tree.ErrInvalidDropTarget)
			testutil.AssertSameShape(t, before, p.Store().Snapshot())
		})
	}
	assert.Zero(t, atomic.LoadInt32(&called))
}

func TestNestedProvidersAreIndependent(t *testing.T) {
	left := newProvider(t)
	right := newProvider(t)

	require.NoError(t, left.Store().DeleteNode("a"))
	require.NoError(t, left.Select("c"))

	assert.True(t, right.Store().Contains("a"))
	assert.Empty(t, right.Selected())
	assert.Equal(t, "c", left.Selected())
}

func TestLoadChildrenThroughProvider(t *testing.T) {
	p := newProvider(t, WithLoadChildren(func(_ context.Context, n *tree.Node[model.Doc]) ([]docNode, error) {
		return []docNode{leaf(n.ID + "1"), leaf(n.ID + "2")}, nil
	}))
	require.NoError(t, p.LoadChildren(context.Background(), "b"))
	testutil.AssertChildren(t, p.Store(), "b", "b1", "b2")
}

func TestPagedLoadsGoThroughPageLoader(t *testing.T) {
	var pages []int
	p := newProvider(t,
		WithPagedLoads[model.Doc](),
		WithLoadChildren(func(context.Context, *tree.Node[model.Doc]) ([]docNode, error) {
			return nil, errors.New("full loads are off")
		}),
		WithPageLoader(func(_ context.Context, n *tree.Node[model.Doc], page int) (tree.PaginatedChildren[model.Doc], error) {
			pages = append(pages, page)
			id := n.ID + string(rune('0'+page))
			return tree.PaginatedChildren[model.Doc]{
				Children:   []docNode{leaf(id)},
				Pagination: tree.Pagination{PageSize: 1, TotalCount: 2, HasMore: page < 2},
			}, nil
		}),
	)

	require.NoError(t, p.LoadChildren(context.Background(), "b"))
	testutil.AssertChildren(t, p.Store(), "b", "b1", tree.ViewMoreID("b"))

	require.NoError(t, p.LoadMore(context.Background(), "b"))
	testutil.AssertChildren(t, p.Store(), "b", "b1", "b2")
	assert.Equal(t, []int{1, 2}, pages)
}

func TestPrefetchLoadsOnlyWhatIsNeeded(t *testing.T) {
	var calls int32
	p := newProvider(t, WithConcurrency[model.Doc](2), WithLoadChildren(func(_ context.Context, n *tree.Node[model.Doc]) ([]docNode, error) {
		atomic.AddInt32(&calls, 1)
		return []docNode{leaf(n.ID + "1")}, nil
	}))
	require.NoError(t, p.Store().AddChild("", lazy("d", 1)))

	err := p.Prefetch(context.Background(), []string{"a", "b", "c", "d", "missing"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
	testutil.AssertChildren(t, p.Store(), "b", "b1")
	testutil.AssertChildren(t, p.Store(), "d", "d1")
}

func TestPrefetchJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	p := newProvider(t, WithLoadChildren(func(_ context.Context, n *tree.Node[model.Doc]) ([]docNode, error) {
		if n.ID == "b" {
			return nil, boom
		}
		return []docNode{leaf(n.ID + "1")}, nil
	}))
	require.NoError(t, p.Store().AddChild("", lazy("d", 1)))

	err := p.Prefetch(context.Background(), []string{"b", "d"})
	assert.ErrorIs(t, err, boom)
	testutil.AssertChildren(t, p.Store(), "d", "d1")
}

func TestRefreshLoaded(t *testing.T) {
	source := map[string][]string{
		"root": {"a", "b", "e"},
		"a":    {"a2"},
	}
	var mu sync.Mutex
	var reloaded []string
	p := newProvider(t, WithLoadChildren(func(_ context.Context, n *tree.Node[model.Doc]) ([]docNode, error) {
		mu.Lock()
		reloaded = append(reloaded, n.ID)
		mu.Unlock()
		var out []docNode
		for _, id := range source[n.ID] {
			if id == "a" || id == "b" {
				out = append(out, lazy(id, 0))
				continue
			}
			out = append(out, leaf(id))
		}
		return out, nil
	}))

	require.NoError(t, p.RefreshLoaded(context.Background()))
	testutil.AssertChildren(t, p.Store(), "root", "a", "b", "e")
	testutil.AssertChildren(t, p.Store(), "a", "a2")
	assert.ElementsMatch(t, []string{"root", "a"}, reloaded)
	testutil.AssertStoreConsistent(t, p.Store())
}

func TestSelectionAndPendingTarget(t *testing.T) {
	p := newProvider(t)
	events, cancel := p.Subscribe()
	defer cancel()

	assert.ErrorIs(t, p.Select("nope"), tree.ErrNotFound)
	require.NoError(t, p.Select("a1"))
	assert.Equal(t, "a1", next(t, events, EventSelected).ID)

	p.SetPendingTarget("b")
	assert.Equal(t, "b", p.PendingTarget())
	assert.Equal(t, "b", next(t, events, EventTarget).ID)

	// A deleted selection is forgotten.
	require.NoError(t, p.Store().DeleteNode("a"))
	assert.Empty(t, p.Selected())
}

func TestHoverExpandPublishesEvent(t *testing.T) {
	sched := &manualScheduler{}
	p := newProvider(t, WithScheduler[model.Doc](sched), WithHoverDelay[model.Doc](time.Second))
	events, cancel := p.Subscribe()
	defer cancel()

	require.NoError(t, p.Drag().Start(tree.DragNode{ID: "c"}))
	require.NoError(t, p.Drag().Over("b", false))
	assert.Equal(t, dnd.ExpandPending, p.Drag().State())
	sched.run()

	assert.Equal(t, "b", next(t, events, EventExpand).ID)
	assert.Equal(t, dnd.Expanded, p.Drag().State())
}

func TestCloseStopsEverything(t *testing.T) {
	sched := &manualScheduler{}
	p := newProvider(t, WithScheduler[model.Doc](sched))
	events, _ := p.Subscribe()

	require.NoError(t, p.Drag().Start(tree.DragNode{ID: "c"}))
	require.NoError(t, p.Drag().Over("b", false))
	p.Close()
	p.Close()
	sched.run()

	_, ok := <-events
	assert.False(t, ok, "subscription should be closed")
	assert.Equal(t, dnd.Cancelled, p.Drag().State())
	_, err := p.Move(tree.MoveEvent[model.Doc]{DragIDs: []string{"c"}, ParentID: "a"})
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, p.LoadChildren(context.Background(), "b"), ErrClosed)

	late, _ := p.Subscribe()
	_, ok = <-late
	assert.False(t, ok)
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	p := newProvider(t)
	ch, cancel := p.Subscribe()
	cancel()
	cancel()
	_, ok := <-ch
	assert.False(t, ok)
	require.NoError(t, p.Select("a"))
}

// manualScheduler runs queued callbacks when the test says so.
type manualScheduler struct {
	mu  sync.Mutex
	fns []*manualTimer
}

type manualTimer struct {
	fn      func()
	stopped atomic.Bool
}

func (t *manualTimer) Stop() bool { return !t.stopped.Swap(true) }

func (s *manualScheduler) AfterFunc(_ time.Duration, fn func()) dnd.Timer {
	t := &manualTimer{fn: fn}
	s.mu.Lock()
	s.fns = append(s.fns, t)
	s.mu.Unlock()
	return t
}

func (s *manualScheduler) run() {
	s.mu.Lock()
	fns := s.fns
	s.fns = nil
	s.mu.Unlock()
	for _, t := range fns {
		if !t.stopped.Load() {
			t.fn()
		}
	}
}
