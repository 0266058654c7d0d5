package datasource

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suitenumerique/ui-kit/pkg/model"
	"github.com/suitenumerique/ui-kit/pkg/tree"
)

func openSeeded(t *testing.T, opts ...SourceOption) *SQLiteSource {
	t.Helper()
	opts = append([]SourceOption{WithLogger(zerolog.Nop())}, opts...)
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "tree.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	f, err := LoadFixture("testdata/workspace.yaml")
	require.NoError(t, err)
	require.NoError(t, s.Seed(context.Background(), f))
	return s
}

func ids(nodes []tree.TreeNode[model.Doc]) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.NodeID()
	}
	return out
}

func TestRootAndChildren(t *testing.T) {
	s := openSeeded(t)
	ctx := context.Background()

	root, err := s.Root(ctx)
	require.NoError(t, err)
	assert.Equal(t, "workspace", root.ID)
	assert.Equal(t, 4, root.ChildrenCount)
	assert.True(t, root.NeedsChildren())

	children, err := s.LoadChildren(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, []string{"specs", "notes", "archive", "readme"}, ids(children))

	specs := tree.AsNode(children[0])
	require.NotNil(t, specs)
	assert.Equal(t, "Specs", specs.Data.Title)
	assert.Equal(t, model.KindFolder, specs.Data.Kind)
	assert.Equal(t, 3, specs.ChildrenCount)
	assert.False(t, specs.HasLoadedChildren)
	assert.True(t, specs.Droppable())

	notes := tree.AsNode(children[1])
	assert.Zero(t, notes.ChildrenCount)
	assert.False(t, notes.Expandable())

	readme := tree.AsNode(children[3])
	assert.True(t, readme.HasLoadedChildren, "files have nothing to load")
	assert.False(t, readme.Droppable(), "files refuse drops")
	assert.False(t, readme.Data.UpdatedAt.IsZero())
}

func TestEmptyDatabaseHasNoRoot(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "empty.db"), WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	defer s.Close()
	_, err = s.Root(context.Background())
	assert.ErrorIs(t, err, ErrNoRoot)
}

func TestLoadPage(t *testing.T) {
	s := openSeeded(t, WithPageSize(2))
	ctx := context.Background()
	specs := &tree.Node[model.Doc]{ID: "specs"}

	first, err := s.LoadPage(ctx, specs, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"intro", "api"}, ids(first.Children))
	assert.Equal(t, tree.Pagination{Page: 1, PageSize: 2, TotalCount: 3, HasMore: true}, first.Pagination)

	second, err := s.LoadPage(ctx, specs, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"faq"}, ids(second.Children))
	assert.False(t, second.Pagination.HasMore)
}

func TestLoadPageConcurrentCallersGetOwnNodes(t *testing.T) {
	s := openSeeded(t, WithPageSize(2))
	ctx := context.Background()
	specs := &tree.Node[model.Doc]{ID: "specs"}

	const callers = 8
	results := make([]tree.PaginatedChildren[model.Doc], callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.LoadPage(ctx, specs, 1)
			assert.NoError(t, err)
			results[i] = res
		}()
	}
	wg.Wait()

	for i := 1; i < callers; i++ {
		require.Len(t, results[i].Children, 2)
		assert.Equal(t, ids(results[0].Children), ids(results[i].Children))
	}
	// Mutating one caller's node leaves the others alone.
	tree.AsNode(results[0].Children[0]).Data.Title = "changed"
	for i := 1; i < callers; i++ {
		assert.Equal(t, "Introduction", tree.AsNode(results[i].Children[0]).Data.Title)
	}
}

func TestRefresh(t *testing.T) {
	s := openSeeded(t)
	ctx := context.Background()

	patch, err := s.Refresh(ctx, "archive")
	require.NoError(t, err)
	require.NotNil(t, patch.Data)
	assert.Equal(t, "Archive", patch.Data.Title)
	require.NotNil(t, patch.ChildrenCount)
	assert.Equal(t, 2, *patch.ChildrenCount)

	_, err = s.Refresh(ctx, "missing")
	assert.ErrorIs(t, err, tree.ErrNotFound)
}

func TestApplyMove(t *testing.T) {
	tests := []struct {
		name  string
		instr tree.MoveInstruction
		check map[string][]string
	}{
		{
			name:  "first child",
			instr: tree.MoveInstruction{SourceNodeID: "readme", TargetNodeID: "specs", Mode: tree.MoveFirstChild, OldParentID: "workspace"},
			check: map[string][]string{
				"specs":     {"readme", "intro", "api", "faq"},
				"workspace": {"specs", "notes", "archive"},
			},
		},
		{
			name:  "last child of empty folder",
			instr: tree.MoveInstruction{SourceNodeID: "api", TargetNodeID: "notes", Mode: tree.MoveLastChild, OldParentID: "specs"},
			check: map[string][]string{
				"notes": {"api"},
				"specs": {"intro", "faq"},
			},
		},
		{
			name:  "left of a sibling elsewhere",
			instr: tree.MoveInstruction{SourceNodeID: "old-2", TargetNodeID: "api", Mode: tree.MoveLeft, OldParentID: "archive"},
			check: map[string][]string{
				"specs":   {"intro", "old-2", "api", "faq"},
				"archive": {"old-1"},
			},
		},
		{
			name:  "right within the same parent",
			instr: tree.MoveInstruction{SourceNodeID: "intro", TargetNodeID: "faq", Mode: tree.MoveRight, OldParentID: "specs"},
			check: map[string][]string{
				"specs": {"api", "faq", "intro"},
			},
		},
		{
			name:  "right of itself",
			instr: tree.MoveInstruction{SourceNodeID: "intro", TargetNodeID: "intro", Mode: tree.MoveRight, OldParentID: "specs"},
			check: map[string][]string{
				"specs": {"intro", "api", "faq"},
			},
		},
		{
			name:  "left of itself",
			instr: tree.MoveInstruction{SourceNodeID: "faq", TargetNodeID: "faq", Mode: tree.MoveLeft, OldParentID: "specs"},
			check: map[string][]string{
				"specs": {"intro", "api", "faq"},
			},
		},
		{
			name:  "left of the next sibling",
			instr: tree.MoveInstruction{SourceNodeID: "faq", TargetNodeID: "api", Mode: tree.MoveLeft, OldParentID: "specs"},
			check: map[string][]string{
				"specs": {"intro", "faq", "api"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := openSeeded(t)
			ctx := context.Background()
			require.NoError(t, s.ApplyMove(ctx, tt.instr))
			for parent, want := range tt.check {
				got, err := s.ChildIDs(ctx, parent)
				require.NoError(t, err)
				assert.Equal(t, want, got, "children of %s", parent)
			}
		})
	}
}

func TestApplyMoveRejects(t *testing.T) {
	tests := []struct {
		name  string
		instr tree.MoveInstruction
		err   error
	}{
		{"into own subtree", tree.MoveInstruction{SourceNodeID: "specs", TargetNodeID: "specs", Mode: tree.MoveFirstChild}, tree.ErrInvalidDropTarget},
		{"beside own child", tree.MoveInstruction{SourceNodeID: "specs", TargetNodeID: "intro", Mode: tree.MoveLeft}, tree.ErrInvalidDropTarget},
		{"into a file", tree.MoveInstruction{SourceNodeID: "intro", TargetNodeID: "readme", Mode: tree.MoveLastChild}, tree.ErrInvalidDropTarget},
		{"beside the root", tree.MoveInstruction{SourceNodeID: "intro", TargetNodeID: "workspace", Mode: tree.MoveRight}, tree.ErrInvalidDropTarget},
		{"unknown source", tree.MoveInstruction{SourceNodeID: "ghost", TargetNodeID: "specs", Mode: tree.MoveFirstChild}, tree.ErrNotFound},
		{"unknown target", tree.MoveInstruction{SourceNodeID: "intro", TargetNodeID: "ghost", Mode: tree.MoveLeft}, tree.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := openSeeded(t)
			ctx := context.Background()
			before, err := s.ChildIDs(ctx, "specs")
			require.NoError(t, err)

			assert.ErrorIs(t, s.ApplyMove(ctx, tt.instr), tt.err)

			after, err := s.ChildIDs(ctx, "specs")
			require.NoError(t, err)
			assert.Equal(t, before, after, "failed move must roll back")
		})
	}
}

func TestInsertAndDelete(t *testing.T) {
	s := openSeeded(t)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, "notes", "standup", model.Doc{Title: "Standup", Kind: model.KindFile}))
	got, err := s.ChildIDs(ctx, "notes")
	require.NoError(t, err)
	assert.Equal(t, []string{"standup"}, got)

	assert.Error(t, s.Insert(ctx, "notes", "blank", model.Doc{Kind: model.KindFile}))

	before, err := s.Count(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, "specs"))
	after, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, before-4, after, "subtree removed")

	got, err = s.ChildIDs(ctx, "workspace")
	require.NoError(t, err)
	assert.Equal(t, []string{"notes", "archive", "readme"}, got)

	assert.ErrorIs(t, s.Delete(ctx, "specs"), tree.ErrNotFound)
}
