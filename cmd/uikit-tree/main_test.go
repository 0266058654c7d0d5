package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suitenumerique/ui-kit/internal/datasource"
	"github.com/suitenumerique/ui-kit/pkg/debug"
	"github.com/suitenumerique/ui-kit/pkg/model"
	"github.com/suitenumerique/ui-kit/pkg/tree"
	"github.com/suitenumerique/ui-kit/pkg/version"
)

const fixturePath = "../../internal/datasource/testdata/workspace.yaml"

// isolate points every XDG directory at a temp dir and returns a db path.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(dir, "state"))
	return filepath.Join(dir, "data", "tree.db")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func seeded(t *testing.T) string {
	t.Helper()
	db := isolate(t)
	out, err := run(t, "seed", "--db", db, fixturePath)
	require.NoError(t, err)
	require.Contains(t, out, "seeded 10 nodes")
	return db
}

func childIDs(t *testing.T, db, parent string) []string {
	t.Helper()
	src, err := datasource.OpenSQLite(db)
	require.NoError(t, err)
	defer src.Close()
	ids, err := src.ChildIDs(context.Background(), parent)
	require.NoError(t, err)
	return ids
}

func TestSeedRefusesNonEmptyDatabase(t *testing.T) {
	db := seeded(t)

	_, err := run(t, "seed", "--db", db, fixturePath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")

	out, err := run(t, "seed", "--db", db, "--force", fixturePath)
	require.NoError(t, err)
	assert.Contains(t, out, "seeded 10 nodes")
}

func TestExportLoadsEverything(t *testing.T) {
	db := seeded(t)

	out, err := run(t, "export", "--db", db)
	require.NoError(t, err)

	flat, err := tree.ReadJSON[model.Doc](strings.NewReader(out))
	require.NoError(t, err)
	require.Len(t, flat, 10)
	assert.Equal(t, "workspace", flat[0].ID)

	root, err := tree.Unflatten(flat)
	require.NoError(t, err)
	require.NoError(t, tree.Check(root))
	assert.Equal(t, []string{"specs", "notes", "archive", "readme"}, tree.ChildIDs(root))
}

func TestExportSubtreeAndFile(t *testing.T) {
	db := seeded(t)
	path := filepath.Join(t.TempDir(), "archive.json")

	_, err := run(t, "export", "--db", db, "--root", "archive", "-o", path)
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	flat, err := tree.ReadJSON[model.Doc](f)
	require.NoError(t, err)
	ids := make([]string, len(flat))
	for i, row := range flat {
		ids[i] = row.ID
	}
	assert.Equal(t, []string{"archive", "old-1", "old-2"}, ids)
}

func TestExportEmptyDatabase(t *testing.T) {
	db := isolate(t)
	_, err := run(t, "export", "--db", db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seed")
}

func TestExportSeedsFromConfiguredFixture(t *testing.T) {
	db := isolate(t)
	cfg := filepath.Join(t.TempDir(), "config.yaml")
	fixture, err := filepath.Abs(fixturePath)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(cfg, []byte("source:\n  db_path: "+db+"\n  fixture: "+fixture+"\n"), 0o644))

	out, err := run(t, "export", "--config", cfg)
	require.NoError(t, err)
	flat, err := tree.ReadJSON[model.Doc](strings.NewReader(out))
	require.NoError(t, err)
	assert.Len(t, flat, 10)
}

func TestMovePersists(t *testing.T) {
	db := seeded(t)

	out, err := run(t, "move", "--db", db, "readme", "specs", "--index", "0")
	require.NoError(t, err)
	assert.Contains(t, out, `"source_node_id": "readme"`)

	assert.Equal(t, []string{"readme", "intro", "api", "faq"}, childIDs(t, db, "specs"))
	assert.Equal(t, []string{"specs", "notes", "archive"}, childIDs(t, db, "workspace"))
}

func TestMoveAppendsByDefault(t *testing.T) {
	db := seeded(t)

	_, err := run(t, "move", "--db", db, "intro", "notes")
	require.NoError(t, err)

	assert.Equal(t, []string{"intro"}, childIDs(t, db, "notes"))
	assert.Equal(t, []string{"api", "faq"}, childIDs(t, db, "specs"))
}

func TestMoveRejectsInvalidDrops(t *testing.T) {
	tests := []struct {
		name         string
		node, parent string
	}{
		{"into a file", "intro", "readme"},
		{"into itself", "specs", "specs"},
		{"into a descendant", "workspace", "specs"},
		{"unknown parent", "intro", "ghost"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := seeded(t)
			_, err := run(t, "move", "--db", db, tt.node, tt.parent)
			require.Error(t, err)
			assert.Equal(t, []string{"intro", "api", "faq"}, childIDs(t, db, "specs"))
		})
	}
}

func TestBrowseNeedsTerminal(t *testing.T) {
	db := seeded(t)
	_, err := run(t, "browse", "--db", db)
	assert.ErrorIs(t, err, errNoTerminal)
}

func TestVersion(t *testing.T) {
	isolate(t)
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, version.Version)
}

func writeHooks(t *testing.T, content string) {
	t.Helper()
	dir := filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "uikit-tree")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hooks.yaml"), []byte(content), 0o644))
}

func TestExportSVGToStdout(t *testing.T) {
	db := seeded(t)

	out, err := run(t, "export", "--db", db, "--format", "svg")
	require.NoError(t, err)
	assert.Contains(t, out, "<svg")
	assert.Contains(t, out, "README")
}

func TestExportPNGNeedsOutput(t *testing.T) {
	db := seeded(t)

	_, err := run(t, "export", "--db", db, "-f", "png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--output")

	png := filepath.Join(t.TempDir(), "tree.png")
	_, err = run(t, "export", "--db", db, "-o", png)
	require.NoError(t, err)
	data, err := os.ReadFile(png)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")))
}

func TestMoveRunsPostMoveHooks(t *testing.T) {
	db := seeded(t)
	record := filepath.Join(t.TempDir(), "moved")
	writeHooks(t, `
hooks:
  post-move:
    - name: record
      command: printf '%s %s %s' "$UIKIT_MOVE_SOURCE" "$UIKIT_MOVE_TARGET" "$UIKIT_MOVE_OLD_PARENT" > `+record+`
`)

	_, err := run(t, "move", "--db", db, "readme", "specs", "--index", "0")
	require.NoError(t, err)
	got, err := os.ReadFile(record)
	require.NoError(t, err)
	assert.Equal(t, "readme specs workspace", string(got))

	require.NoError(t, os.Remove(record))
	_, err = run(t, "move", "--db", db, "--no-hooks", "intro", "notes")
	require.NoError(t, err)
	assert.NoFileExists(t, record)
}

func TestPreExportHookCancelsExport(t *testing.T) {
	db := seeded(t)
	writeHooks(t, "hooks:\n  pre-export:\n    - name: veto\n      command: exit 1\n")

	target := filepath.Join(t.TempDir(), "tree.json")
	_, err := run(t, "export", "--db", db, "-o", target)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "veto")
	assert.NoFileExists(t, target)

	_, err = run(t, "export", "--db", db, "-o", target, "--no-hooks")
	require.NoError(t, err)
	assert.FileExists(t, target)
}

func TestExportOutlines(t *testing.T) {
	db := seeded(t)

	out, err := run(t, "export", "--db", db, "-f", "markdown")
	require.NoError(t, err)
	assert.Contains(t, out, "# ")
	assert.Contains(t, out, "  - 📄 ")

	path := filepath.Join(t.TempDir(), "tree.mmd")
	_, err = run(t, "export", "--db", db, "-o", path)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "graph TD\n"))
	assert.Contains(t, string(data), "workspace --> specs")
}

func TestFormatFromPath(t *testing.T) {
	tests := map[string]string{
		"":           "json",
		"tree.json":  "json",
		"tree.MD":    "markdown",
		"tree.mmd":   "mermaid",
		"tree.svg":   "svg",
		"tree.png":   "png",
		"tree":       "json",
	}
	for in, want := range tests {
		assert.Equal(t, want, formatFromPath(in), in)
	}
}

func TestMoveDropJustAfterItselfIsKept(t *testing.T) {
	db := seeded(t)

	out, err := run(t, "move", "--db", db, "intro", "specs", "--index", "1")
	require.NoError(t, err)
	assert.Contains(t, out, `"target_node_id": "intro"`)
	assert.Contains(t, out, `"mode": "right"`)
	assert.Equal(t, []string{"intro", "api", "faq"}, childIDs(t, db, "specs"))
}

func TestDebugRunLogsTimings(t *testing.T) {
	db := seeded(t)
	prev := log.Logger
	t.Cleanup(func() {
		debug.SetEnabled(false)
		log.Logger = prev
	})

	logFile := filepath.Join(t.TempDir(), "uikit-tree.log")
	_, err := run(t, "export", "--db", db, "--debug", "--log-file", logFile)
	require.NoError(t, err)

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"metric":"load_children"`)
	assert.Contains(t, string(data), `"message":"timing"`)
}

func TestMarkdownExportStylesTerminalOutput(t *testing.T) {
	db := seeded(t)
	raw, err := run(t, "export", "--db", db, "-f", "markdown")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(raw, "# Workspace\n"), "piped output stays raw")

	prev := terminalWidth
	terminalWidth = func(io.Writer) (int, bool) { return 60, true }
	t.Cleanup(func() { terminalWidth = prev })

	styled, err := run(t, "export", "--db", db, "-f", "markdown")
	require.NoError(t, err)
	assert.NotEqual(t, raw, styled)
	assert.False(t, strings.HasPrefix(styled, "# "))
	assert.Contains(t, styled, "README")
	assert.Contains(t, styled, "Specs")

	// A file is never styled, even when stdout is a terminal.
	path := filepath.Join(t.TempDir(), "tree.md")
	_, err = run(t, "export", "--db", db, "-o", path)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# Workspace\n"))
	assert.Contains(t, string(data), "  - 📄 ")
}
