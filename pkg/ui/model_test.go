package ui_test

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/suitenumerique/ui-kit/pkg/model"
	"github.com/suitenumerique/ui-kit/pkg/testutil"
	"github.com/suitenumerique/ui-kit/pkg/tree"
	"github.com/suitenumerique/ui-kit/pkg/treectx"
	"github.com/suitenumerique/ui-kit/pkg/ui"
)

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m ui.Model, msg tea.Msg) (ui.Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	um, ok := next.(ui.Model)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return um, cmd
}

func TestModelNavigatesAndSelects(t *testing.T) {
	p := newProvider(t, sampleTree())
	m := ui.NewModel(p, ui.WithTheme(ui.TestTheme()))
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})

	m, _ = update(t, m, keyRunes("j"))
	if got := m.Tree().SelectedID(); got != "b" {
		t.Fatalf("selected %q after j, want b", got)
	}
	if p.Selected() != "b" {
		t.Errorf("provider selection = %q", p.Selected())
	}

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Error("expanding an unloaded folder should issue a load")
	}
	if !m.Tree().IsLoading("b") {
		t.Error("b should be loading")
	}
}

func TestModelLoadFailureShowsStatus(t *testing.T) {
	p := newProvider(t, sampleTree())
	m := ui.NewModel(p, ui.WithTheme(ui.TestTheme()))
	m.Tree().Expand("b")

	m, _ = update(t, m, ui.ChildrenLoadedMsg{ID: "b", Err: errors.New("offline")})
	if !strings.Contains(m.Status(), "offline") {
		t.Errorf("status = %q", m.Status())
	}
	if m.Tree().IsLoading("b") {
		t.Error("spinner not cleared after failure")
	}
	if !strings.Contains(m.View(), "offline") {
		t.Error("view should show the error")
	}
}

func TestModelExpandEvent(t *testing.T) {
	p := newProvider(t, sampleTree())
	m := ui.NewModel(p, ui.WithTheme(ui.TestTheme()))

	m, cmd := update(t, m, ui.TreeEventMsg{Event: treectx.Event{Kind: treectx.EventExpand, ID: "a"}})
	if cmd == nil {
		t.Error("event handling must keep listening")
	}
	if !m.Tree().IsExpanded("a") {
		t.Error("hover expand event should open a")
	}
}

func TestModelKeyboardMove(t *testing.T) {
	p := newProvider(t, sampleTree())
	m := ui.NewModel(p, ui.WithTheme(ui.TestTheme()))

	m.Tree().SelectByID("c")
	m, _ = update(t, m, keyRunes("m"))
	if m.Tree().Grabbed() != "c" {
		t.Fatalf("grabbed %q", m.Tree().Grabbed())
	}
	for n := 0; n < 4; n++ {
		m, _ = update(t, m, keyRunes("k"))
	}
	if m.Tree().SelectedID() != "a" {
		t.Fatalf("cursor on %q, want a", m.Tree().SelectedID())
	}
	m, _ = update(t, m, keyRunes("i"))
	testutil.AssertChildren(t, p.Store(), "a", "a1", "a2", "c")
	if m.Tree().Grabbed() != "" {
		t.Error("move still active after drop")
	}
}

func TestModelMoveCancel(t *testing.T) {
	p := newProvider(t, sampleTree())
	m := ui.NewModel(p, ui.WithTheme(ui.TestTheme()))
	before := p.Store().Snapshot()

	m, _ = update(t, m, keyRunes("m"))
	m, _ = update(t, m, keyRunes("j"))
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.Tree().Grabbed() != "" || m.Status() != "move cancelled" {
		t.Errorf("grabbed=%q status=%q", m.Tree().Grabbed(), m.Status())
	}
	testutil.AssertSameShape(t, before, p.Store().Snapshot())
}

func TestModelViewMoreRow(t *testing.T) {
	root := sampleTree()
	root.Pagination = &tree.Pagination{Page: 1, HasMore: true}
	root.Children = append(root.Children, &tree.ViewMore[model.Doc]{ID: tree.ViewMoreID("root"), ParentID: "root"})
	p := newProvider(t, root)
	m := ui.NewModel(p, ui.WithTheme(ui.TestTheme()))

	m.Tree().JumpToBottom()
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil || !m.Tree().IsLoading(tree.ViewMoreID("root")) {
		t.Fatal("view-more row should start a page load")
	}
	_, again := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if again != nil {
		t.Error("second activation while loading should do nothing")
	}

	m, _ = update(t, m, ui.PageLoadedMsg{ID: tree.ViewMoreID("root"), ParentID: "root", Err: tree.ErrNoCallback})
	if m.Tree().IsLoading(tree.ViewMoreID("root")) {
		t.Error("page spinner not cleared")
	}
	if !strings.Contains(m.Status(), "loading more") {
		t.Errorf("status = %q", m.Status())
	}
}

func TestModelHelpAndQuit(t *testing.T) {
	p := newProvider(t, sampleTree())
	m := ui.NewModel(p, ui.WithTheme(ui.TestTheme()))

	m, _ = update(t, m, keyRunes("?"))
	if !strings.Contains(m.View(), "Keys") {
		t.Error("help not shown")
	}
	m, _ = update(t, m, keyRunes("x"))
	if strings.Contains(m.View(), "Keys") {
		t.Error("any key should close help")
	}
	_, cmd := update(t, m, keyRunes("q"))
	if cmd == nil {
		t.Fatal("q should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not return tea.Quit")
	}
}

func TestModelSearchJumpsToTitle(t *testing.T) {
	p := newProvider(t, sampleTree())
	m := ui.NewModel(p, ui.WithTheme(ui.TestTheme()))
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})

	m, _ = update(t, m, keyRunes("/"))
	m, _ = update(t, m, keyRunes("b"))
	if !strings.Contains(m.View(), "/b") {
		t.Errorf("search prompt not shown:\n%s", m.View())
	}
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if got := m.Tree().SelectedID(); got != "b" {
		t.Fatalf("selected %q after search, want b", got)
	}
	if p.Selected() != "b" {
		t.Errorf("provider selection = %q", p.Selected())
	}

	m, _ = update(t, m, keyRunes("/"))
	m, _ = update(t, m, keyRunes("zzz"))
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.Status() != "no match for zzz" {
		t.Errorf("status = %q", m.Status())
	}
	if got := m.Tree().SelectedID(); got != "b" {
		t.Errorf("cursor moved to %q on a miss", got)
	}
}

func TestModelSearchEscapeKeepsCursor(t *testing.T) {
	p := newProvider(t, sampleTree())
	m := ui.NewModel(p, ui.WithTheme(ui.TestTheme()))
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})

	m, _ = update(t, m, keyRunes("/"))
	m, _ = update(t, m, keyRunes("c"))
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if got := m.Tree().SelectedID(); got != "a" {
		t.Errorf("selected %q after esc, want a", got)
	}
	m, _ = update(t, m, keyRunes("j"))
	if got := m.Tree().SelectedID(); got != "b" {
		t.Errorf("keys should navigate again after esc, got %q", got)
	}
}
