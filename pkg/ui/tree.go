// tree.go - row model and rendering for the document tree browser.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"

	"github.com/suitenumerique/ui-kit/pkg/metrics"
	"github.com/suitenumerique/ui-kit/pkg/model"
	"github.com/suitenumerique/ui-kit/pkg/tree"
	"github.com/suitenumerique/ui-kit/pkg/treectx"
)

// Row is one visible line of the tree.
type Row struct {
	ID       string
	ParentID string
	Index    int // position among the parent's children
	Depth    int
	Type     tree.NodeType
	Node     *tree.Node[model.Doc] // set for NodeTypeNode rows only
	Title    string                // header text of NodeTypeTitle rows
	Last     bool
	// Guides holds, for each ancestor level, whether a vertical guide line
	// continues past this row.
	Guides []bool
}

// TreeModel turns the provider's tree into navigable rows. The root is
// hidden; its children are the top-level rows.
type TreeModel struct {
	provider       *treectx.Provider[model.Doc]
	theme          Theme
	root           *tree.Node[model.Doc]
	rows           []Row
	expanded       map[string]bool // explicit user expansions
	loading        map[string]bool // ids with a fetch in flight
	failed         map[string]bool // ids whose last fetch failed
	cursor         int
	viewportOffset int
	width          int
	height         int
	stateDir       string
	spinnerIdx     int

	// Keyboard move state.
	grabbed string
}

// NewTreeModel creates a tree model over p.
func NewTreeModel(p *treectx.Provider[model.Doc], theme Theme) TreeModel {
	t := TreeModel{
		provider: p,
		theme:    theme,
		expanded: make(map[string]bool),
		loading:  make(map[string]bool),
		failed:   make(map[string]bool),
	}
	t.Rebuild()
	return t
}

// SetStateDir enables expand-state persistence under dir and restores any
// saved state. An empty dir disables persistence.
func (t *TreeModel) SetStateDir(dir string) {
	t.stateDir = dir
	if dir == "" {
		return
	}
	state := LoadTreeState(TreeStatePath(dir, t.provider.Store().RootID()))
	for id, open := range state.Expanded {
		if open {
			t.expanded[id] = true
		}
	}
	t.Rebuild()
}

func (t *TreeModel) saveState() {
	if t.stateDir == "" {
		return
	}
	state := DefaultTreeState()
	for id, open := range t.expanded {
		if open {
			state.Expanded[id] = true
		}
	}
	_ = SaveTreeState(TreeStatePath(t.stateDir, t.provider.Store().RootID()), state)
}

// SetSize updates the available dimensions.
func (t *TreeModel) SetSize(width, height int) {
	t.width = width
	t.height = height
	t.ensureCursorVisible()
}

// Rebuild re-reads the tree and recomputes the visible rows, keeping the
// cursor on the same id when it still exists.
func (t *TreeModel) Rebuild() {
	selected := t.SelectedID()
	t.root = t.provider.Store().Snapshot()
	t.rows = t.rows[:0]
	t.appendRows(t.root, 0, nil)
	if selected == "" || !t.SelectByID(selected) {
		t.clampCursor()
	}
	t.ensureCursorVisible()
}

func (t *TreeModel) appendRows(parent *tree.Node[model.Doc], depth int, guides []bool) {
	for i, c := range parent.Children {
		last := i == len(parent.Children)-1
		row := Row{
			ID:       c.NodeID(),
			ParentID: parent.ID,
			Index:    i,
			Depth:    depth,
			Type:     c.Type(),
			Last:     last,
			Guides:   guides,
		}
		switch v := c.(type) {
		case *tree.Node[model.Doc]:
			row.Node = v
		case *tree.Title[model.Doc]:
			row.Title = v.HeaderTitle
		}
		t.rows = append(t.rows, row)
		if row.Node != nil && t.expanded[row.ID] && len(row.Node.Children) > 0 {
			next := make([]bool, len(guides), len(guides)+1)
			copy(next, guides)
			t.appendRows(row.Node, depth+1, append(next, !last))
		}
	}
}

// PendingLoads marks every open node that still needs its children as
// loading and returns their ids. The hidden root counts as open. Nodes
// already loading, or whose last fetch failed, are skipped.
func (t *TreeModel) PendingLoads() []string {
	var ids []string
	want := func(n *tree.Node[model.Doc]) {
		if n.NeedsChildren() && !t.loading[n.ID] && !t.failed[n.ID] {
			t.loading[n.ID] = true
			ids = append(ids, n.ID)
		}
	}
	if t.root != nil {
		want(t.root)
	}
	for _, r := range t.rows {
		if r.Node != nil && t.expanded[r.ID] {
			want(r.Node)
		}
	}
	return ids
}

// SetLoading records whether a fetch for id is in flight.
func (t *TreeModel) SetLoading(id string, loading bool) {
	if loading {
		t.loading[id] = true
		return
	}
	delete(t.loading, id)
}

// IsLoading reports whether a fetch for id is in flight.
func (t *TreeModel) IsLoading(id string) bool { return t.loading[id] }

// AnyLoading reports whether any fetch is in flight.
func (t *TreeModel) AnyLoading() bool { return len(t.loading) > 0 }

// MarkFailed stops automatic retries of id until the user expands it again.
func (t *TreeModel) MarkFailed(id string) {
	delete(t.loading, id)
	t.failed[id] = true
}

// Tick advances the loading spinner.
func (t *TreeModel) Tick() { t.spinnerIdx++ }

// IsExpanded reports whether id is open.
func (t *TreeModel) IsExpanded(id string) bool { return t.expanded[id] }

// Expand opens id and returns the ids that now need loading.
func (t *TreeModel) Expand(id string) []string {
	delete(t.failed, id)
	if t.expanded[id] {
		return t.PendingLoads()
	}
	t.expanded[id] = true
	t.saveState()
	t.Rebuild()
	return t.PendingLoads()
}

// Collapse closes id.
func (t *TreeModel) Collapse(id string) {
	if !t.expanded[id] {
		return
	}
	delete(t.expanded, id)
	t.saveState()
	t.Rebuild()
}

// ToggleSelected opens or closes the selected node and returns the ids
// that need loading.
func (t *TreeModel) ToggleSelected() []string {
	r := t.SelectedRow()
	if r == nil || r.Node == nil || !r.Node.Expandable() {
		return nil
	}
	if t.expanded[r.ID] {
		t.Collapse(r.ID)
		return nil
	}
	return t.Expand(r.ID)
}

// ExpandOrMoveToChild opens a closed node, or steps into an open one.
func (t *TreeModel) ExpandOrMoveToChild() []string {
	r := t.SelectedRow()
	if r == nil || r.Node == nil || !r.Node.Expandable() {
		return nil
	}
	if !t.expanded[r.ID] {
		return t.Expand(r.ID)
	}
	if t.cursor+1 < len(t.rows) && t.rows[t.cursor+1].ParentID == r.ID {
		t.MoveDown()
	}
	return nil
}

// CollapseOrJumpToParent closes an open node, or moves to the parent row.
func (t *TreeModel) CollapseOrJumpToParent() {
	r := t.SelectedRow()
	if r == nil {
		return
	}
	if r.Node != nil && t.expanded[r.ID] {
		t.Collapse(r.ID)
		return
	}
	t.JumpToParent()
}

// Rows returns the visible rows.
func (t *TreeModel) Rows() []Row { return t.rows }

// Cursor returns the selected row index.
func (t *TreeModel) Cursor() int { return t.cursor }

// SelectedRow returns the row under the cursor, or nil for an empty tree.
func (t *TreeModel) SelectedRow() *Row {
	if t.cursor < 0 || t.cursor >= len(t.rows) {
		return nil
	}
	return &t.rows[t.cursor]
}

// SelectedID returns the id under the cursor, or "".
func (t *TreeModel) SelectedID() string {
	if r := t.SelectedRow(); r != nil {
		return r.ID
	}
	return ""
}

// SelectByID moves the cursor to id if it is visible.
func (t *TreeModel) SelectByID(id string) bool {
	for i, r := range t.rows {
		if r.ID == id {
			t.cursor = i
			t.ensureCursorVisible()
			return true
		}
	}
	return false
}

// label is the text a row is searched by.
func (r Row) label() string {
	if r.Node != nil {
		return r.Node.Data.Title
	}
	return r.Title
}

// FindNext moves the cursor to the next visible row after it whose title
// contains query, ignoring case and wrapping around.
func (t *TreeModel) FindNext(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" || len(t.rows) == 0 {
		return false
	}
	for step := 1; step <= len(t.rows); step++ {
		i := (t.cursor + step) % len(t.rows)
		if strings.Contains(strings.ToLower(t.rows[i].label()), q) {
			t.cursor = i
			t.ensureCursorVisible()
			return true
		}
	}
	return false
}

func (t *TreeModel) MoveDown() {
	if t.cursor < len(t.rows)-1 {
		t.cursor++
	}
	t.ensureCursorVisible()
}

func (t *TreeModel) MoveUp() {
	if t.cursor > 0 {
		t.cursor--
	}
	t.ensureCursorVisible()
}

func (t *TreeModel) JumpToTop() {
	t.cursor = 0
	t.ensureCursorVisible()
}

func (t *TreeModel) JumpToBottom() {
	t.cursor = len(t.rows) - 1
	t.clampCursor()
	t.ensureCursorVisible()
}

// JumpToParent moves the cursor to the parent row of the selection.
func (t *TreeModel) JumpToParent() {
	r := t.SelectedRow()
	if r == nil || r.Depth == 0 {
		return
	}
	t.SelectByID(r.ParentID)
}

func (t *TreeModel) PageDown() {
	t.cursor += t.visibleCount()
	t.clampCursor()
	t.ensureCursorVisible()
}

func (t *TreeModel) PageUp() {
	t.cursor -= t.visibleCount()
	t.clampCursor()
	t.ensureCursorVisible()
}

func (t *TreeModel) clampCursor() {
	if t.cursor >= len(t.rows) {
		t.cursor = len(t.rows) - 1
	}
	if t.cursor < 0 {
		t.cursor = 0
	}
}

// visibleCount is the number of rows that fit, after the header and the
// position indicator.
func (t *TreeModel) visibleCount() int {
	n := t.height - 1
	if n <= 0 {
		n = 19
	}
	if len(t.rows) > n {
		n--
	}
	if n < 1 {
		n = 1
	}
	return n
}

func (t *TreeModel) visibleRange() (start, end int) {
	if len(t.rows) == 0 {
		return 0, 0
	}
	n := t.visibleCount()
	start = max(t.viewportOffset, 0)
	end = start + n
	if end > len(t.rows) {
		end = len(t.rows)
		start = max(end-n, 0)
	}
	return start, end
}

// ensureCursorVisible scrolls just enough to keep the cursor on screen.
func (t *TreeModel) ensureCursorVisible() {
	if len(t.rows) == 0 {
		t.viewportOffset = 0
		return
	}
	n := t.visibleCount()
	if t.cursor < t.viewportOffset {
		t.viewportOffset = t.cursor
	}
	if t.cursor >= t.viewportOffset+n {
		t.viewportOffset = t.cursor - n + 1
	}
	t.viewportOffset = min(t.viewportOffset, max(len(t.rows)-n, 0))
	t.viewportOffset = max(t.viewportOffset, 0)
}

// ---- keyboard move ----

// Grabbed returns the id being moved, or "".
func (t *TreeModel) Grabbed() string { return t.grabbed }

// Grab starts moving the selected node.
func (t *TreeModel) Grab() error {
	r := t.SelectedRow()
	if r == nil || r.Node == nil {
		return fmt.Errorf("only documents can be moved")
	}
	if err := t.provider.Drag().Start(tree.DragNode{ID: r.ID, ParentID: r.ParentID}); err != nil {
		return err
	}
	t.grabbed = r.ID
	t.provider.SetPendingTarget("")
	return nil
}

// Hover reports the cursor position to the drag session so resting on a
// closed folder opens it after the hover delay.
func (t *TreeModel) Hover() {
	if t.grabbed == "" {
		return
	}
	r := t.SelectedRow()
	if r == nil || r.Node == nil {
		_ = t.provider.Drag().Out()
		t.provider.SetPendingTarget("")
		return
	}
	open := t.expanded[r.ID] || !r.Node.Expandable()
	if err := t.provider.Drag().Over(r.ID, open); err != nil {
		log.Debug().Err(err).Str("id", r.ID).Msg("hover ignored")
	}
	t.provider.SetPendingTarget(r.ID)
}

// DropTarget returns where a drop would land: before the cursor row, or
// into it as the last child when into is set.
func (t *TreeModel) DropTarget(into bool) (parentID string, index int, ok bool) {
	r := t.SelectedRow()
	if r == nil {
		return "", 0, false
	}
	if into {
		if r.Node == nil {
			return "", 0, false
		}
		return r.ID, len(r.Node.Children), true
	}
	return r.ParentID, r.Index, true
}

// CanDropHere reports whether the grabbed node may land at the drop target.
func (t *TreeModel) CanDropHere(into bool) bool {
	if t.grabbed == "" {
		return false
	}
	parentID, _, ok := t.DropTarget(into)
	return ok && t.provider.CanDrop([]string{t.grabbed}, parentID)
}

// Drop finishes the move at the drop target and applies it.
func (t *TreeModel) Drop(into bool) (*tree.MoveInstruction, error) {
	if t.grabbed == "" {
		return nil, fmt.Errorf("nothing grabbed")
	}
	parentID, index, ok := t.DropTarget(into)
	if !ok {
		return nil, fmt.Errorf("%w: no target under the cursor", tree.ErrInvalidDropTarget)
	}
	moved := t.grabbed
	ev, err := t.provider.Drag().Drop(parentID, index)
	t.endMove()
	if err != nil {
		return nil, err
	}
	instr, err := t.provider.Move(ev)
	if err != nil {
		return nil, err
	}
	if into {
		t.expanded[parentID] = true
		t.saveState()
	}
	t.Rebuild()
	t.SelectByID(moved)
	return instr, nil
}

// CancelMove abandons the move.
func (t *TreeModel) CancelMove() {
	if t.grabbed == "" {
		return
	}
	t.provider.Drag().Cancel()
	t.endMove()
}

func (t *TreeModel) endMove() {
	t.provider.Drag().Reset()
	t.provider.SetPendingTarget("")
	t.grabbed = ""
}

// ---- rendering ----

func (t *TreeModel) View() string {
	defer metrics.Timer(metrics.UIRender)()

	if len(t.rows) == 0 {
		return t.renderEmptyState()
	}

	var sb strings.Builder
	sb.WriteString(t.renderHeader())
	sb.WriteString("\n")

	start, end := t.visibleRange()
	for i := start; i < end; i++ {
		line := t.renderRow(t.rows[i], i == t.cursor)
		if i == t.cursor {
			line = t.theme.Selected.Render(line)
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}

	if len(t.rows) > t.visibleCount() {
		sb.WriteString(t.theme.MutedText.Render(
			fmt.Sprintf(" %d-%d of %d", start+1, end, len(t.rows))))
	}
	return sb.String()
}

func (t *TreeModel) rowWidth() int {
	w := t.width
	if w <= 0 {
		w = 80
	}
	// One less than the terminal so the last cell never wraps.
	return w - 1
}

func (t *TreeModel) renderHeader() string {
	title := t.root.Data.Title
	if title == "" {
		title = t.root.ID
	}
	return t.theme.Header.Render(truncateWidth(title, t.rowWidth()-2, "…"))
}

func (t *TreeModel) renderEmptyState() string {
	msg := "No documents"
	if t.loading[t.provider.Store().RootID()] {
		msg = t.spinner() + " Loading…"
	}
	return t.theme.MutedText.Render(msg)
}

func (t *TreeModel) spinner() string {
	return spinnerFrames[t.spinnerIdx%len(spinnerFrames)]
}

func (t *TreeModel) prefix(r Row) string {
	if r.Depth == 0 && len(r.Guides) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, cont := range r.Guides {
		if cont {
			sb.WriteString(guideLine)
		} else {
			sb.WriteString(guideBlank)
		}
	}
	if r.Last {
		sb.WriteString(branchLast)
	} else {
		sb.WriteString(branchMid)
	}
	return sb.String()
}

func (t *TreeModel) renderRow(r Row, selected bool) string {
	width := t.rowWidth()
	prefix := t.prefix(r)
	left := t.theme.Branch.Render(prefix)
	avail := width - lipgloss.Width(prefix)

	switch r.Type {
	case tree.NodeTypeSeparator:
		return left + t.theme.MutedText.Render(strings.Repeat(separatorRune, max(avail, 1)))
	case tree.NodeTypeTitle:
		return left + t.theme.SectionTitle.Render(truncateWidth(strings.ToUpper(r.Title), avail, "…"))
	case tree.NodeTypeViewMore:
		label := "… load more"
		if t.loading[r.ID] {
			label = t.spinner() + " loading more"
		}
		return left + t.theme.ViewMore.Render(truncateWidth(label, avail, "…"))
	}
	return left + t.renderDoc(r, selected, avail)
}

func (t *TreeModel) renderDoc(r Row, selected bool, avail int) string {
	n := r.Node
	var sb strings.Builder

	indicator := glyphLeaf
	switch {
	case t.loading[r.ID]:
		indicator = t.spinner()
	case n.Expandable() && t.expanded[r.ID]:
		indicator = glyphExpanded
	case n.Expandable():
		indicator = glyphCollapsed
	}
	if t.loading[r.ID] {
		sb.WriteString(t.theme.Spinner.Render(indicator))
	} else {
		sb.WriteString(t.theme.SecondaryText.Render(indicator))
	}
	sb.WriteString(" ")

	icon, color := t.theme.KindIcon(n.Data.Kind)
	sb.WriteString(t.theme.Renderer.NewStyle().Foreground(color).Render(icon))
	sb.WriteString(" ")
	fixed := 4

	var right string
	if avail > 50 {
		right = fmt.Sprintf("%8s", FormatTimeRel(n.Data.UpdatedAt))
		if n.ChildrenCount > 0 {
			right = fmt.Sprintf("%4d %s", n.ChildrenCount, right)
		}
	}

	titleWidth := max(avail-fixed-lipgloss.Width(right)-1, 5)
	title := n.Data.Title
	if title == "" {
		title = n.ID
	}
	title = padWidth(truncateWidth(title, titleWidth, "…"), titleWidth)

	style := t.theme.Base
	switch {
	case r.ID == t.grabbed:
		style = t.theme.Grabbed
	case t.grabbed != "" && selected && t.CanDropHere(false):
		style = t.theme.DropTarget
	case t.grabbed != "" && selected:
		style = t.theme.Error
	case selected:
		style = t.theme.PrimaryBold
	}
	sb.WriteString(style.Render(title))
	if right != "" {
		sb.WriteString(" ")
		sb.WriteString(t.theme.MutedText.Render(right))
	}
	return sb.String()
}
