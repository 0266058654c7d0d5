package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/suitenumerique/ui-kit/pkg/model"
	"github.com/suitenumerique/ui-kit/pkg/tree"
	"github.com/suitenumerique/ui-kit/pkg/treectx"
	"github.com/suitenumerique/ui-kit/pkg/watcher"
)

// spinnerInterval is the loading spinner frame time.
const spinnerInterval = 100 * time.Millisecond

// ChildrenLoadedMsg reports the end of a children fetch.
type ChildrenLoadedMsg struct {
	ID  string
	Err error
}

// PageLoadedMsg reports the end of a page fetch. ID is the view-more row.
type PageLoadedMsg struct {
	ID       string
	ParentID string
	Err      error
}

// TreeEventMsg carries one provider event.
type TreeEventMsg struct {
	Event treectx.Event
}

// RefreshedMsg reports the end of a full refresh.
type RefreshedMsg struct {
	Err error
}

// FileChangedMsg is sent when the watched data source changes on disk.
type FileChangedMsg struct{}

type spinnerTickMsg struct{}

type subscriptionClosedMsg struct{}

// Option configures a Model.
type Option func(*Model)

// WithWatcher refreshes loaded nodes whenever w reports a change.
func WithWatcher(w *watcher.Watcher) Option {
	return func(m *Model) { m.watcher = w }
}

// WithStateDir persists expand state under dir.
func WithStateDir(dir string) Option {
	return func(m *Model) { m.stateDir = dir }
}

// WithTheme replaces the default theme.
func WithTheme(th Theme) Option {
	return func(m *Model) { m.theme = &th }
}

// WithContext sets the context passed to data source callbacks.
func WithContext(ctx context.Context) Option {
	return func(m *Model) { m.ctx = ctx }
}

// WithModelLogger sets the logger.
func WithModelLogger(l zerolog.Logger) Option {
	return func(m *Model) { m.logger = l }
}

// Model is the bubbletea program state of the tree browser.
type Model struct {
	provider    *treectx.Provider[model.Doc]
	tree        TreeModel
	theme       *Theme
	events      <-chan treectx.Event
	unsubscribe func()
	watcher     *watcher.Watcher
	stateDir    string
	ctx         context.Context
	logger      zerolog.Logger

	width     int
	height    int
	statusMsg string
	statusErr bool
	showHelp  bool
	ticking   bool

	search    textinput.Model
	searching bool
}

// NewModel creates the browser for p.
func NewModel(p *treectx.Provider[model.Doc], opts ...Option) Model {
	m := Model{
		provider: p,
		ctx:      context.Background(),
		logger:   log.Logger,
	}
	for _, opt := range opts {
		opt(&m)
	}
	if m.theme == nil {
		th := DefaultTheme(lipgloss.DefaultRenderer())
		m.theme = &th
	}
	m.search = textinput.New()
	m.search.Prompt = "/"
	m.search.Placeholder = "title"
	m.search.CharLimit = 120
	m.tree = NewTreeModel(p, *m.theme)
	m.tree.SetStateDir(m.stateDir)
	m.events, m.unsubscribe = p.Subscribe()
	return m
}

// Tree exposes the row model.
func (m *Model) Tree() *TreeModel { return &m.tree }

// Status returns the status line text.
func (m Model) Status() string { return m.statusMsg }

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{WaitForEventCmd(m.events)}
	cmds = append(cmds, m.loadCmds(m.tree.PendingLoads())...)
	if m.watcher != nil {
		cmds = append(cmds, WatchFileCmd(m.watcher))
	}
	return tea.Batch(cmds...)
}

// LoadChildrenCmd fetches the children of id through p.
func LoadChildrenCmd(ctx context.Context, p *treectx.Provider[model.Doc], id string) tea.Cmd {
	return func() tea.Msg {
		return ChildrenLoadedMsg{ID: id, Err: p.LoadChildren(ctx, id)}
	}
}

// LoadMoreCmd fetches the next page of parentID's children.
func LoadMoreCmd(ctx context.Context, p *treectx.Provider[model.Doc], viewMoreID, parentID string) tea.Cmd {
	return func() tea.Msg {
		return PageLoadedMsg{ID: viewMoreID, ParentID: parentID, Err: p.LoadMore(ctx, parentID)}
	}
}

// RefreshCmd reloads every loaded node.
func RefreshCmd(ctx context.Context, p *treectx.Provider[model.Doc]) tea.Cmd {
	return func() tea.Msg {
		return RefreshedMsg{Err: p.RefreshLoaded(ctx)}
	}
}

// WaitForEventCmd waits for the next provider event.
func WaitForEventCmd(ch <-chan treectx.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return subscriptionClosedMsg{}
		}
		return TreeEventMsg{Event: ev}
	}
}

// WatchFileCmd waits for a change of the watched file.
func WatchFileCmd(w *watcher.Watcher) tea.Cmd {
	return func() tea.Msg {
		<-w.Changed()
		return FileChangedMsg{}
	}
}

func spinnerTickCmd() tea.Cmd {
	return tea.Tick(spinnerInterval, func(time.Time) tea.Msg { return spinnerTickMsg{} })
}

func (m *Model) loadCmds(ids []string) []tea.Cmd {
	cmds := make([]tea.Cmd, 0, len(ids)+1)
	for _, id := range ids {
		cmds = append(cmds, LoadChildrenCmd(m.ctx, m.provider, id))
	}
	if len(ids) > 0 && !m.ticking {
		m.ticking = true
		cmds = append(cmds, spinnerTickCmd())
	}
	return cmds
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.tree.SetSize(msg.Width, msg.Height-1)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case ChildrenLoadedMsg:
		if msg.Err != nil {
			m.tree.MarkFailed(msg.ID)
			m.setError(fmt.Errorf("loading %s: %w", msg.ID, msg.Err))
		} else {
			m.tree.SetLoading(msg.ID, false)
		}
		m.tree.Rebuild()
		cmds = append(cmds, m.loadCmds(m.tree.PendingLoads())...)

	case PageLoadedMsg:
		m.tree.SetLoading(msg.ID, false)
		if msg.Err != nil {
			m.setError(fmt.Errorf("loading more under %s: %w", msg.ParentID, msg.Err))
		}
		m.tree.Rebuild()

	case TreeEventMsg:
		cmds = append(cmds, WaitForEventCmd(m.events))
		switch msg.Event.Kind {
		case treectx.EventChanged:
			m.tree.Rebuild()
		case treectx.EventMoved:
			m.tree.Rebuild()
			if instr := msg.Event.Instruction; instr != nil {
				m.setStatus("moved " + instr.String())
			}
		case treectx.EventExpand:
			cmds = append(cmds, m.loadCmds(m.tree.Expand(msg.Event.ID))...)
		}

	case subscriptionClosedMsg:
		m.logger.Debug().Msg("tree subscription closed")

	case RefreshedMsg:
		if msg.Err != nil {
			m.setError(fmt.Errorf("refresh: %w", msg.Err))
		} else {
			m.setStatus("refreshed")
		}
		m.tree.Rebuild()

	case FileChangedMsg:
		cmds = append(cmds, RefreshCmd(m.ctx, m.provider))
		if m.watcher != nil {
			cmds = append(cmds, WatchFileCmd(m.watcher))
		}

	case spinnerTickMsg:
		if m.tree.AnyLoading() {
			m.tree.Tick()
			m.ticking = true
			cmds = append(cmds, spinnerTickCmd())
		} else {
			m.ticking = false
		}
	}

	return m, tea.Batch(cmds...)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if m.showHelp {
		m.showHelp = false
		return m, nil
	}
	if m.searching {
		return m.handleSearchKey(msg)
	}
	if m.tree.Grabbed() != "" {
		return m.handleMoveKey(key)
	}

	var cmds []tea.Cmd
	switch key {
	case "ctrl+c", "q":
		m.unsubscribe()
		return m, tea.Quit
	case "?":
		m.showHelp = true
	case "/":
		m.searching = true
		m.search.SetValue("")
		return m, m.search.Focus()
	case "n":
		if q := m.search.Value(); q != "" && !m.tree.FindNext(q) {
			m.setStatus("no match for " + q)
		}
	case "j", "down":
		m.tree.MoveDown()
	case "k", "up":
		m.tree.MoveUp()
	case "g", "home":
		m.tree.JumpToTop()
	case "G", "end":
		m.tree.JumpToBottom()
	case "pgdown", "ctrl+d":
		m.tree.PageDown()
	case "pgup", "ctrl+u":
		m.tree.PageUp()
	case "h", "left":
		m.tree.CollapseOrJumpToParent()
	case "l", "right":
		cmds = append(cmds, m.loadCmds(m.tree.ExpandOrMoveToChild())...)
	case "enter", " ":
		cmds = append(cmds, m.activate()...)
	case "m":
		if err := m.tree.Grab(); err != nil {
			m.setError(err)
		} else {
			m.setStatus("moving " + m.tree.Grabbed() + ": enter drops before, i drops into, esc cancels")
		}
	case "y":
		if id := m.tree.SelectedID(); id != "" {
			if err := clipboard.WriteAll(id); err != nil {
				m.setError(fmt.Errorf("clipboard: %w", err))
			} else {
				m.setStatus("copied " + id)
			}
		}
	case "r":
		if r := m.tree.SelectedRow(); r != nil && r.Node != nil {
			if err := m.provider.Refresh(m.ctx, r.ID); err != nil {
				m.setError(err)
			} else {
				m.setStatus("refreshed " + r.ID)
			}
			m.tree.Rebuild()
		}
	case "R":
		cmds = append(cmds, RefreshCmd(m.ctx, m.provider))
	}
	m.syncSelection()
	return m, tea.Batch(cmds...)
}

// activate toggles a node or loads the next page from a view-more row.
func (m *Model) activate() []tea.Cmd {
	r := m.tree.SelectedRow()
	if r == nil {
		return nil
	}
	if r.Type == tree.NodeTypeViewMore {
		if m.tree.IsLoading(r.ID) {
			return nil
		}
		m.tree.SetLoading(r.ID, true)
		cmds := []tea.Cmd{LoadMoreCmd(m.ctx, m.provider, r.ID, r.ParentID)}
		if !m.ticking {
			m.ticking = true
			cmds = append(cmds, spinnerTickCmd())
		}
		return cmds
	}
	return m.loadCmds(m.tree.ToggleSelected())
}

func (m Model) handleMoveKey(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "ctrl+c":
		m.tree.CancelMove()
		m.unsubscribe()
		return m, tea.Quit
	case "esc", "q":
		m.tree.CancelMove()
		m.setStatus("move cancelled")
	case "j", "down":
		m.tree.MoveDown()
		m.tree.Hover()
	case "k", "up":
		m.tree.MoveUp()
		m.tree.Hover()
	case "enter", "i":
		if _, err := m.tree.Drop(key == "i"); err != nil {
			m.setError(err)
		}
	}
	return m, nil
}

// handleSearchKey feeds the search input; enter jumps to the next match.
func (m Model) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "ctrl+c":
		m.searching = false
		m.search.Blur()
		return m, nil
	case "enter":
		m.searching = false
		m.search.Blur()
		q := m.search.Value()
		if m.tree.FindNext(q) {
			m.setStatus("")
			m.syncSelection()
		} else if q != "" {
			m.setStatus("no match for " + q)
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	return m, cmd
}

func (m *Model) syncSelection() {
	if err := m.provider.Select(m.tree.SelectedID()); err != nil && !errors.Is(err, tree.ErrNotFound) {
		m.logger.Debug().Err(err).Msg("select")
	}
}

func (m *Model) setStatus(s string) {
	m.statusMsg = s
	m.statusErr = false
}

func (m *Model) setError(err error) {
	m.logger.Warn().Err(err).Msg("tree browser")
	m.statusMsg = err.Error()
	m.statusErr = true
}

func (m Model) View() string {
	if m.showHelp {
		return m.renderHelp()
	}
	var sb strings.Builder
	sb.WriteString(m.tree.View())
	sb.WriteString("\n")
	if m.searching {
		sb.WriteString(m.search.View())
		return sb.String()
	}
	style := m.theme.MutedText
	if m.statusErr {
		style = m.theme.Error
	}
	sb.WriteString(style.Render(truncateWidth(m.statusMsg, m.tree.rowWidth(), "…")))
	return sb.String()
}

var helpKeys = [][2]string{
	{"j/k ↑/↓", "move cursor"},
	{"h/l ←/→", "collapse / expand"},
	{"enter", "toggle, or load more"},
	{"m", "move the selected document"},
	{"enter / i", "drop before / into (while moving)"},
	{"esc", "cancel move"},
	{"/ n", "find by title / next match"},
	{"y", "copy id"},
	{"r / R", "refresh node / refresh all"},
	{"q", "quit"},
}

func (m Model) renderHelp() string {
	var sb strings.Builder
	sb.WriteString(m.theme.Header.Render("Keys"))
	sb.WriteString("\n\n")
	for _, k := range helpKeys {
		sb.WriteString(m.theme.PrimaryBold.Render(padWidth(k[0], 12)))
		sb.WriteString(" ")
		sb.WriteString(m.theme.Base.Render(k[1]))
		sb.WriteString("\n")
	}
	return sb.String()
}
