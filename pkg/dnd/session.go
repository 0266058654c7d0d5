package dnd

import (
	"errors"
	"fmt"
	"sync"

	"github.com/suitenumerique/ui-kit/pkg/tree"
)

// State is the phase of a drag.
type State int

const (
	Idle State = iota
	Dragging
	Hovering
	ExpandPending
	Expanded
	Dropped
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Dragging:
		return "dragging"
	case Hovering:
		return "hovering"
	case ExpandPending:
		return "expand-pending"
	case Expanded:
		return "expanded"
	case Dropped:
		return "dropped"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Active reports whether a drag is in progress.
func (s State) Active() bool {
	return s >= Dragging && s <= Expanded
}

// ErrNotDragging is returned by operations that need an active drag.
var ErrNotDragging = errors.New("no drag in progress")

// ErrAlreadyDragging is returned by Start during an active drag.
var ErrAlreadyDragging = errors.New("drag already in progress")

// Session tracks one drag at a time:
//
//	Idle -> Dragging -> Hovering -> ExpandPending -> Expanded -> Dropped | Cancelled
//
// Hovering a collapsed target schedules an expand through the session's
// HoverExpander; leaving the target or ending the drag cancels it.
type Session[T any] struct {
	mu        sync.Mutex
	state     State
	dragNodes []tree.DragNode
	target    string
	hover     *HoverExpander
	onExpand  func(id string)
}

// NewSession returns an idle session. onExpand is called, without any lock
// held, when a hover-to-expand fires for the current target.
func NewSession[T any](onExpand func(id string), opts ...HoverOption) *Session[T] {
	s := &Session[T]{onExpand: onExpand}
	s.hover = NewHoverExpander(s.expanded, opts...)
	return s
}

// State returns the current phase.
func (s *Session[T]) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Target returns the id currently hovered, if any.
func (s *Session[T]) Target() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// DragIDs returns the ids being dragged.
func (s *Session[T]) DragIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return dragIDs(s.dragNodes)
}

// Hover exposes the session's expander.
func (s *Session[T]) Hover() *HoverExpander {
	return s.hover
}

// Start begins a drag of nodes. A finished session can be restarted.
func (s *Session[T]) Start(nodes ...tree.DragNode) error {
	if len(nodes) == 0 {
		return fmt.Errorf("start drag: no nodes")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Active() {
		return ErrAlreadyDragging
	}
	s.dragNodes = append([]tree.DragNode(nil), nodes...)
	s.target = ""
	s.state = Dragging
	return nil
}

// Over moves the drag onto targetID. open tells whether the target is
// already expanded; collapsed targets get a pending expand.
func (s *Session[T]) Over(targetID string, open bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.Active() {
		return ErrNotDragging
	}
	if targetID == s.target && s.state != Dragging {
		return nil
	}
	if s.target != "" {
		s.hover.Leave(s.target)
	}
	s.target = targetID
	if open {
		s.state = Hovering
		s.hover.Enter(targetID, true)
		return nil
	}
	s.state = ExpandPending
	s.hover.Enter(targetID, false)
	return nil
}

// Out ends the hover over the current target.
func (s *Session[T]) Out() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.Active() {
		return ErrNotDragging
	}
	if s.target != "" {
		s.hover.Leave(s.target)
	}
	s.target = ""
	s.state = Dragging
	return nil
}

// Drop ends the drag into parentID at index and returns the move event for
// the tree. The target is only recorded; gating is the caller's job.
func (s *Session[T]) Drop(parentID string, index int) (tree.MoveEvent[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.Active() {
		return tree.MoveEvent[T]{}, ErrNotDragging
	}
	s.cancelHoverLocked()
	s.state = Dropped
	return tree.MoveEvent[T]{
		DragIDs:   dragIDs(s.dragNodes),
		DragNodes: append([]tree.DragNode(nil), s.dragNodes...),
		ParentID:  parentID,
		Index:     index,
	}, nil
}

// Cancel abandons the drag. Cancelling an inactive session is a no-op.
func (s *Session[T]) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.Active() {
		return
	}
	s.cancelHoverLocked()
	s.state = Cancelled
}

// Reset returns a finished session to Idle.
func (s *Session[T]) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Active() {
		s.cancelHoverLocked()
	}
	s.state = Idle
	s.dragNodes = nil
	s.target = ""
}

// Close cancels the drag and all pending expands for good.
func (s *Session[T]) Close() {
	s.Cancel()
	s.hover.Stop()
}

func (s *Session[T]) cancelHoverLocked() {
	if s.target != "" {
		s.hover.Leave(s.target)
	}
	s.target = ""
}

func (s *Session[T]) expanded(id string) {
	s.mu.Lock()
	if s.state != ExpandPending || s.target != id {
		s.mu.Unlock()
		return
	}
	s.state = Expanded
	s.mu.Unlock()

	if s.onExpand != nil {
		s.onExpand(id)
	}
}

func dragIDs(nodes []tree.DragNode) []string {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids
}
