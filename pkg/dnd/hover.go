// Package dnd holds the drag-and-drop interaction state that sits between
// input handling and the tree engine: the per-drag session state machine
// and hover-to-expand scheduling.
package dnd

import (
	"sync"
	"time"
)

// DefaultHoverDelay is how long a drag must rest on a collapsed target
// before it expands.
const DefaultHoverDelay = 500 * time.Millisecond

// Timer is a scheduled task that can be cancelled.
type Timer interface {
	Stop() bool
}

// Scheduler runs fn once after d.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// HoverOption configures a HoverExpander.
type HoverOption func(*HoverExpander)

// WithDelay sets the hover delay.
func WithDelay(d time.Duration) HoverOption {
	return func(h *HoverExpander) {
		if d > 0 {
			h.delay = d
		}
	}
}

// WithScheduler replaces time.AfterFunc, mostly for tests.
func WithScheduler(s Scheduler) HoverOption {
	return func(h *HoverExpander) {
		if s != nil {
			h.sched = s
		}
	}
}

type pendingExpand struct {
	timer Timer
	seq   uint64
}

// HoverExpander keeps at most one pending expand per node. A new hover on a
// node replaces its pending expand, leaving the node cancels it, and Stop
// cancels all of them for good.
type HoverExpander struct {
	mu      sync.Mutex
	delay   time.Duration
	sched   Scheduler
	expand  func(id string)
	pending map[string]pendingExpand
	seq     uint64
	stopped bool
}

// NewHoverExpander returns an expander that calls expand(id) when a hover
// on id outlasts the delay.
func NewHoverExpander(expand func(id string), opts ...HoverOption) *HoverExpander {
	h := &HoverExpander{
		delay:   DefaultHoverDelay,
		sched:   realScheduler{},
		expand:  expand,
		pending: make(map[string]pendingExpand),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Delay returns the configured hover delay.
func (h *HoverExpander) Delay() time.Duration {
	return h.delay
}

// Enter records a hover over id. Targets that are already open never
// schedule, and any stale pending expand for id is cleared either way.
func (h *HoverExpander) Enter(id string, open bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cancelLocked(id)
	if h.stopped || open {
		return
	}
	h.seq++
	seq := h.seq
	t := h.sched.AfterFunc(h.delay, func() { h.fire(id, seq) })
	h.pending[id] = pendingExpand{timer: t, seq: seq}
}

// Leave cancels the pending expand of id, if any.
func (h *HoverExpander) Leave(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cancelLocked(id)
}

// Pending reports whether an expand of id is scheduled.
func (h *HoverExpander) Pending(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.pending[id]
	return ok
}

// PendingCount returns the number of scheduled expands.
func (h *HoverExpander) PendingCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pending)
}

// Stop cancels every pending expand. Later hovers are ignored.
func (h *HoverExpander) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped = true
	for id := range h.pending {
		h.cancelLocked(id)
	}
}

func (h *HoverExpander) cancelLocked(id string) {
	if p, ok := h.pending[id]; ok {
		p.timer.Stop()
		delete(h.pending, id)
	}
}

// fire runs on the scheduler's goroutine. A timer that lost the race with
// Stop or a newer hover finds a different seq and does nothing.
func (h *HoverExpander) fire(id string, seq uint64) {
	h.mu.Lock()
	p, ok := h.pending[id]
	if !ok || p.seq != seq || h.stopped {
		h.mu.Unlock()
		return
	}
	delete(h.pending, id)
	h.mu.Unlock()

	if h.expand != nil {
		h.expand(id)
	}
}
