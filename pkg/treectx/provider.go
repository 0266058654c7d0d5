// Package treectx scopes one tree store to one widget. A Provider owns the
// store, the host callbacks, the selection and pending drop target, the drag
// session, and the subscribers that re-render when any of it changes.
// Providers share nothing, so any number of trees can live side by side.
package treectx

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/suitenumerique/ui-kit/pkg/dnd"
	"github.com/suitenumerique/ui-kit/pkg/tree"
)

// DefaultConcurrency bounds the parallel loads of Prefetch and RefreshLoaded.
const DefaultConcurrency = 8

// subscriberBuffer is the channel capacity of each subscription.
const subscriberBuffer = 64

// ErrClosed is returned by operations on a closed Provider.
var ErrClosed = errors.New("provider closed")

// AfterMoveFunc lets the host persist a move. It receives the instruction and
// a copy of the new tree.
type AfterMoveFunc[T any] func(instr tree.MoveInstruction, root *tree.Node[T])

// EventKind classifies provider events.
type EventKind int

const (
	// EventChanged follows every store mutation.
	EventChanged EventKind = iota
	// EventMoved follows a successful Move.
	EventMoved
	// EventSelected follows Select.
	EventSelected
	// EventTarget follows SetPendingTarget.
	EventTarget
	// EventExpand asks the view to open a node after a drag rested on it.
	EventExpand
)

func (k EventKind) String() string {
	switch k {
	case EventChanged:
		return "changed"
	case EventMoved:
		return "moved"
	case EventSelected:
		return "selected"
	case EventTarget:
		return "target"
	case EventExpand:
		return "expand"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is delivered to subscribers.
type Event struct {
	Kind        EventKind
	ID          string
	Change      tree.Change
	Instruction *tree.MoveInstruction
}

type config[T any] struct {
	loadChildren tree.LoadChildrenFunc[T]
	pageLoader   tree.PageLoaderFunc[T]
	refresh      tree.RefreshFunc[T]
	afterMove    AfterMoveFunc[T]
	logger       zerolog.Logger
	policy       tree.LoadPolicy
	concurrency  int
	paged        bool
	hoverOpts    []dnd.HoverOption
}

// Option configures a Provider.
type Option[T any] func(*config[T])

// WithLoadChildren sets the callback that fetches a node's children.
func WithLoadChildren[T any](fn tree.LoadChildrenFunc[T]) Option[T] {
	return func(c *config[T]) { c.loadChildren = fn }
}

// WithPageLoader sets the callback that fetches further pages of children.
func WithPageLoader[T any](fn tree.PageLoaderFunc[T]) Option[T] {
	return func(c *config[T]) { c.pageLoader = fn }
}

// WithRefresh sets the callback that refetches a single node.
func WithRefresh[T any](fn tree.RefreshFunc[T]) Option[T] {
	return func(c *config[T]) { c.refresh = fn }
}

// WithPagedLoads makes LoadChildren and Prefetch fetch the first page
// through the page loader instead of the whole child list, leaving a
// view-more row when the source has more.
func WithPagedLoads[T any]() Option[T] {
	return func(c *config[T]) { c.paged = true }
}

// WithAfterMove sets the hook called after every applied move.
func WithAfterMove[T any](fn AfterMoveFunc[T]) Option[T] {
	return func(c *config[T]) { c.afterMove = fn }
}

// WithLogger sets the logger for the provider and its store.
func WithLogger[T any](l zerolog.Logger) Option[T] {
	return func(c *config[T]) { c.logger = l }
}

// WithLoadPolicy is passed through to the store.
func WithLoadPolicy[T any](p tree.LoadPolicy) Option[T] {
	return func(c *config[T]) { c.policy = p }
}

// WithConcurrency bounds parallel loads. Values below 1 are ignored.
func WithConcurrency[T any](n int) Option[T] {
	return func(c *config[T]) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithHoverDelay sets the hover-to-expand delay of the drag session.
func WithHoverDelay[T any](d time.Duration) Option[T] {
	return func(c *config[T]) { c.hoverOpts = append(c.hoverOpts, dnd.WithDelay(d)) }
}

// WithScheduler replaces the hover timer scheduler.
func WithScheduler[T any](s dnd.Scheduler) Option[T] {
	return func(c *config[T]) { c.hoverOpts = append(c.hoverOpts, dnd.WithScheduler(s)) }
}

// Provider is the per-tree state holder.
type Provider[T any] struct {
	store       *tree.Store[T]
	drag        *dnd.Session[T]
	afterMove   AfterMoveFunc[T]
	logger      zerolog.Logger
	concurrency int
	paged       bool

	mu       sync.Mutex
	selected string
	pending  string
	subs     map[int]chan Event
	nextSub  int
	closed   bool
}

// New creates a Provider around a fresh store rooted at rootID.
func New[T any](rootID string, opts ...Option[T]) *Provider[T] {
	cfg := config[T]{
		logger:      log.Logger,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	p := &Provider[T]{
		afterMove:   cfg.afterMove,
		logger:      cfg.logger.With().Str("tree", rootID).Logger(),
		concurrency: cfg.concurrency,
		paged:       cfg.paged,
		subs:        make(map[int]chan Event),
	}
	storeOpts := []tree.Option[T]{
		tree.WithLogger[T](p.logger),
		tree.WithLoadPolicy[T](cfg.policy),
		tree.WithOnChange[T](p.storeChanged),
	}
	if cfg.loadChildren != nil {
		storeOpts = append(storeOpts, tree.WithLoadChildren(cfg.loadChildren))
	}
	if cfg.pageLoader != nil {
		storeOpts = append(storeOpts, tree.WithPageLoader(cfg.pageLoader))
	}
	if cfg.refresh != nil {
		storeOpts = append(storeOpts, tree.WithRefresh(cfg.refresh))
	}
	p.store = tree.NewStore[T](rootID, storeOpts...)
	p.drag = dnd.NewSession[T](p.hoverExpanded, cfg.hoverOpts...)
	return p
}

// Store returns the provider's store.
func (p *Provider[T]) Store() *tree.Store[T] {
	return p.store
}

// Drag returns the provider's drag session.
func (p *Provider[T]) Drag() *dnd.Session[T] {
	return p.drag
}

// CanDrop reports whether dragIDs may be dropped into targetID.
func (p *Provider[T]) CanDrop(dragIDs []string, targetID string) bool {
	if targetID == "" {
		targetID = p.store.RootID()
	}
	target, ok := p.store.Get(targetID)
	if !ok {
		return false
	}
	return !tree.DisableDrop(p.store, dragIDs, target)
}

// Move gates, reconciles, and installs a drop, then calls the afterMove
// hook with the resulting tree.
func (p *Provider[T]) Move(ev tree.MoveEvent[T]) (*tree.MoveInstruction, error) {
	if p.isClosed() {
		return nil, ErrClosed
	}
	if !p.CanDrop(ev.DragIDs, ev.ParentID) {
		err := fmt.Errorf("move %v into %q: %w", ev.DragIDs, ev.ParentID, tree.ErrInvalidDropTarget)
		p.logger.Warn().Strs("drag", ev.DragIDs).Str("target", ev.ParentID).Msg("drop refused")
		return nil, err
	}

	var instr *tree.MoveInstruction
	var snapshot *tree.Node[T]
	err := p.store.Transform(func(root *tree.Node[T]) (*tree.Node[T], error) {
		i, next, err := tree.Reconcile(root, ev)
		if err != nil {
			return nil, err
		}
		instr = i
		snapshot = tree.Clone[T](next).(*tree.Node[T])
		return next, nil
	})
	if err != nil {
		return nil, err
	}

	p.logger.Debug().Str("instruction", instr.String()).Msg("move applied")
	if p.afterMove != nil {
		p.afterMove(*instr, snapshot)
	}
	p.publish(Event{Kind: EventMoved, ID: instr.SourceNodeID, Instruction: instr})
	return instr, nil
}

// LoadChildren fetches the children of id.
func (p *Provider[T]) LoadChildren(ctx context.Context, id string) error {
	if p.isClosed() {
		return ErrClosed
	}
	if p.paged {
		return p.store.LoadMore(ctx, id)
	}
	return p.store.HandleLoadChildren(ctx, id)
}

// LoadMore fetches the next page of children of id.
func (p *Provider[T]) LoadMore(ctx context.Context, id string) error {
	if p.isClosed() {
		return ErrClosed
	}
	return p.store.LoadMore(ctx, id)
}

// Refresh refetches a single node.
func (p *Provider[T]) Refresh(ctx context.Context, id string) error {
	if p.isClosed() {
		return ErrClosed
	}
	return p.store.RefreshNode(ctx, id)
}

// Prefetch loads the children of every id that still needs them, in
// parallel. Failures are collected, not fatal to the other loads.
func (p *Provider[T]) Prefetch(ctx context.Context, ids []string) error {
	var todo []string
	for _, id := range ids {
		n, ok := p.store.Get(id)
		if !ok {
			continue
		}
		if node := tree.AsNode(n); node != nil && node.NeedsChildren() {
			todo = append(todo, id)
		}
	}
	return p.fanOut(ctx, todo, p.LoadChildren)
}

// RefreshLoaded reloads the children of every loaded node so the tree
// catches up with changes at the source. Paginated nodes are skipped since
// a reload only returns the first page.
func (p *Provider[T]) RefreshLoaded(ctx context.Context) error {
	var ids []string
	root := p.store.Snapshot()
	if root.HasLoadedChildren && root.Pagination == nil {
		ids = append(ids, root.ID)
	}
	tree.Walk(root, func(n tree.TreeNode[T], _ string, _ int) bool {
		node := tree.AsNode(n)
		if node == nil || !node.HasLoadedChildren || !node.Expandable() {
			return false
		}
		if node.Pagination == nil {
			ids = append(ids, node.ID)
		}
		return true
	})
	return p.fanOut(ctx, ids, func(ctx context.Context, id string) error {
		if p.isClosed() {
			return ErrClosed
		}
		return p.store.ReloadChildren(ctx, id)
	})
}

// fanOut runs fn for each id with bounded parallelism and joins the errors.
func (p *Provider[T]) fanOut(ctx context.Context, ids []string, fn func(context.Context, string) error) error {
	if len(ids) == 0 {
		return nil
	}
	errs := make([]error, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			errs[i] = fn(gctx, id)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Select marks id as selected. An empty id clears the selection.
func (p *Provider[T]) Select(id string) error {
	if id != "" && !p.store.Contains(id) {
		return fmt.Errorf("select: %w: %q", tree.ErrNotFound, id)
	}
	p.mu.Lock()
	p.selected = id
	p.mu.Unlock()
	p.publish(Event{Kind: EventSelected, ID: id})
	return nil
}

// Selected returns the selected id, dropping it if the node is gone.
func (p *Provider[T]) Selected() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.selected != "" && !p.store.Contains(p.selected) {
		p.selected = ""
	}
	return p.selected
}

// SetPendingTarget records the drop target being hovered. An empty id
// clears it.
func (p *Provider[T]) SetPendingTarget(id string) {
	p.mu.Lock()
	p.pending = id
	p.mu.Unlock()
	p.publish(Event{Kind: EventTarget, ID: id})
}

// PendingTarget returns the drop target being hovered.
func (p *Provider[T]) PendingTarget() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending
}

// Subscribe returns a channel of events and a function that ends the
// subscription. Slow subscribers miss events rather than block the tree.
func (p *Provider[T]) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		close(ch)
		return ch, func() {}
	}
	id := p.nextSub
	p.nextSub++
	p.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			if c, ok := p.subs[id]; ok {
				delete(p.subs, id)
				close(c)
			}
		})
	}
}

// Close ends the drag session, stops pending hover expands, and closes
// every subscription. It is safe to call more than once.
func (p *Provider[T]) Close() {
	p.drag.Close()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for id, ch := range p.subs {
		delete(p.subs, id)
		close(ch)
	}
}

func (p *Provider[T]) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Provider[T]) storeChanged(c tree.Change) {
	p.publish(Event{Kind: EventChanged, ID: c.ID, Change: c})
}

func (p *Provider[T]) hoverExpanded(id string) {
	p.publish(Event{Kind: EventExpand, ID: id})
}

func (p *Provider[T]) publish(ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range p.subs {
		select {
		case ch <- ev:
		default:
			p.logger.Debug().Str("event", ev.Kind.String()).Str("id", ev.ID).Msg("subscriber full, event dropped")
		}
	}
}
