package tree

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/suitenumerique/ui-kit/pkg/metrics"
)

// LoadChildrenFunc fetches the first page of children of node.
type LoadChildrenFunc[T any] func(ctx context.Context, node *Node[T]) ([]TreeNode[T], error)

// PageLoaderFunc fetches one page (1-based) of children of node.
type PageLoaderFunc[T any] func(ctx context.Context, node *Node[T], page int) (PaginatedChildren[T], error)

// RefreshFunc fetches fresh fields for a single node.
type RefreshFunc[T any] func(ctx context.Context, id string) (NodePatch[T], error)

// LoadPolicy decides what happens when two loads for the same node overlap.
type LoadPolicy int

const (
	// LoadPolicyLastWriterWins applies every completion in completion order,
	// so an older request finishing last overwrites a newer one.
	LoadPolicyLastWriterWins LoadPolicy = iota
	// LoadPolicyDropStale tags each request with a per-node generation and
	// drops completions that are not the latest request.
	LoadPolicyDropStale
)

// String returns the config name of the policy.
func (p LoadPolicy) String() string {
	if p == LoadPolicyDropStale {
		return "drop-stale"
	}
	return "last-writer-wins"
}

// ParseLoadPolicy maps a config value to a LoadPolicy. Empty means the default.
func ParseLoadPolicy(s string) (LoadPolicy, error) {
	switch s {
	case "", "last-writer-wins":
		return LoadPolicyLastWriterWins, nil
	case "drop-stale":
		return LoadPolicyDropStale, nil
	default:
		return LoadPolicyLastWriterWins, fmt.Errorf("unknown load policy %q", s)
	}
}

// NodePatch lists the fields UpdateNode should overwrite. Nil fields are left
// alone. Children are merged additively unless ReplaceChildren is set.
type NodePatch[T any] struct {
	Data              *T
	ChildrenCount     *int
	HasLoadedChildren *bool
	Children          []TreeNode[T]
	ReplaceChildren   bool
	CanDrop           *bool
	Pagination        *Pagination
}

// ChangeKind classifies a store mutation.
type ChangeKind int

const (
	ChangeAdd ChangeKind = iota
	ChangeUpdate
	ChangeDelete
	ChangeMove
	ChangeLoad
	ChangeReplace
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAdd:
		return "add"
	case ChangeUpdate:
		return "update"
	case ChangeDelete:
		return "delete"
	case ChangeMove:
		return "move"
	case ChangeLoad:
		return "load"
	case ChangeReplace:
		return "replace"
	default:
		return "unknown"
	}
}

// Change describes one applied mutation. ParentID is the parent the node
// lives under after the change (empty for deletes and replaces).
type Change struct {
	Kind     ChangeKind
	ID       string
	ParentID string
}

// Option configures a Store.
type Option[T any] func(*Store[T])

// WithLogger sets the logger used for NotFound and callback failures.
func WithLogger[T any](l zerolog.Logger) Option[T] {
	return func(s *Store[T]) {
		s.logger = l
	}
}

// WithLoadChildren sets the callback behind HandleLoadChildren.
func WithLoadChildren[T any](fn LoadChildrenFunc[T]) Option[T] {
	return func(s *Store[T]) {
		s.loadChildren = fn
	}
}

// WithPageLoader sets the callback behind LoadMore.
func WithPageLoader[T any](fn PageLoaderFunc[T]) Option[T] {
	return func(s *Store[T]) {
		s.pageLoader = fn
	}
}

// WithRefresh sets the callback behind RefreshNode.
func WithRefresh[T any](fn RefreshFunc[T]) Option[T] {
	return func(s *Store[T]) {
		s.refresh = fn
	}
}

// WithOnChange registers a hook called after every applied mutation, with
// the store lock released.
func WithOnChange[T any](fn func(Change)) Option[T] {
	return func(s *Store[T]) {
		s.onChange = fn
	}
}

// WithLoadPolicy sets how overlapping loads for one node are resolved.
func WithLoadPolicy[T any](p LoadPolicy) Option[T] {
	return func(s *Store[T]) {
		s.policy = p
	}
}

// Store owns one tree. The virtual root is created by NewStore and can
// neither be moved nor deleted. Every node is indexed by id and every
// non-root node has exactly one recorded parent, which always matches the
// Children slice that holds it as long as the tree is only changed through
// Store methods.
type Store[T any] struct {
	mu      sync.RWMutex
	rootID  string
	root    *Node[T]
	nodes   map[string]TreeNode[T]
	parents map[string]string
	gen     map[string]uint64

	loadChildren LoadChildrenFunc[T]
	pageLoader   PageLoaderFunc[T]
	refresh      RefreshFunc[T]
	onChange     func(Change)
	policy       LoadPolicy
	logger       zerolog.Logger
}

// NewStore creates a store holding only the virtual root rootID.
func NewStore[T any](rootID string, opts ...Option[T]) *Store[T] {
	root := &Node[T]{ID: rootID}
	s := &Store[T]{
		rootID:  rootID,
		root:    root,
		nodes:   map[string]TreeNode[T]{rootID: root},
		parents: make(map[string]string),
		gen:     make(map[string]uint64),
		logger:  log.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RootID returns the id of the virtual root.
func (s *Store[T]) RootID() string {
	return s.rootID
}

// Len returns the number of indexed nodes, the root included.
func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// Contains reports whether id is in the tree.
func (s *Store[T]) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.nodes[id]
	return ok
}

// Get returns a deep copy of the node with the given id.
func (s *Store[T]) Get(id string) (TreeNode[T], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil, false
	}
	return n.clone(), true
}

// ParentID returns the parent of id. The root has no parent.
func (s *Store[T]) ParentID(id string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.parents[id]
	return p, ok
}

// Children returns the ids of the children of id, in display order.
func (s *Store[T]) Children(id string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ChildIDs(AsNode(s.nodes[id]))
}

// Root returns a deep copy of the whole tree.
func (s *Store[T]) Root() *Node[T] {
	return s.Snapshot()
}

// Snapshot returns a deep copy of the whole tree. Callers may mutate it
// freely; hand it back through Replace to make it canonical.
func (s *Store[T]) Snapshot() *Node[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.root.deepCopy()
}

// IsDescendant reports whether id lies strictly below ancestorID.
func (s *Store[T]) IsDescendant(id, ancestorID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isDescendantLocked(id, ancestorID)
}

// Path returns the ids from the root down to id, both included.
func (s *Store[T]) Path(id string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.nodes[id]; !ok {
		return nil
	}
	var path []string
	for cur, ok := id, true; ok; cur, ok = s.parents[cur] {
		path = append([]string{cur}, path...)
	}
	return path
}

// AddChild appends node as the last child of parentID, or of the root when
// parentID is empty, and bumps the parent's ChildrenCount.
func (s *Store[T]) AddChild(parentID string, node TreeNode[T]) error {
	if node == nil {
		return fmt.Errorf("add child: nil node")
	}
	if parentID == "" {
		parentID = s.rootID
	}

	s.mu.Lock()
	parent, err := s.containerLocked(parentID)
	if err == nil {
		err = s.checkFreeLocked(node)
	}
	if err != nil {
		s.mu.Unlock()
		return s.fail("add", parentID, err)
	}
	insertChild(parent, node, -1)
	if countsAsChild(node) {
		parent.ChildrenCount++
	}
	s.registerLocked(node, parentID)
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeAdd, ID: node.NodeID(), ParentID: parentID})
	return nil
}

// UpdateNode shallow-merges patch into the node. New children are appended
// after the existing ones; a child whose id is already under this node is
// merged in place, so repeating the same children never duplicates them.
func (s *Store[T]) UpdateNode(id string, patch NodePatch[T]) error {
	s.mu.Lock()
	node, err := s.dataNodeLocked(id)
	if err != nil {
		s.mu.Unlock()
		return s.fail("update", id, err)
	}
	s.applyPatchLocked(node, patch)
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeUpdate, ID: id, ParentID: s.parentOf(id)})
	return nil
}

// DeleteNode removes the node and its whole subtree.
func (s *Store[T]) DeleteNode(id string) error {
	if id == s.rootID {
		return s.fail("delete", id, ErrRootImmutable)
	}

	s.mu.Lock()
	n, ok := s.nodes[id]
	if !ok {
		s.mu.Unlock()
		return s.fail("delete", id, notFound(id))
	}
	s.detachLocked(n)
	s.unregisterLocked(n)
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeDelete, ID: id})
	return nil
}

// MoveNode relocates id under newParentID (the root when empty) at newIndex,
// counted in the destination after the node has been removed. oldParentID is
// advisory: a mismatch with the recorded parent is logged and the recorded
// parent is used.
func (s *Store[T]) MoveNode(id, newParentID string, newIndex int, oldParentID string) error {
	if id == s.rootID {
		return s.fail("move", id, ErrRootImmutable)
	}
	if newParentID == "" {
		newParentID = s.rootID
	}

	s.mu.Lock()
	n, ok := s.nodes[id]
	if !ok {
		s.mu.Unlock()
		return s.fail("move", id, notFound(id))
	}
	dest, err := s.containerLocked(newParentID)
	if err != nil {
		s.mu.Unlock()
		if errors.Is(err, ErrNotANode) {
			err = fmt.Errorf("%w: %s", ErrInvalidDropTarget, err)
		}
		return s.fail("move", id, err)
	}
	if newParentID == id || s.isDescendantLocked(newParentID, id) {
		s.mu.Unlock()
		return s.fail("move", id, fmt.Errorf("%w: %q is inside %q", ErrInvalidDropTarget, newParentID, id))
	}
	if actual := s.parents[id]; oldParentID != "" && oldParentID != actual {
		s.logger.Warn().Str("op", "move").Str("id", id).
			Str("old_parent", oldParentID).Str("actual_parent", actual).
			Msg("stale old parent, using recorded parent")
	}

	s.detachLocked(n)
	insertChild(dest, n, newIndex)
	if countsAsChild(n) {
		dest.ChildrenCount++
	}
	s.parents[id] = newParentID
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeMove, ID: id, ParentID: newParentID})
	return nil
}

// RefreshNode asks the refresh callback for fresh fields and applies them
// with UpdateNode. A failing callback leaves the node untouched.
func (s *Store[T]) RefreshNode(ctx context.Context, id string) error {
	s.mu.RLock()
	_, ok := s.nodes[id]
	refresh := s.refresh
	s.mu.RUnlock()
	if !ok {
		return s.fail("refresh", id, notFound(id))
	}
	if refresh == nil {
		return s.fail("refresh", id, ErrNoCallback)
	}

	done := metrics.Timer(metrics.Refresh)
	patch, err := refresh(ctx, id)
	done()
	if err != nil {
		return s.fail("refresh", id, &CallbackError{Op: "refresh", ID: id, Err: err})
	}
	return s.UpdateNode(id, patch)
}

// HandleLoadChildren fetches the children of id through the loadChildren
// callback, marks the node loaded, sets ChildrenCount to the number of
// children returned, and merges them like UpdateNode does. Overlapping calls
// for the same id are not deduplicated.
func (s *Store[T]) HandleLoadChildren(ctx context.Context, id string) error {
	return s.load(ctx, "load", id, false)
}

// ReloadChildren is HandleLoadChildren for a node whose children may have
// changed at the source: loaded children missing from the result are
// dropped along with their subtrees, the others keep theirs.
func (s *Store[T]) ReloadChildren(ctx context.Context, id string) error {
	return s.load(ctx, "reload", id, true)
}

func (s *Store[T]) load(ctx context.Context, op, id string, prune bool) error {
	s.mu.Lock()
	node, err := s.dataNodeLocked(id)
	if err == nil && s.loadChildren == nil {
		err = ErrNoCallback
	}
	if err != nil {
		s.mu.Unlock()
		return s.fail(op, id, err)
	}
	req := node.deepCopy()
	gen := s.bumpGenLocked(id)
	loadChildren := s.loadChildren
	s.mu.Unlock()

	done := metrics.Timer(metrics.LoadChildren)
	children, err := loadChildren(ctx, req)
	done()
	if err != nil {
		return s.fail(op, id, &CallbackError{Op: "loadChildren", ID: id, Err: err})
	}

	s.mu.Lock()
	node, err = s.landingLocked(id, gen)
	if err != nil {
		s.mu.Unlock()
		return s.fail(op, id, err)
	}
	node.HasLoadedChildren = true
	node.ChildrenCount = countChildren(children)
	if prune {
		s.pruneChildrenLocked(node, children)
	}
	s.mergeChildrenLocked(node, children)
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeLoad, ID: id, ParentID: s.parentOf(id)})
	return nil
}

// LoadMore fetches the next page of children of id. It keeps exactly one
// trailing ViewMore row under the node while the server reports more pages.
// It is a no-op once the last page has been loaded.
func (s *Store[T]) LoadMore(ctx context.Context, id string) error {
	s.mu.Lock()
	node, err := s.dataNodeLocked(id)
	if err == nil && s.pageLoader == nil {
		err = ErrNoCallback
	}
	if err != nil {
		s.mu.Unlock()
		return s.fail("load-more", id, err)
	}
	page := 1
	if node.Pagination != nil {
		if !node.Pagination.HasMore {
			s.mu.Unlock()
			return nil
		}
		page = node.Pagination.Page + 1
	}
	req := node.deepCopy()
	gen := s.bumpGenLocked(id)
	pageLoader := s.pageLoader
	s.mu.Unlock()

	done := metrics.Timer(metrics.LoadMore)
	res, err := pageLoader(ctx, req, page)
	done()
	if err != nil {
		return s.fail("load-more", id, &CallbackError{Op: "loadPage", ID: id, Err: err})
	}

	s.mu.Lock()
	node, err = s.landingLocked(id, gen)
	if err != nil {
		s.mu.Unlock()
		return s.fail("load-more", id, err)
	}
	if i := node.childIndex(ViewMoreID(id)); i >= 0 {
		s.unregisterLocked(node.Children[i])
		node.Children = append(node.Children[:i], node.Children[i+1:]...)
	}
	s.mergeChildrenLocked(node, res.Children)

	p := res.Pagination
	p.Page = page
	node.Pagination = &p
	node.HasLoadedChildren = true
	if p.TotalCount > 0 {
		node.ChildrenCount = p.TotalCount
	} else {
		node.ChildrenCount = countChildren(node.Children)
	}
	if p.HasMore {
		more := &ViewMore[T]{ID: ViewMoreID(id), ParentID: id}
		node.Children = append(node.Children, more)
		s.registerLocked(more, id)
	}
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeLoad, ID: id, ParentID: s.parentOf(id)})
	return nil
}

// Replace installs root as the new canonical tree, dropping the previous
// one entirely. root must carry the store's root id and unique ids.
func (s *Store[T]) Replace(root *Node[T]) error {
	if root == nil || root.ID != s.rootID {
		return s.fail("replace", s.rootID, fmt.Errorf("replacement root must have id %q", s.rootID))
	}
	nodes := map[string]TreeNode[T]{root.ID: root}
	parents := make(map[string]string)
	if err := indexSubtree(root, nodes, parents); err != nil {
		return s.fail("replace", s.rootID, err)
	}

	s.mu.Lock()
	s.root = root
	s.nodes = nodes
	s.parents = parents
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeReplace, ID: s.rootID})
	return nil
}

// Transform runs fn on a deep copy of the tree while holding the store lock
// and installs the returned tree like Replace does. Nothing can change the
// store between the copy and the install. fn must not call the store.
func (s *Store[T]) Transform(fn func(root *Node[T]) (*Node[T], error)) error {
	s.mu.Lock()
	next, err := fn(s.root.deepCopy())
	if err == nil && (next == nil || next.ID != s.rootID) {
		err = fmt.Errorf("transformed root must have id %q", s.rootID)
	}
	nodes := map[string]TreeNode[T]{}
	parents := make(map[string]string)
	if err == nil {
		nodes[next.ID] = next
		err = indexSubtree(next, nodes, parents)
	}
	if err != nil {
		s.mu.Unlock()
		return s.fail("transform", s.rootID, err)
	}
	s.root = next
	s.nodes = nodes
	s.parents = parents
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeReplace, ID: s.rootID})
	return nil
}

// ---- internals; callers hold s.mu ----

func (s *Store[T]) fail(op, id string, err error) error {
	ev := s.logger.Error()
	if errors.Is(err, ErrStaleLoad) {
		ev = s.logger.Debug()
	}
	ev.Str("op", op).Str("id", id).Err(err).Msg("tree store")
	return fmt.Errorf("%s %q: %w", op, id, err)
}

func (s *Store[T]) notify(c Change) {
	if s.onChange != nil {
		s.onChange(c)
	}
}

func (s *Store[T]) parentOf(id string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.parents[id]
}

func (s *Store[T]) dataNodeLocked(id string) (*Node[T], error) {
	n, ok := s.nodes[id]
	if !ok {
		return nil, notFound(id)
	}
	node := AsNode(n)
	if node == nil {
		return nil, fmt.Errorf("%w: %q is a %s", ErrNotANode, id, n.Type())
	}
	return node, nil
}

// containerLocked resolves a node that may receive children.
func (s *Store[T]) containerLocked(id string) (*Node[T], error) {
	return s.dataNodeLocked(id)
}

// landingLocked re-resolves id after an async callback and applies the load
// policy.
func (s *Store[T]) landingLocked(id string, gen uint64) (*Node[T], error) {
	if s.policy == LoadPolicyDropStale && s.gen[id] != gen {
		return nil, ErrStaleLoad
	}
	return s.dataNodeLocked(id)
}

func (s *Store[T]) bumpGenLocked(id string) uint64 {
	s.gen[id]++
	return s.gen[id]
}

func (s *Store[T]) isDescendantLocked(id, ancestorID string) bool {
	for cur, ok := s.parents[id]; ok; cur, ok = s.parents[cur] {
		if cur == ancestorID {
			return true
		}
	}
	return false
}

// checkFreeLocked fails when any id of the subtree is already indexed or
// repeated inside the subtree itself.
func (s *Store[T]) checkFreeLocked(n TreeNode[T]) error {
	seen := make(map[string]bool)
	var walk func(TreeNode[T]) error
	walk = func(n TreeNode[T]) error {
		id := n.NodeID()
		if _, taken := s.nodes[id]; taken || seen[id] {
			return fmt.Errorf("%w: %q", ErrDuplicateID, id)
		}
		seen[id] = true
		if node := AsNode(n); node != nil {
			for _, c := range node.Children {
				if err := walk(c); err != nil {
					return err
				}
			}
		}
		return nil
	}
	return walk(n)
}

func (s *Store[T]) registerLocked(n TreeNode[T], parentID string) {
	s.nodes[n.NodeID()] = n
	s.parents[n.NodeID()] = parentID
	if node := AsNode(n); node != nil {
		for _, c := range node.Children {
			s.registerLocked(c, node.ID)
		}
	}
}

func (s *Store[T]) unregisterLocked(n TreeNode[T]) {
	delete(s.nodes, n.NodeID())
	delete(s.parents, n.NodeID())
	delete(s.gen, n.NodeID())
	if node := AsNode(n); node != nil {
		for _, c := range node.Children {
			s.unregisterLocked(c)
		}
	}
}

// detachLocked removes n from its parent's Children and count. The index is
// left untouched.
func (s *Store[T]) detachLocked(n TreeNode[T]) {
	parent := AsNode(s.nodes[s.parents[n.NodeID()]])
	if parent == nil {
		return
	}
	if i := parent.childIndex(n.NodeID()); i >= 0 {
		parent.Children = append(parent.Children[:i], parent.Children[i+1:]...)
	}
	if countsAsChild(n) && parent.ChildrenCount > 0 {
		parent.ChildrenCount--
	}
}

func (s *Store[T]) applyPatchLocked(node *Node[T], patch NodePatch[T]) {
	if patch.Data != nil {
		node.Data = *patch.Data
	}
	if patch.ChildrenCount != nil {
		node.ChildrenCount = *patch.ChildrenCount
	}
	if patch.HasLoadedChildren != nil {
		node.HasLoadedChildren = *patch.HasLoadedChildren
	}
	if patch.CanDrop != nil {
		v := *patch.CanDrop
		node.CanDrop = &v
	}
	if patch.Pagination != nil {
		p := *patch.Pagination
		node.Pagination = &p
	}
	if patch.ReplaceChildren {
		for _, c := range node.Children {
			s.unregisterLocked(c)
		}
		node.Children = nil
	}
	if patch.Children != nil {
		s.mergeChildrenLocked(node, patch.Children)
	}
}

// pruneChildrenLocked drops the children of node whose ids are not in keep.
func (s *Store[T]) pruneChildrenLocked(node *Node[T], keep []TreeNode[T]) {
	ids := make(map[string]bool, len(keep))
	for _, c := range keep {
		if c != nil {
			ids[c.NodeID()] = true
		}
	}
	kept := node.Children[:0]
	for _, c := range node.Children {
		if ids[c.NodeID()] {
			kept = append(kept, c)
			continue
		}
		s.unregisterLocked(c)
	}
	node.Children = kept
}

// mergeChildrenLocked appends incoming children to node. A child already
// under node is merged in place. A child whose id lives elsewhere in the tree
// is relocated here, unless that would put a node inside itself; any other
// id clash is skipped and logged so ids stay unique.
func (s *Store[T]) mergeChildrenLocked(node *Node[T], incoming []TreeNode[T]) {
	if node.Children == nil && len(incoming) > 0 {
		node.Children = make([]TreeNode[T], 0, len(incoming))
	}
	for _, c := range incoming {
		if c == nil {
			continue
		}
		id := c.NodeID()
		if i := node.childIndex(id); i >= 0 {
			s.mergeInPlaceLocked(node, i, c)
			continue
		}
		if existing, ok := s.nodes[id]; ok && id != s.rootID && id != node.ID && !s.isDescendantLocked(node.ID, id) {
			s.logger.Debug().Str("op", "merge").Str("id", id).
				Str("from", s.parents[id]).Str("to", node.ID).Msg("relocating child")
			s.detachLocked(existing)
			s.unregisterLocked(existing)
		}
		if err := s.checkFreeLocked(c); err != nil {
			s.logger.Warn().Str("op", "merge").Str("id", id).Str("parent", node.ID).
				Err(err).Msg("skipping child")
			continue
		}
		insertChild(node, c, -1)
		s.registerLocked(c, node.ID)
	}
}

// mergeInPlaceLocked refreshes an existing child with an incoming copy. Data
// nodes keep their loaded subtree unless the incoming copy brings children.
func (s *Store[T]) mergeInPlaceLocked(parent *Node[T], i int, incoming TreeNode[T]) {
	existing := parent.Children[i]
	oldNode, newNode := AsNode(existing), AsNode(incoming)
	if oldNode != nil && newNode != nil {
		oldNode.Data = newNode.Data
		oldNode.CanDrop = nil
		if newNode.CanDrop != nil {
			v := *newNode.CanDrop
			oldNode.CanDrop = &v
		}
		if !oldNode.HasLoadedChildren {
			oldNode.ChildrenCount = newNode.ChildrenCount
		}
		if len(newNode.Children) > 0 {
			s.mergeChildrenLocked(oldNode, newNode.Children)
		}
		return
	}
	s.unregisterLocked(existing)
	parent.Children[i] = incoming
	s.registerLocked(incoming, parent.ID)
}

// insertChild puts c at index i of parent's children (append when i is out
// of range) while keeping a trailing ViewMore row last.
func insertChild[T any](parent *Node[T], c TreeNode[T], i int) {
	limit := len(parent.Children)
	if limit > 0 && parent.Children[limit-1].Type() == NodeTypeViewMore && c.Type() != NodeTypeViewMore {
		limit--
	}
	if i < 0 || i > limit {
		i = limit
	}
	parent.Children = append(parent.Children, nil)
	copy(parent.Children[i+1:], parent.Children[i:])
	parent.Children[i] = c
}

func countsAsChild[T any](n TreeNode[T]) bool {
	return n.Type() != NodeTypeViewMore
}

func countChildren[T any](children []TreeNode[T]) int {
	count := 0
	for _, c := range children {
		if c != nil && countsAsChild(c) {
			count++
		}
	}
	return count
}

// indexSubtree records every descendant of root, failing on a repeated id.
func indexSubtree[T any](root *Node[T], nodes map[string]TreeNode[T], parents map[string]string) error {
	for _, c := range root.Children {
		if c == nil {
			return fmt.Errorf("nil child under %q", root.ID)
		}
		id := c.NodeID()
		if _, dup := nodes[id]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateID, id)
		}
		nodes[id] = c
		parents[id] = root.ID
		if node := AsNode(c); node != nil {
			if err := indexSubtree(node, nodes, parents); err != nil {
				return err
			}
		}
	}
	return nil
}
