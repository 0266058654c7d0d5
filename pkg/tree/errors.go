package tree

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrNotFound          = errors.New("node not found")
	ErrInvalidDropTarget = errors.New("invalid drop target")
	ErrUnknownVariant    = errors.New("unknown node variant")
	ErrRootImmutable     = errors.New("root node cannot be moved or deleted")
	ErrDuplicateID       = errors.New("duplicate node id")
	ErrNoCallback        = errors.New("callback not configured")
	// ErrNotANode is returned when the id names a Separator, Title, or ViewMore
	// where a data node is required.
	ErrNotANode = errors.New("not a data node")
	// ErrStaleLoad is returned when a newer request for the same node
	// superseded this one under LoadPolicyDropStale.
	ErrStaleLoad = errors.New("stale load result dropped")
)

// CallbackError reports a failed loadChildren, page loader, or refresh call.
// The store is left unchanged when one is returned.
type CallbackError struct {
	Op  string
	ID  string
	Err error
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
}

func (e *CallbackError) Unwrap() error { return e.Err }

func notFound(id string) error {
	return fmt.Errorf("%w: %q", ErrNotFound, id)
}
