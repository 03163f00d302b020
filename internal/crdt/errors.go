package crdt

import "errors"

// Sentinel errors for the shared-tree substrate.
var (
	// ErrDetached is returned when mutating a handle that is not attached
	// to a tree, or that was removed from its parent.
	ErrDetached = errors.New("handle is not attached to a tree")

	// ErrAttached is returned when inserting a handle that already lives
	// in a tree.
	ErrAttached = errors.New("handle is already attached to a tree")

	// ErrIndexOutOfRange is returned for array or text positions outside
	// the current length.
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrInvalidRange is returned when a range start exceeds its end.
	ErrInvalidRange = errors.New("invalid range")

	// ErrSplitCodepoint is returned when a text position falls inside a
	// multi-byte UTF-8 encoding unit.
	ErrSplitCodepoint = errors.New("position splits a UTF-8 encoding unit")
)
