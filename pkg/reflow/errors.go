package reflow

import (
	"errors"
	"fmt"
)

// Sentinel errors wrapped by PathError. Match with errors.Is.
var (
	// ErrPathNotFound means a path segment named a key the tree does
	// not have.
	ErrPathNotFound = errors.New("path not found")

	// ErrNotBranch means an intermediate path segment resolved to a
	// leaf value rather than a nested object.
	ErrNotBranch = errors.New("intermediate segment is not a nested object")

	// ErrNotTracked means a write targeted a slot that did not exist
	// when the object was converted. The tree's shape is fixed at
	// conversion; use Define to add slots.
	ErrNotTracked = errors.New("slot not tracked")

	// ErrSlotExists means Define targeted a key that is already a
	// tracked slot.
	ErrSlotExists = errors.New("slot already defined")

	// ErrBadPath means the dotted path itself is malformed (empty, or
	// containing an empty segment).
	ErrBadPath = errors.New("malformed path")
)

// PathError reports a dotted path that could not be resolved against
// the tracked tree. It wraps one of the sentinel errors above.
type PathError struct {
	// Path is the full dotted path that was being resolved.
	Path string

	// Segment is the segment at which resolution failed.
	Segment string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *PathError) Error() string {
	if e.Segment != "" {
		return fmt.Sprintf("reflow: %v at %q in path %q", e.Err, e.Segment, e.Path)
	}
	return fmt.Sprintf("reflow: %v: path %q", e.Err, e.Path)
}

// Unwrap returns the underlying sentinel for errors.Is support.
func (e *PathError) Unwrap() error {
	return e.Err
}

func pathErr(path, segment string, err error) *PathError {
	return &PathError{Path: path, Segment: segment, Err: err}
}
