package reflow

import (
	"strings"
	"time"
)

// splitPath splits a dotted path into segments, rejecting empty paths
// and empty segments ("a..b").
func splitPath(path string) ([]string, error) {
	if path == "" {
		return nil, pathErr(path, "", ErrBadPath)
	}
	segs := strings.Split(path, ".")
	for _, seg := range segs {
		if seg == "" {
			return nil, pathErr(path, seg, ErrBadPath)
		}
	}
	return segs, nil
}

// walk resolves every segment but the last, performing tracked reads
// of the intermediate slots, and returns the parent branch plus the
// final segment name.
func (t *Tree) walk(path string) (parent *node, key string, err error) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, "", err
	}

	cur := t.root
	for _, seg := range segs[:len(segs)-1] {
		child := cur.child(seg)
		if child == nil {
			return nil, "", pathErr(path, seg, ErrPathNotFound)
		}
		track(child)
		if !child.isBranch() {
			return nil, "", pathErr(path, seg, ErrNotBranch)
		}
		cur = child
	}
	return cur, segs[len(segs)-1], nil
}

// Get resolves a dotted path and returns the slot's current value.
// Every slot read along the way — intermediates and the leaf — is a
// tracked read: if a watcher is recording on this goroutine, it
// subscribes to each of them. Branch values are returned as detached
// plain-map copies.
func (t *Tree) Get(path string) (any, error) {
	parent, key, err := t.walk(path)
	if err != nil {
		return nil, err
	}
	n := parent.child(key)
	if n == nil {
		return nil, pathErr(path, key, ErrPathNotFound)
	}
	track(n)
	return n.snapshot(), nil
}

// Peek returns the slot's current value without tracking any reads.
// Useful for rendering or inspection that must not subscribe.
func (t *Tree) Peek(path string) (any, error) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	cur := t.root
	for i, seg := range segs {
		child := cur.child(seg)
		if child == nil {
			return nil, pathErr(path, seg, ErrPathNotFound)
		}
		if i == len(segs)-1 {
			return child.snapshot(), nil
		}
		if !child.isBranch() {
			return nil, pathErr(path, seg, ErrNotBranch)
		}
		cur = child
	}
	return nil, pathErr(path, "", ErrPathNotFound)
}

// Set writes a value to a tracked slot. The write goes through the
// slot's accessor: an equal value short-circuits with no notification,
// a changed value is stored (nested maps are converted first, so the
// attached subtree is fully tracked before anyone runs), change sinks
// fire, and every subscriber of the slot is notified synchronously
// before Set returns.
//
// Writing to a key that was not present at conversion time fails with
// a PathError wrapping ErrNotTracked; use Define for structural
// additions.
func (t *Tree) Set(path string, v any) error {
	parent, key, err := t.walk(path)
	if err != nil {
		return err
	}
	n := parent.child(key)
	if n == nil {
		return pathErr(path, key, ErrNotTracked)
	}

	changed, old := n.store(v)
	if !changed {
		return nil
	}

	t.emit(Change{Path: path, Old: old, New: v, At: time.Now()})
	t.notify(n)
	return nil
}

// Define adds a new tracked slot to an existing branch. This is the
// explicit escape hatch for the fixed-shape rule: slots cannot appear
// implicitly through writes. The new slot gets a fresh subscriber set;
// subscribers of the enclosing branch are notified of the structural
// change. Fails if the key is already tracked.
func (t *Tree) Define(path string, v any) error {
	parent, key, err := t.walk(path)
	if err != nil {
		return err
	}

	if err := parent.addChild(key, newNode(v)); err != nil {
		return pathErr(path, key, err)
	}

	t.emit(Change{Path: path, Old: nil, New: v, At: time.Now()})
	t.notify(parent)
	return nil
}

// Export returns a detached deep copy of the whole tree as plain
// nested maps. The copy is untracked; reading it subscribes nothing.
func (t *Tree) Export() map[string]any {
	v := t.root.snapshot()
	m, ok := v.(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return m
}
