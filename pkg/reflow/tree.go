package reflow

import (
	"log/slog"
	"sync"
	"time"
)

// Change describes one value-changing write to a tracked slot.
// Delivered to WithOnChange sinks after the value is stored and before
// Set returns.
type Change struct {
	// Path is the dotted path of the written slot.
	Path string

	// Old is the value the slot held before the write. For branch
	// slots this is a detached copy of the previous subtree.
	Old any

	// New is the value that was written.
	New any

	// At is the wall-clock time of the write.
	At time.Time
}

// node is one tracked slot: either a leaf holding an opaque value or a
// branch holding child slots. The Dep is created with the node and
// survives value reassignment; the children do not — assigning a new
// map rebuilds the subtree with fresh slots.
type node struct {
	mu       sync.RWMutex
	dep      *Dep
	branch   bool
	value    any
	children map[string]*node
}

// Tree is a converted data object. Create one with Observe.
type Tree struct {
	root *node

	// sinks receive a Change for every value-changing write.
	sinks []func(Change)

	// updateLimit caps watcher updates per outermost write. 0 means
	// unlimited (the default, matching eager synchronous delivery).
	updateLimit int

	logger *slog.Logger
}

// Option configures a Tree at conversion time.
type Option func(*Tree)

// WithUpdateLimit caps the number of watcher updates a single
// outermost write may trigger. Updates past the cap are dropped with a
// logged warning. This is a guard against runaway write-in-callback
// cascades; it changes observable behavior and is off by default.
func WithUpdateLimit(n int) Option {
	return func(t *Tree) {
		t.updateLimit = n
	}
}

// WithOnChange registers a sink that receives every value-changing
// write. Sinks run synchronously on the writer's goroutine, before
// watcher notification, so nested writes from watcher callbacks are
// delivered after their cause.
func WithOnChange(fn func(Change)) Option {
	return func(t *Tree) {
		if fn != nil {
			t.sinks = append(t.sinks, fn)
		}
	}
}

// WithLogger sets the logger used for cascade warnings and watcher
// update failures. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(t *Tree) {
		if l != nil {
			t.logger = l
		}
	}
}

// Observe converts data into a tracked tree. Conversion is recursive
// and depth-first: every nested map[string]any becomes a branch whose
// keys are tracked slots. A nil map yields an empty tree. The input
// map itself is not retained; subsequent mutation of it is invisible.
func Observe(data map[string]any, opts ...Option) *Tree {
	t := &Tree{
		root:   newBranch(data),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// newBranch builds a branch node from a plain map. The root branch is
// built with a nil Dep by the caller replacing it; every other slot
// gets its own Dep.
func newBranch(data map[string]any) *node {
	n := &node{
		branch:   true,
		children: make(map[string]*node, len(data)),
	}
	for k, v := range data {
		n.children[k] = newNode(v)
	}
	return n
}

// newNode converts one value into a tracked slot. Maps become
// branches, everything else is an opaque leaf.
func newNode(v any) *node {
	if m, ok := v.(map[string]any); ok {
		child := newBranch(m)
		child.dep = newDep()
		return child
	}
	return &node{dep: newDep(), value: v}
}

// child returns the named child slot, or nil.
func (n *node) child(key string) *node {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if !n.branch {
		return nil
	}
	return n.children[key]
}

// isBranch reports whether the node currently holds a subtree.
func (n *node) isBranch() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.branch
}

// snapshot returns the node's current value: the leaf value, or a
// detached deep copy for branches. Branch copies are plain maps with
// no tracking attached.
func (n *node) snapshot() any {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.snapshotLocked()
}

func (n *node) snapshotLocked() any {
	if !n.branch {
		return n.value
	}
	m := make(map[string]any, len(n.children))
	for k, c := range n.children {
		m[k] = c.snapshot()
	}
	return m
}

// store writes v into the slot, returning whether the value changed
// and the previous value. Equal primitive writes short-circuit; map
// writes always count as changes and rebuild the subtree so the new
// subtree is fully tracked before anyone is notified.
func (n *node) store(v any) (changed bool, old any) {
	n.mu.Lock()
	defer n.mu.Unlock()

	old = n.snapshotLocked()

	if m, ok := v.(map[string]any); ok {
		fresh := newBranch(m)
		n.branch = true
		n.value = nil
		n.children = fresh.children
		return true, old
	}

	if !n.branch && equalValues(n.value, v) {
		return false, old
	}

	n.branch = false
	n.children = nil
	n.value = v
	return true, old
}

// addChild installs a new slot under a branch. Fails if the key is
// already tracked.
func (n *node) addChild(key string, child *node) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.branch {
		return ErrNotBranch
	}
	if _, ok := n.children[key]; ok {
		return ErrSlotExists
	}
	n.children[key] = child
	return nil
}

// track subscribes the goroutine's current recorder, if any, to the
// slot. Reads outside a recording pass subscribe nothing.
func track(n *node) {
	if n.dep == nil {
		return
	}
	if r := currentRecorder(); r != nil {
		n.dep.Subscribe(r)
		r.addSource(n.dep)
	}
}

// equalValues implements the write short-circuit: value equality for
// comparable primitives, nil-equals-nil, and nothing else. Values of
// other types (slices, structs, foreign maps) always count as changed,
// mirroring reference semantics for freshly constructed objects.
func equalValues(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case int:
		bv, ok := b.(int)
		return ok && av == bv
	case int8:
		bv, ok := b.(int8)
		return ok && av == bv
	case int16:
		bv, ok := b.(int16)
		return ok && av == bv
	case int32:
		bv, ok := b.(int32)
		return ok && av == bv
	case int64:
		bv, ok := b.(int64)
		return ok && av == bv
	case uint:
		bv, ok := b.(uint)
		return ok && av == bv
	case uint8:
		bv, ok := b.(uint8)
		return ok && av == bv
	case uint16:
		bv, ok := b.(uint16)
		return ok && av == bv
	case uint32:
		bv, ok := b.(uint32)
		return ok && av == bv
	case uint64:
		bv, ok := b.(uint64)
		return ok && av == bv
	case float32:
		bv, ok := b.(float32)
		return ok && av == bv
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	default:
		return false
	}
}

// notify delivers a slot's notifications, establishing the cascade
// budget when this goroutine is not already inside one. Nested writes
// from watcher callbacks share the outermost write's budget.
func (t *Tree) notify(n *node) {
	if n.dep == nil {
		return
	}

	ctx := currentTracking()
	if !ctx.cascadeActive {
		ctx.cascadeActive = true
		ctx.cascadeBudget = t.updateLimit
		ctx.cascadeUsed = 0
		ctx.cascadeTripped = false
		ctx.cascadeLogger = t.logger
		defer func() {
			ctx.cascadeActive = false
			ctx.cascadeLogger = nil
		}()
	}

	n.dep.Notify()
}

// emit delivers a change to every registered sink.
func (t *Tree) emit(c Change) {
	for _, sink := range t.sinks {
		sink(c)
	}
}
