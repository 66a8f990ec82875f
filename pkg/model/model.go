// Package model wraps the reflow core with the surface an embedding
// application talks to: path reads and writes, watch bindings, a
// change feed, snapshots, and YAML loading.
package model

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/reflow-dev/reflow/pkg/reflow"
)

// Model owns one tracked data tree.
type Model struct {
	tree   *reflow.Tree
	logger *slog.Logger

	// subs are change-feed subscribers, keyed for cancellation.
	subs   map[uint64]func(reflow.Change)
	nextID uint64
	subsMu sync.RWMutex
}

// Option configures a Model.
type Option func(*options)

type options struct {
	logger      *slog.Logger
	updateLimit int
}

// WithLogger sets the model's logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithUpdateLimit caps watcher updates per write; see
// reflow.WithUpdateLimit.
func WithUpdateLimit(n int) Option {
	return func(o *options) {
		o.updateLimit = n
	}
}

// New converts data into a tracked model. The data map is converted
// once, up front; it is not retained.
func New(data map[string]any, opts ...Option) *Model {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	m := &Model{
		logger: o.logger,
		subs:   make(map[uint64]func(reflow.Change)),
	}

	treeOpts := []reflow.Option{
		reflow.WithLogger(o.logger),
		reflow.WithOnChange(m.dispatch),
	}
	if o.updateLimit > 0 {
		treeOpts = append(treeOpts, reflow.WithUpdateLimit(o.updateLimit))
	}

	m.tree = reflow.Observe(data, treeOpts...)
	return m
}

// Tree exposes the underlying tracked tree.
func (m *Model) Tree() *reflow.Tree {
	return m.tree
}

// Get reads the value at a dotted path.
func (m *Model) Get(path string) (any, error) {
	return m.tree.Get(path)
}

// Set writes a value through the tracked accessor, notifying watchers
// and the change feed on change.
func (m *Model) Set(path string, v any) error {
	return m.tree.Set(path, v)
}

// Define adds a new tracked slot; see reflow.Tree.Define.
func (m *Model) Define(path string, v any) error {
	return m.tree.Define(path, v)
}

// Watch binds fn to a dotted path. The returned watcher is live until
// disposed; fn runs with the fresh value on every change to a slot the
// binding read.
func (m *Model) Watch(path string, fn func(any)) (*reflow.Watcher, error) {
	return reflow.NewWatcher(m.tree, path, fn)
}

// Subscribe registers a change-feed sink that receives every
// value-changing write to the model. The returned function cancels the
// subscription. Sinks run synchronously on the writer's goroutine.
func (m *Model) Subscribe(fn func(reflow.Change)) func() {
	m.subsMu.Lock()
	m.nextID++
	id := m.nextID
	m.subs[id] = fn
	m.subsMu.Unlock()

	return func() {
		m.subsMu.Lock()
		delete(m.subs, id)
		m.subsMu.Unlock()
	}
}

// dispatch fans one tree change out to the feed subscribers.
func (m *Model) dispatch(c reflow.Change) {
	m.subsMu.RLock()
	sinks := make([]func(reflow.Change), 0, len(m.subs))
	for _, fn := range m.subs {
		sinks = append(sinks, fn)
	}
	m.subsMu.RUnlock()

	for _, fn := range sinks {
		fn(c)
	}
}

// Snapshot returns a detached deep copy of the model's current data.
func (m *Model) Snapshot() map[string]any {
	return m.tree.Export()
}

// MarshalJSON encodes the current snapshot.
func (m *Model) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Snapshot())
}

// Restore replays data into the model through tracked writes: existing
// slots are Set (notifying watchers), new keys are Defined. Nested
// maps are applied leaf by leaf so unrelated slots keep their
// subscribers.
func (m *Model) Restore(data map[string]any) error {
	return m.apply("", data)
}

func (m *Model) apply(prefix string, data map[string]any) error {
	for k, v := range data {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}

		if sub, ok := v.(map[string]any); ok {
			// Descend only if the slot is currently a branch;
			// otherwise write the map wholesale.
			if cur, err := m.tree.Peek(path); err == nil {
				if _, isBranch := cur.(map[string]any); isBranch {
					if err := m.apply(path, sub); err != nil {
						return err
					}
					continue
				}
			}
		}

		err := m.tree.Set(path, v)
		if err == nil {
			continue
		}
		// Unknown slots become structural additions.
		if derr := m.tree.Define(path, v); derr != nil {
			return err
		}
	}
	return nil
}
