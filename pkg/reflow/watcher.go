package reflow

import (
	"sync"
	"sync/atomic"
)

// Watcher is a live binding between a dotted path and a callback.
//
// Construction performs one recording read of the path; every slot
// read during that pass subscribes the watcher. That is the only time
// subscription happens: Update re-reads without recording, so the
// dependency set is fixed at construction. The watcher caches nothing;
// it recomputes by re-reading the tree.
type Watcher struct {
	id   uint64
	tree *Tree
	path string

	// fn receives the freshly read value on every update.
	fn func(any)

	// errFn receives update-time read failures (for example, an
	// ancestor rewritten from branch to leaf). nil means log and drop.
	errFn func(error)

	// sources are the deps this watcher joined, kept so Dispose can
	// leave them all.
	sources   []*Dep
	sourcesMu sync.Mutex

	disposed atomic.Bool
}

// WatcherOption configures a Watcher at construction.
type WatcherOption func(*Watcher)

// WithErrorHandler routes update-time read failures to fn instead of
// the tree's logger. Construction-time failures are returned from
// NewWatcher directly and never reach the handler.
func WithErrorHandler(fn func(error)) WatcherOption {
	return func(w *Watcher) {
		w.errFn = fn
	}
}

// NewWatcher binds path to fn. It performs the recording read
// immediately: the returned watcher is already subscribed to every
// slot that read touched. The callback does not run at construction;
// it runs on every subsequent change.
//
// If the path does not resolve, the error is returned and no
// subscriptions survive: slots joined before the failing segment are
// left again before returning.
func NewWatcher(tree *Tree, path string, fn func(any), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		id:   nextID(),
		tree: tree,
		path: path,
		fn:   fn,
	}
	for _, opt := range opts {
		opt(w)
	}

	err := withRecorder(w, func() error {
		_, err := tree.Get(path)
		return err
	})
	if err != nil {
		w.Dispose()
		return nil, err
	}

	return w, nil
}

// Update re-reads the bound path and invokes the callback with the
// fresh value. Implements Listener; the tree calls it from Notify.
// The re-read is plain, never recording, so updates cannot grow the
// dependency set.
func (w *Watcher) Update() {
	if w.disposed.Load() {
		return
	}

	v, err := w.tree.Get(w.path)
	if err != nil {
		if w.errFn != nil {
			w.errFn(err)
			return
		}
		w.tree.logger.Warn("reflow: watcher re-read failed",
			"path", w.path, "error", err)
		return
	}

	w.fn(v)
}

// ID returns the watcher's unique identifier. Implements Listener.
func (w *Watcher) ID() uint64 {
	return w.id
}

// Path returns the dotted path this watcher is bound to.
func (w *Watcher) Path() string {
	return w.path
}

// addSource records a dep this watcher joined. Called by the tracked
// read path during the recording pass. Implements recorder.
func (w *Watcher) addSource(d *Dep) {
	w.sourcesMu.Lock()
	defer w.sourcesMu.Unlock()
	for _, s := range w.sources {
		if s == d {
			return
		}
	}
	w.sources = append(w.sources, d)
}

// Dispose unsubscribes the watcher from every slot it joined. After
// Dispose the watcher never runs again. Safe to call more than once.
func (w *Watcher) Dispose() {
	if w.disposed.Swap(true) {
		return
	}

	w.sourcesMu.Lock()
	sources := w.sources
	w.sources = nil
	w.sourcesMu.Unlock()

	for _, d := range sources {
		d.Unsubscribe(w)
	}
}
