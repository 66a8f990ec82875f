// Package reflow provides the reactive core for the Reflow runtime.
//
// The reactive system turns a plain nested data object into a tracked
// tree where reads record dependencies and writes notify everything
// that depended on them. Dependencies are collected automatically at
// runtime: reading a slot while a Watcher is recording subscribes that
// Watcher to the slot's changes.
//
// # Core Types
//
// Tree is a converted data object. Every slot of the original object
// gets a subscriber set (Dep) that persists for the slot's lifetime:
//
//	tree := reflow.Observe(map[string]any{"user": map[string]any{"name": "ada"}})
//	v, err := tree.Get("user.name") // Read (subscribes the recording watcher, if any)
//	err = tree.Set("user.name", "lin") // Write (notifies subscribers on change)
//
// Watcher is a live binding between a dotted path and a callback. Its
// construction performs one recording read; every slot touched by that
// read subscribes the watcher. Later writes to any of those slots
// re-read the path and invoke the callback with the fresh value:
//
//	w, err := reflow.NewWatcher(tree, "user.name", func(v any) {
//	    fmt.Println("name is now", v)
//	})
//	defer w.Dispose()
//
// Recording happens only during construction. A watcher's update
// re-reads without recording, so update-time reads never create new
// subscriptions.
//
// # Data Model
//
// Only map[string]any values are converted into branches; everything
// else (including slices) is stored as an opaque leaf value. Mutating
// a slice in place is invisible to the tree. The tree's shape is fixed
// at conversion: writing to a key that did not exist when the object
// was converted fails with a PathError rather than silently skipping
// notification. Structural additions go through Define.
//
// Writes short-circuit when the new value equals the old one (value
// equality for primitives; map assignments always count as changes).
// Assigning a nested map converts it recursively before subscribers
// are notified, so a newly attached subtree is never observable in a
// partially tracked state.
//
// # Notification
//
// Notification is synchronous and eager: a single write runs every
// subscribed watcher's callback before Set returns, with no batching
// or deduplication. A callback that writes tracked slots re-enters
// notification on the same stack; a callback that keeps writing new
// values to the same slot will loop forever. WithUpdateLimit installs
// an optional cap on the number of watcher updates one outermost write
// may trigger; updates past the cap are dropped with a logged warning.
//
// # Thread Safety
//
// Slots and subscriber sets are safe for concurrent use. The recording
// slot is per goroutine, so constructing a watcher on one goroutine
// never captures reads performed on another.
package reflow
