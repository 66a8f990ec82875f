package reflow

import (
	"log/slog"
	"sync"
)

// Listener is anything that can be notified when a tracked slot
// changes. Watchers implement it.
type Listener interface {
	// Update tells the listener that a slot it subscribed to changed.
	// For watchers, this re-reads the bound path and runs the callback.
	Update()

	// ID returns a unique identifier for this listener, used to
	// deduplicate subscriptions.
	ID() uint64
}

// Dep is the subscriber set for one tracked slot. A slot's Dep is
// created when the slot is first converted and persists for the slot's
// lifetime, across value reassignment.
type Dep struct {
	id uint64

	// subs are the listeners subscribed to this slot.
	subs []Listener

	// subMu protects subs.
	subMu sync.RWMutex
}

// newDep creates an empty subscriber set.
func newDep() *Dep {
	return &Dep{id: nextID()}
}

// Subscribe adds a listener. Subscribing the same listener twice is a
// no-op, so a listener is never notified more than once per change.
func (d *Dep) Subscribe(l Listener) {
	if l == nil {
		return
	}

	d.subMu.Lock()
	defer d.subMu.Unlock()

	lid := l.ID()
	for _, existing := range d.subs {
		if existing.ID() == lid {
			return
		}
	}

	d.subs = append(d.subs, l)
}

// Unsubscribe removes a listener. Unknown listeners are ignored.
func (d *Dep) Unsubscribe(l Listener) {
	if l == nil {
		return
	}

	d.subMu.Lock()
	defer d.subMu.Unlock()

	lid := l.ID()
	for i, existing := range d.subs {
		if existing.ID() == lid {
			// Order is unspecified, so remove by swap.
			d.subs[i] = d.subs[len(d.subs)-1]
			d.subs = d.subs[:len(d.subs)-1]
			return
		}
	}
}

// Notify runs Update on every currently subscribed listener. It
// iterates a snapshot taken under the lock, so a listener that
// subscribes or unsubscribes mid-notify neither crashes the iteration
// nor gets revisited.
func (d *Dep) Notify() {
	d.subMu.RLock()
	subs := make([]Listener, len(d.subs))
	copy(subs, d.subs)
	d.subMu.RUnlock()

	ctx := currentTracking()
	for _, sub := range subs {
		if ctx.cascadeActive && ctx.cascadeBudget > 0 {
			if ctx.cascadeUsed >= ctx.cascadeBudget {
				if !ctx.cascadeTripped {
					ctx.cascadeTripped = true
					logger := ctx.cascadeLogger
					if logger == nil {
						logger = slog.Default()
					}
					logger.Warn("reflow: update limit reached, dropping notifications",
						"limit", ctx.cascadeBudget)
				}
				return
			}
			ctx.cascadeUsed++
		}
		sub.Update()
	}
}

// len reports the current subscriber count. Test helper.
func (d *Dep) len() int {
	d.subMu.RLock()
	defer d.subMu.RUnlock()
	return len(d.subs)
}
