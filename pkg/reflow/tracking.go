package reflow

import (
	"log/slog"
	"runtime"
	"sync"
)

// recorder is what the tracked read path subscribes while a recording
// pass is active. Watchers implement it; tests use local fakes.
type recorder interface {
	Listener
	addSource(d *Dep)
}

// trackingContext holds the reactive state for one goroutine.
// Each goroutine has its own context so a recording pass on one
// goroutine never captures reads performed on another.
type trackingContext struct {
	// rec is the watcher currently recording dependencies.
	// nil means no recording (reads don't create subscriptions).
	rec recorder

	// cascadeActive is true while an outermost write is delivering
	// notifications on this goroutine.
	cascadeActive bool

	// cascadeBudget is the maximum number of watcher updates the
	// current outermost write may trigger. 0 means unlimited.
	cascadeBudget int

	// cascadeUsed counts watcher updates delivered so far in the
	// current cascade.
	cascadeUsed int

	// cascadeTripped records that the budget warning already fired,
	// so a runaway cascade logs once rather than once per drop.
	cascadeTripped bool

	// cascadeLogger is the writing tree's logger for the duration of
	// the cascade.
	cascadeLogger *slog.Logger
}

// trackingContexts stores per-goroutine tracking contexts.
var trackingContexts sync.Map

// goroutineID extracts the current goroutine's ID from the runtime
// stack header ("goroutine <id> ..."). Implementation detail; never
// exposed.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)

	var id uint64
	for i := 10; i < n; i++ { // skip "goroutine "
		if buf[i] == ' ' {
			break
		}
		id = id*10 + uint64(buf[i]-'0')
	}
	return id
}

// currentTracking returns the tracking context for the calling
// goroutine, creating it on first use.
func currentTracking() *trackingContext {
	gid := goroutineID()

	if ctx, ok := trackingContexts.Load(gid); ok {
		return ctx.(*trackingContext)
	}

	ctx := &trackingContext{}
	trackingContexts.Store(gid, ctx)
	return ctx
}

// currentRecorder returns the recorder for the calling goroutine, or
// nil when no recording pass is active.
func currentRecorder() recorder {
	return currentTracking().rec
}

// withRecorder runs fn with r installed as the goroutine's recorder.
// The previous recorder is restored on every exit path, including a
// panic inside fn, so nested recording passes nest instead of
// clobbering each other and a failed pass never leaks the slot.
func withRecorder(r recorder, fn func() error) error {
	ctx := currentTracking()
	old := ctx.rec
	ctx.rec = r
	defer func() { ctx.rec = old }()
	return fn()
}
