// Package reload re-syncs a running model from its YAML document when
// the file changes on disk.
package reload

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/reflow-dev/reflow/pkg/model"
)

// debounce absorbs the bursts of write events editors produce for a
// single save.
const debounce = 100 * time.Millisecond

// Watcher reloads a model file into a live model. Changed values flow
// through tracked writes, so watchers and live sessions see them.
type Watcher struct {
	path   string
	model  *model.Model
	logger *slog.Logger
	fsw    *fsnotify.Watcher
}

// New creates a watcher for the model file at path.
func New(path string, m *model.Model, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("reload: create watcher: %w", err)
	}

	// Watch the directory rather than the file: editors that replace
	// the file on save (rename + create) would otherwise detach the
	// watch.
	dir := filepath.Dir(path)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("reload: watch %s: %w", dir, err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		path:   path,
		model:  m,
		logger: logger.With("component", "reload"),
		fsw:    fsw,
	}, nil
}

// Run processes file events until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	var timer *time.Timer
	var timerC <-chan time.Time

	target, err := filepath.Abs(w.path)
	if err != nil {
		return fmt.Errorf("reload: resolve %s: %w", w.path, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			evPath, err := filepath.Abs(ev.Name)
			if err != nil || evPath != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
				timerC = timer.C
			} else {
				timer.Reset(debounce)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watch error", "error", err)

		case <-timerC:
			timer = nil
			timerC = nil
			w.reload()
		}
	}
}

// reload re-reads the file and replays it into the model.
func (w *Watcher) reload() {
	data, err := os.ReadFile(w.path)
	if err != nil {
		w.logger.Error("read model file failed", "path", w.path, "error", err)
		return
	}

	doc, err := model.ParseYAML(data)
	if err != nil {
		w.logger.Error("parse model file failed", "path", w.path, "error", err)
		return
	}

	if err := w.model.Restore(doc); err != nil {
		w.logger.Error("apply model file failed", "path", w.path, "error", err)
		return
	}

	w.logger.Info("model reloaded", "path", w.path)
}
