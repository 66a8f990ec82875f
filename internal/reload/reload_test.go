package reload

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/reflow-dev/reflow/pkg/model"
)

func TestReloadAppliesChangedValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.yaml")

	if err := os.WriteFile(path, []byte("title: hello\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	m, err := model.FromYAMLFile(path)
	if err != nil {
		t.Fatalf("load model: %v", err)
	}

	updated := make(chan any, 1)
	w, err := m.Watch("title", func(v any) {
		select {
		case updated <- v:
		default:
		}
	})
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer w.Dispose()

	rw, err := New(path, m, nil)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = rw.Run(ctx) }()

	// Give the watcher a moment to establish before the write.
	time.Sleep(50 * time.Millisecond)

	if err := os.WriteFile(path, []byte("title: changed\n"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	select {
	case v := <-updated:
		if v != "changed" {
			t.Errorf("expected changed, got %v", v)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestReloadIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.yaml")

	if err := os.WriteFile(path, []byte("title: hello\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	m, err := model.FromYAMLFile(path)
	if err != nil {
		t.Fatalf("load model: %v", err)
	}

	rw, err := New(path, m, nil)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = rw.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)

	// A sibling file changing must not disturb the model.
	if err := os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("title: nope\n"), 0o644); err != nil {
		t.Fatalf("write sibling: %v", err)
	}

	time.Sleep(300 * time.Millisecond)

	v, _ := m.Get("title")
	if v != "hello" {
		t.Errorf("sibling write should not affect the model, got %v", v)
	}
}
