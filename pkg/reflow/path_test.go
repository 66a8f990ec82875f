package reflow

import (
	"errors"
	"testing"
)

func testData() map[string]any {
	return map[string]any{
		"a": map[string]any{
			"b": 2,
		},
		"title": "hello",
	}
}

func TestGetLeaf(t *testing.T) {
	tree := Observe(testData())

	v, err := tree.Get("a.b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 2 {
		t.Errorf("expected 2, got %v", v)
	}
}

func TestGetBranchReturnsDetachedCopy(t *testing.T) {
	tree := Observe(testData())

	v, err := tree.Get("a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		t.Fatalf("expected map, got %T", v)
	}
	if m["b"] != 2 {
		t.Errorf("expected b=2 in branch copy, got %v", m["b"])
	}

	// Mutating the copy must not affect the tree.
	m["b"] = 99
	v, _ = tree.Get("a.b")
	if v != 2 {
		t.Errorf("branch copy should be detached, tree now holds %v", v)
	}
}

func TestGetMissingIntermediate(t *testing.T) {
	tree := Observe(testData())

	_, err := tree.Get("a.x.y")
	if err == nil {
		t.Fatal("expected error for missing intermediate")
	}
	if !errors.Is(err, ErrPathNotFound) {
		t.Errorf("expected ErrPathNotFound, got %v", err)
	}

	var pe *PathError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *PathError, got %T", err)
	}
	if pe.Segment != "x" {
		t.Errorf("expected failure at segment %q, got %q", "x", pe.Segment)
	}
}

func TestGetThroughLeaf(t *testing.T) {
	tree := Observe(testData())

	_, err := tree.Get("title.length")
	if !errors.Is(err, ErrNotBranch) {
		t.Errorf("expected ErrNotBranch, got %v", err)
	}
}

func TestGetBadPath(t *testing.T) {
	tree := Observe(testData())

	for _, path := range []string{"", "a..b", ".a", "a."} {
		if _, err := tree.Get(path); !errors.Is(err, ErrBadPath) {
			t.Errorf("path %q: expected ErrBadPath, got %v", path, err)
		}
	}
}

func TestSetThenGet(t *testing.T) {
	tree := Observe(testData())

	if err := tree.Set("a.b", 5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	v, err := tree.Get("a.b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 5 {
		t.Errorf("expected 5 after set, got %v", v)
	}
}

func TestSetMissingIntermediate(t *testing.T) {
	tree := Observe(testData())

	err := tree.Set("a.x.y", 1)
	if !errors.Is(err, ErrPathNotFound) {
		t.Errorf("expected ErrPathNotFound, got %v", err)
	}
}

func TestSetUntrackedKey(t *testing.T) {
	tree := Observe(testData())

	// The shape is fixed at conversion; writes to unknown keys raise
	// instead of silently skipping notification.
	err := tree.Set("a.c", 1)
	if !errors.Is(err, ErrNotTracked) {
		t.Errorf("expected ErrNotTracked, got %v", err)
	}
}

func TestDefine(t *testing.T) {
	tree := Observe(testData())

	if err := tree.Define("a.c", 7); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	v, err := tree.Get("a.c")
	if err != nil {
		t.Fatalf("defined slot should resolve: %v", err)
	}
	if v != 7 {
		t.Errorf("expected 7, got %v", v)
	}

	// Defined slots behave like converted ones.
	w := newTestListener()
	_ = withRecorder(w, func() error {
		_, err := tree.Get("a.c")
		return err
	})
	_ = tree.Set("a.c", 8)
	if w.updateCount() != 1 {
		t.Errorf("defined slot should notify, got %d updates", w.updateCount())
	}
}

func TestDefineExisting(t *testing.T) {
	tree := Observe(testData())

	err := tree.Define("a.b", 1)
	if !errors.Is(err, ErrSlotExists) {
		t.Errorf("expected ErrSlotExists, got %v", err)
	}
}

func TestDefineNotifiesBranchSubscribers(t *testing.T) {
	tree := Observe(testData())

	w := newTestListener()
	_ = withRecorder(w, func() error {
		_, err := tree.Get("a")
		return err
	})

	if err := tree.Define("a.c", 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.updateCount() != 1 {
		t.Errorf("branch subscriber should see structural change, got %d", w.updateCount())
	}
}

func TestPeekDoesNotSubscribe(t *testing.T) {
	tree := Observe(testData())

	w := newTestListener()
	_ = withRecorder(w, func() error {
		_, err := tree.Peek("a.b")
		return err
	})

	_ = tree.Set("a.b", 3)
	if w.updateCount() != 0 {
		t.Errorf("Peek should not subscribe, got %d updates", w.updateCount())
	}
}

func TestExport(t *testing.T) {
	tree := Observe(testData())
	_ = tree.Set("a.b", 5)

	out := tree.Export()
	inner, ok := out["a"].(map[string]any)
	if !ok {
		t.Fatalf("expected nested map, got %T", out["a"])
	}
	if inner["b"] != 5 {
		t.Errorf("expected exported b=5, got %v", inner["b"])
	}
	if out["title"] != "hello" {
		t.Errorf("expected title in export, got %v", out["title"])
	}
}
