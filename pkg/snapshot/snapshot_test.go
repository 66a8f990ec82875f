package snapshot

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/reflow-dev/reflow/pkg/model"
)

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()

	if err := store.Save(ctx, "first", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("save: %v", err)
	}

	data, err := store.Load(ctx, "first")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(data) != `{"a":1}` {
		t.Errorf("unexpected data: %s", data)
	}

	names, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(names) != 1 || names[0] != "first" {
		t.Errorf("unexpected names: %v", names)
	}
}

func TestFileStoreNotFound(t *testing.T) {
	store, _ := NewFileStore(t.TempDir())

	_, err := store.Load(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFileStoreRejectsBadNames(t *testing.T) {
	store, _ := NewFileStore(t.TempDir())
	ctx := context.Background()

	for _, name := range []string{"", "../escape", "a/b", `a\b`} {
		if err := store.Save(ctx, name, nil); err == nil {
			t.Errorf("name %q should be rejected", name)
		}
	}
}

func TestSaveAndRestoreModel(t *testing.T) {
	store, _ := NewFileStore(t.TempDir())
	ctx := context.Background()

	m := model.New(map[string]any{
		"user": map[string]any{"name": "ada"},
	})

	if err := Save(ctx, store, "before", m); err != nil {
		t.Fatalf("save: %v", err)
	}

	_ = m.Set("user.name", "lin")

	var got []any
	w, err := m.Watch("user.name", func(v any) { got = append(got, v) })
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer w.Dispose()

	if err := Restore(ctx, store, "before", m); err != nil {
		t.Fatalf("restore: %v", err)
	}

	v, _ := m.Get("user.name")
	if v != "ada" {
		t.Errorf("expected restored name ada, got %v", v)
	}

	// Restore goes through tracked writes, so the watcher fired.
	if len(got) == 0 || got[len(got)-1] != "ada" {
		t.Errorf("watcher should observe restored value, got %v", got)
	}
}

// fakeS3 is an in-memory s3API implementation.
type fakeS3 struct {
	objects map[string][]byte
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	out := &s3.ListObjectsV2Output{}
	for key := range f.objects {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(key)})
	}
	return out, nil
}

func TestS3StoreRoundTrip(t *testing.T) {
	fake := newFakeS3()
	store := newS3Store(fake, "bucket", "snapshots/")
	ctx := context.Background()

	if err := store.Save(ctx, "state", []byte(`{"n":1}`)); err != nil {
		t.Fatalf("save: %v", err)
	}

	data, err := store.Load(ctx, "state")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(data) != `{"n":1}` {
		t.Errorf("unexpected data: %s", data)
	}

	names, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(names) != 1 || names[0] != "state" {
		t.Errorf("unexpected names: %v", names)
	}
}

func TestS3StoreNotFound(t *testing.T) {
	store := newS3Store(newFakeS3(), "bucket", "")

	_, err := store.Load(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
