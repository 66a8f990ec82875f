// Package snapshot persists and restores model state. A snapshot is
// the model's JSON form; restoring replays it through tracked writes
// so watchers observe the restored values.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/reflow-dev/reflow/pkg/model"
)

// ErrNotFound is returned when the named snapshot does not exist.
var ErrNotFound = errors.New("snapshot: not found")

// Store persists named snapshots.
type Store interface {
	// Save persists data under name, overwriting any previous snapshot
	// with the same name.
	Save(ctx context.Context, name string, data []byte) error

	// Load returns the snapshot saved under name, or ErrNotFound.
	Load(ctx context.Context, name string) ([]byte, error)

	// List returns the names of all saved snapshots.
	List(ctx context.Context) ([]string, error)
}

// Save captures the model's current state into the store.
func Save(ctx context.Context, s Store, name string, m *model.Model) error {
	data, err := json.Marshal(m.Snapshot())
	if err != nil {
		return fmt.Errorf("snapshot: encode: %w", err)
	}
	return s.Save(ctx, name, data)
}

// Restore loads a named snapshot and replays it into the model through
// tracked writes.
func Restore(ctx context.Context, s Store, name string, m *model.Model) error {
	data, err := s.Load(ctx, name)
	if err != nil {
		return err
	}

	var state map[string]any
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("snapshot: decode %q: %w", name, err)
	}

	return m.Restore(state)
}
