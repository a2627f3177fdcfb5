// Package remote defines the document-store contract the reconcilers sync against,
// plus the tree helpers shared by the in-process and file-backed implementations.
package remote

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rohanthewiz/serr"
)

// ErrNotFound is returned by adapters that distinguish a missing document from an empty one.
var ErrNotFound = errors.New("remote document not found")

// ErrClosed is returned once a store has been closed.
var ErrClosed = errors.New("remote store closed")

// Store is a path-addressed JSON document tree.
// Paths are slash separated, e.g. "sharedNotes/abc/activeUsers/u1".
type Store interface {
	// Read returns the value at path. A missing value is a Snapshot with Exists false, not an error.
	Read(ctx context.Context, path string) (Snapshot, error)
	// Set replaces the value at path. A nil value deletes it.
	Set(ctx context.Context, path string, value any) error
	// Update writes each key of partial below path. Keys may themselves be nested paths ("a/b").
	Update(ctx context.Context, path string, partial map[string]any) error
	// Subscribe calls onChange with the current value, then after every write touching path.
	Subscribe(ctx context.Context, path string, onChange func(Snapshot)) (unsubscribe func(), err error)
	// OnDisconnectRemove asks the store to delete path when this client goes away.
	OnDisconnectRemove(ctx context.Context, path string) error
	Close() error
}

// Snapshot is the value at a path at some moment.
type Snapshot struct {
	Path   string          `json:"path"`
	Exists bool            `json:"exists"`
	Raw    json.RawMessage `json:"value,omitempty"`
}

// Decode unmarshals the snapshot into v. Decoding a missing value is an error.
func (s Snapshot) Decode(v any) error {
	if !s.Exists {
		return ErrNotFound
	}
	if err := json.Unmarshal(s.Raw, v); err != nil {
		return serr.Wrap(err, "failed to decode "+s.Path)
	}
	return nil
}

// NewSnapshot builds a snapshot from a generic tree value (nil means missing).
func NewSnapshot(path string, value any) (Snapshot, error) {
	if value == nil {
		return Snapshot{Path: path}, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return Snapshot{}, serr.Wrap(err, "failed to encode "+path)
	}
	return Snapshot{Path: path, Exists: true, Raw: raw}, nil
}

// Remove deletes the value at path.
func Remove(ctx context.Context, s Store, path string) error {
	return s.Set(ctx, path, nil)
}

// ReadInto reads path and decodes it into v, reporting whether the value existed.
func ReadInto(ctx context.Context, s Store, path string, v any) (bool, error) {
	snap, err := s.Read(ctx, path)
	if err != nil {
		return false, err
	}
	if !snap.Exists {
		return false, nil
	}
	return true, snap.Decode(v)
}
