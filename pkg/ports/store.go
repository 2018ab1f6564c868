package ports

import (
	"context"
	"errors"

	"github.com/skald-lang/skald/pkg/engine"
)

// ErrSnapshotNotFound is returned by Load when no snapshot exists for
// the session.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// SnapshotStore persists execution snapshots keyed by session ID.
// Implementations must treat the snapshot as immutable: mutating a
// previously saved snapshot must not affect what Load returns.
type SnapshotStore interface {
	// Save persists the snapshot for a session, replacing any previous one.
	Save(ctx context.Context, sessionID string, snap *engine.Snapshot) error

	// Load retrieves the snapshot for a session.
	// Returns ErrSnapshotNotFound if the session has no saved snapshot.
	Load(ctx context.Context, sessionID string) (*engine.Snapshot, error)

	// Delete removes the snapshot for a session. Deleting a session
	// that was never saved is not an error.
	Delete(ctx context.Context, sessionID string) error

	// List returns the session IDs with a saved snapshot.
	List(ctx context.Context) ([]string, error)
}
