package ports

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skald-lang/skald/pkg/engine"
)

// RunSnapshotStoreContract verifies that a SnapshotStore implementation
// adheres to the interface contract. Adapter test files call this with
// a ready-to-use store.
func RunSnapshotStoreContract(t *testing.T, store SnapshotStore) {
	ctx := context.Background()
	sessionID := "contract-session-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		snap := contractSnapshot("c1")

		err := store.Save(ctx, sessionID, snap)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err, "Load should not return error")
		assertSnapshotEqual(t, snap, loaded)
	})

	t.Run("Save replaces previous snapshot", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, sessionID, contractSnapshot("c1")))
		replacement := contractSnapshot("c2")
		require.NoError(t, store.Save(ctx, sessionID, replacement))

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assertSnapshotEqual(t, replacement, loaded)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+sessionID)
		assert.ErrorIs(t, err, ErrSnapshotNotFound)
	})

	t.Run("Stored snapshot is isolated from the caller", func(t *testing.T) {
		snap := contractSnapshot("c1")
		require.NoError(t, store.Save(ctx, sessionID, snap))

		snap.RNGState = 999
		snap.OnceState["main"] = append(snap.OnceState["main"], "text:mutated")

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assertSnapshotEqual(t, contractSnapshot("c1"), loaded)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, sessionID, contractSnapshot("c1")))

		err := store.Delete(ctx, sessionID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, sessionID)
		assert.ErrorIs(t, err, ErrSnapshotNotFound, "Load after Delete should return ErrSnapshotNotFound")

		assert.NoError(t, store.Delete(ctx, sessionID), "deleting twice should be a no-op")
	})

	t.Run("List", func(t *testing.T) {
		id1 := sessionID + "-1"
		id2 := sessionID + "-2"
		require.NoError(t, store.Save(ctx, id1, contractSnapshot("c1")))
		require.NoError(t, store.Save(ctx, id2, contractSnapshot("c1")))
		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		sessions, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, sessions, id1)
		assert.Contains(t, sessions, id2)
	})
}

// contractSnapshot is a small but representative snapshot: a root frame
// waiting on a choice, with once-state and a scope value.
func contractSnapshot(choiceNode string) *engine.Snapshot {
	return &engine.Snapshot{
		Schema:          engine.SchemaVersion,
		CompilerVersion: engine.DefaultCompilerVersion,
		RNGState:        1077,
		OnceState:       map[string][]string{"main": {"text:t1"}},
		Frames: []engine.SnapshotFrame{{
			ID:         1,
			Group:      "main/root",
			NodeIndex:  2,
			Scope:      map[string]engine.TaggedValue{},
			ScriptRoot: true,
		}},
		Boundary: &engine.SnapshotBoundary{
			Kind:   "choice",
			Frame:  1,
			Node:   choiceNode,
			Prompt: "Pick",
			Items:  []engine.ChoiceItem{{Index: 0, ID: "o1", Text: "Go"}},
		},
	}
}

func assertSnapshotEqual(t *testing.T, want, got *engine.Snapshot) {
	t.Helper()
	wantJSON, err := engine.EncodeSnapshot(want)
	require.NoError(t, err)
	gotJSON, err := engine.EncodeSnapshot(got)
	require.NoError(t, err)
	assert.JSONEq(t, string(wantJSON), string(gotJSON))
}
