package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skald-lang/skald/pkg/adapters/sqlite"
	"github.com/skald-lang/skald/pkg/engine"
	"github.com/skald-lang/skald/pkg/ports"
)

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_Contract(t *testing.T) {
	store := openStore(t)
	ports.RunSnapshotStoreContract(t, store)
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sessions.db")
	ctx := context.Background()

	snap := &engine.Snapshot{
		Schema:          engine.SchemaVersion,
		CompilerVersion: engine.DefaultCompilerVersion,
		RNGState:        7,
		Frames: []engine.SnapshotFrame{{
			ID:         1,
			Group:      "main/root",
			NodeIndex:  3,
			Scope:      map[string]engine.TaggedValue{},
			ScriptRoot: true,
		}},
		Boundary: &engine.SnapshotBoundary{
			Kind:      "input",
			Frame:     1,
			Node:      "in1",
			Prompt:    "Name?",
			TargetVar: "name",
		},
	}

	store, err := sqlite.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, "durable", snap))
	require.NoError(t, store.Close())

	reopened, err := sqlite.Open(dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	loaded, err := reopened.Load(ctx, "durable")
	require.NoError(t, err)
	assert.Equal(t, uint32(7), loaded.RNGState)
	require.NotNil(t, loaded.Boundary)
	assert.Equal(t, "input", loaded.Boundary.Kind)
	assert.Equal(t, "name", loaded.Boundary.TargetVar)
}

func TestSQLiteStoreInMemory(t *testing.T) {
	store, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, ports.ErrSnapshotNotFound)
}
