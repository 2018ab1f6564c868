package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skald-lang/skald/pkg/adapters/file"
	"github.com/skald-lang/skald/pkg/engine"
	"github.com/skald-lang/skald/pkg/ports"
)

func sampleSnapshot() *engine.Snapshot {
	return &engine.Snapshot{
		Schema:          engine.SchemaVersion,
		CompilerVersion: engine.DefaultCompilerVersion,
		RNGState:        42,
		Frames: []engine.SnapshotFrame{{
			ID:         1,
			Group:      "main/root",
			NodeIndex:  1,
			Scope:      map[string]engine.TaggedValue{},
			ScriptRoot: true,
		}},
		Boundary: &engine.SnapshotBoundary{
			Kind:  "choice",
			Frame: 1,
			Node:  "c1",
			Items: []engine.ChoiceItem{{Index: 0, ID: "o1", Text: "Go"}},
		},
	}
}

func TestFileStore_Contract(t *testing.T) {
	store := file.New(t.TempDir())
	ports.RunSnapshotStoreContract(t, store)
}

func TestFileStoreDefaultsBasePath(t *testing.T) {
	store := file.New("")
	assert.Equal(t, filepath.Join(".skald", "sessions"), store.BasePath)
}

func TestFileStoreWritesOneDocumentPerSession(t *testing.T) {
	dir := t.TempDir()
	store := file.New(dir)
	ctx := context.Background()

	snap, err := store.Load(ctx, "ghost")
	assert.Nil(t, snap)
	assert.ErrorIs(t, err, ports.ErrSnapshotNotFound)

	require.NoError(t, store.Save(ctx, "alpha", sampleSnapshot()))
	require.NoError(t, store.Save(ctx, "beta", sampleSnapshot()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	var names []string
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	assert.ElementsMatch(t, []string{"alpha.json", "beta.json"}, names,
		"no temp files should remain after Save")
}

func TestFileStoreRejectsEmptySessionID(t *testing.T) {
	store := file.New(t.TempDir())
	ctx := context.Background()

	assert.Error(t, store.Save(ctx, "", sampleSnapshot()))
	_, err := store.Load(ctx, "")
	assert.Error(t, err)
	assert.Error(t, store.Delete(ctx, ""))
}
