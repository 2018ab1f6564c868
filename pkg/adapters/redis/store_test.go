package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/skald-lang/skald/pkg/adapters/redis"
	"github.com/skald-lang/skald/pkg/engine"
	"github.com/skald-lang/skald/pkg/ports"
)

func testClient(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	return mr, backend.NewClient(&backend.Options{
		Addr: mr.Addr(),
	})
}

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

func TestRedisStore_Contract(t *testing.T) {
	_, client := testClient(t)

	store := redis.NewFromClient(client)
	ports.RunSnapshotStoreContract(t, store)
}

func TestRedisStore_TTL_Expiration(t *testing.T) {
	mr, client := testClient(t)

	store := redis.NewFromClient(client, redis.WithTTL(1*time.Second))
	ctx := context.Background()
	sessionID := "session-ttl"

	err := store.Save(ctx, sessionID, sampleSnapshot())
	assert.NoError(t, err)

	sessions, err := store.List(ctx)
	assert.NoError(t, err)
	assert.Contains(t, sessions, sessionID)

	// Expire the session document inside miniredis.
	mr.FastForward(2 * time.Second)

	_, err = store.Load(ctx, sessionID)
	assert.ErrorIs(t, err, ports.ErrSnapshotNotFound)

	// Index pruning compares against time.Now(), which FastForward
	// does not advance, so wait out the real TTL before listing.
	time.Sleep(1200 * time.Millisecond)

	sessions, err = store.List(ctx)
	assert.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestRedisStore_Prefix(t *testing.T) {
	mr, client := testClient(t)

	store := redis.NewFromClient(client, redis.WithPrefix("custom:app:"))
	ctx := context.Background()
	sessionID := "my-session"

	err := store.Save(ctx, sessionID, sampleSnapshot())
	assert.NoError(t, err)

	assert.True(t, mr.Exists("custom:app:my-session"), "Expected key with custom prefix to exist")
	assert.True(t, mr.Exists("custom:app:index"), "Expected index with custom prefix to exist")

	list, err := store.List(ctx)
	assert.NoError(t, err)
	assert.Contains(t, list, sessionID)
}
