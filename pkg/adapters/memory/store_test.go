package memory_test

import (
	"testing"

	"github.com/skald-lang/skald/pkg/adapters/memory"
	"github.com/skald-lang/skald/pkg/ports"
)

func TestMemoryStore_Contract(t *testing.T) {
	store := memory.NewStore()
	ports.RunSnapshotStoreContract(t, store)
}
