package chat

import (
	"fmt"
	"testing"

	"hichat/internal/app/user"
)

func TestRegistryCountsConnectionsNotUsers(t *testing.T) {
	r := NewRegistry()

	const n, m = 7, 3
	for i := range n {
		// Every connection belongs to the same two users; duplicates are expected.
		r.Add(fmt.Sprintf("conn-%d", i), user.Identity{ID: fmt.Sprintf("u-%d", i%2), Username: fmt.Sprintf("user%d", i%2)})
	}
	for i := range m {
		r.Remove(fmt.Sprintf("conn-%d", i))
	}

	if r.Len() != n-m {
		t.Fatalf("Len = %d, want %d", r.Len(), n-m)
	}
	if got := len(r.Snapshot()); got != n-m {
		t.Fatalf("snapshot has %d entries, want %d", got, n-m)
	}
}

func TestRegistryUpsertAndRemoveUnknown(t *testing.T) {
	r := NewRegistry()
	r.Add("c1", user.Identity{ID: "u1", Username: "first"})
	r.Add("c1", user.Identity{ID: "u1", Username: "renamed"})

	snap := r.Snapshot()
	if len(snap) != 1 || snap[0].Username != "renamed" {
		t.Fatalf("upsert failed: %+v", snap)
	}

	if r.Remove("nope") {
		t.Fatal("Remove reported an unknown connection")
	}
	if !r.Remove("c1") || r.Len() != 0 {
		t.Fatal("Remove did not delete the entry")
	}
}

func TestRegistrySnapshotOrder(t *testing.T) {
	r := NewRegistry()
	r.Add("c3", user.Identity{ID: "u2", Username: "bob"})
	r.Add("c2", user.Identity{ID: "u1", Username: "alice"})
	r.Add("c1", user.Identity{ID: "u2", Username: "bob"})

	snap := r.Snapshot()
	want := []string{"c2", "c1", "c3"}
	for i, e := range snap {
		if e.ConnID != want[i] {
			t.Fatalf("snapshot[%d] = %s, want %s", i, e.ConnID, want[i])
		}
	}
}
