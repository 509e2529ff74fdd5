package chat

import (
	"sort"
	"sync"

	"hichat/internal/app/user"
)

// PresenceEntry is one connection's entry in the registry.
type PresenceEntry struct {
	ConnID string
	user.Identity
}

// Registry maps connection IDs to the identity shown in the online list.
// The same user may appear once per open connection.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]user.Identity
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]user.Identity)}
}

// Add inserts or replaces the entry for connID.
func (r *Registry) Add(connID string, id user.Identity) {
	r.mu.Lock()
	r.entries[connID] = id
	r.mu.Unlock()
}

// Remove deletes connID. It reports whether an entry existed.
func (r *Registry) Remove(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.entries[connID]
	delete(r.entries, connID)
	return ok
}

// Snapshot returns every entry ordered by display name, then connection ID.
func (r *Registry) Snapshot() []PresenceEntry {
	r.mu.RLock()
	out := make([]PresenceEntry, 0, len(r.entries))
	for connID, id := range r.entries {
		out = append(out, PresenceEntry{ConnID: connID, Identity: id})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Username != out[j].Username {
			return out[i].Username < out[j].Username
		}
		return out[i].ConnID < out[j].ConnID
	})
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
