// Package presence tracks which connections are online and under what
// display name.
package presence

import (
	"sync"

	"github.com/samber/lo"
)

// Entry is one online user as shown in the user list.
type Entry struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Registry maps connection ids to display names, ordered by first
// registration. It never broadcasts; callers publish List after mutating.
type Registry struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds id under username. Registering an id again replaces its
// username and keeps its position in the list.
func (r *Registry) Register(id, username string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, i, ok := lo.FindIndexOf(r.entries, func(e Entry) bool { return e.ID == id }); ok {
		r.entries[i].Username = username
		return
	}
	r.entries = append(r.entries, Entry{ID: id, Username: username})
}

// Remove drops id and reports whether it was present.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, i, ok := lo.FindIndexOf(r.entries, func(e Entry) bool { return e.ID == id })
	if !ok {
		return false
	}
	r.entries = append(r.entries[:i], r.entries[i+1:]...)
	return true
}

// List returns a snapshot of all entries in registration order.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append(make([]Entry, 0, len(r.entries)), r.entries...)
}

// Len returns the number of online users.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entries)
}
