package upload

import (
	"sync"

	"github.com/google/uuid"
)

// Registry indexes in-flight upload batches by owning user so a cancel
// request can reach the right run. One active upload per user is tracked;
// a second concurrent upload from the same user replaces the registration
// (the system makes no ordering guarantee between simultaneous uploads).
type Registry struct {
	mu     sync.Mutex
	active map[uuid.UUID]*Batch
}

// NewRegistry creates an empty in-flight batch registry
func NewRegistry() *Registry {
	return &Registry{
		active: make(map[uuid.UUID]*Batch),
	}
}

// Register records the batch as the user's active upload
func (r *Registry) Register(b *Batch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[b.UserID] = b
}

// Deregister drops the registration once processing finishes, but only if the
// registered batch is still this one (a newer upload may have replaced it)
func (r *Registry) Deregister(b *Batch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.active[b.UserID]; ok && current.ID == b.ID {
		delete(r.active, b.UserID)
	}
}

// Cancel flags the user's active upload. Returns false when nothing is in flight
func (r *Registry) Cancel(userID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.active[userID]
	if !ok {
		return false
	}
	b.Cancel()
	return true
}
