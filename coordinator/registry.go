package coordinator

import (
	"fmt"
	"slices"
	"sync"

	"github.com/tailored-agentic-units/storyloop/session"
)

// Registry is the table of live sessions shared by every coordinator in a
// process. It serializes creation and removal; it does not guard session
// contents, which belong to the owning coordinator.
type Registry struct {
	mu       sync.RWMutex
	last     int64
	sessions map[int64]*session.Session
}

// NewRegistry creates an empty Registry. Ids start at 1.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[int64]*session.Session),
	}
}

// StartAfter makes subsequent ids greater than id. Use it to continue
// numbering past stories already archived.
func (r *Registry) StartAfter(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = max(r.last, id)
}

// Create registers a new session under the next id.
func (r *Registry) Create(creator, personality string, opts ...session.Option) *session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.last++
	s := session.New(r.last, creator, personality, opts...)
	r.sessions[s.ID()] = s
	return s
}

// Get returns the live session with id.
func (r *Registry) Get(id int64) (*session.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return s, nil
}

// Remove drops id from the table. Removing an unknown id is an error.
func (r *Registry) Remove(id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	delete(r.sessions, id)
	return nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// IDs returns the live session ids in ascending order.
func (r *Registry) IDs() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]int64, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
