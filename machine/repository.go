package machine

import (
	"sort"
	"sync"
)

// Repository is the storage collaborator of the stock tracker. Lookups for
// unknown IDs report false and are never an error.
type Repository interface {
	FindByID(id string) (*Machine, bool)
	AddMachine(m *Machine)
	UpdateMachine(m *Machine)
}

// MemRepository is a thread-safe in-memory Repository. FindByID returns the
// stored pointer, so callers holding it see and make in-place updates.
type MemRepository struct {
	mu       sync.RWMutex
	machines map[string]*Machine
}

// NewMemRepository creates a repository seeded with machines.
func NewMemRepository(machines ...*Machine) *MemRepository {
	r := &MemRepository{
		machines: make(map[string]*Machine, len(machines)),
	}
	for _, m := range machines {
		r.AddMachine(m)
	}
	return r
}

// FindByID returns the machine with the given id.
func (r *MemRepository) FindByID(id string) (*Machine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.machines[id]
	return m, ok
}

// AddMachine stores m, replacing any machine with the same id.
func (r *MemRepository) AddMachine(m *Machine) {
	if m == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.machines[m.ID] = m
}

// UpdateMachine replaces the stored record for m.ID. Unknown ids are ignored.
func (r *MemRepository) UpdateMachine(m *Machine) {
	if m == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.machines[m.ID]; ok {
		r.machines[m.ID] = m
	}
}

// List returns copies of all machines in id order.
func (r *MemRepository) List() []Machine {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.machines))
	for id := range r.machines {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]Machine, 0, len(ids))
	for _, id := range ids {
		out = append(out, *r.machines[id])
	}
	return out
}

// Len returns the number of stored machines.
func (r *MemRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.machines)
}

var _ Repository = (*MemRepository)(nil)
