// internal/store/memory.go
//
// In-memory registry of live game areas.
//
// Characteristics:
//   - Stores *area.Area values keyed by area ID in a map.
//   - Concurrency-safe via RWMutex (concurrent lookups, exclusive writes).
//     The map lock only guards membership; each area serializes its own
//     mutations, so different areas proceed in parallel.
//   - State is lost when the process restarts.

package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/robalobadob/wordle/apps/area-server/internal/area"
)

var (
	// ErrNotFound is returned when no area has the requested ID.
	ErrNotFound = errors.New("area not found")
	// ErrExists is returned by Create when the ID is taken.
	ErrExists = errors.New("area already exists")
)

// Store defines the registry of live areas.
type Store interface {
	// Create registers a new area; it fails with ErrExists if the ID is taken.
	Create(ctx context.Context, a *area.Area) error

	// Get retrieves an area by ID or returns ErrNotFound.
	Get(ctx context.Context, id string) (*area.Area, error)

	// Delete forgets an area. Deleting a missing ID is not an error.
	Delete(ctx context.Context, id string) error

	// DeleteIf forgets the area only if keep reports false for it, checking
	// and removing under one lock. It returns ErrNotFound for a missing ID and
	// reports whether the area was removed.
	DeleteIf(ctx context.Context, id string, keep func(*area.Area) bool) (bool, error)

	// List returns every area ordered by ID.
	List(ctx context.Context) ([]*area.Area, error)
}

// memory is an in-memory map-based Store implementation.
type memory struct {
	mu    sync.RWMutex          // guards areas map
	areas map[string]*area.Area // keyed by Area.ID()
}

// NewMemoryStore constructs a new in-memory Store.
func NewMemoryStore() Store {
	return &memory{areas: make(map[string]*area.Area)}
}

func (m *memory) Create(ctx context.Context, a *area.Area) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.areas[a.ID()]; ok {
		return ErrExists
	}
	m.areas[a.ID()] = a
	return nil
}

func (m *memory) Get(ctx context.Context, id string) (*area.Area, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if a, ok := m.areas[id]; ok {
		return a, nil
	}
	return nil, ErrNotFound
}

func (m *memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.areas, id)
	return nil
}

func (m *memory) DeleteIf(ctx context.Context, id string, keep func(*area.Area) bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.areas[id]
	if !ok {
		return false, ErrNotFound
	}
	if keep(a) {
		return false, nil
	}
	delete(m.areas, id)
	return true, nil
}

func (m *memory) List(ctx context.Context) ([]*area.Area, error) {
	m.mu.RLock()
	out := make([]*area.Area, 0, len(m.areas))
	for _, a := range m.areas {
		out = append(out, a)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out, nil
}
