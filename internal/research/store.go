package research

import (
	"context"
	"sync"
	"time"
)

// Store persists session state between pipeline entries.
type Store interface {
	Load(ctx context.Context, id string) (*State, error)
	Save(ctx context.Context, st *State) error
	// CompareAndSwapStatus moves a session from one status to another
	// atomically, returning ErrStatusConflict when the current status
	// differs from from.
	CompareAndSwapStatus(ctx context.Context, id string, from, to Status) error
}

// Archiver keeps finished sessions for later retrieval.
type Archiver interface {
	Archive(ctx context.Context, st *State) error
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*State
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*State)}
}

func (m *MemoryStore) Load(_ context.Context, id string) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return st.Clone(), nil
}

func (m *MemoryStore) Save(_ context.Context, st *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := st.Clone()
	c.UpdatedAt = time.Now()
	m.sessions[st.ID] = c
	return nil
}

func (m *MemoryStore) CompareAndSwapStatus(_ context.Context, id string, from, to Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if st.Status != from {
		return ErrStatusConflict
	}
	st.Status = to
	st.UpdatedAt = time.Now()
	return nil
}
