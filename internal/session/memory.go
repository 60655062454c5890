package session

import (
	"context"
	"sync"
)

// MemoryStore is a volatile Store. Useful for tests and for the shell when
// persistence is disabled.
type MemoryStore struct {
	mu  sync.RWMutex
	cur *Context
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Save(_ context.Context, sc *Context) error {
	if !sc.Valid() {
		return ErrNoSession
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *sc
	m.cur = &cp
	return nil
}

func (m *MemoryStore) Load(_ context.Context) (*Context, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cur == nil {
		return nil, ErrNoSession
	}
	cp := *m.cur
	return &cp, nil
}

func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cur = nil
	return nil
}

func (m *MemoryStore) Close() error { return nil }
