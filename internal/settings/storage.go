package settings

import (
	"context"
	"errors"
	"sync"
)

// Storage persists the override layer. Load on a store that was never
// written returns an empty tree. Save must treat the tree as read-only and
// must either replace the stored tree completely or leave it untouched.
type Storage interface {
	Load(ctx context.Context) (Tree, error)
	Save(ctx context.Context, overrides Tree) error
}

// MemoryStorage is an in-memory Storage, used by tests and by servers
// started without a settings file
type MemoryStorage struct {
	mu    sync.Mutex
	tree  Tree
	saves int

	// FailSave makes every Save fail with this error while set
	FailSave error
}

// NewMemoryStorage returns a MemoryStorage seeded with a copy of initial
func NewMemoryStorage(initial Tree) *MemoryStorage {
	return &MemoryStorage{tree: Clone(initial)}
}

// Load implements Storage
func (m *MemoryStorage) Load(ctx context.Context) (Tree, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tree == nil {
		return Tree{}, nil
	}
	return Clone(m.tree), nil
}

// Save implements Storage
func (m *MemoryStorage) Save(ctx context.Context, overrides Tree) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSave != nil {
		return m.FailSave
	}
	m.tree = Clone(overrides)
	m.saves++
	return nil
}

// Saves returns how many times Save succeeded
func (m *MemoryStorage) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// Tree returns a copy of the stored tree
func (m *MemoryStorage) Tree() Tree {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Clone(m.tree)
}

// SetFailSave sets or clears the injected Save failure
func (m *MemoryStorage) SetFailSave(err error) {
	m.mu.Lock()
	m.FailSave = err
	m.mu.Unlock()
}

// ErrStorageUnavailable is a convenience error for injected storage failures
var ErrStorageUnavailable = errors.New("storage unavailable")
