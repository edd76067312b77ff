package state

import (
	"context"
	"sync"

	"github.com/yourorg/rpc-dashboard/internal/model"
	"github.com/yourorg/rpc-dashboard/internal/types"
)

// Memory is an in-process Store for local runs and tests
type Memory struct {
	mu     sync.RWMutex
	states map[types.Blockchain]model.ChainState
}

// NewMemory creates an empty in-process store
func NewMemory() *Memory {
	return &Memory{states: make(map[types.Blockchain]model.ChainState)}
}

// Get returns the stored snapshot or ErrNotFound
func (m *Memory) Get(_ context.Context, chain types.Blockchain) (model.ChainState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.states[chain]
	if !ok {
		return model.ChainState{}, ErrNotFound
	}
	return s, nil
}

// Put overwrites the snapshot for chain
func (m *Memory) Put(_ context.Context, chain types.Blockchain, s model.ChainState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[chain] = s
	return nil
}
