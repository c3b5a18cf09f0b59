package repository

import (
	"context"
	"errors"
	"sync"
)

// MemoryRepository keeps wallet states in process memory
type MemoryRepository struct {
	mu      sync.RWMutex
	wallets map[string]*WalletState
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{wallets: make(map[string]*WalletState)}
}

func (r *MemoryRepository) LoadWallet(ctx context.Context, userID string) (*WalletState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.wallets[userID]
	if !ok {
		return nil, nil
	}
	return cloneState(s), nil
}

func (r *MemoryRepository) SaveWallet(ctx context.Context, state *WalletState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if state == nil || state.UserID == "" {
		return errors.New("wallet state needs a user id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.wallets[state.UserID] = cloneState(state)
	return nil
}
