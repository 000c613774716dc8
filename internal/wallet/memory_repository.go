package wallet

import (
	"context"
	"errors"
	"strings"
	"sync"
)

type memoryRepository struct {
	mu      sync.RWMutex
	storage map[string]Wallet
}

// NewMemoryRepository constructs an in-memory repository for tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{storage: make(map[string]Wallet)}
}

func (r *memoryRepository) Create(_ context.Context, wallet Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.storage[wallet.ID]; exists {
		return errors.New("wallet exists")
	}
	if wallet.Active {
		for _, existing := range r.storage {
			if existing.UserID == wallet.UserID && existing.Active {
				return errors.New("user already has an active wallet")
			}
		}
	}
	r.storage[wallet.ID] = wallet
	return nil
}

func (r *memoryRepository) ActiveByUser(_ context.Context, userID string) (Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, wallet := range r.storage {
		if wallet.UserID == userID && wallet.Active {
			return wallet, nil
		}
	}
	return Wallet{}, ErrNotFound
}

func (r *memoryRepository) ByAddress(_ context.Context, address string) (Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, wallet := range r.storage {
		if strings.EqualFold(wallet.Address, address) {
			return wallet, nil
		}
	}
	return Wallet{}, ErrNotFound
}
