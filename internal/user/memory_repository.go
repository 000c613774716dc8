package user

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

type memoryRepository struct {
	mu    sync.RWMutex
	users map[string]User
}

// NewMemoryRepository builds an in-memory user store for testing.
func NewMemoryRepository() Repository {
	return &memoryRepository{users: make(map[string]User)}
}

func (r *memoryRepository) Create(_ context.Context, user User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.users[user.Phone]; exists {
		return errors.New("user exists")
	}
	r.users[user.Phone] = user
	return nil
}

func (r *memoryRepository) FindByPhone(_ context.Context, phone string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[phone]
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, user := range r.users {
		if user.ID == id {
			return user, nil
		}
	}
	return User{}, ErrNotFound
}

func (r *memoryRepository) SetPIN(_ context.Context, id string, hash []byte, verified bool) error {
	return r.mutate(id, func(u *User) {
		u.PINHash = hash
		u.PINVerified = verified
	})
}

func (r *memoryRepository) SetPINVerified(_ context.Context, id string, verified bool) error {
	return r.mutate(id, func(u *User) { u.PINVerified = verified })
}

func (r *memoryRepository) SetTwoFactor(_ context.Context, id string, enabled bool) error {
	return r.mutate(id, func(u *User) { u.TwoFactor = enabled })
}

func (r *memoryRepository) SetNotificationPref(_ context.Context, id, category string, enabled bool) error {
	switch category {
	case CategoryTransactions, CategorySecurity, CategoryMarketing:
	default:
		return fmt.Errorf("unknown notification category %q", category)
	}
	return r.mutate(id, func(u *User) {
		switch category {
		case CategoryTransactions:
			u.NotifyTransactions = enabled
		case CategorySecurity:
			u.NotifySecurity = enabled
		case CategoryMarketing:
			u.NotifyMarketing = enabled
		}
	})
}

func (r *memoryRepository) mutate(id string, fn func(*User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for phone, user := range r.users {
		if user.ID == id {
			fn(&user)
			r.users[phone] = user
			return nil
		}
	}
	return ErrNotFound
}
