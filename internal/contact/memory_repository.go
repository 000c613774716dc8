package contact

import (
	"context"
	"sort"
	"sync"
)

type memoryRepository struct {
	mu      sync.RWMutex
	storage map[string]Contact // keyed by userID + "/" + alias
}

// NewMemoryRepository constructs an in-memory contact store for tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{storage: make(map[string]Contact)}
}

func (r *memoryRepository) Upsert(_ context.Context, contact Contact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := contact.UserID + "/" + contact.Alias
	if existing, ok := r.storage[key]; ok {
		existing.Address = contact.Address
		r.storage[key] = existing
		return nil
	}
	r.storage[key] = contact
	return nil
}

func (r *memoryRepository) Find(_ context.Context, userID, alias string) (Contact, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.storage[userID+"/"+alias]
	return c, ok, nil
}

func (r *memoryRepository) ListByUser(_ context.Context, userID string) ([]Contact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var contacts []Contact
	for _, c := range r.storage {
		if c.UserID == userID {
			contacts = append(contacts, c)
		}
	}
	sort.Slice(contacts, func(i, j int) bool { return contacts[i].Alias < contacts[j].Alias })
	return contacts, nil
}
