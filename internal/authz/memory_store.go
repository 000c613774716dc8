package authz

import (
	"context"
	"sync"
	"time"

	"github.com/textpesa/textpesa/internal/user"
)

type memoryCodeStore struct {
	mu    sync.Mutex
	codes map[string]VerificationCode
	users user.Repository
}

// NewMemoryCodeStore builds an in-memory code store for tests. The user
// repository is needed so ConsumeAndSetPIN can mirror the transactional
// users-table update the Postgres store performs.
func NewMemoryCodeStore(users user.Repository) CodeStore {
	return &memoryCodeStore{codes: make(map[string]VerificationCode), users: users}
}

func (s *memoryCodeStore) Replace(_ context.Context, code VerificationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.codes {
		if existing.UserID == code.UserID && existing.Purpose == code.Purpose && !existing.Used {
			delete(s.codes, id)
		}
	}
	s.codes[code.ID] = code
	return nil
}

func (s *memoryCodeStore) Active(_ context.Context, userID, purpose string, now time.Time) (VerificationCode, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.codes {
		if c.UserID == userID && c.Purpose == purpose && c.Live(now) {
			return c, true, nil
		}
	}
	return VerificationCode{}, false, nil
}

func (s *memoryCodeStore) MarkUsed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.codes[id]
	if !ok || c.Used {
		return ErrCodeNotFound
	}
	c.Used = true
	s.codes[id] = c
	return nil
}

func (s *memoryCodeStore) ConsumeAndSetPIN(ctx context.Context, id, userID string, hash []byte) error {
	if err := s.MarkUsed(ctx, id); err != nil {
		return err
	}
	return s.users.SetPIN(ctx, userID, hash, true)
}
