package contact

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// ErrInvalidAddress is returned when a contact address fails format validation.
var ErrInvalidAddress = errors.New("invalid address")

// Service implements the per-user alias directory.
type Service struct {
	repo Repository
}

// NewService builds a contact directory service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Normalize case-folds an alias the way it is stored.
func Normalize(alias string) string {
	return strings.ToUpper(strings.TrimSpace(alias))
}

// Upsert saves an alias, overwriting the address when the alias already
// exists for the user. The address format is validated before storing.
func (s *Service) Upsert(ctx context.Context, userID, alias, address string) (Contact, error) {
	if !common.IsHexAddress(address) {
		return Contact{}, ErrInvalidAddress
	}

	c := Contact{
		ID:        uuid.New().String(),
		UserID:    userID,
		Alias:     Normalize(alias),
		Address:   common.HexToAddress(address).Hex(),
		CreatedAt: time.Now().UTC(),
	}

	if err := s.repo.Upsert(ctx, c); err != nil {
		return Contact{}, err
	}
	return c, nil
}

// Resolve looks an alias up case-insensitively. Absence is reported through
// the boolean, not an error: callers fall back to treating the input as a
// raw address.
func (s *Service) Resolve(ctx context.Context, userID, alias string) (string, bool, error) {
	c, found, err := s.repo.Find(ctx, userID, Normalize(alias))
	if err != nil || !found {
		return "", false, err
	}
	return c.Address, true, nil
}

// List returns the user's saved contacts.
func (s *Service) List(ctx context.Context, userID string) ([]Contact, error) {
	return s.repo.ListByUser(ctx, userID)
}
