package wallet

import (
	"context"
	"errors"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/textpesa/textpesa/internal/vault"
)

// ErrAlreadyExists is returned when a user who already has an active wallet
// asks for another one.
var ErrAlreadyExists = errors.New("wallet already exists")

// Service provisions custodial wallets and mediates access to their keys.
type Service struct {
	repo  Repository
	vault *vault.Vault
}

// NewService builds a wallet service instance.
func NewService(repo Repository, v *vault.Vault) *Service {
	return &Service{repo: repo, vault: v}
}

// Create generates a fresh signing keypair, encrypts the private key and
// stores the wallet. The plaintext key is wiped before returning.
func (s *Service) Create(ctx context.Context, userID string) (Wallet, error) {
	if _, err := s.repo.ActiveByUser(ctx, userID); err == nil {
		return Wallet{}, ErrAlreadyExists
	} else if !errors.Is(err, ErrNotFound) {
		return Wallet{}, err
	}

	priv, err := ethcrypto.GenerateKey()
	if err != nil {
		return Wallet{}, err
	}
	privBytes := ethcrypto.FromECDSA(priv)
	defer vault.Zero(privBytes)

	sealed, err := s.vault.Seal(privBytes)
	if err != nil {
		return Wallet{}, err
	}

	w := Wallet{
		ID:           uuid.New().String(),
		UserID:       userID,
		Address:      ethcrypto.PubkeyToAddress(priv.PublicKey).Hex(),
		EncryptedKey: sealed,
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, w); err != nil {
		return Wallet{}, err
	}

	return w, nil
}

// ActiveByUser returns the user's active wallet.
func (s *Service) ActiveByUser(ctx context.Context, userID string) (Wallet, error) {
	return s.repo.ActiveByUser(ctx, userID)
}

// ByAddress looks a wallet up by on-chain address.
func (s *Service) ByAddress(ctx context.Context, address string) (Wallet, error) {
	return s.repo.ByAddress(ctx, address)
}

// SigningKey decrypts the wallet's private key. The caller must treat the
// result as single-use and wipe it with vault.Zero as soon as the one chain
// call it was acquired for returns.
func (s *Service) SigningKey(w Wallet) ([]byte, error) {
	return s.vault.Open(w.EncryptedKey)
}
