package wallet

import (
	"bytes"
	"context"
	"crypto/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/textpesa/textpesa/internal/vault"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("rand: %v", err)
	}
	v, err := vault.New(key)
	if err != nil {
		t.Fatalf("vault: %v", err)
	}
	return NewService(NewMemoryRepository(), v)
}

func TestCreateWallet(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	userID := uuid.NewString()

	w, err := svc.Create(ctx, userID)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if !common.IsHexAddress(w.Address) {
		t.Fatalf("invalid address %q", w.Address)
	}
	if !w.Active {
		t.Fatalf("new wallet should be active")
	}
	if len(w.EncryptedKey) == 0 {
		t.Fatalf("encrypted key missing")
	}

	// The stored key must decrypt to a usable signing key.
	priv, err := svc.SigningKey(w)
	if err != nil {
		t.Fatalf("signing key: %v", err)
	}
	if len(priv) != 32 {
		t.Fatalf("unexpected key length %d", len(priv))
	}
	if bytes.Equal(priv, w.EncryptedKey[:32]) {
		t.Fatalf("key stored in plaintext")
	}
}

func TestCreateWalletRejectsSecondActive(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	userID := uuid.NewString()

	if _, err := svc.Create(ctx, userID); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Create(ctx, userID); err != ErrAlreadyExists {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestByAddressCaseInsensitive(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	w, err := svc.Create(ctx, uuid.NewString())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	found, err := svc.ByAddress(ctx, "0x"+string(bytes.ToLower([]byte(w.Address[2:]))))
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if found.ID != w.ID {
		t.Fatalf("wrong wallet returned")
	}
}
