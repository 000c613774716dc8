package contact

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

const (
	addrA = "0x1111111111111111111111111111111111111111"
	addrB = "0x2222222222222222222222222222222222222222"
)

func TestUpsertOverwritesCaseInsensitively(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()
	userID := uuid.NewString()

	if _, err := svc.Upsert(ctx, userID, "MAMA", addrA); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if _, err := svc.Upsert(ctx, userID, "mama", addrB); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	contacts, err := svc.List(ctx, userID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(contacts) != 1 {
		t.Fatalf("expected exactly one contact, got %d", len(contacts))
	}
	if contacts[0].Address != addrB {
		t.Fatalf("expected overwrite to %s, got %s", addrB, contacts[0].Address)
	}
}

func TestResolveNormalizesAlias(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()
	userID := uuid.NewString()

	if _, err := svc.Upsert(ctx, userID, "  Mama ", addrA); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	addr, found, err := svc.Resolve(ctx, userID, "mama")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !found {
		t.Fatalf("expected alias to resolve")
	}
	if addr != addrA {
		t.Fatalf("unexpected address %s", addr)
	}
}

func TestResolveAbsentIsNotAnError(t *testing.T) {
	svc := NewService(NewMemoryRepository())

	_, found, err := svc.Resolve(context.Background(), uuid.NewString(), "NOBODY")
	if err != nil {
		t.Fatalf("resolve returned error for absent alias: %v", err)
	}
	if found {
		t.Fatalf("expected no match")
	}
}

func TestUpsertRejectsBadAddress(t *testing.T) {
	svc := NewService(NewMemoryRepository())

	if _, err := svc.Upsert(context.Background(), uuid.NewString(), "MAMA", "not-an-address"); err != ErrInvalidAddress {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
}
