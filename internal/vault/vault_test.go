package vault

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("rand: %v", err)
	}
	return key
}

func TestSealOpenRoundTrip(t *testing.T) {
	v, err := New(testKey(t))
	if err != nil {
		t.Fatalf("new vault: %v", err)
	}

	priv := []byte("super-secret-signing-key")
	blob, err := v.Seal(priv)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if bytes.Contains(blob, priv) {
		t.Fatalf("sealed blob leaks plaintext")
	}

	got, err := v.Open(blob)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(got, priv) {
		t.Fatalf("round trip mismatch")
	}
}

func TestOpenRejectsTamperedBlob(t *testing.T) {
	v, err := New(testKey(t))
	if err != nil {
		t.Fatalf("new vault: %v", err)
	}

	blob, err := v.Seal([]byte("key"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	blob[len(blob)-1] ^= 0xff

	if _, err := v.Open(blob); err != ErrDecrypt {
		t.Fatalf("expected ErrDecrypt, got %v", err)
	}
}

func TestOpenRejectsWrongKey(t *testing.T) {
	v1, _ := New(testKey(t))
	v2, _ := New(testKey(t))

	blob, err := v1.Seal([]byte("key"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	if _, err := v2.Open(blob); err != ErrDecrypt {
		t.Fatalf("expected ErrDecrypt, got %v", err)
	}
}

func TestNewRejectsShortKey(t *testing.T) {
	if _, err := New([]byte("short")); err == nil {
		t.Fatalf("expected key length error")
	}
}

func TestZero(t *testing.T) {
	b := []byte{1, 2, 3}
	Zero(b)
	for _, v := range b {
		if v != 0 {
			t.Fatalf("buffer not wiped: %v", b)
		}
	}
}
