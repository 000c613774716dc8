// Package vault owns encryption of wallet signing keys at rest. Plaintext key
// material never leaves this package except as a short-lived value the caller
// must wipe with Zero immediately after one use.
package vault

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrDecrypt indicates stored key material failed authentication. Treated as
// an invariant violation by callers, never surfaced to end users verbatim.
var ErrDecrypt = errors.New("vault: cannot decrypt key material")

// Vault seals and opens signing keys with a single symmetric master key.
type Vault struct {
	key []byte
}

// New builds a vault from a 32-byte master key.
func New(key []byte) (*Vault, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("vault key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Vault{key: k}, nil
}

// Seal encrypts a private key for storage. The nonce is prepended to the
// returned blob.
func (v *Vault) Seal(priv []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	return aead.Seal(nonce, nonce, priv, nil), nil
}

// Open decrypts a stored blob. The caller owns the returned plaintext and is
// responsible for calling Zero on it once the single permitted use is done.
func (v *Vault) Open(blob []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return nil, err
	}

	if len(blob) < aead.NonceSize() {
		return nil, ErrDecrypt
	}

	nonce, ciphertext := blob[:aead.NonceSize()], blob[aead.NonceSize():]
	priv, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return priv, nil
}

// Zero wipes plaintext key material in place.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
