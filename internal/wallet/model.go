package wallet

import "time"

// Wallet is a custodial signing keypair owned by exactly one user. The
// private key is stored encrypted and is immutable after creation; at most
// one wallet per user is active at a time.
type Wallet struct {
	ID           string
	UserID       string
	Address      string
	EncryptedKey []byte
	Active       bool
	CreatedAt    time.Time
}
