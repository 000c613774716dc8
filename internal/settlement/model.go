package settlement

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction directions as seen from the owning wallet.
const (
	DirectionSend    = "SEND"
	DirectionReceive = "RECEIVE"
)

// Transaction statuses. PENDING marks a submission whose outcome was never
// observed; it is never promoted to COMPLETED by the sender, only by the
// watcher re-observing the transfer on chain.
const (
	StatusPending   = "PENDING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

// Transaction is one append-only settlement record for a wallet.
type Transaction struct {
	ID           string
	WalletID     string
	Direction    string
	AssetID      string
	Amount       decimal.Decimal
	Counterparty string
	// Signature is the network reference. Empty for submissions that
	// failed or timed out before one was observed.
	Signature string
	Status    string
	CreatedAt time.Time
}
