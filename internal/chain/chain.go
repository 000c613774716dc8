// Package chain defines the boundary to the ledger network. The rest of the
// system talks to the Client interface; the Ethereum implementation lives in
// ethereum.go and a scriptable fake in memory.go.
package chain

import (
	"context"
	"errors"
	"math/big"
)

var (
	// ErrOutcomeUnknown is returned when a submission timed out before a
	// confirmation was observed. Callers must not treat this as success or
	// as a definite failure: the transaction may still land on chain.
	ErrOutcomeUnknown = errors.New("chain: transaction outcome unknown")

	// ErrReverted indicates the network confirmed the transaction as failed.
	ErrReverted = errors.New("chain: transaction reverted")
)

// Transfer describes a value movement observed on chain.
type Transfer struct {
	Signature string
	From      string
	To        string
	Amount    *big.Int
	// Contract is empty for native-asset transfers.
	Contract string
}

// Client is the ledger network collaborator. All methods are bounded by the
// implementation's call timeout; Submit-style methods report
// ErrOutcomeUnknown on timeout after submission.
type Client interface {
	NativeBalance(ctx context.Context, address string) (*big.Int, error)
	TokenBalance(ctx context.Context, address, contract string) (*big.Int, error)

	// Transfer submits a signed native transfer and waits for confirmation,
	// returning the network signature. The private key is used for this one
	// call only; the caller wipes it afterwards.
	Transfer(ctx context.Context, priv []byte, to string, amount *big.Int) (string, error)
	TokenTransfer(ctx context.Context, priv []byte, contract, to string, amount *big.Int) (string, error)

	BlockNumber(ctx context.Context) (uint64, error)
	BlockTransfers(ctx context.Context, number uint64) ([]Transfer, error)
}
