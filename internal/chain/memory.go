package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// SentTransfer records a submission made through the fake client.
type SentTransfer struct {
	From     string
	To       string
	Amount   *big.Int
	Contract string
}

// MemoryClient is a scriptable in-memory Client for tests. Balances are
// keyed by lower-cased address (native) or contract|address (tokens).
type MemoryClient struct {
	mu        sync.Mutex
	balances  map[string]*big.Int
	blocks    map[uint64][]Transfer
	head      uint64
	sent      []SentTransfer
	nextSig   int
	submitErr error
}

// NewMemoryClient builds an empty fake chain client.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		balances: make(map[string]*big.Int),
		blocks:   make(map[uint64][]Transfer),
	}
}

func balanceKey(contract, address string) string {
	if contract == "" {
		return strings.ToLower(address)
	}
	return strings.ToLower(contract) + "|" + strings.ToLower(address)
}

// SetBalance scripts a native balance.
func (c *MemoryClient) SetBalance(address string, amount *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[balanceKey("", address)] = new(big.Int).Set(amount)
}

// SetTokenBalance scripts a token balance.
func (c *MemoryClient) SetTokenBalance(contract, address string, amount *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[balanceKey(contract, address)] = new(big.Int).Set(amount)
}

// FailSubmissions makes every subsequent submission return err.
func (c *MemoryClient) FailSubmissions(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitErr = err
}

// Sent returns submissions recorded so far.
func (c *MemoryClient) Sent() []SentTransfer {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]SentTransfer, len(c.sent))
	copy(out, c.sent)
	return out
}

// AppendBlock scripts a mined block for the watcher to scan.
func (c *MemoryClient) AppendBlock(transfers ...Transfer) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.head++
	c.blocks[c.head] = transfers
	return c.head
}

func (c *MemoryClient) NativeBalance(_ context.Context, address string) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if bal, ok := c.balances[balanceKey("", address)]; ok {
		return new(big.Int).Set(bal), nil
	}
	return big.NewInt(0), nil
}

func (c *MemoryClient) TokenBalance(_ context.Context, address, contract string) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if bal, ok := c.balances[balanceKey(contract, address)]; ok {
		return new(big.Int).Set(bal), nil
	}
	return big.NewInt(0), nil
}

func (c *MemoryClient) Transfer(_ context.Context, priv []byte, to string, amount *big.Int) (string, error) {
	return c.submit(priv, to, "", amount)
}

func (c *MemoryClient) TokenTransfer(_ context.Context, priv []byte, contract, to string, amount *big.Int) (string, error) {
	return c.submit(priv, to, contract, amount)
}

func (c *MemoryClient) submit(priv []byte, to, contract string, amount *big.Int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.submitErr != nil {
		return "", c.submitErr
	}

	from := ""
	if key, err := ethcrypto.ToECDSA(priv); err == nil {
		from = ethcrypto.PubkeyToAddress(key.PublicKey).Hex()
	}

	// Debit/credit scripted balances so follow-up reads see the move.
	fromKey := balanceKey(contract, from)
	toKey := balanceKey(contract, to)
	if bal, ok := c.balances[fromKey]; ok {
		bal.Sub(bal, amount)
	}
	if bal, ok := c.balances[toKey]; ok {
		bal.Add(bal, amount)
	} else {
		c.balances[toKey] = new(big.Int).Set(amount)
	}

	c.nextSig++
	sig := fmt.Sprintf("0xsig%06d", c.nextSig)
	c.sent = append(c.sent, SentTransfer{From: from, To: to, Amount: new(big.Int).Set(amount), Contract: contract})
	return sig, nil
}

func (c *MemoryClient) BlockNumber(_ context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.head, nil
}

func (c *MemoryClient) BlockTransfers(_ context.Context, number uint64) ([]Transfer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	transfers, ok := c.blocks[number]
	if !ok {
		return nil, fmt.Errorf("block %d not found", number)
	}
	out := make([]Transfer, len(transfers))
	copy(out, transfers)
	return out, nil
}
