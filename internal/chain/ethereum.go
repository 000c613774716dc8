package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ERC-20 function selectors.
var (
	selBalanceOf = []byte{0x70, 0xa0, 0x82, 0x31}
	selTransfer  = []byte{0xa9, 0x05, 0x9c, 0xbb}
)

const nativeTransferGas = 21_000

// EthereumClient implements Client against a JSON-RPC node.
type EthereumClient struct {
	eth         *ethclient.Client
	chainID     *big.Int
	callTimeout time.Duration
	confirmWait time.Duration
	receiptPoll time.Duration
}

// NewEthereumClient wraps a dialed ethclient. Call and confirmation timeouts
// bound every network interaction.
func NewEthereumClient(ctx context.Context, eth *ethclient.Client, callTimeout, confirmWait time.Duration) (*EthereumClient, error) {
	chainID, err := eth.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch chain id: %w", err)
	}
	return &EthereumClient{
		eth:         eth,
		chainID:     chainID,
		callTimeout: callTimeout,
		confirmWait: confirmWait,
		receiptPoll: 2 * time.Second,
	}, nil
}

// NativeBalance returns the address's balance at the latest block.
func (c *EthereumClient) NativeBalance(ctx context.Context, address string) (*big.Int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	return c.eth.BalanceAt(ctx, common.HexToAddress(address), nil)
}

// TokenBalance calls balanceOf on an ERC-20 contract.
func (c *EthereumClient) TokenBalance(ctx context.Context, address, contract string) (*big.Int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	data := append(append([]byte{}, selBalanceOf...), common.LeftPadBytes(common.HexToAddress(address).Bytes(), 32)...)
	to := common.HexToAddress(contract)

	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(out), nil
}

// Transfer submits a native transfer signed with the provided key and waits
// for it to be mined.
func (c *EthereumClient) Transfer(ctx context.Context, priv []byte, to string, amount *big.Int) (string, error) {
	return c.submit(ctx, priv, common.HexToAddress(to), amount, nil, nativeTransferGas)
}

// TokenTransfer submits an ERC-20 transfer(to, amount) call.
func (c *EthereumClient) TokenTransfer(ctx context.Context, priv []byte, contract, to string, amount *big.Int) (string, error) {
	data := append([]byte{}, selTransfer...)
	data = append(data, common.LeftPadBytes(common.HexToAddress(to).Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(amount.Bytes(), 32)...)
	return c.submit(ctx, priv, common.HexToAddress(contract), big.NewInt(0), data, 0)
}

func (c *EthereumClient) submit(ctx context.Context, priv []byte, to common.Address, value *big.Int, data []byte, gasLimit uint64) (string, error) {
	key, err := ethcrypto.ToECDSA(priv)
	if err != nil {
		return "", fmt.Errorf("parse signing key: %w", err)
	}
	from := ethcrypto.PubkeyToAddress(key.PublicKey)

	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	nonce, err := c.eth.PendingNonceAt(callCtx, from)
	if err != nil {
		return "", err
	}
	gasPrice, err := c.eth.SuggestGasPrice(callCtx)
	if err != nil {
		return "", err
	}
	if gasLimit == 0 {
		gasLimit, err = c.eth.EstimateGas(callCtx, ethereum.CallMsg{From: from, To: &to, Value: value, Data: data})
		if err != nil {
			return "", err
		}
	}

	tx := types.NewTransaction(nonce, to, value, gasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), key)
	if err != nil {
		return "", err
	}

	if err := c.eth.SendTransaction(callCtx, signed); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			// Submitted but never acknowledged. The watcher's idempotent
			// recorder is the backstop if it actually landed.
			return "", ErrOutcomeUnknown
		}
		return "", err
	}

	return c.waitMined(ctx, signed.Hash())
}

// waitMined polls for the receipt until confirmation or the confirm window
// elapses. Elapsing maps to ErrOutcomeUnknown, never to success.
func (c *EthereumClient) waitMined(ctx context.Context, hash common.Hash) (string, error) {
	deadline := time.NewTimer(c.confirmWait)
	defer deadline.Stop()
	tick := time.NewTicker(c.receiptPoll)
	defer tick.Stop()

	for {
		receiptCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		receipt, err := c.eth.TransactionReceipt(receiptCtx, hash)
		cancel()

		if err == nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return "", ErrReverted
			}
			return hash.Hex(), nil
		}
		if !errors.Is(err, ethereum.NotFound) && !errors.Is(err, context.DeadlineExceeded) {
			return "", ErrOutcomeUnknown
		}

		select {
		case <-ctx.Done():
			return "", ErrOutcomeUnknown
		case <-deadline.C:
			return "", ErrOutcomeUnknown
		case <-tick.C:
		}
	}
}

// BlockNumber returns the latest block height.
func (c *EthereumClient) BlockNumber(ctx context.Context) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	return c.eth.BlockNumber(ctx)
}

// BlockTransfers extracts native value transfers from one block.
func (c *EthereumClient) BlockTransfers(ctx context.Context, number uint64) ([]Transfer, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	block, err := c.eth.BlockByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return nil, err
	}

	signer := types.LatestSignerForChainID(c.chainID)
	var transfers []Transfer
	for _, tx := range block.Transactions() {
		if tx.To() == nil || tx.Value().Sign() <= 0 {
			continue
		}
		from, err := types.Sender(signer, tx)
		if err != nil {
			continue
		}
		transfers = append(transfers, Transfer{
			Signature: tx.Hash().Hex(),
			From:      from.Hex(),
			To:        tx.To().Hex(),
			Amount:    new(big.Int).Set(tx.Value()),
		})
	}
	return transfers, nil
}
