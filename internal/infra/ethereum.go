package infra

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/ethclient"
)

// NewEthereumClient dials the configured JSON-RPC endpoint and verifies the
// node answers before handing the client out.
func NewEthereumClient(ctx context.Context, rawURL string) (*ethclient.Client, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("chain rpc url is required")
	}

	client, err := ethclient.DialContext(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("dial chain rpc: %w", err)
	}

	if _, err := client.ChainID(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping chain rpc: %w", err)
	}

	return client, nil
}
