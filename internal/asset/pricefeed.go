package asset

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PriceSource quotes USD prices from an external provider.
type PriceSource interface {
	Quote(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error)
}

// HTTPPriceSource fetches quotes from a simple JSON price API:
// GET <base>?symbols=ETH,USDC returning {"ETH": "1234.5", ...}.
type HTTPPriceSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPPriceSource builds a price source with a bounded request timeout.
func NewHTTPPriceSource(baseURL string, timeout time.Duration) *HTTPPriceSource {
	return &HTTPPriceSource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Quote fetches USD prices for the given symbols.
func (s *HTTPPriceSource) Quote(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	reqURL := fmt.Sprintf("%s?symbols=%s", s.baseURL, url.QueryEscape(strings.Join(symbols, ",")))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("price source: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("price source: unexpected status %d", resp.StatusCode)
	}

	var raw map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("price source: decode: %w", err)
	}

	quotes := make(map[string]decimal.Decimal, len(raw))
	for symbol, value := range raw {
		price, err := decimal.NewFromString(value)
		if err != nil {
			return nil, fmt.Errorf("price source: bad quote for %s: %w", symbol, err)
		}
		quotes[strings.ToUpper(symbol)] = price
	}
	return quotes, nil
}
