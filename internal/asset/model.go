package asset

import (
	"time"

	"github.com/shopspring/decimal"
)

// SupportedAsset describes a transferable asset type. ID is the token
// contract address, or the reserved native identifier for the chain's base
// asset.
type SupportedAsset struct {
	ID       string `json:"id"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals int32  `json:"decimals"`
	Active   bool   `json:"active"`
}

// NativeID is the asset identifier used for the chain's base asset, which
// has no contract address.
const NativeID = "native"

// NativeDecimals is the precision of the base asset.
const NativeDecimals = 18

// Native builds the reserved base-asset descriptor for the configured symbol.
func Native(symbol string) SupportedAsset {
	return SupportedAsset{
		ID:       NativeID,
		Symbol:   symbol,
		Name:     symbol,
		Decimals: NativeDecimals,
		Active:   true,
	}
}

// IsNative reports whether the asset is the chain's base asset.
func (a SupportedAsset) IsNative() bool {
	return a.ID == NativeID
}

// Price is a persisted quote for one asset symbol.
type Price struct {
	Symbol    string          `json:"symbol"`
	USD       decimal.Decimal `json:"usd"`
	UpdatedAt time.Time       `json:"updated_at"`
}
