package asset

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/textpesa/textpesa/internal/cache"
	"github.com/textpesa/textpesa/internal/chain"
)

// Scope selects what Invalidate clears.
type Scope string

const (
	ScopeAll    Scope = "all"
	ScopePrices Scope = "prices"
	ScopeTokens Scope = "tokens"
)

// Cache key layout. Token metadata and prices live under distinct prefixes
// so they can be invalidated independently.
const (
	keyPrefix   = "asset:"
	symPrefix   = keyPrefix + "sym:"
	idPrefix    = keyPrefix + "id:"
	pricePrefix = keyPrefix + "price:"
	keyAll      = keyPrefix + "all"
)

// ErrNoPriceSource indicates no quote is available from any tier.
var ErrNoPriceSource = errors.New("no price available")

// Registry is the authoritative view of transferable assets. Metadata reads
// go through a short-TTL cache; price reads go cache, then the persisted
// price table, then the external source, bounding external call volume.
type Registry struct {
	repo   Repository
	cache  cache.Cache
	chain  chain.Client
	source PriceSource

	nativeSymbol   string
	cacheTTL       time.Duration
	priceFreshness time.Duration
	now            func() time.Time
}

// Options tunes registry behavior.
type Options struct {
	NativeSymbol   string
	CacheTTL       time.Duration
	PriceFreshness time.Duration
	// Now overrides the clock in tests.
	Now func() time.Time
}

// NewRegistry builds a token registry. source may be nil when no external
// price provider is configured; persisted prices are then served regardless
// of age.
func NewRegistry(repo Repository, c cache.Cache, chainClient chain.Client, source PriceSource, opts Options) *Registry {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Registry{
		repo:           repo,
		cache:          c,
		chain:          chainClient,
		source:         source,
		nativeSymbol:   strings.ToUpper(opts.NativeSymbol),
		cacheTTL:       opts.CacheTTL,
		priceFreshness: opts.PriceFreshness,
		now:            now,
	}
}

// NativeSymbol returns the reserved base-asset symbol.
func (r *Registry) NativeSymbol() string {
	return r.nativeSymbol
}

// Resolve maps a user-supplied symbol or contract address to an asset. The
// native symbol is reserved and bypasses the registry lookup.
func (r *Registry) Resolve(ctx context.Context, symbolOrID string) (SupportedAsset, error) {
	if strings.EqualFold(symbolOrID, r.nativeSymbol) {
		return Native(r.nativeSymbol), nil
	}
	if strings.HasPrefix(symbolOrID, "0x") {
		return r.ByID(ctx, symbolOrID)
	}
	return r.BySymbol(ctx, symbolOrID)
}

// BySymbol returns the active asset for a symbol, consulting the cache first.
func (r *Registry) BySymbol(ctx context.Context, symbol string) (SupportedAsset, error) {
	key := symPrefix + strings.ToUpper(symbol)

	var cached SupportedAsset
	if hit, err := r.cache.Get(ctx, key, &cached); err == nil && hit {
		return cached, nil
	}

	a, err := r.repo.BySymbol(ctx, symbol)
	if err != nil {
		return SupportedAsset{}, err
	}
	_ = r.cache.Set(ctx, key, a, r.cacheTTL)
	return a, nil
}

// ByID returns the asset for a contract identifier, consulting the cache first.
func (r *Registry) ByID(ctx context.Context, id string) (SupportedAsset, error) {
	key := idPrefix + strings.ToLower(id)

	var cached SupportedAsset
	if hit, err := r.cache.Get(ctx, key, &cached); err == nil && hit {
		return cached, nil
	}

	a, err := r.repo.ByID(ctx, id)
	if err != nil {
		return SupportedAsset{}, err
	}
	_ = r.cache.Set(ctx, key, a, r.cacheTTL)
	return a, nil
}

// All returns the full list of transferable assets.
func (r *Registry) All(ctx context.Context) ([]SupportedAsset, error) {
	var cached []SupportedAsset
	if hit, err := r.cache.Get(ctx, keyAll, &cached); err == nil && hit {
		return cached, nil
	}

	assets, err := r.repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	_ = r.cache.Set(ctx, keyAll, assets, r.cacheTTL)
	return assets, nil
}

// Balance reads the on-chain balance for an address. Balances are never
// cached: settlement depends on them being fresh.
func (r *Registry) Balance(ctx context.Context, address string, a SupportedAsset) (decimal.Decimal, error) {
	if a.IsNative() {
		bal, err := r.chain.NativeBalance(ctx, address)
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromBigInt(bal, -a.Decimals), nil
	}
	bal, err := r.chain.TokenBalance(ctx, address, a.ID)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromBigInt(bal, -a.Decimals), nil
}

// Price returns a USD quote for the symbol using the three-tier order:
// in-memory cache, persisted table (fresh rows only), external source.
func (r *Registry) Price(ctx context.Context, symbol string) (Price, error) {
	symbol = strings.ToUpper(symbol)
	key := pricePrefix + symbol

	var cached Price
	if hit, err := r.cache.Get(ctx, key, &cached); err == nil && hit {
		return cached, nil
	}

	persisted, err := r.repo.GetPrice(ctx, symbol)
	if err == nil {
		fresh := r.now().Sub(persisted.UpdatedAt) <= r.priceFreshness
		if fresh || r.source == nil {
			_ = r.cache.Set(ctx, key, persisted, r.cacheTTL)
			return persisted, nil
		}
	} else if !errors.Is(err, ErrNotFound) {
		return Price{}, err
	}

	if r.source == nil {
		return Price{}, ErrNoPriceSource
	}

	quotes, err := r.source.Quote(ctx, []string{symbol})
	if err != nil {
		return Price{}, err
	}
	usd, ok := quotes[symbol]
	if !ok {
		return Price{}, fmt.Errorf("%w: %s", ErrNoPriceSource, symbol)
	}

	price := Price{Symbol: symbol, USD: usd, UpdatedAt: r.now().UTC()}
	if err := r.repo.UpsertPrice(ctx, price); err != nil {
		return Price{}, err
	}
	_ = r.cache.Set(ctx, key, price, r.cacheTTL)
	return price, nil
}

// RefreshPrices re-quotes every active asset plus the native symbol and
// persists the results. Run on a background interval to keep the second tier
// warm.
func (r *Registry) RefreshPrices(ctx context.Context) error {
	if r.source == nil {
		return nil
	}

	assets, err := r.repo.ListActive(ctx)
	if err != nil {
		return err
	}

	symbols := []string{r.nativeSymbol}
	for _, a := range assets {
		symbols = append(symbols, strings.ToUpper(a.Symbol))
	}

	quotes, err := r.source.Quote(ctx, symbols)
	if err != nil {
		return err
	}

	for symbol, usd := range quotes {
		price := Price{Symbol: symbol, USD: usd, UpdatedAt: r.now().UTC()}
		if err := r.repo.UpsertPrice(ctx, price); err != nil {
			return err
		}
		_ = r.cache.Set(ctx, pricePrefix+symbol, price, r.cacheTTL)
	}
	return nil
}

// Invalidate clears cached state for the given scope.
func (r *Registry) Invalidate(ctx context.Context, scope Scope) error {
	switch scope {
	case ScopeAll:
		return r.cache.DeletePrefix(ctx, keyPrefix)
	case ScopePrices:
		return r.cache.DeletePrefix(ctx, pricePrefix)
	case ScopeTokens:
		if err := r.cache.DeletePrefix(ctx, symPrefix); err != nil {
			return err
		}
		if err := r.cache.DeletePrefix(ctx, idPrefix); err != nil {
			return err
		}
		return r.cache.DeletePrefix(ctx, keyAll)
	default:
		return fmt.Errorf("unknown invalidation scope %q", scope)
	}
}
