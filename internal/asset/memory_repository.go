package asset

import (
	"context"
	"sort"
	"strings"
	"sync"
)

type memoryRepository struct {
	mu     sync.RWMutex
	assets map[string]SupportedAsset // keyed by lower-cased ID
	prices map[string]Price          // keyed by upper-cased symbol
}

// NewMemoryRepository constructs an in-memory asset store for tests.
func NewMemoryRepository(assets ...SupportedAsset) Repository {
	r := &memoryRepository{
		assets: make(map[string]SupportedAsset),
		prices: make(map[string]Price),
	}
	for _, a := range assets {
		r.assets[strings.ToLower(a.ID)] = a
	}
	return r
}

func (r *memoryRepository) BySymbol(_ context.Context, symbol string) (SupportedAsset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.assets {
		if a.Active && strings.EqualFold(a.Symbol, symbol) {
			return a, nil
		}
	}
	return SupportedAsset{}, ErrNotFound
}

func (r *memoryRepository) ByID(_ context.Context, id string) (SupportedAsset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.assets[strings.ToLower(id)]
	if !ok {
		return SupportedAsset{}, ErrNotFound
	}
	return a, nil
}

func (r *memoryRepository) ListActive(_ context.Context) ([]SupportedAsset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var assets []SupportedAsset
	for _, a := range r.assets {
		if a.Active {
			assets = append(assets, a)
		}
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i].Symbol < assets[j].Symbol })
	return assets, nil
}

func (r *memoryRepository) GetPrice(_ context.Context, symbol string) (Price, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.prices[strings.ToUpper(symbol)]
	if !ok {
		return Price{}, ErrNotFound
	}
	return p, nil
}

func (r *memoryRepository) UpsertPrice(_ context.Context, price Price) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	price.Symbol = strings.ToUpper(price.Symbol)
	r.prices[price.Symbol] = price
	return nil
}
