// Package cache provides the short-TTL lookup cache used by the token
// registry. The interface is deliberately narrow: JSON get/set with a TTL and
// prefix invalidation, with a Redis implementation for production and an
// in-memory clock-injectable one for tests.
package cache

import (
	"context"
	"time"
)

// Cache stores JSON-encodable values under string keys with per-entry TTLs.
type Cache interface {
	// Get unmarshals the cached value into dest. A miss (absent or expired)
	// returns (false, nil).
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	// DeletePrefix removes every key starting with the given prefix.
	DeletePrefix(ctx context.Context, prefix string) error
}
