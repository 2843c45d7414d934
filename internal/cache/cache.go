package cache

import (
	"context"
	"time"
)

// LookupCache stores JSON-encodable read results (coupon lists, code
// lookups) for a short TTL. A miss is (false, nil).
type LookupCache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

type NoopLookupCache struct{}

func (NoopLookupCache) Get(_ context.Context, _ string, _ any) (bool, error) {
	return false, nil
}

func (NoopLookupCache) Set(_ context.Context, _ string, _ any, _ time.Duration) error {
	return nil
}
