package billing

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"kasirinaja/terminal/internal/cache"
	"kasirinaja/terminal/internal/domain"
)

// Catalog is the product side of the backend.
type Catalog interface {
	SearchProducts(ctx context.Context, query string) ([]domain.Product, error)
	ProductByQR(ctx context.Context, code string) (domain.Product, error)
	ProductByBarcode(ctx context.Context, code string) (domain.Product, error)
}

// cachedCatalog keeps code lookups in the lookup cache. Misses and errors
// are never cached.
type cachedCatalog struct {
	next  Catalog
	cache cache.LookupCache
	ttl   time.Duration
	log   logrus.FieldLogger
}

func newCachedCatalog(next Catalog, lookupCache cache.LookupCache, ttl time.Duration, logger logrus.FieldLogger) *cachedCatalog {
	if lookupCache == nil {
		lookupCache = cache.NoopLookupCache{}
	}
	return &cachedCatalog{next: next, cache: lookupCache, ttl: ttl, log: logger}
}

func (c *cachedCatalog) SearchProducts(ctx context.Context, query string) ([]domain.Product, error) {
	return c.next.SearchProducts(ctx, query)
}

func (c *cachedCatalog) ProductByQR(ctx context.Context, code string) (domain.Product, error) {
	return c.lookup(ctx, "product:qr:"+code, func() (domain.Product, error) {
		return c.next.ProductByQR(ctx, code)
	})
}

func (c *cachedCatalog) ProductByBarcode(ctx context.Context, code string) (domain.Product, error) {
	return c.lookup(ctx, "product:barcode:"+code, func() (domain.Product, error) {
		return c.next.ProductByBarcode(ctx, code)
	})
}

func (c *cachedCatalog) lookup(ctx context.Context, key string, fetch func() (domain.Product, error)) (domain.Product, error) {
	var cached domain.Product
	hit, err := c.cache.Get(ctx, key, &cached)
	if err != nil {
		c.log.WithError(err).WithField("key", key).Warn("product cache read failed")
	}
	if hit {
		return cached, nil
	}

	product, err := fetch()
	if err != nil {
		return domain.Product{}, err
	}
	if err := c.cache.Set(ctx, key, product, c.ttl); err != nil {
		c.log.WithError(err).WithField("key", key).Warn("product cache write failed")
	}
	return product, nil
}
