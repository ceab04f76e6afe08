package redis

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/shop-orders/internal/catalog"
	"github.com/xenking/shop-orders/internal/domain/product"
)

const (
	catalogKey        = "catalog:products"
	defaultCatalogTTL = 5 * time.Minute
)

var _ product.Repository = (*CatalogCache)(nil)

// CatalogCache serves the product listing from Redis and falls through to the
// wrapped repository on a miss. Single-product lookups always go to the
// wrapped repository so stock checks see the stored value.
//
// Redis failures are logged and never surface to the caller.
type CatalogCache struct {
	next   product.Repository
	client redis.Cmdable
	ttl    time.Duration
}

// NewCatalogCache wraps next with a listing cache. A non-positive ttl selects
// the default.
func NewCatalogCache(next product.Repository, client redis.Cmdable, ttl time.Duration) *CatalogCache {
	if ttl <= 0 {
		ttl = defaultCatalogTTL
	}
	return &CatalogCache{next: next, client: client, ttl: ttl}
}

// List returns the cached catalog or loads and caches it.
func (c *CatalogCache) List(ctx context.Context) ([]product.Product, error) {
	lg := zctx.From(ctx)

	data, err := c.client.Get(ctx, catalogKey).Bytes()
	switch {
	case err == nil:
		products, derr := catalog.DecodeProducts(data)
		if derr == nil {
			return products, nil
		}
		lg.Warn("Discarding corrupt catalog cache entry", zap.Error(derr))
	case errors.Is(err, redis.Nil):
	default:
		lg.Warn("Catalog cache read failed", zap.Error(err))
	}

	products, err := c.next.List(ctx)
	if err != nil {
		return nil, err
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	catalog.EncodeProducts(e, products)
	if err := c.client.Set(ctx, catalogKey, e.Bytes(), c.ttl).Err(); err != nil {
		lg.Warn("Catalog cache write failed", zap.Error(err))
	}
	return products, nil
}

// GetByID delegates to the wrapped repository.
func (c *CatalogCache) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	return c.next.GetByID(ctx, id)
}

// Invalidate drops the cached listing, typically after a catalog sync.
func (c *CatalogCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, catalogKey).Err(); err != nil {
		return errors.Wrap(err, "invalidate catalog cache")
	}
	return nil
}
