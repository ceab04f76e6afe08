package catalog

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/go-faster/errors"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/shop-orders/internal/domain/product"
)

// DefaultConcurrency is the number of concurrent upserts used by Sync.
const DefaultConcurrency = 8

// Store receives products during a sync.
type Store interface {
	Upsert(ctx context.Context, p product.Product) error
}

// Sync upserts every product into store using at most concurrency workers.
// It stops at the first failure and returns the number of products written.
func Sync(ctx context.Context, store Store, products []product.Product, concurrency int) (int, error) {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	var written atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, p := range products {
		g.Go(func() error {
			if err := store.Upsert(ctx, p); err != nil {
				return errors.Wrapf(err, "upsert product %d", p.ID)
			}
			if n := written.Add(1); n%100 == 0 {
				slog.Info("sync progress", slog.Int64("written", n), slog.Int("total", len(products)))
			}
			return nil
		})
	}

	err := g.Wait()
	return int(written.Load()), err
}
