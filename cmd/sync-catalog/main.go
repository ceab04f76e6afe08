// Command sync-catalog mirrors the product catalog into the local database.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/shop-orders/internal/catalog"
	"github.com/xenking/shop-orders/internal/storage/postgres"
	"github.com/xenking/shop-orders/internal/storage/redis"
)

func main() {
	var (
		databaseURL string
		source      string
		redisAddr   string
		concurrency int
		timeout     time.Duration
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&source, "source", catalog.DefaultURL, "catalog URL or local JSON file (.gz allowed)")
	flag.StringVar(&redisAddr, "redis-addr", "", "Redis address whose catalog cache is invalidated (or REDIS_URL env)")
	flag.IntVar(&concurrency, "concurrency", catalog.DefaultConcurrency, "parallel upserts")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "catalog download timeout")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if redisAddr == "" {
		redisAddr = os.Getenv("REDIS_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, source, redisAddr, concurrency, timeout); err != nil {
		slog.Error("sync failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("sync completed successfully")
}

func run(ctx context.Context, databaseURL, source, redisAddr string, concurrency int, timeout time.Duration) error {
	slog.Info("loading catalog", slog.String("source", source))

	products, err := catalog.NewLoader(timeout).Load(ctx, source)
	if err != nil {
		return errors.Wrap(err, "load catalog")
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	repo := postgres.NewProductRepository(pool)
	n, err := catalog.Sync(ctx, repo, products, concurrency)
	if err != nil {
		return errors.Wrap(err, "sync products")
	}
	slog.Info("upserted products", slog.Int("count", n))

	if redisAddr == "" {
		return nil
	}
	rdb, err := redis.NewClient(ctx, redisAddr)
	if err != nil {
		return errors.Wrap(err, "connect redis")
	}
	defer func() { _ = rdb.Close() }()

	if err := redis.NewCatalogCache(repo, rdb, 0).Invalidate(ctx); err != nil {
		return errors.Wrap(err, "invalidate catalog cache")
	}
	slog.Info("catalog cache invalidated")

	return nil
}
