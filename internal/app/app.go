package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/shop-orders/internal/domain/order"
	"github.com/xenking/shop-orders/internal/domain/product"
	"github.com/xenking/shop-orders/internal/handler"
	"github.com/xenking/shop-orders/internal/payment"
	"github.com/xenking/shop-orders/internal/storage/postgres"
	"github.com/xenking/shop-orders/internal/storage/redis"
	"github.com/xenking/shop-orders/pkg/health"
	"github.com/xenking/shop-orders/pkg/httpmiddleware"
	"github.com/xenking/shop-orders/pkg/keylock"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m httpmiddleware.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New()
	healthSvc.Add(health.Readiness, "postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.Add(health.Liveness, "goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Repositories. Redis, when configured, shares order locks between
	// replicas and caches the catalog listing.
	var (
		products product.Repository = postgres.NewProductRepository(pool)
		locker   order.Locker       = keylock.New()
	)
	orders := postgres.NewOrderRepository(pool)

	if cfg.Redis.Addr != "" {
		rdb, err := redis.NewClient(ctx, cfg.Redis.Addr)
		if err != nil {
			return errors.Wrap(err, "connect redis")
		}
		defer func() { _ = rdb.Close() }()

		healthSvc.Add(health.Readiness, "redis", 2*time.Second, func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
		products = redis.NewCatalogCache(products, rdb, cfg.Redis.CatalogTTL)
		locker = redis.NewLocker(rdb, cfg.Redis.LockTTL)
		lg.Info("Redis enabled", zap.String("addr", redactRedis(cfg.Redis.Addr)))
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	gateway := payment.NewClient(payment.ClientConfig{
		URL:            cfg.Payment.URL,
		Timeout:        cfg.Payment.Timeout,
		TracerProvider: m.TracerProvider(),
	})

	orderService, err := order.NewService(products, orders, gateway, locker,
		order.WithTracerProvider(m.TracerProvider()),
		order.WithMeterProvider(m.MeterProvider()),
	)
	if err != nil {
		return errors.Wrap(err, "create order service")
	}

	// Router: health endpoints + API routes on one server.
	router := chi.NewRouter()
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	handler.NewHandler(products, orderService).Mount(router)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		// Payment holds the request open for the gateway round trip.
		WriteTimeout:   cfg.Payment.Timeout + 10*time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
		Addr:           cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.Recovery(lg),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				Origins:          cfg.CORS.Origins,
				Headers:          []string{"Content-Type", httpmiddleware.RequestIDHeader},
				Expose:           []string{"Location", httpmiddleware.RequestIDHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.RouteContext(),
			httpmiddleware.Instrument("shop-api", m),
			httpmiddleware.LogRequests(),
			httpmiddleware.Labeler(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// redactRedis hides the password of a redis:// URL for logging.
func redactRedis(addr string) string {
	opts, err := goredis.ParseURL(addr)
	if err != nil {
		return addr
	}
	return opts.Addr
}
