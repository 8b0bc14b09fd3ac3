package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/caraseli02/MoldovaDirect-sub004/internal/client"
	"github.com/caraseli02/MoldovaDirect-sub004/internal/config"
	"github.com/caraseli02/MoldovaDirect-sub004/internal/event"
	handler "github.com/caraseli02/MoldovaDirect-sub004/internal/handler/http"
	"github.com/caraseli02/MoldovaDirect-sub004/internal/repository"
	"github.com/caraseli02/MoldovaDirect-sub004/internal/repository/memory"
	"github.com/caraseli02/MoldovaDirect-sub004/internal/repository/postgres"
	redisrepo "github.com/caraseli02/MoldovaDirect-sub004/internal/repository/redis"
	"github.com/caraseli02/MoldovaDirect-sub004/internal/service"
	"github.com/caraseli02/MoldovaDirect-sub004/internal/validation"
	"github.com/caraseli02/MoldovaDirect-sub004/migrations"
	"github.com/caraseli02/MoldovaDirect-sub004/pkg/database"
	"github.com/caraseli02/MoldovaDirect-sub004/pkg/health"
	"github.com/caraseli02/MoldovaDirect-sub004/pkg/httpclient"
	pkgkafka "github.com/caraseli02/MoldovaDirect-sub004/pkg/kafka"
	"github.com/caraseli02/MoldovaDirect-sub004/pkg/middleware"
	"github.com/caraseli02/MoldovaDirect-sub004/pkg/tracing"
)

// idleSweepInterval is how often idle checkout entries are evicted from
// memory. Their state survives in the snapshot store.
const idleSweepInterval = time.Minute

// App wires together all dependencies and runs the checkout service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *goredis.Client
	sweeper        *postgres.SnapshotStore
	producer       *pkgkafka.Producer
	manager        *service.Manager
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    "checkout",
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	a := &App{
		cfg:            cfg,
		logger:         logger,
		tracerShutdown: tracerShutdown,
	}

	healthHandler := health.NewHandler()

	// Snapshot store.
	store, err := a.openStore(ctx, healthHandler)
	if err != nil {
		a.closeResources()
		return nil, err
	}

	// Kafka producer. Without brokers events are dropped.
	var events service.EventPublisher = service.NoopEventPublisher{}
	if cfg.KafkaEnabled {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		events = event.NewProducer(a.producer, logger)
		healthHandler.RegisterNonCritical("kafka", a.producer.Ping)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	} else {
		logger.Warn("kafka disabled, checkout events will not be published")
	}

	// Downstream service clients, one circuit breaker per service so an
	// outage in one does not trip calls to the others.
	clientCfg := httpclient.DefaultConfig()
	clientCfg.Timeout = cfg.DownstreamTimeout
	clientCfg.RetryWaitMin = 500 * time.Millisecond
	baseClient := httpclient.New(clientCfg)
	breaker := func(name string) httpclient.Doer {
		cbCfg := httpclient.DefaultCircuitBreakerConfig("checkout-" + name)
		cbCfg.MaxRequests = cfg.CBMaxRequests
		cbCfg.Interval = time.Duration(cfg.CBInterval) * time.Second
		cbCfg.Timeout = time.Duration(cfg.CBTimeout) * time.Second
		cbCfg.FailureRatio = cfg.CBFailureRatio
		cbCfg.MinRequests = cfg.CBMinRequests
		cb := httpclient.NewCircuitBreakerClient(baseClient, cbCfg, logger)
		healthHandler.RegisterNonCritical("downstream_"+name, cb.Check)
		return cb.WithFallback(client.CircuitOpenFallback)
	}
	logger.Info("circuit breakers initialized",
		slog.Uint64("max_requests", uint64(cfg.CBMaxRequests)),
		slog.Int("timeout_seconds", cfg.CBTimeout),
		slog.Uint64("min_requests", uint64(cfg.CBMinRequests)),
	)

	payments := client.NewPaymentClient(breaker("payment"), cfg.PaymentServiceURL)
	deps := service.Dependencies{
		Store:        store,
		Cart:         client.NewCartClient(breaker("cart"), cfg.CartServiceURL),
		Auth:         client.ForwardedAuth{},
		Rates:        client.NewShippingClient(breaker("shipping"), cfg.ShippingServiceURL),
		Gateway:      payments,
		SavedMethods: payments,
		Orders:       client.NewOrderClient(breaker("order"), cfg.OrderServiceURL),
		Notifier:     client.NewNotificationClient(breaker("notification"), cfg.NotificationServiceURL),
		Profile:      client.NewProfileClient(breaker("user"), cfg.UserServiceURL),
		Validator:    validation.New(),
		Events:       events,
		Logger:       logger,
	}

	opts := service.Options{
		SessionTTL:      cfg.SessionTTL,
		CartLockTTL:     cfg.CartLockTTL,
		CartLockPolicy:  service.CartLockPolicy(cfg.CartLockPolicy),
		TaxRateBP:       cfg.TaxRateBP,
		DefaultCurrency: cfg.DefaultCurrency,
		Locale:          cfg.DefaultLocale,
	}
	a.manager = service.NewManager(deps, opts, cfg.IdleEvictionTime)

	// HTTP router.
	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.CORSOrigins
	corsCfg.Environment = cfg.Environment
	router := handler.NewRouter(a.manager, healthHandler, handler.RouterConfig{
		CORS: corsCfg,
		RateLimit: middleware.RateLimitConfig{
			RPS:   cfg.RateLimitRPS,
			Burst: cfg.RateLimitBurst,
		},
		CookieSecure: cfg.CookieSecure,
	}, logger)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// openStore connects the configured snapshot backend and registers its
// readiness check.
func (a *App) openStore(ctx context.Context, healthHandler *health.Handler) (repository.SnapshotStore, error) {
	cfg, logger := a.cfg, a.logger

	switch cfg.SessionStore {
	case config.StoreRedis:
		rdb, err := database.NewRedisClient(ctx, cfg.RedisConfig())
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.redis = rdb
		logger.Info("connected to Redis",
			slog.String("addr", cfg.RedisConfig().Addr()),
			slog.Int("db", cfg.RedisDB),
		)
		store := redisrepo.NewSnapshotStore(rdb)
		healthHandler.Register("redis", store.Ping)
		return store, nil

	case config.StorePostgres:
		pgCfg := cfg.PostgresConfig()
		pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		a.pool = pool
		logger.Info("connected to PostgreSQL",
			slog.String("host", cfg.PostgresHost),
			slog.Int("port", cfg.PostgresPort),
			slog.String("database", cfg.PostgresDB),
		)
		if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, "checkout"); err != nil {
			logger.Warn("failed to register pool metrics", slog.String("error", err.Error()))
		}

		if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("database migrations completed")

		if cfg.SlowQueryThresholdMs > 0 {
			database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, logger)
		}

		store := postgres.NewSnapshotStore(pool)
		a.sweeper = store
		healthHandler.Register("postgres", store.Ping)
		return store, nil

	default:
		logger.Warn("using in-memory snapshot store, checkout sessions will not survive restarts")
		store := memory.NewSnapshotStore()
		healthHandler.Register("snapshot_store", store.Ping)
		return store, nil
	}
}

// Run starts the HTTP server and background workers, and blocks until the
// context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	go a.manager.Run(workerCtx, idleSweepInterval)
	if a.sweeper != nil {
		go a.sweeper.RunSweeper(workerCtx, a.cfg.SnapshotSweepInterval, a.logger)
	}

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		stopWorkers()
		_ = a.Shutdown()
		return err
	}

	stopWorkers()
	return a.Shutdown()
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Tracer (flush pending spans from drained requests)
// 3. Kafka producer
// 4. Snapshot store connections
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Drain in-flight HTTP requests.
	httpCtx, httpCancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	errs = append(errs, a.closeResources()...)

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// closeResources releases everything opened by NewApp except the HTTP
// server.
func (a *App) closeResources() []error {
	var errs []error

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.pool != nil {
		a.pool.Close()
	}
	return errs
}
