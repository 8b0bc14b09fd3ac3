package config

import (
	"fmt"
	"net/url"
	"time"

	pkgconfig "github.com/caraseli02/MoldovaDirect-sub004/pkg/config"
	"github.com/caraseli02/MoldovaDirect-sub004/pkg/database"
)

// Snapshot store backends.
const (
	StoreRedis    = "redis"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds all configuration for the checkout service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort        int           `env:"CHECKOUT_HTTP_PORT" envDefault:"8004"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	CORSOrigins     []string      `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`
	CookieSecure    bool          `env:"CHECKOUT_COOKIE_SECURE" envDefault:"false"`
	RateLimitRPS    float64       `env:"RATE_LIMIT_RPS" envDefault:"10"`
	RateLimitBurst  int           `env:"RATE_LIMIT_BURST" envDefault:"20"`

	// Checkout behaviour
	SessionTTL       time.Duration `env:"SESSION_TTL" envDefault:"30m"`
	CartLockTTL      time.Duration `env:"CART_LOCK_TTL" envDefault:"30m"`
	CartLockPolicy   string        `env:"CART_LOCK_POLICY" envDefault:"degrade"`
	TaxRateBP        int64         `env:"TAX_RATE_BP" envDefault:"0"`
	DefaultCurrency  string        `env:"DEFAULT_CURRENCY" envDefault:"EUR"`
	DefaultLocale    string        `env:"DEFAULT_LOCALE" envDefault:"ro"`
	IdleEvictionTime time.Duration `env:"SESSION_IDLE_EVICTION" envDefault:"30m"`

	// Snapshot store
	SessionStore          string        `env:"SESSION_STORE" envDefault:"redis"`
	SnapshotSweepInterval time.Duration `env:"SNAPSHOT_SWEEP_INTERVAL" envDefault:"5m"`

	// Redis
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"checkout"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"checkout"`
	PostgresDB   string `env:"CHECKOUT_DB_NAME" envDefault:"storefront"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"2"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`

	// Kafka
	KafkaEnabled bool     `env:"KAFKA_ENABLED" envDefault:"true"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Downstream storefront services
	CartServiceURL         string        `env:"CART_SERVICE_URL" envDefault:"http://localhost:8002"`
	ShippingServiceURL     string        `env:"SHIPPING_SERVICE_URL" envDefault:"http://localhost:8009"`
	PaymentServiceURL      string        `env:"PAYMENT_SERVICE_URL" envDefault:"http://localhost:8005"`
	OrderServiceURL        string        `env:"ORDER_SERVICE_URL" envDefault:"http://localhost:8003"`
	NotificationServiceURL string        `env:"NOTIFICATION_SERVICE_URL" envDefault:"http://localhost:8008"`
	UserServiceURL         string        `env:"USER_SERVICE_URL" envDefault:"http://localhost:8001"`
	DownstreamTimeout      time.Duration `env:"DOWNSTREAM_TIMEOUT" envDefault:"10s"`

	// Circuit breaker settings for downstream service calls
	CBMaxRequests  uint32  `env:"CB_MAX_REQUESTS" envDefault:"1"`
	CBInterval     int     `env:"CB_INTERVAL_SECONDS" envDefault:"60"`
	CBTimeout      int     `env:"CB_TIMEOUT_SECONDS" envDefault:"30"`
	CBFailureRatio float64 `env:"CB_FAILURE_RATIO" envDefault:"0.5"`
	CBMinRequests  uint32  `env:"CB_MIN_REQUESTS" envDefault:"5"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Slow query logging
	SlowQueryThresholdMs int `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`
}

// Load reads configuration from environment variables and an optional .env
// file in the working directory.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg, ".env"); err != nil {
		return nil, fmt.Errorf("load checkout config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must not be negative")
	}
	switch c.SessionStore {
	case StoreRedis, StorePostgres, StoreMemory:
	default:
		return fmt.Errorf("SESSION_STORE must be one of redis, postgres, memory, got %q", c.SessionStore)
	}
	switch c.CartLockPolicy {
	case "degrade", "strict":
	default:
		return fmt.Errorf("CART_LOCK_POLICY must be degrade or strict, got %q", c.CartLockPolicy)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL)
	}
	if c.CartLockTTL <= 0 {
		return fmt.Errorf("CART_LOCK_TTL must be positive, got %s", c.CartLockTTL)
	}
	if c.TaxRateBP < 0 || c.TaxRateBP > 10000 {
		return fmt.Errorf("TAX_RATE_BP must be between 0 and 10000, got %d", c.TaxRateBP)
	}
	if len(c.DefaultCurrency) != 3 {
		return fmt.Errorf("DEFAULT_CURRENCY must be a 3-letter code, got %q", c.DefaultCurrency)
	}
	if c.SessionStore == StorePostgres {
		if c.PostgresHost == "" {
			return fmt.Errorf("POSTGRES_HOST is required")
		}
		if c.PostgresUser == "" {
			return fmt.Errorf("POSTGRES_USER is required")
		}
		if c.SnapshotSweepInterval <= 0 {
			return fmt.Errorf("SNAPSHOT_SWEEP_INTERVAL must be positive, got %s", c.SnapshotSweepInterval)
		}
	}
	if c.SessionStore == StoreRedis && c.RedisHost == "" {
		return fmt.Errorf("REDIS_HOST is required")
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	for name, rawURL := range map[string]string{
		"CART_SERVICE_URL":         c.CartServiceURL,
		"SHIPPING_SERVICE_URL":     c.ShippingServiceURL,
		"PAYMENT_SERVICE_URL":      c.PaymentServiceURL,
		"ORDER_SERVICE_URL":        c.OrderServiceURL,
		"NOTIFICATION_SERVICE_URL": c.NotificationServiceURL,
		"USER_SERVICE_URL":         c.UserServiceURL,
	} {
		if rawURL == "" {
			return fmt.Errorf("%s is required", name)
		}
		if _, err := url.ParseRequestURI(rawURL); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, rawURL, err)
		}
	}
	return nil
}

// PostgresConfig returns the pool configuration for the snapshot table.
func (c *Config) PostgresConfig() database.PostgresConfig {
	pc := database.DefaultPostgresConfig()
	pc.Host = c.PostgresHost
	pc.Port = c.PostgresPort
	pc.User = c.PostgresUser
	pc.Password = c.PostgresPass
	pc.DBName = c.PostgresDB
	pc.SSLMode = c.PostgresSSL
	pc.MaxConns = c.DBMaxConns
	pc.MinConns = c.DBMinConns
	if c.DBMaxConnLifetimeMins > 0 {
		pc.MaxConnLifetime = time.Duration(c.DBMaxConnLifetimeMins) * time.Minute
	}
	if c.DBMaxConnIdleTimeMins > 0 {
		pc.MaxConnIdleTime = time.Duration(c.DBMaxConnIdleTimeMins) * time.Minute
	}
	return pc
}

// RedisConfig returns the Redis connection configuration.
func (c *Config) RedisConfig() database.RedisConfig {
	rc := database.DefaultRedisConfig()
	rc.Host = c.RedisHost
	rc.Port = c.RedisPort
	rc.Password = c.RedisPassword
	rc.DB = c.RedisDB
	return rc
}
