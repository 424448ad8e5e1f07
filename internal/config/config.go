package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Store   StoreConfig
	DB      DBConfig
	Redis   RedisConfig
	Session SessionConfig
	Worker  WorkerConfig
	Order   OrderConfig
	Catalog CatalogConfig
	Log     LogConfig
}

type StoreConfig struct {
	Driver  string `env:"STORE_DRIVER" envDefault:"postgres"`
	Migrate bool   `env:"STORE_MIGRATE" envDefault:"true"`
}

type DBConfig struct {
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     int    `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
	Name     string `env:"DB_NAME" envDefault:"ecommerce"`
	SSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`
	MaxConns int32  `env:"DB_MAX_CONNS" envDefault:"10"`
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode,
	)
}

// RedisConfig configures the product snapshot cache. An empty address
// disables caching.
type RedisConfig struct {
	Addr     string        `env:"REDIS_ADDR" envDefault:""`
	Password string        `env:"REDIS_PASSWORD" envDefault:""`
	DB       int           `env:"REDIS_DB" envDefault:"0"`
	TTL      time.Duration `env:"REDIS_PRODUCT_TTL" envDefault:"60s"`
}

func (c RedisConfig) Enabled() bool { return c.Addr != "" }

type SessionConfig struct {
	Secret     string        `env:"SESSION_SECRET" envDefault:"super-secret-key"`
	Expiration time.Duration `env:"SESSION_EXPIRATION" envDefault:"24h"`
}

type WorkerConfig struct {
	Size      int `env:"WORKER_POOL_SIZE" envDefault:"4"`
	QueueSize int `env:"WORKER_QUEUE_SIZE" envDefault:"64"`
}

type OrderConfig struct {
	RetryAttempts int           `env:"ORDER_RETRY_ATTEMPTS" envDefault:"3"`
	RetryBackoff  time.Duration `env:"ORDER_RETRY_BACKOFF" envDefault:"25ms"`
}

type CatalogConfig struct {
	PageSize int `env:"CATALOG_PAGE_SIZE" envDefault:"50"`
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Worker.Size < 1 {
		return fmt.Errorf("worker pool size must be positive, got %d", c.Worker.Size)
	}
	if c.Order.RetryAttempts < 1 {
		return fmt.Errorf("order retry attempts must be positive, got %d", c.Order.RetryAttempts)
	}
	if c.Catalog.PageSize < 1 {
		return fmt.Errorf("catalog page size must be positive, got %d", c.Catalog.PageSize)
	}
	return nil
}
