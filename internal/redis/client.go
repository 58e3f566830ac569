package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Client wraps the Redis client
type Client struct {
	*redis.Client
	prefix string
	logger *zap.Logger
}

// Config holds Redis configuration
type Config struct {
	Host        string        `env:"REDIS_HOST" envDefault:"localhost"`
	Port        string        `env:"REDIS_PORT" envDefault:"6379"`
	Password    string        `env:"REDIS_PASSWORD"`
	DB          int           `env:"REDIS_DB" envDefault:"0"`
	PoolSize    int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	DialTimeout time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"10s"`
	KeyPrefix   string        `env:"REDIS_KEY_PREFIX" envDefault:"bossdrop"`
}

// NewClient creates a new Redis client with the provided configuration
func NewClient(ctx context.Context, config *Config, logger *zap.Logger) (*Client, error) {
	addr := fmt.Sprintf("%s:%s", config.Host, config.Port)

	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		PoolTimeout:  30 * time.Second,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	c := Wrap(rdb, config.KeyPrefix, logger)
	c.logger.Info("connected",
		zap.String("addr", addr),
		zap.Int("db", config.DB),
		zap.Int("pool_size", config.PoolSize),
	)
	return c, nil
}

// Wrap adopts an existing go-redis client
func Wrap(rdb *redis.Client, prefix string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		Client: rdb,
		prefix: prefix,
		logger: logger.With(zap.String("component", "redis")),
	}
}

// key namespaces a key with the configured prefix
func (c *Client) key(parts ...string) string {
	k := c.prefix
	for _, p := range parts {
		if k != "" {
			k += ":"
		}
		k += p
	}
	return k
}
