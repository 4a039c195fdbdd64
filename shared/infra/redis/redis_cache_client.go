package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrNil is returned by Get for a missing key.
var ErrNil = errors.New("redis: nil")

type Logger interface {
	Info(ctx context.Context, message string, fields ...zap.Field)
	Error(ctx context.Context, message string, fields ...zap.Field)
}

type Client interface {
	Set(ctx context.Context, key string, value interface{}) error
	SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, expiration time.Duration) error
	Del(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

type Options struct {
	Address           string
	Password          string
	DB                int
	ConnectionTimeout time.Duration
}

type client struct {
	rdb               *goredis.Client
	logger            Logger
	connectionTimeout time.Duration
}

func NewClient(options Options, logger Logger) *client {
	return &client{
		rdb: goredis.NewClient(&goredis.Options{
			Addr:        options.Address,
			Password:    options.Password,
			DB:          options.DB,
			DialTimeout: options.ConnectionTimeout,
		}),
		logger:            logger,
		connectionTimeout: options.ConnectionTimeout,
	}
}

func (c *client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.connectionTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.connectionTimeout)
}

func (c *client) Set(ctx context.Context, key string, value interface{}) error {
	return c.SetWithTTL(ctx, key, value, 0)
}

func (c *client) SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	return c.rdb.Set(ctx, key, value, ttl).Err()
}

func (c *client) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	value, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, ErrNil
		}
		return nil, err
	}

	return value, nil
}

func (c *client) Incr(ctx context.Context, key string) (int64, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	return c.rdb.Incr(ctx, key).Result()
}

func (c *client) Expire(ctx context.Context, key string, expiration time.Duration) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	return c.rdb.Expire(ctx, key, expiration).Err()
}

func (c *client) Del(ctx context.Context, key string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	return c.rdb.Del(ctx, key).Err()
}

func (c *client) Ping(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := c.rdb.Ping(ctx).Err(); err != nil {
		c.logger.Error(ctx, "redis ping failed", zap.Error(err))
		return fmt.Errorf("redis ping: %w", err)
	}

	return nil
}

func (c *client) Close() error {
	return c.rdb.Close()
}
