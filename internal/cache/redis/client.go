// Package redis implements state persistence, session locking and order
// rate limiting on go-redis/v9.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// clientName tags spotbot connections in CLIENT LIST.
const clientName = "spotbot"

// ClientConfig mirrors the [redis] section of the config file.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
}

func (cfg ClientConfig) options() *redis.Options {
	opts := &redis.Options{
		Addr:                  cfg.Addr,
		Password:              cfg.Password,
		DB:                    cfg.DB,
		ClientName:            clientName,
		PoolSize:              cfg.PoolSize,
		MaxRetries:            cfg.MaxRetries,
		ContextTimeoutEnabled: true,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts
}

// Client is the shared connection behind the state store, the session lock
// and the order rate limiter.
type Client struct {
	rdb *redis.Client
}

// New connects and pings; an unreachable server is an error.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	rdb := redis.NewClient(cfg.options())
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}
	return &Client{rdb: rdb}, nil
}

// Close closes the connection pool.
func (c *Client) Close() error { return c.rdb.Close() }

// Underlying returns the go-redis client for the stores in this package.
func (c *Client) Underlying() *redis.Client { return c.rdb }
