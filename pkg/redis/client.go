// Package redis connects the token cache and exposes the same server to the job queue.
package redis

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Client embeds a go-redis client and remembers how it was dialed.
type Client struct {
	*redis.Client
	opts   *redis.Options
	logger *zap.Logger
}

// NewClient creates a Redis client and verifies connectivity.
func NewClient(ctx context.Context, addr, password string, db int, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := &redis.Options{Addr: addr, Password: password, DB: db}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	logger.Info("Redis client connected", zap.String("addr", addr), zap.Int("db", db))
	return &Client{Client: rdb, opts: opts, logger: logger}, nil
}

// AsynqOpt returns connection options for the job queue on the same server and database.
func (c *Client) AsynqOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: c.opts.Addr, Password: c.opts.Password, DB: c.opts.DB}
}

// Close closes the connection pool.
func (c *Client) Close() error {
	c.logger.Info("Redis client closing")
	return c.Client.Close()
}
