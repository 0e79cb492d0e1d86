// Package cache provides a thin wrapper around go-redis/v9 used as a
// string key/value cache.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis wraps a go-redis client.
type Redis struct {
	rdb *redis.Client
}

// NewRedis parses a redis:// URL, connects, and verifies the connection
// with a PING.
func NewRedis(ctx context.Context, url string) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	rdb := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return &Redis{rdb: rdb}, nil
}

// Get returns the value stored at key. A missing key yields an error for
// which IsMiss reports true.
func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	return r.rdb.Get(ctx, key).Result()
}

// Set stores value with the given TTL.
func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.rdb.Set(ctx, key, value, ttl).Err()
}

// IsMiss reports whether err means the key does not exist.
func (r *Redis) IsMiss(err error) bool {
	return errors.Is(err, redis.Nil)
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Close closes the underlying connection pool.
func (r *Redis) Close() error {
	return r.rdb.Close()
}
