// Package redis implements the dedup store on Redis SET NX EX.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// sentinel is the value stored under every claim key.
const sentinel = "1"

// Config addresses the Redis server.
type Config struct {
	Addr     string
	Password string
	DB       int
}

type client interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *goredis.BoolCmd
	Exists(ctx context.Context, keys ...string) *goredis.IntCmd
	Ping(ctx context.Context) *goredis.StatusCmd
	Close() error
}

// Store is a notice.DedupStore backed by Redis.
type Store struct {
	client client
}

// New connects a Store. It does not contact the server; call Ping.
func New(cfg Config) *Store {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Store{client: rdb}
}

// NewWithClient wraps an existing client (primarily for testing).
func NewWithClient(c *goredis.Client) *Store {
	return &Store{client: c}
}

// Exists reports whether key is set.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// SetWithTTL sets key to the sentinel only if absent. It reports whether
// this call created the key.
func (s *Store) SetWithTTL(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, sentinel, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

// Ping checks the server is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("redis close: %w", err)
	}
	return nil
}
