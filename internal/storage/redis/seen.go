// Package redis shares a product seen-set between workers so a product
// already written by any worker within the TTL is not inserted again.
package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const seenPrefix = "seen:product:"

// DefaultTTL is how long a product key is remembered.
const DefaultTTL = 24 * time.Hour

// Config selects the Redis server.
type Config struct {
	Addr       string `mapstructure:"addr"`
	SeenTTLMin int    `mapstructure:"seen_ttl_minutes"`
}

type keyClient interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *goredis.BoolCmd
	Del(ctx context.Context, keys ...string) *goredis.IntCmd
}

// SeenSet records product keys with SETNX.
type SeenSet struct {
	client keyClient
	ttl    time.Duration
}

// NewSeenSet wraps client. A non-positive ttl uses DefaultTTL.
func NewSeenSet(client keyClient, ttl time.Duration) *SeenSet {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SeenSet{client: client, ttl: ttl}
}

// Dial connects to cfg.Addr and pings it.
func Dial(ctx context.Context, cfg Config) (*goredis.Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis.addr is empty")
	}
	client := goredis.NewClient(&goredis.Options{Addr: cfg.Addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// FirstSeen marks key as seen and reports whether this call was the first.
func (s *SeenSet) FirstSeen(ctx context.Context, key string) (bool, error) {
	ok, err := s.client.SetNX(ctx, Key(key), "1", s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx seen key: %w", err)
	}
	return ok, nil
}

// Forget drops key so the next FirstSeen for it reports true again.
func (s *SeenSet) Forget(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, Key(key)).Err(); err != nil {
		return fmt.Errorf("del seen key: %w", err)
	}
	return nil
}

// Key hashes a product identity into a bounded Redis key.
func Key(identity string) string {
	sum := sha256.Sum256([]byte(identity))
	return seenPrefix + hex.EncodeToString(sum[:16])
}
