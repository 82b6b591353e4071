// Package cache stores deterministic agent responses so repeated prompts
// skip the model.
package cache

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/blake2b"

	"github.com/agentshub/internal/config"
)

// ErrMiss is returned by Get when no entry exists.
var ErrMiss = errors.New("cache: miss")

// Cache is a string key/value store with expiry.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Close() error
}

// Key derives a stable cache key from its parts.
func Key(parts ...string) string {
	sum := blake2b.Sum256([]byte(strings.Join(parts, "\x00")))
	return "agentshub:resp:" + hex.EncodeToString(sum[:16])
}

// NoopCache never stores anything.
type NoopCache struct{}

func (NoopCache) Get(context.Context, string) (string, error) {
	return "", ErrMiss
}

func (NoopCache) Set(context.Context, string, string, time.Duration) error {
	return nil
}

func (NoopCache) Close() error {
	return nil
}

// RedisCache is backed by a Redis server.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache wraps an existing client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	if err != nil {
		return "", fmt.Errorf("cache get: %w", err)
	}
	return val, nil
}

func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// New returns a Redis cache when an address is configured and reachable,
// otherwise a NoopCache.
func New(ctx context.Context, cfg config.CacheConfig) Cache {
	if cfg.RedisAddr == "" {
		return NoopCache{}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("Redis unreachable, response cache disabled")
		_ = client.Close()
		return NoopCache{}
	}

	log.Info().Str("addr", cfg.RedisAddr).Dur("ttl", cfg.TTL).Msg("Response cache enabled")
	return NewRedisCache(client)
}
