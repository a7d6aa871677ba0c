// Package respcache memoizes raw remote responses with a TTL.
package respcache

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"candlelens/internal/config"
)

// Cache stores response bodies by key.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

// Nop never stores anything.
type Nop struct{}

// Get always misses.
func (Nop) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }

// Set discards the value.
func (Nop) Set(context.Context, string, []byte, time.Duration) error { return nil }

// Close is a no-op.
func (Nop) Close() error { return nil }

// New opens the backend selected by the [cache] config section.
func New(cfg config.CacheConfig, logger zerolog.Logger) (Cache, error) {
	switch cfg.Backend {
	case "", "none":
		return Nop{}, nil
	case "memory", "buntdb":
		path := ""
		if cfg.Backend == "buntdb" {
			path = cfg.Path
		}
		c, err := NewBuntCache(path)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "redis":
		c, err := NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("Redis unavailable, response cache disabled")
			return Nop{}, nil
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
