package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/directory-search/internal/config"
)

// Store is a string key-value store with optional expiry. Get returns
// models.ErrNotFound for a missing key.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	// Set stores value under key. A ttl of zero means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Close() error
}

// New builds the store selected by configuration.
func New(ctx context.Context, cfg config.CacheConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Type {
	case config.CacheTypeRedis:
		store, err := NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		logger.Info("using redis cache")
		return store, nil
	case config.CacheTypeMemory, "":
		logger.Warn("using in-memory cache; pointers and login stats are lost on restart")
		return NewMemoryStore(cfg.CleanupInterval), nil
	default:
		return nil, fmt.Errorf("unknown cache type %q", cfg.Type)
	}
}
