package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/BradenHooton/directory-search/internal/models"
)

// MemoryStore keeps values in process memory. Suitable for development and
// single-process deployments only.
type MemoryStore struct {
	cache *gocache.Cache
}

func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	if cleanupInterval <= 0 {
		cleanupInterval = 10 * time.Minute
	}
	return &MemoryStore{cache: gocache.New(gocache.NoExpiration, cleanupInterval)}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	v, ok := s.cache.Get(key)
	if !ok {
		return "", models.ErrNotFound
	}
	return v.(string), nil
}

func (s *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	s.cache.Set(key, value, ttl)
	return nil
}

func (s *MemoryStore) Close() error {
	s.cache.Flush()
	return nil
}
