package services

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/directory-search/internal/cache"
	"github.com/BradenHooton/directory-search/internal/mapper"
	"github.com/BradenHooton/directory-search/internal/models"
	"github.com/BradenHooton/directory-search/internal/searchengine"
)

// testEnv wires the index services against an in-memory Bleve engine and
// in-memory pointers.
type testEnv struct {
	engine   *searchengine.BleveEngine
	pointers *cache.Pointers
	logger   *slog.Logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	engine, err := searchengine.NewBleveEngine("", slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	return &testEnv{
		engine:   engine,
		pointers: cache.NewPointers(cache.NewMemoryStore(time.Minute)),
		logger:   slog.Default(),
	}
}

func (e *testEnv) userGenerations() *Generations {
	return NewGenerations(UsersIndexPrefix, cache.KeyUserIndex, mapper.UsersStructure, e.engine, e.pointers, e.logger)
}

func (e *testEnv) deviceGenerations() *Generations {
	return NewGenerations(DevicesIndexPrefix, cache.KeyDeviceIndex, mapper.DevicesStructure, e.engine, e.pointers, e.logger)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func singlePage[T any](items ...T) func(ctx context.Context, page, pageSize int) (models.Page[T], error) {
	return func(ctx context.Context, page, pageSize int) (models.Page[T], error) {
		return models.Page[T]{Items: items, NumberOfPages: 1}, nil
	}
}
