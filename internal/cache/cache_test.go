package cache

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/directory-search/internal/config"
	"github.com/BradenHooton/directory-search/internal/models"
)

func TestMemoryStore_GetSet(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	assert.True(t, errors.Is(err, models.ErrNotFound))

	require.NoError(t, store.Set(ctx, "k", "v", 0))
	v, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}

func TestMemoryStore_TTL(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", "v", time.Millisecond))
	time.Sleep(10 * time.Millisecond)

	_, err := store.Get(ctx, "k")
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestNew_Memory(t *testing.T) {
	store, err := New(context.Background(), config.CacheConfig{Type: config.CacheTypeMemory}, slog.Default())
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	_, err = New(context.Background(), config.CacheConfig{Type: "memcached"}, slog.Default())
	assert.Error(t, err)
}

func TestPointers_CurrentIndex(t *testing.T) {
	p := NewPointers(NewMemoryStore(time.Minute))
	ctx := context.Background()

	_, err := p.CurrentIndex(ctx, KeyUserIndex)
	assert.True(t, errors.Is(err, models.ErrNotFound))

	require.NoError(t, p.SetCurrentIndex(ctx, KeyUserIndex, "search-users-a"))
	require.NoError(t, p.SetCurrentIndex(ctx, KeyUserIndex, "search-users-b"))

	name, err := p.CurrentIndex(ctx, KeyUserIndex)
	require.NoError(t, err)
	assert.Equal(t, "search-users-b", name)
}

func TestPointers_Watermark(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	p := NewPointers(store)
	ctx := context.Background()

	_, ok, err := p.Watermark(ctx, KeyLastUserUpdateTime)
	require.NoError(t, err)
	assert.False(t, ok)

	ts := time.Date(2024, 3, 1, 12, 30, 0, 123000000, time.UTC)
	require.NoError(t, p.SetWatermark(ctx, KeyLastUserUpdateTime, ts))

	raw, err := store.Get(ctx, KeyLastUserUpdateTime)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01T12:30:00.123Z", raw)

	got, ok, err := p.Watermark(ctx, KeyLastUserUpdateTime)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, ts.Equal(got))
}

func TestPointers_WatermarkCorrupt(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	require.NoError(t, store.Set(context.Background(), KeyLastAuditRecordTime, "yesterday", 0))

	_, _, err := NewPointers(store).Watermark(context.Background(), KeyLastAuditRecordTime)
	assert.Error(t, err)
}

func TestPointers_WatermarkKeepsSubMillisecondPrecision(t *testing.T) {
	p := NewPointers(NewMemoryStore(time.Minute))
	ctx := context.Background()

	ts := time.Date(2024, 3, 1, 12, 30, 0, 123456789, time.UTC)
	require.NoError(t, p.SetWatermark(ctx, KeyLastAuditRecordTime, ts))

	got, ok, err := p.Watermark(ctx, KeyLastAuditRecordTime)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, ts.Equal(got), "got %s", got.Format(time.RFC3339Nano))
}

func TestPointers_WatermarkReadsEpochMillis(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	require.NoError(t, store.Set(context.Background(), KeyLastUserUpdateTime, "1709296200123", 0))

	got, ok, err := NewPointers(store).Watermark(context.Background(), KeyLastUserUpdateTime)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, time.Date(2024, 3, 1, 12, 30, 0, 123000000, time.UTC).Equal(got))
}
