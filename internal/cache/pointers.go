package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/BradenHooton/directory-search/internal/models"
)

// Pointer keys
const (
	KeyUserIndex            = "Pointer:UserIndex"
	KeyDeviceIndex          = "Pointer:DeviceIndex"
	KeyLastUserUpdateTime   = "Pointer:LastUserUpdateTime"
	KeyLastDeviceUpdateTime = "Pointer:LastDeviceUpdateTime"
	KeyLastAuditRecordTime  = "Pointer:LastAuditRecordTime"
)

// Pointers records the current generation of each logical index and the
// incremental sync watermarks. Writes are last-write-wins.
type Pointers struct {
	store Store
}

func NewPointers(store Store) *Pointers {
	return &Pointers{store: store}
}

// CurrentIndex returns the generation name stored under key, or models.ErrNotFound.
func (p *Pointers) CurrentIndex(ctx context.Context, key string) (string, error) {
	name, err := p.store.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if name == "" {
		return "", models.ErrNotFound
	}
	return name, nil
}

func (p *Pointers) SetCurrentIndex(ctx context.Context, key, name string) error {
	return p.store.Set(ctx, key, name, 0)
}

// Watermark returns the time stored under key. Values are RFC 3339 with
// nanoseconds; bare epoch milliseconds written by older releases are still
// read. ok is false when no watermark has been recorded.
func (p *Pointers) Watermark(ctx context.Context, key string) (t time.Time, ok bool, err error) {
	raw, err := p.store.Get(ctx, key)
	if errors.Is(err, models.ErrNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC(), true, nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("watermark %s has invalid value %q: %w", key, raw, err)
	}
	return time.UnixMilli(ms).UTC(), true, nil
}

func (p *Pointers) SetWatermark(ctx context.Context, key string, t time.Time) error {
	return p.store.Set(ctx, key, t.UTC().Format(time.RFC3339Nano), 0)
}
