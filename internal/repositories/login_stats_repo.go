package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BradenHooton/directory-search/internal/cache"
	"github.com/BradenHooton/directory-search/internal/models"
)

const loginStatsKeyPrefix = "UserLoginStats:"

// LoginStatsStore reads and writes per-user login aggregates.
type LoginStatsStore interface {
	Get(ctx context.Context, userID string) (*models.LoginStats, error)
	Set(ctx context.Context, userID string, stats *models.LoginStats) error
}

// LoginStatsRepository keeps login stats as JSON in the cache, without expiry.
type LoginStatsRepository struct {
	store cache.Store
}

func NewLoginStatsRepository(store cache.Store) *LoginStatsRepository {
	return &LoginStatsRepository{store: store}
}

func loginStatsKey(userID string) string {
	return loginStatsKeyPrefix + strings.ToLower(userID)
}

// Get returns the stats for userID, or nil with no error when none are recorded.
func (r *LoginStatsRepository) Get(ctx context.Context, userID string) (*models.LoginStats, error) {
	raw, err := r.store.Get(ctx, loginStatsKey(userID))
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read login stats for %s: %w", userID, err)
	}

	var stats models.LoginStats
	if err := json.Unmarshal([]byte(raw), &stats); err != nil {
		return nil, fmt.Errorf("invalid login stats for %s: %w", userID, err)
	}
	if stats.LoginsInPast12Months == nil {
		stats.LoginsInPast12Months = []time.Time{}
	}
	return &stats, nil
}

func (r *LoginStatsRepository) Set(ctx context.Context, userID string, stats *models.LoginStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to encode login stats for %s: %w", userID, err)
	}
	if err := r.store.Set(ctx, loginStatsKey(userID), string(data), 0); err != nil {
		return fmt.Errorf("failed to write login stats for %s: %w", userID, err)
	}
	return nil
}
