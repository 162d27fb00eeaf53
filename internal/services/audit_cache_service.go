package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/directory-search/internal/cache"
	"github.com/BradenHooton/directory-search/internal/models"
	pkglogger "github.com/BradenHooton/directory-search/pkg/logger"
)

const (
	DefaultAuditBatchSize = 1000
	loginWindow           = 365 * 24 * time.Hour
)

// AuditCacheService folds new audit entries into the per-user login stats.
type AuditCacheService struct {
	audit      AuditReader
	loginStats LoginStatsStore
	pointers   PointerStore
	logger     *slog.Logger
	batchSize  int
	now        func() time.Time
}

func NewAuditCacheService(audit AuditReader, loginStats LoginStatsStore, pointers PointerStore, logger *slog.Logger, batchSize int) *AuditCacheService {
	if batchSize <= 0 {
		batchSize = DefaultAuditBatchSize
	}
	return &AuditCacheService{
		audit:      audit,
		loginStats: loginStats,
		pointers:   pointers,
		logger:     logger,
		batchSize:  batchSize,
		now:        time.Now,
	}
}

// Update reads audit entries after the watermark in batches until a batch comes
// back empty, updates the stats of every affected user and advances the
// watermark to the last entry of each batch.
func (s *AuditCacheService) Update(ctx context.Context) error {
	logger := pkglogger.FromContext(ctx, s.logger)

	since, ok, err := s.pointers.Watermark(ctx, cache.KeyLastAuditRecordTime)
	if err != nil {
		return err
	}
	if !ok {
		since = time.Unix(0, 0).UTC()
	}
	logger.Info("updating login stats from audit", slog.Time("since", since))

	cutoff := s.now().UTC().Add(-loginWindow)
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		entries, err := s.audit.GetBatchSince(ctx, since, s.batchSize)
		if err != nil {
			return fmt.Errorf("failed to read audit entries since %s: %w", since.Format(time.RFC3339Nano), err)
		}
		if len(entries) == 0 {
			break
		}

		if err := s.applyBatch(ctx, entries, cutoff); err != nil {
			return err
		}

		since = entries[len(entries)-1].Timestamp
		if err := s.pointers.SetWatermark(ctx, cache.KeyLastAuditRecordTime, since); err != nil {
			return fmt.Errorf("failed to update audit watermark: %w", err)
		}
		total += len(entries)
		logger.Debug("processed audit batch", slog.Int("entries", len(entries)), slog.Time("watermark", since))
	}

	logger.Info("login stats updated", slog.Int("entries", total))
	return nil
}

func (s *AuditCacheService) applyBatch(ctx context.Context, entries []models.AuditEntry, cutoff time.Time) error {
	byUser := make(map[string][]models.AuditEntry)
	order := make([]string, 0)
	for _, entry := range entries {
		userID := entry.AffectedUser()
		if userID == "" {
			continue
		}
		if _, ok := byUser[userID]; !ok {
			order = append(order, userID)
		}
		byUser[userID] = append(byUser[userID], entry)
	}

	for _, userID := range order {
		stats, err := s.loginStats.Get(ctx, userID)
		if err != nil {
			return err
		}
		if stats == nil {
			stats = models.NewLoginStats()
		}

		updated := applyEntries(stats, byUser[userID])
		if stats.Prune(cutoff) {
			updated = true
		}
		if !updated {
			continue
		}
		if err := s.loginStats.Set(ctx, userID, stats); err != nil {
			return err
		}
	}
	return nil
}

// applyEntries folds a user's entries into stats and reports whether anything changed.
func applyEntries(stats *models.LoginStats, entries []models.AuditEntry) bool {
	updated := false
	for _, entry := range entries {
		ts := entry.Timestamp
		switch {
		case entry.IsSignIn():
			if stats.LastLogin == nil || ts.After(*stats.LastLogin) {
				stats.LastLogin = &ts
			}
			stats.LoginsInPast12Months = append(stats.LoginsInPast12Months, ts)
			updated = true
		case entry.IsStatusChange():
			if stats.LastStatusChange == nil || ts.After(*stats.LastStatusChange) {
				stats.LastStatusChange = &ts
				updated = true
			}
		}
	}
	return updated
}
