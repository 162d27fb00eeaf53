package background

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/directory-search/internal/config"
	pkglogger "github.com/BradenHooton/directory-search/pkg/logger"
)

// Job names, also used as correlation id prefixes
const (
	JobReindexUsers     = "reindexUsers"
	JobUpdateUsersIndex = "updateUsersIndex"
	JobReindexDevices   = "reindexDevices"
	JobUpdateAuditCache = "updateAuditCache"
	JobTidyIndexes      = "tidyIndexes"
)

const tidyTimeout = 10 * time.Minute

type UserIndexer interface {
	Rebuild(ctx context.Context) error
	UpdateChanged(ctx context.Context) error
	Tidy(ctx context.Context) error
}

type DeviceIndexer interface {
	Rebuild(ctx context.Context) error
	Tidy(ctx context.Context) error
}

type AuditCacheUpdater interface {
	Update(ctx context.Context) error
}

// Tasks holds every job the worker and the CLI can run
type Tasks struct {
	users   UserIndexer
	devices DeviceIndexer
	audit   AuditCacheUpdater
	logger  *slog.Logger
}

func NewTasks(users UserIndexer, devices DeviceIndexer, audit AuditCacheUpdater, logger *slog.Logger) *Tasks {
	return &Tasks{users: users, devices: devices, audit: audit, logger: logger}
}

// Jobs pairs each task with its schedule. The audit cache job is left out
// when no audit updater was supplied.
func (t *Tasks) Jobs(schedules config.ScheduleConfig) []Job {
	jobs := []Job{
		{Name: JobReindexUsers, Schedule: schedules.ReindexUsers, Run: t.users.Rebuild},
		{Name: JobUpdateUsersIndex, Schedule: schedules.UpdateUsersIndex, Run: t.users.UpdateChanged},
		{Name: JobReindexDevices, Schedule: schedules.ReindexDevices, Run: t.devices.Rebuild},
	}
	if t.audit != nil {
		jobs = append(jobs, Job{Name: JobUpdateAuditCache, Schedule: schedules.UpdateAuditCache, Run: t.audit.Update})
	}
	return append(jobs, Job{Name: JobTidyIndexes, Schedule: schedules.TidyIndexes, Run: t.TidyIndexes})
}

// Lookup returns the task registered under name.
func (t *Tasks) Lookup(name string) (JobFunc, bool) {
	for _, job := range t.Jobs(config.ScheduleConfig{}) {
		if job.Name == name {
			return job.Run, true
		}
	}
	return nil, false
}

// TidyIndexes removes unused user and device generations. The first failure stops the run.
func (t *Tasks) TidyIndexes(ctx context.Context) error {
	tidyCtx, cancel := context.WithTimeout(ctx, tidyTimeout)
	defer cancel()

	pkglogger.FromContext(ctx, t.logger).Info("starting index cleanup")
	if err := t.users.Tidy(tidyCtx); err != nil {
		return fmt.Errorf("failed to tidy user indexes: %w", err)
	}
	if err := t.devices.Tidy(tidyCtx); err != nil {
		return fmt.Errorf("failed to tidy device indexes: %w", err)
	}
	return nil
}
