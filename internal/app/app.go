// Package app wires configuration into the engine, caches, upstream clients
// and indexing services shared by the API, the worker and the task CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/BradenHooton/directory-search/internal/background"
	"github.com/BradenHooton/directory-search/internal/cache"
	"github.com/BradenHooton/directory-search/internal/clients"
	"github.com/BradenHooton/directory-search/internal/config"
	"github.com/BradenHooton/directory-search/internal/database"
	"github.com/BradenHooton/directory-search/internal/index"
	"github.com/BradenHooton/directory-search/internal/mapper"
	"github.com/BradenHooton/directory-search/internal/models"
	"github.com/BradenHooton/directory-search/internal/repositories"
	"github.com/BradenHooton/directory-search/internal/searchengine"
	"github.com/BradenHooton/directory-search/internal/services"
)

type Options struct {
	// Audit connects to the audit database and builds the audit cache service
	Audit bool
}

type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Engine   index.Engine
	Store    cache.Store
	Pointers *cache.Pointers
	DB       *database.DB

	Users   *services.UserIndexService
	Devices *services.DeviceIndexService
	// Audit is nil unless Options.Audit was set
	Audit *services.AuditCacheService

	closers []func(ctx context.Context) error
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	store, err := cache.New(ctx, cfg.Cache, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}
	a.Store = store
	a.closers = append(a.closers, func(context.Context) error { return store.Close() })
	a.Pointers = cache.NewPointers(store)

	engine, closeEngine, err := searchengine.New(ctx, cfg.Search, logger)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("failed to create search engine: %w", err)
	}
	a.Engine = engine
	a.closers = append(a.closers, closeEngine)

	indexOpts := []index.Option{
		index.WithBatchSize(cfg.Indexing.StoreBatchSize),
		index.WithMaxAttempts(cfg.Indexing.StoreMaxAttempts),
		index.WithRetryDelay(cfg.Indexing.StoreRetryDelay),
	}
	indexing := services.IndexingOptions{
		ChunkSize:      cfg.Indexing.DocumentChunkSize,
		SourcePageSize: cfg.Indexing.SourcePageSize,
	}

	directories := clients.NewDirectoriesClient(cfg.Upstream, logger)
	organisations := clients.NewOrganisationsClient(cfg.Upstream, logger)
	access := clients.NewAccessClient(cfg.Upstream, logger)
	devices := clients.NewDevicesClient(cfg.Upstream, logger)
	loginStats := repositories.NewLoginStatsRepository(store)

	a.Users = services.NewUserIndexService(
		services.NewGenerations(services.UsersIndexPrefix, cache.KeyUserIndex, mapper.UsersStructure, engine, a.Pointers, logger, indexOpts...),
		directories, organisations, access, loginStats, a.Pointers, logger, indexing,
	)
	a.Devices = services.NewDeviceIndexService(
		services.NewGenerations(services.DevicesIndexPrefix, cache.KeyDeviceIndex, mapper.DevicesStructure, engine, a.Pointers, logger, indexOpts...),
		devices, directories, organisations, loginStats, a.Pointers, logger, indexing,
	)

	if opts.Audit {
		db, err := database.NewConnection(&cfg.Database, logger)
		if err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("failed to connect to audit database: %w", err)
		}
		a.DB = db
		a.closers = append(a.closers, func(context.Context) error { db.Close(); return nil })
		a.Audit = services.NewAuditCacheService(repositories.NewAuditLogRepository(db), loginStats, a.Pointers, logger, cfg.Indexing.AuditBatchSize)
	}

	return a, nil
}

// Tasks returns the job table over this app's services. The audit job is
// present only when the audit database is connected.
func (a *App) Tasks() *background.Tasks {
	var audit background.AuditCacheUpdater
	if a.Audit != nil {
		audit = a.Audit
	}
	return background.NewTasks(a.Users, a.Devices, audit, a.Logger)
}

// NewScheduler registers every scheduled job on a new scheduler. The caller
// starts and stops it.
func (a *App) NewScheduler() (*background.Scheduler, error) {
	scheduler, err := background.NewScheduler(background.NewRunner(background.NewJobGuard(), a.Logger), a.Logger)
	if err != nil {
		return nil, err
	}
	if err := scheduler.Register(a.Tasks().Jobs(a.Config.Schedules)...); err != nil {
		_ = scheduler.Stop()
		return nil, fmt.Errorf("failed to register jobs: %w", err)
	}
	return scheduler, nil
}

// HealthChecks reports on the cache, the search engine and, when connected, the audit database.
func (a *App) HealthChecks() map[string]func(ctx context.Context) error {
	checks := map[string]func(ctx context.Context) error{
		"cache": func(ctx context.Context) error {
			_, err := a.Store.Get(ctx, cache.KeyUserIndex)
			if errors.Is(err, models.ErrNotFound) {
				return nil
			}
			return err
		},
		"search": func(ctx context.Context) error {
			_, err := a.Engine.ListIndexNames(ctx)
			return err
		},
	}
	if a.DB != nil {
		checks["database"] = a.DB.HealthCheck
	}
	return checks
}

// Close releases resources in reverse order of creation.
func (a *App) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.Logger.Error("failed to release resource", slog.Any("error", err))
		}
	}
	a.closers = nil
}
