package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/BradenHooton/directory-search/internal/app"
	"github.com/BradenHooton/directory-search/internal/auth"
	"github.com/BradenHooton/directory-search/internal/background"
	"github.com/BradenHooton/directory-search/internal/config"
	"github.com/BradenHooton/directory-search/internal/handlers"
	"github.com/BradenHooton/directory-search/internal/metrics"
	middlewareCustom "github.com/BradenHooton/directory-search/internal/middleware"
	"github.com/BradenHooton/directory-search/internal/routes"
	"github.com/BradenHooton/directory-search/internal/services"
	pkglogger "github.com/BradenHooton/directory-search/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := pkglogger.New(os.Stdout, cfg.Server.Env, cfg.Server.LogLevel)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	if err := cfg.ValidateAPI(); err != nil {
		logger.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}
	// Indexes that other processes cannot see are built by the jobs in this process.
	runJobs := !cfg.SharedIndexes()
	if err := cfg.ValidateUpstream(); err != nil {
		logger.Warn("upstream services not configured, indexing will fail", slog.Any("error", err))
	}
	opts := app.Options{}
	if runJobs {
		if err := cfg.ValidateDatabase(); err != nil {
			logger.Warn("audit database not configured, login stats will not be updated", slog.Any("error", err))
		} else {
			opts.Audit = true
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	application, err := app.New(ctx, cfg, logger, opts)
	cancel()
	if err != nil {
		logger.Error("failed to initialise", slog.Any("error", err))
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := metrics.Register(registry); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	var scheduler *background.Scheduler
	if runJobs {
		scheduler, err = application.NewScheduler()
		if err != nil {
			logger.Error("failed to create scheduler", slog.Any("error", err))
			os.Exit(1)
		}
		scheduler.Start()
		logger.Info("running scheduled jobs in the api process",
			slog.String("search_engine", cfg.Search.Engine),
			slog.String("cache_type", cfg.Cache.Type),
			slog.Any("jobs", scheduler.JobNames()),
		)
	}

	// Initialize services and handlers
	userHandler := handlers.NewUserHandler(services.NewUserService(application.Users, logger), logger)
	deviceHandler := handlers.NewDeviceHandler(services.NewDeviceService(application.Devices, logger), logger)
	checks := make(map[string]handlers.HealthCheck)
	for name, check := range application.HealthChecks() {
		checks[name] = check
	}
	healthHandler := handlers.NewHealthHandler(checks, logger)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.CorrelationID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.RequestLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Register routes
	routes.RegisterRoutes(router, userHandler, deviceHandler, healthHandler,
		auth.NewTokenManager(cfg.Auth), registry,
		middlewareCustom.RateLimitConfig{RequestsPerMinute: cfg.Server.RateLimit}, logger)

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
	}
	if scheduler != nil {
		if err := scheduler.Stop(); err != nil {
			logger.Error("scheduler shutdown error", slog.Any("error", err))
		}
	}
	application.Close(shutdownCtx)

	logger.Info("server stopped gracefully")
}
