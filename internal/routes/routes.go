package routes

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BradenHooton/directory-search/internal/auth"
	"github.com/BradenHooton/directory-search/internal/handlers"
	"github.com/BradenHooton/directory-search/internal/middleware"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	userHandler *handlers.UserHandler,
	deviceHandler *handlers.DeviceHandler,
	healthHandler *handlers.HealthHandler,
	tokenManager *auth.TokenManager,
	gatherer prometheus.Gatherer,
	rateLimit middleware.RateLimitConfig,
	logger *slog.Logger,
) {
	// Public routes - no authentication required
	router.Get("/health", healthHandler.Health)
	router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// Protected routes - authentication required
	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(rateLimit))
		r.Use(auth.AuthMiddleware(tokenManager, logger))

		userHandler.RegisterRoutes(r)
		deviceHandler.RegisterRoutes(r)
	})
}
