package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	pkghttp "github.com/BradenHooton/directory-search/pkg/http"
	pkglogger "github.com/BradenHooton/directory-search/pkg/logger"
)

// contextKey is a custom type for context keys
type contextKey string

// ClaimsContextKey is the key for storing caller claims in context
const ClaimsContextKey contextKey = "claims"

// AuthMiddleware rejects requests without a valid bearer token and injects
// the caller's claims into the context.
func AuthMiddleware(tm *TokenManager, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				pkghttp.WriteUnauthorized(w, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				pkghttp.WriteUnauthorized(w, "invalid authorization header format")
				return
			}

			claims, err := tm.ValidateToken(strings.TrimSpace(parts[1]))
			if err != nil {
				pkglogger.FromContext(r.Context(), logger).Debug("rejected bearer token", slog.Any("error", err))
				pkghttp.WriteUnauthorized(w, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetClaimsFromContext extracts caller claims from request context
func GetClaimsFromContext(r *http.Request) *Claims {
	claims, ok := r.Context().Value(ClaimsContextKey).(*Claims)
	if !ok {
		return nil
	}
	return claims
}
