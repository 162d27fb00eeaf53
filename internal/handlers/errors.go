package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/directory-search/internal/models"
	pkghttp "github.com/BradenHooton/directory-search/pkg/http"
	pkglogger "github.com/BradenHooton/directory-search/pkg/logger"
)

// writeServiceError maps service errors to responses. Anything unrecognised
// is logged and reported as a 500 without detail.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error, notFound string) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, notFound)
	case errors.Is(err, models.ErrForbidden):
		pkghttp.WriteForbidden(w, err.Error())
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteConflict(w, err.Error())
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, err.Error())
	default:
		pkglogger.FromContext(r.Context(), logger).Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		pkghttp.WriteInternalError(w, "internal server error")
	}
}
