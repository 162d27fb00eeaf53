package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/BradenHooton/directory-search/internal/mapper"
	"github.com/BradenHooton/directory-search/internal/services"
	pkghttp "github.com/BradenHooton/directory-search/pkg/http"
)

// DeviceService defines the devices-index operations the API needs
type DeviceService interface {
	Search(ctx context.Context, params services.SearchParams) (*services.DeviceSearchResult, error)
	Get(ctx context.Context, serialNumber string) (*mapper.DeviceView, error)
	Patch(ctx context.Context, serialNumber string, patch services.DevicePatch) error
}

type DeviceHandler struct {
	service DeviceService
	logger  *slog.Logger
}

func NewDeviceHandler(service DeviceService, logger *slog.Logger) *DeviceHandler {
	return &DeviceHandler{service: service, logger: logger}
}

var devicePatchSchema = patchSchema{
	patchable: map[string]bool{
		"assigneeId":       true,
		"assignee":         true,
		"organisationName": true,
		"statusId":         true,
	},
	nonNull: map[string]bool{
		"statusId": true,
	},
}

func (h *DeviceHandler) RegisterRoutes(router chi.Router) {
	router.Route("/devices", func(r chi.Router) {
		r.Get("/", h.SearchDevices)
		r.Get("/{sn}", h.GetDevice)
		r.Patch("/{sn}", h.PatchDevice)
	})
}

func (h *DeviceHandler) SearchDevices(w http.ResponseWriter, r *http.Request) {
	params, err := readSearchParams(r, deviceFilterFields)
	if err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.service.Search(r.Context(), params)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "devices index not found")
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, result)
}

func (h *DeviceHandler) GetDevice(w http.ResponseWriter, r *http.Request) {
	device, err := h.service.Get(r.Context(), chi.URLParam(r, "sn"))
	if err != nil {
		writeServiceError(w, r, h.logger, err, "device not found")
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, device)
}

// PatchDevice edits an indexed device. assignee and assigneeId are only
// accepted together.
func (h *DeviceHandler) PatchDevice(w http.ResponseWriter, r *http.Request) {
	sn := chi.URLParam(r, "sn")

	if _, err := h.service.Get(r.Context(), sn); err != nil {
		writeServiceError(w, r, h.logger, err, "device not found")
		return
	}

	var patch services.DevicePatch
	problems, err := decodePatch(r.Body, devicePatchSchema, &patch)
	if err != nil {
		pkghttp.WriteBadRequest(w, "invalid request body")
		return
	}
	if len(problems) > 0 {
		pkghttp.WriteValidationErrors(w, problems)
		return
	}

	if err := h.service.Patch(r.Context(), sn, patch); err != nil {
		writeServiceError(w, r, h.logger, err, "device not found")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
