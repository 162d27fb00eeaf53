package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/BradenHooton/directory-search/internal/mapper"
	"github.com/BradenHooton/directory-search/internal/services"
	pkghttp "github.com/BradenHooton/directory-search/pkg/http"
)

// UserService defines the users-index operations the API needs
type UserService interface {
	Search(ctx context.Context, params services.SearchParams) (*services.UserSearchResult, error)
	Get(ctx context.Context, id string) (*mapper.UserView, error)
	Create(ctx context.Context, id string) error
	Patch(ctx context.Context, id string, patch services.UserPatch) error
	Delete(ctx context.Context, id string) error
}

// UserHandler handles users-index HTTP requests
type UserHandler struct {
	service UserService
	logger  *slog.Logger
}

func NewUserHandler(service UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		service: service,
		logger:  logger,
	}
}

// CreateUserRequest represents the request body for indexing a user
type CreateUserRequest struct {
	ID string `json:"id" validate:"required"`
}

var userPatchSchema = patchSchema{
	patchable: map[string]bool{
		"firstName":       true,
		"lastName":        true,
		"email":           true,
		"organisations":   true,
		"services":        true,
		"statusId":        true,
		"pendingEmail":    true,
		"legacyUsernames": true,
	},
	nonNull: map[string]bool{
		"firstName":       true,
		"lastName":        true,
		"email":           true,
		"organisations":   true,
		"services":        true,
		"legacyUsernames": true,
	},
	validateRaw: func(property string, raw json.RawMessage) []string {
		if property != "organisations" {
			return nil
		}
		return checkOrganisations(raw)
	},
}

// requiredOrganisationProperties must be present and non-empty on every patched organisation
var requiredOrganisationProperties = []string{"id", "name", "categoryId", "statusId", "roleId"}

func checkOrganisations(raw json.RawMessage) []string {
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return []string{"organisations must be an array"}
	}
	var problems []string
	for i, item := range items {
		for _, prop := range requiredOrganisationProperties {
			value, ok := item[prop]
			v := strings.TrimSpace(string(value))
			if !ok || v == "null" || v == `""` {
				problems = append(problems, fmt.Sprintf("organisations item at index %d must have %s", i, prop))
			}
		}
	}
	return problems
}

// RegisterRoutes registers all user routes with the chi router
func (h *UserHandler) RegisterRoutes(router chi.Router) {
	router.Route("/users", func(r chi.Router) {
		r.Get("/", h.SearchUsers)        // GET /users
		r.Post("/search", h.SearchUsers) // POST /users/search
		r.Post("/", h.CreateUser)        // POST /users
		r.Get("/{id}", h.GetUser)        // GET /users/{id}
		r.Patch("/{id}", h.PatchUser)    // PATCH /users/{id}
		r.Delete("/{id}", h.DeleteUser)  // DELETE /users/{id}
	})
}

// SearchUsers returns one page of the current users index
//
// @Summary Search users and invitations
// @Param criteria query string false "Search text, * for everything"
// @Param page query int false "Page (default 1)"
// @Param sortBy query string false "Sort field (default searchableName)"
// @Param sortDirection query string false "asc or desc"
// @Produce json
// @Success 200 {object} services.UserSearchResult
// @Failure 400 {object} pkghttp.ErrorResponse
// @Router /users [get]
func (h *UserHandler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	params, err := readSearchParams(r, userFilterFields)
	if err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.service.Search(r.Context(), params)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "users index not found")
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, result)
}

// GetUser returns one user or invitation
//
// @Router /users/{id} [get]
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	user, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "user not found")
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, user)
}

// CreateUser indexes a user that is not yet in the index
//
// @Router /users [post]
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "invalid request body")
		return
	}
	if errs := ValidateRequest(&req); len(errs) > 0 {
		pkghttp.WriteValidationErrors(w, errs)
		return
	}

	if err := h.service.Create(r.Context(), req.ID); err != nil {
		writeServiceError(w, r, h.logger, err, "user not found")
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// PatchUser edits an indexed user
//
// @Router /users/{id} [patch]
func (h *UserHandler) PatchUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// a missing user is reported before any body problems
	if _, err := h.service.Get(r.Context(), id); err != nil {
		writeServiceError(w, r, h.logger, err, "user not found")
		return
	}

	var patch services.UserPatch
	problems, err := decodePatch(r.Body, userPatchSchema, &patch)
	if err != nil {
		pkghttp.WriteBadRequest(w, "invalid request body")
		return
	}
	if len(problems) > 0 {
		pkghttp.WriteValidationErrors(w, problems)
		return
	}

	if err := h.service.Patch(r.Context(), id, patch); err != nil {
		writeServiceError(w, r, h.logger, err, "user not found")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// DeleteUser removes a user or invitation from the current index
//
// @Router /users/{id} [delete]
func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.Delete(r.Context(), id); err != nil {
		writeServiceError(w, r, h.logger, err, "user not found")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
