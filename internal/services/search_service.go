package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/BradenHooton/directory-search/internal/index"
	"github.com/BradenHooton/directory-search/internal/mapper"
	"github.com/BradenHooton/directory-search/internal/models"
	pkglogger "github.com/BradenHooton/directory-search/pkg/logger"
)

// SearchPageSize is the fixed page size of API searches
const SearchPageSize = 25

// CurrentIndexProvider resolves the current generation of a logical index
type CurrentIndexProvider interface {
	Current(ctx context.Context) (*index.Index, error)
}

// UserIndexer can also index a single user or invitation on demand
type UserIndexer interface {
	CurrentIndexProvider
	IndexByID(ctx context.Context, id string) error
}

// SearchParams are the API search inputs
type SearchParams struct {
	Criteria      string
	Page          int
	SortBy        string
	SortAscending bool
	SearchFields  []string
	Filters       []index.Filter
}

type UserSearchResult struct {
	Users                []mapper.UserView `json:"users"`
	NumberOfPages        int               `json:"numberOfPages"`
	TotalNumberOfResults int               `json:"totalNumberOfResults"`
}

type DeviceSearchResult struct {
	Devices              []mapper.DeviceView `json:"devices"`
	NumberOfPages        int                 `json:"numberOfPages"`
	TotalNumberOfResults int                 `json:"totalNumberOfResults"`
}

// UserPatch holds the patchable users-index fields. Nil means unchanged.
type UserPatch struct {
	FirstName       *string                       `json:"firstName" validate:"omitnil,min=1"`
	LastName        *string                       `json:"lastName" validate:"omitnil,min=1"`
	Email           *string                       `json:"email" validate:"omitnil,min=1"`
	Organisations   *[]models.OrganisationMapping `json:"organisations" validate:"omitnil"`
	Services        *[]string                     `json:"services" validate:"omitnil"`
	StatusID        *int64                        `json:"statusId"`
	PendingEmail    *string                       `json:"pendingEmail"`
	LegacyUsernames *[]string                     `json:"legacyUsernames" validate:"omitnil"`
}

// DevicePatch holds the patchable devices-index fields. Nil means unchanged.
type DevicePatch struct {
	AssigneeID       *string `json:"assigneeId" validate:"required_with=Assignee"`
	Assignee         *string `json:"assignee" validate:"required_with=AssigneeID"`
	OrganisationName *string `json:"organisationName"`
	StatusID         *int64  `json:"statusId" validate:"omitnil,min=1,max=3"`
}

// UserService answers API reads and edits against the current users index.
type UserService struct {
	users  UserIndexer
	logger *slog.Logger
}

func NewUserService(users UserIndexer, logger *slog.Logger) *UserService {
	return &UserService{users: users, logger: logger}
}

func (s *UserService) Search(ctx context.Context, params SearchParams) (*UserSearchResult, error) {
	idx, err := s.users.Current(ctx)
	if err != nil {
		return nil, err
	}

	sortBy := params.SortBy
	if sortBy == "" {
		sortBy = "searchableName"
	}
	result, err := idx.Search(ctx, index.SearchRequest{
		Criteria:      mapper.NormalizeCriteria(params.Criteria),
		Page:          params.Page,
		PageSize:      SearchPageSize,
		SortBy:        sortBy,
		SortAscending: params.SortAscending,
		Filters:       params.Filters,
		SearchFields:  params.SearchFields,
	})
	if err != nil {
		return nil, err
	}

	users := make([]mapper.UserView, 0, len(result.Documents))
	for _, doc := range result.Documents {
		view, err := mapper.UserFromDocument(doc)
		if err != nil {
			return nil, err
		}
		users = append(users, view)
	}
	return &UserSearchResult{
		Users:                users,
		NumberOfPages:        result.NumberOfPages,
		TotalNumberOfResults: result.TotalNumberOfResults,
	}, nil
}

// Get returns one user or invitation by key, or models.ErrNotFound.
func (s *UserService) Get(ctx context.Context, id string) (*mapper.UserView, error) {
	doc, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	view, err := mapper.UserFromDocument(doc)
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// Create indexes a user that is not yet in the index. An already indexed id
// is models.ErrForbidden.
func (s *UserService) Create(ctx context.Context, id string) error {
	_, err := s.get(ctx, id)
	if err == nil {
		return fmt.Errorf("user %s already indexed: %w", id, models.ErrForbidden)
	}
	if !errors.Is(err, models.ErrNotFound) {
		return err
	}
	return s.users.IndexByID(ctx, id)
}

// Patch applies edits to an indexed user and recomputes its derived fields.
func (s *UserService) Patch(ctx context.Context, id string, patch UserPatch) error {
	idx, err := s.users.Current(ctx)
	if err != nil {
		return err
	}
	doc, err := idx.Get(ctx, id)
	if err != nil {
		return err
	}

	patched := doc.Clone()
	setString(patched, "firstName", patch.FirstName)
	setString(patched, "lastName", patch.LastName)
	setString(patched, "email", patch.Email)
	setString(patched, "pendingEmail", patch.PendingEmail)
	if patch.Services != nil {
		patched["services"] = *patch.Services
	}
	if patch.LegacyUsernames != nil {
		patched["legacyUsernames"] = *patch.LegacyUsernames
	}
	if patch.StatusID != nil {
		patched["statusId"] = *patch.StatusID
	}
	if patch.Organisations != nil {
		snapshot, err := json.Marshal(*patch.Organisations)
		if err != nil {
			return fmt.Errorf("failed to serialize organisations: %w", err)
		}
		patched["organisationsJson"] = string(snapshot)
	}

	refreshed, err := mapper.RefreshUserDocument(patched, nil, false)
	if err != nil {
		return err
	}

	logger := pkglogger.FromContext(ctx, s.logger)
	if patch.Email != nil {
		logger = logger.With(slog.String("email", pkglogger.SanitizedEmail(*patch.Email)))
	}
	logger.Info("patching user document", slog.String("id", id), slog.String("index", idx.Name()))
	return idx.Store(ctx, []models.Document{refreshed}, pkglogger.CorrelationID(ctx))
}

// Delete removes an indexed user, or returns models.ErrNotFound.
func (s *UserService) Delete(ctx context.Context, id string) error {
	idx, err := s.users.Current(ctx)
	if err != nil {
		return err
	}
	doc, err := idx.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := idx.Delete(ctx, doc.String("id")); err != nil {
		pkglogger.FromContext(ctx, s.logger).Error("failed to delete user document",
			slog.String("id", id),
			slog.Any("error", err),
		)
		return err
	}
	return nil
}

func (s *UserService) get(ctx context.Context, id string) (models.Document, error) {
	idx, err := s.users.Current(ctx)
	if err != nil {
		return nil, err
	}
	return idx.Get(ctx, id)
}

// DeviceService answers API reads and edits against the current devices index.
type DeviceService struct {
	devices CurrentIndexProvider
	logger  *slog.Logger
}

func NewDeviceService(devices CurrentIndexProvider, logger *slog.Logger) *DeviceService {
	return &DeviceService{devices: devices, logger: logger}
}

func (s *DeviceService) Search(ctx context.Context, params SearchParams) (*DeviceSearchResult, error) {
	idx, err := s.devices.Current(ctx)
	if err != nil {
		return nil, err
	}

	sortBy := params.SortBy
	if sortBy == "" {
		sortBy = "serialNumber"
	}
	result, err := idx.Search(ctx, index.SearchRequest{
		Criteria:      mapper.NormalizeCriteria(params.Criteria),
		Page:          params.Page,
		PageSize:      SearchPageSize,
		SortBy:        sortBy,
		SortAscending: params.SortAscending,
		Filters:       params.Filters,
	})
	if err != nil {
		return nil, err
	}

	devices := make([]mapper.DeviceView, 0, len(result.Documents))
	for _, doc := range result.Documents {
		devices = append(devices, mapper.DeviceFromDocument(doc))
	}
	return &DeviceSearchResult{
		Devices:              devices,
		NumberOfPages:        result.NumberOfPages,
		TotalNumberOfResults: result.TotalNumberOfResults,
	}, nil
}

func (s *DeviceService) Get(ctx context.Context, serialNumber string) (*mapper.DeviceView, error) {
	idx, err := s.devices.Current(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := idx.Get(ctx, serialNumber)
	if err != nil {
		return nil, err
	}
	view := mapper.DeviceFromDocument(doc)
	return &view, nil
}

func (s *DeviceService) Patch(ctx context.Context, serialNumber string, patch DevicePatch) error {
	idx, err := s.devices.Current(ctx)
	if err != nil {
		return err
	}
	doc, err := idx.Get(ctx, serialNumber)
	if err != nil {
		return err
	}

	patched := doc.Clone()
	setString(patched, "assigneeId", patch.AssigneeID)
	setString(patched, "assignee", patch.Assignee)
	setString(patched, "organisationName", patch.OrganisationName)
	if patch.StatusID != nil {
		patched["statusId"] = *patch.StatusID
	}

	pkglogger.FromContext(ctx, s.logger).Info("patching device document", slog.String("serial_number", serialNumber), slog.String("index", idx.Name()))
	return idx.Store(ctx, []models.Document{mapper.RefreshDeviceDocument(patched)}, pkglogger.CorrelationID(ctx))
}

func setString(doc models.Document, field string, value *string) {
	if value != nil {
		doc[field] = *value
	}
}
