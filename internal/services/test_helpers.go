package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/BradenHooton/directory-search/internal/clients"
	"github.com/BradenHooton/directory-search/internal/models"
)

// MockDirectoryReader implements DirectoryReader for testing
type MockDirectoryReader struct {
	ListUsersFunc       func(ctx context.Context, page, pageSize int, changedAfter *time.Time, include clients.UserIncludes) (models.Page[models.User], error)
	GetUserFunc         func(ctx context.Context, id string) (*models.User, error)
	ListInvitationsFunc func(ctx context.Context, page, pageSize int, changedAfter *time.Time) (models.Page[models.Invitation], error)
	GetInvitationFunc   func(ctx context.Context, id string) (*models.Invitation, error)
}

func (m *MockDirectoryReader) ListUsers(ctx context.Context, page, pageSize int, changedAfter *time.Time, include clients.UserIncludes) (models.Page[models.User], error) {
	if m.ListUsersFunc != nil {
		return m.ListUsersFunc(ctx, page, pageSize, changedAfter, include)
	}
	return models.Page[models.User]{NumberOfPages: 1}, nil
}

func (m *MockDirectoryReader) GetUser(ctx context.Context, id string) (*models.User, error) {
	if m.GetUserFunc != nil {
		return m.GetUserFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockDirectoryReader) ListInvitations(ctx context.Context, page, pageSize int, changedAfter *time.Time) (models.Page[models.Invitation], error) {
	if m.ListInvitationsFunc != nil {
		return m.ListInvitationsFunc(ctx, page, pageSize, changedAfter)
	}
	return models.Page[models.Invitation]{NumberOfPages: 1}, nil
}

func (m *MockDirectoryReader) GetInvitation(ctx context.Context, id string) (*models.Invitation, error) {
	if m.GetInvitationFunc != nil {
		return m.GetInvitationFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

// MockOrganisationReader implements OrganisationReader for testing
type MockOrganisationReader struct {
	UserOrganisationsFunc           func(ctx context.Context, userID string) ([]models.OrganisationMapping, error)
	InvitationOrganisationsFunc     func(ctx context.Context, invitationID string) ([]models.OrganisationMapping, error)
	ListUserOrganisationsFunc       func(ctx context.Context, page, pageSize int) (models.Page[models.UserOrganisationMapping], error)
	ListInvitationOrganisationsFunc func(ctx context.Context, page, pageSize int) (models.Page[models.UserOrganisationMapping], error)
}

func (m *MockOrganisationReader) UserOrganisations(ctx context.Context, userID string) ([]models.OrganisationMapping, error) {
	if m.UserOrganisationsFunc != nil {
		return m.UserOrganisationsFunc(ctx, userID)
	}
	return []models.OrganisationMapping{}, nil
}

func (m *MockOrganisationReader) InvitationOrganisations(ctx context.Context, invitationID string) ([]models.OrganisationMapping, error) {
	if m.InvitationOrganisationsFunc != nil {
		return m.InvitationOrganisationsFunc(ctx, invitationID)
	}
	return []models.OrganisationMapping{}, nil
}

func (m *MockOrganisationReader) ListUserOrganisations(ctx context.Context, page, pageSize int) (models.Page[models.UserOrganisationMapping], error) {
	if m.ListUserOrganisationsFunc != nil {
		return m.ListUserOrganisationsFunc(ctx, page, pageSize)
	}
	return models.Page[models.UserOrganisationMapping]{NumberOfPages: 1}, nil
}

func (m *MockOrganisationReader) ListInvitationOrganisations(ctx context.Context, page, pageSize int) (models.Page[models.UserOrganisationMapping], error) {
	if m.ListInvitationOrganisationsFunc != nil {
		return m.ListInvitationOrganisationsFunc(ctx, page, pageSize)
	}
	return models.Page[models.UserOrganisationMapping]{NumberOfPages: 1}, nil
}

// MockAccessReader implements AccessReader for testing
type MockAccessReader struct {
	UserServicesFunc           func(ctx context.Context, userID string) ([]string, error)
	InvitationServicesFunc     func(ctx context.Context, invitationID string) ([]string, error)
	ListUserServicesFunc       func(ctx context.Context, page, pageSize int) (models.Page[models.UserServiceMapping], error)
	ListInvitationServicesFunc func(ctx context.Context, page, pageSize int) (models.Page[models.UserServiceMapping], error)
}

func (m *MockAccessReader) UserServices(ctx context.Context, userID string) ([]string, error) {
	if m.UserServicesFunc != nil {
		return m.UserServicesFunc(ctx, userID)
	}
	return []string{}, nil
}

func (m *MockAccessReader) InvitationServices(ctx context.Context, invitationID string) ([]string, error) {
	if m.InvitationServicesFunc != nil {
		return m.InvitationServicesFunc(ctx, invitationID)
	}
	return []string{}, nil
}

func (m *MockAccessReader) ListUserServices(ctx context.Context, page, pageSize int) (models.Page[models.UserServiceMapping], error) {
	if m.ListUserServicesFunc != nil {
		return m.ListUserServicesFunc(ctx, page, pageSize)
	}
	return models.Page[models.UserServiceMapping]{NumberOfPages: 1}, nil
}

func (m *MockAccessReader) ListInvitationServices(ctx context.Context, page, pageSize int) (models.Page[models.UserServiceMapping], error) {
	if m.ListInvitationServicesFunc != nil {
		return m.ListInvitationServicesFunc(ctx, page, pageSize)
	}
	return models.Page[models.UserServiceMapping]{NumberOfPages: 1}, nil
}

// MockDeviceReader implements DeviceReader for testing
type MockDeviceReader struct {
	ListDevicesFunc func(ctx context.Context, page, pageSize int) (models.Page[models.Device], error)
}

func (m *MockDeviceReader) ListDevices(ctx context.Context, page, pageSize int) (models.Page[models.Device], error) {
	if m.ListDevicesFunc != nil {
		return m.ListDevicesFunc(ctx, page, pageSize)
	}
	return models.Page[models.Device]{NumberOfPages: 1}, nil
}

// MockAuditReader implements AuditReader for testing
type MockAuditReader struct {
	GetBatchSinceFunc func(ctx context.Context, since time.Time, limit int) ([]models.AuditEntry, error)
}

func (m *MockAuditReader) GetBatchSince(ctx context.Context, since time.Time, limit int) ([]models.AuditEntry, error) {
	if m.GetBatchSinceFunc != nil {
		return m.GetBatchSinceFunc(ctx, since, limit)
	}
	return nil, nil
}

// FakeLoginStatsStore keeps login stats in a map and records every write
type FakeLoginStatsStore struct {
	mu     sync.Mutex
	stats  map[string]*models.LoginStats
	Writes []string
}

func NewFakeLoginStatsStore() *FakeLoginStatsStore {
	return &FakeLoginStatsStore{stats: make(map[string]*models.LoginStats)}
}

func (f *FakeLoginStatsStore) Get(ctx context.Context, userID string) (*models.LoginStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats, ok := f.stats[strings.ToLower(userID)]
	if !ok {
		return nil, nil
	}
	clone := *stats
	clone.LoginsInPast12Months = append([]time.Time{}, stats.LoginsInPast12Months...)
	return &clone, nil
}

func (f *FakeLoginStatsStore) Set(ctx context.Context, userID string, stats *models.LoginStats) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats[strings.ToLower(userID)] = stats
	f.Writes = append(f.Writes, userID)
	return nil
}
