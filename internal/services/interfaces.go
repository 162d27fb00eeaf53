package services

import (
	"context"
	"time"

	"github.com/BradenHooton/directory-search/internal/clients"
	"github.com/BradenHooton/directory-search/internal/models"
)

// DirectoryReader reads users and invitations from the directories service
type DirectoryReader interface {
	ListUsers(ctx context.Context, page, pageSize int, changedAfter *time.Time, include clients.UserIncludes) (models.Page[models.User], error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	ListInvitations(ctx context.Context, page, pageSize int, changedAfter *time.Time) (models.Page[models.Invitation], error)
	GetInvitation(ctx context.Context, id string) (*models.Invitation, error)
}

// OrganisationReader reads organisation memberships
type OrganisationReader interface {
	UserOrganisations(ctx context.Context, userID string) ([]models.OrganisationMapping, error)
	InvitationOrganisations(ctx context.Context, invitationID string) ([]models.OrganisationMapping, error)
	ListUserOrganisations(ctx context.Context, page, pageSize int) (models.Page[models.UserOrganisationMapping], error)
	ListInvitationOrganisations(ctx context.Context, page, pageSize int) (models.Page[models.UserOrganisationMapping], error)
}

// AccessReader reads service entitlements
type AccessReader interface {
	UserServices(ctx context.Context, userID string) ([]string, error)
	InvitationServices(ctx context.Context, invitationID string) ([]string, error)
	ListUserServices(ctx context.Context, page, pageSize int) (models.Page[models.UserServiceMapping], error)
	ListInvitationServices(ctx context.Context, page, pageSize int) (models.Page[models.UserServiceMapping], error)
}

type DeviceReader interface {
	ListDevices(ctx context.Context, page, pageSize int) (models.Page[models.Device], error)
}

// LoginStatsStore reads and writes per-user login aggregates. Get returns nil
// stats and no error for a user with no history.
type LoginStatsStore interface {
	Get(ctx context.Context, userID string) (*models.LoginStats, error)
	Set(ctx context.Context, userID string, stats *models.LoginStats) error
}

// PointerStore records current generations and sync watermarks
type PointerStore interface {
	CurrentIndex(ctx context.Context, key string) (string, error)
	SetCurrentIndex(ctx context.Context, key, name string) error
	Watermark(ctx context.Context, key string) (time.Time, bool, error)
	SetWatermark(ctx context.Context, key string, t time.Time) error
}

type AuditReader interface {
	GetBatchSince(ctx context.Context, since time.Time, limit int) ([]models.AuditEntry, error)
}
