package clients

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/BradenHooton/directory-search/internal/config"
	"github.com/BradenHooton/directory-search/internal/models"
)

// UserIncludes selects optional expansions on the user listing.
type UserIncludes struct {
	Devices         bool
	LegacyUsernames bool
}

type DirectoriesClient struct {
	client *Client
}

func NewDirectoriesClient(cfg config.UpstreamConfig, logger *slog.Logger) *DirectoriesClient {
	return &DirectoriesClient{client: NewClient(cfg.DirectoriesURL, cfg, logger)}
}

type userDTO struct {
	Sub             string   `json:"sub"`
	GivenName       string   `json:"given_name"`
	FamilyName      string   `json:"family_name"`
	Email           string   `json:"email"`
	Status          int      `json:"status"`
	PendingEmail    string   `json:"pending_email"`
	LegacyUsernames []string `json:"legacyUsernames"`
	Devices         []struct {
		SerialNumber string `json:"serialNumber"`
	} `json:"devices"`
	LastLogin *time.Time `json:"last_login"`
}

func (d userDTO) toModel() models.User {
	user := models.User{
		ID:              d.Sub,
		FirstName:       d.GivenName,
		LastName:        d.FamilyName,
		Email:           d.Email,
		Status:          d.Status,
		PendingEmail:    d.PendingEmail,
		LegacyUsernames: d.LegacyUsernames,
		LastLogin:       d.LastLogin,
	}
	for _, device := range d.Devices {
		if device.SerialNumber != "" {
			user.Devices = append(user.Devices, device.SerialNumber)
		}
	}
	return user
}

type invitationDTO struct {
	ID          string `json:"id"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Email       string `json:"email"`
	IsCompleted bool   `json:"isCompleted"`
	Deactivated bool   `json:"deactivated"`
	Deleted     bool   `json:"deleted"`
}

func (d invitationDTO) toModel() models.Invitation {
	return models.Invitation(d)
}

// ListUsers reads one page of users, optionally only those changed after changedAfter.
func (c *DirectoriesClient) ListUsers(ctx context.Context, page, pageSize int, changedAfter *time.Time, include UserIncludes) (models.Page[models.User], error) {
	resource := "/users?" + pageQuery(page, pageSize)
	if changedAfter != nil {
		resource += "&changedAfter=" + url.QueryEscape(changedAfter.UTC().Format(time.RFC3339Nano))
	}
	var includes []string
	if include.Devices {
		includes = append(includes, "devices")
	}
	if include.LegacyUsernames {
		includes = append(includes, "legacyusernames")
	}
	if len(includes) > 0 {
		resource += "&include=" + strings.Join(includes, ",")
	}

	var body struct {
		Users         []userDTO `json:"users"`
		NumberOfPages int       `json:"numberOfPages"`
	}
	if err := c.client.get(ctx, resource, &body); err != nil {
		return models.Page[models.User]{}, err
	}

	result := models.Page[models.User]{
		Items:         make([]models.User, 0, len(body.Users)),
		NumberOfPages: body.NumberOfPages,
	}
	for _, u := range body.Users {
		result.Items = append(result.Items, u.toModel())
	}
	return result, nil
}

// GetUser returns models.ErrNotFound when the directory has no such user.
func (c *DirectoriesClient) GetUser(ctx context.Context, id string) (*models.User, error) {
	var body userDTO
	if err := c.client.get(ctx, "/users/"+url.PathEscape(id), &body); err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", id, err)
	}
	user := body.toModel()
	return &user, nil
}

func (c *DirectoriesClient) ListInvitations(ctx context.Context, page, pageSize int, changedAfter *time.Time) (models.Page[models.Invitation], error) {
	resource := "/invitations?" + pageQuery(page, pageSize)
	if changedAfter != nil {
		resource += "&changedAfter=" + url.QueryEscape(changedAfter.UTC().Format(time.RFC3339Nano))
	}

	var body struct {
		Invitations   []invitationDTO `json:"invitations"`
		NumberOfPages int             `json:"numberOfPages"`
	}
	if err := c.client.get(ctx, resource, &body); err != nil {
		return models.Page[models.Invitation]{}, err
	}

	result := models.Page[models.Invitation]{
		Items:         make([]models.Invitation, 0, len(body.Invitations)),
		NumberOfPages: body.NumberOfPages,
	}
	for _, inv := range body.Invitations {
		result.Items = append(result.Items, inv.toModel())
	}
	return result, nil
}

func (c *DirectoriesClient) GetInvitation(ctx context.Context, id string) (*models.Invitation, error) {
	var body invitationDTO
	if err := c.client.get(ctx, "/invitations/"+url.PathEscape(id), &body); err != nil {
		return nil, fmt.Errorf("failed to get invitation %s: %w", id, err)
	}
	inv := body.toModel()
	return &inv, nil
}
