package clients

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/BradenHooton/directory-search/internal/config"
	"github.com/BradenHooton/directory-search/internal/models"
)

type AccessClient struct {
	client *Client
}

func NewAccessClient(cfg config.UpstreamConfig, logger *slog.Logger) *AccessClient {
	return &AccessClient{client: NewClient(cfg.AccessURL, cfg, logger)}
}

type serviceDTO struct {
	UserID       string `json:"userId"`
	InvitationID string `json:"invitationId"`
	ServiceID    string `json:"serviceId"`
}

func isNotFound(err error) bool {
	return errors.Is(err, models.ErrNotFound)
}

func serviceIDs(dtos []serviceDTO) []string {
	ids := make([]string, 0, len(dtos))
	for _, d := range dtos {
		ids = append(ids, d.ServiceID)
	}
	return ids
}

// UserServices returns the ids of services the user can access.
func (c *AccessClient) UserServices(ctx context.Context, userID string) ([]string, error) {
	var body []serviceDTO
	err := c.client.get(ctx, "/users/"+url.PathEscape(userID)+"/services", &body)
	if isNotFound(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get services for user %s: %w", userID, err)
	}
	return serviceIDs(body), nil
}

func (c *AccessClient) InvitationServices(ctx context.Context, invitationID string) ([]string, error) {
	var body []serviceDTO
	err := c.client.get(ctx, "/invitations/"+url.PathEscape(invitationID)+"/services", &body)
	if isNotFound(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get services for invitation %s: %w", invitationID, err)
	}
	return serviceIDs(body), nil
}

func (c *AccessClient) ListUserServices(ctx context.Context, page, pageSize int) (models.Page[models.UserServiceMapping], error) {
	var body struct {
		Services      []serviceDTO `json:"services"`
		NumberOfPages int          `json:"numberOfPages"`
	}
	if err := c.client.get(ctx, "/users?"+pageQuery(page, pageSize), &body); err != nil {
		return models.Page[models.UserServiceMapping]{}, err
	}

	result := models.Page[models.UserServiceMapping]{NumberOfPages: body.NumberOfPages}
	for _, s := range body.Services {
		result.Items = append(result.Items, models.UserServiceMapping{PrincipalID: s.UserID, ServiceID: s.ServiceID})
	}
	return result, nil
}

func (c *AccessClient) ListInvitationServices(ctx context.Context, page, pageSize int) (models.Page[models.UserServiceMapping], error) {
	var body struct {
		Services      []serviceDTO `json:"services"`
		NumberOfPages int          `json:"numberOfPages"`
	}
	if err := c.client.get(ctx, "/invitations?"+pageQuery(page, pageSize), &body); err != nil {
		return models.Page[models.UserServiceMapping]{}, err
	}

	result := models.Page[models.UserServiceMapping]{NumberOfPages: body.NumberOfPages}
	for _, s := range body.Services {
		result.Items = append(result.Items, models.UserServiceMapping{PrincipalID: s.InvitationID, ServiceID: s.ServiceID})
	}
	return result, nil
}
