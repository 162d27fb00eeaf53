package clients

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/BradenHooton/directory-search/internal/config"
	"github.com/BradenHooton/directory-search/internal/models"
)

type OrganisationsClient struct {
	client *Client
}

func NewOrganisationsClient(cfg config.UpstreamConfig, logger *slog.Logger) *OrganisationsClient {
	return &OrganisationsClient{client: NewClient(cfg.OrganisationsURL, cfg, logger)}
}

type namedRef[T any] struct {
	ID   T      `json:"id"`
	Name string `json:"name"`
}

type organisationDTO struct {
	ID                  string           `json:"id"`
	Name                string           `json:"name"`
	Category            namedRef[string] `json:"category"`
	Status              namedRef[int]    `json:"status"`
	URN                 string           `json:"urn"`
	UID                 string           `json:"uid"`
	UKPRN               string           `json:"ukprn"`
	UPIN                string           `json:"upin"`
	EstablishmentNumber string           `json:"establishmentNumber"`
	LegacyID            string           `json:"legacyId"`
}

type mappingDTO struct {
	UserID       string          `json:"userId"`
	InvitationID string          `json:"invitationId"`
	Organisation organisationDTO `json:"organisation"`
	Role         namedRef[int]   `json:"role"`
}

func (m mappingDTO) toModel() models.OrganisationMapping {
	o := m.Organisation
	return models.OrganisationMapping{
		ID:                  o.ID,
		Name:                o.Name,
		CategoryID:          o.Category.ID,
		Category:            o.Category.Name,
		StatusID:            o.Status.ID,
		Status:              o.Status.Name,
		RoleID:              m.Role.ID,
		Role:                m.Role.Name,
		URN:                 o.URN,
		UID:                 o.UID,
		UKPRN:               o.UKPRN,
		UPIN:                o.UPIN,
		EstablishmentNumber: o.EstablishmentNumber,
		LegacyID:            o.LegacyID,
	}
}

func toMappings(dtos []mappingDTO) []models.OrganisationMapping {
	result := make([]models.OrganisationMapping, 0, len(dtos))
	for _, d := range dtos {
		result = append(result, d.toModel())
	}
	return result
}

// UserOrganisations returns the user's organisations in upstream order. A user
// the service does not know has no organisations.
func (c *OrganisationsClient) UserOrganisations(ctx context.Context, userID string) ([]models.OrganisationMapping, error) {
	var body []mappingDTO
	err := c.client.get(ctx, "/organisations/v2/associated-with-user/"+url.PathEscape(userID), &body)
	if isNotFound(err) {
		return []models.OrganisationMapping{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organisations for user %s: %w", userID, err)
	}
	return toMappings(body), nil
}

func (c *OrganisationsClient) InvitationOrganisations(ctx context.Context, invitationID string) ([]models.OrganisationMapping, error) {
	var body []mappingDTO
	err := c.client.get(ctx, "/invitations/v2/"+url.PathEscape(invitationID), &body)
	if isNotFound(err) {
		return []models.OrganisationMapping{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organisations for invitation %s: %w", invitationID, err)
	}
	return toMappings(body), nil
}

// ListUserOrganisations reads one page of all user to organisation mappings.
func (c *OrganisationsClient) ListUserOrganisations(ctx context.Context, page, pageSize int) (models.Page[models.UserOrganisationMapping], error) {
	var body struct {
		UserOrganisations []mappingDTO `json:"userOrganisations"`
		NumberOfPages     int          `json:"numberOfPages"`
	}
	if err := c.client.get(ctx, "/organisations/v2/users?"+pageQuery(page, pageSize), &body); err != nil {
		return models.Page[models.UserOrganisationMapping]{}, err
	}

	result := models.Page[models.UserOrganisationMapping]{NumberOfPages: body.NumberOfPages}
	for _, m := range body.UserOrganisations {
		result.Items = append(result.Items, models.UserOrganisationMapping{PrincipalID: m.UserID, Organisation: m.toModel()})
	}
	return result, nil
}

func (c *OrganisationsClient) ListInvitationOrganisations(ctx context.Context, page, pageSize int) (models.Page[models.UserOrganisationMapping], error) {
	var body struct {
		InvitationOrganisations []mappingDTO `json:"invitationOrganisations"`
		NumberOfPages           int          `json:"numberOfPages"`
	}
	if err := c.client.get(ctx, "/organisations/v2/invitations?"+pageQuery(page, pageSize), &body); err != nil {
		return models.Page[models.UserOrganisationMapping]{}, err
	}

	result := models.Page[models.UserOrganisationMapping]{NumberOfPages: body.NumberOfPages}
	for _, m := range body.InvitationOrganisations {
		result.Items = append(result.Items, models.UserOrganisationMapping{PrincipalID: m.InvitationID, Organisation: m.toModel()})
	}
	return result, nil
}
