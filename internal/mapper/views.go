package mapper

import (
	"github.com/BradenHooton/directory-search/internal/models"
)

type StatusView struct {
	ID          int64  `json:"id"`
	Description string `json:"description"`
}

// UserView is a users-index document as returned by the API
type UserView struct {
	ID                                     string                       `json:"id"`
	FirstName                              string                       `json:"firstName"`
	LastName                               string                       `json:"lastName"`
	Email                                  string                       `json:"email"`
	PrimaryOrganisation                    string                       `json:"primaryOrganisation,omitempty"`
	Organisations                          []models.OrganisationMapping `json:"organisations"`
	Services                               []string                     `json:"services"`
	LastLogin                              *int64                       `json:"lastLogin"`
	NumberOfSuccessfulLoginsInPast12Months int64                        `json:"numberOfSuccessfulLoginsInPast12Months"`
	StatusLastChangedOn                    *int64                       `json:"statusLastChangedOn"`
	Status                                 StatusView                   `json:"status"`
	PendingEmail                           string                       `json:"pendingEmail,omitempty"`
	LegacyUsernames                        []string                     `json:"legacyUsernames"`
}

type DeviceView struct {
	SerialNumber                           string `json:"serialNumber"`
	StatusID                               int64  `json:"statusId"`
	AssigneeID                             string `json:"assigneeId,omitempty"`
	Assignee                               string `json:"assignee,omitempty"`
	OrganisationName                       string `json:"organisationName,omitempty"`
	LastLogin                              *int64 `json:"lastLogin"`
	NumberOfSuccessfulLoginsInPast12Months int64  `json:"numberOfSuccessfulLoginsInPast12Months"`
}

// UserFromDocument rebuilds the API view of a users-index document.
func UserFromDocument(doc models.Document) (UserView, error) {
	orgs, err := ResolveOrganisations(doc.String("organisationsJson"), nil, false)
	if err != nil {
		return UserView{}, err
	}

	statusID := doc.Int64("statusId")
	return UserView{
		ID:                                     doc.String("id"),
		FirstName:                              doc.String("firstName"),
		LastName:                               doc.String("lastName"),
		Email:                                  doc.String("email"),
		PrimaryOrganisation:                    doc.String("primaryOrganisation"),
		Organisations:                          orgs,
		Services:                               doc.StringSet("services"),
		LastLogin:                              optionalMillis(doc.Int64("lastLogin")),
		NumberOfSuccessfulLoginsInPast12Months: doc.Int64("numberOfSuccessfulLoginsInPast12Months"),
		StatusLastChangedOn:                    optionalMillis(doc.Int64("statusLastChangedOn")),
		Status:                                 StatusView{ID: statusID, Description: StatusDescription(statusID)},
		PendingEmail:                           doc.String("pendingEmail"),
		LegacyUsernames:                        doc.StringSet("legacyUsernames"),
	}, nil
}

func DeviceFromDocument(doc models.Document) DeviceView {
	return DeviceView{
		SerialNumber:                           doc.String("serialNumber"),
		StatusID:                               doc.Int64("statusId"),
		AssigneeID:                             doc.String("assigneeId"),
		Assignee:                               doc.String("assignee"),
		OrganisationName:                       doc.String("organisationName"),
		LastLogin:                              optionalMillis(doc.Int64("lastLogin")),
		NumberOfSuccessfulLoginsInPast12Months: doc.Int64("numberOfSuccessfulLoginsInPast12Months"),
	}
}

func optionalMillis(ms int64) *int64 {
	if ms == 0 {
		return nil
	}
	return &ms
}
