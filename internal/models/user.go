package models

import (
	"time"
)

// User is a directory user record as returned by the directories service
type User struct {
	ID              string
	FirstName       string
	LastName        string
	Email           string
	Status          int
	PendingEmail    string
	LegacyUsernames []string
	Devices         []string   // serial numbers of devices assigned to the user
	LastLogin       *time.Time // directory-held last login, overrides audit stats on read
}

// Invitation is a pending invitation from the directories service
type Invitation struct {
	ID          string
	FirstName   string
	LastName    string
	Email       string
	IsCompleted bool
	Deactivated bool
	Deleted     bool
}

// Skippable reports whether the invitation should not appear in the index.
func (i *Invitation) Skippable() bool {
	return i == nil || i.IsCompleted || i.Deleted
}

// Device is a hardware token from the devices service
type Device struct {
	SerialNumber string
	Deactivated  bool
}

// Device status ids as exposed by the devices index
const (
	DeviceStatusUnassigned  = 1
	DeviceStatusAssigned    = 2
	DeviceStatusDeactivated = 3
)

// Invitation status ids written to the users index
const (
	InvitationStatusActive      = -1
	InvitationStatusDeactivated = -2
)

// OrganisationMapping is one organisation a user or invitation belongs to.
// It is also the shape serialized into the organisationsJson snapshot.
type OrganisationMapping struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	CategoryID          string `json:"categoryId"`
	Category            string `json:"category,omitempty"`
	StatusID            int    `json:"statusId"`
	Status              string `json:"status,omitempty"`
	RoleID              int    `json:"roleId"`
	Role                string `json:"role,omitempty"`
	URN                 string `json:"urn,omitempty"`
	UID                 string `json:"uid,omitempty"`
	UKPRN               string `json:"ukprn,omitempty"`
	UPIN                string `json:"upin,omitempty"`
	EstablishmentNumber string `json:"establishmentNumber,omitempty"`
	LegacyID            string `json:"legacyId,omitempty"`
}

// Identifiers returns the non-empty external identifiers of the organisation.
func (o OrganisationMapping) Identifiers() []string {
	ids := make([]string, 0, 5)
	for _, v := range []string{o.URN, o.UID, o.UKPRN, o.UPIN, o.EstablishmentNumber} {
		if v != "" {
			ids = append(ids, v)
		}
	}
	return ids
}

// UserOrganisationMapping joins a principal to an organisation. For invitation
// mappings PrincipalID holds the invitation id.
type UserOrganisationMapping struct {
	PrincipalID  string
	Organisation OrganisationMapping
}

// UserServiceMapping joins a principal to a service id.
type UserServiceMapping struct {
	PrincipalID string
	ServiceID   string
}

// Page is one page of a paged upstream collection
type Page[T any] struct {
	Items         []T
	NumberOfPages int
}
