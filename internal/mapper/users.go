package mapper

import (
	"strings"
	"time"

	"github.com/BradenHooton/directory-search/internal/models"
)

// InvitationKeyPrefix marks invitation documents in the users index
const InvitationKeyPrefix = "inv-"

// User status ids from the directories service
const (
	UserStatusDeactivated = 0
	UserStatusActive      = 1
)

// StatusDescription renders a users-index status id.
func StatusDescription(statusID int64) string {
	switch statusID {
	case UserStatusActive:
		return "Active"
	case UserStatusDeactivated:
		return "Deactivated"
	case models.InvitationStatusActive:
		return "Invited"
	case models.InvitationStatusDeactivated:
		return "Deactivated Invitation"
	default:
		return "Unknown"
	}
}

// IsInvitationKey reports whether a users-index key names an invitation.
func IsInvitationKey(key string) bool {
	return strings.HasPrefix(key, InvitationKeyPrefix)
}

// InvitationID strips the invitation prefix from a users-index key.
func InvitationID(key string) string {
	return strings.TrimPrefix(key, InvitationKeyPrefix)
}

// EpochMillis converts an optional time to epoch milliseconds, 0 when unset.
func EpochMillis(t *time.Time) int64 {
	if t == nil || t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// UserDocument builds the users-index document for a directory user.
// Missing login stats yield zero values.
func UserDocument(user models.User, orgs []models.OrganisationMapping, services []string, stats *models.LoginStats) (models.Document, error) {
	doc := models.Document{
		"id":              user.ID,
		"firstName":       user.FirstName,
		"lastName":        user.LastName,
		"searchableName":  SearchableString(user.FirstName + user.LastName),
		"email":           user.Email,
		"searchableEmail": SearchableString(user.Email),
		"services":        dedupe(services),
		"statusId":        int64(user.Status),
		"pendingEmail":    user.PendingEmail,
		"legacyUsernames": legacyUsernames(user.LegacyUsernames),
	}
	doc["statusDescription"] = StatusDescription(int64(user.Status))
	loginFields(doc, stats, user.LastLogin)

	if err := organisationFields(doc, orgs); err != nil {
		return nil, err
	}
	return doc, nil
}

// InvitationDocument builds the users-index document for a pending invitation.
func InvitationDocument(inv models.Invitation, orgs []models.OrganisationMapping, services []string) (models.Document, error) {
	status := int64(models.InvitationStatusActive)
	if inv.Deactivated {
		status = models.InvitationStatusDeactivated
	}

	doc := models.Document{
		"id":                inv.ID,
		"firstName":         inv.FirstName,
		"lastName":          inv.LastName,
		"searchableName":    SearchableString(inv.FirstName + inv.LastName),
		"email":             inv.Email,
		"searchableEmail":   SearchableString(inv.Email),
		"services":          dedupe(services),
		"statusId":          status,
		"statusDescription": StatusDescription(status),
		"pendingEmail":      "",
		"legacyUsernames":   []string{},
	}
	if !IsInvitationKey(inv.ID) {
		doc["id"] = InvitationKeyPrefix + inv.ID
	}
	loginFields(doc, nil, nil)

	if err := organisationFields(doc, orgs); err != nil {
		return nil, err
	}
	return doc, nil
}

// RefreshUserDocument recomputes the derived fields of an existing users
// document after its source fields were edited. Organisations come from the
// document's snapshot unless forceRefresh is set.
func RefreshUserDocument(doc models.Document, live []models.OrganisationMapping, forceRefresh bool) (models.Document, error) {
	refreshed := doc.Clone()

	orgs, err := ResolveOrganisations(doc.String("organisationsJson"), live, forceRefresh)
	if err != nil {
		return nil, err
	}
	if err := organisationFields(refreshed, orgs); err != nil {
		return nil, err
	}

	refreshed["searchableName"] = SearchableString(doc.String("firstName") + doc.String("lastName"))
	refreshed["searchableEmail"] = SearchableString(doc.String("email"))
	refreshed["statusDescription"] = StatusDescription(doc.Int64("statusId"))
	refreshed["services"] = dedupe(doc.StringSet("services"))
	refreshed["legacyUsernames"] = legacyUsernames(doc.StringSet("legacyUsernames"))
	return refreshed, nil
}

func legacyUsernames(names []string) []string {
	out := newSet()
	for _, n := range names {
		out.add(strings.ToLower(strings.TrimSpace(n)))
	}
	return out.values()
}

// loginFields fills the login aggregates. lastLogin is always written so
// that "never logged in" filters match 0.
func loginFields(doc models.Document, stats *models.LoginStats, fallbackLastLogin *time.Time) {
	if stats == nil {
		stats = models.NewLoginStats()
	}

	lastLogin := stats.LastLogin
	if lastLogin == nil {
		lastLogin = fallbackLastLogin
	}

	doc["lastLogin"] = EpochMillis(lastLogin)
	doc["numberOfSuccessfulLoginsInPast12Months"] = int64(len(stats.LoginsInPast12Months))
	doc["statusLastChangedOn"] = EpochMillis(stats.LastStatusChange)
}
