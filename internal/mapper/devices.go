package mapper

import (
	"strings"

	"github.com/BradenHooton/directory-search/internal/models"
)

// DeviceDocument builds the devices-index document. assignee is nil for an
// unassigned device; stats are the assignee's login stats.
func DeviceDocument(device models.Device, assignee *models.User, organisationName string, stats *models.LoginStats) models.Document {
	status := int64(models.DeviceStatusUnassigned)
	assigneeID, assigneeName := "", ""
	if assignee != nil {
		status = models.DeviceStatusAssigned
		assigneeID = assignee.ID
		assigneeName = strings.TrimSpace(assignee.FirstName + " " + assignee.LastName)
	}
	if device.Deactivated {
		status = models.DeviceStatusDeactivated
	}

	doc := models.Document{
		"serialNumber": device.SerialNumber,
		"statusId":     status,
		"assigneeId":   assigneeID,
		"assignee":     assigneeName,
	}
	doc["organisationName"] = organisationName
	refreshDeviceSearchable(doc)

	if stats == nil {
		stats = models.NewLoginStats()
	}
	lastLogin := stats.LastLogin
	if lastLogin == nil && assignee != nil {
		lastLogin = assignee.LastLogin
	}
	doc["lastLogin"] = EpochMillis(lastLogin)
	doc["numberOfSuccessfulLoginsInPast12Months"] = int64(len(stats.LoginsInPast12Months))
	return doc
}

// RefreshDeviceDocument recomputes the searchable fields after an edit.
func RefreshDeviceDocument(doc models.Document) models.Document {
	refreshed := doc.Clone()
	refreshDeviceSearchable(refreshed)
	return refreshed
}

func refreshDeviceSearchable(doc models.Document) {
	doc["searchableAssignee"] = SearchableString(doc.String("assignee"))
	doc["searchableOrganisationName"] = SearchableString(doc.String("organisationName"))
}
