package mapper

import "github.com/BradenHooton/directory-search/internal/models"

// UsersStructure is the users-index structure, shared by users and invitations.
var UsersStructure = models.IndexStructure{
	{Name: "id", Type: models.FieldTypeString, Key: true, Filterable: true},
	{Name: "firstName", Type: models.FieldTypeString},
	{Name: "lastName", Type: models.FieldTypeString},
	{Name: "searchableName", Type: models.FieldTypeString, Searchable: true, Sortable: true},
	{Name: "email", Type: models.FieldTypeString},
	{Name: "searchableEmail", Type: models.FieldTypeString, Searchable: true, Sortable: true},
	{Name: "organisations", Type: models.FieldTypeStringSet, Filterable: true},
	{Name: "searchableOrganisations", Type: models.FieldTypeStringSet, Searchable: true, Filterable: true},
	{Name: "organisationCategories", Type: models.FieldTypeStringSet, Filterable: true},
	{Name: "organisationIdentifiers", Type: models.FieldTypeStringSet, Searchable: true, Filterable: true},
	{Name: "primaryOrganisation", Type: models.FieldTypeString, Sortable: true},
	{Name: "organisationsJson", Type: models.FieldTypeString},
	{Name: "services", Type: models.FieldTypeStringSet, Filterable: true},
	{Name: "lastLogin", Type: models.FieldTypeInt64, Filterable: true, Sortable: true},
	{Name: "numberOfSuccessfulLoginsInPast12Months", Type: models.FieldTypeInt64},
	{Name: "statusLastChangedOn", Type: models.FieldTypeInt64},
	{Name: "statusId", Type: models.FieldTypeInt64, Filterable: true, Sortable: true},
	{Name: "statusDescription", Type: models.FieldTypeString},
	{Name: "pendingEmail", Type: models.FieldTypeString},
	{Name: "legacyUsernames", Type: models.FieldTypeStringSet, Searchable: true},
}

var DevicesStructure = models.IndexStructure{
	{Name: "serialNumber", Type: models.FieldTypeString, Key: true, Searchable: true, Sortable: true},
	{Name: "statusId", Type: models.FieldTypeInt64, Filterable: true},
	{Name: "assigneeId", Type: models.FieldTypeString},
	{Name: "assignee", Type: models.FieldTypeString},
	{Name: "searchableAssignee", Type: models.FieldTypeString, Searchable: true, Sortable: true},
	{Name: "organisationName", Type: models.FieldTypeString},
	{Name: "searchableOrganisationName", Type: models.FieldTypeString, Searchable: true, Sortable: true},
	{Name: "lastLogin", Type: models.FieldTypeInt64, Sortable: true},
	{Name: "numberOfSuccessfulLoginsInPast12Months", Type: models.FieldTypeInt64},
}
