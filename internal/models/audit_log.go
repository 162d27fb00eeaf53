package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Audit event types consumed by the login stats updater
const (
	AuditTypeSignIn          = "sign-in"
	AuditSubTypeUsernamePass = "username-password"
	AuditTypeSupport         = "support"
	AuditSubTypeUserEdit     = "user-edit"
)

type AuditEntry struct {
	ID             int64        `db:"id"`
	Type           string       `db:"type"`
	SubType        string       `db:"sub_type"`
	UserID         string       `db:"user_id"`
	EditedUser     string       `db:"edited_user"`
	EditedFields   EditedFields `db:"edited_fields"`
	OrganisationID string       `db:"organisation_id"`
	Level          string       `db:"level"`
	Message        string       `db:"message"`
	Timestamp      time.Time    `db:"created_at"`
}

// IsSignIn reports a successful username/password sign-in.
func (e AuditEntry) IsSignIn() bool {
	return e.Type == AuditTypeSignIn && e.SubType == AuditSubTypeUsernamePass
}

// IsStatusChange reports a support edit that changed another user's status.
func (e AuditEntry) IsStatusChange() bool {
	return e.Type == AuditTypeSupport && e.SubType == AuditSubTypeUserEdit &&
		e.EditedUser != "" && e.EditedFields.Has("status")
}

// AffectedUser is the user whose stats the entry updates.
func (e AuditEntry) AffectedUser() string {
	if e.IsStatusChange() {
		return e.EditedUser
	}
	return e.UserID
}

type EditedField struct {
	Name     string `json:"name"`
	OldValue any    `json:"oldValue,omitempty"`
	NewValue any    `json:"newValue,omitempty"`
}

// EditedFields holds the JSON list of fields changed by a support edit
type EditedFields []EditedField

func (f EditedFields) Has(name string) bool {
	for _, field := range f {
		if field.Name == name {
			return true
		}
	}
	return false
}

// Scan implements sql.Scanner for the JSON meta value
func (f *EditedFields) Scan(value interface{}) error {
	if value == nil {
		*f = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return ErrBadRequest
	}

	var fields []EditedField
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*f = fields
	return nil
}

// Value implements driver.Valuer
func (f EditedFields) Value() (driver.Value, error) {
	if f == nil {
		return nil, nil
	}
	return json.Marshal([]EditedField(f))
}
