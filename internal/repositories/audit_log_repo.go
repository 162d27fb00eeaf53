package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/BradenHooton/directory-search/internal/database"
	"github.com/BradenHooton/directory-search/internal/models"
)

// AuditLogReader reads audit entries in timestamp order.
type AuditLogReader interface {
	GetBatchSince(ctx context.Context, since time.Time, limit int) ([]models.AuditEntry, error)
}

// AuditLogRepository reads the audit log tables
type AuditLogRepository struct {
	pool database.PgxPool
}

func NewAuditLogRepository(db *database.DB) *AuditLogRepository {
	return &AuditLogRepository{pool: db.Pool}
}

const auditBatchQuery = `
		SELECT l.id, l.type, COALESCE(l.sub_type, ''), COALESCE(l.user_id, ''),
		       COALESCE(l.organisation_id, ''), COALESCE(l.level, ''), COALESCE(l.message, ''),
		       l.created_at,
		       COALESCE((SELECT m.value FROM log_meta m WHERE m.log_id = l.id AND m.key = 'editedUser' LIMIT 1), ''),
		       COALESCE((SELECT m.value FROM log_meta m WHERE m.log_id = l.id AND m.key = 'editedFields' LIMIT 1), '')
		FROM logs l
		WHERE l.created_at > $1
		ORDER BY l.created_at ASC, l.id ASC
		LIMIT $2
	`

// rowScanner covers pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAuditRow(row rowScanner) (models.AuditEntry, error) {
	var entry models.AuditEntry
	var editedFields string

	err := row.Scan(
		&entry.ID, &entry.Type, &entry.SubType, &entry.UserID,
		&entry.OrganisationID, &entry.Level, &entry.Message,
		&entry.Timestamp, &entry.EditedUser, &editedFields,
	)
	if err != nil {
		return entry, database.MapPostgresError(err)
	}

	entry.UserID = strings.ToLower(entry.UserID)
	entry.EditedUser = strings.ToLower(entry.EditedUser)
	entry.Timestamp = entry.Timestamp.UTC()
	if editedFields != "" {
		if err := entry.EditedFields.Scan(editedFields); err != nil {
			return entry, fmt.Errorf("invalid editedFields on audit %d: %w", entry.ID, err)
		}
	}

	return entry, nil
}

func scanAuditRows(rows pgx.Rows) ([]models.AuditEntry, error) {
	defer rows.Close()

	entries := make([]models.AuditEntry, 0)
	for rows.Next() {
		entry, err := scanAuditRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit rows: %w", err)
	}

	return entries, nil
}

// GetBatchSince returns up to limit entries created strictly after since,
// oldest first. User ids are lower-cased.
func (r *AuditLogRepository) GetBatchSince(ctx context.Context, since time.Time, limit int) ([]models.AuditEntry, error) {
	rows, err := r.pool.Query(ctx, auditBatchQuery, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs since %s: %w", since.Format(time.RFC3339Nano), database.MapPostgresError(err))
	}

	return scanAuditRows(rows)
}
