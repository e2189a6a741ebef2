package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/example/wfm/internal/ctxutil"
	"github.com/example/wfm/internal/ports/secondary"
)

// AuditLogRepository implements secondary.AuditLogRepository with SQLite.
type AuditLogRepository struct {
	db *sql.DB
}

// NewAuditLogRepository creates a new SQLite audit log.
func NewAuditLogRepository(db *sql.DB) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

// Append adds an entry. An empty actor is taken from the context.
func (r *AuditLogRepository) Append(ctx context.Context, entry *secondary.AuditEntry) error {
	if entry.Actor == "" {
		entry.Actor = ctxutil.ActorFromContext(ctx)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	result, err := r.db.ExecContext(ctx,
		"INSERT INTO audit_log (record_id, actor, description, created_at) VALUES (?, ?, ?, ?)",
		entry.RecordID, entry.Actor, entry.Description, entry.CreatedAt.UTC(),
	)
	if err != nil {
		return errors.Wrap(err, "failed to append audit entry")
	}
	if id, err := result.LastInsertId(); err == nil {
		entry.ID = id
	}
	return nil
}

// ListByRecord returns a record's entries in append order.
func (r *AuditLogRepository) ListByRecord(ctx context.Context, recordID string) ([]*secondary.AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, record_id, actor, description, created_at FROM audit_log WHERE record_id = ? ORDER BY id",
		recordID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list audit entries")
	}
	defer rows.Close()

	var entries []*secondary.AuditEntry
	for rows.Next() {
		var e secondary.AuditEntry
		if err := rows.Scan(&e.ID, &e.RecordID, &e.Actor, &e.Description, &e.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan audit entry")
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

var _ secondary.AuditLogRepository = (*AuditLogRepository)(nil)
