package primary

import (
	"context"
	"time"
)

// RecordService defines the primary port for operational record operations.
// Every write publishes a record event for the numbering triggers.
type RecordService interface {
	// CreateRecord creates a draft record.
	CreateRecord(ctx context.Context, req CreateRecordRequest) (*Record, error)

	// UpdateRecord applies an edit. A manual serial edit may create a duplicate
	// that the duplicate guard repairs.
	UpdateRecord(ctx context.Context, req UpdateRecordRequest) (*Record, error)

	// ActivateRecord moves a draft record to active (clock-in).
	ActivateRecord(ctx context.Context, recordID string) (*Record, error)

	// GetRecord retrieves a record by ID.
	GetRecord(ctx context.Context, recordID string) (*Record, error)

	// ListRecords lists records with optional filters.
	ListRecords(ctx context.Context, filters RecordFilters) ([]*Record, error)

	// History returns a record's audit log.
	History(ctx context.Context, recordID string) ([]*AuditEntry, error)
}

// CreateRecordRequest contains parameters for creating a record.
type CreateRecordRequest struct {
	Kind      string
	Title     string
	ProjectID string
	BranchID  string
	PlannedAt time.Time
	CreatedAt time.Time // Zero means now; set by imports of historical data
}

// UpdateRecordRequest contains the fields to change. Nil means unchanged.
type UpdateRecordRequest struct {
	RecordID  string
	Title     *string
	ProjectID *string
	BranchID  *string
	Serial    *string
	PlannedAt *time.Time
}

// RecordFilters contains filter options for listing records.
type RecordFilters struct {
	Kind     string
	Status   string
	BranchID string
	Limit    int
}

// Record is the primary-port view of an operational record.
type Record struct {
	ID        string
	Kind      string
	Title     string
	ProjectID string
	BranchID  string
	Status    string
	Serial    string
	PlannedAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AuditEntry is one line of a record's history.
type AuditEntry struct {
	Actor       string
	Description string
	CreatedAt   time.Time
}
