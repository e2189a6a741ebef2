package secondary

import (
	"context"
	"time"
)

// Record kinds. Each kind is numbered by its own sequence.
const (
	KindWorkOrder     = "work_order"
	KindWorkingReport = "working_report"
)

// Record statuses.
const (
	StatusDraft    = "draft"
	StatusActive   = "active"
	StatusComplete = "complete"
)

// RecordRepository defines the secondary port for operational record persistence.
// No transactional guarantee spans multiple calls.
type RecordRepository interface {
	// Create persists a new record.
	Create(ctx context.Context, record *OperationalRecord) error

	// GetByID retrieves a record by its ID. Unknown IDs wrap serial.ErrNotFound.
	GetByID(ctx context.Context, id string) (*OperationalRecord, error)

	// List retrieves records matching the given filters, ordered by created_at, id.
	List(ctx context.Context, filters RecordFilters) ([]*OperationalRecord, error)

	// Update applies the non-nil fields of a patch.
	Update(ctx context.Context, patch *RecordPatch) error

	// UpdateStatus changes the lifecycle status.
	UpdateStatus(ctx context.Context, id, status string) error

	// SetSerial writes serial only when the stored serial still equals expected
	// (empty string matches NULL). Returns false when the record moved on.
	SetSerial(ctx context.Context, id, expected, serial string) (bool, error)

	// FindBySerial returns every record of the kind holding exactly serial.
	FindBySerial(ctx context.Context, kind, serial string) ([]*OperationalRecord, error)

	// CreatedRange returns the earliest and latest created_at of the kind.
	// Both are zero when the kind has no records.
	CreatedRange(ctx context.Context, kind string) (first, last time.Time, err error)
}

// OperationalRecord is a work order or working report as stored in persistence.
// Only the fields numbering reads or writes are modelled.
type OperationalRecord struct {
	ID        string
	Kind      string
	Title     string
	ProjectID string // Empty string means null
	BranchID  string // Empty string means null - may be resolved through the project
	Status    string
	Serial    string    // Empty string means null
	PlannedAt time.Time // Zero means null; never used for numbering
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RecordFilters contains filter options for querying records.
type RecordFilters struct {
	Kind     string
	Status   string
	BranchID string
	// BranchIDs keeps records whose own branch is listed, plus records with
	// no own branch, which resolve through their project.
	BranchIDs     []string
	CreatedFrom   time.Time // inclusive, zero means unbounded
	CreatedBefore time.Time // exclusive, zero means unbounded
	// SerialInvalidFor, when non-zero, keeps only records whose serial is
	// missing or is not a valid serial of that year.
	SerialInvalidFor int
	Limit            int
}

// RecordPatch carries a partial update. Nil fields are left untouched.
type RecordPatch struct {
	ID        string
	Title     *string
	ProjectID *string
	BranchID  *string
	Serial    *string
	PlannedAt *time.Time
}

// ProjectRepository defines the secondary port for project lookups.
type ProjectRepository interface {
	// Create persists a new project.
	Create(ctx context.Context, project *ProjectRecord) error

	// GetByID retrieves a project by its ID.
	GetByID(ctx context.Context, id string) (*ProjectRecord, error)

	// List retrieves all projects.
	List(ctx context.Context) ([]*ProjectRecord, error)
}

// ProjectRecord represents a project. BranchID is the branch records inherit.
type ProjectRecord struct {
	ID        string
	Name      string
	BranchID  string // Empty string means null
	CreatedAt time.Time
}

// BranchRepository defines the secondary port for branch reference data.
type BranchRepository interface {
	Create(ctx context.Context, branch *BranchRecord) error
	List(ctx context.Context) ([]*BranchRecord, error)
}

// BranchRecord represents a branch (tenant location).
type BranchRecord struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// AuditLogRepository defines the append-only audit log of record changes.
type AuditLogRepository interface {
	// Append adds an entry. Entries are never updated or deleted.
	Append(ctx context.Context, entry *AuditEntry) error

	// ListByRecord returns a record's entries in append order.
	ListByRecord(ctx context.Context, recordID string) ([]*AuditEntry, error)
}

// AuditEntry is one change record on an operational record.
type AuditEntry struct {
	ID          int64
	RecordID    string
	Actor       string
	Description string
	CreatedAt   time.Time
}
