// Package sqlite contains SQLite implementations of repository interfaces.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/example/wfm/internal/core/serial"
	"github.com/example/wfm/internal/ports/secondary"
)

const recordColumns = "id, kind, title, project_id, branch_id, status, serial, planned_at, created_at, updated_at"

// RecordRepository implements secondary.RecordRepository with SQLite.
type RecordRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewRecordRepository creates a new SQLite record repository.
func NewRecordRepository(db *sql.DB) *RecordRepository {
	return &RecordRepository{db: db, now: time.Now}
}

// Create persists a new record.
func (r *RecordRepository) Create(ctx context.Context, record *secondary.OperationalRecord) error {
	now := r.now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	if record.Status == "" {
		record.Status = secondary.StatusDraft
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO records ("+recordColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		record.ID, record.Kind, record.Title,
		nullString(record.ProjectID), nullString(record.BranchID),
		record.Status, nullString(record.Serial), nullTime(record.PlannedAt),
		record.CreatedAt.UTC(), record.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create record")
	}
	return nil
}

// GetByID retrieves a record by its ID.
func (r *RecordRepository) GetByID(ctx context.Context, id string) (*secondary.OperationalRecord, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+recordColumns+" FROM records WHERE id = ?", id)
	record, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(serial.ErrNotFound, "record %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get record")
	}
	return record, nil
}

// List retrieves records matching the given filters.
func (r *RecordRepository) List(ctx context.Context, filters secondary.RecordFilters) ([]*secondary.OperationalRecord, error) {
	query := "SELECT " + recordColumns + " FROM records WHERE 1=1"
	args := []any{}

	if filters.Kind != "" {
		query += " AND kind = ?"
		args = append(args, filters.Kind)
	}
	if filters.Status != "" {
		query += " AND status = ?"
		args = append(args, filters.Status)
	}
	if filters.BranchID != "" {
		query += " AND branch_id = ?"
		args = append(args, filters.BranchID)
	}
	if len(filters.BranchIDs) > 0 {
		query += " AND (branch_id IS NULL OR branch_id IN (?" + strings.Repeat(", ?", len(filters.BranchIDs)-1) + "))"
		for _, id := range filters.BranchIDs {
			args = append(args, id)
		}
	}
	if filters.SerialInvalidFor != 0 {
		query += " AND (serial IS NULL OR serial NOT GLOB ? OR serial GLOB '0000/*')"
		args = append(args, fmt.Sprintf("[0-9][0-9][0-9][0-9]/%02d", filters.SerialInvalidFor%100))
	}
	if !filters.CreatedFrom.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, filters.CreatedFrom.UTC())
	}
	if !filters.CreatedBefore.IsZero() {
		query += " AND created_at < ?"
		args = append(args, filters.CreatedBefore.UTC())
	}

	query += " ORDER BY created_at, id"
	if filters.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filters.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list records")
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Update applies the non-nil fields of a patch.
func (r *RecordRepository) Update(ctx context.Context, patch *secondary.RecordPatch) error {
	sets := []string{"updated_at = ?"}
	args := []any{r.now().UTC()}

	if patch.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *patch.Title)
	}
	if patch.ProjectID != nil {
		sets = append(sets, "project_id = ?")
		args = append(args, nullString(*patch.ProjectID))
	}
	if patch.BranchID != nil {
		sets = append(sets, "branch_id = ?")
		args = append(args, nullString(*patch.BranchID))
	}
	if patch.Serial != nil {
		sets = append(sets, "serial = ?")
		args = append(args, nullString(*patch.Serial))
	}
	if patch.PlannedAt != nil {
		sets = append(sets, "planned_at = ?")
		args = append(args, nullTime(*patch.PlannedAt))
	}

	args = append(args, patch.ID)
	result, err := r.db.ExecContext(ctx, "UPDATE records SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return errors.Wrap(err, "failed to update record")
	}
	return requireRow(result, patch.ID)
}

// UpdateStatus changes the lifecycle status.
func (r *RecordRepository) UpdateStatus(ctx context.Context, id, status string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE records SET status = ?, updated_at = ? WHERE id = ?",
		status, r.now().UTC(), id,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update record status")
	}
	return requireRow(result, id)
}

// SetSerial writes serial only if the stored serial still equals expected.
func (r *RecordRepository) SetSerial(ctx context.Context, id, expected, value string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		"UPDATE records SET serial = ?, updated_at = ? WHERE id = ? AND COALESCE(serial, '') = ?",
		nullString(value), r.now().UTC(), id, expected,
	)
	if err != nil {
		return false, errors.Wrap(err, "failed to set serial")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to get rows affected")
	}
	return n > 0, nil
}

// FindBySerial returns every record of the kind holding exactly value.
func (r *RecordRepository) FindBySerial(ctx context.Context, kind, value string) ([]*secondary.OperationalRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+recordColumns+" FROM records WHERE kind = ? AND serial = ? ORDER BY created_at, id",
		kind, value,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find records by serial")
	}
	defer rows.Close()

	return scanRecords(rows)
}

// CreatedRange returns the earliest and latest created_at of the kind.
func (r *RecordRepository) CreatedRange(ctx context.Context, kind string) (time.Time, time.Time, error) {
	first, err := r.createdEdge(ctx, kind, "ASC")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	last, err := r.createdEdge(ctx, kind, "DESC")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return first, last, nil
}

func (r *RecordRepository) createdEdge(ctx context.Context, kind, order string) (time.Time, error) {
	var at time.Time
	err := r.db.QueryRowContext(ctx,
		"SELECT created_at FROM records WHERE kind = ? ORDER BY created_at "+order+" LIMIT 1",
		kind,
	).Scan(&at)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, errors.Wrap(err, "failed to read created_at range")
	}
	return at.UTC(), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*secondary.OperationalRecord, error) {
	var (
		projectID sql.NullString
		branchID  sql.NullString
		serialNo  sql.NullString
		plannedAt sql.NullTime
		record    secondary.OperationalRecord
	)
	err := row.Scan(&record.ID, &record.Kind, &record.Title, &projectID, &branchID,
		&record.Status, &serialNo, &plannedAt, &record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		return nil, err
	}

	record.ProjectID = projectID.String
	record.BranchID = branchID.String
	record.Serial = serialNo.String
	if plannedAt.Valid {
		record.PlannedAt = plannedAt.Time.UTC()
	}
	record.CreatedAt = record.CreatedAt.UTC()
	record.UpdatedAt = record.UpdatedAt.UTC()
	return &record, nil
}

func scanRecords(rows *sql.Rows) ([]*secondary.OperationalRecord, error) {
	var records []*secondary.OperationalRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan record")
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate records")
	}
	return records, nil
}

func requireRow(result sql.Result, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if n == 0 {
		return errors.Wrapf(serial.ErrNotFound, "record %s", id)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// Ensure RecordRepository implements the interface
var _ secondary.RecordRepository = (*RecordRepository)(nil)
