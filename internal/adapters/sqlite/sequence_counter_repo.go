package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/example/wfm/internal/core/serial"
	"github.com/example/wfm/internal/ports/secondary"
)

// SequenceCounterRepository implements secondary.SequenceCounterRepository with SQLite.
type SequenceCounterRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSequenceCounterRepository creates a new SQLite counter ledger.
func NewSequenceCounterRepository(db *sql.DB) *SequenceCounterRepository {
	return &SequenceCounterRepository{db: db, now: time.Now}
}

// Get returns the counter for a scope, or nil when none exists.
func (r *SequenceCounterRepository) Get(ctx context.Context, scope serial.Scope) (*secondary.SequenceCounterRecord, error) {
	record := secondary.SequenceCounterRecord{Scope: scope}
	err := r.db.QueryRowContext(ctx,
		"SELECT last_number, updated_at FROM sequence_counters WHERE sequence = ? AND branch_id = ? AND year = ?",
		scope.Sequence, scope.BranchID, scope.Year,
	).Scan(&record.LastNumber, &record.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get counter %s", scope)
	}
	return &record, nil
}

// Create inserts a counter. Fails if one already exists for the scope.
func (r *SequenceCounterRepository) Create(ctx context.Context, scope serial.Scope, lastNumber int) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO sequence_counters (sequence, branch_id, year, last_number, updated_at) VALUES (?, ?, ?, ?, ?)",
		scope.Sequence, scope.BranchID, scope.Year, lastNumber, r.now().UTC(),
	)
	if err != nil {
		return errors.Wrapf(err, "failed to create counter %s", scope)
	}
	return nil
}

// SetIfGreater raises last_number to n, creating the row if it is missing.
// The comparison happens inside the statement so concurrent callers can only
// move the counter forward.
func (r *SequenceCounterRepository) SetIfGreater(ctx context.Context, scope serial.Scope, n int) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO sequence_counters (sequence, branch_id, year, last_number, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(sequence, branch_id, year) DO UPDATE
		SET last_number = excluded.last_number, updated_at = excluded.updated_at
		WHERE excluded.last_number > sequence_counters.last_number`,
		scope.Sequence, scope.BranchID, scope.Year, n, r.now().UTC(),
	)
	if err != nil {
		return false, errors.Wrapf(err, "failed to raise counter %s", scope)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to get rows affected")
	}
	return rows > 0, nil
}

// List returns all counters ordered by sequence, year, branch.
func (r *SequenceCounterRepository) List(ctx context.Context) ([]*secondary.SequenceCounterRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT sequence, branch_id, year, last_number, updated_at FROM sequence_counters ORDER BY sequence, year, branch_id",
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list counters")
	}
	defer rows.Close()

	var counters []*secondary.SequenceCounterRecord
	for rows.Next() {
		var c secondary.SequenceCounterRecord
		if err := rows.Scan(&c.Scope.Sequence, &c.Scope.BranchID, &c.Scope.Year, &c.LastNumber, &c.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan counter")
		}
		counters = append(counters, &c)
	}
	return counters, rows.Err()
}

var _ secondary.SequenceCounterRepository = (*SequenceCounterRepository)(nil)
