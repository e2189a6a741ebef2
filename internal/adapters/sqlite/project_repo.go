package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/example/wfm/internal/core/serial"
	"github.com/example/wfm/internal/ports/secondary"
)

// ProjectRepository implements secondary.ProjectRepository with SQLite.
type ProjectRepository struct {
	db *sql.DB
}

// NewProjectRepository creates a new SQLite project repository.
func NewProjectRepository(db *sql.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// Create persists a new project.
func (r *ProjectRepository) Create(ctx context.Context, project *secondary.ProjectRecord) error {
	if project.CreatedAt.IsZero() {
		project.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO projects (id, name, branch_id, created_at) VALUES (?, ?, ?, ?)",
		project.ID, project.Name, nullString(project.BranchID), project.CreatedAt.UTC(),
	)
	if err != nil {
		return errors.Wrap(err, "failed to create project")
	}
	return nil
}

// GetByID retrieves a project by its ID.
func (r *ProjectRepository) GetByID(ctx context.Context, id string) (*secondary.ProjectRecord, error) {
	var (
		project  secondary.ProjectRecord
		branchID sql.NullString
	)
	err := r.db.QueryRowContext(ctx,
		"SELECT id, name, branch_id, created_at FROM projects WHERE id = ?", id,
	).Scan(&project.ID, &project.Name, &branchID, &project.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(serial.ErrNotFound, "project %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get project")
	}
	project.BranchID = branchID.String
	return &project, nil
}

// List retrieves all projects.
func (r *ProjectRepository) List(ctx context.Context) ([]*secondary.ProjectRecord, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id, name, branch_id, created_at FROM projects ORDER BY id")
	if err != nil {
		return nil, errors.Wrap(err, "failed to list projects")
	}
	defer rows.Close()

	var projects []*secondary.ProjectRecord
	for rows.Next() {
		var (
			project  secondary.ProjectRecord
			branchID sql.NullString
		)
		if err := rows.Scan(&project.ID, &project.Name, &branchID, &project.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan project")
		}
		project.BranchID = branchID.String
		projects = append(projects, &project)
	}
	return projects, rows.Err()
}

// BranchRepository implements secondary.BranchRepository with SQLite.
type BranchRepository struct {
	db *sql.DB
}

// NewBranchRepository creates a new SQLite branch repository.
func NewBranchRepository(db *sql.DB) *BranchRepository {
	return &BranchRepository{db: db}
}

// Create persists a new branch.
func (r *BranchRepository) Create(ctx context.Context, branch *secondary.BranchRecord) error {
	if branch.CreatedAt.IsZero() {
		branch.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO branches (id, name, created_at) VALUES (?, ?, ?)",
		branch.ID, branch.Name, branch.CreatedAt.UTC(),
	)
	if err != nil {
		return errors.Wrap(err, "failed to create branch")
	}
	return nil
}

// List retrieves all branches.
func (r *BranchRepository) List(ctx context.Context) ([]*secondary.BranchRecord, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id, name, created_at FROM branches ORDER BY id")
	if err != nil {
		return nil, errors.Wrap(err, "failed to list branches")
	}
	defer rows.Close()

	var branches []*secondary.BranchRecord
	for rows.Next() {
		var branch secondary.BranchRecord
		if err := rows.Scan(&branch.ID, &branch.Name, &branch.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan branch")
		}
		branches = append(branches, &branch)
	}
	return branches, rows.Err()
}

var (
	_ secondary.ProjectRepository = (*ProjectRepository)(nil)
	_ secondary.BranchRepository  = (*BranchRepository)(nil)
)
