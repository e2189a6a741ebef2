package app

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/example/wfm/internal/core/serial"
	"github.com/example/wfm/internal/ports/secondary"
)

// branchResolver finds the branch a record is numbered under: its own
// branch_id, else the branch of its project. Project lookups are cached for
// the lifetime of the resolver, so one resolver serves one run.
type branchResolver struct {
	projects secondary.ProjectRepository
	cache    map[string]string
}

func newBranchResolver(projects secondary.ProjectRepository) *branchResolver {
	return &branchResolver{projects: projects, cache: make(map[string]string)}
}

func (r *branchResolver) resolve(ctx context.Context, rec *secondary.OperationalRecord) (string, error) {
	if rec.BranchID != "" {
		return rec.BranchID, nil
	}
	if rec.ProjectID == "" || r.projects == nil {
		return "", errors.Wrapf(serial.ErrMissingBranch, "record %s has no branch or project", rec.ID)
	}

	branch, ok := r.cache[rec.ProjectID]
	if !ok {
		project, err := r.projects.GetByID(ctx, rec.ProjectID)
		switch {
		case errors.Is(err, serial.ErrNotFound):
			branch = ""
		case err != nil:
			return "", errors.Wrapf(err, "resolve branch of record %s", rec.ID)
		default:
			branch = project.BranchID
		}
		r.cache[rec.ProjectID] = branch
	}
	if branch == "" {
		return "", errors.Wrapf(serial.ErrMissingBranch, "record %s: project %s has no branch", rec.ID, rec.ProjectID)
	}
	return branch, nil
}

// scopeOf resolves the numbering scope of a record.
func (r *branchResolver) scopeOf(ctx context.Context, rec *secondary.OperationalRecord, mode serial.Mode, opts NumberingOptions) (serial.Scope, error) {
	branch, err := r.resolve(ctx, rec)
	if err != nil {
		return serial.Scope{}, err
	}
	return serial.ScopeFor(mode, rec.Kind, branch, serial.YearOf(rec.CreatedAt, opts.loc())), nil
}

// holdersInScope returns the records other than excludeID that carry value
// in the given scope.
func (r *branchResolver) holdersInScope(ctx context.Context, records secondary.RecordRepository, scope serial.Scope, mode serial.Mode, opts NumberingOptions, value, excludeID string) ([]*secondary.OperationalRecord, error) {
	matches, err := records.FindBySerial(ctx, scope.Sequence, value)
	if err != nil {
		return nil, err
	}

	var holders []*secondary.OperationalRecord
	for _, m := range matches {
		if m.ID == excludeID {
			continue
		}
		other, err := r.scopeOf(ctx, m, mode, opts)
		if errors.Is(err, serial.ErrMissingBranch) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if other == scope {
			holders = append(holders, m)
		}
	}
	return holders, nil
}
