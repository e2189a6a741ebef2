package app

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/example/wfm/internal/core/serial"
	"github.com/example/wfm/internal/ports/primary"
	"github.com/example/wfm/internal/ports/secondary"
)

// ReferenceServiceImpl implements the ReferenceService interface.
type ReferenceServiceImpl struct {
	branches secondary.BranchRepository
	projects secondary.ProjectRepository
}

// NewReferenceService creates a new ReferenceService with injected dependencies.
func NewReferenceService(branches secondary.BranchRepository, projects secondary.ProjectRepository) *ReferenceServiceImpl {
	return &ReferenceServiceImpl{branches: branches, projects: projects}
}

// AddBranch creates a branch.
func (s *ReferenceServiceImpl) AddBranch(ctx context.Context, id, name string) error {
	if err := validateBranchID(id); err != nil {
		return err
	}
	if name == "" {
		name = id
	}
	return s.branches.Create(ctx, &secondary.BranchRecord{ID: id, Name: name})
}

// ListBranches lists all branches.
func (s *ReferenceServiceImpl) ListBranches(ctx context.Context) ([]*primary.Branch, error) {
	records, err := s.branches.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*primary.Branch, len(records))
	for i, r := range records {
		out[i] = &primary.Branch{ID: r.ID, Name: r.Name, CreatedAt: r.CreatedAt}
	}
	return out, nil
}

// AddProject creates a project, optionally bound to a branch.
func (s *ReferenceServiceImpl) AddProject(ctx context.Context, id, name, branchID string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("project id is required")
	}
	if branchID != "" {
		if err := validateBranchID(branchID); err != nil {
			return err
		}
	}
	if name == "" {
		name = id
	}
	return s.projects.Create(ctx, &secondary.ProjectRecord{ID: id, Name: name, BranchID: branchID})
}

// ListProjects lists all projects.
func (s *ReferenceServiceImpl) ListProjects(ctx context.Context) ([]*primary.Project, error) {
	records, err := s.projects.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*primary.Project, len(records))
	for i, r := range records {
		out[i] = &primary.Project{ID: r.ID, Name: r.Name, BranchID: r.BranchID, CreatedAt: r.CreatedAt}
	}
	return out, nil
}

// validateBranchID rejects IDs that would break scope keys.
func validateBranchID(id string) error {
	switch {
	case strings.TrimSpace(id) == "":
		return errors.New("branch id is required")
	case id == serial.GlobalBranch:
		return errors.Newf("branch id %q is reserved", id)
	case strings.ContainsAny(id, "/ \t"):
		return errors.Newf("branch id %q must not contain '/' or whitespace", id)
	}
	return nil
}

var _ primary.ReferenceService = (*ReferenceServiceImpl)(nil)
