package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/example/wfm/internal/ports/primary"
)

// ReferenceAdapter manages branches and projects from the CLI.
type ReferenceAdapter struct {
	service primary.ReferenceService
	out     io.Writer
}

// NewReferenceAdapter creates a new ReferenceAdapter with the given service.
func NewReferenceAdapter(service primary.ReferenceService, out io.Writer) *ReferenceAdapter {
	return &ReferenceAdapter{service: service, out: out}
}

// AddBranch creates a branch.
func (a *ReferenceAdapter) AddBranch(ctx context.Context, id, name string) error {
	if err := a.service.AddBranch(ctx, id, name); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s Added branch %s\n", okMark(), id)
	return nil
}

// ListBranches lists branches.
func (a *ReferenceAdapter) ListBranches(ctx context.Context) error {
	branches, err := a.service.ListBranches(ctx)
	if err != nil {
		return err
	}
	if len(branches) == 0 {
		fmt.Fprintln(a.out, "No branches found")
		return nil
	}
	fmt.Fprintf(a.out, "\n%-12s %s\n", "ID", "NAME")
	fmt.Fprintln(a.out, rule)
	for _, b := range branches {
		fmt.Fprintf(a.out, "%-12s %s\n", b.ID, b.Name)
	}
	fmt.Fprintln(a.out)
	return nil
}

// AddProject creates a project.
func (a *ReferenceAdapter) AddProject(ctx context.Context, id, name, branchID string) error {
	if err := a.service.AddProject(ctx, id, name, branchID); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s Added project %s\n", okMark(), id)
	if branchID == "" {
		fmt.Fprintln(a.out, yellow("  no branch: records of this project need their own branch to be numbered"))
	}
	return nil
}

// ListProjects lists projects.
func (a *ReferenceAdapter) ListProjects(ctx context.Context) error {
	projects, err := a.service.ListProjects(ctx)
	if err != nil {
		return err
	}
	if len(projects) == 0 {
		fmt.Fprintln(a.out, "No projects found")
		return nil
	}
	fmt.Fprintf(a.out, "\n%-12s %-12s %s\n", "ID", "BRANCH", "NAME")
	fmt.Fprintln(a.out, rule)
	for _, p := range projects {
		fmt.Fprintf(a.out, "%-12s %-12s %s\n", p.ID, dash(p.BranchID), p.Name)
	}
	fmt.Fprintln(a.out)
	return nil
}
