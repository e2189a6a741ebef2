package primary

import (
	"context"
	"time"

	"github.com/example/wfm/internal/core/serial"
)

// ReferenceService manages the branches and projects used to resolve a
// record's numbering scope.
type ReferenceService interface {
	AddBranch(ctx context.Context, id, name string) error
	ListBranches(ctx context.Context) ([]*Branch, error)
	AddProject(ctx context.Context, id, name, branchID string) error
	ListProjects(ctx context.Context) ([]*Project, error)
}

// Branch is a tenant location.
type Branch struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Project groups records; records without a branch inherit the project's.
type Project struct {
	ID        string
	Name      string
	BranchID  string
	CreatedAt time.Time
}

// CounterReader lists the allocation counters of every known scope.
type CounterReader interface {
	ListCounters(ctx context.Context) ([]*Counter, error)
}

// Counter shows both copies of a scope's counter.
type Counter struct {
	Scope     serial.Scope
	Ledger    int // sequence_counters.last_number
	KV        int // transactional store value, 0 when never written
	UpdatedAt time.Time
}
