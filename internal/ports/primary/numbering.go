package primary

import (
	"context"
	"time"

	"github.com/example/wfm/internal/core/serial"
	"github.com/example/wfm/internal/ports/secondary"
)

// SerialAllocator issues the next serial of a scope.
type SerialAllocator interface {
	// Allocate returns the next serial for the record kind and branch in the
	// year of anchor.
	Allocate(ctx context.Context, kind, branchID string, anchor time.Time) (string, error)
}

// ScopedAllocator is the allocator surface the numbering engines use once a
// record's scope is resolved.
type ScopedAllocator interface {
	SerialAllocator

	// AllocateInScope issues the next serial of scope.
	AllocateInScope(ctx context.Context, scope serial.Scope) (string, error)

	// Peek returns the last issued number of scope without changing it.
	Peek(ctx context.Context, scope serial.Scope) (int, error)

	// EnsureAtLeast raises the counter of scope to n. It never lowers it.
	EnsureAtLeast(ctx context.Context, scope serial.Scope, n int) error
}

// EventHandler consumes record events.
type EventHandler interface {
	Handle(ctx context.Context, event secondary.RecordEvent) error
}

// CreationAssigner numbers records when they are created or activated.
type CreationAssigner interface {
	OnRecordCreated(ctx context.Context, event secondary.RecordEvent) AssignResult
	OnRecordActivated(ctx context.Context, event secondary.RecordEvent) AssignResult
}

// Assign outcome statuses.
const (
	AssignAssigned = "assigned"
	AssignSkipped  = "skipped"
	AssignFailed   = "failed"
)

// AssignResult reports what the creation trigger did. It is never an error:
// a failed assignment leaves the record for backfill.
type AssignResult struct {
	RecordID string
	Status   string
	Serial   string
	Reason   string
	Attempts int
}

// BackfillService numbers historical records that lack a valid serial.
// Preview and Apply are separate entry points; Preview never writes.
type BackfillService interface {
	Preview(ctx context.Context, req BackfillRequest) (*BackfillResult, error)
	Apply(ctx context.Context, req BackfillRequest) (*BackfillResult, error)
}

// BackfillRequest scopes a backfill run. Empty slices mean all.
type BackfillRequest struct {
	Kind      string
	BranchIDs []string
	Years     []int
	Limit     int // 0 means unbounded
}

// Backfill item outcomes.
const (
	ItemAssigned = "assigned"
	ItemProposed = "proposed"
	ItemSkipped  = "skipped"
	ItemFailed   = "failed"
)

// BackfillItem is the per-record detail of a backfill run.
type BackfillItem struct {
	RecordID  string
	Scope     serial.Scope
	CreatedAt time.Time
	From      string
	To        string
	Outcome   string
	Reason    string
	Error     string
}

// BackfillResult summarizes a backfill run.
type BackfillResult struct {
	DryRun  bool
	Updated int
	Skipped int
	Errors  int
	Items   []BackfillItem
}

// RenumberService recomputes dense serials for whole scopes.
// Preview and Apply are separate entry points; Preview never writes.
type RenumberService interface {
	Preview(ctx context.Context, req RenumberRequest) (*RenumberResult, error)
	Apply(ctx context.Context, req RenumberRequest) (*RenumberResult, error)
}

// RenumberRequest scopes a renumber run. Empty slices mean all.
type RenumberRequest struct {
	Kind      string
	BranchIDs []string
	Years     []int
	Mode      serial.Mode // Empty uses the configured default
}

// RenumberChange is one serial rewrite (from -> to).
type RenumberChange struct {
	RecordID  string
	Scope     serial.Scope
	CreatedAt time.Time
	From      string
	To        string
	Applied   bool
	Error     string
}

// RenumberGroup summarizes one scope.
type RenumberGroup struct {
	Scope   serial.Scope
	Count   int
	Changed int
}

// RenumberSkip is a record excluded from the pass.
type RenumberSkip struct {
	RecordID string
	Reason   string
}

// RenumberResult is the full change list of a renumber run.
type RenumberResult struct {
	DryRun    bool
	Mode      serial.Mode
	Truncated bool
	Groups    []RenumberGroup
	Changes   []RenumberChange
	Skipped   []RenumberSkip
	Errors    int
}

// DuplicateGuard repairs scopes in which an edit produced a duplicate serial.
type DuplicateGuard interface {
	OnRecordUpdated(ctx context.Context, event secondary.RecordEvent) GuardResult
}

// Guard outcome statuses.
const (
	GuardNoop       = "noop"
	GuardRenumbered = "renumbered"
	GuardLockHeld   = "lock_held"
	GuardFailed     = "failed"
)

// GuardResult reports what the duplicate guard did.
type GuardResult struct {
	RecordID string
	Status   string
	Scope    serial.Scope
	Changes  int
	Reason   string
}
