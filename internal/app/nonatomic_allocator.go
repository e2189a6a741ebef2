package app

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/example/wfm/internal/core/serial"
	"github.com/example/wfm/internal/ports/primary"
	"github.com/example/wfm/internal/ports/secondary"
)

// NonAtomicAllocator reads the ledger and writes back last+1.
//
// Two concurrent callers can read the same value and issue the same serial.
// It exists for single-writer maintenance (wfm serial allocate --legacy);
// triggers and batch engines always use AtomicAllocator.
type NonAtomicAllocator struct {
	ledger secondary.SequenceCounterRepository
	opts   NumberingOptions
}

// NewNonAtomicAllocator creates a NonAtomicAllocator.
func NewNonAtomicAllocator(ledger secondary.SequenceCounterRepository, opts NumberingOptions) *NonAtomicAllocator {
	return &NonAtomicAllocator{ledger: ledger, opts: opts}
}

// Allocate returns the next serial for kind and branch in the year of anchor.
func (a *NonAtomicAllocator) Allocate(ctx context.Context, kind, branchID string, anchor time.Time) (string, error) {
	if branchID == "" {
		return "", errors.Wrap(serial.ErrMissingBranch, "allocate")
	}
	scope := serial.ScopeFor(a.opts.Mode, kind, branchID, serial.YearOf(anchor, a.opts.loc()))
	return a.AllocateInScope(ctx, scope)
}

// AllocateInScope issues the next serial of scope.
func (a *NonAtomicAllocator) AllocateInScope(ctx context.Context, scope serial.Scope) (string, error) {
	rec, err := a.ledger.Get(ctx, scope)
	if err != nil {
		return "", errors.Wrapf(err, "read ledger %s", scope)
	}

	next := 1
	if rec != nil {
		next = rec.LastNumber + 1
	}
	value, err := serial.Format(next, scope.Year)
	if err != nil {
		return "", err
	}

	if rec == nil {
		err = a.ledger.Create(ctx, scope, next)
	} else {
		_, err = a.ledger.SetIfGreater(ctx, scope, next)
	}
	if err != nil {
		return "", errors.Wrapf(err, "write ledger %s", scope)
	}
	return value, nil
}

// Peek returns the ledger value of scope.
func (a *NonAtomicAllocator) Peek(ctx context.Context, scope serial.Scope) (int, error) {
	rec, err := a.ledger.Get(ctx, scope)
	if err != nil || rec == nil {
		return 0, err
	}
	return rec.LastNumber, nil
}

// EnsureAtLeast raises the ledger of scope to n.
func (a *NonAtomicAllocator) EnsureAtLeast(ctx context.Context, scope serial.Scope, n int) error {
	_, err := a.ledger.SetIfGreater(ctx, scope, n)
	return err
}

var _ primary.ScopedAllocator = (*NonAtomicAllocator)(nil)
