package app

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/example/wfm/internal/core/serial"
	"github.com/example/wfm/internal/ctxutil"
	"github.com/example/wfm/internal/ports/primary"
	"github.com/example/wfm/internal/ports/secondary"
)

// RenumberLockName is the lock taken while a scope is being repaired.
const RenumberLockName = "renumber"

// scopeLocker is the part of LockManager the guard needs.
type scopeLocker interface {
	Acquire(ctx context.Context, name string, scope serial.Scope, ttl time.Duration) (*Lock, error)
	Release(ctx context.Context, lock *Lock) error
}

// DuplicateGuardImpl repairs a scope when an edit leaves two records with the
// same serial. Concurrent triggers for one scope are collapsed by the
// renumber lock: the loser reports lock_held and writes nothing.
type DuplicateGuardImpl struct {
	records  secondary.RecordRepository
	projects secondary.ProjectRepository
	audit    secondary.AuditLogRepository
	locks    scopeLocker
	renumber primary.RenumberService
	opts     NumberingOptions
	logger   zerolog.Logger
}

// NewDuplicateGuard creates a DuplicateGuard with injected dependencies.
func NewDuplicateGuard(
	records secondary.RecordRepository,
	projects secondary.ProjectRepository,
	audit secondary.AuditLogRepository,
	locks scopeLocker,
	renumber primary.RenumberService,
	opts NumberingOptions,
	logger zerolog.Logger,
) *DuplicateGuardImpl {
	return &DuplicateGuardImpl{
		records:  records,
		projects: projects,
		audit:    audit,
		locks:    locks,
		renumber: renumber,
		opts:     opts,
		logger:   logger.With().Str("component", "duplicate_guard").Logger(),
	}
}

// OnRecordUpdated handles the record updated event.
func (g *DuplicateGuardImpl) OnRecordUpdated(ctx context.Context, event secondary.RecordEvent) primary.GuardResult {
	result := primary.GuardResult{RecordID: event.RecordID, Status: primary.GuardNoop}
	log := g.logger.With().Str("record_id", event.RecordID).Logger()

	rec, err := g.records.GetByID(ctx, event.RecordID)
	if err != nil {
		log.Warn().Err(err).Msg("record not loaded")
		return g.failed(result, err)
	}
	// Missing and malformed serials belong to the assigner and backfill.
	if !serial.IsWellFormed(rec.Serial) {
		return result
	}

	resolver := newBranchResolver(g.projects)
	scope, err := resolver.scopeOf(ctx, rec, g.opts.Mode, g.opts)
	if err != nil {
		result.Reason = serial.ReasonCode(err)
		return result
	}
	result.Scope = scope
	log = log.With().Str("scope", scope.String()).Str("serial", rec.Serial).Logger()

	holders, err := resolver.holdersInScope(ctx, g.records, scope, g.opts.Mode, g.opts, rec.Serial, rec.ID)
	if err != nil {
		log.Warn().Err(err).Msg("duplicate check failed")
		return g.failed(result, err)
	}
	if len(holders) == 0 {
		return result
	}

	lock, err := g.locks.Acquire(ctx, RenumberLockName, scope, g.opts.LockTTL)
	if errors.Is(err, serial.ErrLockHeld) {
		log.Info().Msg("scope already being repaired")
		result.Status = primary.GuardLockHeld
		result.Reason = serial.ReasonLockHeld
		return result
	}
	if err != nil {
		log.Warn().Err(err).Msg("lock not acquired")
		return g.failed(result, err)
	}
	defer func() {
		if err := g.locks.Release(context.WithoutCancel(ctx), lock); err != nil {
			log.Warn().Err(err).Msg("lock release failed")
		}
	}()

	renumbered, err := g.renumber.Apply(ctx, renumberRequestFor(scope, g.opts.Mode))
	if err != nil {
		log.Warn().Err(err).Msg("scope renumber failed")
		return g.failed(result, err)
	}
	result.Status = primary.GuardRenumbered
	result.Changes = len(renumbered.Changes)

	entry := &secondary.AuditEntry{
		RecordID:    rec.ID,
		Actor:       ctxutil.SystemActor,
		Description: fmt.Sprintf("duplicate serial %s detected; scope %s renumbered, changes: %d", rec.Serial, scope, result.Changes),
	}
	if err := g.audit.Append(ctx, entry); err != nil {
		log.Warn().Err(err).Msg("audit entry not written")
	}

	log.Info().Int("changes", result.Changes).Int("duplicates", len(holders)+1).Msg("duplicate serial repaired")
	return result
}

func (g *DuplicateGuardImpl) failed(result primary.GuardResult, err error) primary.GuardResult {
	result.Status = primary.GuardFailed
	result.Reason = serial.ReasonCode(err)
	return result
}

// renumberRequestFor narrows a renumber run to exactly one scope.
func renumberRequestFor(scope serial.Scope, mode serial.Mode) primary.RenumberRequest {
	req := primary.RenumberRequest{
		Kind:  scope.Sequence,
		Years: []int{scope.Year},
		Mode:  mode,
	}
	if mode == serial.ModePerBranchYear {
		req.BranchIDs = []string{scope.BranchID}
	}
	return req
}

var (
	_ primary.DuplicateGuard = (*DuplicateGuardImpl)(nil)
	_ scopeLocker            = (*LockManager)(nil)
)
