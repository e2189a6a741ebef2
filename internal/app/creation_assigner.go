package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/example/wfm/internal/core/serial"
	"github.com/example/wfm/internal/ctxutil"
	"github.com/example/wfm/internal/ports/primary"
	"github.com/example/wfm/internal/ports/secondary"
)

// CreationAssignerImpl numbers a record when it is created or first activated.
// Failures are reported in the AssignResult and logged; the record stays
// unnumbered and becomes a backfill candidate.
type CreationAssignerImpl struct {
	records   secondary.RecordRepository
	projects  secondary.ProjectRepository
	audit     secondary.AuditLogRepository
	allocator primary.ScopedAllocator
	opts      NumberingOptions
	logger    zerolog.Logger
}

// NewCreationAssigner creates a CreationAssigner with injected dependencies.
func NewCreationAssigner(
	records secondary.RecordRepository,
	projects secondary.ProjectRepository,
	audit secondary.AuditLogRepository,
	allocator primary.ScopedAllocator,
	opts NumberingOptions,
	logger zerolog.Logger,
) *CreationAssignerImpl {
	return &CreationAssignerImpl{
		records:   records,
		projects:  projects,
		audit:     audit,
		allocator: allocator,
		opts:      opts,
		logger:    logger.With().Str("component", "creation_assigner").Logger(),
	}
}

// OnRecordCreated handles the record created event.
func (s *CreationAssignerImpl) OnRecordCreated(ctx context.Context, event secondary.RecordEvent) primary.AssignResult {
	return s.assign(ctx, event.RecordID, "creation")
}

// OnRecordActivated handles the first activation (clock-in) event.
func (s *CreationAssignerImpl) OnRecordActivated(ctx context.Context, event secondary.RecordEvent) primary.AssignResult {
	return s.assign(ctx, event.RecordID, "activation")
}

func (s *CreationAssignerImpl) assign(ctx context.Context, recordID, trigger string) primary.AssignResult {
	result := primary.AssignResult{RecordID: recordID}
	log := s.logger.With().Str("record_id", recordID).Str("trigger", trigger).Logger()

	rec, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		log.Warn().Err(err).Msg("record not loaded")
		return s.failed(result, err)
	}

	year := serial.YearOf(rec.CreatedAt, s.opts.loc())
	if serial.IsValidFor(rec.Serial, year) {
		result.Status = primary.AssignSkipped
		result.Serial = rec.Serial
		result.Reason = serial.ReasonAlreadyValid
		return result
	}

	resolver := newBranchResolver(s.projects)
	scope, err := resolver.scopeOf(ctx, rec, s.opts.Mode, s.opts)
	if err != nil {
		log.Warn().Err(err).Msg("record left unnumbered")
		return s.failed(result, err)
	}
	log = log.With().Str("scope", scope.String()).Logger()

	retries := s.opts.CollisionRetries
	if retries < 1 {
		retries = 1
	}
	for attempt := 1; attempt <= retries; attempt++ {
		result.Attempts = attempt

		value, err := s.allocator.AllocateInScope(ctx, scope)
		if err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Msg("allocation failed")
			return s.failed(result, err)
		}

		// The counter may trail the data, e.g. after a restore.
		holders, err := resolver.holdersInScope(ctx, s.records, scope, s.opts.Mode, s.opts, value, rec.ID)
		if err != nil {
			log.Warn().Err(err).Msg("collision check failed")
			return s.failed(result, err)
		}
		if len(holders) > 0 {
			log.Info().Str("serial", value).Str("holder", holders[0].ID).Int("attempt", attempt).Msg("allocated serial already held, retrying")
			continue
		}

		ok, err := s.records.SetSerial(ctx, rec.ID, rec.Serial, value)
		if err != nil {
			log.Warn().Err(err).Str("serial", value).Msg("serial not persisted")
			return s.failed(result, err)
		}
		if !ok {
			return s.raced(ctx, result, year)
		}

		entry := &secondary.AuditEntry{
			RecordID:    rec.ID,
			Actor:       ctxutil.SystemActor,
			Description: fmt.Sprintf("serial assigned on %s: %s", trigger, value),
		}
		if err := s.audit.Append(ctx, entry); err != nil {
			log.Warn().Err(err).Msg("audit entry not written")
		}

		log.Info().Str("serial", value).Int("attempt", attempt).Msg("serial assigned")
		result.Status = primary.AssignAssigned
		result.Serial = value
		return result
	}

	log.Warn().Int("attempts", retries).Msg("collision retries exhausted")
	result.Status = primary.AssignFailed
	result.Reason = serial.ReasonCollision
	return result
}

// raced handles a conditional write that lost to a concurrent change.
func (s *CreationAssignerImpl) raced(ctx context.Context, result primary.AssignResult, year int) primary.AssignResult {
	current, err := s.records.GetByID(ctx, result.RecordID)
	if err == nil && serial.IsValidFor(current.Serial, year) {
		result.Status = primary.AssignSkipped
		result.Serial = current.Serial
		result.Reason = serial.ReasonAlreadyValid
		return result
	}
	result.Status = primary.AssignFailed
	result.Reason = serial.ReasonConcurrent
	return result
}

func (s *CreationAssignerImpl) failed(result primary.AssignResult, err error) primary.AssignResult {
	result.Status = primary.AssignFailed
	result.Reason = serial.ReasonCode(err)
	return result
}

var _ primary.CreationAssigner = (*CreationAssignerImpl)(nil)
