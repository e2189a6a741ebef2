package app

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/example/wfm/internal/core/serial"
	"github.com/example/wfm/internal/ctxutil"
	"github.com/example/wfm/internal/ports/primary"
	"github.com/example/wfm/internal/ports/secondary"
)

// BackfillServiceImpl numbers historical records that have no valid serial.
// Within a scope, records are allocated in (created_at, id) order, so earlier
// records always receive lower serials regardless of how they were loaded.
type BackfillServiceImpl struct {
	records   secondary.RecordRepository
	projects  secondary.ProjectRepository
	audit     secondary.AuditLogRepository
	allocator primary.ScopedAllocator
	opts      NumberingOptions
	logger    zerolog.Logger
}

// NewBackfillService creates a BackfillService with injected dependencies.
func NewBackfillService(
	records secondary.RecordRepository,
	projects secondary.ProjectRepository,
	audit secondary.AuditLogRepository,
	allocator primary.ScopedAllocator,
	opts NumberingOptions,
	logger zerolog.Logger,
) *BackfillServiceImpl {
	return &BackfillServiceImpl{
		records:   records,
		projects:  projects,
		audit:     audit,
		allocator: allocator,
		opts:      opts,
		logger:    logger.With().Str("component", "backfill").Logger(),
	}
}

// Preview computes the serials a backfill would assign, without writing.
func (s *BackfillServiceImpl) Preview(ctx context.Context, req primary.BackfillRequest) (*primary.BackfillResult, error) {
	return s.run(ctx, req, true)
}

// Apply assigns serials and records an audit entry per record.
func (s *BackfillServiceImpl) Apply(ctx context.Context, req primary.BackfillRequest) (*primary.BackfillResult, error) {
	return s.run(ctx, req, false)
}

type backfillCandidate struct {
	record *secondary.OperationalRecord
	reason string
}

func (s *BackfillServiceImpl) run(ctx context.Context, req primary.BackfillRequest, dryRun bool) (*primary.BackfillResult, error) {
	kinds, err := kindsFor(req.Kind)
	if err != nil {
		return nil, err
	}

	// Each slice is capped at the run limit; candidates applies it overall.
	loaded, _, err := loadRecords(ctx, s.records, recordQuery{
		kinds:       kinds,
		years:       req.Years,
		branchIDs:   req.BranchIDs,
		needsSerial: true,
		limit:       req.Limit,
	}, s.opts)
	if err != nil {
		return nil, err
	}

	candidates := s.candidates(loaded, req.Limit)
	result := &primary.BackfillResult{DryRun: dryRun}
	resolver := newBranchResolver(s.projects)

	byKind := make(map[string][]serial.Item)
	reasons := make(map[string]string)
	for _, c := range candidates {
		rec := c.record
		branch, err := resolver.resolve(ctx, rec)
		if err != nil {
			s.record(result, primary.BackfillItem{
				RecordID:  rec.ID,
				CreatedAt: rec.CreatedAt,
				From:      rec.Serial,
				Outcome:   primary.ItemSkipped,
				Reason:    serial.ReasonCode(err),
				Error:     err.Error(),
			})
			continue
		}
		if len(req.BranchIDs) > 0 && !slices.Contains(req.BranchIDs, branch) {
			continue
		}
		byKind[rec.Kind] = append(byKind[rec.Kind], serial.Item{
			ID:        rec.ID,
			BranchID:  branch,
			CreatedAt: rec.CreatedAt,
			Serial:    rec.Serial,
		})
		reasons[rec.ID] = c.reason
	}

	for _, kind := range kinds {
		for _, group := range serial.GroupByScope(kind, byKind[kind], s.opts.Mode, s.opts.loc()) {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			s.runGroup(ctx, result, resolver, group, reasons, dryRun)
		}
	}

	s.logger.Info().
		Bool("dry_run", dryRun).
		Int("updated", result.Updated).
		Int("skipped", result.Skipped).
		Int("errors", result.Errors).
		Msg("backfill finished")
	return result, nil
}

// candidates keeps records whose serial is missing, malformed or carries the
// wrong year, earliest first, capped at limit.
func (s *BackfillServiceImpl) candidates(loaded []*secondary.OperationalRecord, limit int) []backfillCandidate {
	var out []backfillCandidate
	for _, rec := range loaded {
		if serial.IsValidFor(rec.Serial, serial.YearOf(rec.CreatedAt, s.opts.loc())) {
			continue
		}
		reason := ""
		if rec.Serial != "" {
			reason = serial.ReasonInvalidSerial
		}
		out = append(out, backfillCandidate{record: rec, reason: reason})
	}

	slices.SortFunc(out, func(a, b backfillCandidate) int {
		if c := a.record.CreatedAt.Compare(b.record.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.record.ID, b.record.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *BackfillServiceImpl) runGroup(ctx context.Context, result *primary.BackfillResult, resolver *branchResolver, group serial.ScopedItems, reasons map[string]string, dryRun bool) {
	// A preview counts from the peeked counter instead of allocating.
	next := 0
	if dryRun {
		n, err := s.allocator.Peek(ctx, group.Scope)
		if err != nil {
			for _, it := range group.Items {
				s.record(result, s.failedItem(group.Scope, it, err))
			}
			return
		}
		next = n
	}

	for _, it := range group.Items {
		item := primary.BackfillItem{
			RecordID:  it.ID,
			Scope:     group.Scope,
			CreatedAt: it.CreatedAt,
			From:      it.Serial,
			Reason:    reasons[it.ID],
		}

		to, err := s.nextFree(ctx, resolver, group.Scope, it, dryRun, &next)
		if err != nil {
			s.record(result, s.failedItem(group.Scope, it, err))
			continue
		}
		item.To = to

		if dryRun {
			item.Outcome = primary.ItemProposed
			s.record(result, item)
			continue
		}

		ok, err := s.records.SetSerial(ctx, it.ID, it.Serial, to)
		if err != nil {
			s.record(result, s.failedItem(group.Scope, it, err))
			continue
		}
		if !ok {
			item.Outcome = primary.ItemSkipped
			item.Reason = serial.ReasonConcurrent
			s.record(result, item)
			continue
		}

		entry := &secondary.AuditEntry{
			RecordID:    it.ID,
			Actor:       ctxutil.SystemActor,
			Description: fmt.Sprintf("serial assigned by backfill: %s (anchor %s)", to, it.CreatedAt.UTC().Format(time.RFC3339)),
		}
		if err := s.audit.Append(ctx, entry); err != nil {
			s.logger.Warn().Err(err).Str("record_id", it.ID).Msg("audit entry not written")
		}

		item.Outcome = primary.ItemAssigned
		s.record(result, item)
	}
}

// nextFree returns the next serial of scope that no other record holds.
// Held values are passed over, at most CollisionRetries times per record.
func (s *BackfillServiceImpl) nextFree(ctx context.Context, resolver *branchResolver, scope serial.Scope, it serial.Item, dryRun bool, next *int) (string, error) {
	retries := s.opts.CollisionRetries
	if retries < 1 {
		retries = 1
	}
	for attempt := 1; attempt <= retries; attempt++ {
		var value string
		if dryRun {
			*next++
			v, err := serial.Format(*next, scope.Year)
			if err != nil {
				return "", err
			}
			value = v
		} else {
			v, err := s.allocator.AllocateInScope(ctx, scope)
			if err != nil {
				return "", err
			}
			value = v
		}

		holders, err := resolver.holdersInScope(ctx, s.records, scope, s.opts.Mode, s.opts, value, it.ID)
		if err != nil {
			return "", err
		}
		if len(holders) == 0 {
			return value, nil
		}
		s.logger.Info().
			Str("record_id", it.ID).
			Str("serial", value).
			Str("holder", holders[0].ID).
			Msg("serial already held, skipping")
	}
	return "", errors.Wrapf(serial.ErrCollision, "record %s after %d attempts", it.ID, retries)
}

func (s *BackfillServiceImpl) failedItem(scope serial.Scope, it serial.Item, err error) primary.BackfillItem {
	s.logger.Warn().Err(err).Str("record_id", it.ID).Str("scope", scope.String()).Msg("backfill item failed")
	return primary.BackfillItem{
		RecordID:  it.ID,
		Scope:     scope,
		CreatedAt: it.CreatedAt,
		From:      it.Serial,
		Outcome:   primary.ItemFailed,
		Reason:    serial.ReasonCode(err),
		Error:     err.Error(),
	}
}

func (s *BackfillServiceImpl) record(result *primary.BackfillResult, item primary.BackfillItem) {
	switch item.Outcome {
	case primary.ItemAssigned, primary.ItemProposed:
		result.Updated++
	case primary.ItemSkipped:
		result.Skipped++
	case primary.ItemFailed:
		result.Errors++
	}
	result.Items = append(result.Items, item)
}

var _ primary.BackfillService = (*BackfillServiceImpl)(nil)
