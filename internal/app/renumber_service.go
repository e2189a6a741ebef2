package app

import (
	"context"
	"fmt"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/example/wfm/internal/core/serial"
	"github.com/example/wfm/internal/ctxutil"
	"github.com/example/wfm/internal/ports/primary"
	"github.com/example/wfm/internal/ports/secondary"
)

// RenumberServiceImpl recomputes dense serials 0001..N for whole scopes.
//
// Assignments depend only on the loaded record set, so a preview can be
// trusted before apply and an interrupted apply converges when re-run.
// Record writes are independent; a failed write is reported and the rest of
// the batch continues.
type RenumberServiceImpl struct {
	records   secondary.RecordRepository
	projects  secondary.ProjectRepository
	audit     secondary.AuditLogRepository
	ledger    secondary.SequenceCounterRepository
	allocator primary.ScopedAllocator
	opts      NumberingOptions
	logger    zerolog.Logger
}

// NewRenumberService creates a RenumberService with injected dependencies.
func NewRenumberService(
	records secondary.RecordRepository,
	projects secondary.ProjectRepository,
	audit secondary.AuditLogRepository,
	ledger secondary.SequenceCounterRepository,
	allocator primary.ScopedAllocator,
	opts NumberingOptions,
	logger zerolog.Logger,
) *RenumberServiceImpl {
	return &RenumberServiceImpl{
		records:   records,
		projects:  projects,
		audit:     audit,
		ledger:    ledger,
		allocator: allocator,
		opts:      opts,
		logger:    logger.With().Str("component", "renumber").Logger(),
	}
}

// Preview returns the change list without writing.
func (s *RenumberServiceImpl) Preview(ctx context.Context, req primary.RenumberRequest) (*primary.RenumberResult, error) {
	result, _, err := s.plan(ctx, req, true)
	return result, err
}

// Apply writes every change, then raises the counters of each scope to its
// record count.
func (s *RenumberServiceImpl) Apply(ctx context.Context, req primary.RenumberRequest) (*primary.RenumberResult, error) {
	result, plans, err := s.plan(ctx, req, false)
	if err != nil {
		return result, err
	}
	if result.Truncated {
		return result, errors.Wrapf(serial.ErrScopeTooLarge, "more than %d records in one kind and year", s.opts.RenumberBatchLimit)
	}

	if err := s.apply(ctx, result, plans); err != nil {
		return result, err
	}

	s.logger.Info().
		Str("mode", string(result.Mode)).
		Int("groups", len(result.Groups)).
		Int("changes", len(result.Changes)).
		Int("errors", result.Errors).
		Msg("renumber applied")
	return result, nil
}

func (s *RenumberServiceImpl) plan(ctx context.Context, req primary.RenumberRequest, dryRun bool) (*primary.RenumberResult, []serial.Plan, error) {
	mode := req.Mode
	if mode == "" {
		mode = s.opts.Mode
	}
	if _, err := serial.ParseMode(string(mode)); err != nil {
		return nil, nil, err
	}
	if mode == serial.ModeGlobalPerYear && len(req.BranchIDs) > 0 {
		return nil, nil, errors.New("branch filter cannot be combined with global_per_year: a year scope spans every branch")
	}

	kinds, err := kindsFor(req.Kind)
	if err != nil {
		return nil, nil, err
	}

	limit := s.opts.RenumberBatchLimit
	loaded, truncated, err := loadRecords(ctx, s.records, recordQuery{
		kinds:     kinds,
		years:     req.Years,
		branchIDs: req.BranchIDs,
		limit:     limit,
	}, s.opts)
	if err != nil {
		return nil, nil, err
	}

	result := &primary.RenumberResult{DryRun: dryRun, Mode: mode, Truncated: truncated}
	if truncated {
		s.logger.Warn().Int("limit", limit).Msg("renumber input truncated at batch limit")
	}

	resolver := newBranchResolver(s.projects)
	byKind := make(map[string][]serial.Item)
	for _, rec := range loaded {
		branch, err := resolver.resolve(ctx, rec)
		if err != nil {
			result.Skipped = append(result.Skipped, primary.RenumberSkip{RecordID: rec.ID, Reason: serial.ReasonCode(err)})
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
	}

	var plans []serial.Plan
	for _, kind := range kinds {
		plan, err := serial.PlanRenumber(kind, byKind[kind], mode, s.opts.loc())
		if err != nil {
			return result, nil, err
		}
		plans = append(plans, plan)

		for _, g := range plan.Groups {
			changes := g.Changes()
			result.Groups = append(result.Groups, primary.RenumberGroup{
				Scope:   g.Scope,
				Count:   g.Count(),
				Changed: len(changes),
			})
			for _, a := range changes {
				result.Changes = append(result.Changes, primary.RenumberChange{
					RecordID:  a.RecordID,
					Scope:     a.Scope,
					CreatedAt: a.CreatedAt,
					From:      a.From,
					To:        a.To,
				})
			}
		}
	}
	return result, plans, nil
}

func (s *RenumberServiceImpl) apply(ctx context.Context, result *primary.RenumberResult, plans []serial.Plan) error {
	// Changes are laid out group after group in the result; each goroutine
	// owns the contiguous slice of its group.
	type job struct {
		group   serial.Group
		changes []primary.RenumberChange
	}
	var jobs []job
	offset := 0
	for _, plan := range plans {
		for _, g := range plan.Groups {
			n := len(g.Changes())
			jobs = append(jobs, job{group: g, changes: result.Changes[offset : offset+n]})
			offset += n
		}
	}

	concurrency := s.opts.ApplyConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, j := range jobs {
		g.Go(func() error {
			return s.applyGroup(gctx, j.group, j.changes)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, c := range result.Changes {
		if c.Error != "" {
			result.Errors++
		}
	}
	return nil
}

// applyGroup writes the changes of one scope. Per-record failures are stored
// on the change; only cancellation stops the group.
func (s *RenumberServiceImpl) applyGroup(ctx context.Context, group serial.Group, changes []primary.RenumberChange) error {
	log := s.logger.With().Str("scope", group.Scope.String()).Logger()

	for i := range changes {
		if err := ctx.Err(); err != nil {
			return err
		}
		c := &changes[i]

		ok, err := s.records.SetSerial(ctx, c.RecordID, c.From, c.To)
		switch {
		case err != nil:
			c.Error = err.Error()
			log.Warn().Err(err).Str("record_id", c.RecordID).Msg("renumber write failed")
			continue
		case !ok:
			c.Error = serial.ReasonConcurrent
			log.Warn().Str("record_id", c.RecordID).Msg("record changed during renumber")
			continue
		}
		c.Applied = true

		from := c.From
		if from == "" {
			from = "(none)"
		}
		entry := &secondary.AuditEntry{
			RecordID:    c.RecordID,
			Actor:       ctxutil.SystemActor,
			Description: fmt.Sprintf("serial renumbered: %s -> %s", from, c.To),
		}
		if err := s.audit.Append(ctx, entry); err != nil {
			log.Warn().Err(err).Str("record_id", c.RecordID).Msg("audit entry not written")
		}
	}

	count := group.Count()
	if _, err := s.ledger.SetIfGreater(ctx, group.Scope, count); err != nil {
		log.Warn().Err(err).Int("last_number", count).Msg("ledger resync failed")
	}
	if err := s.allocator.EnsureAtLeast(ctx, group.Scope, count); err != nil {
		log.Warn().Err(err).Int("last_number", count).Msg("counter resync failed")
	}
	return nil
}

var _ primary.RenumberService = (*RenumberServiceImpl)(nil)
