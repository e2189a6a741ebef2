package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/example/wfm/internal/ctxutil"
	"github.com/example/wfm/internal/ports/primary"
	"github.com/example/wfm/internal/ports/secondary"
)

// RecordServiceImpl implements the RecordService interface.
// Every successful write publishes a record event; a failed publish is
// logged and never undoes the write.
type RecordServiceImpl struct {
	records   secondary.RecordRepository
	audit     secondary.AuditLogRepository
	publisher secondary.EventPublisher
	now       func() time.Time
	logger    zerolog.Logger
}

// NewRecordService creates a new RecordService with injected dependencies.
func NewRecordService(records secondary.RecordRepository, audit secondary.AuditLogRepository, publisher secondary.EventPublisher, logger zerolog.Logger) *RecordServiceImpl {
	return &RecordServiceImpl{
		records:   records,
		audit:     audit,
		publisher: publisher,
		now:       time.Now,
		logger:    logger.With().Str("component", "record_service").Logger(),
	}
}

// CreateRecord creates a draft record.
func (s *RecordServiceImpl) CreateRecord(ctx context.Context, req primary.CreateRecordRequest) (*primary.Record, error) {
	if _, err := kindsFor(req.Kind); err != nil || req.Kind == "" {
		return nil, errors.Newf("kind must be %s or %s", secondary.KindWorkOrder, secondary.KindWorkingReport)
	}
	if strings.TrimSpace(req.Title) == "" {
		return nil, errors.New("title is required")
	}

	record := &secondary.OperationalRecord{
		ID:        uuid.NewString(),
		Kind:      req.Kind,
		Title:     req.Title,
		ProjectID: req.ProjectID,
		BranchID:  req.BranchID,
		Status:    secondary.StatusDraft,
		PlannedAt: req.PlannedAt,
		CreatedAt: req.CreatedAt,
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.now().UTC()
	}
	if err := s.records.Create(ctx, record); err != nil {
		return nil, errors.Wrap(err, "failed to create record")
	}
	s.appendAudit(ctx, record.ID, "record created")

	s.publish(ctx, secondary.EventRecordCreated, record)
	return s.GetRecord(ctx, record.ID)
}

// UpdateRecord applies an edit and publishes the update event.
func (s *RecordServiceImpl) UpdateRecord(ctx context.Context, req primary.UpdateRecordRequest) (*primary.Record, error) {
	existing, err := s.records.GetByID(ctx, req.RecordID)
	if err != nil {
		return nil, err
	}

	patch := &secondary.RecordPatch{
		ID:        req.RecordID,
		Title:     req.Title,
		ProjectID: req.ProjectID,
		BranchID:  req.BranchID,
		Serial:    req.Serial,
		PlannedAt: req.PlannedAt,
	}
	if err := s.records.Update(ctx, patch); err != nil {
		return nil, errors.Wrap(err, "failed to update record")
	}

	for _, change := range describePatch(existing, patch) {
		s.appendAudit(ctx, existing.ID, change)
	}

	s.publish(ctx, secondary.EventRecordUpdated, existing)
	return s.GetRecord(ctx, req.RecordID)
}

// ActivateRecord moves a draft record to active.
func (s *RecordServiceImpl) ActivateRecord(ctx context.Context, recordID string) (*primary.Record, error) {
	record, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if record.Status != secondary.StatusDraft {
		return nil, errors.Newf("record %s is %s, only draft records can be activated", recordID, record.Status)
	}

	if err := s.records.UpdateStatus(ctx, recordID, secondary.StatusActive); err != nil {
		return nil, errors.Wrap(err, "failed to activate record")
	}
	s.appendAudit(ctx, recordID, "record activated")

	s.publish(ctx, secondary.EventRecordActivated, record)
	return s.GetRecord(ctx, recordID)
}

// GetRecord retrieves a record by ID.
func (s *RecordServiceImpl) GetRecord(ctx context.Context, recordID string) (*primary.Record, error) {
	record, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	return s.recordToRecord(record), nil
}

// ListRecords lists records with optional filters.
func (s *RecordServiceImpl) ListRecords(ctx context.Context, filters primary.RecordFilters) ([]*primary.Record, error) {
	records, err := s.records.List(ctx, secondary.RecordFilters{
		Kind:     filters.Kind,
		Status:   filters.Status,
		BranchID: filters.BranchID,
		Limit:    filters.Limit,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list records")
	}

	out := make([]*primary.Record, len(records))
	for i, r := range records {
		out[i] = s.recordToRecord(r)
	}
	return out, nil
}

// History returns a record's audit log.
func (s *RecordServiceImpl) History(ctx context.Context, recordID string) ([]*primary.AuditEntry, error) {
	entries, err := s.audit.ListByRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	out := make([]*primary.AuditEntry, len(entries))
	for i, e := range entries {
		out[i] = &primary.AuditEntry{Actor: e.Actor, Description: e.Description, CreatedAt: e.CreatedAt}
	}
	return out, nil
}

func (s *RecordServiceImpl) publish(ctx context.Context, eventType string, record *secondary.OperationalRecord) {
	if s.publisher == nil {
		return
	}
	event := secondary.RecordEvent{
		Type:       eventType,
		RecordID:   record.ID,
		Kind:       record.Kind,
		OccurredAt: s.now().UTC(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("record_id", record.ID).Str("event", eventType).Msg("event not published")
	}
}

func (s *RecordServiceImpl) appendAudit(ctx context.Context, recordID, description string) {
	entry := &secondary.AuditEntry{RecordID: recordID, Actor: ctxutil.ActorFromContext(ctx), Description: description}
	if err := s.audit.Append(ctx, entry); err != nil {
		s.logger.Warn().Err(err).Str("record_id", recordID).Msg("audit entry not written")
	}
}

// describePatch lists the audit lines of the fields a patch changes.
func describePatch(before *secondary.OperationalRecord, patch *secondary.RecordPatch) []string {
	var out []string
	field := func(name, from string, to *string) {
		if to != nil && *to != from {
			out = append(out, fmt.Sprintf("%s changed: %s -> %s", name, orNone(from), orNone(*to)))
		}
	}
	field("title", before.Title, patch.Title)
	field("branch", before.BranchID, patch.BranchID)
	field("project", before.ProjectID, patch.ProjectID)
	field("serial", before.Serial, patch.Serial)
	if patch.PlannedAt != nil && !patch.PlannedAt.Equal(before.PlannedAt) {
		out = append(out, fmt.Sprintf("planned_at changed: %s", patch.PlannedAt.UTC().Format(time.RFC3339)))
	}
	return out
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

// Helper methods

func (s *RecordServiceImpl) recordToRecord(r *secondary.OperationalRecord) *primary.Record {
	return &primary.Record{
		ID:        r.ID,
		Kind:      r.Kind,
		Title:     r.Title,
		ProjectID: r.ProjectID,
		BranchID:  r.BranchID,
		Status:    r.Status,
		Serial:    r.Serial,
		PlannedAt: r.PlannedAt,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

var _ primary.RecordService = (*RecordServiceImpl)(nil)
