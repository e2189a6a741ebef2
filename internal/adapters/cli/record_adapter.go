// Package cli provides thin CLI adapters that translate between CLI concerns
// and application services. Adapters handle output formatting but delegate
// business logic to services.
package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/example/wfm/internal/ports/primary"
)

// RecordAdapter is a thin adapter that translates CLI operations to RecordService calls.
type RecordAdapter struct {
	service primary.RecordService
	out     io.Writer
}

// NewRecordAdapter creates a new RecordAdapter with the given service.
func NewRecordAdapter(service primary.RecordService, out io.Writer) *RecordAdapter {
	return &RecordAdapter{service: service, out: out}
}

// Create creates a new record and reports the serial it received.
func (a *RecordAdapter) Create(ctx context.Context, req primary.CreateRecordRequest) error {
	rec, err := a.service.CreateRecord(ctx, req)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "%s Created %s %s: %s\n", okMark(), rec.Kind, rec.ID, rec.Title)
	fmt.Fprintf(a.out, "  Serial: %s\n", serialOrPending(rec.Serial))
	return nil
}

// Update applies an edit.
func (a *RecordAdapter) Update(ctx context.Context, req primary.UpdateRecordRequest) error {
	if req.Title == nil && req.ProjectID == nil && req.BranchID == nil && req.Serial == nil && req.PlannedAt == nil {
		return errors.New("must specify at least one of --title, --project, --branch, --serial, --planned-at")
	}

	rec, err := a.service.UpdateRecord(ctx, req)
	if err != nil {
		return errors.Wrap(err, "failed to update record")
	}

	fmt.Fprintf(a.out, "%s Record %s updated (serial %s)\n", okMark(), rec.ID, serialOrPending(rec.Serial))
	return nil
}

// Activate moves a draft record to active.
func (a *RecordAdapter) Activate(ctx context.Context, recordID string) error {
	rec, err := a.service.ActivateRecord(ctx, recordID)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "%s Record %s activated (serial %s)\n", okMark(), rec.ID, serialOrPending(rec.Serial))
	return nil
}

// Show displays details for a single record.
func (a *RecordAdapter) Show(ctx context.Context, recordID string) (*primary.Record, error) {
	rec, err := a.service.GetRecord(ctx, recordID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get record")
	}

	fmt.Fprintf(a.out, "\nRecord:  %s\n", rec.ID)
	fmt.Fprintf(a.out, "Kind:    %s\n", rec.Kind)
	fmt.Fprintf(a.out, "Title:   %s\n", rec.Title)
	fmt.Fprintf(a.out, "Status:  %s\n", rec.Status)
	fmt.Fprintf(a.out, "Serial:  %s\n", serialOrPending(rec.Serial))
	if rec.BranchID != "" {
		fmt.Fprintf(a.out, "Branch:  %s\n", rec.BranchID)
	}
	if rec.ProjectID != "" {
		fmt.Fprintf(a.out, "Project: %s\n", rec.ProjectID)
	}
	if !rec.PlannedAt.IsZero() {
		fmt.Fprintf(a.out, "Planned: %s\n", rec.PlannedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(a.out, "Created: %s\n", rec.CreatedAt.Format(time.RFC3339))
	fmt.Fprintln(a.out)

	return rec, nil
}

// List lists records with optional filters.
func (a *RecordAdapter) List(ctx context.Context, filters primary.RecordFilters) error {
	records, err := a.service.ListRecords(ctx, filters)
	if err != nil {
		return errors.Wrap(err, "failed to list records")
	}

	if len(records) == 0 {
		fmt.Fprintln(a.out, "No records found")
		return nil
	}

	fmt.Fprintf(a.out, "\n%-36s %-15s %-8s %-10s %-8s %s\n", "ID", "KIND", "SERIAL", "BRANCH", "STATUS", "TITLE")
	fmt.Fprintln(a.out, rule)
	for _, r := range records {
		fmt.Fprintf(a.out, "%-36s %-15s %-8s %-10s %-8s %s\n", r.ID, r.Kind, dash(r.Serial), dash(r.BranchID), r.Status, r.Title)
	}
	fmt.Fprintln(a.out)

	return nil
}

// History prints a record's audit log.
func (a *RecordAdapter) History(ctx context.Context, recordID string) error {
	entries, err := a.service.History(ctx, recordID)
	if err != nil {
		return errors.Wrap(err, "failed to load history")
	}

	if len(entries) == 0 {
		fmt.Fprintln(a.out, "No history")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(a.out, "%s  %-12s %s\n", e.CreatedAt.Format(time.RFC3339), e.Actor, e.Description)
	}
	return nil
}
