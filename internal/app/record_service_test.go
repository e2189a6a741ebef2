package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/wfm/internal/ctxutil"
	"github.com/example/wfm/internal/ports/primary"
	"github.com/example/wfm/internal/ports/secondary"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []secondary.RecordEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, event secondary.RecordEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

func newTestRecordService(publisher secondary.EventPublisher) (*RecordServiceImpl, *memRecords, *memAudit) {
	records := newMemRecords()
	audit := &memAudit{}
	svc := NewRecordService(records, audit, publisher, testLogger())
	svc.now = func() time.Time { return time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC) }
	return svc, records, audit
}

func TestRecordService_CreateRecord(t *testing.T) {
	pub := &recordingPublisher{}
	svc, _, _ := newTestRecordService(pub)
	ctx := ctxutil.WithActorID(context.Background(), "alice")

	rec, err := svc.CreateRecord(ctx, primary.CreateRecordRequest{
		Kind:     secondary.KindWorkOrder,
		Title:    "Replace boiler",
		BranchID: "B1",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, secondary.StatusDraft, rec.Status)
	assert.Empty(t, rec.Serial)
	assert.Equal(t, time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC), rec.CreatedAt)
	require.Len(t, pub.events, 1)
	assert.Equal(t, secondary.EventRecordCreated, pub.events[0].Type)
	assert.Equal(t, rec.ID, pub.events[0].RecordID)
	assert.Equal(t, secondary.KindWorkOrder, pub.events[0].Kind)

	history, err := svc.History(ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "alice", history[0].Actor)
	assert.Equal(t, "record created", history[0].Description)
}

func TestRecordService_CreateRecordValidation(t *testing.T) {
	svc, _, _ := newTestRecordService(nil)
	ctx := context.Background()

	tests := []struct {
		name string
		req  primary.CreateRecordRequest
	}{
		{"missing kind", primary.CreateRecordRequest{Title: "x"}},
		{"unknown kind", primary.CreateRecordRequest{Kind: "invoice", Title: "x"}},
		{"blank title", primary.CreateRecordRequest{Kind: secondary.KindWorkingReport, Title: "  "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateRecord(ctx, tt.req)
			assert.Error(t, err)
		})
	}
}

func TestRecordService_PublishFailureKeepsWrite(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc, records, _ := newTestRecordService(pub)

	rec, err := svc.CreateRecord(context.Background(), primary.CreateRecordRequest{Kind: secondary.KindWorkOrder, Title: "t"})
	require.NoError(t, err)

	_, err = records.GetByID(context.Background(), rec.ID)
	assert.NoError(t, err)
}

func TestRecordService_UpdateRecord(t *testing.T) {
	pub := &recordingPublisher{}
	svc, _, _ := newTestRecordService(pub)
	ctx := context.Background()

	rec, err := svc.CreateRecord(ctx, primary.CreateRecordRequest{Kind: secondary.KindWorkOrder, Title: "old"})
	require.NoError(t, err)

	title, serialNo := "new", "0007/25"
	updated, err := svc.UpdateRecord(ctx, primary.UpdateRecordRequest{RecordID: rec.ID, Title: &title, Serial: &serialNo})
	require.NoError(t, err)
	assert.Equal(t, "new", updated.Title)
	assert.Equal(t, "0007/25", updated.Serial)
	assert.Equal(t, []string{secondary.EventRecordCreated, secondary.EventRecordUpdated}, pub.types())

	history, err := svc.History(ctx, rec.ID)
	require.NoError(t, err)
	var lines []string
	for _, h := range history {
		lines = append(lines, h.Description)
	}
	assert.Equal(t, []string{
		"record created",
		"title changed: old -> new",
		"serial changed: (none) -> 0007/25",
	}, lines)
	assert.Equal(t, ctxutil.SystemActor, history[1].Actor)

	_, err = svc.UpdateRecord(ctx, primary.UpdateRecordRequest{RecordID: "missing", Title: &title})
	assert.Error(t, err)
}

func TestRecordService_ActivateRecord(t *testing.T) {
	pub := &recordingPublisher{}
	svc, _, _ := newTestRecordService(pub)
	ctx := context.Background()

	rec, err := svc.CreateRecord(ctx, primary.CreateRecordRequest{Kind: secondary.KindWorkingReport, Title: "t"})
	require.NoError(t, err)

	active, err := svc.ActivateRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, secondary.StatusActive, active.Status)
	assert.Equal(t, []string{secondary.EventRecordCreated, secondary.EventRecordActivated}, pub.types())

	_, err = svc.ActivateRecord(ctx, rec.ID)
	assert.Error(t, err, "only drafts can be activated")
}

func TestRecordService_ListRecords(t *testing.T) {
	svc, records, _ := newTestRecordService(nil)
	ctx := context.Background()
	records.add(&secondary.OperationalRecord{ID: "a", BranchID: "B1", CreatedAt: ts(t, "2025-01-01T00:00:00Z")})
	records.add(&secondary.OperationalRecord{ID: "b", BranchID: "B2", CreatedAt: ts(t, "2025-01-02T00:00:00Z")})
	records.add(&secondary.OperationalRecord{ID: "c", Kind: secondary.KindWorkingReport, BranchID: "B1", CreatedAt: ts(t, "2025-01-03T00:00:00Z")})

	all, err := svc.ListRecords(ctx, primary.RecordFilters{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	b1, err := svc.ListRecords(ctx, primary.RecordFilters{Kind: secondary.KindWorkOrder, BranchID: "B1"})
	require.NoError(t, err)
	require.Len(t, b1, 1)
	assert.Equal(t, "a", b1[0].ID)
}
