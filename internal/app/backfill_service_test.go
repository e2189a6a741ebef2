package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/wfm/internal/core/serial"
	"github.com/example/wfm/internal/ports/primary"
	"github.com/example/wfm/internal/ports/secondary"
)

func itemsByID(items []primary.BackfillItem) map[string]primary.BackfillItem {
	out := make(map[string]primary.BackfillItem, len(items))
	for _, it := range items {
		out[it.RecordID] = it
	}
	return out
}

func TestBackfillService_AssignsInCreationOrder(t *testing.T) {
	n := newNumbering(t)
	// Inserted out of creation order on purpose.
	n.wo("c", "B1", ts(t, "2025-03-03T08:00:00Z"), "")
	n.wo("a", "B1", ts(t, "2025-03-01T08:00:00Z"), "")
	n.wo("b2", "B1", ts(t, "2025-03-02T08:00:00Z"), "")
	n.wo("b1", "B1", ts(t, "2025-03-02T08:00:00Z"), "")
	n.wo("x", "B2", ts(t, "2025-03-01T09:00:00Z"), "")
	n.wo("done", "B1", ts(t, "2025-02-01T08:00:00Z"), "0009/25")
	ctx := context.Background()
	_, err := n.ledger.SetIfGreater(ctx, scopeB1(2025), 9)
	require.NoError(t, err)

	res, err := n.backfill.Apply(ctx, primary.BackfillRequest{})
	require.NoError(t, err)
	assert.False(t, res.DryRun)
	assert.Equal(t, 5, res.Updated)
	assert.Zero(t, res.Errors)

	want := map[string]string{
		"done": "0009/25",
		"a":    "0010/25",
		"b1":   "0011/25",
		"b2":   "0012/25",
		"c":    "0013/25",
		"x":    "0001/25",
	}
	for id, serialNo := range want {
		assert.Equal(t, serialNo, n.records.serialOf(id), id)
	}

	entries, err := n.audit.ListByRecord(ctx, "a")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "serial assigned by backfill: 0010/25 (anchor 2025-03-01T08:00:00Z)", entries[0].Description)
}

func TestBackfillService_PreviewWritesNothing(t *testing.T) {
	n := newNumbering(t)
	n.wo("a", "B1", ts(t, "2025-03-01T08:00:00Z"), "")
	n.wo("b", "B1", ts(t, "2025-03-02T08:00:00Z"), "")
	ctx := context.Background()
	_, err := n.allocator.AllocateInScope(ctx, scopeB1(2025))
	require.NoError(t, err)

	preview, err := n.backfill.Preview(ctx, primary.BackfillRequest{})
	require.NoError(t, err)
	assert.True(t, preview.DryRun)
	assert.Equal(t, 2, preview.Updated)
	items := itemsByID(preview.Items)
	assert.Equal(t, "0002/25", items["a"].To)
	assert.Equal(t, "0003/25", items["b"].To)
	assert.Equal(t, primary.ItemProposed, items["a"].Outcome)

	assert.Zero(t, n.records.writeCount())
	assert.Zero(t, n.audit.count())
	assert.Equal(t, 1, n.ledger.value(scopeB1(2025)))

	// The preview is exactly what apply then does.
	applied, err := n.backfill.Apply(ctx, primary.BackfillRequest{})
	require.NoError(t, err)
	for _, it := range applied.Items {
		assert.Equal(t, items[it.RecordID].To, it.To, it.RecordID)
	}
}

func TestBackfillService_Candidates(t *testing.T) {
	n := newNumbering(t)
	n.wo("missing", "B1", ts(t, "2025-03-01T08:00:00Z"), "")
	n.wo("wrong-year", "B1", ts(t, "2025-03-02T08:00:00Z"), "0004/24")
	n.wo("malformed", "B1", ts(t, "2025-03-03T08:00:00Z"), "12/25 ")
	n.wo("valid", "B1", ts(t, "2025-03-04T08:00:00Z"), "0001/25")
	n.wo("no-branch", "", ts(t, "2025-03-05T08:00:00Z"), "")

	res, err := n.backfill.Preview(context.Background(), primary.BackfillRequest{})
	require.NoError(t, err)

	items := itemsByID(res.Items)
	assert.NotContains(t, items, "valid")
	assert.Empty(t, items["missing"].Reason)
	assert.Equal(t, serial.ReasonInvalidSerial, items["wrong-year"].Reason)
	assert.Equal(t, "0004/24", items["wrong-year"].From)
	assert.Equal(t, serial.ReasonInvalidSerial, items["malformed"].Reason)

	assert.Equal(t, primary.ItemSkipped, items["no-branch"].Outcome)
	assert.Equal(t, serial.ReasonMissingBranch, items["no-branch"].Reason)
	assert.Equal(t, 3, res.Updated)
	assert.Equal(t, 1, res.Skipped)
}

func TestBackfillService_Filters(t *testing.T) {
	n := newNumbering(t)
	n.wo("b1-2024", "B1", ts(t, "2024-06-01T08:00:00Z"), "")
	n.wo("b1-2025", "B1", ts(t, "2025-06-01T08:00:00Z"), "")
	n.wo("b2-2025", "B2", ts(t, "2025-06-02T08:00:00Z"), "")
	n.wo("b1-2025-late", "B1", ts(t, "2025-07-01T08:00:00Z"), "")
	n.records.add(&secondary.OperationalRecord{ID: "report", Kind: secondary.KindWorkingReport, BranchID: "B1", CreatedAt: ts(t, "2025-06-01T08:00:00Z")})
	ctx := context.Background()

	tests := []struct {
		name string
		req  primary.BackfillRequest
		want []string
	}{
		{"by branch", primary.BackfillRequest{BranchIDs: []string{"B2"}}, []string{"b2-2025"}},
		{"by year", primary.BackfillRequest{Years: []int{2024}}, []string{"b1-2024"}},
		{"by kind", primary.BackfillRequest{Kind: secondary.KindWorkingReport}, []string{"report"}},
		{"limit takes the earliest", primary.BackfillRequest{Kind: secondary.KindWorkOrder, Limit: 2}, []string{"b1-2024", "b1-2025"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := n.backfill.Preview(ctx, tt.req)
			require.NoError(t, err)
			var ids []string
			for _, it := range res.Items {
				ids = append(ids, it.RecordID)
			}
			assert.ElementsMatch(t, tt.want, ids)
		})
	}

	_, err := n.backfill.Preview(ctx, primary.BackfillRequest{Kind: "invoice"})
	assert.Error(t, err)
}

func TestBackfillService_PerRecordFailuresDoNotAbort(t *testing.T) {
	n := newNumbering(t)
	n.wo("a", "B1", ts(t, "2025-03-01T08:00:00Z"), "")
	n.wo("b", "B1", ts(t, "2025-03-02T08:00:00Z"), "")
	n.wo("c", "B1", ts(t, "2025-03-03T08:00:00Z"), "")
	n.records.setSerialErr["b"] = assert.AnError

	res, err := n.backfill.Apply(context.Background(), primary.BackfillRequest{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Updated)
	assert.Equal(t, 1, res.Errors)

	items := itemsByID(res.Items)
	assert.Equal(t, primary.ItemFailed, items["b"].Outcome)
	assert.Equal(t, serial.ReasonStoreError, items["b"].Reason)
	assert.Equal(t, "0003/25", n.records.serialOf("c"))
}

func TestBackfillThenRenumber_Scenario(t *testing.T) {
	n := newNumbering(t)
	n.wo("T1", "B1", ts(t, "2025-02-01T08:00:00Z"), "")
	n.wo("T2", "B1", ts(t, "2025-02-02T08:00:00Z"), "0001/25")
	n.wo("T3", "B1", ts(t, "2025-02-03T08:00:00Z"), "")
	ctx := context.Background()

	_, err := n.backfill.Apply(ctx, primary.BackfillRequest{BranchIDs: []string{"B1"}, Years: []int{2025}})
	require.NoError(t, err)
	_, err = n.renumber.Apply(ctx, primary.RenumberRequest{BranchIDs: []string{"B1"}, Years: []int{2025}, Mode: serial.ModePerBranchYear})
	require.NoError(t, err)

	assert.Equal(t, "0001/25", n.records.serialOf("T1"))
	assert.Equal(t, "0002/25", n.records.serialOf("T2"))
	assert.Equal(t, "0003/25", n.records.serialOf("T3"))
	assert.True(t, n.ledger.monotonic(scopeB1(2025)))
}

func TestBackfillService_SkipsSerialsAlreadyHeld(t *testing.T) {
	n := newNumbering(t)
	n.wo("T1", "B1", ts(t, "2025-02-01T08:00:00Z"), "")
	n.wo("T2", "B1", ts(t, "2025-02-02T08:00:00Z"), "0001/25")
	n.wo("T3", "B1", ts(t, "2025-02-03T08:00:00Z"), "")
	n.wo("other", "B2", ts(t, "2025-02-01T08:00:00Z"), "0002/25")
	ctx := context.Background()

	preview, err := n.backfill.Preview(ctx, primary.BackfillRequest{})
	require.NoError(t, err)
	proposed := itemsByID(preview.Items)
	assert.Equal(t, "0002/25", proposed["T1"].To)
	assert.Equal(t, "0003/25", proposed["T3"].To)

	res, err := n.backfill.Apply(ctx, primary.BackfillRequest{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Updated)
	assert.Zero(t, res.Errors)
	for _, it := range res.Items {
		assert.Equal(t, proposed[it.RecordID].To, it.To, it.RecordID)
	}

	seen := make(map[string]string)
	for _, id := range []string{"T1", "T2", "T3"} {
		s := n.records.serialOf(id)
		if prev, ok := seen[s]; ok {
			t.Fatalf("%s and %s both hold %s", prev, id, s)
		}
		seen[s] = id
	}
	assert.Equal(t, "0001/25", n.records.serialOf("T2"), "existing serials are kept")
	assert.Equal(t, 3, n.ledger.value(scopeB1(2025)))
}

func TestBackfillService_CollisionRetriesExhausted(t *testing.T) {
	n := newNumbering(t, func(o *NumberingOptions) { o.CollisionRetries = 2 })
	n.wo("h1", "B1", ts(t, "2025-01-01T08:00:00Z"), "0001/25")
	n.wo("h2", "B1", ts(t, "2025-01-02T08:00:00Z"), "0002/25")
	n.wo("late", "B1", ts(t, "2025-01-03T08:00:00Z"), "")
	ctx := context.Background()

	res, err := n.backfill.Apply(ctx, primary.BackfillRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Errors)
	items := itemsByID(res.Items)
	assert.Equal(t, primary.ItemFailed, items["late"].Outcome)
	assert.Equal(t, serial.ReasonCollision, items["late"].Reason)
	assert.Empty(t, n.records.serialOf("late"))

	// The counter moved past the held values, so a second run succeeds.
	res, err = n.backfill.Apply(ctx, primary.BackfillRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, "0003/25", n.records.serialOf("late"))
}

func TestBackfillService_QueriesOnlyCandidates(t *testing.T) {
	n := newNumbering(t)
	n.wo("old", "B1", ts(t, "2023-05-01T08:00:00Z"), "")
	n.wo("new", "B1", ts(t, "2025-05-01T08:00:00Z"), "0001/25")

	_, err := n.backfill.Preview(context.Background(), primary.BackfillRequest{Kind: secondary.KindWorkOrder})
	require.NoError(t, err)

	var years []int
	for _, f := range n.records.listed() {
		require.NotZero(t, f.SerialInvalidFor, "every backfill query filters on the serial")
		require.False(t, f.CreatedFrom.IsZero(), "every backfill query is bounded to a year")
		years = append(years, f.SerialInvalidFor)
	}
	assert.Equal(t, []int{2023, 2024, 2025}, years)
}
