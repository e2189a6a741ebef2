package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/example/wfm/internal/ports/primary"
)

// NumberingAdapter prints allocation, backfill and renumber runs.
type NumberingAdapter struct {
	allocator primary.SerialAllocator
	legacy    primary.SerialAllocator
	counters  primary.CounterReader
	backfill  primary.BackfillService
	renumber  primary.RenumberService
	out       io.Writer
}

// NumberingServices groups the services behind NumberingAdapter.
type NumberingServices struct {
	Allocator primary.SerialAllocator
	Legacy    primary.SerialAllocator
	Counters  primary.CounterReader
	Backfill  primary.BackfillService
	Renumber  primary.RenumberService
}

// NewNumberingAdapter creates a NumberingAdapter.
func NewNumberingAdapter(s NumberingServices, out io.Writer) *NumberingAdapter {
	return &NumberingAdapter{
		allocator: s.Allocator,
		legacy:    s.Legacy,
		counters:  s.Counters,
		backfill:  s.Backfill,
		renumber:  s.Renumber,
		out:       out,
	}
}

// Allocate issues one serial outside of any record, e.g. for paper forms.
func (a *NumberingAdapter) Allocate(ctx context.Context, kind, branchID string, at time.Time, legacy bool) error {
	allocator := a.allocator
	if legacy {
		allocator = a.legacy
		fmt.Fprintln(a.out, yellow("warning: the legacy allocator is not safe under concurrency"))
	}

	value, err := allocator.Allocate(ctx, kind, branchID, at)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, value)
	return nil
}

// Counters lists both copies of every scope counter.
func (a *NumberingAdapter) Counters(ctx context.Context) error {
	counters, err := a.counters.ListCounters(ctx)
	if err != nil {
		return err
	}
	if len(counters) == 0 {
		fmt.Fprintln(a.out, "No counters")
		return nil
	}

	fmt.Fprintf(a.out, "\n%-15s %-10s %-6s %8s %8s\n", "KIND", "BRANCH", "YEAR", "LEDGER", "KV")
	fmt.Fprintln(a.out, rule)
	for _, c := range counters {
		kv := fmt.Sprintf("%8d", c.KV)
		if c.KV != c.Ledger {
			kv = yellow(kv)
		}
		fmt.Fprintf(a.out, "%-15s %-10s %-6d %8d %s\n", c.Scope.Sequence, c.Scope.BranchID, c.Scope.Year, c.Ledger, kv)
	}
	fmt.Fprintln(a.out)
	return nil
}

// Backfill runs a backfill preview or apply and prints the item list.
func (a *NumberingAdapter) Backfill(ctx context.Context, req primary.BackfillRequest, apply bool) error {
	run := a.backfill.Preview
	if apply {
		run = a.backfill.Apply
	}
	res, err := run(ctx, req)
	if err != nil {
		return err
	}

	if len(res.Items) == 0 {
		fmt.Fprintln(a.out, "Nothing to backfill")
		return nil
	}

	fmt.Fprintf(a.out, "\n%-36s %-28s %-8s %-8s %s\n", "RECORD", "SCOPE", "FROM", "TO", "OUTCOME")
	fmt.Fprintln(a.out, rule)
	for _, it := range res.Items {
		detail := outcome(it.Outcome)
		if it.Reason != "" {
			detail += " (" + it.Reason + ")"
		}
		scope := "-"
		if it.Scope.BranchID != "" {
			scope = it.Scope.String()
		}
		fmt.Fprintf(a.out, "%-36s %-28s %-8s %-8s %s\n", it.RecordID, scope, dash(it.From), dash(it.To), detail)
	}
	fmt.Fprintln(a.out)

	if res.DryRun {
		fmt.Fprintf(a.out, "[DRY RUN] %d would be assigned, %d skipped, %d errors. Run 'backfill apply' to write.\n", res.Updated, res.Skipped, res.Errors)
		return nil
	}
	fmt.Fprintf(a.out, "%s Backfill complete: %d updated, %d skipped, %d errors\n", okMark(), res.Updated, res.Skipped, res.Errors)
	return nil
}

// Renumber runs a renumber preview or apply and prints the change list.
func (a *NumberingAdapter) Renumber(ctx context.Context, req primary.RenumberRequest, apply bool) error {
	run := a.renumber.Preview
	if apply {
		run = a.renumber.Apply
	}
	res, err := run(ctx, req)
	if res != nil && res.Truncated && !apply {
		fmt.Fprintln(a.out, yellow("warning: scope exceeds the batch limit; narrow the request before applying"))
	}
	if err != nil {
		return err
	}

	for _, g := range res.Groups {
		fmt.Fprintf(a.out, "%s: %d records, %d changes\n", g.Scope, g.Count, g.Changed)
	}
	for _, s := range res.Skipped {
		fmt.Fprintf(a.out, "  %s %s (%s)\n", outcome("skipped"), s.RecordID, s.Reason)
	}
	if len(res.Changes) == 0 {
		fmt.Fprintln(a.out, "Already dense, nothing to renumber")
		return nil
	}

	fmt.Fprintf(a.out, "\n%-36s %-8s %-8s %s\n", "RECORD", "FROM", "TO", "RESULT")
	fmt.Fprintln(a.out, rule)
	for _, c := range res.Changes {
		state := outcome("proposed")
		switch {
		case c.Error != "":
			state = red("failed: " + c.Error)
		case c.Applied:
			state = outcome("applied")
		}
		fmt.Fprintf(a.out, "%-36s %-8s %-8s %s\n", c.RecordID, dash(c.From), c.To, state)
	}
	fmt.Fprintln(a.out)

	if res.DryRun {
		fmt.Fprintf(a.out, "[DRY RUN] %d changes in %s mode. Run 'renumber apply' to write.\n", len(res.Changes), res.Mode)
		return nil
	}
	fmt.Fprintf(a.out, "%s Renumber complete: %d changes, %d errors\n", okMark(), len(res.Changes)-res.Errors, res.Errors)
	return nil
}
