package app

import (
	"context"
	"slices"

	"github.com/cockroachdb/errors"

	"github.com/example/wfm/internal/core/serial"
	"github.com/example/wfm/internal/ports/secondary"
)

var allKinds = []string{secondary.KindWorkOrder, secondary.KindWorkingReport}

func kindsFor(kind string) ([]string, error) {
	if kind == "" {
		return allKinds, nil
	}
	if !slices.Contains(allKinds, kind) {
		return nil, errors.Newf("unknown record kind %q", kind)
	}
	return []string{kind}, nil
}

// recordQuery selects the records a numbering run works on.
type recordQuery struct {
	kinds     []string
	years     []int // all years holding records of the kind when empty
	branchIDs []string
	// needsSerial keeps only records without a valid serial for their year.
	needsSerial bool
	// limit caps each (kind, year) slice; 0 means unbounded.
	limit int
}

// loadRecords runs one query per kind and year. Records come back in
// (created_at, id) order within each slice. The flag reports that some
// slice held more than limit records and was cut.
func loadRecords(ctx context.Context, repo secondary.RecordRepository, q recordQuery, opts NumberingOptions) ([]*secondary.OperationalRecord, bool, error) {
	var (
		out       []*secondary.OperationalRecord
		truncated bool
	)
	for _, kind := range q.kinds {
		years := q.years
		if len(years) == 0 {
			found, err := recordYears(ctx, repo, kind, opts)
			if err != nil {
				return nil, false, err
			}
			years = found
		}

		sorted := slices.Clone(years)
		slices.Sort(sorted)
		for _, year := range slices.Compact(sorted) {
			from, before := yearWindow(year, opts.loc())
			filters := secondary.RecordFilters{
				Kind:          kind,
				BranchIDs:     q.branchIDs,
				CreatedFrom:   from,
				CreatedBefore: before,
			}
			if q.needsSerial {
				filters.SerialInvalidFor = year
			}
			if q.limit > 0 {
				filters.Limit = q.limit + 1
			}

			recs, err := repo.List(ctx, filters)
			if err != nil {
				return nil, false, err
			}
			if q.limit > 0 && len(recs) > q.limit {
				truncated = true
				recs = recs[:q.limit]
			}
			out = append(out, recs...)
		}
	}
	return out, truncated, nil
}

// recordYears lists every year from the first to the last record of kind.
func recordYears(ctx context.Context, repo secondary.RecordRepository, kind string, opts NumberingOptions) ([]int, error) {
	first, last, err := repo.CreatedRange(ctx, kind)
	if err != nil {
		return nil, err
	}
	if first.IsZero() {
		return nil, nil
	}
	var years []int
	for y := serial.YearOf(first, opts.loc()); y <= serial.YearOf(last, opts.loc()); y++ {
		years = append(years, y)
	}
	return years, nil
}
