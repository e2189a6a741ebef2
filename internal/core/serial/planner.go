package serial

import (
	"cmp"
	"slices"
	"time"
)

// Item is a record reduced to the fields numbering reads.
// BranchID must already be resolved by the caller.
type Item struct {
	ID        string
	BranchID  string
	CreatedAt time.Time
	Serial    string
}

// ScopedItems is one scope's records in numbering order.
type ScopedItems struct {
	Scope Scope
	Items []Item
}

// Assignment is the serial a renumber pass gives one record.
type Assignment struct {
	RecordID  string
	Scope     Scope
	Position  int
	CreatedAt time.Time
	From      string
	To        string
}

// Changed reports whether the assignment differs from the stored serial.
func (a Assignment) Changed() bool {
	return a.From != a.To
}

// Group is the renumber outcome for one scope.
type Group struct {
	Scope       Scope
	Assignments []Assignment
}

// Count is the final last_number of the scope.
func (g Group) Count() int {
	return len(g.Assignments)
}

// Changes returns only the assignments that modify a serial.
func (g Group) Changes() []Assignment {
	var out []Assignment
	for _, a := range g.Assignments {
		if a.Changed() {
			out = append(out, a)
		}
	}
	return out
}

// Plan is a complete, deterministic renumber proposal.
type Plan struct {
	Mode   Mode
	Groups []Group
}

// Changes flattens every group's changes in group order.
func (p Plan) Changes() []Assignment {
	var out []Assignment
	for _, g := range p.Groups {
		out = append(out, g.Changes()...)
	}
	return out
}

// compareItems is the total order used inside a scope: created_at, then id.
func compareItems(a, b Item) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

func compareScopes(a, b Scope) int {
	if c := cmp.Compare(a.Sequence, b.Sequence); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Year, b.Year); c != 0 {
		return c
	}
	return cmp.Compare(a.BranchID, b.BranchID)
}

// GroupByScope partitions items into scopes and orders each scope by
// (created_at, id). Scopes are returned in (sequence, year, branch) order.
// The year always comes from CreatedAt, never from any planned time.
func GroupByScope(sequence string, items []Item, mode Mode, loc *time.Location) []ScopedItems {
	byKey := make(map[Scope][]Item)
	for _, it := range items {
		scope := ScopeFor(mode, sequence, it.BranchID, YearOf(it.CreatedAt, loc))
		byKey[scope] = append(byKey[scope], it)
	}

	groups := make([]ScopedItems, 0, len(byKey))
	for scope, its := range byKey {
		slices.SortFunc(its, compareItems)
		groups = append(groups, ScopedItems{Scope: scope, Items: its})
	}
	slices.SortFunc(groups, func(a, b ScopedItems) int {
		return compareScopes(a.Scope, b.Scope)
	})
	return groups
}

// PlanRenumber assigns dense serials 0001..N per scope in (created_at, id)
// order and records the diff against the stored serials.
// The result depends only on the input set, not on its order.
func PlanRenumber(sequence string, items []Item, mode Mode, loc *time.Location) (Plan, error) {
	plan := Plan{Mode: mode}
	for _, g := range GroupByScope(sequence, items, mode, loc) {
		group := Group{Scope: g.Scope, Assignments: make([]Assignment, 0, len(g.Items))}
		for i, it := range g.Items {
			to, err := Format(i+1, g.Scope.Year)
			if err != nil {
				return Plan{}, err
			}
			group.Assignments = append(group.Assignments, Assignment{
				RecordID:  it.ID,
				Scope:     g.Scope,
				Position:  i + 1,
				CreatedAt: it.CreatedAt,
				From:      it.Serial,
				To:        to,
			})
		}
		plan.Groups = append(plan.Groups, group)
	}
	return plan, nil
}
