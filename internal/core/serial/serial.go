// Package serial contains the pure business logic for record serial numbers.
// This is part of the Functional Core - no I/O, only pure functions.
//
// A serial has the wire format DDDD/YY: a four digit, zero padded sequence
// number, a literal slash and the two low-order digits of the calendar year
// the record was created in. Serials are unique and dense within a Scope.
package serial

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
)

// MaxSequence is the largest sequence number that fits the four digit format.
const MaxSequence = 9999

// GlobalBranch is the branch component of scopes in ModeGlobalPerYear.
const GlobalBranch = "*"

var wellFormed = regexp.MustCompile(`^\d{4}/\d{2}$`)

// Mode selects how records are grouped into numbering scopes.
type Mode string

const (
	// ModePerBranchYear numbers each (branch, year) independently.
	ModePerBranchYear Mode = "per_branch_year"
	// ModeGlobalPerYear numbers all branches together within a year.
	ModeGlobalPerYear Mode = "global_per_year"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModePerBranchYear, ModeGlobalPerYear:
		return Mode(s), nil
	}
	return "", errors.Newf("unknown numbering mode %q (want %s or %s)", s, ModePerBranchYear, ModeGlobalPerYear)
}

// Scope identifies one independent numbering sequence.
// Sequence is the record kind (work orders and working reports number separately).
type Scope struct {
	Sequence string
	BranchID string
	Year     int
}

// ScopeFor builds the scope a record belongs to under the given mode.
func ScopeFor(mode Mode, sequence, branchID string, year int) Scope {
	if mode == ModeGlobalPerYear {
		branchID = GlobalBranch
	}
	return Scope{Sequence: sequence, BranchID: branchID, Year: year}
}

// Key returns a stable string form, used for KV keys and log fields.
func (s Scope) Key() string {
	return fmt.Sprintf("%s/%s/%d", s.Sequence, s.BranchID, s.Year)
}

func (s Scope) String() string {
	return s.Key()
}

// Format renders a sequence number and a four digit year as a serial.
func Format(seq, year int) (string, error) {
	if seq < 1 || seq > MaxSequence {
		return "", errors.Wrapf(ErrGeneratorFailure, "sequence %d out of range 1..%d", seq, MaxSequence)
	}
	if year < 0 {
		return "", errors.Wrapf(ErrGeneratorFailure, "invalid year %d", year)
	}
	return fmt.Sprintf("%04d/%02d", seq, year%100), nil
}

// Parse splits a well-formed serial into its sequence and two digit year.
func Parse(s string) (seq, yy int, ok bool) {
	if !wellFormed.MatchString(s) {
		return 0, 0, false
	}
	seq, _ = strconv.Atoi(s[:4])
	yy, _ = strconv.Atoi(s[5:])
	return seq, yy, true
}

// IsWellFormed reports whether s matches DDDD/YY exactly.
func IsWellFormed(s string) bool {
	return wellFormed.MatchString(s)
}

// IsValidFor reports whether s is well formed, has a non-zero sequence and
// carries the year segment of the given creation year.
func IsValidFor(s string, year int) bool {
	seq, yy, ok := Parse(s)
	return ok && seq >= 1 && yy == year%100
}

// SequenceOf returns the numeric sequence of a serial, or 0 when malformed.
func SequenceOf(s string) int {
	seq, _, ok := Parse(s)
	if !ok {
		return 0
	}
	return seq
}

// YearOf derives the numbering year of an anchor timestamp.
// A nil location means UTC.
func YearOf(t time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Year()
}
