package serial

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name    string
		seq     int
		year    int
		want    string
		wantErr bool
	}{
		{name: "pads sequence", seq: 7, year: 2025, want: "0007/25"},
		{name: "four digit sequence", seq: 1234, year: 2031, want: "1234/31"},
		{name: "year segment keeps leading zero", seq: 1, year: 2009, want: "0001/09"},
		{name: "max sequence", seq: MaxSequence, year: 2025, want: "9999/25"},
		{name: "zero sequence rejected", seq: 0, year: 2025, wantErr: true},
		{name: "overflow rejected", seq: MaxSequence + 1, year: 2025, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Format(tt.seq, tt.year)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Format(%d, %d) = %q, want error", tt.seq, tt.year, got)
				}
				if !errors.Is(err, ErrGeneratorFailure) {
					t.Errorf("Format() error = %v, want ErrGeneratorFailure", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Format() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Format(%d, %d) = %q, want %q", tt.seq, tt.year, got, tt.want)
			}
		})
	}
}

func TestIsValidFor(t *testing.T) {
	tests := []struct {
		name   string
		serial string
		year   int
		want   bool
	}{
		{name: "valid", serial: "0001/25", year: 2025, want: true},
		{name: "wrong year segment", serial: "0001/24", year: 2025, want: false},
		{name: "zero sequence", serial: "0000/25", year: 2025, want: false},
		{name: "empty", serial: "", year: 2025, want: false},
		{name: "three digits", serial: "001/25", year: 2025, want: false},
		{name: "dash separator", serial: "0001-25", year: 2025, want: false},
		{name: "leading whitespace", serial: " 0001/25", year: 2025, want: false},
		{name: "trailing newline", serial: "0001/25\n", year: 2025, want: false},
		{name: "four digit year", serial: "0001/2025", year: 2025, want: false},
		{name: "non ascii digits", serial: "٠٠٠١/25", year: 2025, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidFor(tt.serial, tt.year); got != tt.want {
				t.Errorf("IsValidFor(%q, %d) = %v, want %v", tt.serial, tt.year, got, tt.want)
			}
		})
	}
}

func TestParse(t *testing.T) {
	seq, yy, ok := Parse("0042/07")
	if !ok || seq != 42 || yy != 7 {
		t.Errorf("Parse(0042/07) = (%d, %d, %v), want (42, 7, true)", seq, yy, ok)
	}
	if _, _, ok := Parse("42/07"); ok {
		t.Error("Parse(42/07) ok = true, want false")
	}
	if got := SequenceOf("garbage"); got != 0 {
		t.Errorf("SequenceOf(garbage) = %d, want 0", got)
	}
}

func TestScopeFor(t *testing.T) {
	perBranch := ScopeFor(ModePerBranchYear, "work_order", "B1", 2025)
	if perBranch.Key() != "work_order/B1/2025" {
		t.Errorf("per-branch key = %q", perBranch.Key())
	}

	global := ScopeFor(ModeGlobalPerYear, "work_order", "B1", 2025)
	if global.BranchID != GlobalBranch {
		t.Errorf("global scope branch = %q, want %q", global.BranchID, GlobalBranch)
	}
}

func TestParseMode(t *testing.T) {
	if _, err := ParseMode("per_branch_year"); err != nil {
		t.Errorf("ParseMode(per_branch_year) error = %v", err)
	}
	if _, err := ParseMode("global_per_year"); err != nil {
		t.Errorf("ParseMode(global_per_year) error = %v", err)
	}
	if _, err := ParseMode("weekly"); err == nil {
		t.Error("ParseMode(weekly) error = nil, want error")
	}
}

func TestYearOf(t *testing.T) {
	// 23:30 UTC on New Year's Eve is already the next year in Berlin.
	ts := time.Date(2024, 12, 31, 23, 30, 0, 0, time.UTC)
	if got := YearOf(ts, nil); got != 2024 {
		t.Errorf("YearOf(UTC) = %d, want 2024", got)
	}

	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	if got := YearOf(ts, berlin); got != 2025 {
		t.Errorf("YearOf(Berlin) = %d, want 2025", got)
	}
}

func TestReasonCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{errors.Wrap(ErrMissingBranch, "record WO-1"), ReasonMissingBranch},
		{ErrResourceBusy, ReasonResourceBusy},
		{ErrLockHeld, ReasonLockHeld},
		{ErrInvalidExistingSerial, ReasonInvalidSerial},
		{errors.Wrapf(ErrGeneratorFailure, "seq %d", 10000), ReasonGeneratorFailed},
		{errors.Wrapf(ErrCollision, "after %d attempts", 5), ReasonCollision},
		{errors.New("disk full"), ReasonStoreError},
	}
	for _, tt := range tests {
		if got := ReasonCode(tt.err); got != tt.want {
			t.Errorf("ReasonCode(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
