package serial

import "github.com/cockroachdb/errors"

var (
	// ErrMissingBranch means the record's scope could not be resolved.
	ErrMissingBranch = errors.New("branch could not be resolved")
	// ErrResourceBusy means the allocator exhausted its CAS attempts.
	ErrResourceBusy = errors.New("serial counter busy, retry later")
	// ErrLockHeld means another worker holds the repair lock for the scope.
	ErrLockHeld = errors.New("lock held by another worker")
	// ErrInvalidExistingSerial marks a stored serial that fails format or year validation.
	ErrInvalidExistingSerial = errors.New("existing serial is invalid")
	// ErrGeneratorFailure means no usable serial could be produced.
	ErrGeneratorFailure = errors.New("serial generator failure")
	// ErrScopeTooLarge means a renumber pass loaded more records than its batch bound.
	ErrScopeTooLarge = errors.New("scope exceeds renumber batch limit")
	// ErrCollision means every allocated value was already held in the scope.
	ErrCollision = errors.New("allocated serials already held")
	// ErrNotFound is returned by stores for unknown records.
	ErrNotFound = errors.New("not found")
)

// Reason codes reported per record by batch runs.
const (
	ReasonMissingBranch   = "missing_branch"
	ReasonResourceBusy    = "resource_busy"
	ReasonLockHeld        = "lock_held"
	ReasonInvalidSerial   = "invalid_existing_serial"
	ReasonGeneratorFailed = "generator_failure"
	ReasonCollision       = "collision_retries_exhausted"
	ReasonAlreadyValid    = "already_valid"
	ReasonStoreError      = "store_error"
	ReasonConcurrent      = "concurrent_update"
	ReasonScopeTooLarge   = "scope_too_large"
)

// ReasonCode maps an error from the numbering subsystem to its reason code.
func ReasonCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingBranch):
		return ReasonMissingBranch
	case errors.Is(err, ErrResourceBusy):
		return ReasonResourceBusy
	case errors.Is(err, ErrLockHeld):
		return ReasonLockHeld
	case errors.Is(err, ErrInvalidExistingSerial):
		return ReasonInvalidSerial
	case errors.Is(err, ErrGeneratorFailure):
		return ReasonGeneratorFailed
	case errors.Is(err, ErrScopeTooLarge):
		return ReasonScopeTooLarge
	case errors.Is(err, ErrCollision):
		return ReasonCollision
	default:
		return ReasonStoreError
	}
}
