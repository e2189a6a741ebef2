package secondary

import (
	"context"
	"time"

	"github.com/example/wfm/internal/core/serial"
)

// SequenceCounterRepository is the durable ledger of the last issued serial per scope.
type SequenceCounterRepository interface {
	// Get returns the counter for a scope, or nil when none exists.
	Get(ctx context.Context, scope serial.Scope) (*SequenceCounterRecord, error)

	// Create inserts a counter. Fails if one already exists for the scope.
	Create(ctx context.Context, scope serial.Scope, lastNumber int) error

	// SetIfGreater raises last_number to n, creating the counter if needed.
	// It never lowers the value. Returns true when a write happened.
	SetIfGreater(ctx context.Context, scope serial.Scope, n int) (bool, error)

	// List returns all counters ordered by sequence, year, branch.
	List(ctx context.Context) ([]*SequenceCounterRecord, error)
}

// SequenceCounterRecord represents a counter as stored in persistence.
type SequenceCounterRecord struct {
	Scope      serial.Scope
	LastNumber int
	UpdatedAt  time.Time
}

// KVStore is a transactional key-value store with compare-and-swap on version tokens.
// Used for allocator counters and distributed locks.
type KVStore interface {
	// Get returns the entry for key. Absent keys return a zero entry (Version 0).
	// Expired entries are returned with their version so callers can CAS over them.
	Get(ctx context.Context, key string) (KVEntry, error)

	// CompareAndSwap writes value only if the current version equals expected.
	// ttl <= 0 means no expiry. Returns false on conflict.
	CompareAndSwap(ctx context.Context, key string, expected uint64, value []byte, ttl time.Duration) (bool, error)

	// SetWithTTL writes value unconditionally.
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key if the current version equals expected.
	Delete(ctx context.Context, key string, expected uint64) (bool, error)
}

// KVEntry is a value with its version token.
type KVEntry struct {
	Value     []byte
	Version   uint64
	ExpiresAt time.Time // Zero means no expiry
}

// Live reports whether the entry exists and has not expired at now.
func (e KVEntry) Live(now time.Time) bool {
	if e.Version == 0 || e.Value == nil {
		return false
	}
	return e.ExpiresAt.IsZero() || now.Before(e.ExpiresAt)
}
