package app

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/example/wfm/internal/core/serial"
	"github.com/example/wfm/internal/ports/primary"
	"github.com/example/wfm/internal/ports/secondary"
)

var errCASConflict = errors.New("counter changed concurrently")

// AtomicAllocator issues serials with compare-and-swap increments on the KV
// store. For one scope no two calls ever commit the same number.
//
// The SQL ledger is read on every attempt and the base is the larger of the
// two counters, so losing or rolling back the KV store cannot reissue a
// number the ledger has seen.
type AtomicAllocator struct {
	kv     secondary.KVStore
	ledger secondary.SequenceCounterRepository
	opts   NumberingOptions
	logger zerolog.Logger
}

// NewAtomicAllocator creates an AtomicAllocator.
func NewAtomicAllocator(kv secondary.KVStore, ledger secondary.SequenceCounterRepository, opts NumberingOptions, logger zerolog.Logger) *AtomicAllocator {
	return &AtomicAllocator{
		kv:     kv,
		ledger: ledger,
		opts:   opts,
		logger: logger.With().Str("component", "atomic_allocator").Logger(),
	}
}

func counterKey(scope serial.Scope) string {
	return "counter/" + scope.Key()
}

// Allocate returns the next serial for kind and branch in the year of anchor.
func (a *AtomicAllocator) Allocate(ctx context.Context, kind, branchID string, anchor time.Time) (string, error) {
	if branchID == "" {
		return "", errors.Wrap(serial.ErrMissingBranch, "allocate")
	}
	scope := serial.ScopeFor(a.opts.Mode, kind, branchID, serial.YearOf(anchor, a.opts.loc()))
	return a.AllocateInScope(ctx, scope)
}

// AllocateInScope issues the next serial of scope.
func (a *AtomicAllocator) AllocateInScope(ctx context.Context, scope serial.Scope) (string, error) {
	key := counterKey(scope)
	var (
		issued   int
		attempts int
	)

	op := func() error {
		attempts++
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		entry, err := a.kv.Get(ctx, key)
		if err != nil {
			return backoff.Permanent(err)
		}
		current, err := a.base(ctx, scope, entry)
		if err != nil {
			return backoff.Permanent(err)
		}

		candidate := current + 1
		if candidate > serial.MaxSequence {
			return backoff.Permanent(errors.Wrapf(serial.ErrGeneratorFailure, "scope %s exhausted at %d", scope, current))
		}

		ok, err := a.kv.CompareAndSwap(ctx, key, entry.Version, encodeCounter(candidate), 0)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return errCASConflict
		}
		issued = candidate
		return nil
	}

	err := backoff.Retry(op, a.backOff(ctx))
	switch {
	case errors.Is(err, errCASConflict):
		a.logger.Warn().Str("scope", scope.String()).Int("attempt", attempts).Msg("counter contention, giving up")
		return "", errors.Wrapf(serial.ErrResourceBusy, "scope %s after %d attempts", scope, attempts)
	case err != nil:
		return "", err
	}

	if _, err := a.ledger.SetIfGreater(ctx, scope, issued); err != nil {
		a.logger.Warn().Err(err).Str("scope", scope.String()).Int("last_number", issued).Msg("ledger update failed")
	}

	value, err := serial.Format(issued, scope.Year)
	if err != nil {
		return "", err
	}
	a.logger.Debug().Str("scope", scope.String()).Str("serial", value).Int("attempt", attempts).Msg("serial allocated")
	return value, nil
}

// Peek returns the last issued number of scope.
func (a *AtomicAllocator) Peek(ctx context.Context, scope serial.Scope) (int, error) {
	entry, err := a.kv.Get(ctx, counterKey(scope))
	if err != nil {
		return 0, err
	}
	return a.base(ctx, scope, entry)
}

// EnsureAtLeast raises the KV counter of scope to n.
func (a *AtomicAllocator) EnsureAtLeast(ctx context.Context, scope serial.Scope, n int) error {
	key := counterKey(scope)
	op := func() error {
		entry, err := a.kv.Get(ctx, key)
		if err != nil {
			return backoff.Permanent(err)
		}
		if current, ok := decodeCounter(entry); ok && current >= n {
			return nil
		}
		ok, err := a.kv.CompareAndSwap(ctx, key, entry.Version, encodeCounter(n), 0)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return errCASConflict
		}
		return nil
	}

	if err := backoff.Retry(op, a.backOff(ctx)); err != nil {
		if errors.Is(err, errCASConflict) {
			return errors.Wrapf(serial.ErrResourceBusy, "raise counter %s", scope)
		}
		return err
	}
	return nil
}

// base is the larger of the KV counter and the ledger.
func (a *AtomicAllocator) base(ctx context.Context, scope serial.Scope, entry secondary.KVEntry) (int, error) {
	current, _ := decodeCounter(entry)

	rec, err := a.ledger.Get(ctx, scope)
	if err != nil {
		return 0, errors.Wrapf(err, "read ledger %s", scope)
	}
	if rec != nil && rec.LastNumber > current {
		current = rec.LastNumber
	}
	return current, nil
}

func (a *AtomicAllocator) backOff(ctx context.Context) backoff.BackOff {
	attempts := a.opts.AllocatorAttempts
	if attempts < 1 {
		attempts = 1
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = a.opts.BackoffMin
	b.MaxInterval = a.opts.BackoffMax
	b.RandomizationFactor = 0.5
	b.Multiplier = 2
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

func encodeCounter(n int) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(n))
	return buf
}

func decodeCounter(entry secondary.KVEntry) (int, bool) {
	if len(entry.Value) != 8 {
		return 0, false
	}
	return int(binary.BigEndian.Uint64(entry.Value)), true
}

var _ primary.ScopedAllocator = (*AtomicAllocator)(nil)

// ListCounters returns every ledger scope with the matching KV value.
func (a *AtomicAllocator) ListCounters(ctx context.Context) ([]*primary.Counter, error) {
	records, err := a.ledger.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*primary.Counter, 0, len(records))
	for _, r := range records {
		entry, err := a.kv.Get(ctx, counterKey(r.Scope))
		if err != nil {
			return nil, err
		}
		kv, _ := decodeCounter(entry)
		out = append(out, &primary.Counter{Scope: r.Scope, Ledger: r.LastNumber, KV: kv, UpdatedAt: r.UpdatedAt})
	}
	return out, nil
}

var _ primary.CounterReader = (*AtomicAllocator)(nil)
