package app

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/example/wfm/internal/core/serial"
	"github.com/example/wfm/internal/ports/secondary"
)

// Lock is a held distributed lock.
type Lock struct {
	Key        string
	Owner      string
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

type lockValue struct {
	Owner      string    `json:"owner"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// LockManager grants short-lived per-scope locks through KV compare-and-swap.
// At most one live lock exists per key; an expired lock can be taken over.
type LockManager struct {
	kv     secondary.KVStore
	now    func() time.Time
	logger zerolog.Logger
}

// NewLockManager creates a LockManager.
func NewLockManager(kv secondary.KVStore, logger zerolog.Logger) *LockManager {
	return &LockManager{kv: kv, now: time.Now, logger: logger.With().Str("component", "lock_manager").Logger()}
}

func lockKey(name string, scope serial.Scope) string {
	return "lock/" + name + "/" + scope.Key()
}

// Acquire takes the lock (name, scope) for ttl. A live lock held by anyone,
// or losing the CAS race, returns serial.ErrLockHeld.
func (m *LockManager) Acquire(ctx context.Context, name string, scope serial.Scope, ttl time.Duration) (*Lock, error) {
	key := lockKey(name, scope)
	now := m.now()

	entry, err := m.kv.Get(ctx, key)
	if err != nil {
		return nil, errors.Wrapf(err, "read lock %s", key)
	}
	if entry.Live(now) {
		return nil, errors.Wrapf(serial.ErrLockHeld, "%s held until %s", key, entry.ExpiresAt.Format(time.RFC3339))
	}

	value := lockValue{Owner: uuid.NewString(), AcquiredAt: now.UTC()}
	payload, err := json.Marshal(value)
	if err != nil {
		return nil, errors.Wrap(err, "encode lock")
	}

	ok, err := m.kv.CompareAndSwap(ctx, key, entry.Version, payload, ttl)
	if err != nil {
		return nil, errors.Wrapf(err, "write lock %s", key)
	}
	if !ok {
		return nil, errors.Wrapf(serial.ErrLockHeld, "%s taken concurrently", key)
	}

	m.logger.Debug().Str("lock", key).Str("owner", value.Owner).Dur("ttl", ttl).Msg("lock acquired")
	return &Lock{Key: key, Owner: value.Owner, AcquiredAt: now, ExpiresAt: now.Add(ttl)}, nil
}

// Release deletes the lock if it is still owned by lock.Owner. A lock that
// expired and was taken over is left alone.
func (m *LockManager) Release(ctx context.Context, lock *Lock) error {
	if lock == nil {
		return nil
	}

	entry, err := m.kv.Get(ctx, lock.Key)
	if err != nil {
		return errors.Wrapf(err, "read lock %s", lock.Key)
	}
	if entry.Value == nil {
		return nil
	}

	var current lockValue
	if err := json.Unmarshal(entry.Value, &current); err != nil {
		return errors.Wrapf(err, "decode lock %s", lock.Key)
	}
	if current.Owner != lock.Owner {
		m.logger.Warn().Str("lock", lock.Key).Str("owner", lock.Owner).Msg("lock lost before release")
		return nil
	}

	if _, err := m.kv.Delete(ctx, lock.Key, entry.Version); err != nil {
		return errors.Wrapf(err, "delete lock %s", lock.Key)
	}
	return nil
}
