// Package pebble implements the transactional key-value store on cockroachdb/pebble.
package pebble

import (
	"context"
	"encoding/binary"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/rs/zerolog"

	"github.com/example/wfm/internal/logging"
	"github.com/example/wfm/internal/ports/secondary"
)

const (
	keyLockShards = 256

	// [version:8][expires_at_unix_nano:8][flags:1][payload]
	headerSize    = 17
	flagTombstone = 1
)

// KVStore implements secondary.KVStore.
//
// Every read-compare-write runs under a per-key shard mutex, so a CAS is
// atomic with respect to every other writer of this process. Writes use
// pebble.Sync.
type KVStore struct {
	db     *pebble.DB
	closed atomic.Bool
	now    func() time.Time

	keyLocks [keyLockShards]sync.Mutex
}

var _ secondary.KVStore = (*KVStore)(nil)

// Options configures Open.
type Options struct {
	// InMemory keeps all data in a memory filesystem. Used by tests.
	InMemory bool
	Logger   zerolog.Logger
}

// Open opens (or creates) the store at dir.
func Open(dir string, opts Options) (*KVStore, error) {
	pebbleOpts := &pebble.Options{
		Logger: logging.PebbleLogger{Logger: opts.Logger},
	}
	if opts.InMemory {
		pebbleOpts.FS = vfs.NewMem()
	}

	db, err := pebble.Open(dir, pebbleOpts)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open kv store at %s", dir)
	}
	return &KVStore{db: db, now: time.Now}, nil
}

// OpenInMemory opens an empty store backed by memory.
func OpenInMemory() (*KVStore, error) {
	return Open("", Options{InMemory: true, Logger: zerolog.Nop()})
}

// Close closes the store. Safe to call more than once.
func (s *KVStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

func (s *KVStore) lockFor(key string) *sync.Mutex {
	return &s.keyLocks[xxhash.Sum64String(key)%keyLockShards]
}

// Get returns the entry for key. Absent keys return Version 0.
func (s *KVStore) Get(ctx context.Context, key string) (secondary.KVEntry, error) {
	if err := ctx.Err(); err != nil {
		return secondary.KVEntry{}, err
	}
	return s.read(key)
}

// CompareAndSwap writes value only if the stored version equals expected.
func (s *KVStore) CompareAndSwap(ctx context.Context, key string, expected uint64, value []byte, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if value == nil {
		value = []byte{}
	}

	mu := s.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	current, err := s.read(key)
	if err != nil {
		return false, err
	}
	if current.Version != expected {
		return false, nil
	}
	return true, s.write(key, current.Version+1, value, ttl, 0)
}

// SetWithTTL writes value unconditionally, bumping the version.
func (s *KVStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}

	mu := s.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	current, err := s.read(key)
	if err != nil {
		return err
	}
	return s.write(key, current.Version+1, value, ttl, 0)
}

// Delete tombstones key if the stored version equals expected. The tombstone
// keeps the version so a later CAS against a stale token still fails.
func (s *KVStore) Delete(ctx context.Context, key string, expected uint64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	mu := s.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	current, err := s.read(key)
	if err != nil {
		return false, err
	}
	if current.Version == 0 || current.Version != expected {
		return false, nil
	}
	return true, s.write(key, current.Version+1, nil, 0, flagTombstone)
}

func (s *KVStore) read(key string) (secondary.KVEntry, error) {
	raw, closer, err := s.db.Get([]byte(key))
	if err == pebble.ErrNotFound {
		return secondary.KVEntry{}, nil
	}
	if err != nil {
		return secondary.KVEntry{}, errors.Wrapf(err, "failed to read %s", key)
	}
	defer closer.Close()

	return decodeEntry(raw)
}

func (s *KVStore) write(key string, version uint64, value []byte, ttl time.Duration, flags byte) error {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = s.now().Add(ttl)
	}
	if err := s.db.Set([]byte(key), encodeEntry(version, expiresAt, flags, value), pebble.Sync); err != nil {
		return errors.Wrapf(err, "failed to write %s", key)
	}
	return nil
}

func encodeEntry(version uint64, expiresAt time.Time, flags byte, value []byte) []byte {
	buf := make([]byte, headerSize+len(value))
	binary.BigEndian.PutUint64(buf[0:8], version)
	if !expiresAt.IsZero() {
		binary.BigEndian.PutUint64(buf[8:16], uint64(expiresAt.UnixNano()))
	}
	buf[16] = flags
	copy(buf[headerSize:], value)
	return buf
}

func decodeEntry(raw []byte) (secondary.KVEntry, error) {
	if len(raw) < headerSize {
		return secondary.KVEntry{}, errors.Newf("corrupt kv entry: %d bytes", len(raw))
	}

	entry := secondary.KVEntry{Version: binary.BigEndian.Uint64(raw[0:8])}
	if nanos := binary.BigEndian.Uint64(raw[8:16]); nanos != 0 {
		entry.ExpiresAt = time.Unix(0, int64(nanos))
	}
	if raw[16]&flagTombstone == 0 {
		// pebble owns raw until the closer runs
		entry.Value = append([]byte{}, raw[headerSize:]...)
	}
	return entry, nil
}
