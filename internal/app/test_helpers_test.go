package app

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/example/wfm/internal/core/serial"
	"github.com/example/wfm/internal/ports/secondary"
)

// ============================================================================
// In-memory secondary ports. All fakes are safe for concurrent use.
// ============================================================================

var _ secondary.RecordRepository = (*memRecords)(nil)

type memRecords struct {
	mu      sync.Mutex
	records map[string]*secondary.OperationalRecord
	writes  int
	lists   []secondary.RecordFilters
	// setSerialErr fails SetSerial for the listed record IDs.
	setSerialErr map[string]error
}

func newMemRecords() *memRecords {
	return &memRecords{records: make(map[string]*secondary.OperationalRecord), setSerialErr: make(map[string]error)}
}

func (m *memRecords) add(rec *secondary.OperationalRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.Kind == "" {
		rec.Kind = secondary.KindWorkOrder
	}
	if rec.Status == "" {
		rec.Status = secondary.StatusActive
	}
	cp := *rec
	m.records[rec.ID] = &cp
}

func (m *memRecords) serialOf(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[id].Serial
}

func (m *memRecords) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *memRecords) Create(ctx context.Context, record *secondary.OperationalRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[record.ID]; ok {
		return errors.Newf("duplicate id %s", record.ID)
	}
	cp := *record
	m.records[record.ID] = &cp
	return nil
}

func (m *memRecords) GetByID(ctx context.Context, id string) (*secondary.OperationalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, errors.Wrapf(serial.ErrNotFound, "record %s", id)
	}
	cp := *rec
	return &cp, nil
}

func (m *memRecords) List(ctx context.Context, filters secondary.RecordFilters) ([]*secondary.OperationalRecord, error) {
	m.mu.Lock()
	m.lists = append(m.lists, filters)
	m.mu.Unlock()
	return m.list(filters), nil
}

func (m *memRecords) list(filters secondary.RecordFilters) []*secondary.OperationalRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*secondary.OperationalRecord
	for _, r := range m.records {
		if filters.Kind != "" && r.Kind != filters.Kind {
			continue
		}
		if filters.Status != "" && r.Status != filters.Status {
			continue
		}
		if filters.BranchID != "" && r.BranchID != filters.BranchID {
			continue
		}
		if len(filters.BranchIDs) > 0 && r.BranchID != "" && !slices.Contains(filters.BranchIDs, r.BranchID) {
			continue
		}
		if filters.SerialInvalidFor != 0 && serial.IsValidFor(r.Serial, filters.SerialInvalidFor) {
			continue
		}
		if !filters.CreatedFrom.IsZero() && r.CreatedAt.Before(filters.CreatedFrom) {
			continue
		}
		if !filters.CreatedBefore.IsZero() && !r.CreatedAt.Before(filters.CreatedBefore) {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *secondary.OperationalRecord) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if filters.Limit > 0 && len(out) > filters.Limit {
		out = out[:filters.Limit]
	}
	return out
}

func (m *memRecords) Update(ctx context.Context, patch *secondary.RecordPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[patch.ID]
	if !ok {
		return errors.Wrapf(serial.ErrNotFound, "record %s", patch.ID)
	}
	if patch.Title != nil {
		rec.Title = *patch.Title
	}
	if patch.ProjectID != nil {
		rec.ProjectID = *patch.ProjectID
	}
	if patch.BranchID != nil {
		rec.BranchID = *patch.BranchID
	}
	if patch.Serial != nil {
		rec.Serial = *patch.Serial
	}
	if patch.PlannedAt != nil {
		rec.PlannedAt = *patch.PlannedAt
	}
	m.writes++
	return nil
}

func (m *memRecords) UpdateStatus(ctx context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return errors.Wrapf(serial.ErrNotFound, "record %s", id)
	}
	rec.Status = status
	m.writes++
	return nil
}

func (m *memRecords) SetSerial(ctx context.Context, id, expected, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.setSerialErr[id]; err != nil {
		return false, err
	}
	rec, ok := m.records[id]
	if !ok || rec.Serial != expected {
		return false, nil
	}
	rec.Serial = value
	m.writes++
	return true, nil
}

func (m *memRecords) FindBySerial(ctx context.Context, kind, value string) ([]*secondary.OperationalRecord, error) {
	all := m.list(secondary.RecordFilters{Kind: kind})
	var out []*secondary.OperationalRecord
	for _, r := range all {
		if r.Serial == value {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRecords) CreatedRange(ctx context.Context, kind string) (time.Time, time.Time, error) {
	all := m.list(secondary.RecordFilters{Kind: kind})
	if len(all) == 0 {
		return time.Time{}, time.Time{}, nil
	}
	return all[0].CreatedAt, all[len(all)-1].CreatedAt, nil
}

// listed returns the filters of every List call.
func (m *memRecords) listed() []secondary.RecordFilters {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.lists)
}

var _ secondary.ProjectRepository = (*memProjects)(nil)

type memProjects struct {
	mu       sync.Mutex
	projects map[string]*secondary.ProjectRecord
	lookups  int
}

func newMemProjects(projects ...*secondary.ProjectRecord) *memProjects {
	m := &memProjects{projects: make(map[string]*secondary.ProjectRecord)}
	for _, p := range projects {
		m.projects[p.ID] = p
	}
	return m
}

func (m *memProjects) Create(ctx context.Context, project *secondary.ProjectRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[project.ID] = project
	return nil
}

func (m *memProjects) GetByID(ctx context.Context, id string) (*secondary.ProjectRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	p, ok := m.projects[id]
	if !ok {
		return nil, errors.Wrapf(serial.ErrNotFound, "project %s", id)
	}
	return p, nil
}

func (m *memProjects) List(ctx context.Context) ([]*secondary.ProjectRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*secondary.ProjectRecord
	for _, p := range m.projects {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b *secondary.ProjectRecord) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

var _ secondary.BranchRepository = (*memBranches)(nil)

type memBranches struct {
	mu       sync.Mutex
	branches []*secondary.BranchRecord
}

func (m *memBranches) Create(ctx context.Context, branch *secondary.BranchRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.branches {
		if b.ID == branch.ID {
			return errors.Newf("branch %s exists", branch.ID)
		}
	}
	m.branches = append(m.branches, branch)
	return nil
}

func (m *memBranches) List(ctx context.Context) ([]*secondary.BranchRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.branches), nil
}

var _ secondary.AuditLogRepository = (*memAudit)(nil)

type memAudit struct {
	mu      sync.Mutex
	entries []*secondary.AuditEntry
}

func (m *memAudit) Append(ctx context.Context, entry *secondary.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *entry
	cp.ID = int64(len(m.entries) + 1)
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *memAudit) ListByRecord(ctx context.Context, recordID string) ([]*secondary.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*secondary.AuditEntry
	for _, e := range m.entries {
		if e.RecordID == recordID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memAudit) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

var _ secondary.SequenceCounterRepository = (*memLedger)(nil)

type memLedger struct {
	mu       sync.Mutex
	counters map[serial.Scope]int
	// history of every value a scope held, to check monotonicity
	history map[serial.Scope][]int
}

func newMemLedger() *memLedger {
	return &memLedger{counters: make(map[serial.Scope]int), history: make(map[serial.Scope][]int)}
}

func (m *memLedger) Get(ctx context.Context, scope serial.Scope) (*secondary.SequenceCounterRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.counters[scope]
	if !ok {
		return nil, nil
	}
	return &secondary.SequenceCounterRecord{Scope: scope, LastNumber: n}, nil
}

func (m *memLedger) Create(ctx context.Context, scope serial.Scope, lastNumber int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.counters[scope]; ok {
		return errors.Newf("counter %s exists", scope)
	}
	m.counters[scope] = lastNumber
	m.history[scope] = append(m.history[scope], lastNumber)
	return nil
}

func (m *memLedger) SetIfGreater(ctx context.Context, scope serial.Scope, n int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.counters[scope]; ok && cur >= n {
		return false, nil
	}
	m.counters[scope] = n
	m.history[scope] = append(m.history[scope], n)
	return true, nil
}

func (m *memLedger) List(ctx context.Context) ([]*secondary.SequenceCounterRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*secondary.SequenceCounterRecord
	for scope, n := range m.counters {
		out = append(out, &secondary.SequenceCounterRecord{Scope: scope, LastNumber: n})
	}
	slices.SortFunc(out, func(a, b *secondary.SequenceCounterRecord) int {
		return cmp.Compare(a.Scope.Key(), b.Scope.Key())
	})
	return out, nil
}

func (m *memLedger) value(scope serial.Scope) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[scope]
}

func (m *memLedger) monotonic(scope serial.Scope) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.IsSorted(m.history[scope])
}

var _ secondary.KVStore = (*memKV)(nil)

// memKV is a versioned map with a settable clock.
type memKV struct {
	mu      sync.Mutex
	entries map[string]secondary.KVEntry
	now     time.Time
	// casFails makes the next N CompareAndSwap calls report a conflict.
	casFails int
	casCalls int
}

func newMemKV() *memKV {
	return &memKV{entries: make(map[string]secondary.KVEntry), now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (m *memKV) clock() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *memKV) advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

func (m *memKV) Get(ctx context.Context, key string) (secondary.KVEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[key], nil
}

func (m *memKV) CompareAndSwap(ctx context.Context, key string, expected uint64, value []byte, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.casCalls++
	if m.casFails > 0 {
		m.casFails--
		return false, nil
	}
	cur := m.entries[key]
	if cur.Version != expected {
		return false, nil
	}
	m.put(key, cur.Version+1, value, ttl)
	return true, nil
}

func (m *memKV) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(key, m.entries[key].Version+1, value, ttl)
	return nil
}

func (m *memKV) Delete(ctx context.Context, key string, expected uint64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.entries[key]
	if cur.Version == 0 || cur.Version != expected {
		return false, nil
	}
	m.entries[key] = secondary.KVEntry{Version: cur.Version + 1}
	return true, nil
}

func (m *memKV) put(key string, version uint64, value []byte, ttl time.Duration) {
	if value == nil {
		value = []byte{}
	}
	entry := secondary.KVEntry{Value: append([]byte{}, value...), Version: version}
	if ttl > 0 {
		entry.ExpiresAt = m.now.Add(ttl)
	}
	m.entries[key] = entry
}

// ============================================================================
// Fixtures
// ============================================================================

func testOptions() NumberingOptions {
	opts := DefaultNumberingOptions()
	opts.BackoffMin = time.Millisecond
	opts.BackoffMax = 2 * time.Millisecond
	return opts
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func ts(t *testing.T, value string) time.Time {
	t.Helper()
	v, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("bad time %q: %v", value, err)
	}
	return v
}

func scopeB1(year int) serial.Scope {
	return serial.Scope{Sequence: secondary.KindWorkOrder, BranchID: "B1", Year: year}
}

// numbering bundles a fully wired numbering subsystem over in-memory fakes.
type numbering struct {
	records   *memRecords
	projects  *memProjects
	audit     *memAudit
	ledger    *memLedger
	kv        *memKV
	opts      NumberingOptions
	allocator *AtomicAllocator
	locks     *LockManager
	assigner  *CreationAssignerImpl
	backfill  *BackfillServiceImpl
	renumber  *RenumberServiceImpl
	guard     *DuplicateGuardImpl
}

func newNumbering(t *testing.T, mutate ...func(*NumberingOptions)) *numbering {
	t.Helper()
	opts := testOptions()
	for _, m := range mutate {
		m(&opts)
	}

	n := &numbering{
		records:  newMemRecords(),
		projects: newMemProjects(),
		audit:    &memAudit{},
		ledger:   newMemLedger(),
		kv:       newMemKV(),
		opts:     opts,
	}
	log := testLogger()
	n.allocator = NewAtomicAllocator(n.kv, n.ledger, opts, log)
	n.locks = NewLockManager(n.kv, log)
	n.locks.now = n.kv.clock
	n.assigner = NewCreationAssigner(n.records, n.projects, n.audit, n.allocator, opts, log)
	n.backfill = NewBackfillService(n.records, n.projects, n.audit, n.allocator, opts, log)
	n.renumber = NewRenumberService(n.records, n.projects, n.audit, n.ledger, n.allocator, opts, log)
	n.guard = NewDuplicateGuard(n.records, n.projects, n.audit, n.locks, n.renumber, opts, log)
	return n
}

// wo adds a work order.
func (n *numbering) wo(id, branch string, createdAt time.Time, serialNo string) {
	n.records.add(&secondary.OperationalRecord{ID: id, BranchID: branch, CreatedAt: createdAt, Serial: serialNo})
}
