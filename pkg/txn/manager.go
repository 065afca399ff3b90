// Package txn implements the Transaction Manager and Visibility Oracle
// (spec.md §4.1, §4.2): monotonic tx id allocation, snapshot construction,
// and commit/rollback against the CLOG. It generalizes the teacher's
// TransactionRegistry + LSNTracker (a single linearizable "now" counter)
// into full MVCC: every transaction gets a snapshot with its own active set
// instead of one global cut point, and CLOG — not a bare LSN comparison —
// decides visibility.
package txn

import (
	"sync"
	"sync/atomic"

	"github.com/heliosdb/heliosdb/pkg/clog"
	"github.com/heliosdb/heliosdb/pkg/dberrors"
)

// WAL is the subset of the write-ahead log the transaction manager drives
// directly: BEGIN/COMMIT/ABORT records. The row store logs its own
// INSERT/UPDATE/DELETE records through a separate path (pkg/storage) since
// those carry table/row payloads the manager has no business knowing about.
type WAL interface {
	LogBegin(txID uint64) error
	LogCommit(txID uint64) error
	LogAbort(txID uint64) error
}

// Manager owns tx id allocation, the active-transaction set, and the CLOG.
type Manager struct {
	nextID atomic.Uint64

	mu     sync.Mutex // guards active; snapshot construction is serialized with it (spec.md §4.1)
	active map[uint64]*Txn

	clog *clog.CLog
	wal  WAL
}

// NewManager constructs a Manager. wal may be nil for an in-memory-only
// database (no durability); clg is shared with recovery and the executor's
// visibility checks.
func NewManager(clg *clog.CLog, wal WAL) *Manager {
	return &Manager{
		active: make(map[uint64]*Txn),
		clog:   clg,
		wal:    wal,
	}
}

// CLog exposes the shared commit log, e.g. for the row store's visibility
// checks and for VACUUM's reachability scan.
func (m *Manager) CLog() *clog.CLog { return m.clog }

// Begin allocates a new tx id, builds its snapshot under the same lock that
// protects the active set (so snapshot construction and active-set mutation
// are strictly serialized, per spec.md §4.1), and registers it.
func (m *Manager) Begin() *Txn {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID.Add(1)
	snap := newSnapshot(id, m.active)
	tx := newTxn(id, snap)

	m.clog.MarkInProgress(id)
	m.active[id] = tx
	return tx
}

// Commit makes the transaction's COMMIT record durable, flips CLOG, and
// releases the journal. WAL durability must precede the CLOG flip — a crash
// between the two still recovers as committed; the reverse ordering would
// not (spec.md §4.1).
func (m *Manager) Commit(tx *Txn) error {
	tx.mu.Lock()
	if tx.state != Active {
		tx.mu.Unlock()
		return dberrors.NewInvariant("commit called on non-active transaction %d", tx.ID)
	}
	tx.mu.Unlock()

	if m.wal != nil {
		if err := m.wal.LogCommit(tx.ID); err != nil {
			return &dberrors.IOError{Op: "wal commit record", Err: err}
		}
	}

	m.clog.MarkCommitted(tx.ID)

	tx.mu.Lock()
	tx.state = Committed
	tx.undo = nil // committed writes are never unwound
	tx.mu.Unlock()

	m.mu.Lock()
	delete(m.active, tx.ID)
	m.mu.Unlock()
	return nil
}

// Rollback logs an ABORT record, flips CLOG, unwinds the undo journal
// (unlinking inserted versions, restoring xmax=0 on versions this tx marked
// for delete/update, and reverting index mutations via the closures the
// write path registered), and releases the transaction.
func (m *Manager) Rollback(tx *Txn) error {
	tx.mu.Lock()
	if tx.state != Active {
		tx.mu.Unlock()
		return nil // rollback is idempotent for an already-finished tx
	}
	tx.state = RolledBack
	tx.mu.Unlock()

	if m.wal != nil {
		if err := m.wal.LogAbort(tx.ID); err != nil {
			return &dberrors.IOError{Op: "wal abort record", Err: err}
		}
	}
	m.clog.MarkAborted(tx.ID)

	tx.undoAll()

	m.mu.Lock()
	delete(m.active, tx.ID)
	m.mu.Unlock()
	return nil
}

// OldestActiveTx returns the minimum tx id currently active, used by VACUUM
// to compute its reclamation horizon. Returns the next tx id that would be
// allocated if nothing is active — conservative horizon with no activity.
func (m *Manager) OldestActiveTx() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	oldest := m.nextID.Load() + 1
	for id := range m.active {
		if id < oldest {
			oldest = id
		}
	}
	return oldest
}

// FastForward advances the next-id counter past txID if it has not already
// passed it, so that recovery can replay historical WAL records without
// risking a freshly begun transaction reusing an id seen in the log.
func (m *Manager) FastForward(txID uint64) {
	for {
		cur := m.nextID.Load()
		if cur >= txID {
			return
		}
		if m.nextID.CompareAndSwap(cur, txID) {
			return
		}
	}
}

// ActiveTxIDs returns a snapshot of currently active transaction ids, used
// by recovery-adjacent diagnostics and tests.
func (m *Manager) ActiveTxIDs() []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]uint64, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	return ids
}
