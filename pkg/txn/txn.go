package txn

import "sync"

// State is a transaction's lifecycle stage.
type State uint8

const (
	Active State = iota
	Committed
	RolledBack
)

// Txn is the handle returned by Manager.Begin and threaded explicitly
// through every Database call that needs transactional context (spec.md §9
// resolves the source's thread/connection ambiguity this way: the caller
// owns the handle, there is no ambient/thread-local lookup).
type Txn struct {
	ID       uint64
	Snapshot Snapshot

	mu    sync.Mutex
	state State
	undo  []func() // LIFO journal of closures that undo one applied write

	// WriteSet tracks which row ids this transaction has touched per table,
	// mirroring spec.md §3's Transaction entity. Not consulted by the
	// visibility oracle (which only looks at xmin/xmax/CLOG) or by the row
	// store's conflict check — kept for diagnostics.
	WriteSet map[string]map[uint64]struct{}
}

func newTxn(id uint64, snap Snapshot) *Txn {
	return &Txn{ID: id, Snapshot: snap, WriteSet: make(map[string]map[uint64]struct{})}
}

// State returns the transaction's current lifecycle stage.
func (t *Txn) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// PushUndo records an undo closure. The row store pushes one per applied
// write (insert/update/delete) before reporting success, so Rollback can
// unwind them in reverse (spec.md §4.1).
func (t *Txn) PushUndo(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.undo = append(t.undo, fn)
}

// MarkWrite records that this transaction wrote rowID in table, for
// WriteSet bookkeeping.
func (t *Txn) MarkWrite(table string, rowID uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.WriteSet[table]
	if !ok {
		set = make(map[uint64]struct{})
		t.WriteSet[table] = set
	}
	set[rowID] = struct{}{}
}

// undoAll runs the journal in reverse order and clears it. Called by the
// manager under Rollback, with the transaction's state already flipped.
func (t *Txn) undoAll() {
	t.mu.Lock()
	ops := t.undo
	t.undo = nil
	t.mu.Unlock()

	for i := len(ops) - 1; i >= 0; i-- {
		ops[i]()
	}
}
