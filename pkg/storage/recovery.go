package storage

import "github.com/heliosdb/heliosdb/pkg/sqlvalue"

// RecoverInsert reconstructs a chain head from a redone WAL INSERT record
// (spec.md §4.7 pass 2). Unlike Insert, it trusts the logged xmin/row id
// outright — there is no transaction to conflict-check against during
// recovery — and advances nextRowID so later live inserts never reuse a
// recovered id.
func (t *Table) RecoverInsert(rowID, xmin uint64, values map[string]sqlvalue.Value) {
	t.mu.Lock()
	t.chainHead[rowID] = &RowVersion{RowID: rowID, Xmin: xmin, Values: values}
	if rowID > t.nextRowID.Load() {
		t.nextRowID.Store(rowID)
	}
	t.mu.Unlock()
}

// RecoverUpdate closes out the current head (xmax = xmin of the update, by
// WAL convention the updating tx's id) and chains the redone version on
// top of it.
func (t *Table) RecoverUpdate(rowID, xmin uint64, values map[string]sqlvalue.Value) {
	t.mu.Lock()
	head := t.chainHead[rowID]
	next := &RowVersion{RowID: rowID, Xmin: xmin, Values: values, Next: head}
	if head != nil {
		head.Xmax = xmin
	}
	t.chainHead[rowID] = next
	t.mu.Unlock()
}

// RecoverDelete closes out the current head without chaining a replacement.
func (t *Table) RecoverDelete(rowID, xmax uint64) {
	t.mu.Lock()
	if head := t.chainHead[rowID]; head != nil {
		head.Xmax = xmax
	}
	t.mu.Unlock()
}

// RebuildIndexes repopulates every secondary and vector index from each
// row's current live (xmax == 0) head. Called once after WAL redo
// completes, since HNSW structural mutations are never individually logged
// (spec.md §4.7): the row store is the source of truth to re-derive them
// from.
func (t *Table) RebuildIndexes() {
	t.mu.RLock()
	heads := make(map[uint64]*RowVersion, len(t.chainHead))
	for id, v := range t.chainHead {
		heads[id] = v
	}
	t.mu.RUnlock()

	for rowID, head := range heads {
		if head.Xmax == 0 {
			t.addToIndexes(rowID, head.Values)
		}
	}
}
