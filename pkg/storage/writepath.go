package storage

import (
	"github.com/heliosdb/heliosdb/pkg/clog"
	"github.com/heliosdb/heliosdb/pkg/dberrors"
	"github.com/heliosdb/heliosdb/pkg/sqlvalue"
	"github.com/heliosdb/heliosdb/pkg/txn"
	"github.com/heliosdb/heliosdb/pkg/wal"
)

// conflicts reports whether head has already been claimed by a writer this
// transaction must not barge ahead of (spec.md §4.3): a live xmax belonging
// to another transaction that is not known-aborted, or a head chained by
// another transaction's UPDATE whose xmin this snapshot cannot see, is a
// write-write conflict under snapshot isolation, whether that writer is
// still in flight or has already committed. A stale claim left behind by an
// aborted writer is not a conflict.
func conflicts(head *RowVersion, tx *txn.Txn, cl *clog.CLog) bool {
	if head.Xmax != 0 && head.Xmax != tx.ID && !cl.IsAborted(head.Xmax) {
		return true
	}
	return head.Xmin != tx.ID && !cl.IsAborted(head.Xmin) && !txn.Visible(head.Xmin, 0, tx.Snapshot, cl)
}

// Insert creates a new row, returning its row id. The new version's xmin is
// tx.ID; it becomes visible to other transactions only once tx commits.
func (t *Table) Insert(tx *txn.Txn, cl *clog.CLog, log *wal.Log, values map[string]sqlvalue.Value) (uint64, error) {
	if err := t.validate(values); err != nil {
		return 0, err
	}

	rowID := t.nextRowID.Add(1)
	stored := cloneValueMap(values)
	version := &RowVersion{RowID: rowID, Xmin: tx.ID, Values: stored}

	t.mu.Lock()
	t.chainHead[rowID] = version
	t.mu.Unlock()

	t.addToIndexes(rowID, stored)
	tx.MarkWrite(t.Name, rowID)
	tx.PushUndo(func() {
		t.mu.Lock()
		delete(t.chainHead, rowID)
		t.mu.Unlock()
		t.removeFromIndexes(rowID, stored)
	})

	if log != nil {
		doc, err := sqlvalue.EncodeMap(stored)
		if err != nil {
			return 0, &dberrors.IOError{Op: "encode insert payload", Err: err}
		}
		if err := log.LogInsert(tx.ID, t.Name, rowID, doc); err != nil {
			return 0, &dberrors.IOError{Op: "wal insert record", Err: err}
		}
	}
	return rowID, nil
}

// Update closes out rowID's current version (xmax = tx.ID) and chains a new
// one (xmin = tx.ID) on top of it, per spec.md §4.3's rule that UPDATE
// always writes a fresh full-value version rather than an in-place diff.
func (t *Table) Update(tx *txn.Txn, cl *clog.CLog, log *wal.Log, rowID uint64, values map[string]sqlvalue.Value) error {
	if err := t.validate(values); err != nil {
		return err
	}

	t.mu.Lock()
	head := t.chainHead[rowID]
	if head == nil {
		t.mu.Unlock()
		return &dberrors.NotFound{Table: t.Name, RowID: rowID}
	}
	if conflicts(head, tx, cl) {
		t.mu.Unlock()
		return &dberrors.SerializationFailure{Table: t.Name, RowID: rowID}
	}

	oldXmax := head.Xmax
	stored := cloneValueMap(values)
	next := &RowVersion{RowID: rowID, Xmin: tx.ID, Values: stored, Next: head}
	head.Xmax = tx.ID
	t.chainHead[rowID] = next
	t.mu.Unlock()

	t.reindexForUpdate(rowID, head.Values, stored)
	tx.MarkWrite(t.Name, rowID)
	tx.PushUndo(func() {
		t.mu.Lock()
		head.Xmax = oldXmax
		t.chainHead[rowID] = head
		t.mu.Unlock()
		t.reindexForUpdate(rowID, stored, head.Values)
	})

	if log != nil {
		doc, err := sqlvalue.EncodeMap(stored)
		if err != nil {
			return &dberrors.IOError{Op: "encode update payload", Err: err}
		}
		if err := log.LogUpdate(tx.ID, t.Name, rowID, doc); err != nil {
			return &dberrors.IOError{Op: "wal update record", Err: err}
		}
	}
	return nil
}

// Delete closes out rowID's current version (xmax = tx.ID) without chaining
// a replacement. The chain head itself is left in place — it is the tail a
// later snapshot with an older cut point may still need to see — and is
// only unlinked by VACUUM once no snapshot can reach it (spec.md §4.8).
func (t *Table) Delete(tx *txn.Txn, cl *clog.CLog, log *wal.Log, rowID uint64) error {
	t.mu.Lock()
	head := t.chainHead[rowID]
	if head == nil {
		t.mu.Unlock()
		return &dberrors.NotFound{Table: t.Name, RowID: rowID}
	}
	if conflicts(head, tx, cl) {
		t.mu.Unlock()
		return &dberrors.SerializationFailure{Table: t.Name, RowID: rowID}
	}

	oldXmax := head.Xmax
	head.Xmax = tx.ID
	t.mu.Unlock()

	t.removeFromIndexes(rowID, head.Values)
	tx.MarkWrite(t.Name, rowID)
	tx.PushUndo(func() {
		t.mu.Lock()
		head.Xmax = oldXmax
		t.mu.Unlock()
		t.addToIndexes(rowID, head.Values)
	})

	if log != nil {
		if err := log.LogDelete(tx.ID, t.Name, rowID); err != nil {
			return &dberrors.IOError{Op: "wal delete record", Err: err}
		}
	}
	return nil
}

func cloneValueMap(values map[string]sqlvalue.Value) map[string]sqlvalue.Value {
	out := make(map[string]sqlvalue.Value, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}
