package txn

import (
	"testing"

	"github.com/heliosdb/heliosdb/pkg/clog"
)

func TestBeginAssignsMonotonicIDsAndExcludesSelf(t *testing.T) {
	m := NewManager(clog.New(), nil)
	t1 := m.Begin()
	t2 := m.Begin()

	if t2.ID <= t1.ID {
		t.Fatalf("tx ids must be monotonically increasing")
	}
	for _, id := range t2.Snapshot.ActiveSet {
		if id == t2.ID {
			t.Fatalf("snapshot active set must exclude self")
		}
	}
	found := false
	for _, id := range t2.Snapshot.ActiveSet {
		if id == t1.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("t2 should see t1 as active")
	}
}

func TestCommitRemovesFromActiveSet(t *testing.T) {
	m := NewManager(clog.New(), nil)
	t1 := m.Begin()
	if err := m.Commit(t1); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if !m.CLog().IsCommitted(t1.ID) {
		t.Fatalf("clog should mark tx committed")
	}

	t2 := m.Begin()
	for _, id := range t2.Snapshot.ActiveSet {
		if id == t1.ID {
			t.Fatalf("committed tx must not remain in later active sets")
		}
	}
}

func TestRollbackRunsUndoInReverse(t *testing.T) {
	m := NewManager(clog.New(), nil)
	tx := m.Begin()

	var order []int
	tx.PushUndo(func() { order = append(order, 1) })
	tx.PushUndo(func() { order = append(order, 2) })
	tx.PushUndo(func() { order = append(order, 3) })

	if err := m.Rollback(tx); err != nil {
		t.Fatalf("rollback failed: %v", err)
	}
	if !m.CLog().IsAborted(tx.ID) {
		t.Fatalf("clog should mark tx aborted")
	}
	want := []int{3, 2, 1}
	if len(order) != len(want) {
		t.Fatalf("undo order length mismatch: %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("undo not applied in reverse order: %v", order)
		}
	}
}

func TestOldestActiveTx(t *testing.T) {
	m := NewManager(clog.New(), nil)
	t1 := m.Begin()
	t2 := m.Begin()
	_ = t2
	if m.OldestActiveTx() != t1.ID {
		t.Fatalf("expected oldest active to be t1")
	}
	m.Commit(t1)
	if m.OldestActiveTx() != t2.ID {
		t.Fatalf("expected oldest active to be t2 after t1 commits")
	}
}
