package storage

import (
	"testing"

	"github.com/heliosdb/heliosdb/pkg/clog"
	"github.com/heliosdb/heliosdb/pkg/txn"
)

func TestVacuumDropsTombstoneUnreachableByAnySnapshot(t *testing.T) {
	cl := clog.New()
	mgr := txn.NewManager(cl, nil)
	tbl := NewTable("widgets", testSchema(), nil)

	tx1 := mgr.Begin()
	id, _ := tbl.Insert(tx1, cl, nil, row(1, "gizmo"))
	must(t, mgr.Commit(tx1))

	tx2 := mgr.Begin()
	must(t, tbl.Delete(tx2, cl, nil, id))
	must(t, mgr.Commit(tx2))

	horizon := mgr.OldestActiveTx()
	stats := tbl.Vacuum(horizon, cl)
	if stats.VersionsRemoved == 0 {
		t.Fatalf("expected at least one version removed, got %+v", stats)
	}
	if tbl.Head(id) != nil {
		t.Fatal("expected tombstoned row to be fully dropped")
	}
}

func TestVacuumKeepsVersionVisibleToActiveSnapshot(t *testing.T) {
	cl := clog.New()
	mgr := txn.NewManager(cl, nil)
	tbl := NewTable("widgets", testSchema(), nil)

	tx1 := mgr.Begin()
	id, _ := tbl.Insert(tx1, cl, nil, row(1, "gizmo"))
	must(t, mgr.Commit(tx1))

	reader := mgr.Begin() // long-running snapshot predating the update below

	tx2 := mgr.Begin()
	must(t, tbl.Update(tx2, cl, nil, id, row(1, "widget")))
	must(t, mgr.Commit(tx2))

	// reader is still active, so its tx id is the vacuum horizon.
	stats := tbl.Vacuum(reader.Snapshot.TxID, cl)
	if stats.VersionsRemoved != 0 {
		t.Fatalf("expected nothing reclaimed while reader is active, got %+v", stats)
	}
	if v := tbl.VisibleHead(id, reader.Snapshot, cl); v == nil {
		t.Fatal("expected reader snapshot to still see the pre-update version after vacuum")
	}
	_ = mgr.Rollback(reader)
}
