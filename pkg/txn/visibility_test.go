package txn

import (
	"testing"

	"github.com/heliosdb/heliosdb/pkg/clog"
)

func TestVisibleOwnWrite(t *testing.T) {
	cl := clog.New()
	snap := Snapshot{TxID: 5, ActiveSet: nil}
	if !Visible(5, 0, snap, cl) {
		t.Fatalf("a tx must see its own writes even before commit")
	}
}

func TestVisibleRequiresCommitted(t *testing.T) {
	cl := clog.New()
	snap := Snapshot{TxID: 5, ActiveSet: nil}
	if Visible(3, 0, snap, cl) {
		t.Fatalf("version with uncommitted xmin must not be visible to other tx")
	}
	cl.MarkCommitted(3)
	if !Visible(3, 0, snap, cl) {
		t.Fatalf("version with committed xmin <= snapshot tx id should be visible")
	}
}

func TestVisibleHidesConcurrentlyActiveWriter(t *testing.T) {
	cl := clog.New()
	cl.MarkCommitted(3)
	snap := Snapshot{TxID: 5, ActiveSet: []uint64{3}}
	if Visible(3, 0, snap, cl) {
		t.Fatalf("version written by a tx active at snapshot time must not be visible")
	}
}

func TestVisibleHidesFutureWriter(t *testing.T) {
	cl := clog.New()
	cl.MarkCommitted(10)
	snap := Snapshot{TxID: 5}
	if Visible(10, 0, snap, cl) {
		t.Fatalf("version written after the snapshot must not be visible")
	}
}

func TestVisibleOwnDeleteIsHidden(t *testing.T) {
	cl := clog.New()
	cl.MarkCommitted(1)
	snap := Snapshot{TxID: 5}
	if Visible(1, 5, snap, cl) {
		t.Fatalf("a version this tx deleted must be hidden from itself")
	}
}

func TestVisibleCommittedDeleteHidesVersion(t *testing.T) {
	cl := clog.New()
	cl.MarkCommitted(1)
	cl.MarkCommitted(2)
	snap := Snapshot{TxID: 5}
	if Visible(1, 2, snap, cl) {
		t.Fatalf("version deleted by an earlier committed tx must be hidden")
	}
}

func TestVisibleUncommittedDeleteKeepsVersionVisible(t *testing.T) {
	cl := clog.New()
	cl.MarkCommitted(1)
	// xmax=2 never committed (still in-progress or aborted).
	snap := Snapshot{TxID: 5}
	if !Visible(1, 2, snap, cl) {
		t.Fatalf("version with uncommitted deleter must remain visible")
	}
}
