package txn

import "github.com/heliosdb/heliosdb/pkg/clog"

// Visible implements the visibility oracle (spec.md §4.2) as a pure function
// of (xmin, xmax, CLOG, snapshot). xmax == 0 means the version is currently
// live (never deleted/updated-away).
func Visible(xmin, xmax uint64, snap Snapshot, cl *clog.CLog) bool {
	if !xminVisible(xmin, snap, cl) {
		return false
	}
	if xmax == 0 {
		return true
	}
	if xmax == snap.TxID {
		// Own delete/update: hide immediately from the deleting tx itself.
		return false
	}
	if cl.IsCommitted(xmax) && xmax <= snap.TxID && !snap.activeAt(xmax) {
		return false
	}
	return true
}

func xminVisible(xmin uint64, snap Snapshot, cl *clog.CLog) bool {
	if xmin == snap.TxID {
		return true // a transaction always sees its own writes
	}
	if !cl.IsCommitted(xmin) {
		return false
	}
	if xmin > snap.TxID {
		return false
	}
	if snap.activeAt(xmin) {
		return false // was concurrently active at snapshot time
	}
	return true
}
