package storage

import "github.com/heliosdb/heliosdb/pkg/clog"

// VacuumStats reports what one Vacuum call reclaimed (spec.md §4.8's
// {versions_removed, chains_visited} pair, surfaced through the façade
// rather than only logged).
type VacuumStats struct {
	VersionsRemoved int
	ChainsVisited   int
}

// Vacuum walks every chain and removes a version v when it is not the chain
// head and either v.Xmin belongs to an aborted transaction (should not
// normally survive — the write path's undo journal already unwinds aborted
// writes in memory, this is a defensive backstop for anything reconstructed
// by recovery) or v.Xmax is committed and strictly before oldestActive: no
// currently active or future transaction (every one gets a tx id >=
// oldestActive) can need a version closed out before that point. A live
// chain head (xmax == 0) is never removed. A tombstone head is removed in
// the same pass once its xmax is committed and strictly before
// oldestActive and no older version is left chained behind it; until then
// it still marks the row as deleted.
func (t *Table) Vacuum(oldestActive uint64, cl *clog.CLog) VacuumStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	var stats VacuumStats
	for rowID, head := range t.chainHead {
		stats.ChainsVisited++

		prev := head
		for v := head.Next; v != nil; {
			removable := cl.IsAborted(v.Xmin) ||
				(v.Xmax != 0 && cl.IsCommitted(v.Xmax) && v.Xmax < oldestActive)
			if !removable {
				prev = v
				v = v.Next
				continue
			}
			stats.VersionsRemoved++
			next := v.Next
			prev.Next = next
			v = next
		}

		// A fully-aged tombstone head with nothing chained behind it is the
		// row id's last trace; nothing can still need it, so drop it too.
		if head.Xmax != 0 && head.Next == nil && cl.IsCommitted(head.Xmax) && head.Xmax < oldestActive {
			delete(t.chainHead, rowID)
			stats.VersionsRemoved++
		}
	}
	return stats
}
