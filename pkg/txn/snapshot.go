package txn

import (
	"sort"
	"time"
)

// Snapshot is the immutable view a transaction reads through (spec.md §3).
// ActiveSet excludes the snapshot's own tx_id.
type Snapshot struct {
	TxID      uint64
	ActiveSet []uint64
	WallTime  time.Time
}

// activeAt returns true if txID was in the active set at snapshot
// construction time.
func (s Snapshot) activeAt(txID uint64) bool {
	i := sort.Search(len(s.ActiveSet), func(i int) bool { return s.ActiveSet[i] >= txID })
	return i < len(s.ActiveSet) && s.ActiveSet[i] == txID
}

func newSnapshot(txID uint64, active map[uint64]*Txn) Snapshot {
	set := make([]uint64, 0, len(active))
	for id := range active {
		if id != txID {
			set = append(set, id)
		}
	}
	sort.Slice(set, func(i, j int) bool { return set[i] < set[j] })
	return Snapshot{TxID: txID, ActiveSet: set, WallTime: time.Now()}
}
