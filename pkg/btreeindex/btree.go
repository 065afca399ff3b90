// Package btreeindex implements the ordered B-tree secondary index contract
// from spec.md §4.4: an ordered map from a scalar column value to a set of
// row ids, supporting point lookup, range scan, and key-ordered bulk
// iteration.
//
// The tree itself (B+Tree with preventive top-down splits) is carried over
// from the teacher's pkg/btree; concurrency here is one index-wide RWMutex
// rather than per-node latches. What changes is
// the key: the teacher's BPlusTree maps one Comparable key to one int64
// value (a primary-key index), which silently overwrites on a duplicate key
// (see Node.UpsertNonFull). spec.md's secondary index is not duplicate-key
// unique — "the same key may map to multiple rows" — so instead of
// generalizing the tree to multi-valued leaves, HeliosDB stores a composite
// key (column value, row id) per entry: every entry is then unique by
// construction, entries for the same column value sort contiguously
// (value compared first, row id breaks ties), and a point/range lookup
// walks the contiguous run via the leaf linked list the teacher's tree
// already maintains for cursor scans.
package btreeindex

import (
	"sort"
	"sync"

	"github.com/heliosdb/heliosdb/pkg/sqlvalue"
)

// entryKey is the composite (value, row id) key stored in the tree.
type entryKey struct {
	Value sqlvalue.Value
	RowID uint64
}

// Compare orders by value first, then by row id, so every entry is unique
// and entries sharing a value are contiguous in key order.
func (k entryKey) Compare(other entryKey) int {
	if c := k.Value.Compare(other.Value); c != 0 {
		return c
	}
	switch {
	case k.RowID < other.RowID:
		return -1
	case k.RowID > other.RowID:
		return 1
	default:
		return 0
	}
}

const defaultDegree = 32 // minimum degree T for the underlying B+Tree nodes

// Index is an ordered secondary index over one scalar column.
type Index struct {
	mu   sync.RWMutex
	tree *bTree
}

// New builds an empty index.
func New() *Index {
	return &Index{tree: newBTree(defaultDegree)}
}

// Insert adds (value, rowID) to the index. Maintained on every row store
// INSERT/UPDATE.
func (idx *Index) Insert(value sqlvalue.Value, rowID uint64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.tree.insert(entryKey{Value: value, RowID: rowID})
}

// Remove deletes the (value, rowID) entry. Maintained on every row store
// UPDATE (old key) and DELETE.
func (idx *Index) Remove(value sqlvalue.Value, rowID uint64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.tree.remove(entryKey{Value: value, RowID: rowID})
}

// Lookup returns every row id indexed under value (callers needing key
// order across values should use RangeScan).
func (idx *Index) Lookup(value sqlvalue.Value) []uint64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var out []uint64
	idx.tree.scanFrom(entryKey{Value: value}, func(k entryKey) bool {
		if k.Value.Compare(value) != 0 {
			return false
		}
		out = append(out, k.RowID)
		return true
	})
	return out
}

// RangeBound is one end of a RangeScan: Value is included when Inclusive is
// set, and Unbounded ignores Value and leaves that end open.
type RangeBound struct {
	Value     sqlvalue.Value
	Inclusive bool
	Unbounded bool
}

// RangeScan walks entries in ascending (value, row id) order from lo to hi
// and calls visit for each row id found; visit returning false stops the
// scan early.
func (idx *Index) RangeScan(lo, hi RangeBound, visit func(rowID uint64) bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	start := entryKey{}
	if !lo.Unbounded {
		start = entryKey{Value: lo.Value}
	}
	idx.tree.scanFrom(start, func(k entryKey) bool {
		if !lo.Unbounded {
			c := k.Value.Compare(lo.Value)
			if c < 0 || (c == 0 && !lo.Inclusive) {
				return true // keep scanning forward past the exclusive boundary
			}
		}
		if !hi.Unbounded {
			c := k.Value.Compare(hi.Value)
			if c > 0 || (c == 0 && !hi.Inclusive) {
				return false
			}
		}
		return visit(k.RowID)
	})
}

// All iterates every entry in ascending key order — used for full-index
// bulk scans (e.g. rebuilding a table file).
func (idx *Index) All(visit func(value sqlvalue.Value, rowID uint64) bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	idx.tree.scanFrom(entryKey{}, func(k entryKey) bool {
		return visit(k.Value, k.RowID)
	})
}

// sortRowIDs is a small helper used by tests and callers that want
// deterministic output.
func sortRowIDs(ids []uint64) []uint64 {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
