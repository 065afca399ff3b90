package storage

import (
	"sync"
	"sync/atomic"

	"github.com/heliosdb/heliosdb/pkg/btreeindex"
	"github.com/heliosdb/heliosdb/pkg/clog"
	"github.com/heliosdb/heliosdb/pkg/dberrors"
	"github.com/heliosdb/heliosdb/pkg/graph"
	"github.com/heliosdb/heliosdb/pkg/hnsw"
	"github.com/heliosdb/heliosdb/pkg/sqlvalue"
	"github.com/heliosdb/heliosdb/pkg/txn"
)

// Table owns one set of version chains plus the secondary and vector
// indexes maintained over them (spec.md §3's Ownership rule: "the table
// owns its chains").
type Table struct {
	Name   string
	Schema Schema

	mu        sync.RWMutex
	chainHead map[uint64]*RowVersion
	nextRowID atomic.Uint64
	indexes   map[string]*btreeindex.Index // scalar secondary indexes, by column name
	vectors   map[string]*hnsw.Index       // vector indexes, by column name
	edges     map[string]*graph.Store      // GraphRAG edge sets, one per vector column
}

// NewTable constructs an empty table. indexedColumns names the scalar
// columns to maintain a secondary index over; vector columns (schema kind
// KindVector) automatically get an HNSW index.
func NewTable(name string, schema Schema, indexedColumns []string) *Table {
	t := &Table{
		Name:      name,
		Schema:    schema,
		chainHead: make(map[uint64]*RowVersion),
		indexes:   make(map[string]*btreeindex.Index),
		vectors:   make(map[string]*hnsw.Index),
		edges:     make(map[string]*graph.Store),
	}
	for _, col := range indexedColumns {
		t.indexes[col] = btreeindex.New()
	}
	for _, col := range schema.Columns {
		if col.Kind == sqlvalue.KindVector {
			t.vectors[col.Name] = hnsw.New(hnsw.DefaultParams(col.Dimension))
			t.edges[col.Name] = graph.New()
		}
	}
	return t
}

// Head returns the current chain head for rowID, or nil if the row has
// never existed (or the chain was fully vacuumed, which never happens to a
// live head per spec.md §4.8).
func (t *Table) Head(rowID uint64) *RowVersion {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.chainHead[rowID]
}

// VisibleHead walks the chain for rowID newest-to-oldest and returns the
// first version visible to snap, or nil if the row is absent to it
// (spec.md §4.2).
func (t *Table) VisibleHead(rowID uint64, snap txn.Snapshot, cl *clog.CLog) *RowVersion {
	t.mu.RLock()
	v := t.chainHead[rowID]
	t.mu.RUnlock()

	for v != nil {
		if txn.Visible(v.Xmin, v.Xmax, snap, cl) {
			return v
		}
		v = v.Next
	}
	return nil
}

// Scan calls visit for every row id with a version visible to snap, in no
// particular order; visit returning false stops the scan.
func (t *Table) Scan(snap txn.Snapshot, cl *clog.CLog, visit func(rowID uint64, v *RowVersion) bool) {
	t.mu.RLock()
	heads := make([]uint64, 0, len(t.chainHead))
	for id := range t.chainHead {
		heads = append(heads, id)
	}
	t.mu.RUnlock()

	for _, id := range heads {
		v := t.VisibleHead(id, snap, cl)
		if v == nil {
			continue
		}
		if !visit(id, v) {
			return
		}
	}
}

// Index returns the secondary index over column, or nil if none exists.
func (t *Table) Index(column string) *btreeindex.Index {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.indexes[column]
}

// VectorIndex returns the HNSW index over column, or nil if column is not
// a vector column.
func (t *Table) VectorIndex(column string) *hnsw.Index {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.vectors[column]
}

// Edges returns the GraphRAG edge store paired with column's HNSW index, or
// nil if column is not a vector column.
func (t *Table) Edges(column string) *graph.Store {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.edges[column]
}

// AllRowIDs returns every row id with a chain, live or tombstoned,
// regardless of visibility — used by DDL to decide whether a table counts
// as empty (spec.md §4.8's ALTER TABLE restriction), not by query execution.
func (t *Table) AllRowIDs() []uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]uint64, 0, len(t.chainHead))
	for id := range t.chainHead {
		ids = append(ids, id)
	}
	return ids
}

// AddIndex registers a secondary index over column and backfills it from
// every row's current live (xmax == 0) head, so CREATE INDEX on a
// non-empty table is immediately usable (spec.md §4.8: "rebuild dependent
// indexes as needed").
func (t *Table) AddIndex(column string, idx *btreeindex.Index) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, head := range t.chainHead {
		if head.Xmax == 0 {
			idx.Insert(head.Values[column], head.RowID)
		}
	}
	t.indexes[column] = idx
}

// RemoveIndex drops the secondary index over column, if any.
func (t *Table) RemoveIndex(column string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.indexes, column)
}

// IndexedColumns lists the columns currently carrying a secondary B-tree
// index, for catalog persistence.
func (t *Table) IndexedColumns() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cols := make([]string, 0, len(t.indexes))
	for col := range t.indexes {
		cols = append(cols, col)
	}
	return cols
}

func (t *Table) validate(values map[string]sqlvalue.Value) error {
	for _, col := range t.Schema.Columns {
		v, ok := values[col.Name]
		if !ok {
			return &dberrors.SchemaError{Reason: "table " + t.Name + ": missing column " + col.Name}
		}
		if v.IsNull() {
			continue
		}
		if v.Kind() != col.Kind {
			return &dberrors.SchemaError{Reason: "table " + t.Name + ": type mismatch on column " + col.Name}
		}
		if col.Kind == sqlvalue.KindVector {
			vec, _ := v.AsVector()
			if len(vec) != col.Dimension {
				return &dberrors.SchemaError{Reason: "table " + t.Name + ": vector dimension mismatch on column " + col.Name}
			}
		}
	}
	return nil
}

func (t *Table) addToIndexes(rowID uint64, values map[string]sqlvalue.Value) {
	for col, idx := range t.indexes {
		idx.Insert(values[col], rowID)
	}
	for col, vidx := range t.vectors {
		if v, ok := values[col]; ok && !v.IsNull() {
			vec, _ := v.AsVector()
			vidx.InsertWithMetadata(rowID, vec, t.nodeMetadata(col, values))
		}
	}
}

// nodeMetadata derives an HNSW Metadata record for vecCol's row out of
// values's companion columns (spec.md §3's Node metadata): "<vecCol>_node_
// type" and "<vecCol>_content_ref", when the schema declares them, supply
// NodeType/ContentRef, "<vecCol>_timestamp" supplies Timestamp, and every
// other non-vector column becomes an Attribute keyed by its own name.
func (t *Table) nodeMetadata(vecCol string, values map[string]sqlvalue.Value) hnsw.Metadata {
	nodeTypeCol := vecCol + "_node_type"
	contentRefCol := vecCol + "_content_ref"
	timestampCol := vecCol + "_timestamp"

	meta := hnsw.Metadata{Attributes: make(map[string]hnsw.Attribute)}
	for _, col := range t.Schema.Columns {
		v, ok := values[col.Name]
		if !ok || v.IsNull() || col.Kind == sqlvalue.KindVector {
			continue
		}
		switch col.Name {
		case nodeTypeCol:
			meta.NodeType, _ = v.AsText()
		case contentRefCol:
			meta.ContentRef, _ = v.AsText()
		case timestampCol:
			meta.Timestamp, _ = v.AsInt()
		default:
			if attr, ok := attributeOf(v); ok {
				meta.Attributes[col.Name] = attr
			}
		}
	}
	return meta
}

func attributeOf(v sqlvalue.Value) (hnsw.Attribute, bool) {
	switch v.Kind() {
	case sqlvalue.KindText:
		s, _ := v.AsText()
		return hnsw.Attribute{Kind: hnsw.AttrString, Str: s}, true
	case sqlvalue.KindInt:
		n, _ := v.AsInt()
		return hnsw.Attribute{Kind: hnsw.AttrInt, Int: n}, true
	case sqlvalue.KindFloat:
		f, _ := v.AsFloat()
		return hnsw.Attribute{Kind: hnsw.AttrFloat, Float: f}, true
	case sqlvalue.KindBool:
		b, _ := v.AsBool()
		return hnsw.Attribute{Kind: hnsw.AttrBool, Bool: b}, true
	default:
		return hnsw.Attribute{}, false
	}
}

// SearchThenTraverse unions column's top-k vector hits for query with each
// hit's BFS closure up to depth hops (optionally restricted to one edge
// type), de-duplicated and preserving vector-order priority: a node already
// emitted via an earlier (closer) hit or its closure is never repeated
// (spec.md §4.5's search_then_traverse).
func (t *Table) SearchThenTraverse(column string, query []float32, k int, edgeType string, depth int) []uint64 {
	vidx := t.VectorIndex(column)
	if vidx == nil {
		return nil
	}
	store := t.Edges(column)

	seen := make(map[uint64]bool)
	var out []uint64
	for _, hit := range vidx.Search(query, k) {
		if !seen[hit.External] {
			seen[hit.External] = true
			out = append(out, hit.External)
		}
		if store == nil || depth <= 0 {
			continue
		}
		for _, id := range store.Traverse(hit.External, depth, edgeType) {
			if seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// reindexForUpdate maintains every index across an UPDATE's value swap. A
// vector column whose vector value itself didn't change calls
// vidx.UpdateMetadata instead of removing and reinserting the HNSW node —
// same external id, same neighbor graph, just a refreshed metadata payload
// (spec.md §4.5: "update_metadata removes from old type bucket and inserts
// in new"). Any other change (vector replaced, added, or cleared) falls back
// to the remove-then-reinsert a version swap otherwise requires.
func (t *Table) reindexForUpdate(rowID uint64, oldValues, newValues map[string]sqlvalue.Value) {
	for col, idx := range t.indexes {
		idx.Remove(oldValues[col], rowID)
		idx.Insert(newValues[col], rowID)
	}
	for col, vidx := range t.vectors {
		oldV, oldOK := oldValues[col]
		newV, newOK := newValues[col]
		oldLive := oldOK && !oldV.IsNull()
		newLive := newOK && !newV.IsNull()

		switch {
		case oldLive && newLive && sameVector(oldV, newV):
			vidx.UpdateMetadata(rowID, t.nodeMetadata(col, newValues))
		case oldLive && newLive:
			vidx.Remove(rowID)
			if es, ok := t.edges[col]; ok {
				es.RemoveNode(rowID)
			}
			vec, _ := newV.AsVector()
			vidx.InsertWithMetadata(rowID, vec, t.nodeMetadata(col, newValues))
		case oldLive:
			vidx.Remove(rowID)
			if es, ok := t.edges[col]; ok {
				es.RemoveNode(rowID)
			}
		case newLive:
			vec, _ := newV.AsVector()
			vidx.InsertWithMetadata(rowID, vec, t.nodeMetadata(col, newValues))
		}
	}
}

func sameVector(a, b sqlvalue.Value) bool {
	av, _ := a.AsVector()
	bv, _ := b.AsVector()
	if len(av) != len(bv) {
		return false
	}
	for i := range av {
		if av[i] != bv[i] {
			return false
		}
	}
	return true
}

func (t *Table) removeFromIndexes(rowID uint64, values map[string]sqlvalue.Value) {
	for col, idx := range t.indexes {
		idx.Remove(values[col], rowID)
	}
	for col, vidx := range t.vectors {
		if v, ok := values[col]; ok && !v.IsNull() {
			vidx.Remove(rowID)
			if es, ok := t.edges[col]; ok {
				es.RemoveNode(rowID)
			}
		}
	}
}
