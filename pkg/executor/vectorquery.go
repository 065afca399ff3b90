package executor

import (
	"github.com/heliosdb/heliosdb/pkg/ast"
	"github.com/heliosdb/heliosdb/pkg/dberrors"
	"github.com/heliosdb/heliosdb/pkg/sqlvalue"
	"github.com/heliosdb/heliosdb/pkg/storage"
	"github.com/heliosdb/heliosdb/pkg/txn"
)

// defaultVectorQueryK is the candidate count a VectorQuery asks hnsw.Index
// for when it sets no explicit K, and the base candidate count of every
// SIMILARITY TO ANN scan (the SELECT's LIMIT is not consulted).
const defaultVectorQueryK = 10

// annOversample is how far similarityANNScan oversamples its candidate
// request before handing the set to the exact-distance sort downstream,
// mirroring hnsw.Index.SearchByType's own oversample-and-narrow pattern.
const annOversample = 4

// embedOrDefault resolves query text to a vector via the executor's
// configured embedding function, falling back to the deterministic
// placeholder (spec.md §6).
func (e *Executor) embedOrDefault(text string, dim int) []float32 {
	e.mu.RLock()
	embed := e.embed
	e.mu.RUnlock()
	if embed != nil {
		if v := embed(text, dim); v != nil {
			return v
		}
	}
	return defaultEmbed(text, dim)
}

// similarityANNScan narrows resolveSource's scan to an ANN candidate set for
// the common single-table, sole-ORDER-BY-key SIMILARITY TO case. ok is false
// when the column carries no HNSW index (e.g. an empty table never assigned
// one) or any other reason the fast path doesn't apply, in which case the
// caller falls back to a full table scan plus the generic Eval comparator.
func (e *Executor) similarityANNScan(tx *txn.Txn, tbl *storage.Table, alias string, sim ast.Similarity) ([]Tuple, bool) {
	vidx := tbl.VectorIndex(sim.Column)
	if vidx == nil || vidx.Len() == 0 {
		return nil, false
	}

	k := defaultVectorQueryK
	query := e.embedOrDefault(sim.Text, vidx.Dimension())

	oversampled := k * annOversample
	if oversampled > vidx.Len() {
		oversampled = vidx.Len()
	}

	rows := make([]Tuple, 0, oversampled)
	for _, hit := range vidx.Search(query, oversampled) {
		v := tbl.VisibleHead(hit.External, tx.Snapshot, e.cl)
		if v == nil {
			continue
		}
		rows = append(rows, tupleOf(alias, v.Values))
	}
	return rows, true
}

// vectorQueryScan implements ast.Select.VectorQuery (spec.md §4.5): a plain
// similarity search, a type-filtered search or listing, or a
// search_then_traverse graph expansion, in place of the ordinary table scan.
func (e *Executor) vectorQueryScan(tx *txn.Txn, tbl *storage.Table, alias string, q *ast.VectorQuery) ([]Tuple, error) {
	vidx := tbl.VectorIndex(q.Column)
	if vidx == nil {
		return nil, &dberrors.SchemaError{Reason: "column " + q.Column + " is not a vector column of " + tbl.Name}
	}

	k := q.K
	if k <= 0 {
		k = defaultVectorQueryK
	}

	var hits []uint64
	switch {
	case q.NodeType != "" && q.Vector == nil && q.QueryText == "":
		hits = vidx.ByType(q.NodeType)

	case q.Depth > 0:
		query := q.Vector
		if query == nil {
			query = e.embedOrDefault(q.QueryText, vidx.Dimension())
		}
		hits = tbl.SearchThenTraverse(q.Column, query, k, q.EdgeType, q.Depth)

	case q.NodeType != "":
		query := q.Vector
		if query == nil {
			query = e.embedOrDefault(q.QueryText, vidx.Dimension())
		}
		for _, r := range vidx.SearchByType(query, k, q.NodeType) {
			hits = append(hits, r.External)
		}

	default:
		query := q.Vector
		if query == nil {
			query = e.embedOrDefault(q.QueryText, vidx.Dimension())
		}
		for _, r := range vidx.Search(query, k) {
			hits = append(hits, r.External)
		}
	}

	rows := make([]Tuple, 0, len(hits))
	for _, external := range hits {
		v := tbl.VisibleHead(external, tx.Snapshot, e.cl)
		if v == nil {
			continue
		}
		row := tupleOf(alias, v.Values)
		if meta, ok := vidx.Metadata(external); ok {
			row[alias+".node_type"] = sqlvalue.Text(meta.NodeType)
			row[alias+".content_ref"] = sqlvalue.Text(meta.ContentRef)
		}
		rows = append(rows, row)
	}
	return rows, nil
}
