package executor

import (
	"github.com/heliosdb/heliosdb/pkg/ast"
	"github.com/heliosdb/heliosdb/pkg/dberrors"
	"github.com/heliosdb/heliosdb/pkg/graph"
	"github.com/heliosdb/heliosdb/pkg/sqlvalue"
)

// execAddEdge implements ast.AddEdge: add_edge(src, dst, type, weight)
// against the vector column's paired edge store (spec.md §4.5).
func (e *Executor) execAddEdge(s ast.AddEdge) error {
	tbl := e.Table(s.Table)
	if tbl == nil {
		return &dberrors.SchemaError{Reason: "unknown table " + s.Table}
	}
	store := tbl.Edges(s.Column)
	if store == nil {
		return &dberrors.SchemaError{Reason: "column " + s.Column + " is not a vector column of " + s.Table}
	}
	store.AddEdge(s.Src, s.Dst, s.EdgeType, s.Weight)
	return nil
}

// execGraphQuery implements ast.GraphQuery: a one-hop edge listing
// (get_incoming/get_outgoing) or, when Depth > 0, a BFS traversal
// (spec.md §4.5).
func (e *Executor) execGraphQuery(s ast.GraphQuery) (Result, error) {
	tbl := e.Table(s.Table)
	if tbl == nil {
		return Result{}, &dberrors.SchemaError{Reason: "unknown table " + s.Table}
	}
	store := tbl.Edges(s.Column)
	if store == nil {
		return Result{}, &dberrors.SchemaError{Reason: "column " + s.Column + " is not a vector column of " + s.Table}
	}

	if s.Depth > 0 {
		ids := store.Traverse(s.Node, s.Depth, s.EdgeType)
		rows := make([]Tuple, 0, len(ids))
		for _, id := range ids {
			rows = append(rows, Tuple{"id": sqlvalue.Int(int64(id))})
		}
		return Result{Columns: []string{"id"}, Rows: rows}, nil
	}

	var edges []graph.Edge
	if s.Direction == ast.EdgeIncoming {
		edges = store.GetIncoming(s.Node)
	} else {
		edges = store.GetOutgoing(s.Node)
	}
	if s.EdgeType != "" {
		filtered := edges[:0]
		for _, ed := range edges {
			if ed.EdgeType == s.EdgeType {
				filtered = append(filtered, ed)
			}
		}
		edges = filtered
	}

	rows := make([]Tuple, 0, len(edges))
	for _, ed := range edges {
		rows = append(rows, Tuple{
			"src":       sqlvalue.Int(int64(ed.Src)),
			"dst":       sqlvalue.Int(int64(ed.Dst)),
			"edge_type": sqlvalue.Text(ed.EdgeType),
			"weight":    sqlvalue.Float(float64(ed.Weight)),
		})
	}
	return Result{Columns: []string{"src", "dst", "edge_type", "weight"}, Rows: rows}, nil
}
