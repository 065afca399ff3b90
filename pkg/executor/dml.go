package executor

import (
	"github.com/heliosdb/heliosdb/pkg/ast"
	"github.com/heliosdb/heliosdb/pkg/dberrors"
	"github.com/heliosdb/heliosdb/pkg/sqlvalue"
	"github.com/heliosdb/heliosdb/pkg/storage"
	"github.com/heliosdb/heliosdb/pkg/txn"
)

func (e *Executor) execInsert(tx *txn.Txn, s ast.Insert) (Result, error) {
	tbl := e.Table(s.Table)
	if tbl == nil {
		return Result{}, &dberrors.SchemaError{Reason: "unknown table " + s.Table}
	}
	if len(s.Columns) != len(s.Values) {
		return Result{}, &dberrors.ParseForm{Reason: "INSERT column/value count mismatch"}
	}

	values := make(map[string]sqlvalue.Value, len(s.Columns))
	for i, col := range s.Columns {
		v, err := Eval(nil, s.Values[i], nil)
		if err != nil {
			return Result{}, err
		}
		values[col] = v
	}
	for _, col := range tbl.Schema.Columns {
		if _, ok := values[col.Name]; !ok {
			values[col.Name] = sqlvalue.Null()
		}
	}

	if _, err := tbl.Insert(tx, e.cl, e.log, values); err != nil {
		return Result{}, err
	}
	return Result{RowsAffected: 1}, nil
}

// equalityOnIndexedColumn recognizes a `column = literal` WHERE clause over
// an indexed column so candidateRowIDs can use a B-tree lookup instead of a
// full scan (spec.md §4.8: "compute candidate row_ids via either a B-tree
// lookup ... or a full scan").
func equalityOnIndexedColumn(tbl *storage.Table, where ast.Expr) (column string, lit sqlvalue.Value, ok bool) {
	b, isBinary := where.(ast.Binary)
	if !isBinary || b.Op != ast.OpEq {
		return "", sqlvalue.Value{}, false
	}
	ref, litExpr, matched := columnLiteralPair(b.Left, b.Right)
	if !matched {
		return "", sqlvalue.Value{}, false
	}
	if tbl.Index(ref.Column) == nil {
		return "", sqlvalue.Value{}, false
	}
	return ref.Column, litExpr.Value, true
}

func columnLiteralPair(left, right ast.Expr) (ast.ColumnRef, ast.Literal, bool) {
	if ref, ok := left.(ast.ColumnRef); ok {
		if lit, ok := right.(ast.Literal); ok {
			return ref, lit, true
		}
	}
	if ref, ok := right.(ast.ColumnRef); ok {
		if lit, ok := left.(ast.Literal); ok {
			return ref, lit, true
		}
	}
	return ast.ColumnRef{}, ast.Literal{}, false
}

// candidateRowIDs resolves DELETE/UPDATE target rows,
// preferring a B-tree equality lookup over a full scan when possible
// (spec.md §4.8).
func (e *Executor) candidateRowIDs(tx *txn.Txn, tbl *storage.Table, where ast.Expr) []uint64 {
	if col, lit, ok := equalityOnIndexedColumn(tbl, where); ok {
		return tbl.Index(col).Lookup(lit)
	}
	var ids []uint64
	tbl.Scan(tx.Snapshot, e.cl, func(rowID uint64, v *storage.RowVersion) bool {
		ids = append(ids, rowID)
		return true
	})
	return ids
}

func (e *Executor) execUpdate(tx *txn.Txn, s ast.Update) (Result, error) {
	tbl := e.Table(s.Table)
	if tbl == nil {
		return Result{}, &dberrors.SchemaError{Reason: "unknown table " + s.Table}
	}

	ids := e.candidateRowIDs(tx, tbl, s.Where)
	affected := 0
	for _, rowID := range ids {
		head := tbl.VisibleHead(rowID, tx.Snapshot, e.cl)
		if head == nil {
			continue
		}
		row := tupleOf(s.Table, head.Values)
		if s.Where != nil {
			ok, err := Eval(row, s.Where, nil)
			if err != nil {
				return Result{}, err
			}
			b, _ := ok.AsBool()
			if !b {
				continue
			}
		}

		values := cloneValues(head.Values)
		for col, expr := range s.Set {
			v, err := Eval(row, expr, nil)
			if err != nil {
				return Result{}, err
			}
			values[col] = v
		}
		if err := tbl.Update(tx, e.cl, e.log, rowID, values); err != nil {
			return Result{}, err
		}
		affected++
	}
	return Result{RowsAffected: affected}, nil
}

func (e *Executor) execDelete(tx *txn.Txn, s ast.Delete) (Result, error) {
	tbl := e.Table(s.Table)
	if tbl == nil {
		return Result{}, &dberrors.SchemaError{Reason: "unknown table " + s.Table}
	}

	ids := e.candidateRowIDs(tx, tbl, s.Where)
	affected := 0
	for _, rowID := range ids {
		head := tbl.VisibleHead(rowID, tx.Snapshot, e.cl)
		if head == nil {
			continue
		}
		if s.Where != nil {
			row := tupleOf(s.Table, head.Values)
			ok, err := Eval(row, s.Where, nil)
			if err != nil {
				return Result{}, err
			}
			b, _ := ok.AsBool()
			if !b {
				continue
			}
		}
		if err := tbl.Delete(tx, e.cl, e.log, rowID); err != nil {
			return Result{}, err
		}
		affected++
	}
	return Result{RowsAffected: affected}, nil
}

func cloneValues(values map[string]sqlvalue.Value) map[string]sqlvalue.Value {
	out := make(map[string]sqlvalue.Value, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}

// tupleOf builds a Tuple keyed by the qualified "table.column" form;
// resolveColumn falls back to an unqualified match when a ColumnRef carries
// no table name, which is always unambiguous for a single-table statement.
func tupleOf(table string, values map[string]sqlvalue.Value) Tuple {
	t := make(Tuple, len(values))
	for col, v := range values {
		t[table+"."+col] = v
	}
	return t
}
