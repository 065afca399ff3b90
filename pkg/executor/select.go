package executor

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/heliosdb/heliosdb/pkg/ast"
	"github.com/heliosdb/heliosdb/pkg/dberrors"
	"github.com/heliosdb/heliosdb/pkg/sqlvalue"
	"github.com/heliosdb/heliosdb/pkg/storage"
	"github.com/heliosdb/heliosdb/pkg/txn"
)

// subqueryRunner executes nested ast.Select statements on behalf of Eval.
// An uncorrelated sub-query is run once and memoized across outer rows; a
// correlated one (referencing a column from outside its own FROM/JOINs) is
// re-run per outer row with those references bound to that row's values
// (spec.md §4.8).
type subqueryRunner struct {
	ex  *Executor
	tx  *txn.Txn
	mem map[*ast.Select][]Tuple
}

func newSubqueryRunner(ex *Executor, tx *txn.Txn) *subqueryRunner {
	return &subqueryRunner{ex: ex, tx: tx, mem: make(map[*ast.Select][]Tuple)}
}

// run executes sub against outer: an uncorrelated sub-query (one whose
// WHERE references no table outside its own FROM/JOINs) is executed once
// and memoized; a correlated one has every outer-table ColumnRef in its
// WHERE clause substituted with the outer row's literal value and is
// re-run per outer row, since its result can differ across rows
// (spec.md §4.8).
func (r *subqueryRunner) run(sub *ast.Select, outer Tuple) ([]Tuple, error) {
	inner := innerTables(*sub)
	if !referencesOutside(sub.Where, inner) {
		if rows, ok := r.mem[sub]; ok {
			return rows, nil
		}
		res, err := r.ex.execSelect(r.tx, *sub)
		if err != nil {
			return nil, err
		}
		r.mem[sub] = res.Rows
		return res.Rows, nil
	}

	bound := *sub
	bound.Where = substituteOuter(sub.Where, outer, inner)
	res, err := r.ex.execSelect(r.tx, bound)
	if err != nil {
		return nil, err
	}
	return res.Rows, nil
}

func innerTables(s ast.Select) map[string]bool {
	t := map[string]bool{s.Table: true}
	if s.Alias != "" {
		t[s.Alias] = true
	}
	for _, j := range s.Joins {
		t[j.Table] = true
		if j.Alias != "" {
			t[j.Alias] = true
		}
	}
	return t
}

// referencesOutside reports whether expr contains a qualified ColumnRef
// naming a table not in inner — the syntactic correlation test.
func referencesOutside(expr ast.Expr, inner map[string]bool) bool {
	switch e := expr.(type) {
	case nil:
		return false
	case ast.ColumnRef:
		return e.Table != "" && !inner[e.Table]
	case ast.Unary:
		return referencesOutside(e.Expr, inner)
	case ast.Binary:
		return referencesOutside(e.Left, inner) || referencesOutside(e.Right, inner)
	case ast.In:
		return referencesOutside(e.Expr, inner)
	default:
		return false
	}
}

// substituteOuter returns a copy of expr with every ColumnRef naming a
// table outside inner replaced by a Literal holding that column's value in
// outer.
func substituteOuter(expr ast.Expr, outer Tuple, inner map[string]bool) ast.Expr {
	switch e := expr.(type) {
	case nil:
		return nil
	case ast.ColumnRef:
		if e.Table != "" && !inner[e.Table] {
			return ast.Literal{Value: outer[e.Table+"."+e.Column]}
		}
		return e
	case ast.Unary:
		e.Expr = substituteOuter(e.Expr, outer, inner)
		return e
	case ast.Binary:
		e.Left = substituteOuter(e.Left, outer, inner)
		e.Right = substituteOuter(e.Right, outer, inner)
		return e
	case ast.In:
		e.Expr = substituteOuter(e.Expr, outer, inner)
		return e
	default:
		return expr
	}
}

func (r *subqueryRunner) RunIn(sub *ast.Select, outer Tuple) ([]sqlvalue.Value, error) {
	rows, err := r.run(sub, outer)
	if err != nil {
		return nil, err
	}
	if len(sub.Projections) != 1 {
		return nil, &dberrors.ValidationError{Reason: "IN sub-query must project exactly one column"}
	}
	col := projectionKey(sub.Projections[0])
	out := make([]sqlvalue.Value, 0, len(rows))
	for _, row := range rows {
		out = append(out, row[col])
	}
	return out, nil
}

func (r *subqueryRunner) RunExists(sub *ast.Select, outer Tuple) (bool, error) {
	rows, err := r.run(sub, outer)
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// Embed delegates to the executor's configured embedding function, falling
// back to the deterministic placeholder when none was set (spec.md §6).
func (r *subqueryRunner) Embed(text string, dim int) []float32 {
	r.ex.mu.RLock()
	embed := r.ex.embed
	r.ex.mu.RUnlock()
	if embed != nil {
		if v := embed(text, dim); v != nil {
			return v
		}
	}
	return defaultEmbed(text, dim)
}

func (r *subqueryRunner) RunScalar(sub *ast.Select, outer Tuple) (sqlvalue.Value, error) {
	rows, err := r.run(sub, outer)
	if err != nil {
		return sqlvalue.Value{}, err
	}
	if len(rows) == 0 {
		return sqlvalue.Null(), nil
	}
	if len(rows) > 1 {
		return sqlvalue.Value{}, &dberrors.ValidationError{Reason: "scalar sub-query returned more than one row"}
	}
	if len(sub.Projections) != 1 {
		return sqlvalue.Value{}, &dberrors.ValidationError{Reason: "scalar sub-query must project exactly one column"}
	}
	col := projectionKey(sub.Projections[0])
	return rows[0][col], nil
}

// execSelect implements the SELECT pipeline of spec.md §4.8: source
// resolution (including joins), filter, grouping/aggregation, having,
// ordering, limit.
func (e *Executor) execSelect(tx *txn.Txn, s ast.Select) (Result, error) {
	runner := newSubqueryRunner(e, tx)

	orderBy, err := e.resolveSimilarityOrderBy(s)
	if err != nil {
		return Result{}, err
	}
	s.OrderBy = orderBy

	rows, err := e.resolveSource(tx, s)
	if err != nil {
		return Result{}, err
	}

	if s.Where != nil {
		filtered := rows[:0]
		for _, row := range rows {
			v, err := Eval(row, s.Where, runner)
			if err != nil {
				return Result{}, err
			}
			b, ok := v.AsBool()
			if ok && b {
				filtered = append(filtered, row)
			}
		}
		rows = filtered
	}

	grouped, hasAgg := requiresGrouping(s)
	var outRows []Tuple
	var columns []string
	if grouped {
		outRows, columns, err = e.groupAndAggregate(rows, s, runner)
		if err != nil {
			return Result{}, err
		}
	} else if hasAgg {
		// No GROUP BY but aggregates present: a single implicit group
		// spans every tuple (spec.md §4.8 step 3).
		outRows, columns, err = e.groupAndAggregate(rows, ast.Select{GroupBy: nil, Projections: s.Projections, Having: s.Having}, runner)
		if err != nil {
			return Result{}, err
		}
	} else {
		outRows, columns, err = project(rows, s.Projections, runner)
		if err != nil {
			return Result{}, err
		}
	}

	useVibes := false
	for _, k := range s.OrderBy {
		if _, ok := k.Expr.(ast.Vibes); ok {
			useVibes = true
		}
	}
	if useVibes {
		// Seeded from the snapshot's tx id so the permutation is deterministic
		// per transaction (repeating the same query inside one snapshot
		// yields the same shuffle) without sharing state across transactions
		// the way math/rand's global source would (spec.md §6: "seed policy
		// is implementation-defined").
		vibesRand := rand.New(rand.NewSource(int64(tx.Snapshot.TxID)))
		vibesRand.Shuffle(len(outRows), func(i, j int) { outRows[i], outRows[j] = outRows[j], outRows[i] })
	} else if len(s.OrderBy) > 0 {
		sortTuples(outRows, s.OrderBy, runner)
	}

	if s.Limit > 0 && len(outRows) > s.Limit {
		outRows = outRows[:s.Limit]
	}

	return Result{Columns: columns, Rows: outRows}, nil
}

// resolveSimilarityOrderBy resolves every ast.Similarity ORDER BY key's
// blank Column to the source table's first declared vector column (spec.md
// §9 Open Questions: "the source defaults to the first found"). A query
// naming an explicit, non-vector, or unknown column is rejected here rather
// than left to fail obscurely once Eval runs per-row.
func (e *Executor) resolveSimilarityOrderBy(s ast.Select) ([]ast.OrderKey, error) {
	hasSimilarity := false
	for _, k := range s.OrderBy {
		if _, ok := k.Expr.(ast.Similarity); ok {
			hasSimilarity = true
			break
		}
	}
	if !hasSimilarity {
		return s.OrderBy, nil
	}

	tbl := e.Table(s.Table)
	if tbl == nil {
		return nil, &dberrors.SchemaError{Reason: "unknown table " + s.Table}
	}

	resolved := make([]ast.OrderKey, len(s.OrderBy))
	for i, k := range s.OrderBy {
		sim, ok := k.Expr.(ast.Similarity)
		if !ok {
			resolved[i] = k
			continue
		}
		col, err := similarityColumn(tbl, sim.Column)
		if err != nil {
			return nil, err
		}
		sim.Column = col
		k.Expr = sim
		resolved[i] = k
	}
	return resolved, nil
}

// similarityColumn resolves SIMILARITY TO's target column: explicit names
// must refer to a declared vector column; a blank name defaults to the
// first vector column in schema declaration order.
func similarityColumn(tbl *storage.Table, explicit string) (string, error) {
	if explicit != "" {
		col, ok := tbl.Schema.Column(explicit)
		if !ok || col.Kind != sqlvalue.KindVector {
			return "", &dberrors.SchemaError{Reason: "SIMILARITY TO USING " + explicit + " is not a vector column of " + tbl.Name}
		}
		return explicit, nil
	}
	for _, col := range tbl.Schema.Columns {
		if col.Kind == sqlvalue.KindVector {
			return col.Name, nil
		}
	}
	return "", &dberrors.SchemaError{Reason: "SIMILARITY TO: table " + tbl.Name + " has no vector column"}
}

// resolveSource produces the FROM-clause tuple stream: either a direct HNSW
// query (s.VectorQuery, spec.md §4.5) or the base table scanned under tx's
// snapshot with each join stage folded in left-deep (spec.md §4.8).
//
// When s.VectorQuery is nil and the query has no joins and orders by exactly
// one already-resolved SIMILARITY TO key, the scan itself is accelerated by
// an ANN search over that column instead of a full table scan: hnsw.Search
// narrows the candidate set to its approximate top-k, and the ordinary
// WHERE/sortTuples pipeline downstream re-ranks that (small) candidate set
// by exact cosine distance — accelerated candidate generation, exact final
// order, rather than trusting the approximation all the way through.
func (e *Executor) resolveSource(tx *txn.Txn, s ast.Select) ([]Tuple, error) {
	tbl := e.Table(s.Table)
	if tbl == nil {
		return nil, &dberrors.SchemaError{Reason: "unknown table " + s.Table}
	}
	alias := s.Alias
	if alias == "" {
		alias = s.Table
	}

	if s.VectorQuery != nil {
		return e.vectorQueryScan(tx, tbl, alias, s.VectorQuery)
	}

	if len(s.Joins) == 0 && len(s.OrderBy) == 1 {
		if sim, ok := s.OrderBy[0].Expr.(ast.Similarity); ok && !s.OrderBy[0].Desc {
			if rows, ok := e.similarityANNScan(tx, tbl, alias, sim); ok {
				return rows, nil
			}
		}
	}

	rows := e.scanTable(tx, tbl, alias)
	leftCols := qualifiedColumns(tbl, alias)
	for _, j := range s.Joins {
		rtbl := e.Table(j.Table)
		if rtbl == nil {
			return nil, &dberrors.SchemaError{Reason: "unknown table " + j.Table}
		}
		ralias := j.Alias
		if ralias == "" {
			ralias = j.Table
		}
		rrows := e.scanTable(tx, rtbl, ralias)
		rightCols := qualifiedColumns(rtbl, ralias)
		rows = hashJoin(rows, leftCols, rrows, rightCols, j)
		leftCols = append(leftCols, rightCols...)
	}
	return rows, nil
}

func qualifiedColumns(tbl *storage.Table, alias string) []string {
	cols := make([]string, len(tbl.Schema.Columns))
	for i, c := range tbl.Schema.Columns {
		cols[i] = alias + "." + c.Name
	}
	return cols
}

func (e *Executor) scanTable(tx *txn.Txn, tbl *storage.Table, alias string) []Tuple {
	var rows []Tuple
	tbl.Scan(tx.Snapshot, e.cl, func(rowID uint64, v *storage.RowVersion) bool {
		rows = append(rows, tupleOf(alias, v.Values))
		return true
	})
	return rows
}

func requiresGrouping(s ast.Select) (grouped bool, hasAgg bool) {
	for _, p := range s.Projections {
		if p.Agg != ast.AggNone {
			hasAgg = true
		}
	}
	return len(s.GroupBy) > 0, hasAgg
}

// project evaluates plain (non-aggregate) projections over every row.
func project(rows []Tuple, projections []ast.Projection, runner SubqueryRunner) ([]Tuple, []string, error) {
	if len(projections) == 0 {
		return rows, nil, nil
	}
	columns := make([]string, len(projections))
	out := make([]Tuple, 0, len(rows))
	for _, row := range rows {
		result := make(Tuple, len(projections))
		for i, p := range projections {
			if p.Agg != ast.AggNone {
				return nil, nil, &dberrors.ValidationError{Reason: "aggregate used without GROUP BY alongside non-aggregate columns"}
			}
			v, err := Eval(row, p.Expr, runner)
			if err != nil {
				return nil, nil, err
			}
			key := projectionKey(p)
			columns[i] = key
			result[key] = v
		}
		out = append(out, result)
	}
	return out, columns, nil
}

// projectionKey is the canonical printed form HAVING references aggregates
// by (spec.md §4.8), or the alias when one is given.
func projectionKey(p ast.Projection) string {
	if p.Alias != "" {
		return p.Alias
	}
	switch p.Agg {
	case ast.AggCountStar:
		return "COUNT(*)"
	case ast.AggCount:
		return fmt.Sprintf("COUNT(%s)", exprPrint(p.Expr))
	case ast.AggSum:
		return fmt.Sprintf("SUM(%s)", exprPrint(p.Expr))
	case ast.AggAvg:
		return fmt.Sprintf("AVG(%s)", exprPrint(p.Expr))
	case ast.AggMin:
		return fmt.Sprintf("MIN(%s)", exprPrint(p.Expr))
	case ast.AggMax:
		return fmt.Sprintf("MAX(%s)", exprPrint(p.Expr))
	default:
		return exprPrint(p.Expr)
	}
}

func exprPrint(e ast.Expr) string {
	switch v := e.(type) {
	case ast.ColumnRef:
		if v.Table != "" {
			return v.Table + "." + v.Column
		}
		return v.Column
	case ast.Literal:
		return v.Value.String()
	default:
		return "?"
	}
}

// groupKey concatenates grouping column values into a map key, per spec.md
// §4.8 step 3 ("hash map keyed by the concatenation of grouping column
// values").
func groupKey(row Tuple, groupBy []ast.Expr, runner SubqueryRunner) (string, error) {
	var b strings.Builder
	for _, ge := range groupBy {
		v, err := Eval(row, ge, runner)
		if err != nil {
			return "", err
		}
		b.WriteString(v.String())
		b.WriteByte('\x00')
	}
	return b.String(), nil
}
