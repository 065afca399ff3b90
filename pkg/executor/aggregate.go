package executor

import (
	"github.com/heliosdb/heliosdb/pkg/ast"
	"github.com/heliosdb/heliosdb/pkg/sqlvalue"
)

// groupAcc accumulates one group's running aggregate state, keyed by each
// aggregate projection's canonical printed form (spec.md §4.8 step 3/4).
type groupAcc struct {
	sample     Tuple // first row seen in the group, for non-aggregate (grouping) projections
	rowCount   int
	countNN    map[string]int     // COUNT(col): non-null count
	sums       map[string]float64 // SUM/AVG running sum
	sumCounts  map[string]int     // AVG running count
	mins       map[string]sqlvalue.Value
	maxs       map[string]sqlvalue.Value
	haveMinMax map[string]bool
}

func newGroupAcc() *groupAcc {
	return &groupAcc{
		countNN:    make(map[string]int),
		sums:       make(map[string]float64),
		sumCounts:  make(map[string]int),
		mins:       make(map[string]sqlvalue.Value),
		maxs:       make(map[string]sqlvalue.Value),
		haveMinMax: make(map[string]bool),
	}
}

func (g *groupAcc) add(row Tuple, p ast.Projection, runner SubqueryRunner) error {
	key := projectionKey(p)
	switch p.Agg {
	case ast.AggCountStar:
		// counted via rowCount, nothing per-projection to do
	case ast.AggCount:
		v, err := Eval(row, p.Expr, runner)
		if err != nil {
			return err
		}
		if !v.IsNull() {
			g.countNN[key]++
		}
	case ast.AggSum, ast.AggAvg:
		v, err := Eval(row, p.Expr, runner)
		if err != nil {
			return err
		}
		if n, ok := asNumeric(v); ok {
			g.sums[key] += n
			g.sumCounts[key]++
		}
	case ast.AggMin:
		v, err := Eval(row, p.Expr, runner)
		if err != nil {
			return err
		}
		if !v.IsNull() {
			if !g.haveMinMax[key] || v.Compare(g.mins[key]) < 0 {
				g.mins[key] = v
				g.haveMinMax[key] = true
			}
		}
	case ast.AggMax:
		v, err := Eval(row, p.Expr, runner)
		if err != nil {
			return err
		}
		if !v.IsNull() {
			if !g.haveMinMax[key] || v.Compare(g.maxs[key]) > 0 {
				g.maxs[key] = v
				g.haveMinMax[key] = true
			}
		}
	}
	return nil
}

func asNumeric(v sqlvalue.Value) (float64, bool) {
	if i, ok := v.AsInt(); ok {
		return float64(i), true
	}
	if f, ok := v.AsFloat(); ok {
		return f, true
	}
	return 0, false
}

func (g *groupAcc) result(p ast.Projection) sqlvalue.Value {
	key := projectionKey(p)
	switch p.Agg {
	case ast.AggCountStar:
		return sqlvalue.Int(int64(g.rowCount))
	case ast.AggCount:
		return sqlvalue.Int(int64(g.countNN[key]))
	case ast.AggSum:
		if g.sumCounts[key] == 0 {
			return sqlvalue.Null()
		}
		return sqlvalue.Float(g.sums[key])
	case ast.AggAvg:
		if g.sumCounts[key] == 0 {
			return sqlvalue.Null()
		}
		return sqlvalue.Float(g.sums[key] / float64(g.sumCounts[key]))
	case ast.AggMin:
		if !g.haveMinMax[key] {
			return sqlvalue.Null()
		}
		return g.mins[key]
	case ast.AggMax:
		if !g.haveMinMax[key] {
			return sqlvalue.Null()
		}
		return g.maxs[key]
	default:
		if g.sample == nil {
			return sqlvalue.Null()
		}
		v, _ := Eval(g.sample, p.Expr, nil)
		return v
	}
}

// groupAndAggregate implements spec.md §4.8 steps 3-4: build per-group
// accumulators keyed by the concatenation of grouping column values, then
// apply HAVING against the aggregated output.
func (e *Executor) groupAndAggregate(rows []Tuple, s ast.Select, runner SubqueryRunner) ([]Tuple, []string, error) {
	order := []string{}
	groups := make(map[string]*groupAcc)

	for _, row := range rows {
		key, err := groupKey(row, s.GroupBy, runner)
		if err != nil {
			return nil, nil, err
		}
		g, ok := groups[key]
		if !ok {
			g = newGroupAcc()
			g.sample = row
			groups[key] = g
			order = append(order, key)
		}
		g.rowCount++
		for _, p := range s.Projections {
			if p.Agg != ast.AggNone {
				if err := g.add(row, p, runner); err != nil {
					return nil, nil, err
				}
			}
		}
	}

	// No GROUP BY, no rows at all: still emit the single implicit empty
	// group (spec.md §8 boundary: COUNT(*)=0, SUM/AVG/MIN/MAX=null).
	if len(s.GroupBy) == 0 && len(groups) == 0 {
		groups[""] = newGroupAcc()
		order = append(order, "")
	}

	columns := make([]string, len(s.Projections))
	for i, p := range s.Projections {
		columns[i] = projectionKey(p)
	}

	out := make([]Tuple, 0, len(order))
	for _, key := range order {
		g := groups[key]
		result := make(Tuple, len(s.Projections))
		for _, p := range s.Projections {
			result[projectionKey(p)] = g.result(p)
		}
		if s.Having != nil {
			ok, err := Eval(result, s.Having, runner)
			if err != nil {
				return nil, nil, err
			}
			b, _ := ok.AsBool()
			if !b {
				continue
			}
		}
		out = append(out, result)
	}
	return out, columns, nil
}
