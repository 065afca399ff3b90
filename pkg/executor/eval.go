package executor

import (
	"hash/fnv"
	"math/rand"

	"github.com/heliosdb/heliosdb/pkg/ast"
	"github.com/heliosdb/heliosdb/pkg/dberrors"
	"github.com/heliosdb/heliosdb/pkg/hnsw"
	"github.com/heliosdb/heliosdb/pkg/sqlvalue"
)

// SubqueryRunner is the capability interface the evaluator calls into for
// IN/NOT IN, EXISTS/NOT EXISTS, scalar sub-queries, and SIMILARITY TO. It
// replaces the function-pointer circular dependency between expression
// evaluation and the executor that the source used (spec.md §9 Design
// Notes).
type SubqueryRunner interface {
	RunIn(sub *ast.Select, outer Tuple) ([]sqlvalue.Value, error)
	RunExists(sub *ast.Select, outer Tuple) (bool, error)
	RunScalar(sub *ast.Select, outer Tuple) (sqlvalue.Value, error)

	// Embed maps text to a dim-wide query vector for SIMILARITY TO, via the
	// host-provided embedding function when one was configured.
	Embed(text string, dim int) []float32
}

// Eval walks expr against tuple, dispatching sub-query nodes to runner.
// runner may be nil only when expr is known not to contain a sub-query node
// (e.g. a plain ORDER BY key); encountering one with a nil runner is a
// ParseForm error rather than a panic.
func Eval(tuple Tuple, expr ast.Expr, runner SubqueryRunner) (sqlvalue.Value, error) {
	switch e := expr.(type) {
	case ast.Literal:
		return e.Value, nil

	case ast.ColumnRef:
		return resolveColumn(tuple, e)

	case ast.Unary:
		return evalUnary(tuple, e, runner)

	case ast.Binary:
		return evalBinary(tuple, e, runner)

	case ast.In:
		return evalIn(tuple, e, runner)

	case ast.Exists:
		if runner == nil {
			return sqlvalue.Value{}, &dberrors.ParseForm{Reason: "EXISTS used without a sub-query runner"}
		}
		ok, err := runner.RunExists(e.Sub, tuple)
		if err != nil {
			return sqlvalue.Value{}, err
		}
		if e.Negate {
			ok = !ok
		}
		return sqlvalue.Bool(ok), nil

	case ast.ScalarSubquery:
		if runner == nil {
			return sqlvalue.Value{}, &dberrors.ParseForm{Reason: "scalar sub-query used without a runner"}
		}
		return runner.RunScalar(e.Sub, tuple)

	case ast.Similarity:
		return evalSimilarity(tuple, e, runner)

	case ast.Vibes:
		// Vibes carries no operands; it is sorted by execSelect's seeded
		// shuffle before sortTuples ever evaluates a key, so it never
		// reaches here in practice (sortTuples skips it explicitly).
		return sqlvalue.Value{}, &dberrors.ParseForm{Reason: "VIBES evaluated outside the random-permutation path"}

	default:
		return sqlvalue.Value{}, &dberrors.ParseForm{Reason: "unsupported expression node"}
	}
}

func evalUnary(tuple Tuple, e ast.Unary, runner SubqueryRunner) (sqlvalue.Value, error) {
	v, err := Eval(tuple, e.Expr, runner)
	if err != nil {
		return sqlvalue.Value{}, err
	}
	switch e.Op {
	case ast.OpNot:
		b, ok := v.AsBool()
		if !ok {
			return sqlvalue.Value{}, &dberrors.ValidationError{Reason: "NOT applied to a non-boolean expression"}
		}
		return sqlvalue.Bool(!b), nil
	case ast.OpIsNull:
		return sqlvalue.Bool(v.IsNull()), nil
	case ast.OpIsNotNull:
		return sqlvalue.Bool(!v.IsNull()), nil
	default:
		return sqlvalue.Value{}, &dberrors.ParseForm{Reason: "unknown unary operator"}
	}
}

func evalBinary(tuple Tuple, e ast.Binary, runner SubqueryRunner) (sqlvalue.Value, error) {
	// AND/OR short-circuit on a false/true left operand before evaluating
	// the right side, matching standard SQL three-valued-logic short-circuit
	// where possible (both NULL and numeric operands still route through
	// Compare/Equal below for the comparison operators).
	if e.Op == ast.OpAnd || e.Op == ast.OpOr {
		l, err := Eval(tuple, e.Left, runner)
		if err != nil {
			return sqlvalue.Value{}, err
		}
		lb, ok := l.AsBool()
		if !ok {
			return sqlvalue.Value{}, &dberrors.ValidationError{Reason: "AND/OR applied to a non-boolean operand"}
		}
		if e.Op == ast.OpAnd && !lb {
			return sqlvalue.Bool(false), nil
		}
		if e.Op == ast.OpOr && lb {
			return sqlvalue.Bool(true), nil
		}
		r, err := Eval(tuple, e.Right, runner)
		if err != nil {
			return sqlvalue.Value{}, err
		}
		rb, ok := r.AsBool()
		if !ok {
			return sqlvalue.Value{}, &dberrors.ValidationError{Reason: "AND/OR applied to a non-boolean operand"}
		}
		return sqlvalue.Bool(rb), nil
	}

	l, err := Eval(tuple, e.Left, runner)
	if err != nil {
		return sqlvalue.Value{}, err
	}
	r, err := Eval(tuple, e.Right, runner)
	if err != nil {
		return sqlvalue.Value{}, err
	}

	switch e.Op {
	case ast.OpEq:
		return sqlvalue.Bool(l.Equal(r)), nil
	case ast.OpNeq:
		return sqlvalue.Bool(!l.Equal(r)), nil
	case ast.OpLt:
		return sqlvalue.Bool(l.Compare(r) < 0), nil
	case ast.OpGt:
		return sqlvalue.Bool(l.Compare(r) > 0), nil
	case ast.OpLeq:
		return sqlvalue.Bool(l.Compare(r) <= 0), nil
	case ast.OpGeq:
		return sqlvalue.Bool(l.Compare(r) >= 0), nil
	default:
		return sqlvalue.Value{}, &dberrors.ParseForm{Reason: "unknown binary operator"}
	}
}

// evalIn implements both the literal-list and the sub-query forms of IN /
// NOT IN (spec.md §4.8: an uncorrelated sub-query executes once and is
// materialized into a membership set).
func evalIn(tuple Tuple, e ast.In, runner SubqueryRunner) (sqlvalue.Value, error) {
	v, err := Eval(tuple, e.Expr, runner)
	if err != nil {
		return sqlvalue.Value{}, err
	}

	var member bool
	if e.Sub != nil {
		if runner == nil {
			return sqlvalue.Value{}, &dberrors.ParseForm{Reason: "IN sub-query used without a runner"}
		}
		vals, err := runner.RunIn(e.Sub, tuple)
		if err != nil {
			return sqlvalue.Value{}, err
		}
		for _, candidate := range vals {
			if v.Equal(candidate) {
				member = true
				break
			}
		}
	} else {
		for _, ve := range e.Values {
			candidate, err := Eval(tuple, ve, runner)
			if err != nil {
				return sqlvalue.Value{}, err
			}
			if v.Equal(candidate) {
				member = true
				break
			}
		}
	}

	if e.Negate {
		member = !member
	}
	return sqlvalue.Bool(member), nil
}

// evalSimilarity computes the cosine distance between e.Column's vector in
// tuple and the embedding of e.Text, for use as an ORDER BY sort key
// (spec.md §6's "SIMILARITY TO <text>"). Column must already be resolved to
// a concrete column name — the "scan only a specific embedding column when
// multiple exist" open question (spec.md §9) is resolved one layer up, in
// execSelect's resolveSimilarityOrderBy, which defaults it to the source
// table's first declared vector column when the query left it blank.
func evalSimilarity(tuple Tuple, e ast.Similarity, runner SubqueryRunner) (sqlvalue.Value, error) {
	if e.Column == "" {
		return sqlvalue.Value{}, &dberrors.ParseForm{Reason: "SIMILARITY TO used without a resolved embedding column"}
	}
	v, err := resolveColumn(tuple, ast.ColumnRef{Column: e.Column})
	if err != nil {
		return sqlvalue.Value{}, err
	}
	if v.IsNull() {
		return sqlvalue.Null(), nil
	}
	rowVec, ok := v.AsVector()
	if !ok {
		return sqlvalue.Value{}, &dberrors.SchemaError{Reason: "SIMILARITY TO column " + e.Column + " is not a vector"}
	}

	var query []float32
	if runner != nil {
		query = runner.Embed(e.Text, len(rowVec))
	}
	if query == nil {
		query = defaultEmbed(e.Text, len(rowVec))
	}
	return sqlvalue.Float(hnsw.CosineDistance(query, rowVec)), nil
}

// defaultEmbed is the deterministic text→vector placeholder spec.md §6 calls
// for when the host supplies no embedding function: text is hashed with
// FNV-1a (the same technique pkg/graph uses to hash edge types) to seed a
// PRNG, which then draws dim components uniformly from [-1, 1]. It is
// clearly a placeholder, not a real embedding — same (text, dim) always
// yields the same vector, which is all ORDER BY determinism requires.
func defaultEmbed(text string, dim int) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))
	rnd := rand.New(rand.NewSource(int64(h.Sum64())))

	out := make([]float32, dim)
	for i := range out {
		out[i] = rnd.Float32()*2 - 1
	}
	return out
}
