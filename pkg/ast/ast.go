// Package ast defines the AST node kinds the executor consumes (spec.md §6).
// Parsing itself is out of scope — this package is the interface contract an
// external parser must satisfy, plus the scalar expression grammar the
// evaluator walks.
package ast

import "github.com/heliosdb/heliosdb/pkg/sqlvalue"

// Statement is any top-level command the executor can dispatch.
type Statement interface {
	isStatement()
}

// ColumnDef describes one column in a CREATE TABLE or ALTER TABLE ADD COLUMN.
type ColumnDef struct {
	Name      string
	Kind      sqlvalue.Kind
	Dimension int // only meaningful when Kind == sqlvalue.KindVector
}

type CreateTable struct {
	Table   string
	Columns []ColumnDef
}

type DropTable struct {
	Table string
}

type AlterTableAddColumn struct {
	Table  string
	Column ColumnDef
}

type CreateIndex struct {
	Table  string
	Column string
}

type DropIndex struct {
	Table  string
	Column string
}

type Insert struct {
	Table   string
	Columns []string
	Values  []Expr
}

type Update struct {
	Table string
	Set   map[string]Expr
	Where Expr // nil means unconditional
}

type Delete struct {
	Table string
	Where Expr // nil means unconditional
}

type Begin struct{}
type Commit struct{}
type Rollback struct{}

type Vacuum struct {
	Table string // empty means every table
}

// AddEdge inserts or overwrites a directed, typed, weighted GraphRAG edge
// between two vector rows' external ids on Column's paired edge store
// (spec.md §3, §4.5's add_edge(src, dst, type, weight)). External ids are
// row ids: GraphRAG nodes are never independent of the row that owns their
// vector.
type AddEdge struct {
	Table    string
	Column   string
	Src      uint64
	Dst      uint64
	EdgeType string
	Weight   float32
}

// EdgeDirection selects which side of a GraphQuery's edge listing to return.
type EdgeDirection int

const (
	EdgeOutgoing EdgeDirection = iota
	EdgeIncoming
)

// GraphQuery reads Column's edge store for Table (spec.md §4.5): with
// Depth == 0 it lists Node's one-hop edges in Direction, optionally filtered
// to EdgeType; with Depth > 0 it instead runs a BFS traversal to that depth
// and returns the visited external ids.
type GraphQuery struct {
	Table     string
	Column    string
	Node      uint64
	Direction EdgeDirection
	EdgeType  string // "" means unfiltered
	Depth     int
}

// VectorQuery replaces a SELECT's FROM-clause table scan with a direct HNSW
// query (spec.md §4.5): a plain, by-type, or text-embedded similarity
// search, optionally unioned with each hit's BFS closure
// (search_then_traverse). Attach it to Select.VectorQuery.
type VectorQuery struct {
	Column    string
	QueryText string    // embedded via the executor's embedding function
	Vector    []float32 // takes precedence over QueryText when non-nil
	NodeType  string    // "" means unrestricted; with QueryText/Vector both unset, lists ByType(NodeType) directly
	K         int       // <= 0 selects a small default
	EdgeType  string    // search_then_traverse's edge-type filter; "" means any type
	Depth     int       // > 0 triggers search_then_traverse instead of a plain/by-type search
}

// OrderKey is one ORDER BY term.
type OrderKey struct {
	Expr Expr
	Desc bool
}

// AggFunc names the supported aggregate functions.
type AggFunc int

const (
	AggNone AggFunc = iota
	AggCount
	AggCountStar
	AggSum
	AggAvg
	AggMin
	AggMax
)

// Projection is one SELECT list item: either a plain expression or an
// aggregate application over one. Alias, if set, names the output column;
// otherwise the canonical printed form is used (spec.md §4.8, HAVING
// references aggregates "by their canonical printed form").
type Projection struct {
	Agg   AggFunc
	Expr  Expr // nil for COUNT(*)
	Alias string
}

// JoinKind distinguishes inner from outer joins.
type JoinKind int

const (
	JoinInner JoinKind = iota
	JoinLeft
	JoinRight
)

// Join describes one join stage against the accumulated left side.
type Join struct {
	Kind  JoinKind
	Table string
	Alias string
	Left  string // qualified column on the accumulated left side
	Right string // qualified column on Table
}

type Select struct {
	Table       string
	Alias       string
	Joins       []Join
	Projections []Projection
	Where       Expr
	GroupBy     []Expr
	Having      Expr
	OrderBy     []OrderKey
	Limit       int // <=0 means no limit

	// VectorQuery, when set, replaces the normal table scan of Table/Alias
	// with an HNSW query against Table (spec.md §4.5); Where/GroupBy/Having/
	// OrderBy/Limit still apply to the rows it produces.
	VectorQuery *VectorQuery
}

func (CreateTable) isStatement()         {}
func (DropTable) isStatement()           {}
func (AlterTableAddColumn) isStatement() {}
func (CreateIndex) isStatement()         {}
func (DropIndex) isStatement()           {}
func (Insert) isStatement()              {}
func (Update) isStatement()              {}
func (Delete) isStatement()              {}
func (Select) isStatement()              {}
func (Begin) isStatement()               {}
func (Commit) isStatement()              {}
func (Rollback) isStatement()            {}
func (Vacuum) isStatement()              {}
func (AddEdge) isStatement()             {}
func (GraphQuery) isStatement()          {}
