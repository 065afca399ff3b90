// Package executor implements the Query Executor (spec.md §4.8): dispatch
// from an ast.Statement to DDL/DML/SELECT/VACUUM handling, wired against the
// row store (pkg/storage), the transaction manager and visibility oracle
// (pkg/txn), and the HNSW/GraphRAG indexes. It is grounded on the teacher's
// pkg/query scan-condition dispatch style, generalized from single-column
// key scans to the full scalar expression grammar of pkg/ast.
package executor

import (
	"sort"
	"strings"
	"sync"

	"github.com/heliosdb/heliosdb/pkg/ast"
	"github.com/heliosdb/heliosdb/pkg/clog"
	"github.com/heliosdb/heliosdb/pkg/dberrors"
	"github.com/heliosdb/heliosdb/pkg/sqlvalue"
	"github.com/heliosdb/heliosdb/pkg/storage"
	"github.com/heliosdb/heliosdb/pkg/txn"
	"github.com/heliosdb/heliosdb/pkg/wal"
)

// Tuple is one row flowing through the SELECT pipeline, keyed by qualified
// "table.column" names so a join's combined tuple never collides across
// sides (spec.md §4.8: "column names qualified by table to preserve
// disambiguation through the pipeline").
type Tuple map[string]sqlvalue.Value

// Result is the outcome of one executed statement.
type Result struct {
	Columns      []string
	Rows         []Tuple
	RowsAffected int
	VacuumStats  map[string]storage.VacuumStats
}

// EmbedFunc maps text to a dim-wide vector for SIMILARITY TO (spec.md §6:
// "the executor is provided an embedding function by the host"). Returning
// nil falls back to the deterministic placeholder, defaultEmbed.
type EmbedFunc func(text string, dim int) []float32

// Executor owns the table catalog and dispatches statements against it.
// One Executor is shared by every transaction; per-call transactional
// context is threaded explicitly via the tx argument (spec.md §9: no
// ambient thread-local transaction).
type Executor struct {
	mu     sync.RWMutex
	tables map[string]*storage.Table

	mgr   *txn.Manager
	cl    *clog.CLog
	log   *wal.Log // nil disables durability
	embed EmbedFunc // nil selects defaultEmbed
}

// New constructs an Executor over an empty catalog. log may be nil for an
// in-memory-only database.
func New(mgr *txn.Manager, cl *clog.CLog, log *wal.Log) *Executor {
	return &Executor{
		tables: make(map[string]*storage.Table),
		mgr:    mgr,
		cl:     cl,
		log:    log,
	}
}

// Table returns the named table, or nil if it does not exist.
func (e *Executor) Table(name string) *storage.Table {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tables[name]
}

// RegisterTable installs tbl into the catalog under name, bypassing
// createTable's already-exists check. Used by the database facade (pkg/db)
// to populate the catalog from persisted table files at startup, before any
// statement reaches Execute.
func (e *Executor) RegisterTable(name string, tbl *storage.Table) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tables[name] = tbl
}

// SetEmbedFunc installs the host-provided embedding function SIMILARITY TO
// uses to turn query text into a vector; passing nil reverts to
// defaultEmbed.
func (e *Executor) SetEmbedFunc(embed EmbedFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.embed = embed
}

// Tables returns a snapshot of the full table catalog, keyed by name — used
// by recovery to replay WAL records against every known table.
func (e *Executor) Tables() map[string]*storage.Table {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]*storage.Table, len(e.tables))
	for k, v := range e.tables {
		out[k] = v
	}
	return out
}

// Execute dispatches stmt against tx's snapshot and write path.
func (e *Executor) Execute(tx *txn.Txn, stmt ast.Statement) (Result, error) {
	switch s := stmt.(type) {
	case ast.CreateTable:
		return Result{}, e.createTable(s)
	case ast.DropTable:
		return Result{}, e.dropTable(s)
	case ast.AlterTableAddColumn:
		return Result{}, e.alterTableAddColumn(s)
	case ast.CreateIndex:
		return Result{}, e.createIndex(s)
	case ast.DropIndex:
		return Result{}, e.dropIndex(s)
	case ast.Insert:
		return e.execInsert(tx, s)
	case ast.Update:
		return e.execUpdate(tx, s)
	case ast.Delete:
		return e.execDelete(tx, s)
	case ast.Select:
		return e.execSelect(tx, s)
	case ast.Vacuum:
		return e.execVacuum(s)
	case ast.AddEdge:
		return Result{}, e.execAddEdge(s)
	case ast.GraphQuery:
		return e.execGraphQuery(s)
	case ast.Begin, ast.Commit, ast.Rollback:
		// Transaction lifecycle statements produce or consume the *txn.Txn
		// handle Execute itself requires, so they are intercepted by the
		// database facade (pkg/db) before a statement ever reaches here.
		return Result{}, &dberrors.ParseForm{Reason: "BEGIN/COMMIT/ROLLBACK must be handled by the database facade, not the executor"}
	default:
		return Result{}, &dberrors.ParseForm{Reason: "unrecognized statement kind"}
	}
}

// resolveColumn implements spec.md §4.8's column-reference resolution:
// qualified names match directly; unqualified names fall back to a search
// over every "table.column" key in the tuple, failing on ambiguity.
func resolveColumn(t Tuple, ref ast.ColumnRef) (sqlvalue.Value, error) {
	if ref.Table != "" {
		v, ok := t[ref.Table+"."+ref.Column]
		if !ok {
			return sqlvalue.Value{}, &dberrors.SchemaError{Reason: "unknown column " + ref.Table + "." + ref.Column}
		}
		return v, nil
	}

	var match sqlvalue.Value
	found := 0
	for key, v := range t {
		_, col, _ := splitQualified(key)
		if col == ref.Column {
			match = v
			found++
		}
	}
	switch found {
	case 0:
		return sqlvalue.Value{}, &dberrors.SchemaError{Reason: "unknown column " + ref.Column}
	case 1:
		return match, nil
	default:
		return sqlvalue.Value{}, &dberrors.ValidationError{Reason: "ambiguous column reference " + ref.Column}
	}
}

func splitQualified(key string) (table, column string, ok bool) {
	i := strings.LastIndex(key, ".")
	if i < 0 {
		return "", key, false
	}
	return key[:i], key[i+1:], true
}

// sortTuples performs the multi-key stable sort of spec.md §4.8 step 5.
// Nulls sort low regardless of direction (spec.md §7 Open Questions: this
// implementation picks the source's convention rather than the SQL
// standard's "nulls last under ASC"). Value.Compare already ranks null below
// every non-null value, so only the non-null/non-null case gets negated
// under DESC — negating a null comparison too would push nulls last instead.
func sortTuples(rows []Tuple, keys []ast.OrderKey, runner SubqueryRunner) {
	sort.SliceStable(rows, func(i, j int) bool {
		for _, k := range keys {
			if _, isVibes := k.Expr.(ast.Vibes); isVibes {
				continue // vibes ordering is handled by the caller before sortTuples runs
			}
			vi, _ := Eval(rows[i], k.Expr, runner)
			vj, _ := Eval(rows[j], k.Expr, runner)
			c := vi.Compare(vj)
			if c == 0 {
				continue
			}
			if vi.IsNull() || vj.IsNull() {
				return c < 0
			}
			if k.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}
