package executor

import (
	"github.com/heliosdb/heliosdb/pkg/ast"
	"github.com/heliosdb/heliosdb/pkg/btreeindex"
	"github.com/heliosdb/heliosdb/pkg/dberrors"
	"github.com/heliosdb/heliosdb/pkg/sqlvalue"
	"github.com/heliosdb/heliosdb/pkg/storage"
)

// createTable mutates the catalog under lock. Schema records are not
// WAL-logged as a distinct entry type (the teacher's WAL carries only
// tx/row records); DDL durability instead comes from the catalog file the
// database facade (pkg/db) rewrites after each DDL statement — see
// DESIGN.md for why no new WAL record kind was introduced for this.
func (e *Executor) createTable(s ast.CreateTable) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.tables[s.Table]; exists {
		return &dberrors.SchemaError{Reason: "table " + s.Table + " already exists"}
	}
	schema := storage.Schema{Columns: make([]storage.Column, len(s.Columns))}
	for i, c := range s.Columns {
		schema.Columns[i] = storage.Column{Name: c.Name, Kind: c.Kind, Dimension: c.Dimension}
	}
	e.tables[s.Table] = storage.NewTable(s.Table, schema, nil)
	return nil
}

func (e *Executor) dropTable(s ast.DropTable) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.tables[s.Table]; !exists {
		return &dberrors.SchemaError{Reason: "unknown table " + s.Table}
	}
	delete(e.tables, s.Table)
	return nil
}

// alterTableAddColumn is restricted to an empty table (spec.md §4.8): the
// AST has no DEFAULT-value clause, so the "default-filled table" variant the
// spec allows is out of reach without a richer grammar.
func (e *Executor) alterTableAddColumn(s ast.AlterTableAddColumn) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	tbl, ok := e.tables[s.Table]
	if !ok {
		return &dberrors.SchemaError{Reason: "unknown table " + s.Table}
	}
	if len(tbl.AllRowIDs()) > 0 {
		return &dberrors.SchemaError{Reason: "ALTER TABLE ADD COLUMN requires an empty table"}
	}
	if _, exists := tbl.Schema.Column(s.Column.Name); exists {
		return &dberrors.SchemaError{Reason: "column " + s.Column.Name + " already exists"}
	}
	tbl.Schema.Columns = append(tbl.Schema.Columns, storage.Column{
		Name: s.Column.Name, Kind: s.Column.Kind, Dimension: s.Column.Dimension,
	})
	return nil
}

func (e *Executor) createIndex(s ast.CreateIndex) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	tbl, ok := e.tables[s.Table]
	if !ok {
		return &dberrors.SchemaError{Reason: "unknown table " + s.Table}
	}
	col, ok := tbl.Schema.Column(s.Column)
	if !ok {
		return &dberrors.SchemaError{Reason: "unknown column " + s.Column}
	}
	if col.Kind == sqlvalue.KindVector {
		return &dberrors.SchemaError{Reason: "vector columns already carry an HNSW index, not a secondary B-tree index"}
	}
	if tbl.Index(s.Column) != nil {
		return nil // already indexed; CREATE INDEX is idempotent
	}
	tbl.AddIndex(s.Column, btreeindex.New())
	return nil
}

func (e *Executor) dropIndex(s ast.DropIndex) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	tbl, ok := e.tables[s.Table]
	if !ok {
		return &dberrors.SchemaError{Reason: "unknown table " + s.Table}
	}
	tbl.RemoveIndex(s.Column)
	return nil
}
