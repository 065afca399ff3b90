package db

import (
	"os"
	"path/filepath"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/heliosdb/heliosdb/pkg/dberrors"
	"github.com/heliosdb/heliosdb/pkg/sqlvalue"
	"github.com/heliosdb/heliosdb/pkg/storage"
)

// catalogFile is written alongside the per-table heap files. The teacher
// keeps TableMetaData purely in memory (every test/example re-declares its
// tables on startup); a durable HeliosDB needs the schema to survive a
// restart too, since LoadTable takes the schema as a parameter rather than
// reading it back out of the heap stream (spec.md §6 describes the table
// file's own header carrying the schema, but the heap format this repo
// builds on has no header section to carry one — see DESIGN.md).
type catalogFile struct {
	Tables []catalogTable `bson:"tables"`
}

type catalogTable struct {
	Name           string          `bson:"name"`
	Columns        []catalogColumn `bson:"columns"`
	IndexedColumns []string        `bson:"indexed_columns"`
}

type catalogColumn struct {
	Name      string `bson:"name"`
	Kind      uint8  `bson:"kind"`
	Dimension int    `bson:"dimension"`
}

func catalogPath(dir string) string {
	return filepath.Join(dir, "catalog.bson")
}

func tableDataPath(dir, table string) string {
	return filepath.Join(dir, "tables", table)
}

// saveCatalog overwrites the catalog file with the current schema and
// indexed-column set of every table. Called after every DDL statement
// commits to the catalog (spec.md §4.8: "mutate the catalog; log a schema
// record").
func saveCatalog(dir string, tables map[string]*storage.Table) error {
	if dir == "" {
		return nil
	}
	cf := catalogFile{Tables: make([]catalogTable, 0, len(tables))}
	for name, tbl := range tables {
		cols := make([]catalogColumn, len(tbl.Schema.Columns))
		for i, c := range tbl.Schema.Columns {
			cols[i] = catalogColumn{Name: c.Name, Kind: uint8(c.Kind), Dimension: c.Dimension}
		}
		cf.Tables = append(cf.Tables, catalogTable{
			Name:           name,
			Columns:        cols,
			IndexedColumns: tbl.IndexedColumns(),
		})
	}

	doc, err := bson.Marshal(cf)
	if err != nil {
		return &dberrors.IOError{Op: "marshal catalog", Err: err}
	}
	// A table registered in the catalog before its first Checkpoint has no
	// heap file yet; ensure the directory LoadTable will look in exists so a
	// restart's recovery-only (no-checkpoint) path can create one on demand.
	if err := os.MkdirAll(filepath.Join(dir, "tables"), 0o755); err != nil {
		return &dberrors.IOError{Op: "create tables directory", Err: err}
	}
	tmp := catalogPath(dir) + ".tmp"
	if err := os.WriteFile(tmp, doc, 0o644); err != nil {
		return &dberrors.IOError{Op: "write catalog", Err: err}
	}
	if err := os.Rename(tmp, catalogPath(dir)); err != nil {
		return &dberrors.IOError{Op: "install catalog", Err: err}
	}
	return nil
}

// loadCatalog reads the catalog file (if any) and loads each named table
// from its heap file on disk. Returns a nil slice and no error when no
// catalog file exists yet (a brand-new data directory).
func loadCatalog(dir string) ([]*storage.Table, error) {
	doc, err := os.ReadFile(catalogPath(dir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, &dberrors.IOError{Op: "read catalog", Err: err}
	}

	var cf catalogFile
	if err := bson.Unmarshal(doc, &cf); err != nil {
		return nil, &dberrors.CorruptionError{Location: catalogPath(dir), Reason: "malformed catalog file"}
	}

	tables := make([]*storage.Table, 0, len(cf.Tables))
	for _, ct := range cf.Tables {
		schema := storage.Schema{Columns: make([]storage.Column, len(ct.Columns))}
		for i, c := range ct.Columns {
			schema.Columns[i] = storage.Column{
				Name:      c.Name,
				Kind:      sqlvalue.Kind(c.Kind),
				Dimension: c.Dimension,
			}
		}
		path := tableDataPath(dir, ct.Name)
		tbl, err := storage.LoadTable(ct.Name, schema, ct.IndexedColumns, path)
		if err != nil {
			return nil, err
		}
		if err := storage.LoadVectorIndexes(tbl, path); err != nil {
			return nil, err
		}
		tables = append(tables, tbl)
	}
	return tables, nil
}
