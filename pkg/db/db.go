// Package db is the database facade (spec.md §9 Design Notes): it owns the
// table catalog, the transaction manager, the CLOG, and the WAL, and is the
// single entry point an embedding host drives — Begin/Commit/Rollback plus
// Execute for every other ast.Statement. It is grounded on the teacher's
// StorageEngine + Transaction pairing in pkg/storage/engine.go, generalized
// from a single-index key/value engine to the full row-store-plus-executor
// stack built in pkg/executor.
package db

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/heliosdb/heliosdb/pkg/ast"
	"github.com/heliosdb/heliosdb/pkg/clog"
	"github.com/heliosdb/heliosdb/pkg/dberrors"
	"github.com/heliosdb/heliosdb/pkg/executor"
	"github.com/heliosdb/heliosdb/pkg/recovery"
	"github.com/heliosdb/heliosdb/pkg/storage"
	"github.com/heliosdb/heliosdb/pkg/txn"
	"github.com/heliosdb/heliosdb/pkg/wal"
)

// Options configures Open. An empty DataDir selects in-memory-only mode: no
// WAL, no catalog file, nothing survives process exit (useful for tests and
// for the "ephemeral scratch database" case the teacher's NewStorageEngine
// also supports via a nil WALWriter).
type Options struct {
	DataDir string
	WAL     wal.Options
}

// Database is the top-level handle an embedding host opens once and shares
// across goroutines; every call threads its own *txn.Txn explicitly rather
// than relying on ambient/thread-local transaction state (spec.md §9).
type Database struct {
	dir string
	cl  *clog.CLog
	mgr *txn.Manager
	log *wal.Log
	ex  *executor.Executor
}

// Open opens (or creates) a database rooted at opts.DataDir, replaying its
// WAL against the catalog loaded from disk. opts.DataDir == "" opens an
// in-memory database with no durability.
func Open(opts Options) (*Database, error) {
	cl := clog.New()

	var log *wal.Log
	var walDir string
	if opts.DataDir != "" {
		walOpts := opts.WAL
		if walOpts == (wal.Options{}) {
			walOpts = wal.DefaultOptions()
		}
		walDir = filepath.Join(opts.DataDir, "wal")
		walOpts.DirPath = walDir

		var err error
		log, err = wal.Open(walOpts)
		if err != nil {
			return nil, &dberrors.IOError{Op: "open WAL", Err: err}
		}
	}

	// log is a typed *wal.Log that may be nil; passed as the txn.WAL
	// interface directly it would produce a non-nil interface wrapping a
	// nil pointer, so pass an explicit untyped nil when there is no WAL.
	var walIface txn.WAL
	if log != nil {
		walIface = log
	}
	mgr := txn.NewManager(cl, walIface)
	ex := executor.New(mgr, cl, log)
	d := &Database{dir: opts.DataDir, cl: cl, mgr: mgr, log: log, ex: ex}

	if opts.DataDir == "" {
		return d, nil
	}

	tables, err := loadCatalog(opts.DataDir)
	if err != nil {
		return nil, err
	}
	for _, tbl := range tables {
		ex.RegisterTable(tbl.Name, tbl)
	}

	if _, err := recovery.Recover(walDir, ex.Tables(), cl, mgr); err != nil {
		return nil, err
	}
	return d, nil
}

// Begin starts a new transaction.
func (d *Database) Begin() *txn.Txn { return d.mgr.Begin() }

// Commit commits tx.
func (d *Database) Commit(tx *txn.Txn) error { return d.mgr.Commit(tx) }

// Rollback aborts tx, unwinding every write it applied.
func (d *Database) Rollback(tx *txn.Txn) error { return d.mgr.Rollback(tx) }

// Execute dispatches stmt under tx. BEGIN/COMMIT/ROLLBACK are intercepted
// here rather than reaching the executor, which rejects them outright
// (spec.md §9: the executor has no business producing or consuming a *Txn
// handle it wasn't handed).
func (d *Database) Execute(tx *txn.Txn, stmt ast.Statement) (executor.Result, error) {
	switch stmt.(type) {
	case ast.Begin:
		return executor.Result{}, &dberrors.ParseForm{Reason: "BEGIN issued inside an existing transaction; call Database.Begin instead"}
	case ast.Commit:
		return executor.Result{}, d.Commit(tx)
	case ast.Rollback:
		return executor.Result{}, d.Rollback(tx)
	}

	res, err := d.ex.Execute(tx, stmt)
	if err != nil {
		return res, err
	}
	return res, d.saveCatalogIfDDL(stmt)
}

// Autocommit runs stmt in its own transaction, committing on success and
// rolling back on error — the convenience path the teacher's bare
// StorageEngine.Get/Scan/Put wrappers provide over the explicit
// Transaction-scoped calls.
func (d *Database) Autocommit(stmt ast.Statement) (executor.Result, error) {
	tx := d.Begin()
	res, err := d.ex.Execute(tx, stmt)
	if err != nil {
		d.Rollback(tx)
		return res, err
	}
	if cerr := d.Commit(tx); cerr != nil {
		return res, cerr
	}
	return res, d.saveCatalogIfDDL(stmt)
}

// saveCatalogIfDDL persists the catalog file after a catalog-mutating
// statement commits, so schema changes survive a restart (spec.md §4.8:
// "mutate the catalog; log a schema record").
func (d *Database) saveCatalogIfDDL(stmt ast.Statement) error {
	switch stmt.(type) {
	case ast.CreateTable, ast.DropTable, ast.AlterTableAddColumn, ast.CreateIndex, ast.DropIndex:
		return saveCatalog(d.dir, d.ex.Tables())
	}
	return nil
}

// Table exposes the named table directly, e.g. for HNSW search callers that
// need pkg/storage.Table.VectorIndex/Edges rather than going through the
// SQL executor.
func (d *Database) Table(name string) *storage.Table { return d.ex.Table(name) }

// Checkpoint writes every table's current state — its heap file plus one
// HNSW file per vector column — and logs a WAL checkpoint record (spec.md
// §6: "a checkpoint record allows trimming"). It mirrors the teacher's
// StorageEngine.CreateCheckpoint, generalized from one B+Tree-per-index
// checkpoint to one full version-chain snapshot per table.
func (d *Database) Checkpoint() error {
	if d.dir == "" {
		return nil // nothing to durably checkpoint in memory-only mode
	}
	tables := d.ex.Tables()
	if err := os.MkdirAll(filepath.Join(d.dir, "tables"), 0o755); err != nil {
		return &dberrors.IOError{Op: "create tables directory", Err: err}
	}
	for name, tbl := range tables {
		if err := checkpointTable(d.dir, name, tbl); err != nil {
			return err
		}
	}
	if err := saveCatalog(d.dir, tables); err != nil {
		return err
	}
	if d.log != nil {
		if _, err := d.log.LogCheckpoint(); err != nil {
			return &dberrors.IOError{Op: "wal checkpoint record", Err: err}
		}
	}
	return nil
}

// checkpointTable writes tbl to a temporary base path, then atomically
// swaps it over the table's live heap segments — the same rename-over
// pattern the teacher's Vacuum uses to replace a heap file out from under
// readers without a window where the file is missing.
func checkpointTable(dir, name string, tbl *storage.Table) error {
	base := tableDataPath(dir, name)
	tmpBase := base + ".checkpoint"

	for _, f := range matchSegments(tmpBase) {
		os.Remove(f)
	}
	if err := storage.SaveTable(tbl, tmpBase); err != nil {
		return err
	}
	if err := storage.SaveVectorIndexes(tbl, tmpBase); err != nil {
		return err
	}

	for _, f := range matchSegments(base) {
		os.Remove(f)
	}
	for _, f := range matchSegments(tmpBase) {
		dest := base + f[len(tmpBase):]
		if err := os.Rename(f, dest); err != nil {
			return &dberrors.IOError{Op: "install checkpointed table file", Err: err}
		}
	}
	return storage.InstallVectorIndexes(tbl, base, tmpBase)
}

func matchSegments(base string) []string {
	files, _ := filepath.Glob(fmt.Sprintf("%s_[0-9][0-9][0-9].data", base))
	return files
}

// Close flushes a final checkpoint (if durable) and releases the WAL.
func (d *Database) Close() error {
	if d.dir != "" {
		if err := d.Checkpoint(); err != nil {
			return err
		}
	}
	if d.log != nil {
		return d.log.Close()
	}
	return nil
}
