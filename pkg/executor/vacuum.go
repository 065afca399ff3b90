package executor

import (
	"github.com/heliosdb/heliosdb/pkg/ast"
	"github.com/heliosdb/heliosdb/pkg/dberrors"
	"github.com/heliosdb/heliosdb/pkg/storage"
)

// execVacuum dispatches VACUUM against one table or, with no table named,
// every table in the catalog (spec.md §4.8). The horizon is TM's oldest
// active transaction id, i.e. the snapshot no currently-running transaction
// predates.
func (e *Executor) execVacuum(s ast.Vacuum) (Result, error) {
	horizon := e.mgr.OldestActiveTx()
	stats := make(map[string]storage.VacuumStats)

	if s.Table != "" {
		tbl := e.Table(s.Table)
		if tbl == nil {
			return Result{}, &dberrors.SchemaError{Reason: "unknown table " + s.Table}
		}
		stats[s.Table] = tbl.Vacuum(horizon, e.cl)
		return Result{VacuumStats: stats}, nil
	}

	e.mu.RLock()
	names := make([]string, 0, len(e.tables))
	tables := make(map[string]*storage.Table, len(e.tables))
	for name, tbl := range e.tables {
		names = append(names, name)
		tables[name] = tbl
	}
	e.mu.RUnlock()

	for _, name := range names {
		stats[name] = tables[name].Vacuum(horizon, e.cl)
	}
	return Result{VacuumStats: stats}, nil
}
