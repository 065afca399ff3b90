package storage

import "github.com/heliosdb/heliosdb/pkg/sqlvalue"

// RowVersion is an immutable link in a row's version chain (spec.md §3).
// xmax == 0 means the version has not been superseded or deleted.
type RowVersion struct {
	RowID  uint64
	Xmin   uint64
	Xmax   uint64
	Values map[string]sqlvalue.Value
	Next   *RowVersion // older version, nil at the tail
}
