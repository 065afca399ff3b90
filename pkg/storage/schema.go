// Package storage implements the row store (spec.md §3, §4.3): per-table
// version chains keyed by row id, maintained under the visibility rules of
// pkg/txn and indexed by pkg/btreeindex.
package storage

import "github.com/heliosdb/heliosdb/pkg/sqlvalue"

// Column describes one column of a table's schema.
type Column struct {
	Name string
	Kind sqlvalue.Kind
	// Dimension is the declared vector width; only meaningful when
	// Kind == sqlvalue.KindVector.
	Dimension int
}

// Schema is an ordered, name-unique list of columns. Column order is
// significant for persistence but not for lookup.
type Schema struct {
	Columns []Column
}

// IndexOf returns the position of name in the schema, or -1.
func (s Schema) IndexOf(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Column returns the column named name and whether it exists.
func (s Schema) Column(name string) (Column, bool) {
	i := s.IndexOf(name)
	if i < 0 {
		return Column{}, false
	}
	return s.Columns[i], true
}
