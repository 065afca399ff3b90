package storage

import (
	"io"
	"os"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/heliosdb/heliosdb/pkg/dberrors"
	"github.com/heliosdb/heliosdb/pkg/heap"
	"github.com/heliosdb/heliosdb/pkg/hnsw"
	"github.com/heliosdb/heliosdb/pkg/sqlvalue"
)

// tableRecord is one version chain link's on-disk payload: the heap entry's
// CreateLSN/DeleteLSN/PrevOffset already carry xmin/xmax/next (see
// pkg/heap's package doc), so the payload itself only needs the row id and
// column values.
type tableRecord struct {
	RowID  uint64 `bson:"row_id"`
	Values bson.D `bson:"values"`
}

// SaveTable writes every version chain to a fresh heap file rooted at
// basePath (spec.md §6: "one file per table ... a stream of versions in
// chain order"). basePath must not already have segments — callers wanting
// a point-in-time checkpoint write to a new path and rename it into place.
func SaveTable(t *Table, basePath string) error {
	hm, err := heap.NewHeapManager(basePath)
	if err != nil {
		return &dberrors.IOError{Op: "open table heap for save", Err: err}
	}
	defer hm.Close()

	t.mu.RLock()
	heads := make([]*RowVersion, 0, len(t.chainHead))
	for _, v := range t.chainHead {
		heads = append(heads, v)
	}
	t.mu.RUnlock()

	for _, head := range heads {
		var chain []*RowVersion
		for v := head; v != nil; v = v.Next {
			chain = append(chain, v)
		}
		// chain is newest-first (walking Next); write oldest-first so each
		// entry's PrevOffset names an offset already on disk.
		offsetOf := make(map[*RowVersion]int64, len(chain))
		for i := len(chain) - 1; i >= 0; i-- {
			v := chain[i]
			prevOffset := int64(-1)
			if i+1 < len(chain) {
				prevOffset = offsetOf[chain[i+1]]
			}

			values, err := sqlvalue.EncodeMap(v.Values)
			if err != nil {
				return &dberrors.IOError{Op: "encode row version", Err: err}
			}
			doc, err := bson.Marshal(tableRecord{RowID: v.RowID, Values: values})
			if err != nil {
				return &dberrors.IOError{Op: "marshal row version", Err: err}
			}

			offset, err := hm.Write(doc, v.Xmin, prevOffset)
			if err != nil {
				return &dberrors.IOError{Op: "write row version", Err: err}
			}
			if v.Xmax != 0 {
				if err := hm.Delete(offset, v.Xmax); err != nil {
					return &dberrors.IOError{Op: "stamp tombstone", Err: err}
				}
			}
			offsetOf[v] = offset
		}
	}
	return nil
}

// LoadTable rebuilds a Table from a heap file previously written by
// SaveTable, replaying every version chain and then re-populating the
// secondary and vector indexes from each row's current (xmax == 0) head.
func LoadTable(name string, schema Schema, indexedColumns []string, basePath string) (*Table, error) {
	hm, err := heap.NewHeapManager(basePath)
	if err != nil {
		return nil, &dberrors.IOError{Op: "open table heap for load", Err: err}
	}
	defer hm.Close()

	it, err := hm.NewIterator()
	if err != nil {
		return nil, &dberrors.IOError{Op: "open table heap iterator", Err: err}
	}
	defer it.Close()

	t := NewTable(name, schema, indexedColumns)
	byOffset := make(map[int64]*RowVersion)
	var maxRowID uint64

	for {
		doc, header, offset, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &dberrors.IOError{Op: "iterate table heap", Err: err}
		}

		var rec tableRecord
		if err := bson.Unmarshal(doc, &rec); err != nil {
			return nil, &dberrors.CorruptionError{Location: basePath, Reason: "malformed row version payload"}
		}
		values, err := sqlvalue.DecodeMap(rec.Values)
		if err != nil {
			return nil, &dberrors.CorruptionError{Location: basePath, Reason: "malformed row version values"}
		}

		var next *RowVersion
		if header.PrevOffset >= 0 {
			next = byOffset[header.PrevOffset]
		}
		v := &RowVersion{
			RowID:  rec.RowID,
			Xmin:   header.CreateLSN,
			Xmax:   header.DeleteLSN,
			Values: values,
			Next:   next,
		}
		byOffset[offset] = v
		t.chainHead[rec.RowID] = v // last version written for a row id is its current head
		if rec.RowID > maxRowID {
			maxRowID = rec.RowID
		}
	}

	t.nextRowID.Store(maxRowID)
	for rowID, head := range t.chainHead {
		if head.Xmax == 0 {
			t.addToIndexes(rowID, head.Values)
		}
	}
	return t, nil
}

// vectorIndexPath names the HNSW file for one vector column, kept alongside
// the table's own heap segments (spec.md §6: "one HNSW file per (dimension,
// column) pair").
func vectorIndexPath(basePath, column string) string {
	return basePath + "." + column + ".hnsw"
}

// SaveVectorIndexes writes one HNSW file per vector column of t, rooted at
// basePath. Called alongside SaveTable on checkpoint, since a table's vector
// indexes are a separate file from its row heap (spec.md §6).
func SaveVectorIndexes(t *Table, basePath string) error {
	t.mu.RLock()
	cols := make([]string, 0, len(t.vectors))
	for col := range t.vectors {
		cols = append(cols, col)
	}
	t.mu.RUnlock()

	for _, col := range cols {
		f, err := os.Create(vectorIndexPath(basePath, col))
		if err != nil {
			return &dberrors.IOError{Op: "create hnsw file", Err: err}
		}
		err = hnsw.Save(t.VectorIndex(col), t.Edges(col), f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return &dberrors.IOError{Op: "save hnsw file", Err: err}
		}
	}
	return nil
}

// InstallVectorIndexes atomically replaces base's HNSW files with the ones
// just checkpointed at tmpBase, mirroring the heap segment rename-over in
// the caller's checkpoint swap.
func InstallVectorIndexes(t *Table, base, tmpBase string) error {
	t.mu.RLock()
	cols := make([]string, 0, len(t.vectors))
	for col := range t.vectors {
		cols = append(cols, col)
	}
	t.mu.RUnlock()

	for _, col := range cols {
		src := vectorIndexPath(tmpBase, col)
		dest := vectorIndexPath(base, col)
		os.Remove(dest)
		if err := os.Rename(src, dest); err != nil {
			return &dberrors.IOError{Op: "install hnsw file", Err: err}
		}
	}
	return nil
}

// LoadVectorIndexes loads every vector column's HNSW file for t, if one
// exists at basePath, replacing the empty index LoadTable's addToIndexes
// pass just built from the row values. A missing file is not an error: it
// means the table was never checkpointed, and the from-scratch rebuild
// LoadTable already did stands in (spec.md §4.6: "HNSW indexes are rebuilt
// by scanning tables" when no persisted index is available). That rebuild
// re-derives node metadata from the row values; only GraphRAG edges, which
// are neither WAL-logged nor stored in any row, are lost.
func LoadVectorIndexes(t *Table, basePath string) error {
	t.mu.RLock()
	cols := make([]string, 0, len(t.vectors))
	for col := range t.vectors {
		cols = append(cols, col)
	}
	t.mu.RUnlock()

	for _, col := range cols {
		f, err := os.Open(vectorIndexPath(basePath, col))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return &dberrors.IOError{Op: "open hnsw file", Err: err}
		}
		ix, es, err := hnsw.Load(f)
		f.Close()
		if err != nil {
			return err
		}

		t.mu.Lock()
		t.vectors[col] = ix
		t.edges[col] = es
		t.mu.Unlock()
	}
	return nil
}
