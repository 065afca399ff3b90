// log.go is the high-level append path the rest of HeliosDB talks to: it
// assigns LSNs, encodes record payloads as BSON (matching the teacher's
// pkg/storage/bson.go convention of bson.D everywhere rather than typed
// structs), and satisfies pkg/txn's WAL interface so the transaction
// manager can log BEGIN/COMMIT/ABORT without importing this package's
// concrete type.
package wal

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Log is the write path shared by the transaction manager and the row
// store. One Log owns one WAL directory.
type Log struct {
	writer *WALWriter
	lsn    atomic.Uint64
}

// Open resumes (or creates) a WAL directory under opts.DirPath.
func Open(opts Options) (*Log, error) {
	w, err := NewWALWriter(opts.DirPath, opts)
	if err != nil {
		return nil, err
	}
	return &Log{writer: w}, nil
}

func (l *Log) append(entryType uint8, payload []byte) error {
	entry := &WALEntry{
		Header: WALHeader{
			Magic:      WALMagic,
			Version:    WALVersion,
			EntryType:  entryType,
			LSN:        l.lsn.Add(1),
			PayloadLen: uint32(len(payload)),
			CRC32:      CalculateCRC32(payload),
		},
		Payload: payload,
	}
	return l.writer.WriteEntry(entry)
}

// LogBegin satisfies pkg/txn.WAL.
func (l *Log) LogBegin(txID uint64) error {
	payload, err := encodeTxPayload(txID)
	if err != nil {
		return err
	}
	return l.append(EntryBegin, payload)
}

// LogCommit satisfies pkg/txn.WAL. The commit record is forced to disk
// immediately: spec.md §4.1 requires WAL durability to precede the CLOG
// flip, and the transaction manager flips CLOG right after this returns.
func (l *Log) LogCommit(txID uint64) error {
	payload, err := encodeTxPayload(txID)
	if err != nil {
		return err
	}
	if err := l.append(EntryCommit, payload); err != nil {
		return err
	}
	return l.writer.Sync()
}

// LogAbort satisfies pkg/txn.WAL.
func (l *Log) LogAbort(txID uint64) error {
	payload, err := encodeTxPayload(txID)
	if err != nil {
		return err
	}
	if err := l.append(EntryAbort, payload); err != nil {
		return err
	}
	return l.writer.Sync()
}

// RowRecord is the decoded form of an INSERT/UPDATE/DELETE payload.
// Values is nil for DELETE.
type RowRecord struct {
	TxID   uint64 `bson:"tx_id"`
	Table  string `bson:"table"`
	RowID  uint64 `bson:"row_id"`
	Values bson.D `bson:"values"`
}

// LogInsert writes an INSERT record carrying the row's full value set.
func (l *Log) LogInsert(txID uint64, table string, rowID uint64, values bson.D) error {
	payload, err := encodeRowPayload(txID, table, rowID, values)
	if err != nil {
		return err
	}
	return l.append(EntryInsert, payload)
}

// LogUpdate writes an UPDATE record carrying the new row version's full
// value set (the row store always writes a fresh version rather than a
// diff, per spec.md §4.3, so recovery never needs to apply a delta).
func (l *Log) LogUpdate(txID uint64, table string, rowID uint64, values bson.D) error {
	payload, err := encodeRowPayload(txID, table, rowID, values)
	if err != nil {
		return err
	}
	return l.append(EntryUpdate, payload)
}

// LogDelete writes a DELETE record. No values are carried — recovery only
// needs to know which row's chain head to mark xmax.
func (l *Log) LogDelete(txID uint64, table string, rowID uint64) error {
	payload, err := encodeRowPayload(txID, table, rowID, nil)
	if err != nil {
		return err
	}
	return l.append(EntryDelete, payload)
}

// CheckpointRecord marks a trim horizon: every segment strictly before
// SegmentSeq is fully reflected in the checkpointed snapshot and is safe to
// skip on redo (or delete, once that snapshot itself is durable) — the
// segment named by SegmentSeq itself is still live, since the writer does
// not rotate onto a fresh segment just to take a checkpoint. ID correlates
// the WAL record with the on-disk table/HNSW snapshot it describes, for
// diagnostics.
type CheckpointRecord struct {
	ID         string `bson:"id"`
	SegmentSeq uint64 `bson:"segment_seq"`
}

// newCheckpointID mints a time-ordered identifier for one checkpoint, the
// same way the teacher's storage.GenerateKey mints primary keys: a V7 UUID
// carries its own creation order, so checkpoint IDs sort the way they were
// taken without a separate counter.
func newCheckpointID() string {
	id, err := uuid.NewV7()
	if err != nil {
		panic(err) // entropy source failure; the teacher's GenerateKey treats this the same way
	}
	return id.String()
}

// LogCheckpoint writes a CHECKPOINT record naming the segment currently
// being written as the trim horizon, returning the record's own ID.
func (l *Log) LogCheckpoint() (string, error) {
	id := newCheckpointID()
	payload, err := bson.Marshal(CheckpointRecord{ID: id, SegmentSeq: l.writer.CurrentSequence()})
	if err != nil {
		return "", fmt.Errorf("encode checkpoint payload: %w", err)
	}
	if err := l.append(EntryCheckpoint, payload); err != nil {
		return "", err
	}
	return id, l.writer.Sync()
}

func (l *Log) Close() error { return l.writer.Close() }

func encodeTxPayload(txID uint64) ([]byte, error) {
	b, err := bson.Marshal(bson.D{{Key: "tx_id", Value: txID}})
	if err != nil {
		return nil, fmt.Errorf("encode tx payload: %w", err)
	}
	return b, nil
}

// DecodeTxID decodes a BEGIN/COMMIT/ABORT payload.
func DecodeTxID(payload []byte) (uint64, error) {
	var doc struct {
		TxID uint64 `bson:"tx_id"`
	}
	if err := bson.Unmarshal(payload, &doc); err != nil {
		return 0, fmt.Errorf("decode tx payload: %w", err)
	}
	return doc.TxID, nil
}

func encodeRowPayload(txID uint64, table string, rowID uint64, values bson.D) ([]byte, error) {
	b, err := bson.Marshal(bson.D{
		{Key: "tx_id", Value: txID},
		{Key: "table", Value: table},
		{Key: "row_id", Value: rowID},
		{Key: "values", Value: values},
	})
	if err != nil {
		return nil, fmt.Errorf("encode row payload: %w", err)
	}
	return b, nil
}

// DecodeRowRecord decodes an INSERT/UPDATE/DELETE payload.
func DecodeRowRecord(payload []byte) (RowRecord, error) {
	var rec RowRecord
	if err := bson.Unmarshal(payload, &rec); err != nil {
		return RowRecord{}, fmt.Errorf("decode row payload: %w", err)
	}
	return rec, nil
}

// DecodeCheckpoint decodes a CHECKPOINT payload.
func DecodeCheckpoint(payload []byte) (CheckpointRecord, error) {
	var rec CheckpointRecord
	if err := bson.Unmarshal(payload, &rec); err != nil {
		return CheckpointRecord{}, fmt.Errorf("decode checkpoint payload: %w", err)
	}
	return rec, nil
}
