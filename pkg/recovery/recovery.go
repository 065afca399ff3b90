// Package recovery implements the two-pass WAL redo algorithm from
// spec.md §4.7: Analysis determines which transactions are
// recoverable-committed, then Redo reapplies their row operations in log
// order and rebuilds the indexes HNSW never logs individually.
package recovery

import (
	"github.com/heliosdb/heliosdb/pkg/clog"
	"github.com/heliosdb/heliosdb/pkg/dberrors"
	"github.com/heliosdb/heliosdb/pkg/sqlvalue"
	"github.com/heliosdb/heliosdb/pkg/storage"
	"github.com/heliosdb/heliosdb/pkg/txn"
	"github.com/heliosdb/heliosdb/pkg/wal"
)

// Stats summarizes one recovery run.
type Stats struct {
	RecordsScanned     int
	TransactionsCommit int
	TransactionsAbort  int
	RowsReplayed       int
}

// txSummary tracks pass 1's per-transaction observations.
type txSummary struct {
	sawCommit bool
	sawAbort  bool
}

// Recover replays walDir against tables (keyed by table name), which must
// already exist with their schemas registered (recovery does not re-derive
// DDL from the log). cl and mgr are updated so that CLOG and the next
// transaction id reflect everything the log proves happened.
func Recover(walDir string, tables map[string]*storage.Table, cl *clog.CLog, mgr *txn.Manager) (Stats, error) {
	var stats Stats

	summaries := make(map[uint64]*txSummary)
	summaryFor := func(txID uint64) *txSummary {
		s, ok := summaries[txID]
		if !ok {
			s = &txSummary{}
			summaries[txID] = s
		}
		return s
	}

	// redoFrom is the first segment Pass 2 actually needs to reapply. CLOG
	// has no durable copy of its own, so Pass 1 always walks the whole WAL
	// to re-derive every transaction's final status; but a CHECKPOINT
	// record proves every row op in a segment strictly before its own is
	// already baked into the table files Pass 2 loaded, so Pass 2 can skip
	// straight past them (spec.md §6: "a checkpoint record allows
	// trimming"). The checkpoint's own segment is still replayed in full —
	// it may carry commits appended right after the checkpoint record
	// itself, since the writer does not rotate segments just to take one.
	var redoFrom uint64

	// Pass 1: Analysis.
	err := wal.ReplayAll(walDir, func(entry *wal.WALEntry) error {
		stats.RecordsScanned++
		switch entry.Header.EntryType {
		case wal.EntryBegin:
			txID, err := wal.DecodeTxID(entry.Payload)
			if err != nil {
				return err
			}
			summaryFor(txID)
		case wal.EntryCommit:
			txID, err := wal.DecodeTxID(entry.Payload)
			if err != nil {
				return err
			}
			summaryFor(txID).sawCommit = true
		case wal.EntryAbort:
			txID, err := wal.DecodeTxID(entry.Payload)
			if err != nil {
				return err
			}
			summaryFor(txID).sawAbort = true
		case wal.EntryInsert, wal.EntryUpdate, wal.EntryDelete:
			rec, err := wal.DecodeRowRecord(entry.Payload)
			if err != nil {
				return err
			}
			summaryFor(rec.TxID)
		case wal.EntryCheckpoint:
			rec, err := wal.DecodeCheckpoint(entry.Payload)
			if err != nil {
				return err
			}
			redoFrom = rec.SegmentSeq
		}
		return nil
	})
	if err != nil {
		return stats, &dberrors.IOError{Op: "recovery pass 1 (analysis)", Err: err}
	}

	var maxTxID uint64
	for txID := range summaries {
		if txID > maxTxID {
			maxTxID = txID
		}
	}

	// Pass 2: Redo. A transaction lacking a COMMIT record — including one
	// cut off mid-flight by a crash — is implicitly aborted.
	err = wal.ReplayFrom(walDir, redoFrom, func(entry *wal.WALEntry) error {
		switch entry.Header.EntryType {
		case wal.EntryInsert, wal.EntryUpdate, wal.EntryDelete:
			rec, err := wal.DecodeRowRecord(entry.Payload)
			if err != nil {
				return err
			}
			if !summaries[rec.TxID].sawCommit {
				return nil
			}
			tbl, ok := tables[rec.Table]
			if !ok {
				return &dberrors.CorruptionError{Location: walDir, Reason: "row record references unknown table " + rec.Table}
			}

			switch entry.Header.EntryType {
			case wal.EntryInsert:
				values, err := sqlvalue.DecodeMap(rec.Values)
				if err != nil {
					return err
				}
				tbl.RecoverInsert(rec.RowID, rec.TxID, values)
			case wal.EntryUpdate:
				values, err := sqlvalue.DecodeMap(rec.Values)
				if err != nil {
					return err
				}
				tbl.RecoverUpdate(rec.RowID, rec.TxID, values)
			case wal.EntryDelete:
				tbl.RecoverDelete(rec.RowID, rec.TxID)
			}
			stats.RowsReplayed++
		}
		return nil
	})
	if err != nil {
		return stats, &dberrors.IOError{Op: "recovery pass 2 (redo)", Err: err}
	}

	for txID, s := range summaries {
		if s.sawCommit {
			cl.MarkCommitted(txID)
			stats.TransactionsCommit++
		} else {
			cl.MarkAborted(txID)
			stats.TransactionsAbort++
		}
	}
	if mgr != nil {
		mgr.FastForward(maxTxID)
	}

	for _, tbl := range tables {
		tbl.RebuildIndexes()
	}
	return stats, nil
}
