package wal

import "time"

// SyncPolicy selects the durability/throughput tradeoff for non-commit
// writes. Commit records are always fsync'd regardless of policy — see
// Log.LogCommit — this only governs everything else.
type SyncPolicy int

const (
	// SyncEveryWrite fsyncs after every record. Safest, slowest.
	SyncEveryWrite SyncPolicy = iota

	// SyncInterval fsyncs periodically from a background goroutine.
	SyncInterval

	// SyncBatch fsyncs once accumulated unflushed bytes reach SyncBatchBytes
	// (DefaultOptions sets it to 4 KiB, the same as PageSize).
	SyncBatch
)

// Options configures a WALWriter / segmented Log.
type Options struct {
	// DirPath is the directory holding rotated segment files.
	DirPath string

	// BufferSize is the bufio buffer size wrapping each segment file.
	BufferSize int

	// PageSize is the nominal page size (default 4 KiB). The writer does not
	// read it: records are not packed or padded to page boundaries, and the
	// SyncBatch flush threshold is SyncBatchBytes.
	PageSize int64

	// SegmentMaxBytes rotates to a new segment once the current one grows
	// past this size (spec.md §4.6 default: 16 MiB).
	SegmentMaxBytes int64

	SyncPolicy           SyncPolicy
	SyncIntervalDuration time.Duration
	SyncBatchBytes       int64
}

// DefaultOptions returns spec.md §4.6's defaults: 4 KiB pages, 16 MiB
// segments, flush once a page's worth of bytes accumulate.
func DefaultOptions() Options {
	return Options{
		DirPath:         "./wal_data",
		BufferSize:      64 * 1024,
		PageSize:        4 * 1024,
		SegmentMaxBytes: 16 * 1024 * 1024,
		SyncPolicy:      SyncBatch,
		SyncBatchBytes:  4 * 1024,
	}
}
