package wal

import (
	"bufio"
	"fmt"
	"os"
	"sync"
	"time"
)

// WALWriter is the single-producer append path for one WAL directory: it
// serializes every record through one mutex (spec.md §4.6 — "WAL writer is
// single-producer"), packs them into the current segment file, and rotates
// to a new sequence-numbered segment once SegmentMaxBytes is exceeded.
type WALWriter struct {
	mu      sync.Mutex
	dir     string
	options Options

	file       *os.File
	writer     *bufio.Writer
	curSeq     uint64
	fileBytes  int64 // bytes written to the current segment since it was opened
	batchBytes int64 // bytes written since the last sync

	done   chan struct{}
	ticker *time.Ticker
	closed bool
}

// NewWALWriter opens (or creates) dir and resumes appending after whatever
// segment was written last, so restarting never clobbers prior records.
func NewWALWriter(dir string, opts Options) (*WALWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create wal directory: %w", err)
	}

	seqs, err := listSegments(dir)
	if err != nil {
		return nil, fmt.Errorf("list wal segments: %w", err)
	}

	var seq uint64 = 1
	if len(seqs) > 0 {
		seq = seqs[len(seqs)-1]
	}

	w := &WALWriter{
		dir:     dir,
		options: opts,
		done:    make(chan struct{}),
	}
	if err := w.openSegment(seq); err != nil {
		return nil, err
	}

	if opts.SyncPolicy == SyncInterval {
		w.ticker = time.NewTicker(opts.SyncIntervalDuration)
		go w.backgroundSync()
	}

	return w, nil
}

func (w *WALWriter) openSegment(seq uint64) error {
	path := segmentPath(w.dir, seq)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("open wal segment %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat wal segment %s: %w", path, err)
	}

	w.file = f
	w.writer = bufio.NewWriterSize(f, w.options.BufferSize)
	w.curSeq = seq
	w.fileBytes = info.Size()
	return nil
}

// WriteEntry appends entry to the log, rotating first if the current
// segment has reached SegmentMaxBytes.
func (w *WALWriter) WriteEntry(entry *WALEntry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.options.SegmentMaxBytes > 0 && w.fileBytes >= w.options.SegmentMaxBytes {
		if err := w.rotateLocked(); err != nil {
			return err
		}
	}

	n, err := entry.WriteTo(w.writer)
	if err != nil {
		return err
	}
	w.fileBytes += n
	w.batchBytes += n

	switch w.options.SyncPolicy {
	case SyncEveryWrite:
		return w.syncLocked()
	case SyncBatch:
		if w.batchBytes >= w.options.SyncBatchBytes {
			return w.syncLocked()
		}
	}
	return nil
}

func (w *WALWriter) rotateLocked() error {
	if err := w.syncLocked(); err != nil {
		return err
	}
	if err := w.file.Close(); err != nil {
		return err
	}
	return w.openSegment(w.curSeq + 1)
}

// Sync forces the current segment's buffered bytes to disk.
func (w *WALWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.syncLocked()
}

func (w *WALWriter) syncLocked() error {
	if err := w.writer.Flush(); err != nil {
		return err
	}
	if err := w.file.Sync(); err != nil {
		return err
	}
	w.batchBytes = 0
	return nil
}

// CurrentSequence returns the sequence number of the segment currently
// being written, used by checkpoint records to mark a trim horizon.
func (w *WALWriter) CurrentSequence() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.curSeq
}

func (w *WALWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if w.ticker != nil {
		w.ticker.Stop()
		close(w.done)
	}

	if err := w.syncLocked(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

func (w *WALWriter) backgroundSync() {
	for {
		select {
		case <-w.ticker.C:
			w.Sync()
		case <-w.done:
			return
		}
	}
}
