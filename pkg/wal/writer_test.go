package wal

import (
	"os"
	"testing"
	"time"
)

func TestWALWriterIntervalSync(t *testing.T) {
	dir := t.TempDir()

	payload := []byte("some data")
	crc := CalculateCRC32(payload)

	opts := Options{
		SyncPolicy:           SyncInterval,
		SyncIntervalDuration: 50 * time.Millisecond,
		BufferSize:           1024,
		SegmentMaxBytes:      1 << 20,
	}

	w, err := NewWALWriter(dir, opts)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}

	entry := AcquireEntry()
	entry.Header = WALHeader{Magic: WALMagic, Version: 1, EntryType: EntryInsert, PayloadLen: uint32(len(payload)), CRC32: crc, LSN: 1}
	entry.Payload = append(entry.Payload, payload...)

	if err := w.WriteEntry(entry); err != nil {
		t.Fatalf("WriteEntry failed: %v", err)
	}
	ReleaseEntry(entry)

	time.Sleep(100 * time.Millisecond)

	info, err := os.Stat(segmentPath(dir, 1))
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if info.Size() == 0 {
		t.Error("segment size is 0 after background sync, expected content")
	}

	w.Close()
}

func TestWALWriterBatchSync(t *testing.T) {
	dir := t.TempDir()

	opts := Options{
		SyncPolicy:      SyncBatch,
		SyncBatchBytes:  100,
		BufferSize:      1024,
		SegmentMaxBytes: 1 << 20,
	}

	w, err := NewWALWriter(dir, opts)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}

	payload := []byte("12345")
	entrySize := int64(HeaderSize + len(payload))

	entry := AcquireEntry()
	entry.Header.PayloadLen = uint32(len(payload))
	entry.Payload = append(entry.Payload, payload...)

	w.WriteEntry(entry)
	w.WriteEntry(entry)
	w.WriteEntry(entry)
	w.WriteEntry(entry)
	ReleaseEntry(entry)

	info, err := os.Stat(segmentPath(dir, 1))
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}

	expected := 4 * entrySize
	if info.Size() != expected {
		t.Logf("segment size: %d, expected: %d", info.Size(), expected)
	}

	w.Close()
}

func TestWALWriterRotatesSegmentsAtSizeLimit(t *testing.T) {
	dir := t.TempDir()

	payload := []byte("12345")
	entrySize := int64(HeaderSize + len(payload))

	w, err := NewWALWriter(dir, Options{
		SyncPolicy:      SyncEveryWrite,
		BufferSize:      1024,
		SegmentMaxBytes: entrySize, // rotate after every single record
	})
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}

	for i := 0; i < 3; i++ {
		entry := AcquireEntry()
		entry.Header.Magic = WALMagic
		entry.Header.PayloadLen = uint32(len(payload))
		entry.Header.CRC32 = CalculateCRC32(payload)
		entry.Payload = append(entry.Payload, payload...)
		if err := w.WriteEntry(entry); err != nil {
			t.Fatalf("WriteEntry %d failed: %v", i, err)
		}
		ReleaseEntry(entry)
	}
	w.Close()

	seqs, err := listSegments(dir)
	if err != nil {
		t.Fatalf("listSegments failed: %v", err)
	}
	if len(seqs) != 3 {
		t.Fatalf("expected 3 rotated segments, got %d (%v)", len(seqs), seqs)
	}
}

func TestWALWriterResumesAfterReopenWithoutClobbering(t *testing.T) {
	dir := t.TempDir()

	w1, _ := NewWALWriter(dir, Options{SyncPolicy: SyncEveryWrite, SegmentMaxBytes: 1 << 20})
	entry := AcquireEntry()
	entry.Header.Magic = WALMagic
	entry.Header.PayloadLen = 0
	w1.WriteEntry(entry)
	w1.Close()
	ReleaseEntry(entry)

	sizeBefore, _ := os.Stat(segmentPath(dir, 1))

	w2, err := NewWALWriter(dir, Options{SyncPolicy: SyncEveryWrite, SegmentMaxBytes: 1 << 20})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if w2.curSeq != 1 {
		t.Fatalf("expected writer to resume at segment 1, got %d", w2.curSeq)
	}
	if w2.fileBytes != sizeBefore.Size() {
		t.Fatalf("expected fileBytes %d to match existing segment size, got %d", sizeBefore.Size(), w2.fileBytes)
	}
	w2.Close()
}

func TestWALWriterSyncErrorAfterFileClosed(t *testing.T) {
	dir := t.TempDir()

	w, _ := NewWALWriter(dir, Options{SyncPolicy: SyncEveryWrite, SegmentMaxBytes: 1 << 20})
	w.file.Close() // force future syncs to fail

	entry := AcquireEntry()
	entry.Header.Magic = WALMagic
	err := w.WriteEntry(entry)
	if err == nil {
		t.Error("expected error writing after file was closed")
	}
	ReleaseEntry(entry)
}

func TestWALWriterCloseSyncError(t *testing.T) {
	dir := t.TempDir()

	w, _ := NewWALWriter(dir, Options{SyncPolicy: SyncEveryWrite, SegmentMaxBytes: 1 << 20})
	entry := AcquireEntry()
	entry.Payload = []byte("data")
	entry.Header.CRC32 = CalculateCRC32(entry.Payload)
	w.WriteEntry(entry)

	w.file.Close() // force sync error on Close

	if err := w.Close(); err == nil {
		t.Error("expected error closing writer with already-closed file")
	}
}
