package wal

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestWALReaderReadsEntriesInOrder(t *testing.T) {
	dir := t.TempDir()

	opts := Options{SyncPolicy: SyncEveryWrite, BufferSize: 1024, SegmentMaxBytes: 1 << 20}
	w, err := NewWALWriter(dir, opts)
	if err != nil {
		t.Fatalf("NewWALWriter failed: %v", err)
	}

	payload1 := []byte("first entry")
	payload2 := []byte("second entry")

	e1 := AcquireEntry()
	e1.Header = WALHeader{Magic: WALMagic, Version: 1, EntryType: EntryInsert, LSN: 100, PayloadLen: uint32(len(payload1)), CRC32: CalculateCRC32(payload1)}
	e1.Payload = append(e1.Payload, payload1...)
	if err := w.WriteEntry(e1); err != nil {
		t.Fatalf("WriteEntry 1 failed: %v", err)
	}

	e2 := AcquireEntry()
	e2.Header = WALHeader{Magic: WALMagic, Version: 1, EntryType: EntryUpdate, LSN: 101, PayloadLen: uint32(len(payload2)), CRC32: CalculateCRC32(payload2)}
	e2.Payload = append(e2.Payload, payload2...)
	if err := w.WriteEntry(e2); err != nil {
		t.Fatalf("WriteEntry 2 failed: %v", err)
	}
	w.Close()

	r, err := NewWALReader(segmentPath(dir, 1))
	if err != nil {
		t.Fatalf("failed to open reader: %v", err)
	}
	defer r.Close()

	read1, err := r.ReadEntry()
	if err != nil {
		t.Fatalf("ReadEntry 1 failed: %v", err)
	}
	if string(read1.Payload) != string(payload1) {
		t.Errorf("payload mismatch: got %s, want %s", read1.Payload, payload1)
	}
	ReleaseEntry(read1)

	read2, err := r.ReadEntry()
	if err != nil {
		t.Fatalf("ReadEntry 2 failed: %v", err)
	}
	if read2.Header.LSN != 101 {
		t.Errorf("LSN mismatch: got %d, want 101", read2.Header.LSN)
	}
	ReleaseEntry(read2)

	if _, err := r.ReadEntry(); err != io.EOF {
		t.Errorf("expected EOF, got %v", err)
	}
}

func TestWALReaderDetectsChecksumCorruption(t *testing.T) {
	dir := t.TempDir()

	w, _ := NewWALWriter(dir, Options{SyncPolicy: SyncEveryWrite, BufferSize: 1024, SegmentMaxBytes: 1 << 20})
	payload := []byte("critical data")
	e := AcquireEntry()
	e.Header.Magic = WALMagic
	e.Header.Version = 1
	e.Header.PayloadLen = uint32(len(payload))
	e.Header.CRC32 = CalculateCRC32(payload)
	e.Payload = append(e.Payload, payload...)
	w.WriteEntry(e)
	w.Close()

	path := segmentPath(dir, 1)
	f, _ := os.OpenFile(path, os.O_RDWR, 0644)
	f.Seek(int64(HeaderSize+2), 0)
	f.Write([]byte{0xFF})
	f.Close()

	r, _ := NewWALReader(path)
	defer r.Close()

	if _, err := r.ReadEntry(); err != ErrChecksumMismatch {
		t.Errorf("expected ErrChecksumMismatch, got %v", err)
	}
}

func TestWALReaderTruncatedPayloadIsUnexpectedEOF(t *testing.T) {
	dir := t.TempDir()

	w, _ := NewWALWriter(dir, Options{SyncPolicy: SyncEveryWrite, SegmentMaxBytes: 1 << 20})
	payload := []byte("loooooong data")
	e := AcquireEntry()
	e.Header.Magic = WALMagic
	e.Header.Version = 1
	e.Header.PayloadLen = uint32(len(payload))
	e.Header.CRC32 = CalculateCRC32(payload)
	e.Payload = append(e.Payload, payload...)
	w.WriteEntry(e)
	w.Close()

	path := segmentPath(dir, 1)
	os.Truncate(path, int64(HeaderSize+5))

	r, _ := NewWALReader(path)
	defer r.Close()

	if _, err := r.ReadEntry(); err != io.ErrUnexpectedEOF {
		t.Errorf("expected ErrUnexpectedEOF, got %v", err)
	}
}

func TestWALReaderInvalidMagicRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.wal")

	f, _ := os.Create(path)
	invalidHeader := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(invalidHeader[0:4], 0xCAFEBABE)
	f.Write(invalidHeader)
	f.Close()

	r, _ := NewWALReader(path)
	defer r.Close()

	if _, err := r.ReadEntry(); err != ErrInvalidMagic {
		t.Errorf("expected ErrInvalidMagic, got %v", err)
	}
}

func TestReplayAllWalksSegmentsInOrder(t *testing.T) {
	dir := t.TempDir()

	w, _ := NewWALWriter(dir, Options{SyncPolicy: SyncEveryWrite, SegmentMaxBytes: HeaderSize + 5})
	for i := 0; i < 3; i++ {
		payload := []byte{byte(i)}
		e := AcquireEntry()
		e.Header = WALHeader{Magic: WALMagic, Version: 1, EntryType: EntryInsert, LSN: uint64(i), PayloadLen: uint32(len(payload)), CRC32: CalculateCRC32(payload)}
		e.Payload = append(e.Payload, payload...)
		if err := w.WriteEntry(e); err != nil {
			t.Fatalf("WriteEntry %d failed: %v", i, err)
		}
	}
	w.Close()

	var lsns []uint64
	err := ReplayAll(dir, func(e *WALEntry) error {
		lsns = append(lsns, e.Header.LSN)
		return nil
	})
	if err != nil {
		t.Fatalf("ReplayAll failed: %v", err)
	}
	if len(lsns) != 3 {
		t.Fatalf("expected 3 records across segments, got %d", len(lsns))
	}
	for i, lsn := range lsns {
		if lsn != uint64(i) {
			t.Errorf("record %d: got LSN %d, want %d", i, lsn, i)
		}
	}
}
