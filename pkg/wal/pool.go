package wal

import "sync"

// pool.go avoids per-record GC churn by reusing entry and buffer allocations.

var (
	entryPool = sync.Pool{
		New: func() interface{} {
			return &WALEntry{Payload: make([]byte, 0, 4096)}
		},
	}

	bufferPool = sync.Pool{
		New: func() interface{} {
			buf := make([]byte, 0, 8192)
			return &buf
		},
	}
)

func AcquireEntry() *WALEntry {
	return entryPool.Get().(*WALEntry)
}

func ReleaseEntry(e *WALEntry) {
	e.Header = WALHeader{}
	e.Payload = e.Payload[:0]
	entryPool.Put(e)
}

func AcquireBuffer() *[]byte {
	return bufferPool.Get().(*[]byte)
}

func ReleaseBuffer(buf *[]byte) {
	*buf = (*buf)[:0]
	bufferPool.Put(buf)
}
