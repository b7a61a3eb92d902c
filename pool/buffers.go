// Package pool provides sync.Pool wrappers for reducing GC pressure on
// the compression hot path.
package pool

import (
	"bytes"
	"sync"
)

// bufferPool holds reusable byte buffers for DEFLATE compression.
var bufferPool = sync.Pool{
	New: func() any {
		return bytes.NewBuffer(make([]byte, 0, 4096))
	},
}

// AcquireBuffer gets a buffer from the pool.
// Call ReleaseBuffer when done to return it to the pool.
func AcquireBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// ReleaseBuffer returns a buffer to the pool.
func ReleaseBuffer(buf *bytes.Buffer) {
	if buf == nil {
		return
	}
	// Don't return oversized buffers to the pool
	if buf.Cap() <= 1<<20 {
		bufferPool.Put(buf)
	}
}
