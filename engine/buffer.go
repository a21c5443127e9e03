package engine

import (
	"bytes"
	"sync"
)

// DefaultOutputLimit is the default capture ceiling for a single stream
const DefaultOutputLimit = 1 << 20

// CappedBuffer is a concurrency-safe writer that keeps at most limit bytes.
// Writes past the ceiling are discarded but reported as successful so the
// producer is never blocked or failed by a chatty program.
type CappedBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	limit     int
	truncated bool
}

// NewCappedBuffer creates a buffer holding at most limit bytes
func NewCappedBuffer(limit int) *CappedBuffer {
	if limit <= 0 {
		limit = DefaultOutputLimit
	}
	return &CappedBuffer{limit: limit}
}

func (b *CappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	remaining := b.limit - b.buf.Len()
	if remaining <= 0 {
		b.truncated = b.truncated || len(p) > 0
		return len(p), nil
	}
	if len(p) > remaining {
		b.buf.Write(p[:remaining])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

// WriteString implements io.StringWriter
func (b *CappedBuffer) WriteString(s string) (int, error) {
	return b.Write([]byte(s))
}

func (b *CappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Len returns the number of retained bytes
func (b *CappedBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

// Truncated reports whether any write was dropped
func (b *CappedBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}
