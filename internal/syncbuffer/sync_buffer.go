// Package syncbuffer has a bytes.Buffer that is safe to write and read from
// different goroutines. Tests hand it to the trace provider so output can be
// inspected while spans are still being written.
package syncbuffer

import (
	"bytes"
	"sync"
)

type SyncBuffer struct {
	mu  sync.RWMutex
	buf bytes.Buffer
}

func (b *SyncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *SyncBuffer) String() string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.buf.String()
}
