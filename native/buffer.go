package native

import (
	"sync/atomic"
)

// Allocator hands out native buffers and keeps count of the ones not yet
// freed.
type Allocator struct {
	live  atomic.Int64
	total atomic.Int64
}

// Alloc copies b into a new native buffer.
func (a *Allocator) Alloc(b []byte) *Buffer {
	a.live.Add(1)
	a.total.Add(1)
	return &Buffer{alloc: a, data: append(make([]byte, 0, len(b)), b...)}
}

// Live returns the number of buffers allocated and not yet freed.
func (a *Allocator) Live() int64 { return a.live.Load() }

// Total returns the number of buffers ever allocated.
func (a *Allocator) Total() int64 { return a.total.Load() }

// Buffer is native-owned memory. Its receiver copies what it needs and calls
// Free exactly once.
type Buffer struct {
	alloc *Allocator
	data  []byte
	freed atomic.Bool
}

// Len returns the buffer size. It is safe to call after Free.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.data)
}

// Bytes returns the native storage. Using a freed buffer panics.
func (b *Buffer) Bytes() []byte {
	if b.freed.Load() {
		panic("native: use of freed buffer")
	}
	return b.data
}

// Free releases the buffer. A second Free panics.
func (b *Buffer) Free() {
	if b == nil {
		return
	}
	if !b.freed.CompareAndSwap(false, true) {
		panic("native: double free of buffer")
	}
	b.data = nil
	if b.alloc != nil {
		b.alloc.live.Add(-1)
	}
}

// Freed reports whether Free has been called.
func (b *Buffer) Freed() bool {
	return b.freed.Load()
}
