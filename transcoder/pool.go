package transcoder

import "sync"

const (
	// Pool limits to prevent memory bloat
	poolMaxScratch  = 64 * 1024 // max pooled UTF-8 scratch bytes
	poolInitScratch = 256
	poolMaxViews    = 64
)

// UTF-8 scratch pool for string lowering
var scratchPool = sync.Pool{
	New: func() any {
		buf := make([]byte, 0, poolInitScratch)
		return &buf
	},
}

func getScratch() *[]byte {
	return scratchPool.Get().(*[]byte)
}

func putScratch(buf *[]byte) {
	if buf == nil || cap(*buf) > poolMaxScratch {
		return // reject oversized
	}
	*buf = (*buf)[:0]
	scratchPool.Put(buf)
}

var lowererPool = sync.Pool{
	New: func() any {
		return &Lowerer{views: make([]View, 0, 4)}
	},
}
