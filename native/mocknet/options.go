package mocknet

import (
	"time"

	"go.uber.org/zap"

	"github.com/Fraser999/safe-core/native"
)

const (
	DefaultWorkers   = 4
	DefaultQueueSize = 1024
)

// Options configures a Client. The zero value is usable.
type Options struct {
	// Vault holds the network's data. Clients sharing a vault see each
	// other's data and accounts. Defaults to a private MemoryVault.
	Vault Vault
	// Allocator accounts for buffers handed out in events.
	Allocator *native.Allocator
	Logger    *zap.Logger

	Workers   int
	QueueSize int
	// CacheSize bounds the immutable chunk cache. Zero means
	// DefaultCacheSize, negative disables the cache.
	CacheSize int
	// Quota is the number of chunks a new account may store.
	Quota uint64

	Compression Compression
	// Latency delays every request before it is processed.
	Latency time.Duration
	// MaxOps is how many requests the network accepts before refusing every
	// further one with CodeOperationAborted. Zero means no limit.
	MaxOps uint64
	// DuplicateTerminal makes the client invoke the trampoline a second
	// time after every terminal event, breaking its own contract.
	DuplicateTerminal bool
}

func (o *Options) setDefaults() {
	if o.Vault == nil {
		o.Vault = NewMemoryVault()
	}
	if o.Allocator == nil {
		o.Allocator = &native.Allocator{}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.CacheSize == 0 {
		o.CacheSize = DefaultCacheSize
	}
	if o.Quota == 0 {
		o.Quota = DefaultQuota
	}
}
