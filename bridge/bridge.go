package bridge

import (
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Fraser999/safe-core/attach"
	"github.com/Fraser999/safe-core/dispatch"
	"github.com/Fraser999/safe-core/errors"
	"github.com/Fraser999/safe-core/managed"
	"github.com/Fraser999/safe-core/native"
	"github.com/Fraser999/safe-core/registry"
)

// DefaultChunkSize is the GetStream chunk size used when the caller passes 0.
const DefaultChunkSize = 64 << 10

// Options configures a Bridge.
type Options struct {
	VM     managed.VM
	Client native.Client
	Logger *zap.Logger

	// Shards and Quarantine size the handle registry. Zero selects the
	// registry defaults; a negative Quarantine disables quarantine.
	Shards     int
	Quarantine int
	ChunkSize  uint32
	Policy     attach.Policy
	// CloseClient makes Close close the native client too.
	CloseClient bool
}

// Bridge exposes a native client to a managed runtime. Entry points run on
// managed threads and return immediately; results reach the managed
// callbacks later through the dispatcher.
type Bridge struct {
	vm     managed.VM
	client native.Client
	reg    *registry.Registry
	att    *attach.Manager
	disp   *dispatch.Dispatcher
	log    *zap.Logger
	opts   Options
	mu     sync.RWMutex
	closed bool
}

// New creates a Bridge. The native client must not have outstanding
// requests.
func New(opts Options) (*Bridge, error) {
	if opts.VM == nil {
		return nil, errors.InvalidInput(errors.PhaseLoad, "managed runtime is required")
	}
	if opts.Client == nil {
		return nil, errors.InvalidInput(errors.PhaseLoad, "native client is required")
	}
	if opts.Logger == nil {
		opts.Logger = Logger()
	}
	if opts.ChunkSize == 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	switch {
	case opts.Quarantine == 0:
		opts.Quarantine = registry.DefaultQuarantine
	case opts.Quarantine < 0:
		opts.Quarantine = 0
	}

	log := opts.Logger
	reg := registry.New(registry.Options{Shards: opts.Shards, Quarantine: opts.Quarantine})
	if log.Core().Enabled(zap.DebugLevel) {
		reg.Subscribe(registry.NewLogObserver(log.Named("registry")))
	}

	hooks, _ := opts.Client.(native.ThreadHooks)
	att := attach.New(opts.VM, attach.Options{
		Policy: opts.Policy,
		Hooks:  hooks,
		Logger: log.Named("attach"),
	})

	b := &Bridge{
		vm:     opts.VM,
		client: opts.Client,
		reg:    reg,
		att:    att,
		log:    log,
		opts:   opts,
	}
	b.disp = dispatch.New(dispatch.Options{
		Registry: reg,
		Attach:   att,
		Fatal:    b.fatal,
		Logger:   log.Named("dispatch"),
	})

	log.Info("bridge loaded",
		zap.Stringer("policy", opts.Policy),
		zap.Int("quarantine", opts.Quarantine),
		zap.Uint32("chunk_size", opts.ChunkSize))
	return b, nil
}

func (b *Bridge) fatal(err error) {
	b.vm.FatalError(err)
}

// Client returns the native client the bridge submits to.
func (b *Bridge) Client() native.Client { return b.client }

// Outstanding returns the number of requests still waiting for their
// terminal callback.
func (b *Bridge) Outstanding() int {
	if b == nil {
		return 0
	}
	return b.disp.Outstanding()
}

// Violations returns the number of native protocol violations observed.
func (b *Bridge) Violations() uint64 {
	if b == nil {
		return 0
	}
	return b.disp.Violations()
}

// Close abandons every outstanding request, delivering a cancellation error
// to each, and releases the registry. It must not be called from a callback.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	abandoned := b.disp.Abandon()
	for _, ctx := range abandoned {
		b.client.Cancel(ctx)
	}

	var errs []error
	if b.opts.CloseClient {
		if err := b.client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close native client: %w", err))
		}
	}
	left := b.att.Shutdown()
	if err := b.reg.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close registry: %w", err))
	}

	b.log.Info("bridge unloaded",
		zap.Int("abandoned", len(abandoned)),
		zap.Int("attached_threads", len(left)),
		zap.Uint64("violations", b.disp.Violations()))

	if len(errs) > 0 {
		return stderrors.Join(errs...)
	}
	return nil
}

var (
	current atomic.Pointer[Bridge]
	loadMu  sync.Mutex
)

// Load creates the process-wide Bridge used by Default.
func Load(opts Options) (*Bridge, error) {
	loadMu.Lock()
	defer loadMu.Unlock()
	if current.Load() != nil {
		return nil, errors.InvalidInput(errors.PhaseLoad, "bridge already loaded")
	}
	b, err := New(opts)
	if err != nil {
		return nil, err
	}
	current.Store(b)
	return b, nil
}

// Unload closes and removes the process-wide Bridge. Unloading when nothing
// is loaded is a no-op.
func Unload() error {
	loadMu.Lock()
	defer loadMu.Unlock()
	b := current.Swap(nil)
	if b == nil {
		return nil
	}
	return b.Close()
}

// Default returns the process-wide Bridge, or nil when none is loaded.
// Entry points on a nil Bridge report a not-loaded error.
func Default() *Bridge {
	return current.Load()
}
