package mocknet

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Fraser999/safe-core/native"
)

// Client is an in-process native.Client backed by a Vault. Requests run on
// a pool of dedicated OS threads; cached immutable fetches complete on the
// submitting thread.
type Client struct {
	vault   Vault
	alloc   *native.Allocator
	log     *zap.Logger
	pool    *pool
	cache   *lru
	pending map[native.Context]*request
	owner   atomic.Pointer[native.XorName]
	session *session
	opts    Options

	gets    atomic.Uint64
	puts    atomic.Uint64
	posts   atomic.Uint64
	deletes atomic.Uint64
	appends atomic.Uint64
	// budget is the number of requests left before the network limit; -1
	// means unlimited.
	budget atomic.Int64

	pendMu    sync.Mutex
	mu        sync.Mutex
	ownsVault bool
}

type request struct {
	op        string
	id        uuid.UUID
	ctx       native.Context
	tr        native.Trampoline
	cancelled atomic.Bool
}

var (
	_ native.Client      = (*Client)(nil)
	_ native.ThreadHooks = (*Client)(nil)
)

// New starts a client. The client is unregistered until CreateAccount or
// Login succeeds.
func New(opts Options) *Client {
	ownsVault := opts.Vault == nil
	opts.setDefaults()
	c := &Client{
		vault:     opts.Vault,
		alloc:     opts.Allocator,
		log:       opts.Logger,
		cache:     newLRU(opts.CacheSize),
		pending:   make(map[native.Context]*request),
		opts:      opts,
		ownsVault: ownsVault,
	}
	c.pool = newPool(opts.Workers, opts.QueueSize, opts.Logger)
	c.SetNetworkLimits(opts.MaxOps)
	return c
}

// SetNetworkLimits allows maxOps more requests to reach the network,
// counted from now. Zero removes the limit.
func (c *Client) SetNetworkLimits(maxOps uint64) {
	if maxOps == 0 || maxOps > math.MaxInt64 {
		c.budget.Store(-1)
		return
	}
	c.budget.Store(int64(maxOps))
}

// spend takes one request from the budget.
func (c *Client) spend() bool {
	for {
		n := c.budget.Load()
		if n < 0 {
			return true
		}
		if n == 0 {
			return false
		}
		if c.budget.CompareAndSwap(n, n-1) {
			return true
		}
	}
}

// Allocator returns the allocator backing event buffers.
func (c *Client) Allocator() *native.Allocator { return c.alloc }

// Registered reports whether the client is logged in to an account.
func (c *Client) Registered() bool { return c.owner.Load() != nil }

// CachedChunks returns the number of immutable chunks in the cache.
func (c *Client) CachedChunks() int { return c.cache.len() }

// Pending returns the number of accepted requests without a terminal event.
func (c *Client) Pending() int {
	c.pendMu.Lock()
	defer c.pendMu.Unlock()
	return len(c.pending)
}

func status(code int32) native.Status { return native.Status(code) }

// submit queues a request. work runs on a worker thread and may emit
// progress events before returning the terminal one.
func (c *Client) submit(op string, ctx native.Context, tr native.Trampoline,
	work func(emit func(native.Event) bool) native.Event,
) native.Status {
	if tr == nil {
		return status(native.CodeInvalidOperation)
	}
	r := &request{op: op, id: uuid.New(), ctx: ctx, tr: tr}
	if !c.spend() {
		c.log.Debug("network limit reached", zap.String("op", op), zap.Uint64("ctx", uint64(ctx)))
		work = func(func(native.Event) bool) native.Event {
			return native.Failuref(native.CodeOperationAborted, "network operation limit reached")
		}
	}

	c.pendMu.Lock()
	if _, dup := c.pending[ctx]; dup {
		c.pendMu.Unlock()
		return status(native.CodeInvalidOperation)
	}
	c.pending[ctx] = r
	c.pendMu.Unlock()

	err := c.pool.submit(func() {
		if c.opts.Latency > 0 {
			time.Sleep(c.opts.Latency)
		}
		if r.cancelled.Load() {
			return
		}
		ev := work(func(ev native.Event) bool { return c.progress(r, ev) })
		c.finish(r, ev)
	})
	if err != nil {
		c.pendMu.Lock()
		delete(c.pending, ctx)
		c.pendMu.Unlock()
		if errors.Is(err, errPoolFull) {
			return status(native.CodeOperationAborted)
		}
		return status(native.CodeClosed)
	}

	c.log.Debug("request accepted",
		zap.String("op", op),
		zap.String("msg_id", r.id.String()),
		zap.Uint64("ctx", uint64(ctx)))
	return native.StatusOK
}

func (c *Client) live(r *request) bool {
	c.pendMu.Lock()
	defer c.pendMu.Unlock()
	return c.pending[r.ctx] == r
}

func (c *Client) progress(r *request, ev native.Event) bool {
	if r.cancelled.Load() || !c.live(r) {
		release(ev)
		return false
	}
	r.tr(r.ctx, ev)
	return true
}

func (c *Client) finish(r *request, ev native.Event) {
	c.pendMu.Lock()
	live := c.pending[r.ctx] == r
	if live {
		delete(c.pending, r.ctx)
	}
	c.pendMu.Unlock()

	if !live || !ev.Kind.Terminal() {
		release(ev)
		c.log.Debug("request dropped after cancel",
			zap.String("op", r.op),
			zap.String("msg_id", r.id.String()))
		return
	}

	c.log.Debug("request complete",
		zap.String("op", r.op),
		zap.String("msg_id", r.id.String()),
		zap.Stringer("event", ev.Kind),
		zap.Int32("code", ev.Code))
	r.tr(r.ctx, ev)

	if c.opts.DuplicateTerminal {
		r.tr(r.ctx, native.Failuref(native.CodeOperationAborted, "duplicate delivery"))
	}
}

// release frees the buffers of an event nobody will receive.
func release(ev native.Event) {
	if ev.Chunk != nil {
		ev.Chunk.Free()
	}
	if rec, ok := ev.Value.(native.Record); ok && rec.Content != nil {
		rec.Content.Free()
	}
}

// Cancel withdraws a request that has not produced its terminal event.
func (c *Client) Cancel(ctx native.Context) native.Status {
	c.pendMu.Lock()
	r, ok := c.pending[ctx]
	if ok {
		delete(c.pending, ctx)
	}
	c.pendMu.Unlock()

	if !ok {
		return status(native.CodeInvalidOperation)
	}
	r.cancelled.Store(true)
	c.log.Debug("request cancelled", zap.String("op", r.op), zap.String("msg_id", r.id.String()))
	return native.StatusOK
}

// OnThreadExit registers fn to run when the calling worker thread exits.
func (c *Client) OnThreadExit(fn func()) bool {
	return c.pool.onExit(fn)
}

func (c *Client) Stats() native.Stats {
	return native.Stats{
		Gets:    c.gets.Load(),
		Puts:    c.puts.Load(),
		Posts:   c.posts.Load(),
		Deletes: c.deletes.Load(),
		Appends: c.appends.Load(),
	}
}

// Close stops the workers after the queued requests have run. It must not
// be called from a trampoline.
func (c *Client) Close() error {
	c.pool.close()
	if c.ownsVault {
		return c.vault.Close()
	}
	return nil
}
