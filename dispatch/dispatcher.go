package dispatch

import (
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Fraser999/safe-core/attach"
	"github.com/Fraser999/safe-core/errors"
	"github.com/Fraser999/safe-core/managed"
	"github.com/Fraser999/safe-core/native"
	"github.com/Fraser999/safe-core/registry"
	"github.com/Fraser999/safe-core/transcoder"
)

// FatalHandler receives protocol violations and attachment failures. It is
// usually the runtime's VM.FatalError.
type FatalHandler func(error)

// Options configures a Dispatcher.
type Options struct {
	Registry *registry.Registry
	Attach   *attach.Manager
	Fatal    FatalHandler
	Logger   *zap.Logger
}

// Dispatcher delivers native events to the managed callbacks pinned in the
// registry. Its Trampoline is the only function handed to the native
// library.
type Dispatcher struct {
	reg        *registry.Registry
	att        *attach.Manager
	fatal      FatalHandler
	log        *zap.Logger
	delivered  atomic.Uint64
	dropped    atomic.Uint64
	violations atomic.Uint64

	// retired calls whose refs could not be released for lack of an Env
	orphanMu sync.Mutex
	orphans  []*Call
}

// New creates a Dispatcher. Registry and Attach are required.
func New(opts Options) *Dispatcher {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	fatal := opts.Fatal
	if fatal == nil {
		fatal = func(error) {}
	}
	return &Dispatcher{
		reg:   opts.Registry,
		att:   opts.Attach,
		fatal: fatal,
		log:   log,
	}
}

// ContextOf converts a registry handle into the native request context.
func ContextOf(h registry.Handle) native.Context { return native.Context(h) }

// HandleOf recovers the registry handle from a native request context.
func HandleOf(ctx native.Context) registry.Handle { return registry.Handle(ctx) }

// Register pins call and returns the request context identifying it.
func (d *Dispatcher) Register(call *Call) (native.Context, error) {
	h, err := d.reg.Pin(call)
	if err != nil {
		return 0, errors.Wrap(errors.PhaseRegistry, errors.KindInvalidArgument, err, "pin callback")
	}
	return ContextOf(h), nil
}

// Trampoline receives every native event. It may run on any thread,
// including the thread that submitted the request.
func (d *Dispatcher) Trampoline(ctx native.Context, ev native.Event) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer d.guard(ctx)

	switch {
	case ev.Kind == native.EventProgress:
		d.progress(ctx, ev)
		return
	case !ev.Kind.Terminal():
		release(ev)
		d.violation(ctx, "unknown event kind %d", ev.Kind)
		return
	}

	outcome := registry.OutcomeDelivered
	if ev.Kind == native.EventFailure {
		outcome = registry.OutcomeFailed
	}
	v, prior, ok := d.reg.Take(HandleOf(ctx), outcome)
	if !ok {
		d.late(ctx, ev, prior)
		return
	}
	call, ok := v.(*Call)
	if !ok {
		release(ev)
		d.violation(ctx, "context does not refer to a request")
		return
	}
	d.deliver(ctx, call, ev)
}

// Fail retires ctx and delivers err through its error path on the calling
// thread. It reports false when ctx was already retired.
func (d *Dispatcher) Fail(ctx native.Context, err error) bool {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer d.guard(ctx)

	v, prior, ok := d.reg.Take(HandleOf(ctx), registry.OutcomeFailed)
	if !ok {
		if prior == registry.OutcomeDelivered || prior == registry.OutcomeFailed {
			d.violation(ctx, "request failed at submission after it completed (%s)", prior)
		}
		return false
	}
	d.complete(ctx, v.(*Call), errors.EnvelopeOf(err))
	return true
}

// Cancel retires ctx and delivers a cancellation error. It reports false
// when the request already completed, in which case nothing is delivered.
func (d *Dispatcher) Cancel(ctx native.Context) bool {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer d.guard(ctx)

	v, _, ok := d.reg.Take(HandleOf(ctx), registry.OutcomeCancelled)
	if !ok {
		return false
	}
	call := v.(*Call)
	d.complete(ctx, call, errors.EnvelopeOf(errors.Cancelled(call.Op)))
	return true
}

// Abandon retires every outstanding request and delivers a cancellation
// error to each. It returns the abandoned contexts.
func (d *Dispatcher) Abandon() []native.Context {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	entries := d.reg.Drain(registry.OutcomeAbandoned)
	out := make([]native.Context, 0, len(entries))
	for _, e := range entries {
		ctx := ContextOf(e.Handle)
		out = append(out, ctx)
		call, ok := e.Value.(*Call)
		if !ok {
			continue
		}
		func() {
			defer d.guard(ctx)
			d.complete(ctx, call, errors.EnvelopeOf(errors.Cancelled(call.Op)))
		}()
	}
	if len(out) > 0 {
		d.log.Info("abandoned outstanding requests", zap.Int("count", len(out)))
	}
	if tok, err := d.att.Attach(); err == nil {
		d.Reap(tok.Env())
		d.att.Release(tok)
	}
	return out
}

// Reap deletes the global references of requests whose terminal event
// could not be delivered because no thread could be attached. Entry points
// and deliveries call it with any Env they hold. It returns the number of
// requests released.
func (d *Dispatcher) Reap(env managed.Env) int {
	d.orphanMu.Lock()
	calls := d.orphans
	d.orphans = nil
	d.orphanMu.Unlock()

	for _, c := range calls {
		c.mu.Lock()
		c.release(env)
		c.mu.Unlock()
	}
	if len(calls) > 0 {
		d.log.Debug("released orphaned callbacks", zap.Int("count", len(calls)))
	}
	return len(calls)
}

// Unreleased returns the number of retired requests still holding global
// references.
func (d *Dispatcher) Unreleased() int {
	d.orphanMu.Lock()
	defer d.orphanMu.Unlock()
	return len(d.orphans)
}

func (d *Dispatcher) orphan(call *Call) {
	d.orphanMu.Lock()
	d.orphans = append(d.orphans, call)
	d.orphanMu.Unlock()
}

// Outstanding returns the number of requests without a terminal event.
func (d *Dispatcher) Outstanding() int { return d.reg.Len() }

// Delivered returns the number of terminal events delivered.
func (d *Dispatcher) Delivered() uint64 { return d.delivered.Load() }

// Dropped returns the number of events dropped after cancellation.
func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }

// Violations returns the number of protocol violations observed.
func (d *Dispatcher) Violations() uint64 { return d.violations.Load() }

func (d *Dispatcher) deliver(ctx native.Context, call *Call, ev native.Event) {
	call.mu.Lock()
	defer call.mu.Unlock()
	call.state = StateDelivering

	if ev.Chunk != nil && !ev.Chunk.Freed() {
		ev.Chunk.Free()
	}

	tok, err := d.att.Attach()
	if err != nil {
		transcoder.Release(ev.Value)
		call.state = StateFailed
		d.orphan(call)
		d.attachFailed(ctx, call, err)
		return
	}
	defer d.att.Release(tok)
	env := tok.Env()
	defer call.release(env)
	d.Reap(env)

	lf := transcoder.NewLifter(env)
	if ev.Kind == native.EventFailure {
		d.fail(ctx, env, call, nativeEnvelope(ev))
		return
	}

	val, err := call.lift(lf, ev.Value)
	if err != nil {
		d.log.Warn("result decode failed",
			zap.Uint64("ctx", uint64(ctx)),
			zap.String("op", call.Op),
			zap.Error(err))
		d.fail(ctx, env, call, errors.EnvelopeOf(err))
		return
	}
	call.state = StateDelivered
	d.delivered.Add(1)
	d.log.Debug("delivering result", zap.Uint64("ctx", uint64(ctx)), zap.String("op", call.Op))
	d.invoke(env, call, call.Success, managed.MethodSuccess, val)
}

// complete delivers an error envelope for a request retired by the bridge
// itself.
func (d *Dispatcher) complete(ctx native.Context, call *Call, e errors.Envelope) {
	call.mu.Lock()
	defer call.mu.Unlock()
	call.state = StateDelivering

	tok, err := d.att.Attach()
	if err != nil {
		call.state = StateFailed
		d.orphan(call)
		d.attachFailed(ctx, call, err)
		return
	}
	defer d.att.Release(tok)
	env := tok.Env()
	defer call.release(env)
	d.Reap(env)

	d.fail(ctx, env, call, e)
}

func (d *Dispatcher) fail(ctx native.Context, env managed.Env, call *Call, e errors.Envelope) {
	call.state = StateFailed
	d.delivered.Add(1)
	d.log.Debug("delivering error",
		zap.Uint64("ctx", uint64(ctx)),
		zap.String("op", call.Op),
		zap.Int32("code", e.Code))
	code, msg := transcoder.NewLifter(env).Failure(e)
	d.invoke(env, call, call.Failure, managed.MethodFailure, code, msg)
}

func (d *Dispatcher) progress(ctx native.Context, ev native.Event) {
	v, outcome := d.reg.Lookup(HandleOf(ctx))
	if outcome != registry.OutcomePending {
		d.late(ctx, ev, outcome)
		return
	}
	call, ok := v.(*Call)
	if !ok {
		release(ev)
		return
	}

	call.mu.Lock()
	defer call.mu.Unlock()
	if call.state.Terminal() || !call.Progress {
		release(ev)
		return
	}
	call.state = StateDelivering
	defer func() { call.state = StatePending }()

	tok, err := d.att.Attach()
	if err != nil {
		release(ev)
		d.attachFailed(ctx, call, err)
		return
	}
	defer d.att.Release(tok)
	env := tok.Env()

	transcoder.Release(ev.Value)
	done, total, chunk := transcoder.NewLifter(env).Progress(ev)
	d.invoke(env, call, call.Success, managed.MethodProgress, done, total, chunk)
}

func (d *Dispatcher) invoke(env managed.Env, call *Call, ref managed.Ref, method string, args ...managed.Value) {
	call.events++
	if err := env.CallVoidMethod(ref, method, args...); err != nil {
		d.log.Warn("callback threw",
			zap.String("op", call.Op),
			zap.String("method", method),
			zap.Error(err))
		env.ReportUnhandled(err)
	}
}

// late handles an event whose request is no longer live.
func (d *Dispatcher) late(ctx native.Context, ev native.Event, prior registry.Outcome) {
	release(ev)
	switch prior {
	case registry.OutcomeCancelled, registry.OutcomeAbandoned:
		d.dropped.Add(1)
		d.log.Debug("event after cancellation dropped",
			zap.Uint64("ctx", uint64(ctx)),
			zap.Stringer("event", ev.Kind),
			zap.Stringer("outcome", prior))
	case registry.OutcomeDelivered, registry.OutcomeFailed:
		d.violation(ctx, "%s event after request %s", ev.Kind, prior)
	default:
		d.violation(ctx, "%s event for unknown request context %#x", ev.Kind, uint64(ctx))
	}
}

func (d *Dispatcher) attachFailed(ctx native.Context, call *Call, err error) {
	d.log.Error("cannot deliver: thread not attachable",
		zap.Uint64("ctx", uint64(ctx)),
		zap.String("op", call.Op),
		zap.Error(err))
	d.fatal(err)
}

func (d *Dispatcher) violation(ctx native.Context, format string, args ...any) {
	err := errors.ProtocolViolation(format, args...)
	d.violations.Add(1)
	d.log.Error("protocol violation", zap.Uint64("ctx", uint64(ctx)), zap.Error(err))
	d.fatal(err)
}

// guard converts a panic during delivery into a protocol violation. It
// must be deferred directly.
func (d *Dispatcher) guard(ctx native.Context) {
	if r := recover(); r != nil {
		d.violation(ctx, "panic during delivery: %v", r)
	}
}

func nativeEnvelope(ev native.Event) errors.Envelope {
	msg := ev.Message
	if msg == "" {
		msg = native.Message(ev.Code)
	}
	return errors.Envelope{Code: ev.Code, Message: msg}
}

// release frees the native buffers of an event that will not be delivered.
func release(ev native.Event) {
	if ev.Chunk != nil && !ev.Chunk.Freed() {
		ev.Chunk.Free()
	}
	transcoder.Release(ev.Value)
}
