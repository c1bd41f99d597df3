// Package hostvm is a managed runtime for hosts that are not a virtual
// machine, such as C programs loading the bridge as a shared library.
//
// Host threads attach on first use and callbacks are plain Go values
// implementing Handler. Results reach the host CBOR encoded (see Encode), so
// the host needs no knowledge of the bridge's object model.
package hostvm

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Fraser999/safe-core/internal/osthread"
	"github.com/Fraser999/safe-core/managed"
)

// Handler receives the outcome of one request.
type Handler interface {
	OnSuccess(result []byte)
	OnFailure(code int32, message string)
	OnProgress(done, total int64, chunk []byte)
}

// Callback is the managed callback object wrapping a Handler.
type Callback struct {
	Handler Handler
}

const classCallback = "safe/host/Callback"

func (c *Callback) Class() string                       { return classCallback }
func (c *Callback) Field(string) (managed.Value, bool) { return nil, false }

// VM tracks attached host threads and global references.
type VM struct {
	envs    map[uint64]*Env
	refs    map[managed.Ref]managed.Object
	log     *zap.Logger
	onFatal func(error)
	nextRef managed.Ref
	mu      sync.Mutex
}

// New creates a VM. onFatal receives errors passed to FatalError and may be
// nil.
func New(log *zap.Logger, onFatal func(error)) *VM {
	if log == nil {
		log = zap.NewNop()
	}
	return &VM{
		envs:    make(map[uint64]*Env),
		refs:    make(map[managed.Ref]managed.Object),
		log:     log,
		onFatal: onFatal,
	}
}

func thread() (uint64, error) {
	tid, ok := osthread.ID()
	if !ok {
		return 0, fmt.Errorf("hostvm: thread identity unavailable")
	}
	return tid, nil
}

func (vm *VM) GetEnv() (managed.Env, error) {
	tid, err := thread()
	if err != nil {
		return nil, err
	}
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if env, ok := vm.envs[tid]; ok {
		return env, nil
	}
	return nil, managed.ErrDetached
}

func (vm *VM) AttachCurrentThread(name string) (managed.Env, error) {
	return vm.attach(name)
}

func (vm *VM) attach(name string) (*Env, error) {
	tid, err := thread()
	if err != nil {
		return nil, err
	}
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if env, ok := vm.envs[tid]; ok {
		return env, nil
	}
	env := &Env{vm: vm, tid: tid, name: name}
	vm.envs[tid] = env
	return env, nil
}

// Enter returns the Env of the calling host thread, attaching it if needed.
// Host threads stay attached; the caller must hold the thread locked while
// it uses the Env.
func (vm *VM) Enter() (*Env, error) {
	return vm.attach("host")
}

func (vm *VM) DetachCurrentThread() error {
	tid, err := thread()
	if err != nil {
		return err
	}
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if _, ok := vm.envs[tid]; !ok {
		return fmt.Errorf("hostvm: thread %d is not attached", tid)
	}
	delete(vm.envs, tid)
	return nil
}

func (vm *VM) FatalError(err error) {
	vm.log.Error("fatal bridge error", zap.Error(err))
	if vm.onFatal != nil {
		vm.onFatal(err)
	}
}

// LiveRefs returns the number of global references not yet deleted.
func (vm *VM) LiveRefs() int {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return len(vm.refs)
}

// Env is the view of the VM from one host thread.
type Env struct {
	vm     *VM
	thrown error
	name   string
	tid    uint64
}

func (e *Env) NewGlobalRef(obj managed.Object) (managed.Ref, error) {
	if obj == nil {
		return 0, fmt.Errorf("hostvm: global ref of null object")
	}
	e.vm.mu.Lock()
	defer e.vm.mu.Unlock()
	e.vm.nextRef++
	e.vm.refs[e.vm.nextRef] = obj
	return e.vm.nextRef, nil
}

func (e *Env) DeleteGlobalRef(ref managed.Ref) {
	e.vm.mu.Lock()
	defer e.vm.mu.Unlock()
	delete(e.vm.refs, ref)
}

func (e *Env) CallVoidMethod(ref managed.Ref, method string, args ...managed.Value) error {
	e.vm.mu.Lock()
	obj, ok := e.vm.refs[ref]
	e.vm.mu.Unlock()
	if !ok {
		return fmt.Errorf("hostvm: %s on stale reference %d", method, ref)
	}
	cb, ok := obj.(*Callback)
	if !ok || cb.Handler == nil {
		return fmt.Errorf("hostvm: %s on %s", method, obj.Class())
	}

	switch method {
	case managed.MethodSuccess:
		var result managed.Value
		if len(args) > 0 {
			result = args[0]
		}
		encoded, err := Encode(result)
		if err != nil {
			return err
		}
		cb.Handler.OnSuccess(encoded)
	case managed.MethodFailure:
		if len(args) != 2 {
			return fmt.Errorf("hostvm: %s takes 2 arguments, got %d", method, len(args))
		}
		code, _ := args[0].(int32)
		var msg string
		if s, ok := args[1].(managed.String); ok {
			msg = String(s.UTF16()).String()
		}
		cb.Handler.OnFailure(code, msg)
	case managed.MethodProgress:
		if len(args) != 3 {
			return fmt.Errorf("hostvm: %s takes 3 arguments, got %d", method, len(args))
		}
		done, _ := args[0].(int64)
		total, _ := args[1].(int64)
		var chunk []byte
		if b, ok := args[2].(managed.ByteArray); ok {
			chunk = append(chunk, b.Pin()...)
			b.Unpin()
		}
		cb.Handler.OnProgress(done, total, chunk)
	default:
		return fmt.Errorf("hostvm: unknown method %s", method)
	}
	return nil
}

func (e *Env) NewString(s string) managed.String { return NewString(s) }

func (e *Env) NewByteArray(b []byte) managed.ByteArray { return Bytes(append([]byte(nil), b...)) }

func (e *Env) NewObject(class string, fields map[string]managed.Value) (managed.Object, error) {
	if class == "" {
		return nil, fmt.Errorf("hostvm: empty class name")
	}
	return NewObject(class, fields), nil
}

func (e *Env) Throw(err error) { e.thrown = err }

// TakeThrown returns and clears the error thrown on this thread.
func (e *Env) TakeThrown() error {
	err := e.thrown
	e.thrown = nil
	return err
}

func (e *Env) ReportUnhandled(err error) {
	e.vm.log.Warn("unhandled callback error", zap.String("thread", e.name), zap.Uint64("tid", e.tid), zap.Error(err))
}
