package simvm

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/Fraser999/safe-core/internal/osthread"
	"github.com/Fraser999/safe-core/managed"
)

// VM is an in-process managed runtime. It enforces the rules a real runtime
// enforces: an Env may only be used on the thread it belongs to, global refs
// must be deleted exactly once, and callbacks may only run on attached
// threads. Breaches are recorded as violations instead of crashing.
type VM struct {
	envs       map[uint64]*Env
	refs       map[managed.Ref]managed.Object
	onFatal    func(error)
	fatal      []error
	unhandled  []error
	violations []string
	nextRef    managed.Ref
	attaches   int
	detaches   int
	mu         sync.Mutex
}

// New creates an empty VM.
func New() *VM {
	return &VM{
		envs: make(map[uint64]*Env),
		refs: make(map[managed.Ref]managed.Object),
	}
}

// OnFatal installs a hook run for every FatalError.
func (vm *VM) OnFatal(fn func(error)) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.onFatal = fn
}

func currentThread() uint64 {
	tid, _ := osthread.ID()
	return tid
}

// GetEnv returns the Env of the calling thread.
func (vm *VM) GetEnv() (managed.Env, error) {
	tid := currentThread()
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if env, ok := vm.envs[tid]; ok {
		return env, nil
	}
	return nil, managed.ErrDetached
}

// AttachCurrentThread attaches the calling thread.
func (vm *VM) AttachCurrentThread(name string) (managed.Env, error) {
	tid := currentThread()
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if env, ok := vm.envs[tid]; ok {
		return env, nil
	}
	env := &Env{vm: vm, tid: tid, name: name}
	vm.envs[tid] = env
	vm.attaches++
	return env, nil
}

// DetachCurrentThread detaches the calling thread.
func (vm *VM) DetachCurrentThread() error {
	tid := currentThread()
	vm.mu.Lock()
	defer vm.mu.Unlock()
	env, ok := vm.envs[tid]
	if !ok {
		return errors.New("simvm: detach of unattached thread")
	}
	env.detached = true
	delete(vm.envs, tid)
	vm.detaches++
	return nil
}

// FatalError records err and runs the OnFatal hook.
func (vm *VM) FatalError(err error) {
	vm.mu.Lock()
	vm.fatal = append(vm.fatal, err)
	hook := vm.onFatal
	vm.mu.Unlock()
	if hook != nil {
		hook(err)
	}
}

// Enter locks the calling goroutine to its thread and attaches it, the way a
// managed application thread calls into the bridge. The returned func undoes
// both.
func (vm *VM) Enter() (*Env, func()) {
	runtime.LockOSThread()
	env, _ := vm.AttachCurrentThread("main")
	return env.(*Env), func() {
		_ = vm.DetachCurrentThread()
		runtime.UnlockOSThread()
	}
}

func (vm *VM) violate(format string, args ...any) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.violations = append(vm.violations, fmt.Sprintf(format, args...))
}

// Fatal returns the errors passed to FatalError.
func (vm *VM) Fatal() []error {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return append([]error(nil), vm.fatal...)
}

// Unhandled returns the exceptions passed to ReportUnhandled.
func (vm *VM) Unhandled() []error {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return append([]error(nil), vm.unhandled...)
}

// Violations returns the runtime rule breaches observed so far.
func (vm *VM) Violations() []string {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return append([]string(nil), vm.violations...)
}

// LiveRefs returns the number of global references not yet deleted.
func (vm *VM) LiveRefs() int {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return len(vm.refs)
}

// AttachedThreads returns the number of currently attached threads.
func (vm *VM) AttachedThreads() int {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return len(vm.envs)
}

// AttachCounts returns the number of attach and detach operations performed.
func (vm *VM) AttachCounts() (attaches, detaches int) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.attaches, vm.detaches
}

func (vm *VM) isAttached(tid uint64) bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	_, ok := vm.envs[tid]
	return ok
}
