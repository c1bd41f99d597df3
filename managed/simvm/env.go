package simvm

import (
	"errors"

	"github.com/Fraser999/safe-core/managed"
)

// Receiver is implemented by objects whose methods can be invoked through
// Env.CallVoidMethod.
type Receiver interface {
	Invoke(env managed.Env, method string, args []managed.Value) error
}

// Env is the per-thread view of a VM.
type Env struct {
	vm       *VM
	thrown   error
	name     string
	tid      uint64
	detached bool
}

// Thread returns the OS thread id the Env belongs to.
func (e *Env) Thread() uint64 { return e.tid }

func (e *Env) check(op string) bool {
	tid := currentThread()
	if tid != e.tid {
		e.vm.violate("%s: env of thread %d used on thread %d", op, e.tid, tid)
		return false
	}
	if !e.vm.isAttached(tid) {
		e.vm.violate("%s: thread %d used env after detach", op, tid)
		return false
	}
	return true
}

func (e *Env) NewGlobalRef(obj managed.Object) (managed.Ref, error) {
	if obj == nil {
		return 0, errors.New("simvm: global ref of null object")
	}
	e.check("NewGlobalRef")

	e.vm.mu.Lock()
	defer e.vm.mu.Unlock()
	e.vm.nextRef++
	ref := e.vm.nextRef
	e.vm.refs[ref] = obj
	return ref, nil
}

func (e *Env) DeleteGlobalRef(ref managed.Ref) {
	e.check("DeleteGlobalRef")

	e.vm.mu.Lock()
	_, ok := e.vm.refs[ref]
	delete(e.vm.refs, ref)
	e.vm.mu.Unlock()

	if !ok {
		e.vm.violate("DeleteGlobalRef: unknown or already deleted ref %d", ref)
	}
}

func (e *Env) CallVoidMethod(ref managed.Ref, method string, args ...managed.Value) error {
	if !e.check("CallVoidMethod") {
		return &managed.Exception{Class: "java/lang/IllegalStateException", Message: "wrong thread"}
	}

	e.vm.mu.Lock()
	obj, ok := e.vm.refs[ref]
	e.vm.mu.Unlock()

	if !ok {
		e.vm.violate("CallVoidMethod: %s on dead ref %d", method, ref)
		return &managed.Exception{Class: "java/lang/NullPointerException", Message: "dead reference"}
	}
	recv, ok := obj.(Receiver)
	if !ok {
		return &managed.Exception{Class: "java/lang/NoSuchMethodError", Message: method}
	}
	return recv.Invoke(e, method, args)
}

func (e *Env) NewString(s string) managed.String {
	return NewString(s)
}

func (e *Env) NewByteArray(b []byte) managed.ByteArray {
	return NewArray(b)
}

func (e *Env) NewObject(class string, fields map[string]managed.Value) (managed.Object, error) {
	if class == "" {
		return nil, errors.New("simvm: empty class name")
	}
	return NewObject(class, fields), nil
}

func (e *Env) Throw(err error) {
	e.thrown = err
}

// TakeThrown returns and clears the exception raised with Throw.
func (e *Env) TakeThrown() error {
	err := e.thrown
	e.thrown = nil
	return err
}

func (e *Env) ReportUnhandled(err error) {
	e.vm.mu.Lock()
	defer e.vm.mu.Unlock()
	e.vm.unhandled = append(e.vm.unhandled, err)
}
