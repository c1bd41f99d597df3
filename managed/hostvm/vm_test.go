package hostvm

import (
	"bytes"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/Fraser999/safe-core/bridge"
	"github.com/Fraser999/safe-core/internal/codec"
	"github.com/Fraser999/safe-core/managed"
	"github.com/Fraser999/safe-core/native"
	"github.com/Fraser999/safe-core/native/mocknet"
)

type recorder struct {
	done     chan struct{}
	result   []byte
	message  string
	chunks   [][]byte
	code     int32
	mu       sync.Mutex
	finished bool
}

func newRecorder() *recorder {
	return &recorder{done: make(chan struct{})}
}

func (r *recorder) finish() {
	if !r.finished {
		r.finished = true
		close(r.done)
	}
}

func (r *recorder) OnSuccess(result []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.result = result
	r.finish()
}

func (r *recorder) OnFailure(code int32, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.code, r.message = code, message
	r.finish()
}

func (r *recorder) OnProgress(_, _ int64, chunk []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks = append(r.chunks, chunk)
}

func (r *recorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(5 * time.Second):
		t.Fatal("no result")
	}
}

func (r *recorder) decode(t *testing.T) map[string]any {
	t.Helper()
	r.wait(t)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.result == nil {
		t.Fatalf("failed with %d: %s", r.code, r.message)
	}
	var m map[string]any
	if err := codec.Unmarshal(r.result, &m); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestEncode(t *testing.T) {
	obj := NewObject(managed.ClassData, map[string]managed.Value{
		managed.FieldContent: Bytes("abc"),
		managed.FieldVersion: int64(3),
		"label":              NewString("x"),
		"list":               []managed.Value{int32(1), nil},
	})
	encoded, err := Encode(obj)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := codec.Unmarshal(encoded, &m); err != nil {
		t.Fatal(err)
	}
	if m[TypeKey] != "Data" || !bytes.Equal(m[managed.FieldContent].([]byte), []byte("abc")) || m["label"] != "x" {
		t.Fatalf("decoded %v", m)
	}

	again, _ := Encode(obj)
	if !bytes.Equal(encoded, again) {
		t.Fatal("encoding is not deterministic")
	}

	if _, err := Encode(struct{}{}); err == nil {
		t.Fatal("unsupported value encoded")
	}
}

func TestEnv_CallVoidMethod(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	vm := New(nil, nil)
	env, err := vm.Enter()
	if err != nil {
		t.Fatal(err)
	}
	defer vm.DetachCurrentThread()

	rec := newRecorder()
	ref, err := env.NewGlobalRef(&Callback{Handler: rec})
	if err != nil {
		t.Fatal(err)
	}
	if err := env.CallVoidMethod(ref, managed.MethodProgress, int64(1), int64(2), Bytes("a")); err != nil {
		t.Fatal(err)
	}
	if err := env.CallVoidMethod(ref, managed.MethodFailure, int32(7), NewString("not found")); err != nil {
		t.Fatal(err)
	}
	rec.wait(t)
	if rec.code != 7 || rec.message != "not found" || len(rec.chunks) != 1 {
		t.Fatalf("recorded %+v", rec)
	}
	if err := env.CallVoidMethod(ref, "onOther"); err == nil {
		t.Fatal("unknown method accepted")
	}

	env.DeleteGlobalRef(ref)
	if vm.LiveRefs() != 0 {
		t.Fatal("reference not deleted")
	}
	if err := env.CallVoidMethod(ref, managed.MethodSuccess); err == nil {
		t.Fatal("call on deleted reference accepted")
	}
}

func TestVM_AttachDetach(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	vm := New(nil, nil)

	if _, err := vm.GetEnv(); err != managed.ErrDetached {
		t.Fatalf("GetEnv before attach: %v", err)
	}
	a, _ := vm.AttachCurrentThread("worker")
	b, _ := vm.AttachCurrentThread("worker")
	if a != b {
		t.Fatal("attach of attached thread created a new env")
	}
	if err := vm.DetachCurrentThread(); err != nil {
		t.Fatal(err)
	}
	if err := vm.DetachCurrentThread(); err == nil {
		t.Fatal("double detach accepted")
	}
}

func TestBridgeOverHostVM(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	var (
		fatalMu sync.Mutex
		fatal   []error
	)
	vm := New(nil, func(err error) {
		fatalMu.Lock()
		defer fatalMu.Unlock()
		fatal = append(fatal, err)
	})
	env, err := vm.Enter()
	if err != nil {
		t.Fatal(err)
	}
	defer vm.DetachCurrentThread()

	client := mocknet.New(mocknet.Options{})
	b, err := bridge.New(bridge.Options{VM: vm, Client: client, CloseClient: true})
	if err != nil {
		t.Fatal(err)
	}

	created := newRecorder()
	b.CreateAccount(env, NewString("carol"), NewString("pw"), &Callback{Handler: created})
	created.wait(t)
	if created.code != 0 {
		t.Fatalf("create account: %d %s", created.code, created.message)
	}

	id := NewObject(managed.ClassDataID, map[string]managed.Value{
		managed.FieldKind:    int32(native.DataStructured),
		managed.FieldName:    Bytes(bytes.Repeat([]byte{1}, 32)),
		managed.FieldTypeTag: int64(9),
	})
	put := newRecorder()
	b.Put(env, NewObject(managed.ClassData, map[string]managed.Value{
		managed.FieldID:      id,
		managed.FieldVersion: int64(0),
		managed.FieldContent: Bytes("hello host"),
	}), &Callback{Handler: put})
	if m := put.decode(t); m[TypeKey] != "DataIdentifier" {
		t.Fatalf("put returned %v", m)
	}

	get := newRecorder()
	b.GetStream(env, id, 4, &Callback{Handler: get})
	m := get.decode(t)
	if m[TypeKey] != "Data" {
		t.Fatalf("get returned %v", m)
	}
	if got := bytes.Join(get.chunks, nil); string(got) != "hello host" {
		t.Fatalf("streamed %q", got)
	}

	missing := newRecorder()
	b.GetSplit(env, id, nil, &Callback{Handler: missing})
	if err := env.TakeThrown(); err == nil {
		t.Fatal("null success callback not thrown")
	}

	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for vm.LiveRefs() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if vm.LiveRefs() != 0 {
		t.Fatalf("%d references leaked", vm.LiveRefs())
	}
	fatalMu.Lock()
	defer fatalMu.Unlock()
	if len(fatal) != 0 {
		t.Fatalf("fatal errors: %v", fatal)
	}
}
