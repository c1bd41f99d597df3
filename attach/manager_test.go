package attach

import (
	"fmt"
	"runtime"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Fraser999/safe-core/errors"
	"github.com/Fraser999/safe-core/internal/osthread"
	"github.com/Fraser999/safe-core/managed"
	"github.com/Fraser999/safe-core/managed/simvm"
)

func requireThreadIDs(t *testing.T) {
	t.Helper()
	if _, ok := osthread.ID(); !ok {
		t.Skip("OS thread ids not available on this platform")
	}
}

// onThread runs fn on a fresh goroutine locked to its own OS thread, the
// way a native worker thread calls into the bridge.
func onThread(fn func()) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		fn()
	}()
	<-done
}

type hooks struct {
	fns    []func()
	accept bool
	mu     sync.Mutex
}

func (h *hooks) OnThreadExit(fn func()) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.accept {
		return false
	}
	h.fns = append(h.fns, fn)
	return true
}

func (h *hooks) run() {
	h.mu.Lock()
	fns := h.fns
	h.fns = nil
	h.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in   string
		want Policy
		err  bool
	}{
		{"", Ephemeral, false},
		{"ephemeral", Ephemeral, false},
		{" Persistent ", Persistent, false},
		{"sticky", 0, true},
	}
	for _, tt := range tests {
		got, err := ParsePolicy(tt.in)
		if (err != nil) != tt.err || got != tt.want {
			t.Errorf("ParsePolicy(%q) = %v, %v", tt.in, got, err)
		}
	}

	var p Policy
	if err := p.UnmarshalText([]byte("persistent")); err != nil || p != Persistent {
		t.Fatalf("UnmarshalText: %v %v", p, err)
	}
	if b, _ := Persistent.MarshalText(); string(b) != "persistent" {
		t.Fatalf("MarshalText = %s", b)
	}
}

func TestManager_EphemeralIdempotent(t *testing.T) {
	requireThreadIDs(t)
	vm := simvm.New()
	core, logs := observer.New(zapcore.DebugLevel)
	m := New(vm, Options{Policy: Ephemeral, Logger: zap.New(core)})

	onThread(func() {
		first, err := m.Attach()
		if err != nil {
			t.Error(err)
			return
		}
		if first.Host() || vm.AttachedThreads() != 1 || m.Attached() != 1 {
			t.Error("first Attach must attach the thread")
		}

		second, err := m.Attach()
		if err != nil || second.Env() != first.Env() {
			t.Error("second Attach must reuse the Env")
		}
		m.Release(second)
		if vm.AttachedThreads() != 1 {
			t.Error("inner Release must not detach")
		}

		m.Release(first)
		if vm.AttachedThreads() != 0 || m.Attached() != 0 {
			t.Error("Release must detach an ephemeral thread")
		}

		if err := m.Detach(); err != nil {
			t.Errorf("Detach of a detached thread: %v", err)
		}
	})

	if a, d := vm.AttachCounts(); a != 1 || d != 1 {
		t.Fatalf("attaches=%d detaches=%d", a, d)
	}
	if v := vm.Violations(); len(v) != 0 {
		t.Fatalf("violations: %v", v)
	}
	if logs.FilterMessage("thread attached").Len() != 1 || logs.FilterMessage("thread detached").Len() != 1 {
		t.Fatalf("unexpected log entries: %v", logs.All())
	}
}

func TestManager_HostThreadNeverDetached(t *testing.T) {
	requireThreadIDs(t)
	vm := simvm.New()
	m := New(vm, Options{Policy: Ephemeral})

	env, leave := vm.Enter()
	defer leave()

	tok, err := m.Attach()
	if err != nil {
		t.Fatal(err)
	}
	if !tok.Host() || tok.Env() != managed.Env(env) {
		t.Fatal("host thread must be reported as host attached")
	}
	m.Release(tok)
	if err := m.Detach(); err != nil {
		t.Fatal(err)
	}
	if _, err := vm.GetEnv(); err != nil {
		t.Fatal("host thread was detached")
	}
	if m.Attached() != 0 {
		t.Fatal("host threads are not tracked")
	}
}

func TestManager_PersistentDetachesOnExit(t *testing.T) {
	requireThreadIDs(t)
	vm := simvm.New()
	h := &hooks{accept: true}
	m := New(vm, Options{Policy: Persistent, Hooks: h})

	var tid uint64
	onThread(func() {
		for i := 0; i < 3; i++ {
			tok, err := m.Attach()
			if err != nil {
				t.Error(err)
				return
			}
			tid = tok.Thread()
			m.Release(tok)
		}
		if vm.AttachedThreads() != 1 {
			t.Error("persistent thread must stay attached")
		}

		left := m.Shutdown()
		if len(left) != 1 || left[0] != tid {
			t.Errorf("Shutdown leftovers = %v, want [%d]", left, tid)
		}

		h.run()
	})

	if len(h.fns) != 0 {
		t.Fatal("hooks not consumed")
	}
	if vm.AttachedThreads() != 0 || m.Attached() != 0 {
		t.Fatal("exit hook must detach")
	}
	if a, d := vm.AttachCounts(); a != 1 || d != 1 {
		t.Fatalf("attaches=%d detaches=%d", a, d)
	}
}

func TestManager_PersistentWithoutHook(t *testing.T) {
	requireThreadIDs(t)
	vm := simvm.New()
	m := New(vm, Options{Policy: Persistent, Hooks: &hooks{accept: false}})

	onThread(func() {
		tok, err := m.Attach()
		if err != nil {
			t.Error(err)
			return
		}
		m.Release(tok)
	})
	if vm.AttachedThreads() != 0 {
		t.Fatal("thread without exit hook must be detached after delivery")
	}

	m = New(vm, Options{Policy: Persistent})
	onThread(func() {
		tok, _ := m.Attach()
		m.Release(tok)
	})
	if vm.AttachedThreads() != 0 {
		t.Fatal("manager without hooks must behave ephemerally")
	}
}

func TestManager_PersistentAfterShutdown(t *testing.T) {
	requireThreadIDs(t)
	vm := simvm.New()
	m := New(vm, Options{Policy: Persistent, Hooks: &hooks{accept: true}})
	m.Shutdown()

	onThread(func() {
		tok, _ := m.Attach()
		m.Release(tok)
	})
	if vm.AttachedThreads() != 0 {
		t.Fatal("no persistent attachments after shutdown")
	}
}

type failingVM struct {
	*simvm.VM
}

func (failingVM) AttachCurrentThread(string) (managed.Env, error) {
	return nil, fmt.Errorf("runtime is shutting down")
}

func TestManager_AttachFailure(t *testing.T) {
	requireThreadIDs(t)
	m := New(failingVM{simvm.New()}, Options{})

	onThread(func() {
		_, err := m.Attach()
		if err == nil {
			t.Error("expected attach failure")
			return
		}
		if errors.CodeOf(err) != errors.CodeAttachmentFailure {
			t.Errorf("code = %d", errors.CodeOf(err))
		}
		if errors.CategoryOf(err) != errors.CategoryAttachment {
			t.Errorf("category = %v", errors.CategoryOf(err))
		}
	})
}

func TestManager_Concurrent(t *testing.T) {
	requireThreadIDs(t)
	vm := simvm.New()
	m := New(vm, Options{Policy: Ephemeral})

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			onThread(func() {
				for j := 0; j < 50; j++ {
					tok, err := m.Attach()
					if err != nil {
						t.Error(err)
						return
					}
					m.Release(tok)
				}
			})
		}()
	}
	wg.Wait()

	if vm.AttachedThreads() != 0 || m.Attached() != 0 {
		t.Fatalf("attached = %d/%d", vm.AttachedThreads(), m.Attached())
	}
	if v := vm.Violations(); len(v) != 0 {
		t.Fatalf("violations: %v", v[0])
	}
}
