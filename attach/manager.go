package attach

import (
	"sync"

	"go.uber.org/zap"

	"github.com/Fraser999/safe-core/errors"
	"github.com/Fraser999/safe-core/internal/osthread"
	"github.com/Fraser999/safe-core/managed"
	"github.com/Fraser999/safe-core/native"
)

// ThreadName is the name native threads are attached under.
const ThreadName = "safe-core-native"

// Options configures a Manager.
type Options struct {
	// Hooks lets Persistent attachments detach when a native thread exits.
	// Without hooks Persistent behaves like Ephemeral.
	Hooks  native.ThreadHooks
	Logger *zap.Logger
	Policy Policy
}

// Manager attaches native callback threads to the managed runtime. Every
// method must run on a goroutine locked to its OS thread, since attachment
// belongs to the OS thread and not to the goroutine.
type Manager struct {
	vm      managed.VM
	hooks   native.ThreadHooks
	log     *zap.Logger
	threads map[uint64]*thread
	policy  Policy
	mu      sync.Mutex
	closed  bool
}

type thread struct {
	deliveries uint64
}

// New creates a Manager for vm.
func New(vm managed.VM, opts Options) *Manager {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		vm:      vm,
		hooks:   opts.Hooks,
		log:     log,
		threads: make(map[uint64]*thread),
		policy:  opts.Policy,
	}
}

// Policy returns the policy applied to every thread.
func (m *Manager) Policy() Policy { return m.policy }

// Attach makes the calling thread usable by the managed runtime. It is
// idempotent: a thread that is already attached, by the host or by an
// earlier delivery, keeps its existing Env.
func (m *Manager) Attach() (Token, error) {
	tid, known := osthread.ID()

	if env, err := m.vm.GetEnv(); err == nil {
		m.mu.Lock()
		t, ours := m.threads[tid]
		if ours && known {
			t.deliveries++
		}
		m.mu.Unlock()
		return Token{env: env, tid: tid, host: !(ours && known), keep: true}, nil
	}

	env, err := m.vm.AttachCurrentThread(ThreadName)
	if err != nil {
		m.log.Error("attach failed", zap.Uint64("tid", tid), zap.Error(err))
		return Token{}, errors.AttachmentFailed(tid, err)
	}
	tok := Token{env: env, tid: tid, attached: true}

	if !known {
		// no stable thread identity: never keep an attachment we cannot find again
		return tok, nil
	}

	m.mu.Lock()
	persistent := m.policy == Persistent && !m.closed && m.hooks != nil
	m.threads[tid] = &thread{deliveries: 1}
	m.mu.Unlock()

	if persistent && !m.hooks.OnThreadExit(m.ThreadExited) {
		m.log.Debug("no exit hook for thread, detaching after delivery", zap.Uint64("tid", tid))
		persistent = false
	}
	tok.keep = persistent

	m.log.Debug("thread attached",
		zap.Uint64("tid", tid),
		zap.Stringer("policy", m.policy),
		zap.Bool("persistent", persistent))
	return tok, nil
}

// Release ends the delivery tok was attached for, detaching the thread when
// the policy says so.
func (m *Manager) Release(tok Token) {
	if !tok.attached || tok.keep {
		return
	}
	m.detach(tok.tid, "delivery complete")
}

// Detach detaches the calling thread if the manager attached it. It is a
// no-op on threads attached by the host or not attached at all.
func (m *Manager) Detach() error {
	tid, known := osthread.ID()
	if !known {
		return nil
	}
	return m.detach(tid, "explicit detach")
}

// ThreadExited is the exit hook registered for Persistent threads. It runs
// on the exiting thread.
func (m *Manager) ThreadExited() {
	tid, known := osthread.ID()
	if !known {
		return
	}
	_ = m.detach(tid, "thread exit")
}

func (m *Manager) detach(tid uint64, reason string) error {
	m.mu.Lock()
	t, ours := m.threads[tid]
	delete(m.threads, tid)
	m.mu.Unlock()

	if !ours && tid != 0 {
		return nil
	}
	if err := m.vm.DetachCurrentThread(); err != nil {
		m.log.Error("detach failed", zap.Uint64("tid", tid), zap.String("reason", reason), zap.Error(err))
		return errors.New(errors.PhaseAttach, errors.KindAttachment).
			Detail("detach thread %d", tid).
			Value(tid).
			Cause(err).
			Build()
	}

	var deliveries uint64
	if t != nil {
		deliveries = t.deliveries
	}
	m.log.Debug("thread detached",
		zap.Uint64("tid", tid),
		zap.String("reason", reason),
		zap.Uint64("deliveries", deliveries))
	return nil
}

// Attached returns the number of threads currently attached by the manager.
func (m *Manager) Attached() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.threads)
}

// Shutdown stops new Persistent attachments and reports the threads still
// attached. Those threads are detached by their exit hooks, since a thread
// can only be detached from itself.
func (m *Manager) Shutdown() []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true

	left := make([]uint64, 0, len(m.threads))
	for tid := range m.threads {
		left = append(left, tid)
	}
	if len(left) > 0 {
		m.log.Warn("threads still attached at shutdown", zap.Uint64s("tids", left))
	}
	return left
}
