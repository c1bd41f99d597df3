package main

import (
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/Fraser999/safe-core/bridge"
	"github.com/Fraser999/safe-core/config"
	"github.com/Fraser999/safe-core/managed"
	"github.com/Fraser999/safe-core/managed/simvm"
	"github.com/Fraser999/safe-core/native/mocknet"
)

const callTimeout = 30 * time.Second

// session owns a simulated runtime, a mock network and the bridge between
// them. Entry points run on a single locked host thread, the way a managed
// application thread would call them.
type session struct {
	vm     *simvm.VM
	vault  mocknet.Vault
	client *mocknet.Client
	b      *bridge.Bridge
	log    *zap.Logger
	calls  chan func(*simvm.Env)
	done   chan struct{}
}

type outcome struct {
	value    managed.Value
	message  string
	progress int
	streamed int
	code     int32
	failed   bool
}

func openSession(cfg *config.Config, log *zap.Logger) (*session, error) {
	vault, err := cfg.OpenVault()
	if err != nil {
		return nil, err
	}

	s := &session{
		vm:    simvm.New(),
		vault: vault,
		log:   log,
		calls: make(chan func(*simvm.Env)),
		done:  make(chan struct{}),
	}
	s.vm.OnFatal(func(err error) {
		log.Error("fatal error raised in managed runtime", zap.Error(err))
	})
	s.client = mocknet.New(cfg.NetOptions(vault, log.Named("mocknet")))

	s.b, err = bridge.New(cfg.BridgeOptions(s.vm, s.client, log.Named("bridge")))
	if err != nil {
		_ = s.client.Close()
		_ = vault.Close()
		return nil, err
	}

	ready := make(chan struct{})
	go s.host(ready)
	<-ready
	return s, nil
}

func (s *session) host(ready chan<- struct{}) {
	runtime.LockOSThread()
	env, leave := s.vm.Enter()
	defer leave()
	close(ready)

	for {
		select {
		case fn := <-s.calls:
			fn(env)
		case <-s.done:
			return
		}
	}
}

// exec runs fn on the host thread and waits for it.
func (s *session) exec(fn func(env *simvm.Env)) {
	finished := make(chan struct{})
	s.calls <- func(env *simvm.Env) {
		defer close(finished)
		fn(env)
	}
	<-finished
}

// call submits one request and waits for its terminal callback.
func (s *session) call(submit func(env *simvm.Env, cb *simvm.Callback) int64) (outcome, error) {
	cb := simvm.NewCallback()
	var thrown error
	s.exec(func(env *simvm.Env) {
		submit(env, cb)
		thrown = env.TakeThrown()
	})
	if thrown != nil {
		return outcome{}, thrown
	}
	if !cb.Wait(callTimeout) {
		return outcome{}, fmt.Errorf("no callback after %s", callTimeout)
	}

	var out outcome
	for _, inv := range cb.Calls() {
		if inv.Method != managed.MethodProgress || len(inv.Args) != 3 {
			continue
		}
		out.progress++
		if chunk, ok := inv.Args[2].(managed.ByteArray); ok {
			out.streamed += chunk.Len()
		}
	}
	if v, ok := cb.Success(); ok {
		out.value = v
		return out, nil
	}
	out.code, out.message, _ = cb.Failure()
	out.failed = true
	return out, nil
}

func (s *session) close() error {
	var err error
	s.exec(func(*simvm.Env) { err = s.b.Close() })
	close(s.done)
	if cerr := s.client.Close(); err == nil {
		err = cerr
	}
	if verr := s.vault.Close(); err == nil {
		err = verr
	}
	return err
}
