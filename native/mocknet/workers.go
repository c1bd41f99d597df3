package mocknet

import (
	"errors"
	"runtime"
	"sync"

	"go.uber.org/zap"

	"github.com/Fraser999/safe-core/internal/osthread"
)

// pool runs jobs on goroutines that each own an OS thread for their whole
// life. A worker that stops runs its exit hooks on its own thread and then
// lets that thread die with it.
type pool struct {
	jobs    chan func()
	workers map[uint64]*worker
	log     *zap.Logger
	wg      sync.WaitGroup
	mu      sync.Mutex
	closeMu sync.RWMutex
	closed  bool
}

type worker struct {
	hooks []func()
	tid   uint64
}

func newPool(n, queue int, log *zap.Logger) *pool {
	p := &pool{
		jobs:    make(chan func(), queue),
		workers: make(map[uint64]*worker, n),
		log:     log,
	}
	ready := make(chan struct{}, n)
	p.wg.Add(n)
	for i := 0; i < n; i++ {
		go p.run(i, ready)
	}
	for i := 0; i < n; i++ {
		<-ready
	}
	return p
}

func (p *pool) run(idx int, ready chan<- struct{}) {
	defer p.wg.Done()

	// never unlocked: the thread exits together with the goroutine
	runtime.LockOSThread()

	tid, ok := osthread.ID()
	w := &worker{tid: tid}
	if ok {
		p.mu.Lock()
		p.workers[tid] = w
		p.mu.Unlock()
	}
	p.log.Debug("worker started", zap.Int("worker", idx), zap.Uint64("tid", tid))
	ready <- struct{}{}

	for job := range p.jobs {
		job()
	}

	p.mu.Lock()
	hooks := w.hooks
	w.hooks = nil
	delete(p.workers, tid)
	p.mu.Unlock()

	for i := len(hooks) - 1; i >= 0; i-- {
		hooks[i]()
	}
	p.log.Debug("worker stopped", zap.Int("worker", idx), zap.Int("exit_hooks", len(hooks)))
}

var (
	errPoolClosed = errors.New("pool closed")
	errPoolFull   = errors.New("pool queue full")
)

// submit queues job without blocking.
func (p *pool) submit(job func()) error {
	p.closeMu.RLock()
	defer p.closeMu.RUnlock()
	if p.closed {
		return errPoolClosed
	}
	select {
	case p.jobs <- job:
		return nil
	default:
		return errPoolFull
	}
}

// onExit registers fn on the calling worker thread.
func (p *pool) onExit(fn func()) bool {
	tid, ok := osthread.ID()
	if !ok {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.workers[tid]
	if !ok {
		return false
	}
	w.hooks = append(w.hooks, fn)
	return true
}

// close drains queued jobs and waits for every worker to exit.
func (p *pool) close() {
	p.closeMu.Lock()
	if p.closed {
		p.closeMu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.closeMu.Unlock()
	p.wg.Wait()
}
