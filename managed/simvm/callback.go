package simvm

import (
	"sync"
	"time"

	"github.com/Fraser999/safe-core/internal/osthread"
	"github.com/Fraser999/safe-core/managed"
)

// ClassCallback is the class of callback objects.
const ClassCallback = "safe/core/Callback"

// Invocation records one call into a Callback.
type Invocation struct {
	Method string
	Args   []managed.Value
	Thread uint64
}

// Callback is a managed callback object that records its invocations.
type Callback struct {
	throws   map[string]error
	panics   map[string]any
	calls    []Invocation
	done     chan struct{}
	doneOnce sync.Once
	mu       sync.Mutex
}

// NewCallback creates a recording callback.
func NewCallback() *Callback {
	return &Callback{
		throws: make(map[string]error),
		panics: make(map[string]any),
		done:   make(chan struct{}),
	}
}

// ThrowOn makes method throw err after it is recorded.
func (c *Callback) ThrowOn(method string, err error) *Callback {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.throws[method] = err
	return c
}

// PanicOn makes method panic with v after it is recorded.
func (c *Callback) PanicOn(method string, v any) *Callback {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.panics[method] = v
	return c
}

func (c *Callback) Class() string { return ClassCallback }

func (c *Callback) Field(string) (managed.Value, bool) { return nil, false }

func (c *Callback) Invoke(_ managed.Env, method string, args []managed.Value) error {
	tid, _ := osthread.ID()

	c.mu.Lock()
	c.calls = append(c.calls, Invocation{Method: method, Args: args, Thread: tid})
	err := c.throws[method]
	p, shouldPanic := c.panics[method]
	c.mu.Unlock()

	if method != managed.MethodProgress {
		c.doneOnce.Do(func() { close(c.done) })
	}
	if shouldPanic {
		panic(p)
	}
	return err
}

// Wait blocks until a terminal method is invoked or d elapses.
func (c *Callback) Wait(d time.Duration) bool {
	select {
	case <-c.done:
		return true
	case <-time.After(d):
		return false
	}
}

// Calls returns every recorded invocation.
func (c *Callback) Calls() []Invocation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Invocation(nil), c.calls...)
}

// Count returns how many times method was invoked.
func (c *Callback) Count(method string) int {
	n := 0
	for _, inv := range c.Calls() {
		if inv.Method == method {
			n++
		}
	}
	return n
}

// Terminals returns the number of success and failure invocations.
func (c *Callback) Terminals() int {
	return c.Count(managed.MethodSuccess) + c.Count(managed.MethodFailure)
}

// Success returns the argument of the first success invocation.
func (c *Callback) Success() (managed.Value, bool) {
	for _, inv := range c.Calls() {
		if inv.Method == managed.MethodSuccess {
			if len(inv.Args) == 0 {
				return nil, true
			}
			return inv.Args[0], true
		}
	}
	return nil, false
}

// Failure returns the code and message of the first failure invocation.
func (c *Callback) Failure() (int32, string, bool) {
	for _, inv := range c.Calls() {
		if inv.Method != managed.MethodFailure || len(inv.Args) != 2 {
			continue
		}
		code, _ := inv.Args[0].(int32)
		msg, _ := inv.Args[1].(managed.String)
		return code, GoString(msg), true
	}
	return 0, "", false
}
