package dispatch

import (
	"sync"

	"github.com/Fraser999/safe-core/managed"
	"github.com/Fraser999/safe-core/transcoder"
)

// State is the delivery state of a Call.
type State uint8

const (
	StatePending State = iota
	StateDelivering
	StateDelivered
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateDelivering:
		return "delivering"
	case StateDelivered:
		return "delivered"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is a final state.
func (s State) Terminal() bool {
	return s == StateDelivered || s == StateFailed
}

// LiftFunc converts the payload of a success event into the managed value
// passed to onSuccess.
type LiftFunc func(l transcoder.Lifter, v any) (managed.Value, error)

// Call is the record pinned in the registry for one outstanding request.
type Call struct {
	// Lift converts the success payload. Nil means Lifter.Value.
	Lift LiftFunc
	Op   string
	// Success receives onSuccess and, when Progress is set, onProgress.
	Success managed.Ref
	// Failure receives onFailure. It equals Success for unified callbacks.
	Failure managed.Ref
	// Progress enables onProgress delivery.
	Progress bool

	mu       sync.Mutex
	state    State
	released bool
	events   uint32
}

// NewCall returns a Call delivering every method to one callback object.
func NewCall(op string, cb managed.Ref) *Call {
	return &Call{Op: op, Success: cb, Failure: cb}
}

// NewSplitCall returns a Call delivering success and failure to separate
// callback objects.
func NewSplitCall(op string, success, failure managed.Ref) *Call {
	return &Call{Op: op, Success: success, Failure: failure}
}

// State returns the current delivery state.
func (c *Call) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Events returns the number of events delivered to managed code.
func (c *Call) Events() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events
}

func (c *Call) lift(l transcoder.Lifter, v any) (managed.Value, error) {
	if c.Lift != nil {
		return c.Lift(l, v)
	}
	return l.Value(v)
}

// release deletes the global references of c. Callers hold c.mu.
func (c *Call) release(env managed.Env) {
	if c.released {
		return
	}
	c.released = true
	if c.Success != 0 {
		env.DeleteGlobalRef(c.Success)
	}
	if c.Failure != 0 && c.Failure != c.Success {
		env.DeleteGlobalRef(c.Failure)
	}
}
