package registry

import (
	"math/bits"
	"sync"
	"sync/atomic"
)

const (
	DefaultShards     = 16
	DefaultQuarantine = 256
	maxShards         = 256
)

// Options configures a Registry.
type Options struct {
	// Shards is rounded up to a power of two, at most 256.
	Shards int
	// Quarantine is the number of retired slots per shard kept out of reuse.
	Quarantine int
}

// Registry maps request handles to pinned values with a take-once release.
// It is safe for concurrent use by any number of threads.
type Registry struct {
	shards    []*shard
	observers []Observer
	obsMu     sync.RWMutex
	next      atomic.Uint32
	shardBits uint
	closed    atomic.Bool
}

// New creates a registry.
func New(opts Options) *Registry {
	n := opts.Shards
	if n <= 0 {
		n = DefaultShards
	}
	if n > maxShards {
		n = maxShards
	}
	shardBits := uint(bits.Len(uint(n - 1)))
	n = 1 << shardBits

	q := opts.Quarantine
	if q < 0 {
		q = 0
	}

	r := &Registry{
		shards:    make([]*shard, n),
		shardBits: shardBits,
	}
	for i := range r.shards {
		r.shards[i] = newShard(q)
	}
	return r
}

func (r *Registry) locate(h Handle) (*shard, uint32, uint32, bool) {
	if h == 0 {
		return nil, 0, 0, false
	}
	global := h.slot()
	mask := uint32(len(r.shards) - 1)
	return r.shards[global&mask], global >> r.shardBits, h.gen(), true
}

func (r *Registry) compose(shardIdx int, local, gen uint32) Handle {
	return makeHandle(local<<r.shardBits|uint32(shardIdx), gen)
}

// Pin stores value and returns its handle.
func (r *Registry) Pin(value any) (Handle, error) {
	if r.closed.Load() {
		return 0, ErrClosed
	}

	idx := int(r.next.Add(1)) & (len(r.shards) - 1)
	local, gen, err := r.shards[idx].pin(value)
	if err != nil {
		return 0, err
	}
	h := r.compose(idx, local, gen)

	r.notify(Event{Type: EventPinned, Handle: h, Value: value, Outcome: OutcomePending})
	return h, nil
}

// Get returns the value of a live handle.
func (r *Registry) Get(h Handle) (any, bool) {
	v, outcome := r.Lookup(h)
	return v, outcome == OutcomePending
}

// Lookup returns the value and state of a handle. Retired handles report the
// outcome they were retired with for as long as their slot is quarantined.
func (r *Registry) Lookup(h Handle) (any, Outcome) {
	s, local, gen, ok := r.locate(h)
	if !ok {
		return nil, OutcomeStale
	}
	return s.get(local, gen)
}

// Take atomically retires a live handle with outcome and hands its value to
// the caller, who becomes responsible for releasing it. When ok is false the
// handle was not live and prior reports why.
func (r *Registry) Take(h Handle, outcome Outcome) (value any, prior Outcome, ok bool) {
	s, local, gen, valid := r.locate(h)
	if !valid {
		return nil, OutcomeStale, false
	}
	value, prior, ok = s.take(local, gen, outcome)
	if ok {
		r.notify(Event{Type: EventReleased, Handle: h, Value: value, Outcome: outcome})
	}
	return value, prior, ok
}

// Drain retires every live handle with outcome and returns them.
func (r *Registry) Drain(outcome Outcome) []Entry {
	var out []Entry
	for i, s := range r.shards {
		s.drain(outcome, func(local, gen uint32, value any) {
			h := r.compose(i, local, gen)
			out = append(out, Entry{Handle: h, Value: value})
			r.notify(Event{Type: EventReleased, Handle: h, Value: value, Outcome: outcome})
		})
	}
	return out
}

// Len returns the number of live handles.
func (r *Registry) Len() int {
	n := 0
	for _, s := range r.shards {
		n += s.len()
	}
	return n
}

// Subscribe adds an observer for lifecycle events.
func (r *Registry) Subscribe(o Observer) {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	r.observers = append(r.observers, o)
}

// Unsubscribe removes an observer.
func (r *Registry) Unsubscribe(o Observer) {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	for i, obs := range r.observers {
		if obs == o {
			r.observers = append(r.observers[:i], r.observers[i+1:]...)
			return
		}
	}
}

// Close stops accepting pins and drops anything still live. Values
// implementing Dropper are dropped.
func (r *Registry) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	for _, e := range r.Drain(OutcomeAbandoned) {
		if d, ok := e.Value.(Dropper); ok {
			d.Drop()
		}
	}
	for _, s := range r.shards {
		s.close()
	}
	return nil
}

func (r *Registry) notify(e Event) {
	r.obsMu.RLock()
	defer r.obsMu.RUnlock()
	for _, o := range r.observers {
		o.OnRegistryEvent(e)
	}
}
