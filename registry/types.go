package registry

// Handle is an opaque, address-sized reference to a pinned value.
// The low 32 bits select a slot, the high 32 bits carry the slot generation.
// Handle 0 is reserved and always invalid.
type Handle uint64

func makeHandle(slot, gen uint32) Handle {
	return Handle(uint64(gen)<<32 | uint64(slot))
}

func (h Handle) slot() uint32 { return uint32(h) }
func (h Handle) gen() uint32  { return uint32(h >> 32) }

// Outcome records how a handle left the registry.
type Outcome uint8

const (
	// OutcomeStale means the handle was never issued or its slot has since been reused.
	OutcomeStale Outcome = iota
	// OutcomePending means the handle is still live.
	OutcomePending
	OutcomeDelivered
	OutcomeFailed
	OutcomeCancelled
	OutcomeAbandoned
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeDelivered:
		return "delivered"
	case OutcomeFailed:
		return "failed"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeAbandoned:
		return "abandoned"
	default:
		return "stale"
	}
}

// Terminal reports whether o is a retirement outcome.
func (o Outcome) Terminal() bool {
	return o >= OutcomeDelivered
}

// EventType identifies a registry lifecycle notification.
type EventType uint8

const (
	EventPinned EventType = iota
	EventReleased
)

// Event represents a registry lifecycle event.
type Event struct {
	Value   any
	Handle  Handle
	Type    EventType
	Outcome Outcome
}

// Observer receives notifications about registry lifecycle events.
// Observers run under no registry lock but may run on any thread.
type Observer interface {
	OnRegistryEvent(Event)
}

// Dropper is optionally implemented by pinned values that need cleanup when
// the registry is closed with the value still live.
type Dropper interface {
	Drop()
}

// Entry is a live handle and its value, as returned by Drain.
type Entry struct {
	Value  any
	Handle Handle
}
