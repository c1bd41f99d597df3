package registry

import (
	"errors"
	"sync"
)

var (
	ErrClosed = errors.New("registry closed")
	ErrFull   = errors.New("registry slot space exhausted")
)

// maxSlotsPerShard keeps the encoded slot index inside 32 bits.
const maxSlotsPerShard = 1 << 24

// shard is one independently locked partition of the registry.
// Freed slots are recycled first-in first-out, and only once more than
// quarantine slots are waiting, so a late lookup of a retired handle still
// finds its tombstone rather than a new occupant.
type shard struct {
	slots      []slot
	free       []uint32
	freeHead   int
	mu         sync.Mutex
	live       int
	quarantine int
	closed     bool
}

type slot struct {
	value   any
	gen     uint32
	outcome Outcome
}

func newShard(quarantine int) *shard {
	return &shard{
		slots:      make([]slot, 0, 64),
		free:       make([]uint32, 0, 16),
		quarantine: quarantine,
	}
}

// pin stores value and returns the shard-local index and generation.
func (s *shard) pin(value any) (uint32, uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, 0, ErrClosed
	}

	if len(s.free)-s.freeHead > s.quarantine {
		idx := s.free[s.freeHead]
		s.freeHead++
		if s.freeHead > len(s.free)/2 && s.freeHead > 64 {
			s.free = append(s.free[:0], s.free[s.freeHead:]...)
			s.freeHead = 0
		}
		sl := &s.slots[idx]
		sl.gen++
		if sl.gen == 0 {
			sl.gen = 1
		}
		sl.value = value
		sl.outcome = OutcomePending
		s.live++
		return idx, sl.gen, nil
	}

	if len(s.slots) >= maxSlotsPerShard {
		return 0, 0, ErrFull
	}

	s.slots = append(s.slots, slot{value: value, gen: 1, outcome: OutcomePending})
	s.live++
	return uint32(len(s.slots) - 1), 1, nil
}

func (s *shard) get(idx, gen uint32) (any, Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if int(idx) >= len(s.slots) {
		return nil, OutcomeStale
	}
	sl := s.slots[idx]
	if sl.gen != gen {
		return nil, OutcomeStale
	}
	return sl.value, sl.outcome
}

// take retires a live slot with outcome. Exactly one caller wins per handle.
func (s *shard) take(idx, gen uint32, outcome Outcome) (any, Outcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if int(idx) >= len(s.slots) {
		return nil, OutcomeStale, false
	}
	sl := &s.slots[idx]
	if sl.gen != gen {
		return nil, OutcomeStale, false
	}
	if sl.outcome != OutcomePending {
		return nil, sl.outcome, false
	}

	value := sl.value
	sl.value = nil
	sl.outcome = outcome
	s.live--
	if !s.closed {
		s.free = append(s.free, idx)
	}
	return value, OutcomePending, true
}

func (s *shard) drain(outcome Outcome, fn func(idx, gen uint32, value any)) {
	s.mu.Lock()
	var taken []Entry
	for i := range s.slots {
		sl := &s.slots[i]
		if sl.outcome != OutcomePending {
			continue
		}
		taken = append(taken, Entry{Value: sl.value, Handle: makeHandle(uint32(i), sl.gen)})
		sl.value = nil
		sl.outcome = outcome
		s.live--
		if !s.closed {
			s.free = append(s.free, uint32(i))
		}
	}
	s.mu.Unlock()

	for _, e := range taken {
		fn(e.Handle.slot(), e.Handle.gen(), e.Value)
	}
}

func (s *shard) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.free = nil
	s.freeHead = 0
}

func (s *shard) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}
