package backend

import (
	"fmt"
	"sync"
)

// SlotPool holds per-request resources (command buffers, packets) sized to
// the pipeline's in-flight depth. Request n always uses slot n % depth, so a
// node can never have more than depth submissions in flight.
type SlotPool[T any] struct {
	mu    sync.Mutex
	slots []slot[T]
}

type slot[T any] struct {
	value   T
	busy    bool
	request uint64
}

// NewSlotPool allocates depth slots, initializing each with alloc.
func NewSlotPool[T any](depth int, alloc func(i int) T) *SlotPool[T] {
	if depth < 1 {
		depth = 1
	}
	p := &SlotPool[T]{slots: make([]slot[T], depth)}
	for i := range p.slots {
		if alloc != nil {
			p.slots[i].value = alloc(i)
		}
	}
	return p
}

// Depth returns the number of slots.
func (p *SlotPool[T]) Depth() int { return len(p.slots) }

// Index returns the slot used by requestID.
func (p *SlotPool[T]) Index(requestID uint64) int {
	return int(requestID % uint64(len(p.slots)))
}

// Acquire marks requestID's slot in flight and returns it.
func (p *SlotPool[T]) Acquire(requestID uint64) (*T, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := &p.slots[p.Index(requestID)]
	if s.busy {
		return nil, fmt.Errorf("%w: slot %d held by request %d", ErrPoolExhausted, p.Index(requestID), s.request)
	}
	s.busy = true
	s.request = requestID
	return &s.value, nil
}

// Release frees requestID's slot. Releasing a slot now held by another
// request is a no-op.
func (p *SlotPool[T]) Release(requestID uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := &p.slots[p.Index(requestID)]
	if s.busy && s.request == requestID {
		s.busy = false
	}
}

// InFlight returns the number of busy slots.
func (p *SlotPool[T]) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for i := range p.slots {
		if p.slots[i].busy {
			n++
		}
	}
	return n
}

// Reset frees every slot.
func (p *SlotPool[T]) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.slots {
		p.slots[i].busy = false
	}
}
