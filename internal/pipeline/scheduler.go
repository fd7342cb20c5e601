package pipeline

import (
	"fmt"
	"sort"
	"sync"

	"github.com/smazurov/camgraph/internal/node"
)

type unitKey struct {
	node    int
	request uint64
}

// pendingUnit is a dependency unit waiting for its dependencies.
type pendingUnit struct {
	inst *instance
	r    *requestState
	unit *node.Unit
}

// scheduler holds the pending dependency units. Every property publish and
// fence signal pokes it; satisfied units leave the table before they are
// dispatched, so each (node, request) pair is resolved exactly once.
type scheduler struct {
	mu       sync.Mutex
	props    node.PropertySource
	pending  map[unitKey]*pendingUnit
	dispatch func(*pendingUnit)
}

func newScheduler(props node.PropertySource, dispatch func(*pendingUnit)) *scheduler {
	return &scheduler{
		props:    props,
		pending:  make(map[unitKey]*pendingUnit),
		dispatch: dispatch,
	}
}

// add registers pu, dispatching it right away when it is already satisfied.
func (s *scheduler) add(pu *pendingUnit) error {
	if pu.unit.SequenceID == 0 {
		return fmt.Errorf("%s: %w: sequence id 0", pu.inst.name, ErrInvalidUnit)
	}
	key := unitKey{node: pu.inst.index, request: pu.r.req.ID}

	s.mu.Lock()
	if _, ok := s.pending[key]; ok {
		s.mu.Unlock()
		return fmt.Errorf("%s request %d: %w", pu.inst.name, pu.r.req.ID, ErrUnitOutstanding)
	}
	if pu.unit.Satisfied(s.props, pu.r.req.ID) {
		s.mu.Unlock()
		s.dispatch(pu)
		return nil
	}
	s.pending[key] = pu
	s.mu.Unlock()
	return nil
}

// poke re-checks every pending unit and dispatches the satisfied ones,
// oldest request first and in node order within a request.
func (s *scheduler) poke() {
	s.mu.Lock()
	var ready []*pendingUnit
	for key, pu := range s.pending {
		if pu.unit.Satisfied(s.props, key.request) {
			ready = append(ready, pu)
			delete(s.pending, key)
		}
	}
	s.mu.Unlock()

	sort.Slice(ready, func(i, j int) bool {
		if ready[i].r.req.ID != ready[j].r.req.ID {
			return ready[i].r.req.ID < ready[j].r.req.ID
		}
		return ready[i].inst.rank < ready[j].inst.rank
	})
	for _, pu := range ready {
		s.dispatch(pu)
	}
}

// clear drops every pending unit and returns how many there were.
func (s *scheduler) clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.pending)
	s.pending = make(map[unitKey]*pendingUnit)
	return n
}

func (s *scheduler) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// waiting lists the pending units for diagnostics.
func (s *scheduler) waiting() []PendingUnit {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PendingUnit, 0, len(s.pending))
	for key, pu := range s.pending {
		out = append(out, PendingUnit{
			Node:       pu.inst.name,
			RequestID:  key.request,
			SequenceID: pu.unit.SequenceID,
			Properties: len(pu.unit.Properties()),
			Fences:     len(pu.unit.Fences()),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RequestID != out[j].RequestID {
			return out[i].RequestID < out[j].RequestID
		}
		return out[i].Node < out[j].Node
	})
	return out
}
