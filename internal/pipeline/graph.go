package pipeline

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/smazurov/camgraph/internal/config"
	"github.com/smazurov/camgraph/internal/negotiation"
	"github.com/smazurov/camgraph/internal/node"
)

// instance is one node of the built graph.
type instance struct {
	index  int
	rank   int
	name   string
	kind   node.Kind
	params node.Params
	impl   node.Node
	info   *node.Info
	logger *slog.Logger
	state  State

	inputs  map[string]node.PortID
	outputs map[string]node.PortID

	// upstream holds the link feeding each connected input.
	upstream map[node.PortID]*link
	// downstream holds the links leaving each output.
	downstream map[node.PortID][]*link

	data *negotiation.Data

	// execMu keeps invocations of one node sequential.
	execMu sync.Mutex
}

func (i *instance) portName(dir node.Direction, id node.PortID) string {
	if name := i.impl.PortName(dir, id); name != "" {
		return name
	}
	return fmt.Sprintf("%s%d", dir, id)
}

// link is a directed edge from an output port to an input port.
type link struct {
	from, to         *instance
	fromPort, toPort node.PortID
	delta            uint32
	disabled         bool
}

func (l *link) String() string {
	s := fmt.Sprintf("%s:%s -> %s:%s", l.from.name, l.from.portName(node.Output, l.fromPort),
		l.to.name, l.to.portName(node.Input, l.toPort))
	if l.delta > 0 {
		s += fmt.Sprintf(" (delta %d)", l.delta)
	}
	return s
}

// temporal links carry a buffer from an earlier request and do not
// constrain the order nodes run in.
func (l *link) temporal() bool { return l.delta > 0 }

// connect resolves the topology links against the declared ports.
func connect(nodes []*instance, links []config.LinkConfig) ([]*link, error) {
	byName := make(map[string]*instance, len(nodes))
	for _, n := range nodes {
		byName[n.name] = n
	}

	out := make([]*link, 0, len(links))
	for _, lc := range links {
		from, to, err := lc.Endpoints()
		if err != nil {
			return nil, err
		}
		src, ok := byName[from.Node]
		if !ok {
			return nil, fmt.Errorf("link %s: unknown node %q", lc.From, from.Node)
		}
		dst, ok := byName[to.Node]
		if !ok {
			return nil, fmt.Errorf("link %s: unknown node %q", lc.To, to.Node)
		}
		op, ok := src.outputs[from.Port]
		if !ok {
			return nil, fmt.Errorf("%w: %s has no output %q", ErrUnknownPort, src.name, from.Port)
		}
		ip, ok := dst.inputs[to.Port]
		if !ok {
			return nil, fmt.Errorf("%w: %s has no input %q", ErrUnknownPort, dst.name, to.Port)
		}
		if _, taken := dst.upstream[ip]; taken {
			return nil, fmt.Errorf("input %s already connected", to)
		}

		l := &link{from: src, to: dst, fromPort: op, toPort: ip, delta: uint32(lc.Delta)}
		if src == dst && !l.temporal() {
			return nil, fmt.Errorf("%w: %s feeds itself without delta", ErrCycle, src.name)
		}
		dst.upstream[ip] = l
		src.downstream[op] = append(src.downstream[op], l)
		out = append(out, l)
	}
	return out, nil
}

// order sorts nodes so every producer precedes its consumers. Temporal links
// are ignored. Ties keep declaration order.
func order(nodes []*instance, links []*link) ([]*instance, error) {
	indegree := make(map[*instance]int, len(nodes))
	next := make(map[*instance][]*instance)
	for _, l := range links {
		if l.temporal() {
			continue
		}
		indegree[l.to]++
		next[l.from] = append(next[l.from], l.to)
	}

	var ready []*instance
	for _, n := range nodes {
		if indegree[n] == 0 {
			ready = append(ready, n)
		}
	}

	sorted := make([]*instance, 0, len(nodes))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return ready[i].index < ready[j].index })
		n := ready[0]
		ready = ready[1:]
		sorted = append(sorted, n)
		for _, m := range next[n] {
			indegree[m]--
			if indegree[m] == 0 {
				ready = append(ready, m)
			}
		}
	}

	if len(sorted) != len(nodes) {
		var stuck []string
		for _, n := range nodes {
			if indegree[n] > 0 {
				stuck = append(stuck, n.name)
			}
		}
		return nil, fmt.Errorf("%w: %v", ErrCycle, stuck)
	}
	return sorted, nil
}
