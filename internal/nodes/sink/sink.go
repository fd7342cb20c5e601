// Package sink is a terminal software node that waits for its inputs and
// counts what it receives.
package sink

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/smazurov/camgraph/internal/fence"
	"github.com/smazurov/camgraph/internal/negotiation"
	"github.com/smazurov/camgraph/internal/node"
)

// Kind is the registry tag.
const Kind node.Kind = "sink"

const seqDeliver uint32 = 1

// Stats counts delivered inputs by fence result.
type Stats struct {
	Requests  int
	Success   int
	Failed    int
	Cancelled int
}

// Node is the sink node.
type Node struct {
	name   string
	inputs int
	logger *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// New creates a sink node.
func New(name string) node.Node {
	return &Node{name: name}
}

// Initialize declares params["inputs"] inputs named in0, in1, ...
func (n *Node) Initialize(ctx *node.InitContext) (*node.Info, error) {
	n.logger = ctx.Logger
	n.inputs = ctx.Params.Int("inputs", 1)
	if n.inputs < 1 {
		return nil, fmt.Errorf("inputs must be positive, got %d", n.inputs)
	}
	info := &node.Info{}
	for i := range n.inputs {
		info.Inputs = append(info.Inputs, node.PortSpec{ID: node.PortID(i), Name: fmt.Sprintf("in%d", i)})
	}
	return info, nil
}

// FinalizeInputRequirement implements node.Node. A sink takes any buffer.
func (n *Node) FinalizeInputRequirement(*negotiation.Data) error { return nil }

// FinalizeBufferProperties disables inputs nothing feeds.
func (n *Node) FinalizeBufferProperties(d *negotiation.Data) error {
	for _, id := range d.InputIDs() {
		if !d.Connected(id) {
			d.DisableInput(id)
		}
	}
	return nil
}

// Activate implements node.Node.
func (n *Node) Activate(*node.ActivateContext) error { return nil }

// ExecuteRequest waits for the previous request and every active input, then
// records the results.
func (n *Node) ExecuteRequest(ec *node.ExecuteContext) (*node.Unit, error) {
	switch ec.SequenceID {
	case 0:
		u := node.NewUnit(seqDeliver)
		ec.DependOnPrevious(u)
		ec.DependOnInputs(u)
		if !u.Empty() {
			return u, nil
		}
	case seqDeliver:
	default:
		return nil, node.UnknownSequence(n.name, ec.SequenceID)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.stats.Requests++
	for _, f := range ec.InputFences() {
		switch f.Result() {
		case fence.Success:
			n.stats.Success++
		case fence.Failed:
			n.stats.Failed++
		case fence.Cancelled:
			n.stats.Cancelled++
		}
	}
	return nil, nil
}

// Stats returns the delivery counters.
func (n *Node) Stats() Stats {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.stats
}

// Flush implements node.Flusher.
func (n *Node) Flush() {
	n.mu.Lock()
	n.stats = Stats{}
	n.mu.Unlock()
}

// PortName implements node.Node.
func (n *Node) PortName(dir node.Direction, id node.PortID) string {
	if dir == node.Input && int(id) < n.inputs {
		return fmt.Sprintf("in%d", id)
	}
	return fmt.Sprintf("%s%d", dir, id)
}
