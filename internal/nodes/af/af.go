// Package af is the software auto-focus node. It feeds the focus mode and
// algorithm events published for each request through the afsm table and
// publishes the resulting state.
package af

import (
	"fmt"
	"log/slog"

	"github.com/smazurov/camgraph/internal/afsm"
	"github.com/smazurov/camgraph/internal/negotiation"
	"github.com/smazurov/camgraph/internal/node"
	"github.com/smazurov/camgraph/internal/property"
)

// Kind is the registry tag.
const Kind node.Kind = "af"

const seqApply uint32 = 1

// Node is the auto-focus node.
type Node struct {
	name    string
	logger  *slog.Logger
	initial afsm.Mode
	machine *afsm.Machine
}

// New creates an auto-focus node.
func New(name string) node.Node {
	return &Node{name: name}
}

// Initialize implements node.Node.
func (n *Node) Initialize(ctx *node.InitContext) (*node.Info, error) {
	n.logger = ctx.Logger
	mode, ok := afsm.ParseMode(ctx.Params.String("mode", afsm.ContinuousPicture.String()))
	if !ok {
		return nil, fmt.Errorf("unknown focus mode %q", ctx.Params.String("mode", ""))
	}
	n.initial = mode
	n.machine = afsm.NewMachine(mode)
	return &node.Info{Publishes: []property.ID{property.AFState}}, nil
}

// FinalizeInputRequirement implements node.Node. The node has no ports.
func (n *Node) FinalizeInputRequirement(*negotiation.Data) error { return nil }

// FinalizeBufferProperties implements node.Node.
func (n *Node) FinalizeBufferProperties(*negotiation.Data) error { return nil }

// Activate implements node.Node.
func (n *Node) Activate(*node.ActivateContext) error { return nil }

// ExecuteRequest applies the request's focus input once it is published and
// the previous request's state is out.
func (n *Node) ExecuteRequest(ec *node.ExecuteContext) (*node.Unit, error) {
	switch ec.SequenceID {
	case 0:
		u := node.NewUnit(seqApply)
		ec.DependOnPrevious(u)
		ec.DependOnProperty(u, property.AFInput, 0)
		if !u.Empty() {
			return u, nil
		}
	case seqApply:
	default:
		return nil, node.UnknownSequence(n.name, ec.SequenceID)
	}
	ec.Publish(property.AFState, n.apply(ec))
	return nil, nil
}

func (n *Node) apply(ec *node.ExecuteContext) property.FocusState {
	before := n.machine.State()
	var in property.FocusInput
	if v, ok := ec.Query(property.AFInput, 0); ok {
		in, _ = v.(property.FocusInput)
	}

	if in.Mode != "" {
		if mode, ok := afsm.ParseMode(in.Mode); ok {
			n.machine.SetMode(mode)
		} else {
			ec.Logger.Warn("Ignoring unknown focus mode", "mode", in.Mode)
		}
	}
	for _, name := range in.Events {
		e, ok := afsm.ParseEvent(name)
		if !ok {
			ec.Logger.Warn("Ignoring unknown focus event", "event", name)
			continue
		}
		n.machine.Apply(e)
	}

	st := property.FocusState{
		Mode:    n.machine.Mode().String(),
		State:   n.machine.State().String(),
		Changed: n.machine.State() != before,
	}
	if st.Changed {
		ec.Logger.Debug("Focus state changed", "from", before, "to", n.machine.State())
	}
	return st
}

// Flush returns the machine to its initial mode and state.
func (n *Node) Flush() {
	n.machine = afsm.NewMachine(n.initial)
}

// PortName implements node.Node.
func (n *Node) PortName(dir node.Direction, id node.PortID) string {
	return fmt.Sprintf("%s%d", dir, id)
}
