package pipeline

import (
	"sort"

	"github.com/smazurov/camgraph/internal/negotiation"
	"github.com/smazurov/camgraph/internal/node"
	"github.com/smazurov/camgraph/internal/property"
)

// Snapshot is a read-only view of the pipeline for the API and CLI.
type Snapshot struct {
	Session     string         `json:"session" doc:"Pipeline session identifier"`
	Depth       int            `json:"depth" doc:"Maximum requests in flight"`
	Workers     int            `json:"workers" doc:"Worker goroutines, 0 for inline scheduling"`
	Nodes       []NodeSnapshot `json:"nodes" doc:"Nodes in execution order"`
	Links       []LinkSnapshot `json:"links" doc:"Links between ports"`
	Pending     []PendingUnit  `json:"pending" doc:"Dependency units waiting to resolve"`
	InFlight    []uint64       `json:"in_flight" doc:"Requests submitted and not retired"`
	NextRequest uint64         `json:"next_request" doc:"Id the next request will get"`
	Advertised  []string       `json:"advertised" doc:"Properties some node publishes"`
}

// NodeSnapshot describes one node.
type NodeSnapshot struct {
	Name             string         `json:"name" example:"lrme"`
	Kind             string         `json:"kind" example:"lrme"`
	State            State          `json:"state" example:"active"`
	HardwareDisabled bool           `json:"hardware_disabled"`
	Inputs           []PortSnapshot `json:"inputs"`
	Outputs          []PortSnapshot `json:"outputs"`
}

// PortSnapshot describes one port and its negotiation result.
type PortSnapshot struct {
	ID          node.PortID              `json:"id"`
	Name        string                   `json:"name" example:"tar_ds4"`
	Connected   bool                     `json:"connected"`
	Disabled    bool                     `json:"disabled"`
	Delta       uint32                   `json:"delta,omitempty"`
	Requirement *negotiation.Requirement `json:"requirement,omitempty"`
	Format      *negotiation.Format      `json:"format,omitempty"`
}

// LinkSnapshot describes one link.
type LinkSnapshot struct {
	From     string `json:"from" example:"frontend:ds4"`
	To       string `json:"to" example:"lrme:tar_ds4"`
	Delta    uint32 `json:"delta"`
	Disabled bool   `json:"disabled"`
}

// PendingUnit describes a dependency unit waiting in the scheduler.
type PendingUnit struct {
	Node       string `json:"node"`
	RequestID  uint64 `json:"request_id"`
	SequenceID uint32 `json:"sequence_id"`
	Properties int    `json:"properties"`
	Fences     int    `json:"fences"`
}

// Snapshot captures the current pipeline state.
func (p *Pipeline) Snapshot() Snapshot {
	s := Snapshot{
		Session: p.session,
		Depth:   p.depth,
		Workers: p.workers,
		Pending: p.sched.waiting(),
	}

	p.mu.Lock()
	s.NextRequest = p.nextID
	for id, r := range p.requests {
		if !r.retired {
			s.InFlight = append(s.InFlight, id)
		}
	}
	for _, inst := range p.order {
		s.Nodes = append(s.Nodes, snapshotNode(inst))
	}
	for _, l := range p.links {
		s.Links = append(s.Links, LinkSnapshot{
			From:     l.from.name + ":" + l.from.portName(node.Output, l.fromPort),
			To:       l.to.name + ":" + l.to.portName(node.Input, l.toPort),
			Delta:    l.delta,
			Disabled: l.disabled,
		})
	}
	p.mu.Unlock()

	sort.Slice(s.InFlight, func(i, j int) bool { return s.InFlight[i] < s.InFlight[j] })
	for _, inst := range p.nodes {
		for _, id := range inst.info.Publishes {
			if p.props.IsAdvertised(id) {
				s.Advertised = append(s.Advertised, string(id))
			}
		}
	}
	sort.Strings(s.Advertised)
	return s
}

func snapshotNode(inst *instance) NodeSnapshot {
	ns := NodeSnapshot{
		Name:             inst.name,
		Kind:             string(inst.kind),
		State:            inst.state,
		HardwareDisabled: inst.info.HardwareDisabled,
	}
	for _, id := range inst.data.InputIDs() {
		in := inst.data.Inputs[id]
		ps := PortSnapshot{
			ID:        id,
			Name:      in.Name,
			Connected: in.Connected,
			Disabled:  in.Disabled,
			Delta:     in.Delta,
		}
		if in.HasRequirement {
			req := in.Requirement
			ps.Requirement = &req
		}
		if in.Format != nil && !in.Disabled {
			f := *in.Format
			ps.Format = &f
		}
		ns.Inputs = append(ns.Inputs, ps)
	}
	for _, id := range inst.data.OutputIDs() {
		out := inst.data.Outputs[id]
		ps := PortSnapshot{
			ID:        id,
			Name:      out.Name,
			Connected: len(inst.downstream[id]) > 0,
			Disabled:  out.Disabled,
		}
		if out.Finalized && !out.Disabled {
			f := out.Format
			ps.Format = &f
		}
		ns.Outputs = append(ns.Outputs, ps)
	}
	return ns
}

// Node returns the snapshot of one node.
func (s Snapshot) Node(name string) (NodeSnapshot, bool) {
	for _, n := range s.Nodes {
		if n.Name == name {
			return n, true
		}
	}
	return NodeSnapshot{}, false
}

// Port returns the named port of a node snapshot.
func (n NodeSnapshot) Port(dir node.Direction, name string) (PortSnapshot, bool) {
	ports := n.Inputs
	if dir == node.Output {
		ports = n.Outputs
	}
	for _, ps := range ports {
		if ps.Name == name {
			return ps, true
		}
	}
	return PortSnapshot{}, false
}

// Advertises reports whether the snapshot lists id as advertised.
func (s Snapshot) Advertises(id property.ID) bool {
	for _, a := range s.Advertised {
		if a == string(id) {
			return true
		}
	}
	return false
}
