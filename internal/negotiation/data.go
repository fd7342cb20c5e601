package negotiation

import (
	"fmt"
	"sort"
)

// PortID identifies a port within its node.
type PortID uint32

// Format is the concrete buffer layout chosen for a port.
type Format struct {
	Width  uint32      `json:"width"`
	Height uint32      `json:"height"`
	Planes []Alignment `json:"planes,omitempty"`
}

// Dimension returns the format's resolution.
func (f Format) Dimension() Dimension {
	return Dimension{Width: f.Width, Height: f.Height}
}

// Input is the negotiation state of one input port.
type Input struct {
	Name      string
	Connected bool
	// Delta is how many requests back the connected buffer comes from.
	Delta uint32
	// Requirement is set by the node in the backward pass.
	Requirement    Requirement
	HasRequirement bool
	// Format is the upstream output's format, filled before the forward pass
	// for links from already finalized nodes.
	Format *Format
	// Disabled is set by the node in the forward pass.
	Disabled bool
}

// Output is the negotiation state of one output port.
type Output struct {
	Name string
	// Consumers holds the requirements of every connected input port.
	Consumers []Requirement
	Format    Format
	Finalized bool
	Disabled  bool
}

// Data is what a node sees during negotiation.
type Data struct {
	Node    string
	Inputs  map[PortID]*Input
	Outputs map[PortID]*Output
}

// NewData creates empty negotiation data for node.
func NewData(node string) *Data {
	return &Data{
		Node:    node,
		Inputs:  make(map[PortID]*Input),
		Outputs: make(map[PortID]*Output),
	}
}

// InputIDs returns the input port ids in ascending order.
func (d *Data) InputIDs() []PortID {
	return sortedKeys(d.Inputs)
}

// OutputIDs returns the output port ids in ascending order.
func (d *Data) OutputIDs() []PortID {
	return sortedKeys(d.Outputs)
}

// Connected reports whether input port id has an upstream link.
func (d *Data) Connected(id PortID) bool {
	in, ok := d.Inputs[id]
	return ok && in.Connected
}

// ConsumerRequirement intersects the requirements of every consumer of
// output port id. ok is false when the port has no consumers.
func (d *Data) ConsumerRequirement(id PortID) (Requirement, bool, error) {
	out, exists := d.Outputs[id]
	if !exists {
		return Requirement{}, false, d.Fail(id, false, "unknown output port %d", id)
	}
	req, ok, err := IntersectAll(out.Consumers...)
	if err != nil {
		return Requirement{}, true, &Error{Node: d.Node, Port: out.Name, Cause: err}
	}
	return req, ok, nil
}

// SetInputRequirement records req for input port id after validating it.
func (d *Data) SetInputRequirement(id PortID, req Requirement) error {
	in, ok := d.Inputs[id]
	if !ok {
		return d.Fail(id, true, "unknown input port %d", id)
	}
	if err := req.Validate(); err != nil {
		return &Error{Node: d.Node, Port: in.Name, Cause: err}
	}
	in.Requirement = req
	in.HasRequirement = true
	return nil
}

// SetOutputFormat records the concrete format for output port id.
func (d *Data) SetOutputFormat(id PortID, f Format) error {
	out, ok := d.Outputs[id]
	if !ok {
		return d.Fail(id, false, "unknown output port %d", id)
	}
	out.Format = f
	out.Finalized = true
	out.Disabled = false
	return nil
}

// DisableInput marks input port id as unused.
func (d *Data) DisableInput(id PortID) {
	if in, ok := d.Inputs[id]; ok {
		in.Disabled = true
	}
}

// DisableOutput marks output port id as unused.
func (d *Data) DisableOutput(id PortID) {
	if out, ok := d.Outputs[id]; ok {
		out.Disabled = true
		out.Finalized = false
	}
}

// Fail builds a negotiation error for a port of this node.
func (d *Data) Fail(id PortID, input bool, format string, args ...any) error {
	name := fmt.Sprintf("%d", id)
	if input {
		if in, ok := d.Inputs[id]; ok {
			name = in.Name
		}
	} else if out, ok := d.Outputs[id]; ok {
		name = out.Name
	}
	return Errorf(d.Node, name, format, args...)
}

func sortedKeys[V any](m map[PortID]V) []PortID {
	ids := make([]PortID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
