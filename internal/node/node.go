// Package node defines the capability interface every node kind implements
// and the contexts the pipeline hands to nodes.
package node

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/smazurov/camgraph/internal/device"
	"github.com/smazurov/camgraph/internal/fence"
	"github.com/smazurov/camgraph/internal/negotiation"
	"github.com/smazurov/camgraph/internal/property"
)

// PortID identifies a port within its node. Input and output ports have
// separate id spaces.
type PortID = negotiation.PortID

// Direction tells input ports from output ports.
type Direction int

// Port directions.
const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	if d == Input {
		return "input"
	}
	return "output"
}

// Kind is the tag the registry maps to a factory.
type Kind string

// PortSpec declares one port.
type PortSpec struct {
	ID   PortID
	Name string
}

// Info is what a node declares while initializing.
type Info struct {
	Inputs  []PortSpec
	Outputs []PortSpec
	// Publishes lists the properties the node publishes for every request.
	Publishes []property.ID
	// HardwareDisabled is set when the node fell back to software-only
	// operation because no device could be claimed.
	HardwareDisabled bool
}

// Node is implemented by every node kind.
type Node interface {
	// Initialize declares ports and claims a device index.
	Initialize(ctx *InitContext) (*Info, error)
	// FinalizeInputRequirement derives input requirements from the
	// requirements of downstream consumers (backward pass).
	FinalizeInputRequirement(d *negotiation.Data) error
	// FinalizeBufferProperties picks concrete output formats from the
	// resolved upstream formats and disables unused inputs (forward pass).
	FinalizeBufferProperties(d *negotiation.Data) error
	// Activate acquires the device and allocates per-request pools.
	Activate(ctx *ActivateContext) error
	// ExecuteRequest runs one step for a request. It returns a Unit when it
	// must wait; nil means the node is done with the request.
	ExecuteRequest(ctx *ExecuteContext) (*Unit, error)
	// PortName names a port for logs and diagnostics.
	PortName(dir Direction, id PortID) string
}

// Flusher is implemented by nodes holding per-request state that a flush
// must reset.
type Flusher interface {
	Flush()
}

// NegotiationState is implemented by nodes that keep state derived from
// negotiation. A rejected renegotiation restores what SaveNegotiation
// returned before it ran.
type NegotiationState interface {
	SaveNegotiation() any
	RestoreNegotiation(state any)
}

// Destroyer is implemented by nodes that release resources on teardown.
type Destroyer interface {
	Destroy()
}

// InitContext is passed to Initialize.
type InitContext struct {
	Name    string
	Params  Params
	Depth   int
	Devices *device.Registry
	Logger  *slog.Logger
}

// ActivateContext is passed to Activate.
type ActivateContext struct {
	Depth   int
	Devices *device.Registry
	// Inputs and Outputs hold the negotiated formats of enabled ports.
	Inputs  map[PortID]negotiation.Format
	Outputs map[PortID]negotiation.Format
}

// Request is an immutable capture request.
type Request struct {
	ID        uint64
	Frames    uint32
	Controls  map[string]any
	Submitted time.Time
}

// Control returns a request control value.
func (r Request) Control(key string) (any, bool) {
	v, ok := r.Controls[key]
	return v, ok
}

// ExecuteContext is passed to ExecuteRequest.
type ExecuteContext struct {
	Node    string
	Request Request
	// SequenceID is zero on the first invocation for a request and the
	// value from the node's last Unit on re-invocation.
	SequenceID uint32
	// FirstRequest is set for the first request since start or flush.
	FirstRequest bool
	// Inputs and Outputs hold the fences of the ports active for this
	// request.
	Inputs     map[PortID]*fence.Fence
	Outputs    map[PortID]*fence.Fence
	Depth      int
	Properties *property.Store
	Logger     *slog.Logger
}

// Publish posts a property value for this request.
func (c *ExecuteContext) Publish(id property.ID, v any) {
	c.Properties.Publish(c.Request.ID, id, v)
}

// Query reads a property offset requests back from this one.
func (c *ExecuteContext) Query(id property.ID, offset uint64) (any, bool) {
	return c.Properties.Query(id, c.Request.ID, offset)
}

// SignalOutputs signals every active output fence with r and returns how
// many fences it signaled. Fences already signaled, for instance by a flush,
// are left alone.
func (c *ExecuteContext) SignalOutputs(r fence.Result) int {
	n := 0
	for _, f := range c.Outputs {
		if f.Signal(r) == nil {
			n++
		}
	}
	return n
}

// DependOnPrevious adds the serialization dependency on this node's own
// previous request, except on the first request since start or flush.
func (c *ExecuteContext) DependOnPrevious(u *Unit) {
	if !c.FirstRequest {
		u.AddProperty(property.NodeComplete(c.Node), 1)
	}
}

// DependOnProperty adds a dependency on id at offset, but only when some
// node advertised it. It reports whether the dependency was added.
func (c *ExecuteContext) DependOnProperty(u *Unit, id property.ID, offset uint64) bool {
	if !c.Properties.IsAdvertised(id) {
		return false
	}
	u.AddProperty(id, offset)
	return true
}

// DependOnInputs adds a fence dependency on every active input.
func (c *ExecuteContext) DependOnInputs(u *Unit) {
	for _, id := range sortedPorts(c.Inputs) {
		u.AddFence(c.Inputs[id])
	}
}

// InputFences returns the active input fences in port order.
func (c *ExecuteContext) InputFences() []*fence.Fence {
	ids := sortedPorts(c.Inputs)
	out := make([]*fence.Fence, len(ids))
	for i, id := range ids {
		out[i] = c.Inputs[id]
	}
	return out
}

// UnknownSequence is returned by nodes re-invoked with a SequenceID they did
// not issue.
func UnknownSequence(node string, seq uint32) error {
	return fmt.Errorf("%s: %w %d", node, ErrUnknownSequence, seq)
}
