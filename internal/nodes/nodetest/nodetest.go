// Package nodetest builds the contexts the pipeline would hand a node, so
// node kinds can be tested without a pipeline.
package nodetest

import (
	"io"
	"log/slog"

	"github.com/smazurov/camgraph/internal/device"
	"github.com/smazurov/camgraph/internal/fence"
	"github.com/smazurov/camgraph/internal/negotiation"
	"github.com/smazurov/camgraph/internal/node"
	"github.com/smazurov/camgraph/internal/property"
)

// Logger discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Init returns an InitContext for a node named name.
func Init(name string, params node.Params, devices *device.Registry) *node.InitContext {
	return &node.InitContext{
		Name:    name,
		Params:  params,
		Depth:   4,
		Devices: devices,
		Logger:  Logger(),
	}
}

// Link describes an upstream connection of an input port.
type Link struct {
	Delta uint32
}

// Data builds negotiation data from info, marking the inputs in links as
// connected.
func Data(name string, info *node.Info, links map[string]Link) *negotiation.Data {
	d := negotiation.NewData(name)
	for _, ps := range info.Inputs {
		in := &negotiation.Input{Name: ps.Name}
		if l, ok := links[ps.Name]; ok {
			in.Connected = true
			in.Delta = l.Delta
		}
		d.Inputs[ps.ID] = in
	}
	for _, ps := range info.Outputs {
		d.Outputs[ps.ID] = &negotiation.Output{Name: ps.Name}
	}
	return d
}

// Feed hands input port id the format its producer settled on.
func Feed(d *negotiation.Data, id node.PortID, dim negotiation.Dimension) {
	d.Inputs[id].Format = &negotiation.Format{Width: dim.Width, Height: dim.Height}
}

// Env holds the request-scoped services for executing a node.
type Env struct {
	Fences *fence.Registry
	Props  *property.Store
}

// NewEnv creates an empty environment.
func NewEnv() *Env {
	return &Env{Fences: fence.NewRegistry(nil), Props: property.NewStore(16)}
}

// Exec returns an ExecuteContext for request id with one fresh output
// fence per id in outputs.
func (e *Env) Exec(name string, id uint64, inputs map[node.PortID]*fence.Fence, outputs ...node.PortID) *node.ExecuteContext {
	outs := make(map[node.PortID]*fence.Fence, len(outputs))
	for _, o := range outputs {
		outs[o] = e.Fences.Create(name)
	}
	if inputs == nil {
		inputs = make(map[node.PortID]*fence.Fence)
	}
	return &node.ExecuteContext{
		Node:         name,
		Request:      node.Request{ID: id, Frames: 1},
		FirstRequest: id == 1,
		Inputs:       inputs,
		Outputs:      outs,
		Depth:        4,
		Properties:   e.Props,
		Logger:       Logger(),
	}
}

// Signaled returns a fence already signaled with r.
func (e *Env) Signaled(r fence.Result) *fence.Fence {
	f := e.Fences.Create("input")
	_ = f.Signal(r)
	return f
}
