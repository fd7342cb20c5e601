// Package fdhw is the hardware face detection node.
package fdhw

import (
	"fmt"
	"log/slog"

	"github.com/smazurov/camgraph/internal/backend"
	"github.com/smazurov/camgraph/internal/device"
	"github.com/smazurov/camgraph/internal/fence"
	"github.com/smazurov/camgraph/internal/negotiation"
	"github.com/smazurov/camgraph/internal/node"
	"github.com/smazurov/camgraph/internal/nodes/hwnode"
	"github.com/smazurov/camgraph/internal/property"
)

// Kind is the registry tag.
const Kind node.Kind = "fdhw"

// Ports.
const (
	InImage    node.PortID = 0
	OutResults node.PortID = 0
)

const (
	// MaxFaces is how many faces one results buffer holds.
	MaxFaces = 10
	// faceRecord is the size of one face entry in the results buffer.
	faceRecord = 24
)

// ResultsFormat is the fixed layout of the results output.
var ResultsFormat = negotiation.Format{Width: MaxFaces * faceRecord, Height: 1}

// DefaultRange is the resolution range the detector accepts.
var DefaultRange = negotiation.Requirement{
	Min:     negotiation.Dimension{Width: 320, Height: 240},
	Optimal: negotiation.Dimension{Width: 640, Height: 480},
	Max:     negotiation.Dimension{Width: 1920, Height: 1080},
}

const seqSubmit uint32 = 1

// Node is the face detection node.
type Node struct {
	name        string
	accepts     negotiation.Requirement
	priority    int
	lateBinding bool
	logger      *slog.Logger

	dev   *hwnode.Device
	input negotiation.Dimension
}

// New creates a face detection node.
func New(name string) node.Node {
	return &Node{name: name}
}

// Initialize implements node.Node.
func (n *Node) Initialize(ctx *node.InitContext) (*node.Info, error) {
	n.logger = ctx.Logger
	n.accepts = DefaultRange
	var err error
	if n.accepts.Min, err = ctx.Params.Dimension("min", n.accepts.Min); err != nil {
		return nil, err
	}
	if n.accepts.Optimal, err = ctx.Params.Dimension("optimal", n.accepts.Optimal); err != nil {
		return nil, err
	}
	if n.accepts.Max, err = ctx.Params.Dimension("max", n.accepts.Max); err != nil {
		return nil, err
	}
	if err := n.accepts.Validate(); err != nil {
		return nil, err
	}
	n.priority = ctx.Params.Int("priority", 0)
	n.lateBinding = ctx.Params.Bool("late_binding", false)

	n.dev, err = hwnode.Claim(ctx, device.TypeFD, ctx.Params.Bool("software_fallback", true))
	if err != nil {
		return nil, err
	}
	return &node.Info{
		Inputs:           []node.PortSpec{{ID: InImage, Name: "image"}},
		Outputs:          []node.PortSpec{{ID: OutResults, Name: "results"}},
		Publishes:        []property.ID{property.FDResults},
		HardwareDisabled: n.dev.Disabled(),
	}, nil
}

// FinalizeInputRequirement implements node.Node.
func (n *Node) FinalizeInputRequirement(d *negotiation.Data) error {
	if !d.Connected(InImage) {
		return d.Fail(InImage, true, "image input not connected")
	}
	return d.SetInputRequirement(InImage, n.accepts)
}

// FinalizeBufferProperties checks the image against the detector range and
// fixes the results layout.
func (n *Node) FinalizeBufferProperties(d *negotiation.Data) error {
	in := d.Inputs[InImage]
	if in.Format != nil {
		n.input = in.Format.Dimension()
		if !n.accepts.Contains(n.input) {
			return d.Fail(InImage, true, "%w: %v not within %v", negotiation.ErrOutOfBounds, n.input, n.accepts)
		}
	}
	return d.SetOutputFormat(OutResults, ResultsFormat)
}

// SaveNegotiation implements node.NegotiationState.
func (n *Node) SaveNegotiation() any { return n.input }

// RestoreNegotiation implements node.NegotiationState.
func (n *Node) RestoreNegotiation(state any) {
	if in, ok := state.(negotiation.Dimension); ok {
		n.input = in
	}
}

// Activate implements node.Node.
func (n *Node) Activate(ctx *node.ActivateContext) error {
	if f, ok := ctx.Inputs[InImage]; ok {
		n.input = f.Dimension()
	}
	return n.dev.Activate(ctx.Depth, device.AcquireParams{
		Resolution: n.input,
		Priority:   n.priority,
	}, 128, int(ResultsFormat.Width))
}

// ExecuteRequest waits for the previous request, the frame settings and,
// with late binding, the image, then detects or skips.
func (n *Node) ExecuteRequest(ec *node.ExecuteContext) (*node.Unit, error) {
	switch ec.SequenceID {
	case 0:
		u := node.NewUnit(seqSubmit)
		ec.DependOnPrevious(u)
		ec.DependOnProperty(u, property.FDFrameSettings, 0)
		if n.lateBinding {
			ec.DependOnInputs(u)
		}
		if !u.Empty() {
			return u, nil
		}
	case seqSubmit:
	default:
		return nil, node.UnknownSequence(n.name, ec.SequenceID)
	}
	n.process(ec)
	return nil, nil
}

func (n *Node) settings(ec *node.ExecuteContext) property.FrameSettings {
	s := property.FrameSettings{Enable: true}
	if v, ok := ec.Query(property.FDFrameSettings, 0); ok {
		if fs, ok := v.(property.FrameSettings); ok {
			s = fs
		}
	}
	return s
}

func (n *Node) process(ec *node.ExecuteContext) {
	id := ec.Request.ID
	if n.dev.Disabled() || !n.settings(ec).Process() {
		n.skip(ec)
		return
	}

	cmd := &backend.Command{
		Inputs: ec.InputFences(),
		Params: map[string]any{
			"resolution": n.input.String(),
			"max_faces":  MaxFaces,
			"frames":     ec.Request.Frames,
		},
	}
	n.dev.Submit(ec, cmd, func(o backend.Outcome, result any) {
		if o != backend.Success {
			ec.Publish(property.FDResults, carried(ec))
			return
		}
		faces, _ := result.([]property.Face)
		if len(faces) > MaxFaces {
			faces = faces[:MaxFaces]
		}
		ec.Publish(property.FDResults, property.FaceResults{RequestID: id, Faces: faces})
	})
}

// skip bypasses detection for the request. The results buffer is cleared
// only when the hardware path exists.
func (n *Node) skip(ec *node.ExecuteContext) {
	ec.Logger.Debug("Skipping detection", "hardware", !n.dev.Disabled())
	n.dev.Skip(ec.Request.ID, true)
	ec.SignalOutputs(fence.Success)
	ec.Publish(property.FDResults, carried(ec))
}

func carried(ec *node.ExecuteContext) property.FaceResults {
	res := property.FaceResults{}
	if v, ok := ec.Properties.Latest(property.FDResults); ok {
		if prev, ok := v.(property.FaceResults); ok {
			res = prev
		}
	}
	res.RequestID = ec.Request.ID
	res.Stale = true
	return res
}

// Flush implements node.Flusher.
func (n *Node) Flush() { n.dev.Flush() }

// Destroy implements node.Destroyer.
func (n *Node) Destroy() { n.dev.Release() }

// PortName implements node.Node.
func (n *Node) PortName(dir node.Direction, id node.PortID) string {
	switch {
	case dir == node.Input && id == InImage:
		return "image"
	case dir == node.Output && id == OutResults:
		return "results"
	}
	return fmt.Sprintf("%s%d", dir, id)
}
