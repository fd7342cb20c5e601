// Package frontend is the software source node. It stands in for the sensor
// front end: one full-resolution tap and two downscaled taps, plus the
// per-request controls every other node reads.
package frontend

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/smazurov/camgraph/internal/fence"
	"github.com/smazurov/camgraph/internal/negotiation"
	"github.com/smazurov/camgraph/internal/node"
	"github.com/smazurov/camgraph/internal/property"
)

// Kind is the registry tag.
const Kind node.Kind = "frontend"

// Output ports.
const (
	OutFull node.PortID = iota
	OutDS4
	OutDS16
)

var taps = []struct {
	id    node.PortID
	name  string
	scale uint32
}{
	{OutFull, "full", 1},
	{OutDS4, "ds4", 4},
	{OutDS16, "ds16", 16},
}

// DefaultSensor is used when the node has no sensor param.
var DefaultSensor = negotiation.Dimension{Width: 1920, Height: 1080}

// Request controls read by the frontend.
const (
	ControlExposure = "aec.exposure_us"
	ControlGain     = "aec.gain"
	ControlCCT      = "awb.cct"
	ControlFDEnable = "fd.enable"
	ControlFDSkip   = "fd.skip"
	ControlAFMode   = "af.mode"
	ControlAFEvents = "af.events"
)

// Node is the frontend node.
type Node struct {
	name   string
	sensor negotiation.Dimension
	logger *slog.Logger

	// planes holds the alignment consumers asked for, per tap.
	planes map[node.PortID][]negotiation.Alignment
}

// New creates a frontend node.
func New(name string) node.Node {
	return &Node{name: name}
}

// Initialize implements node.Node.
func (n *Node) Initialize(ctx *node.InitContext) (*node.Info, error) {
	n.logger = ctx.Logger
	def := negotiation.Dimension{
		Width:  ctx.Params.Uint32("width", DefaultSensor.Width),
		Height: ctx.Params.Uint32("height", DefaultSensor.Height),
	}
	sensor, err := ctx.Params.Dimension("sensor", def)
	if err != nil {
		return nil, err
	}
	if sensor.Width == 0 || sensor.Height == 0 {
		return nil, fmt.Errorf("sensor resolution %v is empty", sensor)
	}
	n.sensor = sensor

	info := &node.Info{
		Publishes: []property.ID{
			property.AECFrameControl,
			property.AWBFrameControl,
			property.FDFrameSettings,
			property.AFInput,
			property.SensorTimestamp,
		},
	}
	for _, t := range taps {
		info.Outputs = append(info.Outputs, node.PortSpec{ID: t.id, Name: t.name})
	}
	return info, nil
}

// Tap returns the resolution of output port id.
func (n *Node) Tap(id node.PortID) negotiation.Dimension {
	for _, t := range taps {
		if t.id == id {
			return n.sensor.Scale(t.scale)
		}
	}
	return negotiation.Dimension{}
}

// FinalizeInputRequirement intersects the ranges the consumers of every tap
// ask for. Consumers of one tap that cannot agree fail negotiation. A tap
// outside the agreed range is only logged: the consumer may still leave the
// link unused, and enabled links are checked once every node has run.
func (n *Node) FinalizeInputRequirement(d *negotiation.Data) error {
	n.planes = make(map[node.PortID][]negotiation.Alignment)
	for _, t := range taps {
		req, ok, err := d.ConsumerRequirement(t.id)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		n.planes[t.id] = req.Planes
		if tap := n.Tap(t.id); !req.Contains(tap) {
			n.logger.Debug("Tap outside consumer range", "port", t.name, "tap", tap, "range", req)
		}
	}
	return nil
}

// FinalizeBufferProperties emits every tap at its fixed scale.
func (n *Node) FinalizeBufferProperties(d *negotiation.Data) error {
	for _, t := range taps {
		tap := n.Tap(t.id)
		if err := d.SetOutputFormat(t.id, negotiation.Format{
			Width:  tap.Width,
			Height: tap.Height,
			Planes: n.planes[t.id],
		}); err != nil {
			return err
		}
	}
	return nil
}

// Activate implements node.Node.
func (n *Node) Activate(*node.ActivateContext) error { return nil }

// ExecuteRequest publishes the request's controls and signals every tap.
// The frontend never waits.
func (n *Node) ExecuteRequest(ec *node.ExecuteContext) (*node.Unit, error) {
	req := ec.Request
	ec.Publish(property.SensorTimestamp, time.Now().UnixNano())
	ec.Publish(property.AECFrameControl, property.ExposureControl{
		ExposureTime: time.Duration(controlFloat(req, ControlExposure, 10000)) * time.Microsecond,
		Gain:         float32(controlFloat(req, ControlGain, 1)),
		LuxIndex:     350,
	})
	ec.Publish(property.AWBFrameControl, property.WhiteBalanceControl{
		RGain: 1.9,
		GGain: 1,
		BGain: 1.6,
		CCT:   uint32(controlFloat(req, ControlCCT, 5000)),
	})
	ec.Publish(property.FDFrameSettings, property.FrameSettings{
		Enable: controlBool(req, ControlFDEnable, true),
		Skip:   controlBool(req, ControlFDSkip, false),
	})
	ec.Publish(property.AFInput, property.FocusInput{
		Mode:   controlString(req, ControlAFMode),
		Events: controlStrings(req, ControlAFEvents),
	})
	ec.SignalOutputs(fence.Success)
	return nil, nil
}

// PortName implements node.Node.
func (n *Node) PortName(dir node.Direction, id node.PortID) string {
	if dir == node.Output {
		for _, t := range taps {
			if t.id == id {
				return t.name
			}
		}
	}
	return fmt.Sprintf("%s%d", dir, id)
}
