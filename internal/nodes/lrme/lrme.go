// Package lrme is the hardware motion estimation node. It registers the
// current frame (target) against the previous one (reference) on a
// downscaled tap and publishes the resulting transform.
package lrme

import (
	"errors"
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
const Kind node.Kind = "lrme"

// Input ports. Every reference tap is its target tap plus one.
const (
	InTarFull node.PortID = iota
	InRefFull
	InTarDS4
	InRefDS4
	InTarDS16
	InRefDS16
	InRefDS2
)

// Output ports.
const (
	OutVector node.PortID = iota
	OutDS2
)

var (
	inputNames  = []string{"tar_full", "ref_full", "tar_ds4", "ref_ds4", "tar_ds16", "ref_ds16", "ref_ds2"}
	outputNames = []string{"vector", "ds2"}
)

var errZeroStep = errors.New("step must be non-zero")

// fullRange is the requirement of full resolution taps, which the block
// never processes directly.
var fullRange = negotiation.Requirement{
	Max: negotiation.Dimension{Width: 0xffff, Height: 0xffff},
}

const seqSubmit uint32 = 1

const payloadSize = 256

// Selection is the outcome of the forward pass.
type Selection struct {
	Target    node.PortID
	Reference node.PortID
	// DS2 is set when the target tap is halved before processing.
	DS2 bool
	// Input is the resolution of the target tap, Process the resolution
	// the block runs at.
	Input   negotiation.Dimension
	Process negotiation.Dimension
	// diff is the area deviation the tie-break minimized.
	diff uint64
}

// Node is the motion estimation node.
type Node struct {
	name        string
	cap         Capability
	priority    int
	lateBinding bool
	logger      *slog.Logger

	dev *hwnode.Device

	vectorReq    negotiation.Requirement
	hasVectorReq bool
	sel          Selection
}

// New creates an LRME node.
func New(name string) node.Node {
	return &Node{name: name}
}

// Initialize implements node.Node.
func (n *Node) Initialize(ctx *node.InitContext) (*node.Info, error) {
	n.logger = ctx.Logger
	c, err := parseCapability(ctx.Params)
	if err != nil {
		return nil, err
	}
	n.cap = c
	n.priority = ctx.Params.Int("priority", 0)
	n.lateBinding = ctx.Params.Bool("late_binding", true)

	n.dev, err = hwnode.Claim(ctx, device.TypeLRME, ctx.Params.Bool("software_fallback", true))
	if err != nil {
		return nil, err
	}

	info := &node.Info{
		Publishes:        []property.ID{property.LRMEResults},
		HardwareDisabled: n.dev.Disabled(),
	}
	for i, name := range inputNames {
		info.Inputs = append(info.Inputs, node.PortSpec{ID: node.PortID(i), Name: name})
	}
	for i, name := range outputNames {
		info.Outputs = append(info.Outputs, node.PortSpec{ID: node.PortID(i), Name: name})
	}
	return info, nil
}

// Selection returns the tap chosen by the last negotiation.
func (n *Node) Selection() Selection { return n.sel }

func (n *Node) ds2Usable(d *negotiation.Data) bool {
	in, ok := d.Inputs[InRefDS2]
	return n.cap.DS2 && ok && in.Connected && !in.Disabled
}

// FinalizeInputRequirement gives every connected tap its range and
// derives the vector output requirement.
func (n *Node) FinalizeInputRequirement(d *negotiation.Data) error {
	n.hasVectorReq = false

	var fullFactor uint32
	switch {
	case d.Connected(InTarFull):
		fullFactor = 1
	case d.Connected(InTarDS4):
		fullFactor = 4
	case d.Connected(InTarDS16):
		fullFactor = 16
	default:
		return d.Fail(InTarDS4, true, "no target input connected")
	}

	// The ds2 path halves a tap after it arrives, so a tap may be up to
	// twice the processing maximum.
	maxTap := n.cap.Max
	if n.ds2Usable(d) {
		maxTap = negotiation.Dimension{Width: maxTap.Width * 2, Height: maxTap.Height * 2}
	}
	downscaled := func(scale uint32) negotiation.Requirement {
		k := max(1, fullFactor/scale)
		return negotiation.Requirement{
			Min:     negotiation.Dimension{Width: n.cap.Min.Width * k, Height: n.cap.Min.Height * k},
			Optimal: n.cap.Optimal,
			Max:     maxTap,
		}
	}

	reqs := map[node.PortID]negotiation.Requirement{
		InTarFull: fullRange,
		InRefFull: fullRange,
		InTarDS4:  downscaled(4),
		InRefDS4:  downscaled(4),
		InTarDS16: downscaled(16),
		InRefDS16: downscaled(16),
		InRefDS2:  n.cap.Range(),
	}
	for _, id := range d.InputIDs() {
		if !d.Connected(id) {
			continue
		}
		if err := d.SetInputRequirement(id, reqs[id]); err != nil {
			return err
		}
	}

	vec := negotiation.Requirement{
		Min:     n.cap.VectorSize(n.cap.Min),
		Optimal: n.cap.VectorSize(n.cap.Optimal),
		Max:     n.cap.VectorSize(n.cap.Max),
	}
	consumers, ok, err := d.ConsumerRequirement(OutVector)
	if err != nil {
		return err
	}
	if ok {
		if vec, err = negotiation.Intersect(vec, consumers); err != nil {
			return d.Fail(OutVector, false, "%w", err)
		}
	}
	n.vectorReq = vec
	n.hasVectorReq = true
	return nil
}

// FinalizeBufferProperties picks the target tap. Candidates are tried in
// the order ds4, ds4 halved, ds16, ds16 halved; the one whose area is
// closest to the maximum processing area wins, and a later candidate must
// be strictly closer to replace an earlier one.
func (n *Node) FinalizeBufferProperties(d *negotiation.Data) error {
	sel, err := n.selectTap(d)
	if err != nil {
		return err
	}

	ref, ok := d.Inputs[sel.Reference]
	if !ok || !ref.Connected || ref.Disabled {
		return d.Fail(sel.Reference, true, "reference for %s is not connected", inputNames[sel.Target])
	}
	if ref.Delta < 1 {
		return d.Fail(sel.Reference, true, "reference must come from an earlier request, delta is %d", ref.Delta)
	}
	for _, id := range d.InputIDs() {
		if id != sel.Target && id != sel.Reference {
			d.DisableInput(id)
		}
	}

	if sel.DS2 {
		if err := d.SetOutputFormat(OutDS2, negotiation.Format{Width: sel.Process.Width, Height: sel.Process.Height}); err != nil {
			return err
		}
	} else {
		d.DisableOutput(OutDS2)
	}

	vec := n.cap.VectorSize(sel.Process)
	if n.hasVectorReq && !n.vectorReq.Contains(vec) {
		return d.Fail(OutVector, false, "%w: vector %v not within %v", negotiation.ErrOutOfBounds, vec, n.vectorReq)
	}
	if err := d.SetOutputFormat(OutVector, negotiation.Format{
		Width:  vec.Width,
		Height: vec.Height,
		Planes: n.vectorReq.Planes,
	}); err != nil {
		return err
	}

	n.sel = sel
	n.logger.Info("Selected target tap", "tap", inputNames[sel.Target], "reference", inputNames[sel.Reference],
		"ds2", sel.DS2, "input", sel.Input, "process", sel.Process, "diff", sel.diff)
	return nil
}

type negotiated struct {
	vectorReq    negotiation.Requirement
	hasVectorReq bool
	sel          Selection
}

// SaveNegotiation implements node.NegotiationState.
func (n *Node) SaveNegotiation() any {
	return negotiated{vectorReq: n.vectorReq, hasVectorReq: n.hasVectorReq, sel: n.sel}
}

// RestoreNegotiation implements node.NegotiationState.
func (n *Node) RestoreNegotiation(state any) {
	if s, ok := state.(negotiated); ok {
		n.vectorReq, n.hasVectorReq, n.sel = s.vectorReq, s.hasVectorReq, s.sel
	}
}

func (n *Node) selectTap(d *negotiation.Data) (Selection, error) {
	target := n.cap.Max.Area()
	ds2 := n.ds2Usable(d)

	var (
		best  Selection
		found bool
	)
	consider := func(s Selection, area uint64) {
		s.diff = absDiff(area, target)
		if !found || s.diff < best.diff {
			best, found = s, true
		}
	}
	for _, tar := range []node.PortID{InTarDS4, InTarDS16} {
		in, ok := d.Inputs[tar]
		if !ok || !in.Connected || in.Disabled || in.Format == nil {
			continue
		}
		dim := in.Format.Dimension()
		if dim.AtLeast(n.cap.Min) && dim.Fits(n.cap.Max) {
			consider(Selection{Target: tar, Reference: tar + 1, Input: dim, Process: dim}, dim.Area())
		}
		if !ds2 || dim.Fits(n.cap.Max) {
			continue
		}
		half := negotiation.Dimension{Width: dim.Width / 2, Height: dim.Height / 2}
		if half.AtLeast(n.cap.Min) && half.Fits(n.cap.Max) {
			consider(Selection{
				Target:    tar,
				Reference: InRefDS2,
				DS2:       true,
				Input:     dim,
				Process:   negotiation.Dimension{Width: align2(half.Width), Height: align2(half.Height)},
			}, half.Area())
		}
	}
	if !found {
		return Selection{}, d.Fail(InTarDS4, true, "%w: no downscaled target tap fits %v",
			negotiation.ErrOutOfBounds, n.cap.Range())
	}
	return best, nil
}

// Activate acquires the device for the selected processing resolution.
func (n *Node) Activate(ctx *node.ActivateContext) error {
	mode := n.cap.VectorFormat << 1
	if n.sel.DS2 {
		mode |= 1
	}
	vec := n.cap.VectorSize(n.sel.Process)
	return n.dev.Activate(ctx.Depth, device.AcquireParams{
		Resolution: n.sel.Process,
		Priority:   n.priority,
		Mode:       mode,
	}, payloadSize, int(vec.Width*vec.Height))
}

// ExecuteRequest waits for the previous request, the exposure and white
// balance controls and, with late binding, the input buffers, then submits.
func (n *Node) ExecuteRequest(ec *node.ExecuteContext) (*node.Unit, error) {
	switch ec.SequenceID {
	case 0:
		u := node.NewUnit(seqSubmit)
		ec.DependOnPrevious(u)
		ec.DependOnProperty(u, property.AECFrameControl, 0)
		ec.DependOnProperty(u, property.AWBFrameControl, 0)
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

func (n *Node) process(ec *node.ExecuteContext) {
	id := ec.Request.ID
	if n.dev.Disabled() {
		n.dev.Skip(id, false)
		ec.Publish(property.LRMEResults, property.Identity(id))
		ec.SignalOutputs(fence.Success)
		return
	}

	tar, hasTar := ec.Inputs[n.sel.Target]
	ref, hasRef := ec.Inputs[n.sel.Reference]
	if !hasTar || !hasRef {
		ec.Logger.Debug("Skipping, no reference frame", "target", hasTar, "reference", hasRef)
		n.dev.Skip(id, false)
		ec.Publish(property.LRMEResults, n.carried(ec))
		ec.SignalOutputs(fence.Success)
		return
	}

	cmd := &backend.Command{
		Inputs: []*fence.Fence{tar, ref},
		Params: map[string]any{
			"target":        inputNames[n.sel.Target],
			"reference":     inputNames[n.sel.Reference],
			"ds2":           n.sel.DS2,
			"process":       n.sel.Process.String(),
			"search":        n.cap.Search.String(),
			"vector_format": n.cap.VectorFormat,
		},
	}
	n.dev.Submit(ec, cmd, func(o backend.Outcome, result any) {
		if o != backend.Success {
			ec.Publish(property.LRMEResults, n.carried(ec))
			return
		}
		mr, ok := result.(property.MotionResults)
		if !ok {
			mr = property.MotionResults{Transform: property.Identity(id).Transform}
		}
		mr.RequestID = id
		mr.Stale = false
		ec.Publish(property.LRMEResults, mr)
	})
}

// carried returns the last published transform marked stale, or an identity
// transform when nothing was published yet.
func (n *Node) carried(ec *node.ExecuteContext) property.MotionResults {
	mr := property.Identity(ec.Request.ID)
	if v, ok := ec.Properties.Latest(property.LRMEResults); ok {
		if prev, ok := v.(property.MotionResults); ok {
			mr = prev
		}
	}
	mr.RequestID = ec.Request.ID
	mr.Stale = true
	return mr
}

// Flush implements node.Flusher.
func (n *Node) Flush() { n.dev.Flush() }

// Destroy implements node.Destroyer.
func (n *Node) Destroy() { n.dev.Release() }

// PortName implements node.Node.
func (n *Node) PortName(dir node.Direction, id node.PortID) string {
	names := inputNames
	if dir == node.Output {
		names = outputNames
	}
	if int(id) < len(names) {
		return names[id]
	}
	return fmt.Sprintf("%s%d", dir, id)
}

func align2(v uint32) uint32 { return (v + 1) &^ 1 }

func absDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}
