package fdhw

import (
	"errors"
	"testing"

	"github.com/smazurov/camgraph/internal/backend"
	"github.com/smazurov/camgraph/internal/device"
	"github.com/smazurov/camgraph/internal/fence"
	"github.com/smazurov/camgraph/internal/negotiation"
	"github.com/smazurov/camgraph/internal/node"
	"github.com/smazurov/camgraph/internal/nodes/nodetest"
	"github.com/smazurov/camgraph/internal/property"
)

var vga = negotiation.Dimension{Width: 640, Height: 480}

func build(t *testing.T, params node.Params, devices *device.Registry, image negotiation.Dimension) (*Node, *node.Info, error) {
	t.Helper()
	n := New("fd").(*Node)
	info, err := n.Initialize(nodetest.Init("fd", params, devices))
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	d := nodetest.Data("fd", info, map[string]nodetest.Link{"image": {}})
	if err := n.FinalizeInputRequirement(d); err != nil {
		return n, info, err
	}
	nodetest.Feed(d, InImage, image)
	if err := n.FinalizeBufferProperties(d); err != nil {
		return n, info, err
	}
	if got := d.Outputs[OutResults].Format; got.Width != ResultsFormat.Width {
		t.Errorf("results format = %+v", got)
	}
	return n, info, n.Activate(&node.ActivateContext{Depth: 4, Devices: devices})
}

func withDevice(t *testing.T, opts ...backend.Option) (*Node, *backend.Simulated) {
	t.Helper()
	sim := backend.NewSimulated("fd0", opts...)
	reg := device.NewRegistry()
	reg.Add(device.TypeFD, "fd0", sim)
	n, info, err := build(t, nil, reg, vga)
	if err != nil {
		t.Fatal(err)
	}
	if info.HardwareDisabled {
		t.Fatal("device not claimed")
	}
	t.Cleanup(n.Destroy)
	return n, sim
}

func faces(env *nodetest.Env, id uint64) (property.FaceResults, bool) {
	v, ok := env.Props.Query(property.FDResults, id, 0)
	fr, _ := v.(property.FaceResults)
	return fr, ok
}

func TestImageOutsideRange(t *testing.T) {
	_, _, err := build(t, nil, nil, negotiation.Dimension{Width: 160, Height: 120})
	if !errors.Is(err, negotiation.ErrOutOfBounds) {
		t.Errorf("err = %v, want ErrOutOfBounds", err)
	}
}

func TestImageNotConnected(t *testing.T) {
	n := New("fd").(*Node)
	info, err := n.Initialize(nodetest.Init("fd", nil, nil))
	if err != nil {
		t.Fatal(err)
	}
	d := nodetest.Data("fd", info, nil)
	if err := n.FinalizeInputRequirement(d); !errors.Is(err, negotiation.ErrNegotiation) {
		t.Errorf("err = %v", err)
	}
}

func TestRestoreNegotiation(t *testing.T) {
	n, info, err := build(t, nil, nil, vga)
	if err != nil {
		t.Fatal(err)
	}
	saved := n.SaveNegotiation()

	hd := negotiation.Dimension{Width: 1280, Height: 720}
	d := nodetest.Data("fd", info, map[string]nodetest.Link{"image": {}})
	if err := n.FinalizeInputRequirement(d); err != nil {
		t.Fatal(err)
	}
	nodetest.Feed(d, InImage, hd)
	_ = n.FinalizeBufferProperties(d)
	if n.input != hd {
		t.Fatalf("input = %v, want %v", n.input, hd)
	}

	n.RestoreNegotiation(saved)
	if n.input != vga {
		t.Errorf("restored input = %v, want %v", n.input, vga)
	}
}

func TestSkipFrame(t *testing.T) {
	tests := []struct {
		name     string
		settings property.FrameSettings
	}{
		{"disabled", property.FrameSettings{Enable: false}},
		{"skipped", property.FrameSettings{Enable: true, Skip: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, sim := withDevice(t)
			env := nodetest.NewEnv()
			env.Props.Advertise("frontend", property.FDFrameSettings)
			env.Props.Publish(1, property.FDResults, property.FaceResults{
				RequestID: 1,
				Faces:     []property.Face{{X: 1, Y: 2, Width: 3, Height: 4}},
			})
			env.Props.Publish(2, property.FDFrameSettings, tt.settings)
			env.Props.Publish(1, property.NodeComplete("fd"), true)

			ec := env.Exec("fd", 2, map[node.PortID]*fence.Fence{InImage: env.Fences.Create("image")}, OutResults)
			u, err := n.ExecuteRequest(ec)
			if err != nil || u == nil {
				t.Fatalf("first invocation = %v, %v", u, err)
			}
			if !u.Satisfied(env.Props, 2) {
				t.Fatal("unit not satisfied")
			}
			ec.SequenceID = u.SequenceID
			if _, err := n.ExecuteRequest(ec); err != nil {
				t.Fatal(err)
			}

			if sim.Submitted() != 0 {
				t.Error("skipped frame reached the device")
			}
			if r := ec.Outputs[OutResults].Result(); r != fence.Success {
				t.Errorf("results fence = %v, want success", r)
			}
			fr, ok := faces(env, 2)
			if !ok {
				t.Fatal("fd.results not published for skipped request")
			}
			if !fr.Stale || fr.RequestID != 2 || len(fr.Faces) != 1 {
				t.Errorf("carried results = %+v", fr)
			}
		})
	}
}

func TestSkipOwnsResultBufferOnlyWithHardware(t *testing.T) {
	n, _ := withDevice(t)
	env := nodetest.NewEnv()
	env.Props.Advertise("frontend", property.FDFrameSettings)
	env.Props.Publish(5, property.FDFrameSettings, property.FrameSettings{Enable: false})
	ec := env.Exec("fd", 5, nil, OutResults)
	ec.SequenceID = seqSubmit
	if _, err := n.ExecuteRequest(ec); err != nil {
		t.Fatal(err)
	}
	buf := n.dev.Result(5)
	if len(buf) != int(ResultsFormat.Width) {
		t.Fatalf("result buffer = %d bytes", len(buf))
	}
	for _, b := range buf {
		if b != 0 {
			t.Fatal("result buffer not cleared")
		}
	}

	sw, info, err := build(t, nil, device.NewRegistry(), vga)
	if err != nil {
		t.Fatal(err)
	}
	if !info.HardwareDisabled {
		t.Fatal("expected software fallback")
	}
	if sw.dev.Result(5) != nil {
		t.Error("software node owns a result buffer")
	}
}

func TestLateBindingWaitsForImage(t *testing.T) {
	sim := backend.NewSimulated("fd0", backend.WithResult(func(*backend.Command) any {
		return []property.Face{{Width: 10, Height: 10, Confidence: 800}}
	}))
	reg := device.NewRegistry()
	reg.Add(device.TypeFD, "fd0", sim)
	n, _, err := build(t, node.Params{"late_binding": true}, reg, vga)
	if err != nil {
		t.Fatal(err)
	}
	defer n.Destroy()

	env := nodetest.NewEnv()
	image := env.Fences.Create("image")
	ec := env.Exec("fd", 1, map[node.PortID]*fence.Fence{InImage: image}, OutResults)
	u, err := n.ExecuteRequest(ec)
	if err != nil || u == nil {
		t.Fatalf("first invocation = %v, %v", u, err)
	}
	if u.Satisfied(env.Props, 1) {
		t.Fatal("unit satisfied before the image is ready")
	}
	_ = image.Signal(fence.Success)
	if !u.Satisfied(env.Props, 1) {
		t.Fatal("unit not satisfied after the image is ready")
	}

	ec.SequenceID = u.SequenceID
	if _, err := n.ExecuteRequest(ec); err != nil {
		t.Fatal(err)
	}
	if sim.Submitted() != 1 {
		t.Errorf("submitted = %d", sim.Submitted())
	}
	fr, ok := faces(env, 1)
	if !ok || fr.Stale || len(fr.Faces) != 1 {
		t.Errorf("results = %+v", fr)
	}
	if ec.Outputs[OutResults].Result() != fence.Success {
		t.Error("results fence not signaled")
	}
}

func TestBackendFailureSignalsOutputs(t *testing.T) {
	n, _ := withDevice(t, backend.WithOutcome(func(*backend.Command) backend.Outcome { return backend.Failed }))
	env := nodetest.NewEnv()
	ec := env.Exec("fd", 1, nil, OutResults)
	ec.SequenceID = seqSubmit
	if _, err := n.ExecuteRequest(ec); err != nil {
		t.Fatal(err)
	}
	if r := ec.Outputs[OutResults].Result(); r != fence.Failed {
		t.Errorf("results fence = %v, want failed", r)
	}
	if _, ok := faces(env, 1); !ok {
		t.Error("fd.results not published after failure")
	}
}

func TestFlushCancelsPending(t *testing.T) {
	n, sim := withDevice(t)
	env := nodetest.NewEnv()
	image := env.Fences.Create("image")
	ec := env.Exec("fd", 1, map[node.PortID]*fence.Fence{InImage: image}, OutResults)
	ec.SequenceID = seqSubmit
	if _, err := n.ExecuteRequest(ec); err != nil {
		t.Fatal(err)
	}
	if sim.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", sim.Pending())
	}

	if got := sim.Flush(); got != 1 {
		t.Errorf("flushed %d commands", got)
	}
	n.Flush()
	if r := ec.Outputs[OutResults].Result(); r != fence.Cancelled {
		t.Errorf("results fence = %v, want cancelled", r)
	}
	if n.dev.InFlight() != 0 {
		t.Errorf("in flight after flush = %d", n.dev.InFlight())
	}
}
