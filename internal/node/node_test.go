package node

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/smazurov/camgraph/internal/fence"
	"github.com/smazurov/camgraph/internal/negotiation"
	"github.com/smazurov/camgraph/internal/property"
)

func TestUnitTaggedSet(t *testing.T) {
	reg := fence.NewRegistry(nil)
	a, b := reg.Create("a"), reg.Create("b")

	u := NewUnit(1)
	if !u.Empty() {
		t.Fatal("new unit not empty")
	}
	u.AddProperty(property.FDFrameSettings, 0)
	u.AddFence(a, nil, b)
	u.AddProperty(property.NodeComplete("fdhw"), 1)

	if len(u.Deps) != 2 {
		t.Fatalf("Deps = %d entries, want one per tag", len(u.Deps))
	}
	want := []PropertyRef{{property.FDFrameSettings, 0}, {property.NodeComplete("fdhw"), 1}}
	if d := cmp.Diff(want, u.Properties()); d != "" {
		t.Errorf("properties (-want +got):\n%s", d)
	}
	if len(u.Fences()) != 2 || !u.HasFences() || !u.HasProperties() {
		t.Errorf("fences = %v", u.Fences())
	}
}

func TestUnitSatisfied(t *testing.T) {
	store := property.NewStore(8)
	reg := fence.NewRegistry(nil)
	f := reg.Create("in")

	u := NewUnit(1)
	u.AddProperty(property.NodeComplete("lrme"), 1)
	u.AddProperty(property.AECFrameControl, 0)
	u.AddFence(f)

	if u.Satisfied(store, 5) {
		t.Fatal("satisfied with nothing published")
	}
	store.Publish(4, property.NodeComplete("lrme"), struct{}{})
	store.Publish(5, property.AECFrameControl, property.ExposureControl{})
	if u.Satisfied(store, 5) {
		t.Fatal("satisfied before fence signaled")
	}
	_ = f.Signal(fence.Failed)
	if !u.Satisfied(store, 5) {
		t.Fatal("not satisfied after everything resolved")
	}
}

func TestUnitOffsetBeforeFirstRequest(t *testing.T) {
	u := NewUnit(1)
	u.AddProperty(property.NodeComplete("x"), 1)
	if !u.Satisfied(property.NewStore(2), 1) {
		t.Error("offset reaching before request 1 should not block")
	}
}

func TestExecuteContextDependencies(t *testing.T) {
	store := property.NewStore(8)
	store.Advertise("frontend", property.FDFrameSettings)
	reg := fence.NewRegistry(nil)

	ctx := &ExecuteContext{
		Node:       "fdhw",
		Request:    Request{ID: 3},
		Inputs:     map[PortID]*fence.Fence{2: reg.Create("b"), 0: reg.Create("a")},
		Properties: store,
	}
	u := NewUnit(1)
	ctx.DependOnPrevious(u)
	if !ctx.DependOnProperty(u, property.FDFrameSettings, 0) {
		t.Error("advertised property not added")
	}
	if ctx.DependOnProperty(u, property.AFState, 0) {
		t.Error("unadvertised property added")
	}
	ctx.DependOnInputs(u)

	want := []PropertyRef{{property.NodeComplete("fdhw"), 1}, {property.FDFrameSettings, 0}}
	if d := cmp.Diff(want, u.Properties()); d != "" {
		t.Errorf("properties (-want +got):\n%s", d)
	}
	fs := u.Fences()
	if len(fs) != 2 || fs[0].Name() != "a" {
		t.Errorf("fences not in port order: %v", fs)
	}

	ctx.FirstRequest = true
	first := NewUnit(1)
	ctx.DependOnPrevious(first)
	if !first.Empty() {
		t.Error("first request should not depend on its predecessor")
	}
}

func TestSignalOutputsSkipsSignaled(t *testing.T) {
	reg := fence.NewRegistry(nil)
	a, b := reg.Create("a"), reg.Create("b")
	_ = a.Signal(fence.Cancelled)

	ctx := &ExecuteContext{Outputs: map[PortID]*fence.Fence{0: a, 1: b}}
	if n := ctx.SignalOutputs(fence.Success); n != 1 {
		t.Errorf("SignalOutputs = %d, want 1", n)
	}
	if a.Result() != fence.Cancelled || b.Result() != fence.Success {
		t.Errorf("a=%v b=%v", a.Result(), b.Result())
	}
}

type stub struct{ name string }

func (s *stub) Initialize(*InitContext) (*Info, error) { return &Info{}, nil }
func (s *stub) FinalizeInputRequirement(*negotiation.Data) error { return nil }
func (s *stub) FinalizeBufferProperties(*negotiation.Data) error { return nil }
func (s *stub) Activate(*ActivateContext) error { return nil }
func (s *stub) ExecuteRequest(*ExecuteContext) (*Unit, error) { return nil, nil }
func (s *stub) PortName(Direction, PortID) string { return "" }

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	f := func(name string) Node { return &stub{name: name} }
	if err := r.Register("b", f); err != nil {
		t.Fatal(err)
	}
	if err := r.Register("a", f); err != nil {
		t.Fatal(err)
	}
	if err := r.Register("a", f); !errors.Is(err, ErrDuplicateKind) {
		t.Fatalf("duplicate err = %v", err)
	}
	n, err := r.New("a", "first")
	if err != nil || n.(*stub).name != "first" {
		t.Fatalf("New = %v, %v", n, err)
	}
	if _, err := r.New("zzz", "x"); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("unknown kind err = %v", err)
	}
	if d := cmp.Diff([]Kind{"a", "b"}, r.Kinds()); d != "" {
		t.Errorf("Kinds (-want +got):\n%s", d)
	}
}

func TestParamsDimension(t *testing.T) {
	p := Params{
		"a":   "640x480",
		"b":   []any{int64(320), int64(240)},
		"bad": "640*480",
		"n":   int64(7),
	}
	def := negotiation.Dimension{Width: 1, Height: 1}
	if d, err := p.Dimension("a", def); err != nil || d != (negotiation.Dimension{Width: 640, Height: 480}) {
		t.Errorf("a = %v, %v", d, err)
	}
	if d, err := p.Dimension("b", def); err != nil || d != (negotiation.Dimension{Width: 320, Height: 240}) {
		t.Errorf("b = %v, %v", d, err)
	}
	if _, err := p.Dimension("bad", def); err == nil {
		t.Error("bad dimension accepted")
	}
	if d, err := p.Dimension("missing", def); err != nil || d != def {
		t.Errorf("missing = %v, %v", d, err)
	}
	if p.Int("n", 0) != 7 || p.Uint32("missing", 9) != 9 || !p.Bool("missing", true) {
		t.Error("scalar accessors wrong")
	}
}
