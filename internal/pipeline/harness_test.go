package pipeline

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smazurov/camgraph/internal/config"
	"github.com/smazurov/camgraph/internal/device"
	"github.com/smazurov/camgraph/internal/fence"
	"github.com/smazurov/camgraph/internal/negotiation"
	"github.com/smazurov/camgraph/internal/node"
	"github.com/smazurov/camgraph/internal/property"
)

// fake is a configurable node kind for exercising the scheduler.
//
// Params: inputs, outputs (port counts); min, optimal, max (the range its
// inputs require and its outputs can produce); fixed (an output format that
// ignores consumers); disable_outputs; mode ("sync", "late", "hold",
// "fail", "panic"); publish and depends (property ids); sleep_ms.
type fake struct {
	name    string
	ins     int
	outs    int
	rng     negotiation.Requirement
	mode    string
	publish property.ID
	depends property.ID
	sleep   time.Duration
	fixed   negotiation.Dimension
	noOut   bool

	agreed map[node.PortID]negotiation.Requirement

	running atomic.Int32
	overlap atomic.Bool

	mu        sync.Mutex
	calls     []call
	finished  []uint64
	held      map[uint64]*node.ExecuteContext
	flushed   int
	destroyed int
}

type call struct {
	request uint64
	seq     uint32
	inputs  int
}

var errFake = errors.New("fake failure")

func (p *fake) Initialize(ctx *node.InitContext) (*node.Info, error) {
	p.ins = ctx.Params.Int("inputs", 0)
	p.outs = ctx.Params.Int("outputs", 1)
	p.mode = ctx.Params.String("mode", "sync")
	p.publish = property.ID(ctx.Params.String("publish", ""))
	p.depends = property.ID(ctx.Params.String("depends", ""))
	p.sleep = time.Duration(ctx.Params.Int("sleep_ms", 0)) * time.Millisecond
	p.noOut = ctx.Params.Bool("disable_outputs", false)
	p.held = make(map[uint64]*node.ExecuteContext)

	var err error
	if p.fixed, err = ctx.Params.Dimension("fixed", negotiation.Dimension{}); err != nil {
		return nil, err
	}
	if p.rng.Min, err = ctx.Params.Dimension("min", negotiation.Dimension{Width: 1, Height: 1}); err != nil {
		return nil, err
	}
	if p.rng.Optimal, err = ctx.Params.Dimension("optimal", negotiation.Dimension{Width: 640, Height: 480}); err != nil {
		return nil, err
	}
	if p.rng.Max, err = ctx.Params.Dimension("max", negotiation.Dimension{Width: 4096, Height: 4096}); err != nil {
		return nil, err
	}

	info := &node.Info{}
	for i := range p.ins {
		info.Inputs = append(info.Inputs, node.PortSpec{ID: node.PortID(i), Name: fmt.Sprintf("in%d", i)})
	}
	for i := range p.outs {
		info.Outputs = append(info.Outputs, node.PortSpec{ID: node.PortID(i), Name: fmt.Sprintf("out%d", i)})
	}
	if p.publish != "" {
		info.Publishes = []property.ID{p.publish}
	}
	return info, nil
}

func (p *fake) FinalizeInputRequirement(d *negotiation.Data) error {
	p.agreed = make(map[node.PortID]negotiation.Requirement)
	for _, id := range d.OutputIDs() {
		cons, ok, err := d.ConsumerRequirement(id)
		if err != nil {
			return err
		}
		r := p.rng
		if ok && p.fixed.Area() == 0 {
			if r, err = negotiation.Intersect(p.rng, cons); err != nil {
				return d.Fail(id, false, "%w", err)
			}
		}
		p.agreed[id] = r
	}
	for _, id := range d.InputIDs() {
		if !d.Connected(id) {
			continue
		}
		if err := d.SetInputRequirement(id, p.rng); err != nil {
			return err
		}
	}
	return nil
}

func (p *fake) FinalizeBufferProperties(d *negotiation.Data) error {
	for id, r := range p.agreed {
		if p.noOut {
			d.DisableOutput(id)
			continue
		}
		if p.fixed.Area() > 0 {
			r.Optimal = p.fixed
		}
		if err := d.SetOutputFormat(id, negotiation.Format{Width: r.Optimal.Width, Height: r.Optimal.Height}); err != nil {
			return err
		}
	}
	for _, id := range d.InputIDs() {
		if !d.Connected(id) {
			d.DisableInput(id)
		}
	}
	return nil
}

func (p *fake) SaveNegotiation() any { return maps.Clone(p.agreed) }

func (p *fake) RestoreNegotiation(state any) {
	p.agreed = state.(map[node.PortID]negotiation.Requirement)
}

func (p *fake) Activate(*node.ActivateContext) error { return nil }

func (p *fake) ExecuteRequest(ec *node.ExecuteContext) (*node.Unit, error) {
	if p.running.Add(1) > 1 {
		p.overlap.Store(true)
	}
	defer p.running.Add(-1)

	p.mu.Lock()
	p.calls = append(p.calls, call{ec.Request.ID, ec.SequenceID, len(ec.Inputs)})
	p.mu.Unlock()

	switch ec.SequenceID {
	case 0:
		u := node.NewUnit(1)
		ec.DependOnPrevious(u)
		if p.depends != "" {
			ec.DependOnProperty(u, p.depends, 0)
		}
		if p.mode == "late" {
			ec.DependOnInputs(u)
		}
		if !u.Empty() {
			return u, nil
		}
	case 1:
	default:
		return nil, node.UnknownSequence(p.name, ec.SequenceID)
	}
	return nil, p.finish(ec)
}

func (p *fake) finish(ec *node.ExecuteContext) error {
	if p.sleep > 0 {
		time.Sleep(p.sleep)
	}
	p.mu.Lock()
	p.finished = append(p.finished, ec.Request.ID)
	p.mu.Unlock()

	switch p.mode {
	case "fail":
		return errFake
	case "panic":
		panic("fake panic")
	}
	if p.publish != "" {
		ec.Publish(p.publish, ec.Request.ID)
	}
	if p.mode == "hold" {
		p.mu.Lock()
		p.held[ec.Request.ID] = ec
		p.mu.Unlock()
		return nil
	}

	result := fence.Success
	for _, f := range ec.InputFences() {
		if r := f.Result(); r != fence.Success {
			result = r
		}
	}
	ec.SignalOutputs(result)
	return nil
}

// release signals the outputs of a held request.
func (p *fake) release(id uint64, r fence.Result) int {
	p.mu.Lock()
	ec, ok := p.held[id]
	delete(p.held, id)
	p.mu.Unlock()
	if !ok {
		return 0
	}
	return ec.SignalOutputs(r)
}

func (p *fake) Flush() {
	p.mu.Lock()
	p.flushed++
	p.mu.Unlock()
}

func (p *fake) Destroy() {
	p.mu.Lock()
	p.destroyed++
	p.mu.Unlock()
}

func (p *fake) PortName(dir node.Direction, id node.PortID) string {
	if dir == node.Input {
		return fmt.Sprintf("in%d", id)
	}
	return fmt.Sprintf("out%d", id)
}

func (p *fake) finishedRequests() []uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]uint64(nil), p.finished...)
}

func (p *fake) invocations() []call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]call(nil), p.calls...)
}

// harness owns the fakes created by one test's registry.
type harness struct {
	mu    sync.Mutex
	fakes map[string]*fake
	kinds *node.Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{fakes: make(map[string]*fake), kinds: node.NewRegistry()}
	err := h.kinds.Register("fake", func(name string) node.Node {
		p := &fake{name: name}
		h.mu.Lock()
		h.fakes[name] = p
		h.mu.Unlock()
		return p
	})
	if err != nil {
		t.Fatalf("register fake: %v", err)
	}
	return h
}

func (h *harness) fake(name string) *fake {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fakes[name]
}

func (h *harness) build(t *testing.T, top *config.Topology, opts Options) *Pipeline {
	t.Helper()
	opts.Kinds = h.kinds
	p, err := Build(top, withDefaults(opts))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func withDefaults(opts Options) Options {
	if opts.Devices == nil {
		opts.Devices = device.NewRegistry()
	}
	if opts.Executor == nil {
		opts.Executor = NewInlineExecutor()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return opts
}

func fakeNode(name string, params map[string]any) config.NodeConfig {
	return config.NodeConfig{Name: name, Kind: "fake", Params: params}
}

func topology(depth int, nodes []config.NodeConfig, links ...config.LinkConfig) *config.Topology {
	return &config.Topology{Depth: depth, Nodes: nodes, Links: links}
}

func edge(from, to string, delta int) config.LinkConfig {
	return config.LinkConfig{From: from, To: to, Delta: delta}
}

// manualExecutor queues work until the test runs it.
type manualExecutor struct {
	mu    sync.Mutex
	queue []func()
}

func (e *manualExecutor) Submit(fn func()) {
	e.mu.Lock()
	e.queue = append(e.queue, fn)
	e.mu.Unlock()
}

// drain runs queued work, including work queued while draining.
func (e *manualExecutor) drain() int {
	n := 0
	for {
		e.mu.Lock()
		if len(e.queue) == 0 {
			e.mu.Unlock()
			return n
		}
		next := e.queue[0]
		e.queue = e.queue[1:]
		e.mu.Unlock()
		next()
		n++
	}
}

func (e *manualExecutor) Close() error { return nil }
