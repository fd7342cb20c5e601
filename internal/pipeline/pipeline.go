// Package pipeline builds a node graph from a topology, negotiates buffer
// formats across it and schedules capture requests through it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/smazurov/camgraph/internal/config"
	"github.com/smazurov/camgraph/internal/device"
	"github.com/smazurov/camgraph/internal/events"
	"github.com/smazurov/camgraph/internal/fence"
	"github.com/smazurov/camgraph/internal/logging"
	"github.com/smazurov/camgraph/internal/metrics"
	"github.com/smazurov/camgraph/internal/node"
	"github.com/smazurov/camgraph/internal/property"
)

// Options configures Build.
type Options struct {
	// Kinds resolves node kinds to factories (required).
	Kinds *node.Registry
	// Devices is the device registry hardware nodes claim from. When nil a
	// registry is built from the topology's [[devices]] table.
	Devices *device.Registry
	// Bus receives pipeline events. May be nil.
	Bus *events.Bus
	// Executor runs node invocations. When nil an inline executor is used,
	// or a worker pool when the topology sets workers > 0.
	Executor Executor
	// OnStateChange observes node lifecycle transitions. May be nil.
	OnStateChange StateChangeCallback
	Logger        *slog.Logger
}

// Pipeline is a built, negotiated and activated node graph.
type Pipeline struct {
	session       string
	depth         int
	workers       int
	logger        *slog.Logger
	bus           *events.Bus
	devices       *device.Registry
	exec          Executor
	ownsExec      bool
	onStateChange StateChangeCallback

	nodes []*instance
	order []*instance
	links []*link

	fences *fence.Registry
	props  *property.Store
	sched  *scheduler

	// gate is held shared by every invocation and exclusively by Flush.
	gate sync.RWMutex
	gen  atomic.Uint64

	mu       sync.Mutex
	closed   bool
	nextID   uint64
	inflight int
	requests map[uint64]*requestState
	idle     chan struct{}
}

// Build creates, initializes, links, orders, negotiates and activates every
// node of cfg. On any error the nodes created so far are destroyed and no
// pipeline is returned.
func Build(cfg *config.Topology, opts Options) (*Pipeline, error) {
	if opts.Kinds == nil {
		return nil, errors.New("pipeline: node registry is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("pipeline")
	}
	devices := opts.Devices
	if devices == nil {
		devices = NewDevices(cfg)
	}

	p := &Pipeline{
		session:       uuid.NewString(),
		depth:         cfg.Depth,
		workers:       cfg.Workers,
		bus:           opts.Bus,
		devices:       devices,
		onStateChange: opts.OnStateChange,
		props:         property.NewStore(2 * cfg.Depth),
		nextID:        1,
		requests:      make(map[uint64]*requestState),
		idle:          closedChan(),
	}
	p.logger = logger.With("session", p.session)
	p.fences = fence.NewRegistry(p.onFenceSignal)
	p.sched = newScheduler(p.props, p.dispatch)
	p.props.OnPublish(p.onPublish)

	if err := p.build(cfg, opts.Kinds); err != nil {
		p.teardown()
		return nil, err
	}

	switch {
	case opts.Executor != nil:
		p.exec = opts.Executor
	case cfg.Workers > 0:
		p.exec = NewPoolExecutor(context.Background(), cfg.Workers)
		p.ownsExec = true
	default:
		p.exec = NewInlineExecutor()
		p.ownsExec = true
	}

	p.logger.Info("Pipeline active", "nodes", len(p.nodes), "links", len(p.links),
		"depth", p.depth, "workers", p.workers)
	return p, nil
}

func (p *Pipeline) build(cfg *config.Topology, kinds *node.Registry) error {
	for i, nc := range cfg.Nodes {
		impl, err := kinds.New(node.Kind(nc.Kind), nc.Name)
		if err != nil {
			return fmt.Errorf("node %s: %w", nc.Name, err)
		}
		inst := &instance{
			index:      i,
			name:       nc.Name,
			kind:       node.Kind(nc.Kind),
			params:     node.Params(nc.Params),
			impl:       impl,
			logger:     logging.GetLogger(nc.Kind).With("node", nc.Name),
			inputs:     make(map[string]node.PortID),
			outputs:    make(map[string]node.PortID),
			upstream:   make(map[node.PortID]*link),
			downstream: make(map[node.PortID][]*link),
		}
		p.nodes = append(p.nodes, inst)
		p.setState(inst, StateCreated)
	}

	for _, inst := range p.nodes {
		if err := p.initialize(inst); err != nil {
			p.setState(inst, StateError)
			return err
		}
	}

	links, err := connect(p.nodes, cfg.Links)
	if err != nil {
		return err
	}
	p.links = links

	if p.order, err = order(p.nodes, p.links); err != nil {
		return err
	}
	for rank, inst := range p.order {
		inst.rank = rank
	}

	if err := p.negotiate(); err != nil {
		return err
	}
	for _, inst := range p.order {
		p.setState(inst, StateNegotiated)
	}

	for _, inst := range p.order {
		ins, outs := activeFormats(inst)
		err := inst.impl.Activate(&node.ActivateContext{
			Depth:   p.depth,
			Devices: p.devices,
			Inputs:  ins,
			Outputs: outs,
		})
		if err != nil {
			p.setState(inst, StateError)
			return fmt.Errorf("%s: activate: %w", inst.name, err)
		}
		p.setState(inst, StateActive)
	}
	return nil
}

func (p *Pipeline) initialize(inst *instance) error {
	info, err := inst.impl.Initialize(&node.InitContext{
		Name:    inst.name,
		Params:  inst.params,
		Depth:   p.depth,
		Devices: p.devices,
		Logger:  inst.logger,
	})
	if err != nil {
		return fmt.Errorf("%s: initialize: %w", inst.name, err)
	}
	if info == nil {
		info = &node.Info{}
	}
	inst.info = info

	for _, ps := range info.Inputs {
		if _, dup := inst.inputs[ps.Name]; dup {
			return fmt.Errorf("%s: duplicate input %q", inst.name, ps.Name)
		}
		inst.inputs[ps.Name] = ps.ID
	}
	for _, ps := range info.Outputs {
		if _, dup := inst.outputs[ps.Name]; dup {
			return fmt.Errorf("%s: duplicate output %q", inst.name, ps.Name)
		}
		inst.outputs[ps.Name] = ps.ID
	}
	if len(info.Publishes) > 0 {
		p.props.Advertise(inst.name, info.Publishes...)
	}
	if info.HardwareDisabled {
		inst.logger.Warn("No device available, running without hardware")
	}
	p.setState(inst, StateInitialized)
	return nil
}

// teardown destroys nodes in reverse order.
func (p *Pipeline) teardown() {
	for i := len(p.nodes) - 1; i >= 0; i-- {
		inst := p.nodes[i]
		if d, ok := inst.impl.(node.Destroyer); ok && inst.info != nil {
			d.Destroy()
		}
		if inst.state != StateError {
			p.setState(inst, StateDestroyed)
		}
		metrics.DeleteNode(inst.name)
	}
}

// Session identifies this build of the pipeline in events and the API.
func (p *Pipeline) Session() string { return p.session }

// Depth is the maximum number of requests in flight.
func (p *Pipeline) Depth() int { return p.depth }

// Properties returns the pipeline's property store.
func (p *Pipeline) Properties() *property.Store { return p.props }

// Devices returns the device registry the pipeline was built with.
func (p *Pipeline) Devices() *device.Registry { return p.devices }

// Node returns the implementation behind the named node.
func (p *Pipeline) Node(name string) (node.Node, bool) {
	for _, inst := range p.nodes {
		if inst.name == name {
			return inst.impl, true
		}
	}
	return nil, false
}

// Gauges implements metrics.Sampler.
func (p *Pipeline) Gauges() metrics.Gauges {
	p.mu.Lock()
	inflight := p.inflight
	p.mu.Unlock()
	return metrics.Gauges{
		PendingUnits:      p.sched.len(),
		InFlightRequests:  inflight,
		OutstandingFences: p.fences.Outstanding(),
	}
}

// Close flushes in-flight work and destroys every node.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	p.Flush()

	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.teardown()
	var err error
	if p.ownsExec {
		err = p.exec.Close()
	}
	p.logger.Info("Pipeline closed")
	return err
}

func (p *Pipeline) publish(ev events.Event) {
	p.bus.Publish(ev)
}

func (p *Pipeline) onFenceSignal(f *fence.Fence, r fence.Result) {
	metrics.RecordFenceSignal(r.String())
	p.publish(fenceEvent(p.session, f, r))
	p.sched.poke()
}

func (p *Pipeline) onPublish(requestID uint64, id property.ID) {
	p.publish(propertyEvent(p.session, requestID, id))
	p.sched.poke()
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
