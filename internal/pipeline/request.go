package pipeline

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/smazurov/camgraph/internal/fence"
	"github.com/smazurov/camgraph/internal/metrics"
	"github.com/smazurov/camgraph/internal/node"
	"github.com/smazurov/camgraph/internal/property"
)

// Request retirement statuses.
const (
	StatusSuccess   = "success"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// SubmitOptions describes a capture request.
type SubmitOptions struct {
	// Frames is the batch size; zero means one.
	Frames   uint32
	Controls map[string]any
}

// requestState tracks one request until it retires and, for temporal links,
// until depth later requests have been submitted.
type requestState struct {
	req node.Request
	gen uint64
	// outputs holds the output fences of each node, indexed by instance.
	outputs   []map[node.PortID]*fence.Fence
	complete  []bool
	remaining int
	failed    bool
	retired   bool
	status    string
}

// Submit admits a new request and invokes every node for it in order.
func (p *Pipeline) Submit(ctx context.Context, opts SubmitOptions) (node.Request, error) {
	if err := ctx.Err(); err != nil {
		return node.Request{}, err
	}
	if opts.Frames == 0 {
		opts.Frames = 1
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return node.Request{}, ErrNotActive
	}
	if p.inflight >= p.depth {
		p.mu.Unlock()
		return node.Request{}, fmt.Errorf("%w: %d in flight", ErrQueueFull, p.inflight)
	}

	id := p.nextID
	p.nextID++
	r := &requestState{
		req: node.Request{
			ID:        id,
			Frames:    opts.Frames,
			Controls:  maps.Clone(opts.Controls),
			Submitted: time.Now(),
		},
		gen:       p.gen.Load(),
		outputs:   make([]map[node.PortID]*fence.Fence, len(p.nodes)),
		complete:  make([]bool, len(p.nodes)),
		remaining: len(p.nodes),
	}
	var created []*fence.Fence
	for _, inst := range p.nodes {
		fs := make(map[node.PortID]*fence.Fence)
		for pid, out := range inst.data.Outputs {
			if !out.Finalized || out.Disabled {
				continue
			}
			f := p.fences.Create(fmt.Sprintf("%s:%s#%d", inst.name, out.Name, id))
			fs[pid] = f
			created = append(created, f)
		}
		r.outputs[inst.index] = fs
	}
	p.requests[id] = r
	if p.inflight == 0 {
		p.idle = make(chan struct{})
	}
	p.inflight++
	p.releaseLocked(id)
	p.mu.Unlock()

	for _, f := range created {
		f.OnSignal(func(fence.Result) { p.checkRetire(r) })
	}

	p.logger.Debug("Request submitted", "request", id, "frames", opts.Frames)
	p.publish(submittedEvent(p.session, r.req))

	for _, inst := range p.order {
		p.exec.Submit(func() { p.run(inst, r, 0) })
	}
	return r.req, nil
}

// releaseLocked forgets retired requests too old to feed any temporal link
// of request id.
func (p *Pipeline) releaseLocked(id uint64) {
	for rid, r := range p.requests {
		if !r.retired || rid+uint64(p.depth) > id {
			continue
		}
		var hs []fence.Handle
		for _, fs := range r.outputs {
			for _, f := range fs {
				hs = append(hs, f.Handle())
			}
		}
		p.fences.Release(hs...)
		delete(p.requests, rid)
	}
}

func (p *Pipeline) dispatch(pu *pendingUnit) {
	p.exec.Submit(func() { p.run(pu.inst, pu.r, pu.unit.SequenceID) })
}

// run invokes inst for r. Invocations queued before a flush are dropped.
func (p *Pipeline) run(inst *instance, r *requestState, seq uint32) {
	p.gate.RLock()
	defer p.gate.RUnlock()

	p.mu.Lock()
	stale := p.gen.Load() != r.gen || r.retired
	p.mu.Unlock()
	if stale {
		inst.logger.Debug("Dropping invocation from before flush", "request", r.req.ID, "sequence", seq)
		return
	}

	phase := "first"
	if seq != 0 {
		phase = "resume"
	}
	metrics.RecordDispatch(inst.name, phase)

	ctx := p.executeContext(inst, r, seq)
	unit, err := invoke(inst, ctx)
	if err == nil && unit != nil {
		err = p.sched.add(&pendingUnit{inst: inst, r: r, unit: unit})
		if err == nil {
			return
		}
	}
	if err != nil {
		inst.logger.Error("Request failed", "request", r.req.ID, "sequence", seq, "error", err)
		ctx.SignalOutputs(fence.Failed)
		p.abandonProperties(inst, r)
		p.mu.Lock()
		r.failed = true
		p.mu.Unlock()
	}
	p.complete(inst, r)
}

// abandonProperties marks every property inst advertised but did not publish
// for r as unavailable, so units waiting on them resolve.
func (p *Pipeline) abandonProperties(inst *instance, r *requestState) {
	for _, id := range inst.info.Publishes {
		if p.props.PublishUnavailable(r.req.ID, id, inst.name) {
			inst.logger.Debug("Property unavailable", "request", r.req.ID, "property", id)
		}
	}
}

func invoke(inst *instance, ctx *node.ExecuteContext) (u *node.Unit, err error) {
	inst.execMu.Lock()
	defer inst.execMu.Unlock()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%s: panic: %v", inst.name, rec)
		}
	}()
	return inst.impl.ExecuteRequest(ctx)
}

func (p *Pipeline) executeContext(inst *instance, r *requestState, seq uint32) *node.ExecuteContext {
	inputs := make(map[node.PortID]*fence.Fence)
	p.mu.Lock()
	for pid, l := range inst.upstream {
		if l.disabled || uint64(l.delta) >= r.req.ID {
			continue
		}
		src, ok := p.requests[r.req.ID-uint64(l.delta)]
		if !ok {
			continue
		}
		if f, ok := src.outputs[l.from.index][l.fromPort]; ok {
			inputs[pid] = f
		}
	}
	p.mu.Unlock()

	return &node.ExecuteContext{
		Node:         inst.name,
		Request:      r.req,
		SequenceID:   seq,
		FirstRequest: r.req.ID == 1,
		Inputs:       inputs,
		Outputs:      r.outputs[inst.index],
		Depth:        p.depth,
		Properties:   p.props,
		Logger:       inst.logger.With("request", r.req.ID),
	}
}

// complete marks inst finished with r and publishes its completion so the
// node's next request can proceed.
func (p *Pipeline) complete(inst *instance, r *requestState) {
	p.mu.Lock()
	if !r.complete[inst.index] {
		r.complete[inst.index] = true
		r.remaining--
	}
	p.mu.Unlock()

	p.props.Publish(r.req.ID, property.NodeComplete(inst.name), true)
	p.checkRetire(r)
}

// checkRetire retires r once every node completed it and every output
// fence is terminal.
func (p *Pipeline) checkRetire(r *requestState) {
	p.mu.Lock()
	if r.retired || r.remaining > 0 {
		p.mu.Unlock()
		return
	}
	status := StatusSuccess
	if r.failed {
		status = StatusFailed
	}
	for _, fs := range r.outputs {
		for _, f := range fs {
			switch f.Result() {
			case fence.Unsignaled:
				p.mu.Unlock()
				return
			case fence.Cancelled:
				status = StatusCancelled
			case fence.Failed:
				if status == StatusSuccess {
					status = StatusFailed
				}
			}
		}
	}
	r.retired = true
	r.status = status
	p.inflight--
	if p.inflight == 0 {
		close(p.idle)
	}
	p.mu.Unlock()

	p.retired(r)
}

func (p *Pipeline) retired(r *requestState) {
	latency := time.Since(r.req.Submitted)
	metrics.RecordRetired(r.status, latency)
	p.logger.Debug("Request retired", "request", r.req.ID, "status", r.status, "latency", latency)
	p.publish(retiredEvent(p.session, r.req.ID, r.status, latency))
}

// WaitIdle blocks until no request is in flight or ctx is done.
func (p *Pipeline) WaitIdle(ctx context.Context) error {
	p.mu.Lock()
	idle := p.idle
	p.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InFlight returns the number of submitted requests not yet retired.
func (p *Pipeline) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inflight
}
