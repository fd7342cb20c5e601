package pipeline

import (
	"github.com/smazurov/camgraph/internal/fence"
	"github.com/smazurov/camgraph/internal/metrics"
	"github.com/smazurov/camgraph/internal/node"
)

// FlushResult counts what a flush threw away.
type FlushResult struct {
	Requests int `json:"requests" doc:"In-flight requests retired as cancelled"`
	Units    int `json:"units" doc:"Pending dependency units dropped"`
	Fences   int `json:"fences" doc:"Fences forced to cancelled"`
	Commands int `json:"commands" doc:"Backend commands cancelled"`
}

// Flush abandons every in-flight request. It waits for running invocations
// to return, drops pending units, cancels outstanding fences and backend
// work, resets nodes and the property store, and restarts request numbering
// at 1. Invocations already queued when Flush starts are discarded.
func (p *Pipeline) Flush() FlushResult {
	p.gate.Lock()

	res := FlushResult{Units: p.sched.clear()}

	// Submit stamps requests under mu, so a request is either cancelled
	// below or carries the new generation.
	p.mu.Lock()
	p.gen.Add(1)
	var cancelled []*requestState
	var handles []fence.Handle
	for _, r := range p.requests {
		if !r.retired {
			r.retired = true
			r.status = StatusCancelled
			cancelled = append(cancelled, r)
		}
		for _, fs := range r.outputs {
			for _, f := range fs {
				handles = append(handles, f.Handle())
			}
		}
	}
	p.requests = make(map[uint64]*requestState)
	p.nextID = 1
	if p.inflight > 0 {
		p.inflight = 0
		close(p.idle)
	}
	p.mu.Unlock()

	res.Requests = len(cancelled)
	res.Fences = p.fences.CancelAll()
	res.Commands = p.devices.Flush()
	for _, inst := range p.nodes {
		if f, ok := inst.impl.(node.Flusher); ok {
			f.Flush()
		}
	}
	p.props.Flush()
	p.fences.Release(handles...)

	p.gate.Unlock()

	for _, r := range cancelled {
		p.retired(r)
	}
	metrics.RecordFlush()
	p.logger.Info("Pipeline flushed", "requests", res.Requests, "units", res.Units,
		"fences", res.Fences, "commands", res.Commands)
	p.publish(flushedEvent(p.session, res))
	return res
}
