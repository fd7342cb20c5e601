package pipeline

import (
	"fmt"
	"time"

	"github.com/smazurov/camgraph/internal/metrics"
	"github.com/smazurov/camgraph/internal/negotiation"
	"github.com/smazurov/camgraph/internal/node"
)

// resetNegotiation clears the results of a previous run so negotiation
// starts from the declared ports every time.
func (p *Pipeline) resetNegotiation() {
	for _, inst := range p.nodes {
		d := negotiation.NewData(inst.name)
		for _, ps := range inst.info.Inputs {
			in := &negotiation.Input{Name: ps.Name}
			if l, ok := inst.upstream[ps.ID]; ok {
				in.Connected = true
				in.Delta = l.delta
			}
			d.Inputs[ps.ID] = in
		}
		for _, ps := range inst.info.Outputs {
			d.Outputs[ps.ID] = &negotiation.Output{Name: ps.Name}
		}
		inst.data = d
	}
	for _, l := range p.links {
		l.disabled = false
	}
}

// negotiate runs the backward pass in reverse order, then the forward pass
// in order, then checks every enabled link against its consumer's range.
func (p *Pipeline) negotiate() error {
	start := time.Now()
	p.resetNegotiation()

	for i := len(p.order) - 1; i >= 0; i-- {
		inst := p.order[i]
		collectConsumers(inst)
		if err := inst.impl.FinalizeInputRequirement(inst.data); err != nil {
			return fmt.Errorf("%s: input requirements: %w", inst.name, err)
		}
	}

	done := make(map[*instance]bool, len(p.order))
	for _, inst := range p.order {
		collectUpstream(inst, done)
		if err := inst.impl.FinalizeBufferProperties(inst.data); err != nil {
			return fmt.Errorf("%s: buffer properties: %w", inst.name, err)
		}
		done[inst] = true
		p.settleOutputs(inst)
	}

	disabled, err := p.settleLinks()
	if err != nil {
		return err
	}

	elapsed := time.Since(start)
	metrics.ObserveNegotiation(elapsed)
	p.logger.Info("Negotiation complete", "nodes", len(p.nodes), "links", len(p.links),
		"disabled_links", disabled, "duration", elapsed)
	p.publish(negotiationEvent(p.session, len(p.nodes), disabled, elapsed))
	return nil
}

// collectConsumers gathers the requirements of every input an output feeds.
// Inputs that have not stated a requirement yet, such as a node's own input
// on a temporal loop, are left out.
func collectConsumers(inst *instance) {
	for id, out := range inst.data.Outputs {
		out.Consumers = out.Consumers[:0]
		for _, l := range inst.downstream[id] {
			in := l.to.data.Inputs[l.toPort]
			if in.HasRequirement {
				out.Consumers = append(out.Consumers, in.Requirement)
			}
		}
	}
}

// collectUpstream hands each input the format of the output feeding it.
// An input whose producer already ran and left the output unused gets no
// buffer and is disabled.
func collectUpstream(inst *instance, done map[*instance]bool) {
	for id, in := range inst.data.Inputs {
		l, ok := inst.upstream[id]
		if !ok {
			continue
		}
		if !done[l.from] {
			continue
		}
		out := l.from.data.Outputs[l.fromPort]
		if !out.Finalized || out.Disabled {
			in.Disabled = true
			continue
		}
		f := out.Format
		in.Format = &f
	}
}

// settleOutputs disables outputs a node left unfinalized when nothing
// consumes them.
func (p *Pipeline) settleOutputs(inst *instance) {
	for id, out := range inst.data.Outputs {
		if out.Finalized || out.Disabled {
			continue
		}
		if len(inst.downstream[id]) == 0 {
			inst.data.DisableOutput(id)
		}
	}
}

// settleLinks disables links with an unused end and validates the rest.
func (p *Pipeline) settleLinks() (int, error) {
	disabled := 0
	for _, l := range p.links {
		out := l.from.data.Outputs[l.fromPort]
		in := l.to.data.Inputs[l.toPort]

		if out.Disabled || in.Disabled {
			l.disabled = true
			if !in.Disabled {
				p.logger.Debug("Disabling input fed by unused output", "link", l.String())
				in.Disabled = true
			}
			disabled++
			continue
		}
		if !out.Finalized {
			return 0, negotiation.Errorf(l.from.name, out.Name, "output feeds %s but has no format", l.to.name)
		}
		if in.HasRequirement && !in.Requirement.Contains(out.Format.Dimension()) {
			return 0, negotiation.Errorf(l.to.name, in.Name, "%w: %v not within %v",
				negotiation.ErrOutOfBounds, out.Format.Dimension(), in.Requirement)
		}
		f := out.Format
		in.Format = &f
	}
	return disabled, nil
}

// activeFormats returns the negotiated formats of enabled ports.
func activeFormats(inst *instance) (inputs, outputs map[node.PortID]negotiation.Format) {
	inputs = make(map[node.PortID]negotiation.Format)
	outputs = make(map[node.PortID]negotiation.Format)
	for id, in := range inst.data.Inputs {
		if in.Connected && !in.Disabled && in.Format != nil {
			inputs[id] = *in.Format
		}
	}
	for id, out := range inst.data.Outputs {
		if out.Finalized && !out.Disabled {
			outputs[id] = out.Format
		}
	}
	return inputs, outputs
}

// Renegotiate reruns both passes on an idle pipeline. Negotiation is
// deterministic, so an unchanged topology yields the active formats again;
// any difference is reported as ErrFormatsChanged and the previous formats,
// along with the state nodes derived from them, stay in effect.
func (p *Pipeline) Renegotiate() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrNotActive
	}
	if p.inflight > 0 {
		return ErrBusy
	}

	before := p.formatTable()
	saved := make(map[*instance]*negotiation.Data, len(p.nodes))
	states := make(map[*instance]any)
	links := make(map[*link]bool, len(p.links))
	for _, inst := range p.nodes {
		saved[inst] = inst.data
		if s, ok := inst.impl.(node.NegotiationState); ok {
			states[inst] = s.SaveNegotiation()
		}
	}
	for _, l := range p.links {
		links[l] = l.disabled
	}
	restore := func() {
		for inst, d := range saved {
			inst.data = d
		}
		for inst, st := range states {
			inst.impl.(node.NegotiationState).RestoreNegotiation(st)
		}
		for l, d := range links {
			l.disabled = d
		}
	}

	if err := p.negotiate(); err != nil {
		restore()
		return err
	}
	if !sameFormats(before, p.formatTable()) {
		restore()
		return ErrFormatsChanged
	}
	return nil
}

type portKey struct {
	node string
	dir  node.Direction
	port node.PortID
}

// formatTable flattens the negotiated formats of enabled ports.
func (p *Pipeline) formatTable() map[portKey]negotiation.Format {
	t := make(map[portKey]negotiation.Format)
	for _, inst := range p.nodes {
		ins, outs := activeFormats(inst)
		for id, f := range ins {
			t[portKey{inst.name, node.Input, id}] = f
		}
		for id, f := range outs {
			t[portKey{inst.name, node.Output, id}] = f
		}
	}
	return t
}

func sameFormats(a, b map[portKey]negotiation.Format) bool {
	if len(a) != len(b) {
		return false
	}
	for k, fa := range a {
		fb, ok := b[k]
		if !ok || fa.Width != fb.Width || fa.Height != fb.Height || len(fa.Planes) != len(fb.Planes) {
			return false
		}
		for i := range fa.Planes {
			if fa.Planes[i] != fb.Planes[i] {
				return false
			}
		}
	}
	return true
}
