package pipeline

// State is the lifecycle state of a node instance.
type State string

// Node lifecycle states.
const (
	StateCreated     State = "created"     // Factory returned
	StateInitialized State = "initialized" // Ports declared
	StateNegotiated  State = "negotiated"  // Formats finalized
	StateActive      State = "active"      // Accepting requests
	StateDestroyed   State = "destroyed"   // Torn down
	StateError       State = "error"       // Failed during build
)

// StateChangeCallback is called when a node changes state.
type StateChangeCallback func(node string, from, to State)

func (p *Pipeline) setState(inst *instance, to State) {
	from := inst.state
	if from == to {
		return
	}
	inst.state = to
	p.logger.Debug("Node state changed", "node", inst.name, "from", from, "to", to)
	if p.onStateChange != nil {
		p.onStateChange(inst.name, from, to)
	}
	p.publish(nodeStateEvent(p.session, inst.name, from, to))
}
