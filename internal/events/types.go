package events

// Event type constants for kelindar/event.
const (
	TypeFenceSignaled uint32 = iota + 1
	TypePropertyPublished
	TypeRequestSubmitted
	TypeRequestRetired
	TypePipelineFlushed
	TypeNodeStateChanged
	TypeNegotiationCompleted
	TypePipelineRebuilt
	TypeLogEntry
)

// Event is the constraint required by kelindar/event.
type Event interface {
	Type() uint32
}

// FenceSignaledEvent is published when a fence reaches a terminal state.
type FenceSignaledEvent struct {
	Session   string `json:"session" doc:"Pipeline session identifier"`
	Fence     uint64 `json:"fence" example:"17" doc:"Fence handle"`
	Name      string `json:"name" example:"lrme:vector#12" doc:"Fence name"`
	Result    string `json:"result" example:"success" doc:"Terminal result: success, failed or cancelled"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for FenceSignaledEvent.
func (e FenceSignaledEvent) Type() uint32 { return TypeFenceSignaled }

// PropertyPublishedEvent is published when a node posts a property value.
type PropertyPublishedEvent struct {
	Session   string `json:"session" doc:"Pipeline session identifier"`
	RequestID uint64 `json:"request_id" example:"12" doc:"Request the value belongs to"`
	Property  string `json:"property" example:"fd.results" doc:"Property identifier"`
	Timestamp string `json:"timestamp" doc:"Event timestamp"`
}

// Type returns the event type identifier for PropertyPublishedEvent.
func (e PropertyPublishedEvent) Type() uint32 { return TypePropertyPublished }

// RequestSubmittedEvent is published when a capture request enters the pipeline.
type RequestSubmittedEvent struct {
	Session   string `json:"session" doc:"Pipeline session identifier"`
	RequestID uint64 `json:"request_id" example:"12" doc:"Request number"`
	Frames    uint32 `json:"frames" example:"1" doc:"Number of batched frames"`
	Timestamp string `json:"timestamp" doc:"Event timestamp"`
}

// Type returns the event type identifier for RequestSubmittedEvent.
func (e RequestSubmittedEvent) Type() uint32 { return TypeRequestSubmitted }

// RequestRetiredEvent is published once every node finished a request.
type RequestRetiredEvent struct {
	Session   string `json:"session" doc:"Pipeline session identifier"`
	RequestID uint64 `json:"request_id" example:"12" doc:"Request number"`
	Status    string `json:"status" example:"success" doc:"success, failed or cancelled"`
	LatencyMS int64  `json:"latency_ms" example:"33" doc:"Time from submission to retirement"`
	Timestamp string `json:"timestamp" doc:"Event timestamp"`
}

// Type returns the event type identifier for RequestRetiredEvent.
func (e RequestRetiredEvent) Type() uint32 { return TypeRequestRetired }

// PipelineFlushedEvent is published after a flush cancelled in-flight work.
type PipelineFlushedEvent struct {
	Session         string `json:"session" doc:"Pipeline session identifier"`
	CancelledUnits  int    `json:"cancelled_units" doc:"Dependency units dropped"`
	CancelledFences int    `json:"cancelled_fences" doc:"Fences forced to cancelled"`
	Timestamp       string `json:"timestamp" doc:"Event timestamp"`
}

// Type returns the event type identifier for PipelineFlushedEvent.
func (e PipelineFlushedEvent) Type() uint32 { return TypePipelineFlushed }

// NodeStateChangedEvent tracks the node lifecycle.
type NodeStateChangedEvent struct {
	Session   string `json:"session" doc:"Pipeline session identifier"`
	Node      string `json:"node" example:"fdhw" doc:"Node name"`
	From      string `json:"from" example:"initialized" doc:"Previous state"`
	To        string `json:"to" example:"active" doc:"New state"`
	Timestamp string `json:"timestamp" doc:"Event timestamp"`
}

// Type returns the event type identifier for NodeStateChangedEvent.
func (e NodeStateChangedEvent) Type() uint32 { return TypeNodeStateChanged }

// NegotiationCompletedEvent is published after both negotiation passes.
type NegotiationCompletedEvent struct {
	Session       string `json:"session" doc:"Pipeline session identifier"`
	Nodes         int    `json:"nodes" doc:"Nodes negotiated"`
	DisabledLinks int    `json:"disabled_links" doc:"Links disabled by the forward pass"`
	DurationUS    int64  `json:"duration_us" doc:"Negotiation time in microseconds"`
	Timestamp     string `json:"timestamp" doc:"Event timestamp"`
}

// Type returns the event type identifier for NegotiationCompletedEvent.
func (e NegotiationCompletedEvent) Type() uint32 { return TypeNegotiationCompleted }

// PipelineRebuiltEvent is published when the topology file changed and the
// pipeline was rebuilt.
type PipelineRebuiltEvent struct {
	Session   string `json:"session" doc:"New pipeline session identifier"`
	Previous  string `json:"previous" doc:"Replaced session identifier"`
	Error     string `json:"error,omitempty" doc:"Rebuild failure, if any"`
	Timestamp string `json:"timestamp" doc:"Event timestamp"`
}

// Type returns the event type identifier for PipelineRebuiltEvent.
func (e PipelineRebuiltEvent) Type() uint32 { return TypePipelineRebuilt }

// LogEntryEvent carries a buffered log line to SSE clients.
type LogEntryEvent struct {
	Timestamp string         `json:"timestamp" doc:"Log timestamp"`
	Level     string         `json:"level" example:"info" doc:"Log level"`
	Module    string         `json:"module" example:"scheduler" doc:"Source module"`
	Message   string         `json:"message" doc:"Log message"`
	Attrs     map[string]any `json:"attrs,omitempty" doc:"Structured attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
