package pipeline

import (
	"time"

	"github.com/smazurov/camgraph/internal/events"
	"github.com/smazurov/camgraph/internal/fence"
	"github.com/smazurov/camgraph/internal/node"
	"github.com/smazurov/camgraph/internal/property"
)

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func fenceEvent(session string, f *fence.Fence, r fence.Result) events.FenceSignaledEvent {
	return events.FenceSignaledEvent{
		Session:   session,
		Fence:     uint64(f.Handle()),
		Name:      f.Name(),
		Result:    r.String(),
		Timestamp: timestamp(),
	}
}

func propertyEvent(session string, requestID uint64, id property.ID) events.PropertyPublishedEvent {
	return events.PropertyPublishedEvent{
		Session:   session,
		RequestID: requestID,
		Property:  string(id),
		Timestamp: timestamp(),
	}
}

func submittedEvent(session string, req node.Request) events.RequestSubmittedEvent {
	return events.RequestSubmittedEvent{
		Session:   session,
		RequestID: req.ID,
		Frames:    req.Frames,
		Timestamp: timestamp(),
	}
}

func retiredEvent(session string, id uint64, status string, latency time.Duration) events.RequestRetiredEvent {
	return events.RequestRetiredEvent{
		Session:   session,
		RequestID: id,
		Status:    status,
		LatencyMS: latency.Milliseconds(),
		Timestamp: timestamp(),
	}
}

func flushedEvent(session string, res FlushResult) events.PipelineFlushedEvent {
	return events.PipelineFlushedEvent{
		Session:         session,
		CancelledUnits:  res.Units,
		CancelledFences: res.Fences,
		Timestamp:       timestamp(),
	}
}

func nodeStateEvent(session, name string, from, to State) events.NodeStateChangedEvent {
	return events.NodeStateChangedEvent{
		Session:   session,
		Node:      name,
		From:      string(from),
		To:        string(to),
		Timestamp: timestamp(),
	}
}

func negotiationEvent(session string, nodes, disabled int, d time.Duration) events.NegotiationCompletedEvent {
	return events.NegotiationCompletedEvent{
		Session:       session,
		Nodes:         nodes,
		DisabledLinks: disabled,
		DurationUS:    d.Microseconds(),
		Timestamp:     timestamp(),
	}
}
