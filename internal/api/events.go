package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/camgraph/internal/events"
)

// pipelineEventTypes maps SSE event names to the bus events they carry.
var pipelineEventTypes = map[string]any{
	"fence-signaled":        events.FenceSignaledEvent{},
	"property-published":    events.PropertyPublishedEvent{},
	"request-submitted":     events.RequestSubmittedEvent{},
	"request-retired":       events.RequestRetiredEvent{},
	"pipeline-flushed":      events.PipelineFlushedEvent{},
	"node-state-changed":    events.NodeStateChangedEvent{},
	"negotiation-completed": events.NegotiationCompletedEvent{},
	"pipeline-rebuilt":      events.PipelineRebuiltEvent{},
	"log-entry":             events.LogEntryEvent{},
}

// registerSSERoutes registers the native Huma SSE endpoint.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time pipeline events: fences, properties, request lifecycle, flushes, node states, negotiation, rebuilds and log entries",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, pipelineEventTypes, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		// Fence and property events arrive in bursts of one per port per request
		eventCh := make(chan any, 256)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.FenceSignaledEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.PropertyPublishedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.RequestSubmittedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.RequestRetiredEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.PipelineFlushedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.NodeStateChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.NegotiationCompletedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.PipelineRebuiltEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.LogEntryEvent](s.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		// Tell the client which session it is watching
		hello := events.PipelineRebuiltEvent{Timestamp: time.Now().UTC().Format(time.RFC3339Nano)}
		if p, err := s.service.Current(); err == nil {
			hello.Session = p.Session()
		}
		if err := send.Data(hello); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
