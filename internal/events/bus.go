package events

import (
	"github.com/kelindar/event"
)

// Bus wraps a kelindar/event dispatcher. Delivery is asynchronous: a slow
// subscriber never stalls the scheduler that publishes.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates an event bus.
func New() *Bus {
	return &Bus{dispatcher: event.NewDispatcher()}
}

// Publish delivers ev to every subscriber of its concrete type. A nil bus
// drops the event.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	switch e := ev.(type) {
	case FenceSignaledEvent:
		event.Publish(b.dispatcher, e)
	case PropertyPublishedEvent:
		event.Publish(b.dispatcher, e)
	case RequestSubmittedEvent:
		event.Publish(b.dispatcher, e)
	case RequestRetiredEvent:
		event.Publish(b.dispatcher, e)
	case PipelineFlushedEvent:
		event.Publish(b.dispatcher, e)
	case NodeStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case NegotiationCompletedEvent:
		event.Publish(b.dispatcher, e)
	case PipelineRebuiltEvent:
		event.Publish(b.dispatcher, e)
	case LogEntryEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers handler; its parameter type selects the events it
// receives. The returned function unsubscribes. Unknown handler types get a
// no-op.
//
//	unsub := bus.Subscribe(func(e RequestRetiredEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(FenceSignaledEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(PropertyPublishedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(RequestSubmittedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(RequestRetiredEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(PipelineFlushedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(NodeStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(NegotiationCompletedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(PipelineRebuiltEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LogEntryEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}

// SubscribeToChannel forwards events of type T into ch, dropping them when
// ch is full. Used by the SSE endpoint, which selects over a channel.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}
