package events

import (
	"testing"
	"time"
)

func TestBusPublishSubscribe(t *testing.T) {
	bus := New()
	got := make(chan RequestRetiredEvent, 1)

	unsub := bus.Subscribe(func(e RequestRetiredEvent) { got <- e })
	defer unsub()

	bus.Publish(RequestRetiredEvent{RequestID: 7, Status: "success"})

	select {
	case e := <-got:
		if e.RequestID != 7 || e.Status != "success" {
			t.Errorf("unexpected event %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestBusRoutesByType(t *testing.T) {
	bus := New()
	fences := make(chan FenceSignaledEvent, 1)
	flushes := make(chan PipelineFlushedEvent, 1)

	defer bus.Subscribe(func(e FenceSignaledEvent) { fences <- e })()
	defer bus.Subscribe(func(e PipelineFlushedEvent) { flushes <- e })()

	bus.Publish(PipelineFlushedEvent{CancelledFences: 3})

	select {
	case e := <-flushes:
		if e.CancelledFences != 3 {
			t.Errorf("CancelledFences = %d, want 3", e.CancelledFences)
		}
	case <-time.After(time.Second):
		t.Fatal("flush event not delivered")
	}
	select {
	case e := <-fences:
		t.Fatalf("fence subscriber received %+v", e)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := New()
	got := make(chan NodeStateChangedEvent, 2)

	unsub := bus.Subscribe(func(e NodeStateChangedEvent) { got <- e })
	bus.Publish(NodeStateChangedEvent{Node: "lrme", To: "active"})
	<-got

	unsub()
	bus.Publish(NodeStateChangedEvent{Node: "fdhw", To: "active"})

	select {
	case e := <-got:
		t.Fatalf("received %+v after unsubscribe", e)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestSubscribeUnknownHandler(t *testing.T) {
	unsub := New().Subscribe(func(string) {})
	unsub()
}

func TestNilBusPublish(_ *testing.T) {
	var bus *Bus
	bus.Publish(FenceSignaledEvent{})
}

func TestSubscribeToChannelDropsWhenFull(t *testing.T) {
	bus := New()
	ch := make(chan any, 1)
	defer SubscribeToChannel[PropertyPublishedEvent](bus, ch)()

	bus.Publish(PropertyPublishedEvent{Property: "fd.results"})
	bus.Publish(PropertyPublishedEvent{Property: "lrme.results"})

	select {
	case e := <-ch:
		if _, ok := e.(PropertyPublishedEvent); !ok {
			t.Fatalf("unexpected type %T", e)
		}
	case <-time.After(time.Second):
		t.Fatal("no event forwarded")
	}
}
