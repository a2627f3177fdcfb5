package web

import (
	"testing"
	"time"

	"homenotes/state"
)

func drain(t *testing.T, ch chan any) int {
	t.Helper()
	n := 0
	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return n
			}
			n++
		case <-timeout:
			t.Fatalf("stream not closed after %d events", n)
		}
	}
}

func TestEventStreamClosesOnShutdown(t *testing.T) {
	bus := state.NewBus()
	shutdown := make(chan struct{})
	es := openEventStream(bus, shutdown)

	bus.Emit(state.EventNotesChanged, nil)
	close(shutdown)
	if n := drain(t, es.ch); n != 1 {
		t.Errorf("expected the buffered event before close, got %d", n)
	}

	// The listener is gone, so later emits are harmless.
	bus.Emit(state.EventNotesChanged, nil)
}

func TestEventStreamClosesWhenClientStopsReading(t *testing.T) {
	bus := state.NewBus()
	es := openEventStream(bus, make(chan struct{}))

	for i := 0; i < sseBuffer+1; i++ {
		bus.Emit(state.EventShoppingChanged, i)
	}
	if n := drain(t, es.ch); n != sseBuffer {
		t.Errorf("expected %d buffered events, got %d", sseBuffer, n)
	}
	bus.Emit(state.EventShoppingChanged, nil)
}
