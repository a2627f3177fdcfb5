package web

import (
	"encoding/json"
	"sync"

	"homenotes/state"

	"github.com/rohanthewiz/logger"
)

const sseBuffer = 32

// eventStream forwards bus events to one SSE client as JSON.
// rweb drains ch after the handler returns and stops when ch is closed, so the
// stream lives until the app shuts down or the client stops reading. A client
// that lets the buffer fill up is treated as gone; browsers reconnect on their own.
type eventStream struct {
	ch    chan any
	unsub func()
	quit  chan struct{}

	mu       sync.Mutex
	closed   bool
	quitOnce sync.Once
}

func openEventStream(bus *state.Bus, shutdown <-chan struct{}) *eventStream {
	es := &eventStream{
		ch:   make(chan any, sseBuffer),
		quit: make(chan struct{}),
	}
	es.unsub = bus.Listen(es.forward)
	go func() {
		select {
		case <-shutdown:
		case <-es.quit:
		}
		es.close()
	}()
	return es
}

func (es *eventStream) forward(ev state.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		logger.LogErr(err, "failed to encode event", "type", ev.Type)
		return
	}

	es.mu.Lock()
	defer es.mu.Unlock()
	if es.closed {
		return
	}
	select {
	case es.ch <- string(data):
	default:
		logger.Debug("SSE client stopped reading, closing stream", "type", ev.Type)
		es.quitOnce.Do(func() { close(es.quit) })
	}
}

func (es *eventStream) close() {
	es.mu.Lock()
	if es.closed {
		es.mu.Unlock()
		return
	}
	es.closed = true
	close(es.ch)
	es.mu.Unlock()

	es.unsub()
	logger.Debug("SSE stream closed")
}
