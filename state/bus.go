package state

import (
	"sync"

	"github.com/rohanthewiz/logger"
)

// Event types published on the Bus.
const (
	EventNotesChanged      = "notes-changed"
	EventCategoriesChanged = "categories-changed"
	EventShoppingChanged   = "shopping-changed"
	EventSharedNoteUpdated = "shared-note-updated"
	EventPresenceChanged   = "presence-changed"
	EventMealPlanChanged   = "meal-plan-changed"
	EventToast             = "toast"
	EventSyncStatus        = "sync-status"
)

type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Toast is the payload of a toast event.
type Toast struct {
	Message string `json:"message"`
	Level   string `json:"level"` // info | error
}

// Bus fans events out to listeners. Listeners run synchronously on the publisher's
// goroutine and must not block.
type Bus struct {
	mu        sync.RWMutex
	listeners map[uint64]func(Event)
	nextID    uint64
}

func NewBus() *Bus {
	return &Bus{listeners: map[uint64]func(Event){}}
}

// Listen registers fn and returns a function that removes it.
func (b *Bus) Listen(fn func(Event)) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.listeners[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	}
}

func (b *Bus) Emit(typ string, payload any) {
	b.mu.RLock()
	fns := make([]func(Event), 0, len(b.listeners))
	for _, fn := range b.listeners {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	ev := Event{Type: typ, Payload: payload}
	for _, fn := range fns {
		fn(ev)
	}
	logger.Debug("Event emitted", "type", typ, "listeners", len(fns))
}

// Toast emits a transient user-facing message.
func (b *Bus) Toast(level, message string) {
	b.Emit(EventToast, Toast{Message: message, Level: level})
}
