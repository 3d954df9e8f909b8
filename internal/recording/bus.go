package recording

import (
	"log"
	"sync"

	"github.com/sideassist/sideassist/internal/protocol"
)

// EventType distinguishes bus events.
type EventType string

const (
	// EventStatus is published after every transition.
	EventStatus EventType = "status"

	// EventCompleted is published once per successful Stop, carrying the
	// persisted action.
	EventCompleted EventType = "completed"
)

// Event is one recording transition.
type Event struct {
	Type   EventType
	Status protocol.RecordingStatus
	Action *protocol.CustomAction
}

// subscriberBuffer bounds how far a subscriber may lag before events to it
// are dropped.
const subscriberBuffer = 16

// Bus fans events out to subscribers. Publish never blocks: a subscriber
// whose buffer is full misses the event.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	next   int
	logger *log.Logger
}

// NewBus creates an empty bus.
func NewBus(logger *log.Logger) *Bus {
	return &Bus{
		subs:   make(map[int]chan Event),
		logger: logger,
	}
}

// Subscribe registers a subscriber. The returned function unsubscribes and
// closes the channel; it is safe to call more than once.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Event, subscriberBuffer)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// Publish delivers ev to every subscriber without blocking.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.logger.Printf("recording: subscriber %d lagging, dropped %s event", id, ev.Type)
		}
	}
}

// Len returns the number of subscribers.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
