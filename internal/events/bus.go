// Package events provides a simple publish-subscribe event bus for SSE delivery.
package events

import (
	"sync"
	"time"

	"github.com/micro-nova/codecd/internal/codec"
	"github.com/micro-nova/codecd/internal/irq"
)

const subBufferSize = 8

// Event types.
const (
	TypeStatus      = "status"
	TypeJack        = "jack"
	TypePortError   = "port_error"
	TypeCalibration = "calibration"
)

// Event is one notification delivered to subscribers.
type Event struct {
	Type   string           `json:"type"`
	Status *codec.Status    `json:"status,omitempty"`
	Jack   *codec.JackState `json:"jack,omitempty"`
	Port   *irq.PortError   `json:"port,omitempty"`
	Msg    string           `json:"msg,omitempty"`
	At     time.Time        `json:"at"`
}

// Bus is a non-blocking publish-subscribe event bus.
// Subscribers that are slow to consume events will have events dropped rather
// than blocking publishers.
type Bus struct {
	mu   sync.Mutex
	subs map[string]chan Event
	now  func() time.Time
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[string]chan Event),
		now:  time.Now,
	}
}

// Subscribe creates a new subscription with the given ID.
// The returned channel will receive events.
// Call Unsubscribe when done to clean up.
func (b *Bus) Subscribe(id string) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, subBufferSize)
	b.subs[id] = ch
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish sends an event to all subscribers.
// If a subscriber's channel is full, the event is dropped (non-blocking).
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ev.At.IsZero() {
		ev.At = b.now()
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			// Drop if subscriber is slow
		}
	}
}

// Report implements codec.JackReporter. It never blocks, so it is safe to
// call with the codec lock held.
func (b *Bus) Report(state codec.JackState) {
	b.Publish(Event{Type: TypeJack, Jack: &state})
}

// PortError publishes a bus health port error.
func (b *Bus) PortError(pe irq.PortError) {
	b.Publish(Event{Type: TypePortError, Port: &pe})
}

// SubscriberCount returns the current number of subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
