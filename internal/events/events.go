package events

import (
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// Event types published by the booking bot.
const (
	TypeBookingCreated   = "booking.created"
	TypeBookingCancelled = "booking.cancelled"
	TypeBookingMoved     = "booking.moved"
)

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// BookingPayload is the payload of the booking events.
type BookingPayload struct {
	BookingID       string    `json:"bookingId,omitempty"`
	CustomerName    string    `json:"customerName,omitempty"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	PartySize       int       `json:"partySize,omitempty"`
	RequiresPayment bool      `json:"requiresPayment,omitempty"`
	Actor           int64     `json:"actor,omitempty"`
}

// NewBookingEvent encodes p as an event of type typ.
func NewBookingEvent(typ string, p BookingPayload) (Event, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: typ, Payload: raw}, nil
}

// Booking decodes the payload of a booking event.
func (e Event) Booking() (BookingPayload, error) {
	var p BookingPayload
	err := json.Unmarshal(e.Payload, &p)
	return p, err
}

// EventHandler reacts to an event.
type EventHandler func(event Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish runs the subscribers of the event type in order and joins their
// errors.
func (b *EventBus) Publish(event Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var errs []error
	for _, handler := range handlers {
		if err := handler(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
