package services

import (
	"log"
	"sync"
)

// Circulation event names
const (
	EventLoanCreated          = "loan.created"
	EventLoanReturned         = "loan.returned"
	EventLoanRenewed          = "loan.renewed"
	EventFineSettled          = "fine.settled"
	EventReservationCreated   = "reservation.created"
	EventReservationCancelled = "reservation.cancelled"
	EventReservationFulfilled = "reservation.fulfilled"
)

// Event is one circulation change pushed to live subscribers
type Event struct {
	Name     string      `json:"event"`
	MemberID uint        `json:"member_id"`
	Data     interface{} `json:"data"`
}

// Subscriber is a connected event stream. Desk subscribers receive every
// event; the others only events about their own member record.
type Subscriber struct {
	ID       string
	MemberID uint
	Desk     bool
	Channel  chan Event
}

// EventHub fans circulation events out to stream subscribers.
// A nil hub drops everything.
type EventHub struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	closed      bool
}

// NewEventHub creates an empty hub
func NewEventHub() *EventHub {
	return &EventHub{subscribers: make(map[string]*Subscriber)}
}

// Register adds a subscriber. On a closed hub the subscriber's channel is
// closed right away so its stream ends.
func (h *EventHub) Register(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(sub.Channel)
		return
	}
	h.subscribers[sub.ID] = sub
	log.Printf("📡 Event stream opened: %s (member=%d, desk=%v) | total=%d",
		sub.ID, sub.MemberID, sub.Desk, len(h.subscribers))
}

// Unregister removes a subscriber and closes its channel
func (h *EventHub) Unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subscribers[id]; ok {
		close(sub.Channel)
		delete(h.subscribers, id)
		log.Printf("📡 Event stream closed: %s | total=%d", id, len(h.subscribers))
	}
}

// Publish delivers event to the desk and to the member it concerns.
// Slow subscribers with a full channel miss the event.
func (h *EventHub) Publish(event Event) {
	if h == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subscribers {
		if !sub.Desk && sub.MemberID != event.MemberID {
			continue
		}
		select {
		case sub.Channel <- event:
		default:
			log.Printf("⚠️ Event channel full for %s, skipping %s", sub.ID, event.Name)
		}
	}
}

// Close ends every open stream and refuses new ones. Called on shutdown so
// the server does not wait on long-lived connections.
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subscribers {
		close(sub.Channel)
		delete(h.subscribers, id)
	}
	log.Println("📡 Event hub closed")
}

// Count returns the number of open streams
func (h *EventHub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
