package session

import (
	"sync"
	"time"
)

// Event types published on the hub.
const (
	EventCreated = "created"
	EventPrompt  = "prompt"
	EventClosed  = "closed"
)

// Event is one session lifecycle notification.
type Event struct {
	SessionID string    `json:"session_id"`
	Type      string    `json:"type"`
	At        time.Time `json:"at"`
	Detail    string    `json:"detail,omitempty"`
}

// Hub fans session events out to websocket subscribers. Delivery is best
// effort: a subscriber that stops draining its channel loses events rather
// than blocking publishers.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[chan Event]struct{}),
	}
}

// Subscribe registers interest in one session's events. The returned cancel
// function must be called to release the subscription.
func (h *Hub) Subscribe(sessionID string) (<-chan Event, func()) {
	ch := make(chan Event, 16)

	h.mu.Lock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[chan Event]struct{})
	}
	h.subs[sessionID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[sessionID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, sessionID)
			}
		}
		h.mu.Unlock()
	}

	return ch, cancel
}

// Publish delivers an event to the session's subscribers.
func (h *Hub) Publish(evt Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs[evt.SessionID] {
		select {
		case ch <- evt:
		default:
		}
	}
}
