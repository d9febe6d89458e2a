package api

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/shehryarbajwa/promptgate/internal/auth"
	"github.com/shehryarbajwa/promptgate/internal/session"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// EventServer streams a session's lifecycle events over a websocket.
type EventServer struct {
	registry *session.Registry
	gate     *auth.Gate
}

// NewEventServer creates a new event server.
func NewEventServer(registry *session.Registry, gate *auth.Gate) *EventServer {
	return &EventServer{
		registry: registry,
		gate:     gate,
	}
}

// HandleEvents handles GET /session/{id}/events. Browsers cannot set custom
// headers on websocket handshakes, so the token is also accepted as a query
// parameter.
func (s *EventServer) HandleEvents(w http.ResponseWriter, r *http.Request, sessionID string) {
	token := r.Header.Get(auth.HeaderName)
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if err := s.gate.Authorize(token); err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	if _, err := s.registry.Get(sessionID); err != nil {
		writeError(w, http.StatusNotFound, "Invalid session id")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade connection: %v", err)
		return
	}
	defer conn.Close()

	events, cancel := s.registry.Hub().Subscribe(sessionID)
	defer cancel()

	// Drain the client side so we notice when it goes away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case evt := <-events:
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
			if evt.Type == session.EventClosed {
				return
			}
		case <-done:
			return
		}
	}
}
