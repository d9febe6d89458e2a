package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/shehryarbajwa/promptgate/internal/login"
	"github.com/shehryarbajwa/promptgate/internal/metrics"
	"github.com/shehryarbajwa/promptgate/internal/relay"
	"github.com/shehryarbajwa/promptgate/internal/session"
	"github.com/shehryarbajwa/promptgate/pkg/models"
)

// Handler holds dependencies for HTTP handlers
type Handler struct {
	registry *session.Registry
	relay    relay.Relay
}

// NewHandler creates a new HTTP handler
func NewHandler(registry *session.Registry, rly relay.Relay) *Handler {
	return &Handler{
		registry: registry,
		relay:    rly,
	}
}

// CreateSession handles POST /session
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	id, err := h.registry.Create(r.Context())
	if err != nil {
		var stepErr *login.UIStepError
		switch {
		case errors.Is(err, login.ErrMissingCredentials):
			writeError(w, http.StatusInternalServerError, err.Error())
		case errors.Is(err, session.ErrTooManySessions):
			writeError(w, http.StatusTooManyRequests, err.Error())
		case errors.Is(err, login.ErrVerificationTimeout), errors.As(err, &stepErr):
			writeError(w, http.StatusBadGateway, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, models.CreateSessionResponse{SessionID: id})
}

// Chat handles POST /chat
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	sess, err := h.registry.Get(req.SessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, "Invalid session id")
		return
	}

	response, err := h.relay.Send(r.Context(), sess.Handle.Page, req.Prompt)
	if err != nil {
		switch {
		case errors.Is(err, relay.ErrPageGone):
			metrics.PromptsTotal.WithLabelValues("page_gone").Inc()
			writeError(w, http.StatusBadGateway, err.Error())
		case errors.Is(err, relay.ErrResponseTimeout):
			metrics.PromptsTotal.WithLabelValues("timeout").Inc()
			writeError(w, http.StatusGatewayTimeout, err.Error())
		default:
			metrics.PromptsTotal.WithLabelValues("error").Inc()
			writeError(w, http.StatusBadGateway, err.Error())
		}
		return
	}

	metrics.PromptsTotal.WithLabelValues("ok").Inc()
	h.registry.Hub().Publish(session.Event{
		SessionID: req.SessionID,
		Type:      session.EventPrompt,
		At:        time.Now(),
	})

	writeJSON(w, http.StatusOK, models.ChatResponse{Response: response})
}

// DeleteSession handles DELETE /session/{id}
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	if err := h.registry.Delete(id); err != nil {
		writeError(w, http.StatusNotFound, "Invalid session id")
		return
	}

	writeJSON(w, http.StatusOK, models.DeleteSessionResponse{Status: "closed"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Warning: failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, models.ErrorResponse{Error: msg})
}
