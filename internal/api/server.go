package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shehryarbajwa/promptgate/internal/auth"
	"github.com/shehryarbajwa/promptgate/internal/ratelimit"
)

// SetupRoutes configures all HTTP routes
func (h *Handler) SetupRoutes(gate *auth.Gate, rateLimiter *ratelimit.Limiter, eventServer *EventServer) *mux.Router {
	r := mux.NewRouter()
	r.Use(MetricsMiddleware)

	// Session creation is both authenticated and rate limited: each create
	// launches a browser, so it is the expensive endpoint.
	limited := r.PathPrefix("").Subrouter()
	limited.Use(AuthMiddleware(gate), RateLimitMiddleware(rateLimiter, 30))
	limited.HandleFunc("/session", h.CreateSession).Methods("POST")

	// Remaining mutating endpoints (authenticated)
	authed := r.PathPrefix("").Subrouter()
	authed.Use(AuthMiddleware(gate))
	authed.HandleFunc("/chat", h.Chat).Methods("POST")
	authed.HandleFunc("/session/{id}", h.DeleteSession).Methods("DELETE")

	// Event stream (does its own auth: token may arrive as query param)
	r.HandleFunc("/session/{id}/events", func(w http.ResponseWriter, req *http.Request) {
		vars := mux.Vars(req)
		eventServer.HandleEvents(w, req, vars["id"])
	}).Methods("GET")

	// Operational endpoints
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	return r
}
