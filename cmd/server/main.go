package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/shehryarbajwa/promptgate/internal/agent"
	"github.com/shehryarbajwa/promptgate/internal/api"
	"github.com/shehryarbajwa/promptgate/internal/auth"
	"github.com/shehryarbajwa/promptgate/internal/login"
	"github.com/shehryarbajwa/promptgate/internal/ratelimit"
	"github.com/shehryarbajwa/promptgate/internal/relay"
	"github.com/shehryarbajwa/promptgate/internal/session"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	log.Println("Starting Promptgate...")

	driver, err := newDriver()
	if err != nil {
		log.Fatalf("Failed to create agent driver: %v", err)
	}
	log.Println("✓ Agent driver initialized")

	orchestrator := login.New(driver)
	registry := session.NewRegistry(orchestrator, maxSessions())
	log.Println("✓ Session registry initialized")

	gate, err := auth.NewGate()
	if err != nil {
		log.Fatalf("Failed to generate auth token: %v", err)
	}
	// The startup log is the only place the token is ever shown.
	log.Printf("🔑 Auth token: %s", gate.Token())

	rateLimiter := ratelimit.NewLimiter(30, 5)
	log.Println("✓ Rate limiter initialized (30 session creates/hour per client)")

	handler := api.NewHandler(registry, relay.NewUIRelay())
	eventServer := api.NewEventServer(registry, gate)
	router := handler.SetupRoutes(gate, rateLimiter, eventServer)
	log.Println("✓ HTTP routes configured")

	addr := ":" + port()

	// WriteTimeout stays 0: /chat blocks on the target UI and a manual
	// login can hold /session open indefinitely.
	srv := &http.Server{
		Addr:        addr,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in background
	go func() {
		log.Printf("🚀 Server starting on http://localhost%s", addr)
		log.Println("📍 POST /session, POST /chat, DELETE /session/{id}")
		log.Printf("🔐 Mutating requests require the %s header", auth.HeaderName)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("\n⏳ Shutting down server gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Warning: server forced to shutdown: %v", err)
	}

	registry.DrainAll()
	log.Println("✓ All sessions drained")

	if err := driver.Close(); err != nil {
		log.Printf("Warning: failed to close agent driver: %v", err)
	}

	log.Println("✅ Server stopped cleanly")
}

// newDriver builds the agent driver selected by AGENT_DRIVER.
func newDriver() (agent.Driver, error) {
	switch os.Getenv("AGENT_DRIVER") {
	case "docker":
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		log.Println("⏳ Ensuring Chrome image is available...")
		return agent.NewDockerDriver(ctx)
	default:
		return agent.NewPlaywrightDriver()
	}
}

func maxSessions() int64 {
	if v := os.Getenv("MAX_SESSIONS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			return n
		}
		log.Printf("Warning: invalid MAX_SESSIONS %q, using default", v)
	}
	return session.DefaultMaxSessions
}

func port() string {
	if v := os.Getenv("PORT"); v != "" {
		return v
	}
	return "8080"
}
