package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/shehryarbajwa/promptgate/internal/agent"
	"github.com/shehryarbajwa/promptgate/internal/login"
	"github.com/shehryarbajwa/promptgate/internal/metrics"
)

// DefaultMaxSessions caps live sessions when no explicit limit is configured.
const DefaultMaxSessions = 10

// ErrNotFound is returned for session ids that are unknown or already deleted.
var ErrNotFound = errors.New("session not found")

// ErrTooManySessions is returned when the live-session cap is reached.
var ErrTooManySessions = errors.New("maximum number of live sessions reached")

// Authenticator produces an authenticated agent handle. Implemented by the
// login orchestrator; faked in tests.
type Authenticator interface {
	Login(ctx context.Context) (*agent.Handle, error)
}

// Session is one live authenticated automation context owned by the registry.
type Session struct {
	ID        string
	Handle    *agent.Handle
	CreatedAt time.Time
}

// Registry is the process-wide mapping from session id to live agent
// resources. The mutex guards only the map itself; login and resource
// teardown always happen outside the lock so one slow agent never blocks
// other sessions' requests.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	auth  Authenticator
	slots *semaphore.Weighted
	hub   *Hub
}

// NewRegistry creates an empty registry. maxSessions <= 0 applies the default.
func NewRegistry(auth Authenticator, maxSessions int64) *Registry {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	return &Registry{
		sessions: make(map[string]*Session),
		auth:     auth,
		slots:    semaphore.NewWeighted(maxSessions),
		hub:      NewHub(),
	}
}

// Hub exposes the session event stream for the debug websocket.
func (r *Registry) Hub() *Hub {
	return r.hub
}

// Create logs in through the authenticator and registers the resulting
// handle under a freshly minted id. Ids are never reused. Concurrent calls
// produce independent sessions.
func (r *Registry) Create(ctx context.Context) (string, error) {
	if !r.slots.TryAcquire(1) {
		return "", ErrTooManySessions
	}

	handle, err := r.auth.Login(ctx)
	if err != nil {
		r.slots.Release(1)
		metrics.LoginFailuresTotal.WithLabelValues(loginFailureReason(err)).Inc()
		return "", err
	}

	sess := &Session{
		ID:        uuid.New().String(),
		Handle:    handle,
		CreatedAt: time.Now(),
	}

	r.mu.Lock()
	r.sessions[sess.ID] = sess
	r.mu.Unlock()

	metrics.SessionsCreatedTotal.Inc()
	metrics.SessionsLive.Inc()
	r.hub.Publish(Event{SessionID: sess.ID, Type: EventCreated, At: sess.CreatedAt})

	return sess.ID, nil
}

// Get looks up a session without removing it.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sess, nil
}

// Delete removes the session and releases its agent resources exactly once.
// Close failures are logged, not returned: once the entry is popped the id is
// gone and a second Delete reports ErrNotFound.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok {
		return ErrNotFound
	}

	if err := sess.Handle.Close(); err != nil {
		log.Printf("Warning: failed to close session %s: %v", id, err)
	}

	r.slots.Release(1)
	metrics.SessionsLive.Dec()
	r.hub.Publish(Event{SessionID: id, Type: EventClosed, At: time.Now()})

	return nil
}

// DrainAll closes every remaining session at process shutdown. One stuck
// resource must not block the sweep, so individual close failures are logged
// and the loop continues. Calling it on an empty registry is a no-op.
func (r *Registry) DrainAll() {
	r.mu.Lock()
	remaining := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for id, sess := range remaining {
		if err := sess.Handle.Close(); err != nil {
			log.Printf("Warning: failed to close session %s during drain: %v", id, err)
		}
		r.slots.Release(1)
		metrics.SessionsLive.Dec()
		r.hub.Publish(Event{SessionID: id, Type: EventClosed, At: time.Now()})
	}

	if len(remaining) > 0 {
		log.Printf("Drained %d session(s)", len(remaining))
	}
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// loginFailureReason buckets a login error for the failure counter.
func loginFailureReason(err error) string {
	var stepErr *login.UIStepError
	switch {
	case errors.Is(err, login.ErrMissingCredentials):
		return "config"
	case errors.Is(err, login.ErrVerificationTimeout):
		return "verification_timeout"
	case errors.As(err, &stepErr):
		return "ui"
	default:
		return "other"
	}
}
