package agent

import (
	"context"
	"sync"
	"time"
)

// Driver launches automation agents. Implementations wrap a concrete
// browser-automation backend; the rest of the system only sees these
// interfaces so the login flow can be driven against a fake in tests.
type Driver interface {
	// Launch starts a new agent instance. A headless agent has no visible
	// display surface and is suitable for unattended operation.
	Launch(ctx context.Context, headless bool) (Agent, error)

	// Close releases driver-level resources. Agents launched earlier must
	// be closed individually before this is called.
	Close() error
}

// Agent is one running automation instance.
type Agent interface {
	// NewContext creates an isolated browsing context. A non-nil state is
	// a storage-state snapshot previously captured by Context.StorageState
	// and is replayed into the fresh context to skip re-authentication.
	NewContext(state []byte) (Context, error)
	Close() error
}

// Context is an isolated browsing context within an agent.
type Context interface {
	NewPage() (Page, error)

	// StorageState captures the serializable authenticated state of this
	// context (cookies, local storage) as an opaque snapshot.
	StorageState() ([]byte, error)
	Close() error
}

// Page is an active page within a context. Interaction methods block until
// the remote agent responds; each failure names the step that broke.
type Page interface {
	Goto(url string) error

	// ClickButton clicks the button with the given accessible name.
	ClickButton(name string) error

	// FillLabel fills the input identified by its accessible label.
	FillLabel(label, value string) error

	// Fill and Press address elements by selector. Used by the prompt relay.
	Fill(selector, value string) error
	Press(selector, key string) error

	// WaitForSelector waits for an element to appear and returns its text.
	WaitForSelector(selector string, timeout time.Duration) (string, error)

	// WaitForURL blocks until the page URL matches the glob pattern.
	// A timeout <= 0 waits indefinitely; cancel via the launch context.
	WaitForURL(pattern string, timeout time.Duration) error

	URL() string
	IsClosed() bool
	Close() error
}

// Handle bundles the agent, context and page of one authenticated session
// into a single owned unit that closes exactly once.
type Handle struct {
	Agent    Agent
	Context  Context
	Page     Page
	Headless bool

	closeOnce sync.Once
	closeErr  error
}

// NewHandle wraps live agent resources into an owned handle.
func NewHandle(a Agent, c Context, p Page, headless bool) *Handle {
	return &Handle{Agent: a, Context: c, Page: p, Headless: headless}
}

// Close releases page, context and agent in order. Safe to call more than
// once; only the first call does work. Close failures of inner resources do
// not stop the outer ones from being released.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		if h.Page != nil {
			if err := h.Page.Close(); err != nil && h.closeErr == nil {
				h.closeErr = err
			}
		}
		if h.Context != nil {
			if err := h.Context.Close(); err != nil && h.closeErr == nil {
				h.closeErr = err
			}
		}
		if h.Agent != nil {
			if err := h.Agent.Close(); err != nil && h.closeErr == nil {
				h.closeErr = err
			}
		}
	})
	return h.closeErr
}
