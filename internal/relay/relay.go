// Package relay submits prompts through an authenticated session's page and
// scrapes the response. The registry never constructs a Relay itself; the
// implementation is injected so it can evolve independently of the session
// lifecycle and be swapped for a fake in tests.
package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shehryarbajwa/promptgate/internal/agent"
)

// ErrPageGone indicates the session's page is closed or crashed; retrying is
// pointless and the caller should delete the session.
var ErrPageGone = errors.New("session page is no longer navigable")

// ErrResponseTimeout indicates the target UI produced no response in time;
// the session itself may still be healthy and the caller may retry.
var ErrResponseTimeout = errors.New("timed out waiting for a response")

// Relay sends one prompt through a session page. Implementations must not
// mutate the session registry.
type Relay interface {
	Send(ctx context.Context, page agent.Page, prompt string) (string, error)
}

const (
	defaultComposerSelector = "textarea"
	defaultResponseSelector = "div.response"
	defaultResponseTimeout  = 120 * time.Second
)

// UIRelay drives the target site's chat composer directly: fill the prompt,
// submit, wait for the response element. The selectors track the target
// site's markup and will need adjusting when it changes.
type UIRelay struct {
	ComposerSelector string
	ResponseSelector string
	Timeout          time.Duration
}

// NewUIRelay returns a relay with the default selectors and timeout.
func NewUIRelay() *UIRelay {
	return &UIRelay{
		ComposerSelector: defaultComposerSelector,
		ResponseSelector: defaultResponseSelector,
		Timeout:          defaultResponseTimeout,
	}
}

// Send relays one prompt and returns the scraped response text.
func (r *UIRelay) Send(ctx context.Context, page agent.Page, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if page.IsClosed() {
		return "", ErrPageGone
	}

	if err := page.Fill(r.ComposerSelector, prompt); err != nil {
		return "", r.classify("failed to enter prompt", page, err)
	}
	if err := page.Press(r.ComposerSelector, "Enter"); err != nil {
		return "", r.classify("failed to submit prompt", page, err)
	}

	text, err := page.WaitForSelector(r.ResponseSelector, r.Timeout)
	if err != nil {
		if page.IsClosed() {
			return "", fmt.Errorf("%w: %v", ErrPageGone, err)
		}
		return "", fmt.Errorf("%w: %v", ErrResponseTimeout, err)
	}

	return text, nil
}

// classify distinguishes a dead page from a transient interaction failure.
func (r *UIRelay) classify(msg string, page agent.Page, err error) error {
	if page.IsClosed() {
		return fmt.Errorf("%w: %v", ErrPageGone, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
