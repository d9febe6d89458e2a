package login

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/pquerna/otp/totp"

	"github.com/shehryarbajwa/promptgate/internal/agent"
)

const (
	defaultTargetURL    = "https://chat.openai.com/"
	verificationTimeout = 60 * time.Second
)

// ErrMissingCredentials indicates a deployment misconfiguration: the service
// cannot log in without email and password in the environment.
var ErrMissingCredentials = errors.New("OPENAI_EMAIL and OPENAI_PASSWORD environment variables are required")

// ErrVerificationTimeout indicates the automated second-factor path did not
// reach the post-login URL in time.
var ErrVerificationTimeout = errors.New("timed out waiting for login verification")

// UIStepError reports which interaction with the target site's UI failed.
type UIStepError struct {
	Step string
	Err  error
}

func (e *UIStepError) Error() string {
	return fmt.Sprintf("login step %q failed: %v", e.Step, e.Err)
}

func (e *UIStepError) Unwrap() error { return e.Err }

// Credentials are read from the environment on every login, so rotating them
// takes effect on the next session creation without a restart.
type Credentials struct {
	Email     string
	Password  string
	MFASecret string
}

// CredentialsFromEnv reads and validates the credential environment variables.
func CredentialsFromEnv() (Credentials, error) {
	creds := Credentials{
		Email:     os.Getenv("OPENAI_EMAIL"),
		Password:  os.Getenv("OPENAI_PASSWORD"),
		MFASecret: os.Getenv("OPENAI_MFA_SECRET"),
	}
	if creds.Email == "" || creds.Password == "" {
		return Credentials{}, ErrMissingCredentials
	}
	return creds, nil
}

// Orchestrator drives an automation agent through the target site's login
// flow and hands back a ready-to-use authenticated handle. It keeps no state
// between calls.
type Orchestrator struct {
	driver    agent.Driver
	targetURL string
}

// New creates an orchestrator over the given driver. TARGET_URL overrides the
// default site root.
func New(driver agent.Driver) *Orchestrator {
	targetURL := os.Getenv("TARGET_URL")
	if targetURL == "" {
		targetURL = defaultTargetURL
	}
	return &Orchestrator{driver: driver, targetURL: targetURL}
}

// Login performs the full authentication flow.
//
// With a second-factor secret configured the flow completes unattended in a
// headless agent. Without one, a visible agent is launched so a human can
// finish the second factor; once the post-login URL is reached the
// authenticated storage state is captured and replayed into a fresh headless
// agent, so no session keeps a visible window alive.
//
// Any failure closes every resource launched by this attempt before the
// error is returned.
func (o *Orchestrator) Login(ctx context.Context) (*agent.Handle, error) {
	creds, err := CredentialsFromEnv()
	if err != nil {
		return nil, err
	}

	automated := creds.MFASecret != ""

	ag, err := o.driver.Launch(ctx, automated)
	if err != nil {
		return nil, fmt.Errorf("failed to launch agent: %w", err)
	}

	bc, err := ag.NewContext(nil)
	if err != nil {
		ag.Close()
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	page, err := bc.NewPage()
	if err != nil {
		bc.Close()
		ag.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	handle := agent.NewHandle(ag, bc, page, automated)

	steps := []struct {
		name string
		run  func() error
	}{
		{"open site", func() error { return page.Goto(o.targetURL) }},
		{"open login", func() error { return page.ClickButton("Log in") }},
		{"fill email", func() error { return page.FillLabel("Email address", creds.Email) }},
		{"submit email", func() error { return page.ClickButton("Continue") }},
		{"fill password", func() error { return page.FillLabel("Password", creds.Password) }},
		{"submit password", func() error { return page.ClickButton("Continue") }},
	}

	for _, step := range steps {
		if err := step.run(); err != nil {
			handle.Close()
			return nil, &UIStepError{Step: step.name, Err: err}
		}
	}

	if automated {
		if err := o.verifyWithCode(page, creds.MFASecret); err != nil {
			handle.Close()
			return nil, err
		}
		return handle, nil
	}

	return o.graduateManualLogin(ctx, handle)
}

// verifyWithCode completes the second factor with a time-based one-time code
// and waits for the post-login URL.
func (o *Orchestrator) verifyWithCode(page agent.Page, secret string) error {
	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		return fmt.Errorf("failed to generate verification code: %w", err)
	}

	if err := page.FillLabel("Verification code", code); err != nil {
		return &UIStepError{Step: "fill verification code", Err: err}
	}
	if err := page.ClickButton("Verify"); err != nil {
		return &UIStepError{Step: "submit verification code", Err: err}
	}

	if err := page.WaitForURL(o.postLoginPattern(), verificationTimeout); err != nil {
		return fmt.Errorf("%w: %v", ErrVerificationTimeout, err)
	}
	return nil
}

// graduateManualLogin waits, with no deadline, for a human to finish the
// second factor in the visible window, then moves the authenticated state
// into a fresh headless agent. A visible window is a poor long-term resource,
// so the interactive agent is closed as soon as its state is captured.
func (o *Orchestrator) graduateManualLogin(ctx context.Context, interactive *agent.Handle) (*agent.Handle, error) {
	log.Println("Complete the login flow in the opened browser window…")

	if err := interactive.Page.WaitForURL(o.postLoginPattern(), 0); err != nil {
		interactive.Close()
		return nil, &UIStepError{Step: "wait for manual login", Err: err}
	}

	state, err := interactive.Context.StorageState()
	if err != nil {
		interactive.Close()
		return nil, fmt.Errorf("failed to capture storage state: %w", err)
	}

	if err := interactive.Close(); err != nil {
		log.Printf("Warning: failed to close interactive agent: %v", err)
	}

	ag, err := o.driver.Launch(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to launch headless agent: %w", err)
	}

	bc, err := ag.NewContext(state)
	if err != nil {
		ag.Close()
		return nil, fmt.Errorf("failed to restore storage state: %w", err)
	}

	page, err := bc.NewPage()
	if err != nil {
		bc.Close()
		ag.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	return agent.NewHandle(ag, bc, page, true), nil
}

func (o *Orchestrator) postLoginPattern() string {
	return o.targetURL + "?*"
}
