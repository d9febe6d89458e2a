// Package agenttest provides in-memory fakes for the agent interfaces so the
// login flow and session registry can be exercised without a real browser.
package agenttest

import (
	"context"
	"sync"
	"time"

	"github.com/shehryarbajwa/promptgate/internal/agent"
)

// Driver is a fake agent.Driver. Each Launch returns a fresh Agent unless
// LaunchErr is set.
type Driver struct {
	mu        sync.Mutex
	LaunchErr error

	// PageDefaults is applied to every page created by launched agents.
	PageDefaults func(*Page)

	Launched []*Agent
	Closed   bool
}

func (d *Driver) Launch(ctx context.Context, headless bool) (agent.Agent, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.LaunchErr != nil {
		return nil, d.LaunchErr
	}
	a := &Agent{Headless: headless, pageDefaults: d.PageDefaults}
	d.Launched = append(d.Launched, a)
	return a, nil
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Closed = true
	return nil
}

// LaunchCount returns how many agents were launched.
func (d *Driver) LaunchCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Launched)
}

// Agent is a fake agent.Agent.
type Agent struct {
	mu            sync.Mutex
	Headless      bool
	NewContextErr error
	pageDefaults  func(*Page)

	Contexts []*Context
	Closed   bool
}

func (a *Agent) NewContext(state []byte) (agent.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.NewContextErr != nil {
		return nil, a.NewContextErr
	}
	c := &Context{RestoredState: state, pageDefaults: a.pageDefaults}
	a.Contexts = append(a.Contexts, c)
	return c, nil
}

func (a *Agent) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Closed = true
	return nil
}

// IsClosed reports whether Close was called.
func (a *Agent) IsClosed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Closed
}

// Context is a fake agent.Context.
type Context struct {
	mu sync.Mutex

	// RestoredState is the snapshot passed to NewContext, if any.
	RestoredState []byte

	// State is returned by StorageState.
	State    []byte
	StateErr error

	pageDefaults func(*Page)

	Pages  []*Page
	Closed bool
}

func (c *Context) NewPage() (agent.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := &Page{}
	if c.pageDefaults != nil {
		c.pageDefaults(p)
	}
	c.Pages = append(c.Pages, p)
	return p, nil
}

func (c *Context) StorageState() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.StateErr != nil {
		return nil, c.StateErr
	}
	if c.State != nil {
		return c.State, nil
	}
	return []byte(`{"cookies":[]}`), nil
}

func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Closed = true
	return nil
}

// Page is a fake agent.Page. Zero value succeeds on every interaction;
// set the error maps or hooks to script failures.
type Page struct {
	mu sync.Mutex

	GotoErr     error
	ClickErr    map[string]error // keyed by button name
	FillErr     map[string]error // keyed by label
	PressErr    error
	SelectorErr error

	// SelectorText is returned by WaitForSelector on success.
	SelectorText string

	// WaitForURLFunc overrides the default immediate success.
	WaitForURLFunc func(pattern string, timeout time.Duration) error

	Steps  []string
	closed bool
}

func (p *Page) record(step string) {
	p.Steps = append(p.Steps, step)
}

func (p *Page) Goto(url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("goto:" + url)
	return p.GotoErr
}

func (p *Page) ClickButton(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("click:" + name)
	return p.ClickErr[name]
}

func (p *Page) FillLabel(label, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("fill:" + label)
	return p.FillErr[label]
}

func (p *Page) Fill(selector, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("fill-selector:" + selector)
	return p.FillErr[selector]
}

func (p *Page) Press(selector, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("press:" + selector + ":" + key)
	return p.PressErr
}

func (p *Page) WaitForSelector(selector string, timeout time.Duration) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("wait-selector:" + selector)
	if p.SelectorErr != nil {
		return "", p.SelectorErr
	}
	return p.SelectorText, nil
}

func (p *Page) WaitForURL(pattern string, timeout time.Duration) error {
	p.mu.Lock()
	fn := p.WaitForURLFunc
	p.record("wait-url:" + pattern)
	p.mu.Unlock()

	if fn != nil {
		return fn(pattern, timeout)
	}
	return nil
}

func (p *Page) URL() string {
	return "https://example.com/"
}

func (p *Page) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// SetClosed marks the page closed without going through Close.
func (p *Page) SetClosed(closed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = closed
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
