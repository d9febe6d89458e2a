package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/playwright-community/playwright-go"
)

// PlaywrightDriver launches Chromium instances through a local Playwright
// runtime. This is the default driver.
type PlaywrightDriver struct {
	pw *playwright.Playwright
}

// NewPlaywrightDriver installs (if needed) and starts the Playwright runtime.
func NewPlaywrightDriver() (*PlaywrightDriver, error) {
	opts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}

	if err := playwright.Install(opts); err != nil {
		return nil, fmt.Errorf("failed to install playwright: %w", err)
	}

	pw, err := playwright.Run(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	return &PlaywrightDriver{pw: pw}, nil
}

// Launch starts a Chromium instance in the requested visibility mode.
func (d *PlaywrightDriver) Launch(ctx context.Context, headless bool) (Agent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	browser, err := d.pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(headless),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	return &playwrightAgent{browser: browser}, nil
}

// Close stops the Playwright runtime.
func (d *PlaywrightDriver) Close() error {
	if err := d.pw.Stop(); err != nil {
		return fmt.Errorf("failed to stop playwright: %w", err)
	}
	return nil
}

type playwrightAgent struct {
	browser playwright.Browser
}

func (a *playwrightAgent) NewContext(state []byte) (Context, error) {
	opts := playwright.BrowserNewContextOptions{}

	// Playwright restores storage state from a file, so a captured snapshot
	// is round-tripped through a temp file that lives only for this call.
	if state != nil {
		f, err := os.CreateTemp("", "agent-state-*.json")
		if err != nil {
			return nil, fmt.Errorf("failed to stage storage state: %w", err)
		}
		defer os.Remove(f.Name())

		if _, err := f.Write(state); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to stage storage state: %w", err)
		}
		if err := f.Close(); err != nil {
			return nil, fmt.Errorf("failed to stage storage state: %w", err)
		}
		opts.StorageStatePath = playwright.String(f.Name())
	}

	bc, err := a.browser.NewContext(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create context: %w", err)
	}
	return &playwrightContext{ctx: bc}, nil
}

func (a *playwrightAgent) Close() error {
	return a.browser.Close()
}

type playwrightContext struct {
	ctx playwright.BrowserContext
}

func (c *playwrightContext) NewPage() (Page, error) {
	page, err := c.ctx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	return &playwrightPage{page: page}, nil
}

func (c *playwrightContext) StorageState() ([]byte, error) {
	state, err := c.ctx.StorageState()
	if err != nil {
		return nil, fmt.Errorf("failed to capture storage state: %w", err)
	}
	return json.Marshal(state)
}

func (c *playwrightContext) Close() error {
	return c.ctx.Close()
}

type playwrightPage struct {
	page playwright.Page
}

func (p *playwrightPage) Goto(url string) error {
	if _, err := p.page.Goto(url); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

func (p *playwrightPage) ClickButton(name string) error {
	return p.page.GetByRole(*playwright.AriaRoleButton,
		playwright.PageGetByRoleOptions{Name: name}).Click()
}

func (p *playwrightPage) FillLabel(label, value string) error {
	return p.page.GetByLabel(label).Fill(value)
}

func (p *playwrightPage) Fill(selector, value string) error {
	return p.page.Fill(selector, value)
}

func (p *playwrightPage) Press(selector, key string) error {
	return p.page.Press(selector, key)
}

func (p *playwrightPage) WaitForSelector(selector string, timeout time.Duration) (string, error) {
	element, err := p.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return "", err
	}
	return element.TextContent()
}

func (p *playwrightPage) WaitForURL(pattern string, timeout time.Duration) error {
	// Playwright treats timeout 0 as "wait forever", which is exactly the
	// manual-login contract.
	ms := 0.0
	if timeout > 0 {
		ms = float64(timeout.Milliseconds())
	}
	return p.page.WaitForURL(pattern, playwright.PageWaitForURLOptions{
		Timeout: playwright.Float(ms),
	})
}

func (p *playwrightPage) URL() string {
	return p.page.URL()
}

func (p *playwrightPage) IsClosed() bool {
	return p.page.IsClosed()
}

func (p *playwrightPage) Close() error {
	return p.page.Close()
}
