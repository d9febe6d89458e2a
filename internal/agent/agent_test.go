package agent

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingAgent struct {
	closes int
	err    error
}

func (a *countingAgent) NewContext(state []byte) (Context, error) { return nil, nil }
func (a *countingAgent) Close() error {
	a.closes++
	return a.err
}

type countingContext struct {
	closes int
	err    error
}

func (c *countingContext) NewPage() (Page, error)        { return nil, nil }
func (c *countingContext) StorageState() ([]byte, error) { return nil, nil }
func (c *countingContext) Close() error {
	c.closes++
	return c.err
}

type countingPage struct {
	closes int
	err    error
}

func (p *countingPage) Goto(string) error              { return nil }
func (p *countingPage) ClickButton(string) error       { return nil }
func (p *countingPage) FillLabel(string, string) error { return nil }
func (p *countingPage) Fill(string, string) error      { return nil }
func (p *countingPage) Press(string, string) error     { return nil }
func (p *countingPage) WaitForSelector(string, time.Duration) (string, error) {
	return "", nil
}
func (p *countingPage) WaitForURL(string, time.Duration) error { return nil }
func (p *countingPage) URL() string                            { return "" }
func (p *countingPage) IsClosed() bool                         { return p.closes > 0 }
func (p *countingPage) Close() error {
	p.closes++
	return p.err
}

func TestHandle_CloseExactlyOnce(t *testing.T) {
	a := &countingAgent{}
	c := &countingContext{}
	p := &countingPage{}

	h := NewHandle(a, c, p, true)

	assert.NoError(t, h.Close())
	assert.NoError(t, h.Close())
	assert.NoError(t, h.Close())

	assert.Equal(t, 1, a.closes)
	assert.Equal(t, 1, c.closes)
	assert.Equal(t, 1, p.closes)
}

func TestHandle_CloseContinuesPastFailures(t *testing.T) {
	pageErr := errors.New("page stuck")
	a := &countingAgent{}
	c := &countingContext{}
	p := &countingPage{err: pageErr}

	h := NewHandle(a, c, p, false)

	assert.ErrorIs(t, h.Close(), pageErr)
	assert.Equal(t, 1, c.closes, "context closed despite page failure")
	assert.Equal(t, 1, a.closes, "agent closed despite page failure")

	// The recorded error is stable across repeated calls.
	assert.ErrorIs(t, h.Close(), pageErr)
}
