package relay_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/promptgate/internal/agent/agenttest"
	"github.com/shehryarbajwa/promptgate/internal/relay"
)

func TestUIRelay_Send(t *testing.T) {
	page := &agenttest.Page{SelectorText: "The answer is 42."}
	rly := relay.NewUIRelay()

	response, err := rly.Send(context.Background(), page, "what is the answer?")
	require.NoError(t, err)
	assert.Equal(t, "The answer is 42.", response)

	assert.Equal(t, []string{
		"fill-selector:textarea",
		"press:textarea:Enter",
		"wait-selector:div.response",
	}, page.Steps)
}

func TestUIRelay_PageGone(t *testing.T) {
	page := &agenttest.Page{}
	page.SetClosed(true)

	rly := relay.NewUIRelay()
	_, err := rly.Send(context.Background(), page, "hello")
	assert.ErrorIs(t, err, relay.ErrPageGone)
}

func TestUIRelay_ResponseTimeout(t *testing.T) {
	page := &agenttest.Page{SelectorErr: errors.New("timeout 120000ms exceeded")}

	rly := relay.NewUIRelay()
	_, err := rly.Send(context.Background(), page, "hello")
	assert.ErrorIs(t, err, relay.ErrResponseTimeout)
	assert.NotErrorIs(t, err, relay.ErrPageGone, "timeout and gone must be distinguishable")
}

func TestUIRelay_CustomSelectors(t *testing.T) {
	page := &agenttest.Page{SelectorText: "ok"}
	rly := &relay.UIRelay{
		ComposerSelector: "#prompt-textarea",
		ResponseSelector: "[data-message-author-role=assistant]",
		Timeout:          time.Second,
	}

	_, err := rly.Send(context.Background(), page, "hi")
	require.NoError(t, err)
	assert.Contains(t, page.Steps, "fill-selector:#prompt-textarea")
	assert.Contains(t, page.Steps, "wait-selector:[data-message-author-role=assistant]")
}

func TestUIRelay_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	page := &agenttest.Page{}
	rly := relay.NewUIRelay()

	_, err := rly.Send(ctx, page, "hello")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, page.Steps, "no interaction after cancellation")
}
