package session_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/promptgate/internal/agent"
	"github.com/shehryarbajwa/promptgate/internal/agent/agenttest"
	"github.com/shehryarbajwa/promptgate/internal/login"
	"github.com/shehryarbajwa/promptgate/internal/metrics"
	"github.com/shehryarbajwa/promptgate/internal/session"
)

// fakeAuth mints handles from a fake driver, or fails with err.
type fakeAuth struct {
	driver *agenttest.Driver
	err    error
}

func (f *fakeAuth) Login(ctx context.Context) (*agent.Handle, error) {
	if f.err != nil {
		return nil, f.err
	}
	a, err := f.driver.Launch(ctx, true)
	if err != nil {
		return nil, err
	}
	c, err := a.NewContext(nil)
	if err != nil {
		return nil, err
	}
	p, err := c.NewPage()
	if err != nil {
		return nil, err
	}
	return agent.NewHandle(a, c, p, true), nil
}

func newTestRegistry(t *testing.T, max int64) (*session.Registry, *agenttest.Driver) {
	t.Helper()
	driver := &agenttest.Driver{}
	return session.NewRegistry(&fakeAuth{driver: driver}, max), driver
}

func TestRegistry_CreateAndGet(t *testing.T) {
	registry, driver := newTestRegistry(t, 0)

	id, err := registry.Create(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, driver.LaunchCount())

	sess, err := registry.Get(id)
	require.NoError(t, err)
	assert.Equal(t, id, sess.ID)
	assert.NotNil(t, sess.Handle.Page)
	assert.Equal(t, 1, registry.Len())
}

func TestRegistry_IDsNeverReused(t *testing.T) {
	registry, _ := newTestRegistry(t, 0)

	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		id, err := registry.Create(context.Background())
		require.NoError(t, err)
		assert.False(t, seen[id], "id issued twice")
		seen[id] = true
		require.NoError(t, registry.Delete(id))
	}
}

func TestRegistry_GetUnknown(t *testing.T) {
	registry, _ := newTestRegistry(t, 0)

	_, err := registry.Get("nonexistent-id")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestRegistry_DeleteTwice(t *testing.T) {
	registry, driver := newTestRegistry(t, 0)

	id, err := registry.Create(context.Background())
	require.NoError(t, err)

	require.NoError(t, registry.Delete(id))
	assert.True(t, driver.Launched[0].IsClosed(), "agent resources released")
	assert.Equal(t, 0, registry.Len())

	assert.ErrorIs(t, registry.Delete(id), session.ErrNotFound)
}

func TestRegistry_LoginFailureLeavesNothing(t *testing.T) {
	loginErr := errors.New("ui broke")
	registry := session.NewRegistry(&fakeAuth{err: loginErr}, 0)

	_, err := registry.Create(context.Background())
	assert.ErrorIs(t, err, loginErr)
	assert.Equal(t, 0, registry.Len(), "failed create mints no id")
}

func TestRegistry_CountsLoginFailuresByReason(t *testing.T) {
	registry := session.NewRegistry(&fakeAuth{err: login.ErrMissingCredentials}, 0)

	counter := metrics.LoginFailuresTotal.WithLabelValues("config")
	before := testutil.ToFloat64(counter)

	_, err := registry.Create(context.Background())
	require.ErrorIs(t, err, login.ErrMissingCredentials)

	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestRegistry_SessionCap(t *testing.T) {
	registry, _ := newTestRegistry(t, 1)

	id, err := registry.Create(context.Background())
	require.NoError(t, err)

	_, err = registry.Create(context.Background())
	assert.ErrorIs(t, err, session.ErrTooManySessions)

	// Deleting frees the slot.
	require.NoError(t, registry.Delete(id))
	_, err = registry.Create(context.Background())
	assert.NoError(t, err)
}

func TestRegistry_CapNotConsumedByFailedLogin(t *testing.T) {
	auth := &fakeAuth{err: errors.New("boom")}
	registry := session.NewRegistry(auth, 1)

	_, err := registry.Create(context.Background())
	require.Error(t, err)

	auth.err = nil
	auth.driver = &agenttest.Driver{}
	_, err = registry.Create(context.Background())
	assert.NoError(t, err, "failed login releases its slot")
}

func TestRegistry_DrainAll(t *testing.T) {
	registry, driver := newTestRegistry(t, 0)

	for i := 0; i < 3; i++ {
		_, err := registry.Create(context.Background())
		require.NoError(t, err)
	}
	require.Equal(t, 3, registry.Len())

	registry.DrainAll()

	assert.Equal(t, 0, registry.Len())
	for _, a := range driver.Launched {
		assert.True(t, a.IsClosed())
	}

	// Repeating the sweep is a no-op.
	registry.DrainAll()
	assert.Equal(t, 0, registry.Len())
}

func TestRegistry_PublishesLifecycleEvents(t *testing.T) {
	registry, _ := newTestRegistry(t, 0)

	id, err := registry.Create(context.Background())
	require.NoError(t, err)

	events, cancel := registry.Hub().Subscribe(id)
	defer cancel()

	require.NoError(t, registry.Delete(id))

	select {
	case evt := <-events:
		assert.Equal(t, session.EventClosed, evt.Type)
		assert.Equal(t, id, evt.SessionID)
	default:
		t.Fatal("expected a closed event")
	}
}
