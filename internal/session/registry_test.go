package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakesimonds/Creator/internal/command"
)

func newTestSession(a *fakeAdapter) *Session {
	return New(a, command.NewMachine(command.DefaultConfig()), fastOrchestrator(nil), WithWelcome(""))
}

func TestRegistryOpenClose(t *testing.T) {
	r := NewRegistry()
	a := newFakeAdapter("one")
	s := newTestSession(a)

	require.NoError(t, r.Open(context.Background(), s))
	assert.ErrorIs(t, r.Open(context.Background(), newTestSession(newFakeAdapter("one"))), ErrSessionExists)
	assert.Equal(t, 1, r.Len())

	got, ok := r.Get("one")
	require.True(t, ok)
	assert.Same(t, s, got)

	assert.True(t, r.Close("one"))
	assert.False(t, r.Close("one"))
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 1, a.disposed["transcription"])
}

func TestRegistryRemovesFinishedSessions(t *testing.T) {
	r := NewRegistry()
	a := newFakeAdapter("gone")
	require.NoError(t, r.Open(context.Background(), newTestSession(a)))

	close(a.done)
	require.Eventually(t, func() bool { return r.Len() == 0 }, time.Second, 5*time.Millisecond)
	_, ok := r.Get("gone")
	assert.False(t, ok)

	require.NoError(t, r.Open(context.Background(), newTestSession(newFakeAdapter("gone"))))
	r.CloseAll()
}

func TestRegistryCloseAll(t *testing.T) {
	r := NewRegistry()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, r.Open(context.Background(), newTestSession(newFakeAdapter(id))))
	}
	require.Equal(t, 3, r.Len())

	r.CloseAll()
	assert.Equal(t, 0, r.Len())
}

func TestRegistryExitHook(t *testing.T) {
	exited := make(chan *Session, 2)
	r := NewRegistry(WithExitHook(func(s *Session) {
		exited <- s
	}))

	closed := newTestSession(newFakeAdapter("closed"))
	require.NoError(t, r.Open(context.Background(), closed))
	require.True(t, r.Close("closed"))
	assert.Same(t, closed, <-exited)

	a := newFakeAdapter("dropped")
	dropped := newTestSession(a)
	require.NoError(t, r.Open(context.Background(), dropped))
	close(a.done)
	select {
	case s := <-exited:
		assert.Same(t, dropped, s)
	case <-time.After(time.Second):
		t.Fatal("exit hook not called")
	}
	assert.Zero(t, r.Len())
}
