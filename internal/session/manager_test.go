package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/shehryarbajwa/devicecloud-mini/internal/artifacts"
	"github.com/shehryarbajwa/devicecloud-mini/internal/companion"
	"github.com/shehryarbajwa/devicecloud-mini/internal/log"
	"github.com/shehryarbajwa/devicecloud-mini/internal/network/networktest"
)

func newTestManager(t *testing.T, h *harness, max int64) (*Manager, *artifacts.Manager) {
	t.Helper()
	store, err := artifacts.NewManager(t.TempDir())
	require.NoError(t, err)
	return NewManager(context.Background(), h.o, max, store, log.Nop()), store
}

func TestManager_EnforcesCapacity(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := newHarness(Options{})
	m, _ := newTestManager(t, h, 1)

	first, err := m.CreateSession(testAuth, "Google_Pixel_7_real", URLLauncher{URL: "https://example.com"})
	require.NoError(t, err)

	_, err = m.CreateSession(testAuth, "Google_Pixel_7_real", URLLauncher{URL: "https://example.com"})
	assert.ErrorIs(t, err, ErrCapacity)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.DeleteSession(ctx, first.ID))

	h.sockets.Register("socket.companion", networktest.NewSocket())
	h.sockets.Register("socket.alternative_io", networktest.NewSocket())

	var second *Session
	require.Eventually(t, func() bool {
		second, err = m.CreateSession(testAuth, "Google_Pixel_7_real", URLLauncher{URL: "https://example.com"})
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, []*Session{second}, m.ListSessions())
	assert.Len(t, m.Snapshots(), 2)
	require.NoError(t, m.Shutdown(ctx))
	assert.Equal(t, ReasonShutdown, second.Reason())
	assert.Equal(t, ReasonUser, first.Reason())
}

func TestManager_GetAndDeleteUnknown(t *testing.T) {
	h := newHarness(Options{})
	m, _ := newTestManager(t, h, 2)

	_, err := m.GetSession("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.DeleteSession(context.Background(), "missing"), ErrNotFound)
	assert.Empty(t, m.ListSessions())
}

func TestManager_SavesArtifactsOnClose(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := newHarness(Options{})
	h.companion.Push(onlineMessage)
	m, store := newTestManager(t, h, 1)

	s, err := m.CreateSession(testAuth, "Google_Pixel_7_real", URLLauncher{URL: "https://example.com"})
	require.NoError(t, err)
	ready, err := waitReady(t, s)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return ready.Companion.LogMessages.Subscribers() == 1 &&
			ready.AlternativeIO.Screenshots.Subscribers() == 1
	}, 5*time.Second, 10*time.Millisecond)

	events, unsubscribe := ready.Companion.Events.Subscribe()
	defer unsubscribe()
	h.companion.Push(`{"type":"device.log.message","message":"I/ActivityManager: Start proc"}`)
	select {
	case ev := <-events:
		assert.Equal(t, companion.TypeLogMessage, ev.Type())
	case <-time.After(5 * time.Second):
		t.Fatal("log message not delivered")
	}

	h.altio.PushBinary([]byte{0x89, 'P', 'N', 'G'})
	require.Eventually(t, func() bool {
		return ready.AlternativeIO.LatestScreenshot() != nil
	}, 5*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.DeleteSession(ctx, s.ID))
	require.NoError(t, m.Shutdown(ctx))

	saved := store.ListArtifacts("ds-1")
	require.Len(t, saved, 1)
	assert.Equal(t, 1, saved[0].Screenshots)

	entries, err := store.ReadEntries(saved[0].ID)
	require.NoError(t, err)
	assert.Contains(t, string(entries["logs.txt"]), "Start proc")
}

func TestManager_EvictsSessionEndedRemotely(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := newHarness(Options{})
	h.companion.Push(onlineMessage)
	m, _ := newTestManager(t, h, 1)

	closed := make(chan string, 1)
	m.OnClosed(func(handle string) { closed <- handle })

	s, err := m.CreateSession(testAuth, "Google_Pixel_7_real", URLLauncher{URL: "https://example.com"})
	require.NoError(t, err)
	_, err = waitReady(t, s)
	require.NoError(t, err)

	h.companion.Push(`{"type":"session_closed"}`)
	select {
	case handle := <-closed:
		assert.Equal(t, s.ID, handle)
	case <-time.After(5 * time.Second):
		t.Fatal("session was not retired")
	}

	_, err = m.GetSession(s.ID)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Empty(t, m.ListSessions())

	snap, err := m.Snapshot(s.ID)
	require.NoError(t, err)
	assert.True(t, snap.Closed)
	assert.Equal(t, ReasonSessionClosed, snap.CloseReason)
	assert.NoError(t, m.DeleteSession(context.Background(), s.ID))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))
}

func TestManager_RetentionIsBounded(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := newHarness(Options{})
	m, _ := newTestManager(t, h, 1)
	m.retain = 1
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var handles []string
	for i := 0; i < 2; i++ {
		h.sockets.Register("socket.companion", networktest.NewSocket())
		h.sockets.Register("socket.alternative_io", networktest.NewSocket())

		var s *Session
		require.Eventually(t, func() bool {
			var err error
			s, err = m.CreateSession(testAuth, "Google_Pixel_7_real", URLLauncher{URL: "https://example.com"})
			return err == nil
		}, 5*time.Second, 10*time.Millisecond)
		require.NoError(t, m.DeleteSession(ctx, s.ID))
		handles = append(handles, s.ID)
	}

	require.Eventually(t, func() bool {
		_, err := m.Snapshot(handles[0])
		return errors.Is(err, ErrNotFound)
	}, 5*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		_, err := m.GetSession(handles[1])
		return errors.Is(err, ErrClosed)
	}, 5*time.Second, 10*time.Millisecond)
	assert.Len(t, m.Snapshots(), 1)

	require.NoError(t, m.Shutdown(ctx))
}
