package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/goleak"

	"github.com/shehryarbajwa/devicecloud-mini/internal/clock"
	"github.com/shehryarbajwa/devicecloud-mini/internal/companion"
	"github.com/shehryarbajwa/devicecloud-mini/internal/log"
	"github.com/shehryarbajwa/devicecloud-mini/internal/metrics"
	"github.com/shehryarbajwa/devicecloud-mini/internal/network"
	"github.com/shehryarbajwa/devicecloud-mini/internal/network/networktest"
	"github.com/shehryarbajwa/devicecloud-mini/internal/stream"
	"github.com/shehryarbajwa/devicecloud-mini/internal/video"
	"github.com/shehryarbajwa/devicecloud-mini/internal/waiter"
	"github.com/shehryarbajwa/devicecloud-mini/pkg/models"
)

var (
	epoch    = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	testAuth = &models.Authentication{Token: models.AuthenticationToken{TokenID: "tok"}, Region: "us-west-1"}
)

const (
	openResponse       = `{"deviceSessionId":"ds-1","testReportId":"tr-1","webRtcCredentials":{"accessToken":"room-token","roomName":"room-1"}}`
	descriptorResponse = `{"status":"SUCCESS","deviceSessionDescriptor":{"dataCenterId":"US","deviceSessionId":"ds-1","deviceDescriptorId":"Google_Pixel_7_real","os":"ANDROID","resolutionWidth":1080,"resolutionHeight":2400,"orientation":"PORTRAIT","hasOnScreenButtons":false,"alternativeIoEnabled":true}}`
	onlineMessage      = `{"type":"device.state.update","value":{"state":"ONLINE"}}`
)

type fakeSource struct {
	track       *stream.Value[*webrtc.TrackRemote]
	connects    atomic.Int32
	disconnects atomic.Int32
}

func newFakeSource() *fakeSource {
	return &fakeSource{track: stream.NewValue[*webrtc.TrackRemote](nil)}
}

func (f *fakeSource) Connect(context.Context) error { f.connects.Add(1); return nil }
func (f *fakeSource) Disconnect()                   { f.disconnects.Add(1) }
func (f *fakeSource) Track() *stream.Value[*webrtc.TrackRemote] {
	return f.track
}

type harness struct {
	exec      *networktest.Executor
	sockets   *networktest.SocketFactory
	companion *networktest.Socket
	altio     *networktest.Socket
	source    *fakeSource
	clock     *clock.FakeClock
	o         *Orchestrator
}

func newHarness(opts Options) *harness {
	h := &harness{
		exec:      networktest.NewExecutor(),
		sockets:   networktest.NewSocketFactory(),
		companion: networktest.NewSocket(),
		altio:     networktest.NewSocket(),
		source:    newFakeSource(),
		clock:     clock.Fake(epoch),
	}
	h.exec.Respond("session.open", openResponse)
	h.exec.Respond("session.open_with_native_app", openResponse)
	h.exec.Respond("session.descriptor", descriptorResponse)
	h.exec.Respond("session.open_url", `{"status":"SUCCESS"}`)
	h.exec.Respond("session.close", ``)
	h.sockets.Register("socket.companion", h.companion)
	h.sockets.Register("socket.alternative_io", h.altio)

	h.o = NewOrchestrator(Dependencies{
		Executor: h.exec,
		Sockets:  h.sockets,
		Video:    func(models.WebRTCCredentials) video.Source { return h.source },
		Clock:    h.clock,
		Logger:   log.Nop(),
	}, opts)
	return h
}

func (h *harness) connect(t *testing.T, launcher Launcher) *Session {
	t.Helper()
	return h.o.Connect(context.Background(), testAuth, "Google_Pixel_7_real", launcher)
}

func waitReady(t *testing.T, s *Session) (*Ready, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Wait(ctx)
}

func waitClosed(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Closed():
	case <-time.After(5 * time.Second):
		t.Fatal("session was not torn down")
	}
}

func stages(history []Progress) []Stage {
	out := make([]Stage, 0, len(history))
	for _, p := range history {
		out = append(out, p.Stage)
	}
	return out
}

func TestSession_EmitsStagesInOrder(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := newHarness(Options{})
	h.companion.Push(`{"type":"device.state.update","value":{"state":"BOOTED"}}`)
	h.companion.Push(onlineMessage)

	s := h.connect(t, URLLauncher{URL: "https://example.com"})
	ready, err := waitReady(t, s)
	require.NoError(t, err)

	assert.Equal(t, []Stage{
		StageInitializing, StageStarted, StageScreen, StageDescriptor,
		StageDeviceConnected, StageDeviceOnline, StageReady,
	}, stages(s.History()))

	assert.Equal(t, "ds-1", ready.Session.DeviceSessionID)
	assert.Equal(t, "ANDROID", ready.Descriptor.OS)
	assert.Same(t, h.source, ready.Source)
	assert.Equal(t, companion.StateOnline, ready.Companion.StatusUpdate.Get())
	assert.Equal(t, 1, h.exec.Count("session.open"))
	assert.Equal(t, 1, h.exec.Count("session.open_url"))
	assert.Equal(t, int32(0), h.source.connects.Load())

	snap := s.Snapshot()
	assert.Equal(t, "ready", snap.Stage)
	assert.Equal(t, "ONLINE", snap.DeviceState)
	assert.Len(t, snap.Keys, 3)

	s.Close()
	waitClosed(t, s)
	assert.Equal(t, ReasonUser, s.Reason())
	assert.Equal(t, 1, h.exec.Count("session.close"))
	assert.Equal(t, 1, h.companion.Cancels())
	assert.Equal(t, 1, h.altio.Cancels())
	assert.Equal(t, int32(1), h.source.disconnects.Load())
}

func waitSecondsSum(t *testing.T, waiter, outcome string) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, metrics.WaitSeconds.WithLabelValues(waiter, outcome).(prometheus.Metric).Write(&m))
	return m.GetHistogram().GetSampleSum()
}

func TestSession_ReadinessTimeoutEndsInError(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	before := waitSecondsSum(t, string(waiter.OpReadiness), "error")
	h := newHarness(Options{})
	s := h.connect(t, URLLauncher{URL: "https://example.com"})

	h.clock.WaitForTimers(1)
	h.clock.Advance(waiter.DefaultTimeout)

	_, err := waitReady(t, s)
	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageDeviceOnline, se.Stage)
	assert.True(t, waiter.IsTimeout(err))
	assert.Equal(t, waiter.DefaultTimeout.Seconds(), waitSecondsSum(t, string(waiter.OpReadiness), "error")-before)

	history := s.History()
	assert.Equal(t, StageError, history[len(history)-1].Stage)
	assert.NotContains(t, stages(history), StageReady)

	waitClosed(t, s)
	assert.Equal(t, ReasonError, s.Reason())
	assert.Equal(t, 1, h.exec.Count("session.close"))
	assert.Equal(t, 0, h.exec.Count("session.open_url"))
	assert.Equal(t, 1, h.companion.Cancels())
	assert.Equal(t, 1, h.altio.Cancels())
}

func TestSession_DeviceFailureFailsFast(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := newHarness(Options{})
	h.companion.Push(`{"type":"device.state.update","value":{"state":"FAILED"}}`)
	s := h.connect(t, URLLauncher{URL: "https://example.com"})

	_, err := waitReady(t, s)
	var we *waiter.Error
	require.ErrorAs(t, err, &we)
	assert.Equal(t, waiter.ReasonFailed, we.Reason)
	assert.Equal(t, epoch, h.clock.Now())
	waitClosed(t, s)
}

func TestSession_TeardownIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := newHarness(Options{})
	h.companion.Push(onlineMessage)
	s := h.connect(t, URLLauncher{URL: "https://example.com"})
	_, err := waitReady(t, s)
	require.NoError(t, err)

	h.companion.Fail(errors.New("connection reset by peer"))
	waitClosed(t, s)
	s.Close()
	s.Teardown(ReasonError)

	assert.Equal(t, ReasonConnectionClosed, s.Reason())
	assert.Equal(t, 1, h.companion.Cancels())
	assert.Equal(t, 1, h.altio.Cancels())
	assert.Equal(t, 1, h.exec.Count("session.close"))
	assert.Equal(t, int32(1), h.source.disconnects.Load())
	assert.True(t, s.Snapshot().Expected)
}

func TestSession_PeerCloseFrameTearsDown(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := newHarness(Options{})
	h.companion.Push(onlineMessage)
	s := h.connect(t, URLLauncher{URL: "https://example.com"})
	ready, err := waitReady(t, s)
	require.NoError(t, err)

	h.companion.Fail(&websocket.CloseError{Code: websocket.CloseNormalClosure})
	waitClosed(t, s)

	assert.True(t, ready.Companion.ConnectionClosed.Fired())
	assert.Equal(t, ReasonConnectionClosed, s.Reason())
	assert.Equal(t, 1, h.exec.Count("session.close"))
	assert.Equal(t, 1, h.altio.Cancels())
}

func TestSession_PeerCloseBeforeOnlineFailsFast(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := newHarness(Options{})
	s := h.connect(t, URLLauncher{URL: "https://example.com"})
	h.clock.WaitForTimers(1)

	h.companion.Fail(&websocket.CloseError{Code: websocket.CloseNormalClosure, Text: "bye"})
	_, err := waitReady(t, s)
	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageDeviceOnline, se.Stage)
	assert.Equal(t, epoch, h.clock.Now())

	waitClosed(t, s)
	assert.Equal(t, ReasonConnectionClosed, s.Reason())
	assert.Equal(t, 1, h.exec.Count("session.close"))
}

func TestSession_CloseDuringLaunchEndsInError(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := newHarness(Options{ConnectVideo: true})
	sessions := make(chan *Session, 1)
	h.exec.Handle("session.open_url", func(network.Request) ([]byte, error) {
		(<-sessions).Close()
		return []byte(`{"status":"SUCCESS"}`), nil
	})
	h.companion.Push(onlineMessage)

	s := h.connect(t, URLLauncher{URL: "https://example.com"})
	sessions <- s

	ready, err := waitReady(t, s)
	assert.Nil(t, ready)
	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageReady, se.Stage)
	assert.ErrorIs(t, err, ErrClosed)

	waitClosed(t, s)
	assert.NotContains(t, stages(s.History()), StageReady)
	assert.Nil(t, s.Ready())
	assert.Equal(t, ReasonUser, s.Reason())
	assert.Equal(t, int32(0), h.source.connects.Load())
	assert.Equal(t, int32(1), h.source.disconnects.Load())
	assert.Equal(t, 1, h.exec.Count("session.close"))
}

func TestSession_ServerClosedSession(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := newHarness(Options{})
	h.companion.Push(onlineMessage)
	s := h.connect(t, URLLauncher{URL: "https://example.com"})
	_, err := waitReady(t, s)
	require.NoError(t, err)

	h.companion.Push(`{"type":"session_closed"}`)
	waitClosed(t, s)
	assert.Equal(t, ReasonSessionClosed, s.Reason())
	assert.Equal(t, 1, h.companion.Cancels())
}

func TestSession_OpenFailureSkipsClose(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := newHarness(Options{})
	h.exec.Handle("session.open", func(network.Request) ([]byte, error) {
		return nil, &network.Error{Kind: network.KindRequestFailure, StatusCode: 409, Body: []byte("device in use")}
	})

	s := h.connect(t, URLLauncher{URL: "https://example.com"})
	_, err := waitReady(t, s)
	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageStarted, se.Stage)
	assert.Equal(t, network.KindRequestFailure, network.KindOf(err))

	waitClosed(t, s)
	assert.Equal(t, []Stage{StageInitializing, StageError}, stages(s.History()))
	assert.Equal(t, 0, h.exec.Count("session.close"))
	assert.Equal(t, 0, h.companion.Resumes())
}

func TestSession_CompanionSocketRefused(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := newHarness(Options{})
	h.sockets.Refuse("socket.companion", &network.Error{Kind: network.KindInvalidURL})

	s := h.connect(t, URLLauncher{URL: "https://example.com"})
	_, err := waitReady(t, s)
	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageDeviceConnected, se.Stage)

	waitClosed(t, s)
	assert.Equal(t, 1, h.exec.Count("session.close"))
	assert.Equal(t, int32(1), h.source.disconnects.Load())
}

func TestSession_AppLauncherInstallsBeforeReady(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := newHarness(Options{})
	h.exec.Respond("session.install", `{"id":"inst-1","status":"PENDING"}`)
	h.exec.Respond("session.installation_status", `{"id":"inst-1","status":"FINISHED"}`)
	h.companion.Push(onlineMessage)

	s := h.connect(t, AppLauncher{GroupID: 7, FileID: "file-1"})
	_, err := waitReady(t, s)
	require.NoError(t, err)

	assert.Equal(t, 1, h.exec.Count("session.open_with_native_app"))
	assert.Equal(t, 1, h.exec.Count("session.install"))
	assert.Equal(t, 1, h.exec.Count("session.installation_status"))
	assert.Equal(t, 0, h.exec.Count("session.open"))

	s.Close()
	waitClosed(t, s)
}

func TestSession_InstallErrorEndsInError(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := newHarness(Options{})
	h.exec.Respond("session.install", `{"id":"inst-1","status":"PENDING"}`)
	h.exec.Respond("session.installation_status", `{"id":"inst-1","status":"ERROR"}`)
	h.companion.Push(onlineMessage)

	s := h.connect(t, AppLauncher{GroupID: 7, FileID: "file-1"})
	_, err := waitReady(t, s)
	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageReady, se.Stage)
	assert.ErrorIs(t, err, network.ErrUnauthorized)
	assert.Contains(t, stages(s.History()), StageDeviceOnline)
	waitClosed(t, s)
}

func TestSession_CommandsRequireReady(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := newHarness(Options{})
	h.exec.Respond("session.orientation", ``)
	h.exec.Respond("session.paste", ``)
	h.exec.Respond("session.relaunch_app", ``)
	ctx := context.Background()

	s := h.connect(t, URLLauncher{URL: "https://example.com"})
	<-h.companion.Resumed()
	assert.ErrorIs(t, s.SendPasteText(ctx, "early"), ErrNotReady)

	h.companion.Push(onlineMessage)
	_, err := waitReady(t, s)
	require.NoError(t, err)

	require.NoError(t, s.SetOrientation(ctx, models.OrientationLandscape))
	require.NoError(t, s.SendPasteText(ctx, "hello"))
	require.NoError(t, s.RestartApp(ctx))
	assert.Error(t, s.SetOrientation(ctx, models.Orientation("SIDEWAYS")))

	var bodies []string
	for _, c := range h.exec.Calls() {
		if c.Name == "session.orientation" || c.Name == "session.paste" {
			bodies = append(bodies, string(c.Body))
		}
	}
	assert.Equal(t, []string{"LANDSCAPE", "hello"}, bodies)

	s.Close()
	waitClosed(t, s)
	assert.ErrorIs(t, s.RestartApp(ctx), ErrClosed)
}

func TestSession_ConnectsVideoWhenEnabled(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := newHarness(Options{ConnectVideo: true})
	h.companion.Push(onlineMessage)
	s := h.connect(t, URLLauncher{URL: "https://example.com"})
	_, err := waitReady(t, s)
	require.NoError(t, err)

	s.Close()
	waitClosed(t, s)
	assert.Equal(t, int32(1), h.source.connects.Load())
	assert.Equal(t, int32(1), h.source.disconnects.Load())
}
