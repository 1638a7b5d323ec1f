package proxy

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/shehryarbajwa/devicecloud-mini/internal/log"
	"github.com/shehryarbajwa/devicecloud-mini/internal/network/networktest"
	"github.com/shehryarbajwa/devicecloud-mini/internal/session"
	"github.com/shehryarbajwa/devicecloud-mini/internal/stream"
	"github.com/shehryarbajwa/devicecloud-mini/internal/video"
	"github.com/shehryarbajwa/devicecloud-mini/pkg/models"
)

type stillSource struct{ track *stream.Value[*webrtc.TrackRemote] }

func (s stillSource) Connect(context.Context) error            { return nil }
func (s stillSource) Disconnect()                              {}
func (s stillSource) Track() *stream.Value[*webrtc.TrackRemote] { return s.track }

type fixture struct {
	manager   *session.Manager
	companion *networktest.Socket
	altio     *networktest.Socket
	srv       *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	exec := networktest.NewExecutor()
	exec.Respond("session.open", `{"deviceSessionId":"ds-1","webRtcCredentials":{"accessToken":"a","roomName":"r"}}`)
	exec.Respond("session.descriptor", `{"status":"SUCCESS","deviceSessionDescriptor":{"deviceSessionId":"ds-1","os":"ANDROID","resolutionWidth":1080,"resolutionHeight":2400}}`)
	exec.Respond("session.open_url", `{"status":"SUCCESS"}`)
	exec.Respond("session.close", ``)

	f := &fixture{companion: networktest.NewSocket(), altio: networktest.NewSocket()}
	sockets := networktest.NewSocketFactory()
	sockets.Register("socket.companion", f.companion)
	sockets.Register("socket.alternative_io", f.altio)

	o := session.NewOrchestrator(session.Dependencies{
		Executor: exec,
		Sockets:  sockets,
		Video: func(models.WebRTCCredentials) video.Source {
			return stillSource{track: stream.NewValue[*webrtc.TrackRemote](nil)}
		},
		Logger: log.Nop(),
	}, session.Options{})
	f.manager = session.NewManager(context.Background(), o, 1, nil, log.Nop())

	proxy := NewServer(f.manager, log.Nop())
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		proxy.HandleViewerConnection(w, r, r.URL.Query().Get("id"))
	}))
	return f
}

func (f *fixture) close(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.manager.Shutdown(ctx))
	f.srv.Close()
}

func (f *fixture) url(id string) string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/?id=" + id
}

func (f *fixture) start(t *testing.T, online bool) *session.Session {
	t.Helper()
	if online {
		f.companion.Push(`{"type":"device.state.update","value":{"state":"ONLINE"}}`)
	}
	s, err := f.manager.CreateSession(&models.Authentication{Token: models.AuthenticationToken{TokenID: "tok"}}, "Pixel_7", session.URLLauncher{URL: "https://example.com"})
	require.NoError(t, err)
	return s
}

func readMessage(t *testing.T, conn *websocket.Conn) (int, []byte) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return kind, data
}

func TestViewer_UnknownSession(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	f := newFixture(t)
	defer f.close(t)

	_, resp, err := websocket.DefaultDialer.Dial(f.url("missing"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestViewer_SessionNotReady(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	f := newFixture(t)
	defer f.close(t)

	s := f.start(t, false)
	<-f.companion.Resumed()

	_, resp, err := websocket.DefaultDialer.Dial(f.url(s.ID), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestViewer_RelaysBothDirections(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	f := newFixture(t)
	defer f.close(t)

	s := f.start(t, true)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := s.Wait(ctx)
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(f.url(s.ID), nil)
	require.NoError(t, err)
	defer conn.Close()

	kind, data := readMessage(t, conn)
	assert.Equal(t, websocket.TextMessage, kind)
	assert.JSONEq(t, `{"type":"device.state.update","value":{"state":"ONLINE"}}`, string(data))

	f.altio.PushBinary([]byte{0x89, 'P', 'N', 'G'})
	kind, data = readMessage(t, conn)
	assert.Equal(t, websocket.BinaryMessage, kind)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, data)

	f.companion.Push(`{"type":"device.log.message","message":"boot complete"}`)
	_, data = readMessage(t, conn)
	assert.JSONEq(t, `{"type":"device.log.message","message":"boot complete"}`, string(data))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not a command")))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("tt/home")))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("mt/d 400 800 0 1 0 100 200")))
	assert.Eventually(t, func() bool {
		return len(f.altio.Sent()) == 2
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"tt/Sauce_Home_Key", "mt/d 400 800 0 1 0 100 200"}, f.altio.Sent())

	s.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		_, _, err = conn.ReadMessage()
		if err != nil {
			break
		}
	}
	var ce *websocket.CloseError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, websocket.CloseNormalClosure, ce.Code)
	assert.Equal(t, "user", ce.Text)
}

func TestViewer_RetiredSessionIsGone(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	f := newFixture(t)
	defer f.close(t)

	s := f.start(t, true)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := s.Wait(ctx)
	require.NoError(t, err)
	require.NoError(t, f.manager.DeleteSession(ctx, s.ID))

	require.Eventually(t, func() bool {
		_, err := f.manager.GetSession(s.ID)
		return errors.Is(err, session.ErrClosed)
	}, 5*time.Second, 10*time.Millisecond)

	_, resp, err := websocket.DefaultDialer.Dial(f.url(s.ID), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusGone, resp.StatusCode)
}
