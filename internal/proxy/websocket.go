// Package proxy serves the viewer websocket of a ready session: companion
// events and screenshots go out, touch and key lines come in.
package proxy

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/shehryarbajwa/devicecloud-mini/internal/altio"
	"github.com/shehryarbajwa/devicecloud-mini/internal/companion"
	"github.com/shehryarbajwa/devicecloud-mini/internal/metrics"
	"github.com/shehryarbajwa/devicecloud-mini/internal/session"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Sessions looks live sessions up by handle.
type Sessions interface {
	GetSession(id string) (*session.Session, error)
}

type Server struct {
	sessions Sessions
	logger   zerolog.Logger
}

func NewServer(sessions Sessions, logger zerolog.Logger) *Server {
	return &Server{
		sessions: sessions,
		logger:   logger,
	}
}

// HandleViewerConnection upgrades the request and relays the session
// until either side goes away.
func (s *Server) HandleViewerConnection(w http.ResponseWriter, r *http.Request, sessionID string) {
	sess, err := s.sessions.GetSession(sessionID)
	if errors.Is(err, session.ErrClosed) {
		http.Error(w, "Session is closed", http.StatusGone)
		return
	}
	if err != nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	select {
	case <-sess.Closed():
		http.Error(w, "Session is closed", http.StatusGone)
		return
	default:
	}

	ready := sess.Ready()
	if ready == nil {
		http.Error(w, "Session is not ready", http.StatusConflict)
		return
	}

	// Subscribe before the upgrade so no frame is missed in between.
	events, unsubscribeEvents := ready.Companion.Events.Subscribe()
	defer unsubscribeEvents()
	screenshots, unsubscribeScreenshots := ready.AlternativeIO.Screenshots.Subscribe()
	defer unsubscribeScreenshots()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Str("handle", sessionID).Msg("failed to upgrade viewer connection")
		return
	}
	defer conn.Close()

	logger := s.logger.With().Str("handle", sessionID).Logger()
	logger.Info().Msg("viewer connected")
	metrics.ViewersConnected.Inc()
	defer metrics.ViewersConnected.Dec()

	keys := altio.AvailableKeys(ready.Descriptor)
	done := make(chan struct{})
	errChan := make(chan error, 2)

	// Viewer → device
	go func() {
		errChan <- s.forwardInput(conn, ready.AlternativeIO, keys, logger)
	}()

	// Device → viewer
	go func() {
		errChan <- s.relayOutput(conn, sess, ready, events, screenshots, done)
	}()

	// Wait for either direction to stop, then unblock the other one.
	err = <-errChan
	close(done)
	conn.Close()
	<-errChan

	if err != nil {
		logger.Warn().Err(err).Msg("viewer relay stopped")
	}
	logger.Info().Msg("viewer disconnected")
}

func (s *Server) forwardInput(conn *websocket.Conn, io *altio.Channel, keys []altio.Key, logger zerolog.Logger) error {
	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return err
			}
			return nil
		}
		if messageType != websocket.TextMessage {
			continue
		}

		line, err := altio.NormalizeLine(string(message), keys)
		if err != nil {
			logger.Debug().Err(err).Msg("dropping viewer input")
			continue
		}
		io.Send(line)
	}
}

func (s *Server) relayOutput(conn *websocket.Conn, sess *session.Session, ready *session.Ready, events <-chan companion.Event, screenshots <-chan []byte, done <-chan struct{}) error {
	current := companion.StatusUpdate{State: ready.Companion.StatusUpdate.Get()}
	if err := s.writeEvent(conn, current); err != nil {
		return err
	}
	if frame := ready.AlternativeIO.LatestScreenshot(); frame != nil {
		if err := s.write(conn, websocket.BinaryMessage, frame); err != nil {
			return err
		}
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if err := s.writeEvent(conn, ev); err != nil {
				return err
			}
		case frame, ok := <-screenshots:
			if !ok {
				screenshots = nil
				continue
			}
			if err := s.write(conn, websocket.BinaryMessage, frame); err != nil {
				return err
			}
		case <-sess.Closed():
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(sess.Reason()))
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			return nil
		case <-done:
			return nil
		}
	}
}

func (s *Server) writeEvent(conn *websocket.Conn, ev companion.Event) error {
	data, err := companion.Encode(ev)
	if err != nil {
		s.logger.Debug().Err(err).Str("type", ev.Type()).Msg("skipping unencodable event")
		return nil
	}
	return s.write(conn, websocket.TextMessage, data)
}

func (s *Server) write(conn *websocket.Conn, messageType int, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	if err := conn.WriteMessage(messageType, data); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	}
	return nil
}
