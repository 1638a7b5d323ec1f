package network

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// MessageKind is the frame type of a socket message.
type MessageKind int

const (
	TextMessage MessageKind = iota
	BinaryMessage
)

// Message is one frame delivered by Receive.
type Message struct {
	Kind MessageKind
	Data []byte
}

// CloseCode is a websocket close status.
type CloseCode int

const (
	NormalClosure CloseCode = websocket.CloseNormalClosure
	GoingAway     CloseCode = websocket.CloseGoingAway
)

var (
	// ErrSocketClosed is returned once the socket was cancelled locally.
	ErrSocketClosed = errors.New("socket closed")
	// ErrSocketNotConnected is returned by Send before Resume succeeded.
	ErrSocketNotConnected = errors.New("socket not connected")
)

// Socket is a bidirectional message socket. Only one Receive may be
// outstanding at a time; Send is safe to call concurrently with Receive.
type Socket interface {
	// Resume starts the socket's active phase.
	Resume(ctx context.Context) error
	// Cancel closes the socket with code. Later calls are no-ops.
	Cancel(code CloseCode)
	// Send writes a text frame.
	Send(text string) error
	// Receive blocks until the next frame or a failure.
	Receive() (Message, error)
}

// IsLocalClose reports whether err comes from this side cancelling the
// socket. Any close frame sent by the peer, normal or not, is a lost
// connection.
func IsLocalClose(err error) bool {
	return errors.Is(err, ErrSocketClosed)
}

const closeWriteTimeout = time.Second

type webSocket struct {
	dialer *websocket.Dialer
	url    string
	header http.Header

	mu        sync.Mutex
	conn      *websocket.Conn
	cancelled bool

	ready     chan struct{}
	readyOnce sync.Once
	writeMu   sync.Mutex
}

func newWebSocket(dialer *websocket.Dialer, url string, header http.Header) *webSocket {
	return &webSocket{
		dialer: dialer,
		url:    url,
		header: header,
		ready:  make(chan struct{}),
	}
}

func (s *webSocket) markReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

func (s *webSocket) Resume(ctx context.Context) error {
	defer s.markReady()

	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return ErrSocketClosed
	}
	s.mu.Unlock()

	conn, resp, err := s.dialer.DialContext(ctx, s.url, s.header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return &Error{Kind: KindUnauthorized, Err: err}
		}
		return unknown(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled {
		conn.Close()
		return ErrSocketClosed
	}
	s.conn = conn
	return nil
}

func (s *webSocket) Cancel(code CloseCode) {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return
	}
	s.cancelled = true
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		msg := websocket.FormatCloseMessage(int(code), "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout))
		conn.Close()
	}
	s.markReady()
}

func (s *webSocket) Send(text string) error {
	s.mu.Lock()
	conn, cancelled := s.conn, s.cancelled
	s.mu.Unlock()

	if cancelled {
		return ErrSocketClosed
	}
	if conn == nil {
		return ErrSocketNotConnected
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		return unknown(err)
	}
	return nil
}

func (s *webSocket) Receive() (Message, error) {
	<-s.ready

	s.mu.Lock()
	conn, cancelled := s.conn, s.cancelled
	s.mu.Unlock()
	if cancelled || conn == nil {
		return Message{}, ErrSocketClosed
	}

	kind, data, err := conn.ReadMessage()
	if err != nil {
		s.mu.Lock()
		cancelled = s.cancelled
		s.mu.Unlock()
		if cancelled {
			return Message{}, ErrSocketClosed
		}
		return Message{}, err
	}

	if kind == websocket.BinaryMessage {
		return Message{Kind: BinaryMessage, Data: data}, nil
	}
	return Message{Kind: TextMessage, Data: data}, nil
}
