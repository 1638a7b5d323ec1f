// Package networktest provides in-memory fakes of the network primitives
// for tests of the channels and the session orchestrator.
package networktest

import (
	"context"
	"errors"
	"sync"

	"github.com/shehryarbajwa/devicecloud-mini/internal/network"
	"github.com/shehryarbajwa/devicecloud-mini/pkg/models"
)

// Socket is a scripted network.Socket. Frames pushed with Push and
// PushBinary are delivered in order by Receive.
type Socket struct {
	ResumeErr error

	inbox  chan network.Message
	errs   chan error
	closed chan struct{}

	mu       sync.Mutex
	resumes  int
	cancels  int
	sent     []string
	resumed  chan struct{}
	resumeOK sync.Once
}

// NewSocket returns an unopened fake socket.
func NewSocket() *Socket {
	return &Socket{
		inbox:   make(chan network.Message, 64),
		errs:    make(chan error, 1),
		closed:  make(chan struct{}),
		resumed: make(chan struct{}),
	}
}

func (s *Socket) Resume(ctx context.Context) error {
	s.mu.Lock()
	s.resumes++
	s.mu.Unlock()
	s.resumeOK.Do(func() { close(s.resumed) })
	if s.ResumeErr != nil {
		return s.ResumeErr
	}
	return ctx.Err()
}

func (s *Socket) Cancel(network.CloseCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancels++
	if s.cancels == 1 {
		close(s.closed)
	}
}

func (s *Socket) Send(text string) error {
	select {
	case <-s.closed:
		return network.ErrSocketClosed
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, text)
	return nil
}

func (s *Socket) Receive() (network.Message, error) {
	select {
	case <-s.closed:
		return network.Message{}, network.ErrSocketClosed
	default:
	}
	select {
	case msg := <-s.inbox:
		return msg, nil
	case err := <-s.errs:
		return network.Message{}, err
	case <-s.closed:
		return network.Message{}, network.ErrSocketClosed
	}
}

// Push queues a text frame.
func (s *Socket) Push(text string) {
	s.inbox <- network.Message{Kind: network.TextMessage, Data: []byte(text)}
}

// PushBinary queues a binary frame.
func (s *Socket) PushBinary(data []byte) {
	s.inbox <- network.Message{Kind: network.BinaryMessage, Data: data}
}

// Fail makes the pending or next Receive return err.
func (s *Socket) Fail(err error) {
	s.errs <- err
}

// Resumed is closed once Resume was called.
func (s *Socket) Resumed() <-chan struct{} { return s.resumed }

// Closed is closed once Cancel was called.
func (s *Socket) Closed() <-chan struct{} { return s.closed }

// Cancels returns how many times Cancel was called.
func (s *Socket) Cancels() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancels
}

// Resumes returns how many times Resume was called.
func (s *Socket) Resumes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resumes
}

// Sent returns every text frame written so far.
func (s *Socket) Sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

// HandlerFunc answers one scripted REST call.
type HandlerFunc func(req network.Request) ([]byte, error)

// Executor is a network.Executor that dispatches on Request.Name.
type Executor struct {
	mu       sync.Mutex
	handlers map[string]HandlerFunc
	calls    []network.Request
}

// NewExecutor returns an Executor with no handlers.
func NewExecutor() *Executor {
	return &Executor{handlers: make(map[string]HandlerFunc)}
}

// Handle registers fn for requests named name.
func (e *Executor) Handle(name string, fn HandlerFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[name] = fn
}

// Respond registers a fixed response body for requests named name.
func (e *Executor) Respond(name, body string) {
	e.Handle(name, func(network.Request) ([]byte, error) { return []byte(body), nil })
}

func (e *Executor) Perform(ctx context.Context, req network.Request, auth *models.Authentication) ([]byte, error) {
	if !req.SkipAuth && auth == nil {
		return nil, network.ErrUnauthorized
	}
	if err := ctx.Err(); err != nil {
		return nil, &network.Error{Kind: network.KindUnknown, Err: err}
	}

	e.mu.Lock()
	e.calls = append(e.calls, req)
	fn, ok := e.handlers[req.Name]
	e.mu.Unlock()

	if !ok {
		return nil, &network.Error{Kind: network.KindRequestFailure, StatusCode: 404, Err: errors.New("no handler for " + req.Name)}
	}
	return fn(req)
}

// Calls returns every request performed so far.
func (e *Executor) Calls() []network.Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]network.Request(nil), e.calls...)
}

// Count returns how many requests named name were performed.
func (e *Executor) Count(name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.calls {
		if c.Name == name {
			n++
		}
	}
	return n
}

// SocketFactory hands out pre-registered sockets by request name.
type SocketFactory struct {
	mu      sync.Mutex
	sockets map[string]*Socket
	errs    map[string]error
}

// NewSocketFactory returns a factory with no sockets.
func NewSocketFactory() *SocketFactory {
	return &SocketFactory{
		sockets: make(map[string]*Socket),
		errs:    make(map[string]error),
	}
}

// Register makes MakeSocket return s for requests named name.
func (f *SocketFactory) Register(name string, s *Socket) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sockets[name] = s
}

// Refuse makes MakeSocket fail with err for requests named name.
func (f *SocketFactory) Refuse(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[name] = err
}

func (f *SocketFactory) MakeSocket(req network.Request, _ *models.Authentication) (network.Socket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[req.Name]; err != nil {
		return nil, err
	}
	s, ok := f.sockets[req.Name]
	if !ok {
		return nil, &network.Error{Kind: network.KindInvalidURL, Err: errors.New("no socket for " + req.Name)}
	}
	return s, nil
}
