package companion

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/shehryarbajwa/devicecloud-mini/internal/network"
	"github.com/shehryarbajwa/devicecloud-mini/internal/stream"
)

const feedBuffer = 256

// Channel wraps the companion socket of one device session.
//
// The read loop runs from Open until Close or a transport failure. Close is
// a normal closure and never fires ConnectionClosed.
type Channel struct {
	// StatusUpdate holds the latest device state, starting at OFFLINE.
	StatusUpdate *stream.Value[State]
	// LogMessages carries device log lines.
	LogMessages *stream.Feed[LogMessage]
	// Events carries every decoded event, in arrival order.
	Events *stream.Feed[Event]
	// Rotating is true between rotation start and finish.
	Rotating *stream.Value[bool]
	// SessionClosed fires when the server ends the session.
	SessionClosed *stream.Signal
	// SessionWillExpire fires when the server warns of expiry.
	SessionWillExpire *stream.Signal
	// ConnectionClosed fires on an abnormal closure.
	ConnectionClosed *stream.Signal

	socket network.Socket
	logger zerolog.Logger

	mu      sync.Mutex
	running bool
	closing bool
	cancel  context.CancelFunc

	openOnce  sync.Once
	closeOnce sync.Once
	done      chan struct{}
}

// New binds a channel to an unopened socket.
func New(socket network.Socket, logger zerolog.Logger) *Channel {
	return &Channel{
		StatusUpdate:      stream.NewValue(StateOffline),
		LogMessages:       stream.NewFeed[LogMessage](feedBuffer),
		Events:            stream.NewFeed[Event](feedBuffer),
		Rotating:          stream.NewValue(false),
		SessionClosed:     stream.NewSignal(),
		SessionWillExpire: stream.NewSignal(),
		ConnectionClosed:  stream.NewSignal(),
		socket:            socket,
		logger:            logger.With().Str("channel", "companion").Logger(),
		done:              make(chan struct{}),
	}
}

// Open resumes the socket and starts the read loop. Only the first call
// has an effect, and none after Close.
func (c *Channel) Open(ctx context.Context) {
	c.openOnce.Do(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closing {
			return
		}
		runCtx, cancel := context.WithCancel(ctx)
		c.cancel = cancel
		c.running = true
		go c.run(runCtx)
	})
}

// Close cancels the socket with a normal closure and waits for the read
// loop to stop. Safe to call more than once.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closing = true
		running, cancel := c.running, c.cancel
		c.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		c.socket.Cancel(network.NormalClosure)

		if running {
			<-c.done
		} else {
			c.finish()
		}
	})
}

func (c *Channel) isClosing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closing
}

func (c *Channel) finish() {
	c.LogMessages.Close()
	c.Events.Close()
}

func (c *Channel) run(ctx context.Context) {
	defer close(c.done)
	defer c.finish()

	if err := c.socket.Resume(ctx); err != nil {
		c.fail(err)
		return
	}
	c.logger.Debug().Msg("companion socket opened")

	for {
		msg, err := c.socket.Receive()
		if err != nil {
			c.fail(err)
			return
		}

		switch msg.Kind {
		case network.TextMessage:
			c.handle(msg.Data)
		case network.BinaryMessage:
			c.logger.Debug().Int("bytes", len(msg.Data)).Msg("ignoring binary companion frame")
		}
	}
}

func (c *Channel) fail(err error) {
	if c.isClosing() || network.IsLocalClose(err) {
		c.logger.Debug().Err(err).Msg("companion socket closed")
		return
	}
	c.logger.Error().Err(err).Msg("companion connection lost")
	c.ConnectionClosed.Fire()
}

func (c *Channel) handle(data []byte) {
	ev, err := Decode(data)
	if err != nil {
		c.logger.Info().Err(err).Str("message", string(data)).Msg("unparseable companion message")
		return
	}
	if ev == nil {
		c.logger.Info().Str("message", string(data)).Msg("unhandled companion message")
		return
	}

	switch e := ev.(type) {
	case StatusUpdate:
		c.logger.Debug().Str("state", string(e.State)).Msg("device state")
		c.StatusUpdate.Set(e.State)
	case LogMessage:
		c.LogMessages.Publish(e)
	case SessionClosed:
		c.logger.Info().Msg("session closed by server")
		c.SessionClosed.Fire()
	case SessionWillExpire:
		c.logger.Info().Msg("session will expire")
		c.SessionWillExpire.Fire()
	case RotationStart:
		c.Rotating.Set(true)
	case RotationFinish:
		c.Rotating.Set(false)
	}
	c.Events.Publish(ev)
}
