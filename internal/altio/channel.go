package altio

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/shehryarbajwa/devicecloud-mini/internal/network"
	"github.com/shehryarbajwa/devicecloud-mini/internal/stream"
)

const screenshotBuffer = 8

// Channel wraps the alternative-IO socket of one device session.
type Channel struct {
	// Screenshots carries binary frames verbatim.
	Screenshots *stream.Feed[[]byte]
	// ConnectionClosed fires on an abnormal closure.
	ConnectionClosed *stream.Signal

	socket network.Socket
	logger zerolog.Logger

	mu      sync.Mutex
	running bool
	closed  bool
	cancel  context.CancelFunc
	latest  []byte

	openOnce  sync.Once
	closeOnce sync.Once
	done      chan struct{}
}

// New binds a channel to an unopened socket.
func New(socket network.Socket, logger zerolog.Logger) *Channel {
	return &Channel{
		Screenshots:      stream.NewFeed[[]byte](screenshotBuffer),
		ConnectionClosed: stream.NewSignal(),
		socket:           socket,
		logger:           logger.With().Str("channel", "alternative_io").Logger(),
		done:             make(chan struct{}),
	}
}

// Open resumes the socket and starts the read loop.
func (c *Channel) Open(ctx context.Context) {
	c.openOnce.Do(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed {
			return
		}
		runCtx, cancel := context.WithCancel(ctx)
		c.cancel = cancel
		c.running = true
		go c.run(runCtx)
	})
}

// Close cancels the socket with a normal closure and waits for the read
// loop to stop. Sends after Close are dropped.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		running, cancel := c.running, c.cancel
		c.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		c.socket.Cancel(network.NormalClosure)

		if running {
			<-c.done
		} else {
			c.Screenshots.Close()
		}
	})
}

// Closed reports whether the channel stopped, locally or by failure.
func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Send writes one command line. It is a no-op once the channel is closed;
// transport errors are logged, not returned.
func (c *Channel) Send(line string) {
	if c.Closed() {
		return
	}
	if err := c.socket.Send(line); err != nil {
		c.logger.Error().Err(err).Str("line", line).Msg("failed to send input")
	}
}

// SendTouch sends a touch line.
func (c *Channel) SendTouch(t Touch) {
	c.Send(t.String())
}

// SendKey sends a key press line.
func (c *Channel) SendKey(k Key) {
	c.Send(KeyCommand(k))
}

// LatestScreenshot returns the last binary frame received, if any.
func (c *Channel) LatestScreenshot() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest
}

func (c *Channel) run(ctx context.Context) {
	defer close(c.done)
	defer c.Screenshots.Close()

	if err := c.socket.Resume(ctx); err != nil {
		c.fail(err)
		return
	}
	c.logger.Debug().Msg("alternative io socket opened")

	for {
		msg, err := c.socket.Receive()
		if err != nil {
			c.fail(err)
			return
		}

		switch msg.Kind {
		case network.TextMessage:
			c.logger.Debug().Str("message", string(msg.Data)).Msg("alternative io text frame")
		case network.BinaryMessage:
			c.mu.Lock()
			c.latest = msg.Data
			c.mu.Unlock()
			c.Screenshots.Publish(msg.Data)
		}
	}
}

func (c *Channel) fail(err error) {
	c.mu.Lock()
	closing := c.closed
	c.closed = true
	c.mu.Unlock()

	if closing || network.IsLocalClose(err) {
		c.logger.Debug().Err(err).Msg("alternative io socket closed")
		return
	}
	c.logger.Error().Err(err).Msg("alternative io connection lost")
	c.ConnectionClosed.Fire()
}
