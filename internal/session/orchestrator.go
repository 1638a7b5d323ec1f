// Package session drives a device session from the open call to a fully
// interactive device, and owns its teardown.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/shehryarbajwa/devicecloud-mini/internal/altio"
	"github.com/shehryarbajwa/devicecloud-mini/internal/clock"
	"github.com/shehryarbajwa/devicecloud-mini/internal/companion"
	"github.com/shehryarbajwa/devicecloud-mini/internal/log"
	"github.com/shehryarbajwa/devicecloud-mini/internal/metrics"
	"github.com/shehryarbajwa/devicecloud-mini/internal/network"
	"github.com/shehryarbajwa/devicecloud-mini/internal/requests"
	"github.com/shehryarbajwa/devicecloud-mini/internal/stream"
	"github.com/shehryarbajwa/devicecloud-mini/internal/video"
	"github.com/shehryarbajwa/devicecloud-mini/internal/waiter"
	"github.com/shehryarbajwa/devicecloud-mini/pkg/models"
)

// VideoFactory builds an unconnected video source for a session.
type VideoFactory func(creds models.WebRTCCredentials) video.Source

// Dependencies are the collaborators of an Orchestrator.
type Dependencies struct {
	Executor network.Executor
	Sockets  network.SocketFactory
	Video    VideoFactory
	Clock    clock.Clock
	Logger   zerolog.Logger
}

// Options tune the orchestrator. Zero values use the defaults.
type Options struct {
	ReadinessTimeout time.Duration
	InstallTimeout   time.Duration
	InstallInterval  time.Duration
	// CloseTimeout bounds the close call made on teardown.
	CloseTimeout time.Duration
	// ConnectVideo connects the video source once the session is ready.
	ConnectVideo bool
}

const defaultCloseTimeout = 10 * time.Second

// Orchestrator opens device sessions.
type Orchestrator struct {
	deps Dependencies
	opts Options
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(deps Dependencies, opts Options) *Orchestrator {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Video == nil {
		deps.Video = func(creds models.WebRTCCredentials) video.Source {
			return video.NewWebRTC(creds, video.NewHTTPSignaler(deps.Executor), video.Options{}, deps.Logger)
		}
	}
	if opts.CloseTimeout <= 0 {
		opts.CloseTimeout = defaultCloseTimeout
	}
	return &Orchestrator{deps: deps, opts: opts}
}

// Session is one attempt at a device session, from initializing to its
// teardown.
type Session struct {
	// ID is the local handle of the session.
	ID string

	o                  *Orchestrator
	auth               *models.Authentication
	deviceDescriptorID string
	launcher           Launcher
	logger             zerolog.Logger
	createdAt          time.Time

	progress *stream.Value[Progress]
	ctx      context.Context
	cancel   context.CancelFunc
	settled  chan struct{}
	closed   chan struct{}

	mu         sync.Mutex
	history    []Progress
	current    Progress
	device     *models.DeviceSession
	source     video.Source
	companion  *companion.Channel
	altio      *altio.Channel
	ready      *Ready
	err        error
	tornDown   bool
	reason     CloseReason
	closeOnce  sync.Once
	teardownWG sync.WaitGroup
}

// Connect starts opening a session in the background and returns at once.
// ctx bounds the whole session lifetime, so it must outlive the caller's
// request.
func (o *Orchestrator) Connect(ctx context.Context, auth *models.Authentication, deviceDescriptorID string, launcher Launcher) *Session {
	s := o.newSession(ctx, auth, deviceDescriptorID, launcher)
	go s.run()
	return s
}

func (o *Orchestrator) newSession(ctx context.Context, auth *models.Authentication, deviceDescriptorID string, launcher Launcher) *Session {
	runCtx, cancel := context.WithCancel(ctx)
	id := uuid.NewString()
	initial := Progress{Stage: StageInitializing}
	return &Session{
		ID:                 id,
		o:                  o,
		auth:               auth,
		deviceDescriptorID: deviceDescriptorID,
		launcher:           launcher,
		logger:             o.deps.Logger.With().Str("handle", id).Str("device", deviceDescriptorID).Logger(),
		createdAt:          o.deps.Clock.Now(),
		progress:           stream.NewValue(initial),
		ctx:                runCtx,
		cancel:             cancel,
		settled:            make(chan struct{}),
		closed:             make(chan struct{}),
	}
}

// Progress holds the latest emitted stage.
func (s *Session) Progress() *stream.Value[Progress] { return s.progress }

// History returns every stage emitted so far, in order.
func (s *Session) History() []Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Progress(nil), s.history...)
}

// Settled is closed once the session reached ready or error.
func (s *Session) Settled() <-chan struct{} { return s.settled }

// Closed is closed once teardown finished.
func (s *Session) Closed() <-chan struct{} { return s.closed }

// Reason returns the close reason, empty while the session is live.
func (s *Session) Reason() CloseReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Err returns the failure of a session that ended in StageError.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Ready returns the ready content, or nil before ready.
func (s *Session) Ready() *Ready {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Wait blocks until the session is ready or failed.
func (s *Session) Wait(ctx context.Context) (*Ready, error) {
	select {
	case <-s.settled:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.ready, nil
}

func (s *Session) emit(p Progress) {
	s.mu.Lock()
	s.history = append(s.history, p)
	s.current = p
	s.mu.Unlock()

	s.publish(p)
}

func (s *Session) publish(p Progress) {
	s.progress.Set(p)
	metrics.RecordStage(p.Stage.String())
	s.logger.Info().Str("stage", p.Stage.String()).Msg("session progress")
}

// advance emits stage with the fields gathered so far.
func (s *Session) advance(stage Stage, update func(p *Progress)) {
	s.mu.Lock()
	next := s.current
	s.mu.Unlock()

	next.Stage = stage
	if update != nil {
		update(&next)
	}
	s.emit(next)
}

// attach stores a resource unless teardown already started.
func (s *Session) attach(store func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tornDown {
		return ErrClosed
	}
	store()
	return nil
}

func (s *Session) run() {
	defer close(s.settled)

	s.emit(Progress{Stage: StageInitializing})

	ready, stage, err := s.establish()
	if err == nil {
		stage, err = StageReady, s.settleReady(ready)
	}
	if err != nil {
		s.fail(stage, err)
		return
	}

	if s.o.opts.ConnectVideo {
		go s.connectVideo(ready.Source)
	}
}

// settleReady publishes ready unless teardown started while the session
// was being established. The video connect is registered with teardownWG
// under the same lock so Teardown always waits for it.
func (s *Session) settleReady(ready *Ready) error {
	s.mu.Lock()
	if s.tornDown {
		s.mu.Unlock()
		return ErrClosed
	}
	s.ready = ready
	if s.o.opts.ConnectVideo {
		s.teardownWG.Add(1)
	}
	next := s.current
	next.Stage = StageReady
	next.Ready = ready
	s.history = append(s.history, next)
	s.current = next
	s.mu.Unlock()

	s.publish(next)
	return nil
}

func (s *Session) establish() (*Ready, Stage, error) {
	ctx := s.ctx
	exec := s.o.deps.Executor

	device, err := network.Decode[models.DeviceSession](ctx, exec, s.launcher.OpenRequest(s.deviceDescriptorID), s.auth)
	if err != nil {
		return nil, StageStarted, err
	}
	if device.DeviceSessionID == "" {
		return nil, StageStarted, network.ErrInvalidServerResponse
	}
	if err := s.attach(func() { s.device = &device }); err != nil {
		s.closeRemote(device)
		return nil, StageStarted, err
	}
	logger := log.WithSession(s.logger, device.DeviceSessionID)
	s.advance(StageStarted, func(p *Progress) { p.Session = &device })

	source := s.o.deps.Video(device.WebRTCCredentials)
	if err := s.attach(func() { s.source = source }); err != nil {
		return nil, StageScreen, err
	}
	s.advance(StageScreen, func(p *Progress) { p.Source = source })

	descriptor, err := network.Decode[models.SessionDescriptor](ctx, exec, requests.DeviceDescriptor(device), s.auth)
	if err != nil {
		return nil, StageDescriptor, err
	}
	if descriptor.Status == models.StatusError {
		return nil, StageDescriptor, network.ErrInvalidServerResponse
	}
	desc := descriptor.DeviceSessionDescriptor
	s.advance(StageDescriptor, func(p *Progress) { p.Descriptor = &desc })

	companionSocket, err := s.o.deps.Sockets.MakeSocket(requests.CompanionSocket(device), s.auth)
	if err != nil {
		return nil, StageDeviceConnected, err
	}
	comp := companion.New(companionSocket, logger)
	if err := s.attach(func() { s.companion = comp }); err != nil {
		comp.Close()
		return nil, StageDeviceConnected, err
	}
	s.watch(comp.SessionClosed.Done(), ReasonSessionClosed)
	s.watch(comp.ConnectionClosed.Done(), ReasonConnectionClosed)
	comp.Open(ctx)
	s.advance(StageDeviceConnected, func(p *Progress) { p.Companion = comp })

	ioSocket, err := s.o.deps.Sockets.MakeSocket(requests.AlternativeIOSocket(device), s.auth)
	if err != nil {
		return nil, StageDeviceOnline, err
	}
	ioChannel := altio.New(ioSocket, logger)
	if err := s.attach(func() { s.altio = ioChannel }); err != nil {
		ioChannel.Close()
		return nil, StageDeviceOnline, err
	}

	readiness := waiter.NewReadiness(s.o.deps.Clock, s.o.opts.ReadinessTimeout, logger)
	clk := s.o.deps.Clock
	start := clk.Now()
	err = readiness.Wait(ctx, comp.StatusUpdate, companion.StateOnline)
	metrics.ObserveWait(string(waiter.OpReadiness), clk.Now().Sub(start), err)
	if err != nil {
		return nil, StageDeviceOnline, err
	}
	s.advance(StageDeviceOnline, nil)

	env := LaunchEnv{
		Exec:      exec,
		Auth:      s.auth,
		Installer: waiter.NewInstallation(exec, s.o.deps.Clock, s.o.opts.InstallInterval, s.o.opts.InstallTimeout, logger),
		Logger:    logger,
	}
	start = clk.Now()
	err = s.launcher.Start(ctx, env, device)
	metrics.ObserveWait("launch", clk.Now().Sub(start), err)
	if err != nil {
		return nil, StageReady, err
	}

	ioChannel.Open(ctx)
	s.watch(ioChannel.ConnectionClosed.Done(), ReasonConnectionClosed)

	return &Ready{
		Session:       device,
		Descriptor:    desc,
		Companion:     comp,
		AlternativeIO: ioChannel,
		Source:        source,
	}, StageReady, nil
}

// connectVideo runs under the teardownWG slot taken by settleReady.
func (s *Session) connectVideo(source video.Source) {
	defer s.teardownWG.Done()
	if err := source.Connect(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn().Err(err).Msg("video transport unavailable, falling back to screenshots")
	}
}

// watch tears the session down with reason once signal fires.
func (s *Session) watch(signal <-chan struct{}, reason CloseReason) {
	go func() {
		select {
		case <-signal:
			s.logger.Info().Str("reason", string(reason)).Msg("session ended remotely")
			s.Teardown(reason)
		case <-s.closed:
		}
	}()
}

func (s *Session) fail(stage Stage, err error) {
	failure := &Error{Stage: stage, Err: err}

	s.mu.Lock()
	s.err = failure
	s.mu.Unlock()

	s.logger.Error().Err(err).Str("stage", stage.String()).Msg("session failed")
	metrics.RecordFailure(stage.String())
	s.advance(StageError, func(p *Progress) { p.Err = failure })
	s.Teardown(ReasonError)
}
