package session

import (
	"context"
	"fmt"

	"github.com/shehryarbajwa/devicecloud-mini/internal/altio"
	"github.com/shehryarbajwa/devicecloud-mini/internal/metrics"
	"github.com/shehryarbajwa/devicecloud-mini/internal/network"
	"github.com/shehryarbajwa/devicecloud-mini/internal/requests"
	"github.com/shehryarbajwa/devicecloud-mini/pkg/models"
)

func (s *Session) readyDevice() (models.DeviceSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tornDown {
		return models.DeviceSession{}, ErrClosed
	}
	if s.ready == nil {
		return models.DeviceSession{}, ErrNotReady
	}
	return s.ready.Session, nil
}

func (s *Session) command(ctx context.Context, name string, build func(models.DeviceSession) network.Request) error {
	device, err := s.readyDevice()
	if err == nil {
		err = network.Send(ctx, s.o.deps.Executor, build(device), s.auth)
	}
	metrics.RecordCommand(name, err)
	return err
}

// SetOrientation rotates the device.
func (s *Session) SetOrientation(ctx context.Context, o models.Orientation) error {
	if !o.Valid() {
		return fmt.Errorf("invalid orientation %q", o)
	}
	return s.command(ctx, "orientation", func(d models.DeviceSession) network.Request {
		return requests.SetOrientation(o, d)
	})
}

// SendPasteText types text into the focused field.
func (s *Session) SendPasteText(ctx context.Context, text string) error {
	return s.command(ctx, "paste", func(d models.DeviceSession) network.Request {
		return requests.Paste(text, d)
	})
}

// RestartApp relaunches the app under test.
func (s *Session) RestartApp(ctx context.Context) error {
	return s.command(ctx, "restart", requests.RelaunchApp)
}

// Close tears the session down on behalf of the user.
func (s *Session) Close() {
	s.Teardown(ReasonUser)
}

// Snapshot is a point-in-time view of a session for viewers.
type Snapshot struct {
	ID              string                          `json:"id"`
	Stage           string                          `json:"stage"`
	DeviceSessionID string                          `json:"deviceSessionId,omitempty"`
	TestReportID    string                          `json:"testReportId,omitempty"`
	Descriptor      *models.DeviceSessionDescriptor `json:"descriptor,omitempty"`
	DeviceState     string                          `json:"deviceState,omitempty"`
	Rotating        bool                            `json:"rotating"`
	Keys            []altio.Key                     `json:"keys,omitempty"`
	Closed          bool                            `json:"closed"`
	CloseReason     CloseReason                     `json:"closeReason,omitempty"`
	Expected        bool                            `json:"expected,omitempty"`
	Error           string                          `json:"error,omitempty"`
}

// Snapshot returns the current state of the session.
func (s *Session) Snapshot() Snapshot {
	p := s.progress.Get()

	s.mu.Lock()
	reason, failure := s.reason, s.err
	s.mu.Unlock()

	snap := Snapshot{
		ID:          s.ID,
		Stage:       p.Stage.String(),
		Descriptor:  p.Descriptor,
		Closed:      reason != "",
		CloseReason: reason,
		Expected:    reason.Expected() && failure == nil,
	}
	if p.Session != nil {
		snap.DeviceSessionID = p.Session.DeviceSessionID
		snap.TestReportID = p.Session.TestReportID
	}
	if p.Companion != nil {
		snap.DeviceState = string(p.Companion.StatusUpdate.Get())
		snap.Rotating = p.Companion.Rotating.Get()
	}
	if p.Descriptor != nil {
		snap.Keys = altio.AvailableKeys(*p.Descriptor)
	}
	if failure != nil {
		snap.Error = failure.Error()
	}
	return snap
}
