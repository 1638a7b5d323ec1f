package session

import (
	"context"

	"github.com/shehryarbajwa/devicecloud-mini/internal/metrics"
	"github.com/shehryarbajwa/devicecloud-mini/internal/network"
	"github.com/shehryarbajwa/devicecloud-mini/internal/requests"
	"github.com/shehryarbajwa/devicecloud-mini/pkg/models"
)

// Teardown releases everything the session acquired: it aborts pending
// waits, closes both channels, disconnects the video source and closes
// the device lease if one was granted. Only the first call has an effect;
// its reason is the one recorded.
func (s *Session) Teardown(reason CloseReason) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.tornDown = true
		s.reason = reason
		comp, ioChannel, source, device := s.companion, s.altio, s.source, s.device
		s.mu.Unlock()

		s.cancel()

		if comp != nil {
			comp.Close()
		}
		if ioChannel != nil {
			ioChannel.Close()
		}
		s.teardownWG.Wait()
		if source != nil {
			source.Disconnect()
		}
		if device != nil {
			s.closeRemote(*device)
		}

		metrics.RecordClosed(string(reason))
		s.logger.Info().Str("reason", string(reason)).Msg("session torn down")
		close(s.closed)
	})
}

func (s *Session) closeRemote(device models.DeviceSession) {
	ctx, cancel := context.WithTimeout(context.Background(), s.o.opts.CloseTimeout)
	defer cancel()

	if err := network.Send(ctx, s.o.deps.Executor, requests.Close(device), s.auth); err != nil {
		s.logger.Warn().Err(err).Str("device_session_id", device.DeviceSessionID).Msg("failed to close device session")
	}
}
