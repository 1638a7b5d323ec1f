package waiter

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/shehryarbajwa/devicecloud-mini/internal/clock"
	"github.com/shehryarbajwa/devicecloud-mini/internal/network"
	"github.com/shehryarbajwa/devicecloud-mini/internal/requests"
	"github.com/shehryarbajwa/devicecloud-mini/pkg/models"
)

// DefaultInterval is the pause between installation status polls.
const DefaultInterval = 100 * time.Millisecond

// Installation polls an app installation until it finishes.
type Installation struct {
	exec     network.Executor
	clock    clock.Clock
	interval time.Duration
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewInstallation creates an installation waiter. Non-positive durations
// fall back to DefaultInterval and DefaultTimeout.
func NewInstallation(exec network.Executor, clk clock.Clock, interval, timeout time.Duration, logger zerolog.Logger) *Installation {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Installation{
		exec:     exec,
		clock:    clk,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
	}
}

// Wait polls the installation status until FINISHED. ERROR and the
// deadline both fail with an error matching network.ErrUnauthorized.
func (w *Installation) Wait(ctx context.Context, auth *models.Authentication, session models.DeviceSession, installationID string) error {
	deadlineAt := w.clock.Now().Add(w.timeout)
	deadline := w.clock.After(w.timeout)
	var last models.InstallationStatus

	for polls := 1; ; polls++ {
		progress, err := network.Decode[models.InstallationProgress](ctx, w.exec, requests.InstallationStatus(session, installationID), auth)
		if err != nil {
			if ctx.Err() != nil {
				return installationError(ReasonCancelled, string(last), ctx.Err())
			}
			return installationError(ReasonRequest, string(last), err)
		}

		if progress.Status != last {
			w.logger.Debug().Str("status", string(progress.Status)).Int("polls", polls).Msg("installation status")
			last = progress.Status
		}

		switch progress.Status {
		case models.InstallationFinished:
			return nil
		case models.InstallationError:
			return installationError(ReasonFailed, string(last), nil)
		}

		if !w.clock.Now().Before(deadlineAt) {
			return installationError(ReasonTimeout, string(last), nil)
		}

		select {
		case <-w.clock.After(w.interval):
		case <-deadline:
			return installationError(ReasonTimeout, string(last), nil)
		case <-ctx.Done():
			return installationError(ReasonCancelled, string(last), ctx.Err())
		}
	}
}
