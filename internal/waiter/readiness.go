package waiter

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/shehryarbajwa/devicecloud-mini/internal/clock"
	"github.com/shehryarbajwa/devicecloud-mini/internal/companion"
	"github.com/shehryarbajwa/devicecloud-mini/internal/stream"
)

// DefaultTimeout bounds both waits.
const DefaultTimeout = 2 * time.Minute

// Readiness waits for the companion channel to report a target state.
type Readiness struct {
	clock   clock.Clock
	timeout time.Duration
	logger  zerolog.Logger
}

// NewReadiness creates a readiness waiter. A non-positive timeout uses
// DefaultTimeout.
func NewReadiness(clk clock.Clock, timeout time.Duration, logger zerolog.Logger) *Readiness {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Readiness{clock: clk, timeout: timeout, logger: logger}
}

// Wait blocks until states reports target, reports CLOSING or FAILED, the
// timeout elapses or ctx is done. The subscription is released on return.
func (r *Readiness) Wait(ctx context.Context, states *stream.Value[companion.State], target companion.State) error {
	updates, unsubscribe := states.Subscribe()
	defer unsubscribe()

	deadline := r.clock.After(r.timeout)
	var last companion.State

	for {
		select {
		case state := <-updates:
			if state != last {
				r.logger.Debug().Str("state", string(state)).Msg("device state")
				last = state
			}
			if state == target {
				return nil
			}
			if state.Terminal() {
				return readinessError(ReasonFailed, string(state), nil)
			}
		case <-deadline:
			r.logger.Warn().Str("state", string(last)).Dur("timeout", r.timeout).Msg("device never became ready")
			return readinessError(ReasonTimeout, string(last), nil)
		case <-ctx.Done():
			return readinessError(ReasonCancelled, string(last), ctx.Err())
		}
	}
}
