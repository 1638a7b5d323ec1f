// Package metrics provides Prometheus metrics for device sessions.
// Labels never carry session ids.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StagesTotal counts progress stages reached, by stage.
	StagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "devicecloud",
		Name:      "session_stages_total",
		Help:      "Total number of session progress stages reached, by stage.",
	}, []string{"stage"})

	// FailuresTotal counts failed session attempts by the stage that failed.
	FailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "devicecloud",
		Name:      "session_failures_total",
		Help:      "Total number of failed session attempts, by failing stage.",
	}, []string{"stage"})

	// ClosedTotal counts torn down sessions by close reason.
	ClosedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "devicecloud",
		Name:      "sessions_closed_total",
		Help:      "Total number of torn down sessions, by reason.",
	}, []string{"reason"})

	// ActiveSessions tracks live sessions.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "devicecloud",
		Name:      "active_sessions",
		Help:      "Current number of live device sessions.",
	})

	// ViewersConnected tracks open viewer websockets.
	ViewersConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "devicecloud",
		Name:      "viewers_connected",
		Help:      "Current number of connected viewer websockets.",
	})

	// WaitSeconds observes how long the readiness and installation waits took.
	WaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "devicecloud",
		Name:      "wait_seconds",
		Help:      "Duration of session waits, by waiter and outcome.",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 90, 120},
	}, []string{"waiter", "outcome"})

	// CommandsTotal counts post-ready commands by command and result.
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "devicecloud",
		Name:      "session_commands_total",
		Help:      "Total number of post-ready session commands, by command and result.",
	}, []string{"command", "result"})

	// RequestsTotal counts REST calls by request name and result.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "devicecloud",
		Name:      "requests_total",
		Help:      "Total number of device cloud REST calls, by request and result.",
	}, []string{"request", "result"})
)

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordStage increments the counter for a reached stage.
func RecordStage(stage string) {
	StagesTotal.WithLabelValues(stage).Inc()
}

// RecordFailure increments the failure counter for stage.
func RecordFailure(stage string) {
	FailuresTotal.WithLabelValues(stage).Inc()
}

// RecordClosed increments the close counter for reason.
func RecordClosed(reason string) {
	ClosedTotal.WithLabelValues(reason).Inc()
}

// ObserveWait records how long a wait took. Callers measure elapsed on
// the clock the wait itself ran on.
func ObserveWait(waiter string, elapsed time.Duration, err error) {
	WaitSeconds.WithLabelValues(waiter, result(err)).Observe(elapsed.Seconds())
}

// RecordCommand counts a post-ready command.
func RecordCommand(command string, err error) {
	CommandsTotal.WithLabelValues(command, result(err)).Inc()
}

// RecordRequest counts a REST call.
func RecordRequest(name string, err error) {
	RequestsTotal.WithLabelValues(name, result(err)).Inc()
}
