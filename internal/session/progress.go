package session

import (
	"github.com/shehryarbajwa/devicecloud-mini/internal/altio"
	"github.com/shehryarbajwa/devicecloud-mini/internal/companion"
	"github.com/shehryarbajwa/devicecloud-mini/internal/video"
	"github.com/shehryarbajwa/devicecloud-mini/pkg/models"
)

// Stage is one step of the session-opening state machine. Stages are
// emitted in declaration order; StageError replaces whatever comes next.
type Stage int

const (
	StageInitializing Stage = iota
	StageStarted
	StageScreen
	StageDescriptor
	StageDeviceConnected
	StageDeviceOnline
	StageReady
	StageError
)

var stageNames = [...]string{
	StageInitializing:    "initializing",
	StageStarted:         "started",
	StageScreen:          "screen",
	StageDescriptor:      "descriptor",
	StageDeviceConnected: "device_connected",
	StageDeviceOnline:    "device_online",
	StageReady:           "ready",
	StageError:           "error",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "unknown"
	}
	return stageNames[s]
}

// Progress is an emitted stage. Fields fill in as the session advances
// and stay set in later stages.
type Progress struct {
	Stage      Stage
	Session    *models.DeviceSession
	Source     video.Source
	Descriptor *models.DeviceSessionDescriptor
	Companion  *companion.Channel
	Ready      *Ready
	Err        error
}

// Ready is the content of a fully interactive session.
type Ready struct {
	Session       models.DeviceSession
	Descriptor    models.DeviceSessionDescriptor
	Companion     *companion.Channel
	AlternativeIO *altio.Channel
	Source        video.Source
}

// CloseReason records what tore a session down.
type CloseReason string

const (
	ReasonUser             CloseReason = "user"
	ReasonSessionClosed    CloseReason = "session_closed"
	ReasonConnectionClosed CloseReason = "connection_closed"
	ReasonError            CloseReason = "error"
	ReasonShutdown         CloseReason = "shutdown"
)

// Expected reports whether the session simply ended, as opposed to
// failing. Viewers show a friendlier message for these.
func (r CloseReason) Expected() bool {
	return r == ReasonUser || r == ReasonSessionClosed || r == ReasonConnectionClosed || r == ReasonShutdown
}
