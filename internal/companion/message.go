// Package companion implements the device control channel: a websocket
// carrying JSON envelopes with the device state, device logs and the
// server-side end of the session.
package companion

import (
	"encoding/json"
	"fmt"
)

// State is the device state reported by status updates.
type State string

const (
	StateFailed      State = "FAILED"
	StateInterrupted State = "INTERRUPTED"
	StateOffline     State = "OFFLINE"
	StateLaunch      State = "LAUNCH"
	StateVideo       State = "VIDEO"
	StateBooted      State = "BOOTED"
	StateUI          State = "UI"
	StateInput       State = "INPUT"
	StateOnline      State = "ONLINE"
	StateClosing     State = "CLOSING"
)

var knownStates = map[State]bool{
	StateFailed: true, StateInterrupted: true, StateOffline: true,
	StateLaunch: true, StateVideo: true, StateBooted: true,
	StateUI: true, StateInput: true, StateOnline: true, StateClosing: true,
}

// Valid reports whether s is one of the known states.
func (s State) Valid() bool { return knownStates[s] }

// Terminal reports whether no further progress can follow s.
func (s State) Terminal() bool { return s == StateFailed || s == StateClosing }

// Envelope type names.
const (
	TypeStatusUpdate      = "device.state.update"
	TypeRotationStart     = "device.orientation.start"
	TypeRotationFinish    = "device.orientation.finish"
	TypeLogMessage        = "device.log.message"
	TypeSessionWillExpire = "session_will_expire"
	TypeSessionClosed     = "session_closed"
)

// Event is a decoded companion message.
type Event interface {
	Type() string
}

// StatusUpdate reports a new device state.
type StatusUpdate struct {
	State State
}

// LogMessage is one line of the device log.
type LogMessage struct {
	Message string
}

// SessionClosed is sent when the server ends the session.
type SessionClosed struct{}

// SessionWillExpire warns that the session is about to time out.
type SessionWillExpire struct{}

// RotationStart is sent when the device begins to rotate.
type RotationStart struct{}

// RotationFinish is sent once rotation completed.
type RotationFinish struct{}

func (StatusUpdate) Type() string      { return TypeStatusUpdate }
func (LogMessage) Type() string        { return TypeLogMessage }
func (SessionClosed) Type() string     { return TypeSessionClosed }
func (SessionWillExpire) Type() string { return TypeSessionWillExpire }
func (RotationStart) Type() string     { return TypeRotationStart }
func (RotationFinish) Type() string    { return TypeRotationFinish }

type envelope struct {
	Type string `json:"type"`
}

type statusValue struct {
	State State `json:"state"`
}

type statusUpdateWire struct {
	Type  string      `json:"type"`
	Value statusValue `json:"value"`
}

type logMessageWire struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Decode parses one text frame. A well-formed envelope of an unknown type
// yields a nil event and no error.
func Decode(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode companion envelope: %w", err)
	}

	switch env.Type {
	case TypeStatusUpdate:
		var msg statusUpdateWire
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		if !msg.Value.State.Valid() {
			return nil, fmt.Errorf("decode %s: unknown state %q", env.Type, msg.Value.State)
		}
		return StatusUpdate{State: msg.Value.State}, nil
	case TypeLogMessage:
		var msg logMessageWire
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return LogMessage{Message: msg.Message}, nil
	case TypeSessionClosed:
		return SessionClosed{}, nil
	case TypeSessionWillExpire:
		return SessionWillExpire{}, nil
	case TypeRotationStart:
		return RotationStart{}, nil
	case TypeRotationFinish:
		return RotationFinish{}, nil
	default:
		return nil, nil
	}
}

// Encode renders ev as a companion envelope.
func Encode(ev Event) ([]byte, error) {
	switch e := ev.(type) {
	case StatusUpdate:
		return json.Marshal(statusUpdateWire{Type: e.Type(), Value: statusValue{State: e.State}})
	case LogMessage:
		return json.Marshal(logMessageWire{Type: e.Type(), Message: e.Message})
	case nil:
		return nil, fmt.Errorf("encode companion event: nil event")
	default:
		return json.Marshal(envelope{Type: ev.Type()})
	}
}
