// Package altio implements the alternative-IO channel: raw text input
// lines to the device's input agent and binary screenshot frames back.
package altio

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shehryarbajwa/devicecloud-mini/pkg/models"
)

// Phase is the touch phase of a touch line.
type Phase string

const (
	PhaseDown Phase = "d"
	PhaseMove Phase = "m"
	PhaseUp   Phase = "u"
)

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	return p == PhaseDown || p == PhaseMove || p == PhaseUp
}

// Touch is one touch sample in viewport coordinates.
type Touch struct {
	Phase  Phase
	Width  int
	Height int
	// ActiveTouches is the number of fingers currently down.
	ActiveTouches int
	Index         int
	X             int
	Y             int
}

// String renders the wire line, e.g. "mt/d 400 800 0 1 0 100 200". The
// orientation flag is 1 when the viewport is wider than tall.
func (t Touch) String() string {
	landscape := 0
	if t.Width > t.Height {
		landscape = 1
	}
	return fmt.Sprintf("mt/%s %d %d %d %d %d %d %d",
		t.Phase, t.Width, t.Height, landscape, t.ActiveTouches, t.Index, t.X, t.Y)
}

// Key is a discrete hardware key.
type Key string

const (
	KeyHome Key = "Sauce_Home_Key"
	KeyBack Key = "Sauce_Back_Key"
	KeyMenu Key = "Sauce_Menu_Key"
)

// KeyCommand renders the wire line of a key press.
func KeyCommand(k Key) string {
	return "tt/" + string(k)
}

// ParseKey maps a short name ("home", "back", "menu") or a wire name to a Key.
func ParseKey(name string) (Key, bool) {
	switch strings.ToLower(name) {
	case "home", strings.ToLower(string(KeyHome)):
		return KeyHome, true
	case "back", strings.ToLower(string(KeyBack)):
		return KeyBack, true
	case "menu", strings.ToLower(string(KeyMenu)):
		return KeyMenu, true
	}
	return "", false
}

// AvailableKeys returns the keys the viewer may offer for a device. Devices
// with on-screen buttons draw their own, so only iOS keeps Home then.
func AvailableKeys(d models.DeviceSessionDescriptor) []Key {
	var keys []Key
	if strings.EqualFold(d.OS, "IOS") || !d.HasOnScreenButtons {
		keys = append(keys, KeyHome)
	}
	if strings.EqualFold(d.OS, "ANDROID") && !d.HasOnScreenButtons {
		keys = append(keys, KeyBack, KeyMenu)
	}
	return keys
}

// ErrInvalidInput is returned by NormalizeLine for lines the input agent
// would not understand.
var ErrInvalidInput = errors.New("invalid input line")

// NormalizeLine validates a line coming from a viewer and returns its wire
// form. Touch lines must carry a known phase and seven integers; key lines
// may use a short key name but must name one of keys.
func NormalizeLine(line string, keys []Key) (string, error) {
	line = strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(line, "mt/"):
		fields := strings.Fields(strings.TrimPrefix(line, "mt/"))
		if len(fields) != 8 || !Phase(fields[0]).Valid() {
			return "", fmt.Errorf("%w: %q", ErrInvalidInput, line)
		}
		for _, f := range fields[1:] {
			if _, err := strconv.Atoi(f); err != nil {
				return "", fmt.Errorf("%w: %q", ErrInvalidInput, line)
			}
		}
		return "mt/" + strings.Join(fields, " "), nil
	case strings.HasPrefix(line, "tt/"):
		key, ok := ParseKey(strings.TrimPrefix(line, "tt/"))
		if !ok {
			return "", fmt.Errorf("%w: unknown key in %q", ErrInvalidInput, line)
		}
		for _, k := range keys {
			if k == key {
				return KeyCommand(key), nil
			}
		}
		return "", fmt.Errorf("%w: %s not available on this device", ErrInvalidInput, key)
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidInput, line)
}
