// Package requests describes every REST and socket call the client makes.
// Builders are pure: they resolve to a method, path, headers and body and
// never perform I/O.
package requests

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/shehryarbajwa/devicecloud-mini/internal/network"
	"github.com/shehryarbajwa/devicecloud-mini/pkg/models"
)

const manualPrefix = "/v1/rdc/manual"

func jsonHeaders() map[string]string {
	return map[string]string{
		"Cache-Control":    "no-cache",
		"Content-Type":     "application/json;charset=UTF-8",
		"X-Requested-With": "XMLHttpRequest",
	}
}

func textHeaders() map[string]string {
	return map[string]string{
		"Cache-Control":    "no-cache",
		"Content-Type":     "text/plain",
		"X-Requested-With": "XMLHttpRequest",
	}
}

// mustJSON marshals bodies built from plain maps, which cannot fail.
func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

func sessionPath(s models.DeviceSession, suffix string) string {
	return manualPrefix + "/sessions/" + url.PathEscape(s.DeviceSessionID) + suffix
}

// Open leases a device with the WebRTC video transport enabled.
func Open(deviceDescriptorID string) network.Request {
	return network.Request{
		Name:    "session.open",
		Method:  http.MethodPost,
		Path:    manualPrefix + "/devices/" + url.PathEscape(deviceDescriptorID) + "/open",
		Headers: jsonHeaders(),
		Body:    mustJSON(map[string]any{"webRtcEnabled": true}),
	}
}

// OpenWithNativeApp leases a device and asks for an app-storage file to be
// installed with it.
func OpenWithNativeApp(groupID int, fileID, deviceDescriptorID string) network.Request {
	return network.Request{
		Name:    "session.open_with_native_app",
		Method:  http.MethodPost,
		Path:    manualPrefix + "/devices/" + url.PathEscape(deviceDescriptorID) + "/openWithNativeApp",
		Headers: jsonHeaders(),
		Body: mustJSON(map[string]any{
			"appStorageAppId":   fileID,
			"appStorageGroupId": groupID,
			"webRtcEnabled":     true,
		}),
	}
}

// DeviceDescriptor fetches the session descriptor.
func DeviceDescriptor(s models.DeviceSession) network.Request {
	return network.Request{
		Name:    "session.descriptor",
		Method:  http.MethodGet,
		Path:    sessionPath(s, ""),
		Headers: map[string]string{},
	}
}

// OpenURL opens target in the device browser. The body is the raw URL.
func OpenURL(s models.DeviceSession, target string) network.Request {
	return network.Request{
		Name:    "session.open_url",
		Method:  http.MethodPost,
		Path:    sessionPath(s, "/openUrl"),
		Headers: textHeaders(),
		Body:    []byte(target),
	}
}

// Install installs and launches an app-storage file on the device.
func Install(s models.DeviceSession, groupID int, fileID string) network.Request {
	return network.Request{
		Name:    "session.install",
		Method:  http.MethodPost,
		Path:    sessionPath(s, "/app-storage/installations"),
		Headers: jsonHeaders(),
		Body: mustJSON(map[string]any{
			"appStorageId": fileID,
			"groupId":      groupID,
			"launch":       true,
		}),
	}
}

// InstallationStatus polls an installation started by Install.
func InstallationStatus(s models.DeviceSession, installationID string) network.Request {
	return network.Request{
		Name:    "session.installation_status",
		Method:  http.MethodGet,
		Path:    sessionPath(s, "/app-storage/installations/"+url.PathEscape(installationID)),
		Headers: map[string]string{},
	}
}

// SetOrientation rotates the device. The body is the raw orientation name.
func SetOrientation(o models.Orientation, s models.DeviceSession) network.Request {
	return network.Request{
		Name:    "session.orientation",
		Method:  http.MethodPost,
		Path:    sessionPath(s, "/orientation"),
		Headers: map[string]string{},
		Body:    []byte(o),
	}
}

// Close releases the device lease.
func Close(s models.DeviceSession) network.Request {
	return network.Request{
		Name:    "session.close",
		Method:  http.MethodPost,
		Path:    sessionPath(s, "/close"),
		Headers: jsonHeaders(),
	}
}

// Paste types text into the focused field. The body is the raw text.
func Paste(text string, s models.DeviceSession) network.Request {
	return network.Request{
		Name:    "session.paste",
		Method:  http.MethodPost,
		Path:    sessionPath(s, "/pasteText"),
		Headers: textHeaders(),
		Body:    []byte(text),
	}
}

// RelaunchApp restarts the app under test.
func RelaunchApp(s models.DeviceSession) network.Request {
	return network.Request{
		Name:    "session.relaunch_app",
		Method:  http.MethodPost,
		Path:    sessionPath(s, "/apps/current/relaunch"),
		Headers: textHeaders(),
	}
}
