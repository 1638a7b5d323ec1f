package requests

import (
	"net/http"
	"net/url"

	"github.com/shehryarbajwa/devicecloud-mini/internal/network"
	"github.com/shehryarbajwa/devicecloud-mini/pkg/models"
)

// CompanionSocket is the device control/log channel of a session.
func CompanionSocket(s models.DeviceSession) network.Request {
	return network.Request{
		Name:   "socket.companion",
		Method: http.MethodGet,
		Path:   "/v1/rdc/socket/companion/" + url.PathEscape(s.DeviceSessionID),
	}
}

// AlternativeIOSocket is the fallback input/screenshot channel of a session.
func AlternativeIOSocket(s models.DeviceSession) network.Request {
	return network.Request{
		Name:   "socket.alternative_io",
		Method: http.MethodGet,
		Path:   "/v1/rdc/socket/alternativeIo/" + url.PathEscape(s.DeviceSessionID),
	}
}
