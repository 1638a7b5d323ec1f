package requests

import (
	"net/http"
	"net/url"

	"github.com/shehryarbajwa/devicecloud-mini/internal/network"
	"github.com/shehryarbajwa/devicecloud-mini/pkg/models"
)

// VideoOffer posts an SDP offer for the session's video room. It is
// authorized by the room access token, not the account token.
func VideoOffer(creds models.WebRTCCredentials, offer []byte) network.Request {
	return network.Request{
		Name:   "video.offer",
		Method: http.MethodPost,
		Path:   "/v1/rdc/webrtc/rooms/" + url.PathEscape(creds.RoomName) + "/offer",
		Headers: map[string]string{
			"Authorization": "Bearer " + creds.AccessToken,
			"Content-Type":  "application/json;charset=UTF-8",
		},
		Body:     offer,
		SkipAuth: true,
	}
}
