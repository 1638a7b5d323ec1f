// Package video wraps the session's video transport. The transport is a
// receive-only WebRTC peer whose remote track carries the device screen.
package video

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/shehryarbajwa/devicecloud-mini/internal/network"
	"github.com/shehryarbajwa/devicecloud-mini/internal/requests"
	"github.com/shehryarbajwa/devicecloud-mini/internal/stream"
	"github.com/shehryarbajwa/devicecloud-mini/pkg/models"
)

// ErrDisconnected is returned by Connect after Disconnect.
var ErrDisconnected = errors.New("video source disconnected")

// Source is a video transport. Track holds the active remote video track,
// or nil while there is none.
type Source interface {
	Connect(ctx context.Context) error
	Disconnect()
	Track() *stream.Value[*webrtc.TrackRemote]
}

// Signaler trades a local SDP offer for the remote answer.
type Signaler interface {
	Exchange(ctx context.Context, creds models.WebRTCCredentials, offer webrtc.SessionDescription) (webrtc.SessionDescription, error)
}

// HTTPSignaler exchanges SDP through the device cloud REST API.
type HTTPSignaler struct {
	exec network.Executor
}

// NewHTTPSignaler creates a signaler performing calls through exec.
func NewHTTPSignaler(exec network.Executor) *HTTPSignaler {
	return &HTTPSignaler{exec: exec}
}

func (s *HTTPSignaler) Exchange(ctx context.Context, creds models.WebRTCCredentials, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	body, err := json.Marshal(offer)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("encode offer: %w", err)
	}

	answer, err := network.Decode[webrtc.SessionDescription](ctx, s.exec, requests.VideoOffer(creds, body), nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if answer.Type != webrtc.SDPTypeAnswer || answer.SDP == "" {
		return webrtc.SessionDescription{}, &network.Error{
			Kind: network.KindInvalidServerResponse,
			Err:  fmt.Errorf("expected sdp answer, got %q", answer.Type.String()),
		}
	}
	return answer, nil
}
