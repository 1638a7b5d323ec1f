package video

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/shehryarbajwa/devicecloud-mini/internal/stream"
	"github.com/shehryarbajwa/devicecloud-mini/pkg/models"
)

const iceGatherTimeout = 10 * time.Second

// Options configures a WebRTC source.
type Options struct {
	// ICEServers are STUN/TURN URLs. Empty means host candidates only.
	ICEServers []string
	// IncludeLoopback gathers loopback candidates, for same-host peers.
	IncludeLoopback bool
}

// WebRTC is a Source backed by a pion PeerConnection.
type WebRTC struct {
	creds    models.WebRTCCredentials
	signaler Signaler
	opts     Options
	logger   zerolog.Logger

	track *stream.Value[*webrtc.TrackRemote]
	// State follows the peer connection state.
	State *stream.Value[webrtc.PeerConnectionState]

	mu           sync.Mutex
	pc           *webrtc.PeerConnection
	disconnected bool
}

// NewWebRTC builds an unconnected source for a session's credentials.
func NewWebRTC(creds models.WebRTCCredentials, signaler Signaler, opts Options, logger zerolog.Logger) *WebRTC {
	return &WebRTC{
		creds:    creds,
		signaler: signaler,
		opts:     opts,
		logger:   logger.With().Str("room", creds.RoomName).Logger(),
		track:    stream.NewValue[*webrtc.TrackRemote](nil),
		State:    stream.NewValue(webrtc.PeerConnectionStateNew),
	}
}

func (w *WebRTC) Track() *stream.Value[*webrtc.TrackRemote] { return w.track }

// Credentials returns the room credentials the source joins with.
func (w *WebRTC) Credentials() models.WebRTCCredentials { return w.creds }

// Connected reports whether Connect completed signaling.
func (w *WebRTC) Connected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pc != nil
}

func (w *WebRTC) newPeerConnection() (*webrtc.PeerConnection, error) {
	config := webrtc.Configuration{}
	if len(w.opts.ICEServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{{URLs: w.opts.ICEServers}}
	}

	settingEngine := webrtc.SettingEngine{}
	if w.opts.IncludeLoopback {
		settingEngine.SetIncludeLoopbackCandidate(true)
	}
	api := webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine))
	return api.NewPeerConnection(config)
}

// Connect negotiates a receive-only video transceiver. Calling it on a
// connected source is a no-op.
func (w *WebRTC) Connect(ctx context.Context) error {
	w.mu.Lock()
	if w.disconnected {
		w.mu.Unlock()
		return ErrDisconnected
	}
	if w.pc != nil {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	pc, err := w.newPeerConnection()
	if err != nil {
		return fmt.Errorf("create peer connection: %w", err)
	}
	if err := w.negotiate(ctx, pc); err != nil {
		pc.Close()
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.disconnected || w.pc != nil {
		pc.Close()
		if w.disconnected {
			return ErrDisconnected
		}
		return nil
	}
	w.pc = pc
	w.logger.Info().Msg("video transport connected")
	return nil
}

func (w *WebRTC) negotiate(ctx context.Context, pc *webrtc.PeerConnection) error {
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		return fmt.Errorf("add video transceiver: %w", err)
	}

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if track.Kind() != webrtc.RTPCodecTypeVideo {
			return
		}
		w.logger.Debug().Str("codec", track.Codec().MimeType).Msg("video track started")
		w.track.Set(track)
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		w.logger.Debug().Str("state", state.String()).Msg("video connection state")
		w.State.Set(state)
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			w.track.Set(nil)
		}
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}

	select {
	case <-gatherComplete:
	case <-time.After(iceGatherTimeout):
		return fmt.Errorf("ice gathering timed out after %s", iceGatherTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}

	answer, err := w.signaler.Exchange(ctx, w.creds, *pc.LocalDescription())
	if err != nil {
		return fmt.Errorf("exchange sdp: %w", err)
	}
	if err := pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return nil
}

// Disconnect closes the peer connection. Later Connect calls fail.
func (w *WebRTC) Disconnect() {
	w.mu.Lock()
	pc := w.pc
	already := w.disconnected
	w.pc = nil
	w.disconnected = true
	w.mu.Unlock()

	if already {
		return
	}
	if pc != nil {
		if err := pc.Close(); err != nil {
			w.logger.Warn().Err(err).Msg("failed to close video transport")
		}
	}
	w.track.Set(nil)
}
