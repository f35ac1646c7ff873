package media

import (
	"errors"
	"fmt"
	"math"

	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/p2pcall/internal/session"
	"github.com/1ureka/p2pcall/internal/signaling"
	"github.com/1ureka/p2pcall/internal/util"
)

// Compile-time interface check.
var _ session.Engine = (*Engine)(nil)

// ErrRejectedDescription is wrapped by SetRemoteDescription when the remote
// SDP is not a usable audio/video description.
var ErrRejectedDescription = errors.New("rejected remote description")

// Engine wraps a single PeerConnection for one call session.
type Engine struct {
	pc *webrtc.PeerConnection
}

// NewEngine creates an Engine with receive-only audio and video transceivers.
func NewEngine(iceServers []string) (*Engine, error) {
	api, err := newAPI()
	if err != nil {
		return nil, fmt.Errorf("failed to configure media engine: %w", err)
	}

	pc, err := newPeerConnection(api, iceServers)
	if err != nil {
		return nil, fmt.Errorf("failed to create PeerConnection: %w", err)
	}

	if err := addReceivers(pc); err != nil {
		pc.Close()
		return nil, fmt.Errorf("failed to add transceivers: %w", err)
	}

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		util.LogInfo("receiving remote %s track %s (%s)", track.Kind(), track.ID(), track.Codec().MimeType)
		go drain(track)
	})

	return &Engine{pc: pc}, nil
}

// Factory returns a session.EngineFactory producing Engines that share the
// same ICE server list.
func Factory(iceServers []string) session.EngineFactory {
	return func() (session.Engine, error) {
		return NewEngine(iceServers)
	}
}

// drain reads and discards RTP so the interceptors keep producing RTCP.
func drain(track *webrtc.TrackRemote) {
	var packets int
	for {
		if _, _, err := track.ReadRTP(); err != nil {
			util.LogDebug("remote %s track %s ended after %d packets", track.Kind(), track.ID(), packets)
			return
		}
		packets++
	}
}

// ---------------------------------------------------------------------------
// Descriptions
// ---------------------------------------------------------------------------

// CreateOffer generates an SDP offer and applies it as the local description.
func (e *Engine) CreateOffer() (string, error) {
	offer, err := e.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("CreateOffer: %w", err)
	}
	if err := e.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("SetLocalDescription: %w", err)
	}
	return offer.SDP, nil
}

// CreateAnswer generates an SDP answer and applies it as the local description.
func (e *Engine) CreateAnswer() (string, error) {
	answer, err := e.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("CreateAnswer: %w", err)
	}
	if err := e.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("SetLocalDescription: %w", err)
	}
	return answer.SDP, nil
}

// SetRemoteDescription validates and applies the peer's offer or answer.
func (e *Engine) SetRemoteDescription(kind signaling.MessageType, raw string) error {
	var typ webrtc.SDPType
	switch kind {
	case signaling.MsgTypeOffer:
		typ = webrtc.SDPTypeOffer
	case signaling.MsgTypeAnswer:
		typ = webrtc.SDPTypeAnswer
	default:
		return fmt.Errorf("%w: %q is not a description type", ErrRejectedDescription, kind)
	}

	if err := validateSDP(raw); err != nil {
		return err
	}

	if err := e.pc.SetRemoteDescription(webrtc.SessionDescription{Type: typ, SDP: raw}); err != nil {
		return fmt.Errorf("%w: %v", ErrRejectedDescription, err)
	}
	return nil
}

// validateSDP rejects descriptions that do not parse or carry no media
// section before they reach the PeerConnection.
func validateSDP(raw string) error {
	var desc sdp.SessionDescription
	if err := desc.Unmarshal([]byte(raw)); err != nil {
		return fmt.Errorf("%w: %v", ErrRejectedDescription, err)
	}
	if len(desc.MediaDescriptions) == 0 {
		return fmt.Errorf("%w: no media section", ErrRejectedDescription)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Candidates
// ---------------------------------------------------------------------------

// AddICECandidate adds a remote ICE candidate received through signaling.
func (e *Engine) AddICECandidate(mid string, index int, candidate string) error {
	if index < 0 || index > math.MaxUint16 {
		return fmt.Errorf("m-line index %d out of range", index)
	}
	idx := uint16(index)

	return e.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:     candidate,
		SDPMid:        &mid,
		SDPMLineIndex: &idx,
	})
}

// OnICECandidate registers a callback invoked whenever a new local ICE
// candidate is gathered. The end-of-gathering signal is not forwarded.
func (e *Engine) OnICECandidate(fn func(mid string, index int, candidate string)) {
	e.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}

		init := c.ToJSON()
		var mid string
		var index int
		if init.SDPMid != nil {
			mid = *init.SDPMid
		}
		if init.SDPMLineIndex != nil {
			index = int(*init.SDPMLineIndex)
		}
		fn(mid, index, init.Candidate)
	})
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// OnConnectionStateChange registers a callback for PeerConnection state changes.
func (e *Engine) OnConnectionStateChange(fn func(session.ConnectionState)) {
	e.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		util.LogDebug("PeerConnection state: %s", state.String())
		fn(connectionState(state))
	})
}

// Close shuts down the PeerConnection.
func (e *Engine) Close() error {
	return e.pc.Close()
}

func connectionState(state webrtc.PeerConnectionState) session.ConnectionState {
	switch state {
	case webrtc.PeerConnectionStateConnecting:
		return session.ConnectionConnecting
	case webrtc.PeerConnectionStateConnected:
		return session.ConnectionConnected
	case webrtc.PeerConnectionStateDisconnected:
		return session.ConnectionDisconnected
	case webrtc.PeerConnectionStateFailed:
		return session.ConnectionFailed
	case webrtc.PeerConnectionStateClosed:
		return session.ConnectionClosed
	default:
		return session.ConnectionNew
	}
}
