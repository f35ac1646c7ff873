// Package media adapts a pion PeerConnection to the session.Engine contract.
// It negotiates receive-only audio and video: capture is not part of this
// program, so remote tracks are drained and logged.
package media

import (
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/p2pcall/internal/util"
)

// newAPI builds a pion API with the default codecs and interceptors and with
// pion's logs routed through our logger.
func newAPI() (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, registry); err != nil {
		return nil, err
	}

	se := webrtc.SettingEngine{LoggerFactory: util.PionLoggerFactory{}}

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(se),
	), nil
}

// newPeerConnection creates a PeerConnection using the given STUN/TURN URLs.
// An empty list gathers host candidates only.
func newPeerConnection(api *webrtc.API, iceServers []string) (*webrtc.PeerConnection, error) {
	config := webrtc.Configuration{}
	if len(iceServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{{URLs: iceServers}}
	}
	return api.NewPeerConnection(config)
}

// addReceivers adds one receive-only audio and one receive-only video
// transceiver, so that an offer carries both media sections.
func addReceivers(pc *webrtc.PeerConnection) error {
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			return err
		}
	}
	return nil
}
