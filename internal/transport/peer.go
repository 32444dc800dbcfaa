package transport

import (
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/rtcnegotiator/internal/util"
)

// DefaultSTUNServers are used when Options.ICEServers is nil. An empty,
// non-nil slice disables STUN and gathers host candidates only.
var DefaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// DefaultChannelLabel names the data channel the initiator opens.
const DefaultChannelLabel = "test data channel"

// newAPI builds a pion API whose internal logging goes through util.
func newAPI() *webrtc.API {
	var se webrtc.SettingEngine
	se.LoggerFactory = util.PionLoggerFactory{}
	return webrtc.NewAPI(webrtc.WithSettingEngine(se))
}

// newPeerConnection creates a PeerConnection with the given STUN/TURN URLs.
func newPeerConnection(api *webrtc.API, iceServers []string) (*webrtc.PeerConnection, error) {
	if iceServers == nil {
		iceServers = DefaultSTUNServers
	}

	var config webrtc.Configuration
	if len(iceServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{{URLs: iceServers}}
	}
	return api.NewPeerConnection(config)
}

// newDataChannel creates the initiator's ordered, in-band negotiated data
// channel. The responder receives it through OnDataChannel.
func newDataChannel(pc *webrtc.PeerConnection, label string) (*webrtc.DataChannel, error) {
	ordered := true
	return pc.CreateDataChannel(label, &webrtc.DataChannelInit{
		Ordered: &ordered,
	})
}
