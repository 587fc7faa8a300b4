package rtc

import (
	"github.com/dkeye/Mesh/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const DefaultSTUN = "stun:stun.l.google.com:19302"

func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{DefaultSTUN},
			},
		},
	}
}

// Factory creates pion peer connections. It implements core.PeerFactory.
type Factory struct {
	api *webrtc.API
}

// NewFactory uses the given API, or pion's default one when api is nil.
func NewFactory(api *webrtc.API) *Factory {
	return &Factory{api: api}
}

func (f *Factory) NewPeerConnection(cfg webrtc.Configuration) (core.PeerConnection, error) {
	var (
		pc  *webrtc.PeerConnection
		err error
	)
	if f.api != nil {
		pc, err = f.api.NewPeerConnection(cfg)
	} else {
		pc, err = webrtc.NewPeerConnection(cfg)
	}
	if err != nil {
		return nil, err
	}
	c := &WebRTCConnection{pc: pc}
	c.watchState()
	return c, nil
}

// WebRTCConnection wraps *webrtc.PeerConnection as core.PeerConnection.
type WebRTCConnection struct {
	pc *webrtc.PeerConnection
}

func (c *WebRTCConnection) watchState() {
	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Debug().Str("module", "adapters.rtc").Str("ice_state", s.String()).Msg("ICE state")
	})
	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "adapters.rtc").Str("peer_connection_state", s.String()).Msg("Peer state")
	})
}

func (c *WebRTCConnection) CreateDataChannel(label string) (core.DataChannel, error) {
	ordered := true
	dc, err := c.pc.CreateDataChannel(label, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return nil, err
	}
	return &DataChannel{dc: dc}, nil
}

func (c *WebRTCConnection) CreateOffer() (webrtc.SessionDescription, error) {
	return c.pc.CreateOffer(nil)
}

func (c *WebRTCConnection) CreateAnswer() (webrtc.SessionDescription, error) {
	return c.pc.CreateAnswer(nil)
}

func (c *WebRTCConnection) SetLocalDescription(d webrtc.SessionDescription) error {
	return c.pc.SetLocalDescription(d)
}

func (c *WebRTCConnection) SetRemoteDescription(d webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(d)
}

func (c *WebRTCConnection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

// OnICECandidate skips the nil end-of-gathering candidate.
func (c *WebRTCConnection) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand != nil {
			fn(cand.ToJSON())
		}
	})
}

func (c *WebRTCConnection) OnNegotiationNeeded(fn func()) {
	c.pc.OnNegotiationNeeded(fn)
}

func (c *WebRTCConnection) OnDataChannel(fn func(core.DataChannel)) {
	c.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		log.Debug().Str("module", "adapters.rtc").Str("label", dc.Label()).Msg("remote data channel")
		fn(&DataChannel{dc: dc})
	})
}

func (c *WebRTCConnection) Close() error {
	return c.pc.Close()
}

// DataChannel wraps *webrtc.DataChannel as core.DataChannel. Frames go out
// as text messages so browser peers receive strings.
type DataChannel struct {
	dc *webrtc.DataChannel
}

func (d *DataChannel) Label() string          { return d.dc.Label() }
func (d *DataChannel) BufferedAmount() uint64 { return d.dc.BufferedAmount() }
func (d *DataChannel) OnOpen(fn func())       { d.dc.OnOpen(fn) }
func (d *DataChannel) Close() error           { return d.dc.Close() }

func (d *DataChannel) Send(f core.Frame) error {
	return d.dc.SendText(string(f))
}

func (d *DataChannel) OnMessage(fn func(core.Frame)) {
	d.dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		fn(core.Frame(msg.Data))
	})
}
