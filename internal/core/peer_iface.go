package core

import "github.com/pion/webrtc/v4"

// PeerFactory creates one negotiation handle per remote member. The
// configuration is passed through untouched.
type PeerFactory interface {
	NewPeerConnection(cfg webrtc.Configuration) (PeerConnection, error)
}

// PeerConnection is the negotiation capability for a single remote member.
// Callbacks may fire on any goroutine.
type PeerConnection interface {
	// CreateDataChannel opens an ordered, reliable channel. The first call
	// triggers the negotiation-needed signal.
	CreateDataChannel(label string) (DataChannel, error)
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	// AddICECandidate applies a remote ICE candidate.
	AddICECandidate(webrtc.ICECandidateInit) error

	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	OnNegotiationNeeded(func())
	// OnDataChannel fires when the remote side opened a channel to us.
	OnDataChannel(func(DataChannel))
	Close() error
}

// DataChannel is one established (or opening) peer data channel.
type DataChannel interface {
	Label() string
	Send(Frame) error
	BufferedAmount() uint64
	OnOpen(func())
	OnMessage(func(Frame))
	Close() error
}
