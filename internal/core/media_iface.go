package core

import (
	"github.com/dkeye/voicemesh/internal/domain"
	"github.com/pion/webrtc/v4"
)

// DataChannel is the message transport of one peer link.
type DataChannel interface {
	Label() string
	Send(Frame) error
	IsOpen() bool
	OnOpen(func())
	OnMessage(func(Frame))
	OnClose(func())
	Close() error
}

type MediaConnection interface {
	// AddLocalTrack attaches a local track before negotiation.
	AddLocalTrack(webrtc.TrackLocal) error
	// CreateDataChannel must be called before CreateOffer to be part of the same negotiation.
	CreateDataChannel(label string) (DataChannel, error)
	// OnDataChannel sets a callback for channels opened by the remote side.
	OnDataChannel(func(DataChannel))
	// CreateOffer creates an offer and applies it as the local description.
	CreateOffer() (webrtc.SessionDescription, error)
	// ApplyOffer applies a remote offer and returns the local answer, already applied.
	ApplyOffer(webrtc.SessionDescription) (webrtc.SessionDescription, error)
	ApplyAnswer(webrtc.SessionDescription) error
	AddICECandidate(webrtc.ICECandidateInit) error
	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnTrack sets a callback that will be invoked when a new remote track arrives.
	OnTrack(func(*webrtc.TrackRemote, *webrtc.RTPReceiver))
	OnConnectionStateChange(func(webrtc.PeerConnectionState))
	Close() error
}

// MediaFactory builds connections towards a given remote peer.
type MediaFactory interface {
	NewConnection(peer domain.PeerID) (MediaConnection, error)
}
