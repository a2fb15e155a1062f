package client

import (
	"github.com/dkeye/voicemesh/internal/core"
	"github.com/dkeye/voicemesh/internal/domain"
	"github.com/pion/webrtc/v4"
)

type PeerState int

const (
	StateNew PeerState = iota
	StateOfferSent
	StateOfferReceived
	StateAnswerExchanged
	StateIceGathering
	StateConnected
	StateDisconnected
	StateFailed
	StateClosed
)

func (s PeerState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateOfferSent:
		return "offer-sent"
	case StateOfferReceived:
		return "offer-received"
	case StateAnswerExchanged:
		return "answer-exchanged"
	case StateIceGathering:
		return "ice-gathering"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

func (s PeerState) Terminal() bool {
	return s == StateDisconnected || s == StateFailed || s == StateClosed
}

// peerState maps the pion connection states the manager reacts to.
func peerState(s webrtc.PeerConnectionState) (PeerState, bool) {
	switch s {
	case webrtc.PeerConnectionStateConnected:
		return StateConnected, true
	case webrtc.PeerConnectionStateDisconnected:
		return StateDisconnected, true
	case webrtc.PeerConnectionStateFailed:
		return StateFailed, true
	case webrtc.PeerConnectionStateClosed:
		return StateClosed, true
	}
	return StateNew, false
}

// Peer is one link to a remote peer. It is owned by the session goroutine.
type Peer struct {
	ID    domain.PeerID
	State PeerState

	// Persistent links survive the loss of the signaling WebSocket.
	Persistent bool

	conn core.MediaConnection
	out  core.DataChannel
	in   core.DataChannel

	descSent    bool
	remoteSet   bool
	localQueue  []webrtc.ICECandidateInit
	remoteQueue []webrtc.ICECandidateInit
}

// Channel returns the open data channel of the link, if any.
func (p *Peer) Channel() core.DataChannel {
	if p.out != nil && p.out.IsOpen() {
		return p.out
	}
	if p.in != nil && p.in.IsOpen() {
		return p.in
	}
	return nil
}

// HasChannel reports whether a data channel exists, open or not.
func (p *Peer) HasChannel() bool { return p.out != nil || p.in != nil }
