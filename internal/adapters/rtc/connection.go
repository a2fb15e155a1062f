package rtc

import (
	"github.com/dkeye/voicemesh/internal/core"
	"github.com/dkeye/voicemesh/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Connection adapts a pion PeerConnection to core.MediaConnection.
// Candidates are trickled; no method waits for gathering to finish.
type Connection struct {
	pc   *webrtc.PeerConnection
	peer domain.PeerID
}

func newConnection(pc *webrtc.PeerConnection, peer domain.PeerID) *Connection {
	c := &Connection{pc: pc, peer: peer}
	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Debug().Str("module", "webrtc").Str("peer_id", string(peer)).Str("ice_state", s.String()).Msg("ICE state")
	})
	return c
}

func (c *Connection) AddLocalTrack(track webrtc.TrackLocal) error {
	sender, err := c.pc.AddTrack(track)
	if err != nil {
		return err
	}
	// RTCP has to be read for interceptors to work.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

func (c *Connection) CreateDataChannel(label string) (core.DataChannel, error) {
	dc, err := c.pc.CreateDataChannel(label, nil)
	if err != nil {
		return nil, err
	}
	return wrapDataChannel(dc, c.peer), nil
}

func (c *Connection) OnDataChannel(fn func(core.DataChannel)) {
	c.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		log.Debug().Str("module", "webrtc").Str("peer_id", string(c.peer)).Str("label", dc.Label()).Msg("remote data channel")
		fn(wrapDataChannel(dc, c.peer))
	})
}

func (c *Connection) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return offer, nil
}

func (c *Connection) ApplyOffer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return answer, nil
}

func (c *Connection) ApplyAnswer(answer webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(answer)
}

func (c *Connection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

func (c *Connection) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		// nil marks the end of gathering
		if cand != nil {
			fn(cand.ToJSON())
		}
	})
}

func (c *Connection) OnTrack(fn func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	c.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "webrtc").
			Str("peer_id", string(c.peer)).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		fn(track, receiver)
	})
}

func (c *Connection) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "webrtc").Str("peer_id", string(c.peer)).Str("peer_connection_state", s.String()).Msg("Peer state")
		fn(s)
	})
}

func (c *Connection) Close() error {
	if err := c.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "webrtc").Str("peer_id", string(c.peer)).Msg("close error")
		return err
	}
	log.Info().Str("module", "webrtc").Str("peer_id", string(c.peer)).Msg("closed")
	return nil
}
