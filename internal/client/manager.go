package client

import (
	"errors"
	"fmt"

	"github.com/dkeye/voicemesh/internal/core"
	"github.com/dkeye/voicemesh/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const channelLabel = "main-signaling"

var (
	ErrUnknownPeer   = errors.New("unknown peer")
	ErrUnexpectedSDP = errors.New("unexpected session description")
)

// Signaler carries negotiation messages for a peer over whichever path is
// authoritative for it when called.
type Signaler interface {
	SendOffer(peer domain.PeerID, sd webrtc.SessionDescription) error
	SendAnswer(peer domain.PeerID, sd webrtc.SessionDescription) error
	SendCandidate(peer domain.PeerID, c webrtc.ICECandidateInit) error
}

type OpenOptions struct {
	AsInitiator      bool
	WantsDataChannel bool
}

// ManagerHooks are invoked on the session goroutine.
type ManagerHooks struct {
	OnDataChannelOpen func(p *Peer, dc core.DataChannel)
	OnDataMessage     func(p *Peer, f core.Frame)
	// OnPeerGone runs after teardown, with the state that caused it.
	OnPeerGone func(p *Peer, state PeerState)
}

// Manager keeps at most one Peer per remote id. It is not safe for concurrent
// use: every method and every hook runs on the owning session goroutine, and
// media callbacks are marshalled there through post.
type Manager struct {
	factory  core.MediaFactory
	signaler Signaler
	post     func(func())
	emit     EventSink
	hooks    ManagerHooks
	tracks   []webrtc.TrackLocal

	peers map[domain.PeerID]*Peer
}

func NewManager(factory core.MediaFactory, signaler Signaler, post func(func()), emit EventSink, hooks ManagerHooks, tracks ...webrtc.TrackLocal) *Manager {
	return &Manager{
		factory:  factory,
		signaler: signaler,
		post:     post,
		emit:     emit,
		hooks:    hooks,
		tracks:   tracks,
		peers:    make(map[domain.PeerID]*Peer),
	}
}

func (m *Manager) Peer(id domain.PeerID) (*Peer, bool) {
	p, ok := m.peers[id]
	return p, ok
}

func (m *Manager) Len() int { return len(m.peers) }

func (m *Manager) Peers() []*Peer {
	out := make([]*Peer, 0, len(m.peers))
	for _, p := range m.peers {
		out = append(out, p)
	}
	return out
}

// Open returns the existing link to id or creates one. An initiator sends its
// offer before Open returns.
func (m *Manager) Open(id domain.PeerID, opts OpenOptions) (*Peer, error) {
	if p, ok := m.peers[id]; ok {
		return p, nil
	}
	conn, err := m.factory.NewConnection(id)
	if err != nil {
		return nil, fmt.Errorf("new connection to %s: %w", id, err)
	}
	p := &Peer{ID: id, conn: conn}
	m.peers[id] = p
	log.Info().Str("module", "client").Str("peer_id", string(id)).Bool("initiator", opts.AsInitiator).Bool("data_channel", opts.WantsDataChannel).Msg("open peer")

	for _, t := range m.tracks {
		if err := conn.AddLocalTrack(t); err != nil {
			m.fail(p, fmt.Errorf("add local track: %w", err))
			return nil, err
		}
	}
	m.wire(p)

	if opts.WantsDataChannel {
		dc, err := conn.CreateDataChannel(channelLabel)
		if err != nil {
			m.fail(p, fmt.Errorf("create data channel: %w", err))
			return nil, err
		}
		p.out = dc
		m.wireChannel(p, dc)
	}

	if opts.AsInitiator {
		offer, err := conn.CreateOffer()
		if err != nil {
			m.fail(p, fmt.Errorf("create offer: %w", err))
			return nil, err
		}
		m.setState(p, StateOfferSent)
		if err := m.signaler.SendOffer(id, offer); err != nil {
			m.fail(p, fmt.Errorf("send offer: %w", err))
			return nil, err
		}
		m.descriptionSent(p)
	}
	return p, nil
}

// alive wraps a media callback so it runs on the session goroutine and only
// while p is still the current link for its id.
func (m *Manager) alive(p *Peer, fn func()) {
	m.post(func() {
		if m.peers[p.ID] != p {
			log.Debug().Str("module", "client").Str("peer_id", string(p.ID)).Msg("late callback for closed peer ignored")
			return
		}
		fn()
	})
}

func (m *Manager) wire(p *Peer) {
	p.conn.OnICECandidate(func(c webrtc.ICECandidateInit) {
		m.alive(p, func() { m.localCandidate(p, c) })
	})
	p.conn.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		m.alive(p, func() { m.emit(StreamAdded{Peer: p.ID, Track: track}) })
	})
	// Handlers go on before returning: messages that arrive while no
	// OnMessage handler is set are dropped by the channel.
	p.conn.OnDataChannel(func(dc core.DataChannel) {
		m.alive(p, func() { p.in = dc })
		m.wireChannel(p, dc)
	})
	p.conn.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		m.alive(p, func() { m.connectionState(p, s) })
	})
}

// wireChannel only registers handlers, so it may run on a media goroutine.
func (m *Manager) wireChannel(p *Peer, dc core.DataChannel) {
	dc.OnOpen(func() {
		m.alive(p, func() {
			m.emit(DataChannelOpen{Peer: p.ID, Label: dc.Label()})
			if m.hooks.OnDataChannelOpen != nil {
				m.hooks.OnDataChannelOpen(p, dc)
			}
		})
	})
	dc.OnMessage(func(f core.Frame) {
		m.alive(p, func() {
			if m.hooks.OnDataMessage != nil {
				m.hooks.OnDataMessage(p, f)
			}
		})
	})
	dc.OnClose(func() {
		m.alive(p, func() {
			log.Debug().Str("module", "client").Str("peer_id", string(p.ID)).Str("label", dc.Label()).Msg("data channel closed")
			if p.out == dc {
				p.out = nil
			}
			if p.in == dc {
				p.in = nil
			}
		})
	})
}

func (m *Manager) connectionState(p *Peer, s webrtc.PeerConnectionState) {
	state, ok := peerState(s)
	if !ok {
		return
	}
	if state.Terminal() {
		m.teardown(p, state)
		return
	}
	m.setState(p, state)
}

func (m *Manager) setState(p *Peer, s PeerState) {
	if p.State == s {
		return
	}
	p.State = s
	m.emit(PeerStateChanged{Peer: p.ID, State: s})
}

func (m *Manager) localCandidate(p *Peer, c webrtc.ICECandidateInit) {
	if !p.descSent {
		p.localQueue = append(p.localQueue, c)
		return
	}
	if err := m.signaler.SendCandidate(p.ID, c); err != nil {
		log.Warn().Err(err).Str("module", "client").Str("peer_id", string(p.ID)).Msg("send candidate")
	}
}

func (m *Manager) descriptionSent(p *Peer) {
	p.descSent = true
	queued := p.localQueue
	p.localQueue = nil
	for _, c := range queued {
		if err := m.signaler.SendCandidate(p.ID, c); err != nil {
			log.Warn().Err(err).Str("module", "client").Str("peer_id", string(p.ID)).Msg("send queued candidate")
		}
	}
}

func (m *Manager) remoteApplied(p *Peer) {
	p.remoteSet = true
	buffered := p.remoteQueue
	p.remoteQueue = nil
	for _, c := range buffered {
		if err := p.conn.AddICECandidate(c); err != nil {
			log.Warn().Err(err).Str("module", "client").Str("peer_id", string(p.ID)).Msg("add buffered candidate")
		}
	}
}

// HandleOffer answers a remote offer, creating a responder link if needed.
func (m *Manager) HandleOffer(id domain.PeerID, offer webrtc.SessionDescription) error {
	p, err := m.Open(id, OpenOptions{})
	if err != nil {
		return err
	}
	if p.State != StateNew {
		return fmt.Errorf("offer from %s in state %s: %w", id, p.State, ErrUnexpectedSDP)
	}
	m.setState(p, StateOfferReceived)
	answer, err := p.conn.ApplyOffer(offer)
	if err != nil {
		m.fail(p, fmt.Errorf("apply offer: %w", err))
		return err
	}
	m.remoteApplied(p)
	m.setState(p, StateAnswerExchanged)
	if err := m.signaler.SendAnswer(id, answer); err != nil {
		m.fail(p, fmt.Errorf("send answer: %w", err))
		return err
	}
	m.descriptionSent(p)
	m.gathering(p)
	return nil
}

func (m *Manager) HandleAnswer(id domain.PeerID, answer webrtc.SessionDescription) error {
	p, ok := m.peers[id]
	if !ok {
		return fmt.Errorf("answer from %s: %w", id, ErrUnknownPeer)
	}
	if p.State != StateOfferSent {
		return fmt.Errorf("answer from %s in state %s: %w", id, p.State, ErrUnexpectedSDP)
	}
	if err := p.conn.ApplyAnswer(answer); err != nil {
		m.fail(p, fmt.Errorf("apply answer: %w", err))
		return err
	}
	m.remoteApplied(p)
	m.setState(p, StateAnswerExchanged)
	m.gathering(p)
	return nil
}

func (m *Manager) gathering(p *Peer) {
	// A fast link may already report connected.
	if p.State == StateAnswerExchanged {
		m.setState(p, StateIceGathering)
	}
}

// HandleCandidate applies a remote candidate, holding it back until the
// remote description is in place.
func (m *Manager) HandleCandidate(id domain.PeerID, c webrtc.ICECandidateInit) error {
	p, ok := m.peers[id]
	if !ok {
		return fmt.Errorf("candidate from %s: %w", id, ErrUnknownPeer)
	}
	if !p.remoteSet {
		p.remoteQueue = append(p.remoteQueue, c)
		return nil
	}
	if err := p.conn.AddICECandidate(c); err != nil {
		return fmt.Errorf("add candidate from %s: %w", id, err)
	}
	return nil
}

func (m *Manager) Close(id domain.PeerID) {
	if p, ok := m.peers[id]; ok {
		m.teardown(p, StateClosed)
	}
}

func (m *Manager) CloseAll() {
	for _, p := range m.Peers() {
		m.teardown(p, StateClosed)
	}
}

func (m *Manager) fail(p *Peer, err error) {
	log.Error().Err(err).Str("module", "client").Str("peer_id", string(p.ID)).Msg("negotiation failed")
	m.emit(ErrorEvent{Peer: p.ID, Message: "negotiation failed", Err: err})
	m.teardown(p, StateFailed)
}

func (m *Manager) teardown(p *Peer, state PeerState) {
	if m.peers[p.ID] != p {
		return
	}
	delete(m.peers, p.ID)
	for _, dc := range []core.DataChannel{p.out, p.in} {
		if dc != nil {
			_ = dc.Close()
		}
	}
	p.out, p.in = nil, nil
	if err := p.conn.Close(); err != nil {
		log.Warn().Err(err).Str("module", "client").Str("peer_id", string(p.ID)).Msg("close connection")
	}
	p.localQueue, p.remoteQueue = nil, nil
	m.setState(p, state)
	m.emit(StreamRemoved{Peer: p.ID})
	log.Info().Str("module", "client").Str("peer_id", string(p.ID)).Str("state", state.String()).Msg("peer torn down")
	if m.hooks.OnPeerGone != nil {
		m.hooks.OnPeerGone(p, state)
	}
	p.Persistent = false
}
