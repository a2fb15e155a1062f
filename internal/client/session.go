// Package client runs one side of a voice room: the owner that relays for the
// room, or a player that joins it and meshes with the other players.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/voicemesh/internal/bridge"
	"github.com/dkeye/voicemesh/internal/core"
	"github.com/dkeye/voicemesh/internal/domain"
	"github.com/dkeye/voicemesh/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoRoute       = errors.New("no signaling route to peer")
	ErrSignalingLost = errors.New("signaling connection lost")
	ErrRoomClosed    = errors.New("room closed by owner")
)

// inbox is an unbounded FIFO of work for the session goroutine.
type inbox struct {
	mu    sync.Mutex
	queue []func()
	wake  chan struct{}
}

func newInbox() *inbox {
	return &inbox{wake: make(chan struct{}, 1)}
}

func (b *inbox) post(fn func()) {
	b.mu.Lock()
	b.queue = append(b.queue, fn)
	b.mu.Unlock()
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *inbox) take() []func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queue
	b.queue = nil
	return q
}

type Option func(*Session)

func WithEventSink(sink EventSink) Option {
	return func(s *Session) { s.sink = sink }
}

func WithLocalTracks(tracks ...webrtc.TrackLocal) Option {
	return func(s *Session) { s.tracks = append(s.tracks, tracks...) }
}

// WithName sets the owner's own display name.
func WithName(name string) Option {
	return func(s *Session) { s.name = name }
}

func WithGameSettings(gs domain.GameSettings) Option {
	return func(s *Session) { s.settings = gs }
}

// Session is single threaded: every field below is touched only by the
// goroutine running Run, or by drain in tests.
type Session struct {
	role   domain.Role
	inbox  *inbox
	sink   EventSink
	tracks []webrtc.TrackLocal

	ws       core.SignalConnection
	id       domain.PeerID
	ownerID  domain.PeerID
	roomCode domain.RoomCode
	name     string
	settings domain.GameSettings
	mgr      *Manager

	// names caches display names by peer id.
	names    map[domain.PeerID]string
	expected map[domain.PeerID]struct{}

	game       bridge.Bridge
	playerCode domain.PlayerCode

	done bool
	err  error
	fin  chan struct{}
}

func newSession(role domain.Role, ws core.SignalConnection, factory core.MediaFactory, opts []Option) *Session {
	s := &Session{
		role:     role,
		inbox:    newInbox(),
		ws:       ws,
		settings: domain.DefaultGameSettings(),
		names:    make(map[domain.PeerID]string),
		expected: make(map[domain.PeerID]struct{}),
		fin:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	hooks := ManagerHooks{
		OnDataChannelOpen: s.dataChannelOpen,
		OnDataMessage:     s.dataMessage,
		OnPeerGone:        s.peerGone,
	}
	s.mgr = NewManager(factory, s, s.inbox.post, s.emit, hooks, s.tracks...)
	return s
}

// NewOwner builds the session of the room host. ws must be connected to /ws.
func NewOwner(ws core.SignalConnection, factory core.MediaFactory, game bridge.Bridge, opts ...Option) *Session {
	s := newSession(domain.RoleOwner, ws, factory, opts)
	s.game = game
	if s.name == "" {
		s.name = domain.DefaultOwnerTag
	}
	return s
}

// NewPlayer builds a joining session. ws must be connected to /ws/{code}.
func NewPlayer(ws core.SignalConnection, factory core.MediaFactory, code domain.PlayerCode, opts ...Option) *Session {
	s := newSession(domain.RoleClient, ws, factory, opts)
	s.playerCode = code
	return s
}

func (s *Session) emit(e Event) {
	if s.sink != nil {
		s.sink(e)
	}
}

// Deliver hands an inbound WebSocket frame to the session.
func (s *Session) Deliver(f core.Frame) {
	s.inbox.post(func() { s.handleSignal(f) })
}

// SignalClosed reports that the WebSocket is gone.
func (s *Session) SignalClosed() {
	s.inbox.post(s.signalClosed)
}

func (s *Session) Close() {
	s.inbox.post(func() { s.finish(nil) })
}

// Done is closed once the session has ended.
func (s *Session) Done() <-chan struct{} { return s.fin }

func (s *Session) SendChat(text string) {
	s.inbox.post(func() {
		if s.role == domain.RoleOwner {
			s.ownerChat(text)
			return
		}
		s.toOwner(protocol.Chat{Text: text})
	})
}

func (s *Session) SetStatus(st domain.PlayerStatus) {
	s.inbox.post(func() {
		if s.role == domain.RoleOwner {
			s.broadcast(protocol.PlayerStatusBroadcast{ClientID: s.id, PlayerStatus: st}, s.id, "")
			return
		}
		s.toOwner(protocol.PlayerStatus{PlayerStatus: st})
	})
}

// Run processes the inbox until the session ends or ctx is done.
func (s *Session) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.drain()
			s.finish(ctx.Err())
			return s.err
		case <-s.inbox.wake:
			s.drain()
			if s.done {
				return s.err
			}
		}
	}
}

// drain runs queued work until none is left and reports how much ran.
func (s *Session) drain() int {
	n := 0
	for {
		work := s.inbox.take()
		if len(work) == 0 {
			return n
		}
		for _, fn := range work {
			if s.done {
				return n
			}
			fn()
			n++
		}
	}
}

func (s *Session) finish(err error) {
	if s.done {
		return
	}
	s.done = true
	s.err = err
	s.mgr.CloseAll()
	if s.ws != nil {
		s.ws.Close()
		s.ws = nil
	}
	s.expected = make(map[domain.PeerID]struct{})
	close(s.fin)
	log.Info().Str("module", "client").Str("role", string(s.role)).Err(err).Msg("session ended")
}

func (s *Session) nameOf(id domain.PeerID) string {
	if n, ok := s.names[id]; ok {
		return n
	}
	return domain.UnknownName
}

func (s *Session) sendWS(msg protocol.Message) error {
	if s.ws == nil {
		return ErrSignalingLost
	}
	frame, err := protocol.Encode(msg, s.id)
	if err != nil {
		return err
	}
	return s.ws.TrySend(frame)
}

func (s *Session) sendData(dc core.DataChannel, msg protocol.DataMessage) error {
	frame, err := protocol.EncodeData(msg, s.id)
	if err != nil {
		return err
	}
	return dc.Send(frame)
}

// broadcast sends msg to every open data channel except the one of except.
// sender overrides the stamped senderId when not empty.
func (s *Session) broadcast(msg protocol.DataMessage, sender, except domain.PeerID) {
	if sender == "" {
		sender = s.id
	}
	frame, err := protocol.EncodeData(msg, sender)
	if err != nil {
		log.Error().Err(err).Str("module", "client").Msg("encode broadcast")
		return
	}
	for _, p := range s.mgr.Peers() {
		if p.ID == except {
			continue
		}
		if dc := p.Channel(); dc != nil {
			if err := dc.Send(frame); err != nil {
				log.Warn().Err(err).Str("module", "client").Str("peer_id", string(p.ID)).Msg("broadcast send")
			}
		}
	}
}

func (s *Session) handleSignal(f core.Frame) {
	env, msg, err := protocol.Decode(f)
	if err != nil {
		log.Warn().Err(err).Str("module", "client").Msg("dropping signaling frame")
		return
	}
	if s.role == domain.RoleOwner {
		s.ownerSignal(env, msg)
		return
	}
	s.playerSignal(env, msg)
}

func (s *Session) signalClosed() {
	s.ws = nil
	if s.role == domain.RoleOwner {
		// The server closed the room with the socket.
		s.emit(RoomClosed{})
		s.finish(ErrSignalingLost)
		return
	}
	s.playerSignalClosed()
}

func (s *Session) dataChannelOpen(p *Peer, dc core.DataChannel) {
	if s.role == domain.RoleOwner {
		s.ownerChannelOpen(p, dc)
		return
	}
	s.playerChannelOpen(p, dc)
}

func (s *Session) dataMessage(p *Peer, f core.Frame) {
	env, msg, err := protocol.DecodeData(f)
	if err != nil {
		log.Warn().Err(err).Str("module", "client").Str("peer_id", string(p.ID)).Msg("dropping data channel frame")
		return
	}
	if s.role == domain.RoleOwner {
		s.ownerData(p, env, msg, f)
		return
	}
	s.playerData(p, env, msg)
}

func (s *Session) peerGone(p *Peer, state PeerState) {
	if s.role == domain.RoleOwner {
		s.ownerPeerGone(p, state)
	} else {
		s.playerPeerGone(p, state)
	}
	delete(s.names, p.ID)
}

// SendOffer, SendAnswer and SendCandidate make the session the Signaler of
// its manager.
func (s *Session) SendOffer(peer domain.PeerID, sd webrtc.SessionDescription) error {
	return s.negotiate(peer, protocol.Offer{Offer: sd, ClientID: peer}, protocol.RelayOffer{SDP: sd, ClientID: peer})
}

func (s *Session) SendAnswer(peer domain.PeerID, sd webrtc.SessionDescription) error {
	return s.negotiate(peer, protocol.Answer{Answer: sd, ClientID: peer}, protocol.RelayAnswer{SDP: sd, ClientID: peer})
}

func (s *Session) SendCandidate(peer domain.PeerID, c webrtc.ICECandidateInit) error {
	return s.negotiate(peer, protocol.ICECandidate{Candidate: c, ClientID: peer}, protocol.RelayCandidate{Candidate: c, ClientID: peer})
}

func (s *Session) negotiate(peer domain.PeerID, viaWS protocol.Message, viaData protocol.DataMessage) error {
	if s.role == domain.RoleOwner {
		// A player's own channel takes over once it is open.
		if p, ok := s.mgr.Peer(peer); ok {
			if dc := p.Channel(); dc != nil {
				return s.sendData(dc, viaData)
			}
		}
		return s.sendWS(viaWS)
	}

	if peer == s.ownerID && s.ws != nil {
		return s.sendWS(viaWS)
	}
	dc := s.ownerChannel()
	if dc == nil {
		return fmt.Errorf("%s: %w", peer, ErrNoRoute)
	}
	return s.sendData(dc, viaData)
}
