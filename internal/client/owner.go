package client

import (
	"github.com/dkeye/voicemesh/internal/core"
	"github.com/dkeye/voicemesh/internal/domain"
	"github.com/dkeye/voicemesh/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (s *Session) ownerSignal(env protocol.Envelope, msg protocol.Message) {
	from := env.SenderID
	switch m := msg.(type) {
	case protocol.RoomCreated:
		s.id = m.YourID
		s.roomCode = m.RoomCode
		s.names[s.id] = s.name
		log.Info().Str("module", "client").Str("room", string(m.RoomCode)).Str("peer_id", string(m.YourID)).Msg("room created")
		s.emit(RoomCreated{Code: m.RoomCode, ID: m.YourID})

	case protocol.NewClient:
		log.Info().Str("module", "client").Str("peer_id", string(m.ClientID)).Msg("client connected, awaiting auth")

	case protocol.Auth:
		s.authenticate(from, m.PlayerCode)

	case protocol.Offer:
		if from == "" {
			return
		}
		if err := s.mgr.HandleOffer(from, m.Offer); err != nil {
			log.Warn().Err(err).Str("module", "client").Str("peer_id", string(from)).Msg("offer")
		}

	case protocol.Answer:
		if err := s.mgr.HandleAnswer(from, m.Answer); err != nil {
			log.Warn().Err(err).Str("module", "client").Str("peer_id", string(from)).Msg("answer")
		}

	case protocol.ICECandidate:
		if err := s.mgr.HandleCandidate(from, m.Candidate); err != nil {
			log.Debug().Err(err).Str("module", "client").Str("peer_id", string(from)).Msg("candidate")
		}

	case protocol.Disconnect:
		s.ownerDisconnect(m.ClientID)

	case protocol.Error:
		s.emit(ErrorEvent{Peer: m.ClientID, Message: m.Message})

	default:
		log.Warn().Str("module", "client").Str("type", string(env.Type)).Msg("unexpected message for owner")
	}
}

// authenticate resolves a player code through the game and, on success,
// starts the link to that player as the offering side.
func (s *Session) authenticate(from domain.PeerID, code domain.PlayerCode) {
	if from == "" {
		log.Warn().Str("module", "client").Msg("auth without sender")
		return
	}
	name, ok := "", false
	if s.game != nil {
		name, ok = s.game.PlayerNameByCode(code)
	}
	if !ok {
		log.Warn().Str("module", "client").Str("peer_id", string(from)).Msg("invalid player code")
		_ = s.sendWS(protocol.Error{Message: protocol.MsgInvalidPlayerCode, ClientID: from})
		return
	}
	player, err := domain.NewPlayer(from, name)
	if err != nil {
		log.Warn().Err(err).Str("module", "client").Str("peer_id", string(from)).Int("name_len", len(name)).Msg("game supplied an unusable player name")
		_ = s.sendWS(protocol.Error{Message: protocol.MsgInvalidPlayerName, ClientID: from})
		return
	}
	s.names[from] = player.Name
	if err := s.sendWS(protocol.AuthSuccess{ClientID: from, PlayerName: player.Name}); err != nil {
		log.Error().Err(err).Str("module", "client").Str("peer_id", string(from)).Msg("send auth-success")
		return
	}
	s.emit(PeerDiscovered{Player: *player})
	if _, err := s.mgr.Open(from, OpenOptions{AsInitiator: true, WantsDataChannel: true}); err != nil {
		log.Error().Err(err).Str("module", "client").Str("peer_id", string(from)).Msg("open player link")
	}
}

// ownerDisconnect handles the server's report that a client socket closed.
// The echo of our own request is consumed once; anything else is a departure.
func (s *Session) ownerDisconnect(id domain.PeerID) {
	if _, ok := s.expected[id]; ok {
		delete(s.expected, id)
		log.Debug().Str("module", "client").Str("peer_id", string(id)).Msg("expected disconnect")
		return
	}
	s.departed(id)
}

func (s *Session) departed(id domain.PeerID) {
	_, named := s.names[id]
	_, linked := s.mgr.Peer(id)
	if !named && !linked {
		return
	}
	s.broadcast(protocol.ClientLeft{ClientID: id}, "", id)
	s.mgr.Close(id)
	delete(s.names, id)
	s.emit(PeerLeft{Peer: id})
}

func (s *Session) ownerChannelOpen(p *Peer, dc core.DataChannel) {
	players := make([]domain.Player, 0, s.mgr.Len())
	for _, other := range s.mgr.Peers() {
		if other.ID == p.ID || other.Channel() == nil {
			continue
		}
		players = append(players, domain.Player{ID: other.ID, Name: s.nameOf(other.ID)})
	}
	if err := s.sendData(dc, protocol.RoomState{Players: players}); err != nil {
		log.Error().Err(err).Str("module", "client").Str("peer_id", string(p.ID)).Msg("send room-state")
	}
	s.broadcast(protocol.ClientJoined{ID: p.ID, Name: s.nameOf(p.ID)}, "", p.ID)
	if err := s.sendData(dc, protocol.GameSetting{GameSettings: s.settings}); err != nil {
		log.Error().Err(err).Str("module", "client").Str("peer_id", string(p.ID)).Msg("send game-setting")
	}

	p.Persistent = true
	s.expected[p.ID] = struct{}{}
	if err := s.sendWS(protocol.Disconnect{ClientID: p.ID}); err != nil {
		delete(s.expected, p.ID)
		log.Warn().Err(err).Str("module", "client").Str("peer_id", string(p.ID)).Msg("release player socket")
	}
	log.Info().Str("module", "client").Str("peer_id", string(p.ID)).Int("peers", s.mgr.Len()).Msg("player joined mesh")
}

func (s *Session) ownerData(p *Peer, env protocol.DataEnvelope, msg protocol.DataMessage, raw core.Frame) {
	if env.SenderID != "" && env.SenderID != p.ID {
		log.Warn().Str("module", "client").Str("peer_id", string(p.ID)).Str("claimed", string(env.SenderID)).Msg("sender mismatch, dropping")
		return
	}
	switch m := msg.(type) {
	case protocol.RelayOffer:
		s.relay(p, m.ClientID, raw, func() error { return s.mgr.HandleOffer(p.ID, m.SDP) })
	case protocol.RelayAnswer:
		s.relay(p, m.ClientID, raw, func() error { return s.mgr.HandleAnswer(p.ID, m.SDP) })
	case protocol.RelayCandidate:
		s.relay(p, m.ClientID, raw, func() error { return s.mgr.HandleCandidate(p.ID, m.Candidate) })

	case protocol.Chat:
		out := protocol.ChatBroadcast{SenderName: s.nameOf(p.ID), Text: m.Text}
		s.broadcast(out, p.ID, p.ID)
		s.emit(ChatMessage{SenderID: p.ID, SenderName: out.SenderName, Text: m.Text})

	case protocol.PlayerStatus:
		s.broadcast(protocol.PlayerStatusBroadcast{ClientID: p.ID, PlayerStatus: m.PlayerStatus}, p.ID, p.ID)
		s.emit(PlayerStatusUpdate{Peer: p.ID, Status: m.PlayerStatus})

	default:
		log.Warn().Str("module", "client").Str("peer_id", string(p.ID)).Str("type", string(env.Type)).Msg("unexpected data message for owner")
	}
}

// relay forwards raw to target's channel unchanged, or handles it here when
// the owner itself is the target.
func (s *Session) relay(from *Peer, target domain.PeerID, raw core.Frame, local func() error) {
	if target == s.id {
		if err := local(); err != nil {
			log.Warn().Err(err).Str("module", "client").Str("peer_id", string(from.ID)).Msg("negotiation over channel")
		}
		return
	}
	to, ok := s.mgr.Peer(target)
	var dc core.DataChannel
	if ok {
		dc = to.Channel()
	}
	if dc == nil {
		log.Warn().Str("module", "client").Str("from", string(from.ID)).Str("target", string(target)).Msg("no open channel for relay target")
		return
	}
	if err := dc.Send(raw); err != nil {
		log.Warn().Err(err).Str("module", "client").Str("target", string(target)).Msg("relay send")
	}
}

func (s *Session) ownerPeerGone(p *Peer, state PeerState) {
	delete(s.expected, p.ID)
	// Once the player's socket is gone the server cannot report its
	// departure, so a dropped persistent link is announced here.
	if p.Persistent && state != StateClosed {
		s.broadcast(protocol.ClientLeft{ClientID: p.ID}, "", p.ID)
		s.emit(PeerLeft{Peer: p.ID})
	}
}

func (s *Session) ownerChat(text string) {
	s.broadcast(protocol.ChatBroadcast{SenderName: s.name, Text: text}, s.id, "")
}

// SetGameSettings updates the settings and pushes them to every player.
func (s *Session) SetGameSettings(gs domain.GameSettings) {
	s.inbox.post(func() {
		if s.role != domain.RoleOwner {
			return
		}
		s.settings = gs
		s.broadcast(protocol.GameSetting{GameSettings: gs}, "", "")
	})
}

// PushPositions sends every player the poses of everyone else, keyed by
// display name, with its own pose as the listener.
func (s *Session) PushPositions(poses map[string]domain.Pose) {
	s.inbox.post(func() {
		if s.role != domain.RoleOwner {
			return
		}
		for _, p := range s.mgr.Peers() {
			dc := p.Channel()
			if dc == nil {
				continue
			}
			name := s.nameOf(p.ID)
			upd := protocol.PlayerAudioUpdate{Players: make(map[string]domain.Pose, len(poses))}
			for n, pose := range poses {
				if n == name {
					listener := pose
					upd.Listener = &listener
					continue
				}
				upd.Players[n] = pose
			}
			if err := s.sendData(dc, upd); err != nil {
				log.Debug().Err(err).Str("module", "client").Str("peer_id", string(p.ID)).Msg("send positions")
			}
		}
	})
}

// Kick removes a player from the room.
func (s *Session) Kick(id domain.PeerID) {
	s.inbox.post(func() {
		if s.role != domain.RoleOwner {
			return
		}
		p, ok := s.mgr.Peer(id)
		if !ok || !p.Persistent {
			_ = s.sendWS(protocol.Disconnect{ClientID: id})
		}
		s.departed(id)
	})
}
