package client

import (
	"github.com/dkeye/voicemesh/internal/core"
	"github.com/dkeye/voicemesh/internal/domain"
	"github.com/dkeye/voicemesh/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (s *Session) playerSignal(env protocol.Envelope, msg protocol.Message) {
	from := env.SenderID
	if from == "" {
		from = s.ownerID
	}
	switch m := msg.(type) {
	case protocol.OwnerInfo:
		s.ownerID = m.OwnerID
		s.id = m.YourID
		log.Info().Str("module", "client").Str("owner_id", string(m.OwnerID)).Str("peer_id", string(m.YourID)).Msg("joined room")
		if s.playerCode == "" {
			return
		}
		if err := s.sendWS(protocol.Auth{PlayerCode: s.playerCode, ClientID: s.ownerID}); err != nil {
			log.Error().Err(err).Str("module", "client").Msg("send auth")
		}

	case protocol.AuthSuccess:
		if m.ClientID != s.id {
			return
		}
		s.names[s.id] = m.PlayerName
		s.emit(IdentityAssigned{ID: m.ClientID, Name: m.PlayerName})

	case protocol.Offer:
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

	case protocol.Error:
		log.Warn().Str("module", "client").Str("message", m.Message).Msg("server error")
		s.emit(ErrorEvent{Peer: from, Message: m.Message})

	case protocol.RoomClosed:
		s.emit(RoomClosed{})
		s.finish(ErrRoomClosed)

	case protocol.Disconnect:
	default:
		log.Warn().Str("module", "client").Str("type", string(env.Type)).Msg("unexpected message for player")
	}
}

// playerSignalClosed keeps the session alive when the owner link can carry
// signaling from now on.
func (s *Session) playerSignalClosed() {
	if p, ok := s.mgr.Peer(s.ownerID); ok && (p.Persistent || p.HasChannel()) {
		log.Info().Str("module", "client").Msg("signaling socket closed, continuing over owner link")
		return
	}
	s.finish(ErrSignalingLost)
}

func (s *Session) ownerChannel() core.DataChannel {
	p, ok := s.mgr.Peer(s.ownerID)
	if !ok {
		return nil
	}
	return p.Channel()
}

func (s *Session) toOwner(msg protocol.DataMessage) {
	dc := s.ownerChannel()
	if dc == nil {
		log.Warn().Str("module", "client").Str("type", string(msg.DataType())).Msg("owner channel not open")
		return
	}
	if err := s.sendData(dc, msg); err != nil {
		log.Warn().Err(err).Str("module", "client").Str("type", string(msg.DataType())).Msg("send to owner")
	}
}

func (s *Session) playerChannelOpen(p *Peer, _ core.DataChannel) {
	if p.ID != s.ownerID {
		return
	}
	p.Persistent = true
	log.Info().Str("module", "client").Str("owner_id", string(p.ID)).Msg("owner link established")
}

func (s *Session) playerData(p *Peer, env protocol.DataEnvelope, msg protocol.DataMessage) {
	if p.ID != s.ownerID {
		log.Warn().Str("module", "client").Str("peer_id", string(p.ID)).Msg("data message from non-owner peer")
		return
	}
	from := env.SenderID
	switch m := msg.(type) {
	case protocol.RoomState:
		for _, pl := range m.Players {
			s.names[pl.ID] = pl.Name
		}
		s.emit(RoomStateReceived{Players: m.Players})

	case protocol.ClientJoined:
		if m.ID == s.id {
			return
		}
		s.names[m.ID] = m.Name
		s.emit(PeerDiscovered{Player: domain.Player{ID: m.ID, Name: m.Name}})
		if _, err := s.mgr.Open(m.ID, OpenOptions{AsInitiator: true}); err != nil {
			log.Error().Err(err).Str("module", "client").Str("peer_id", string(m.ID)).Msg("open mesh link")
		}

	case protocol.ClientLeft:
		_, named := s.names[m.ClientID]
		_, linked := s.mgr.Peer(m.ClientID)
		s.mgr.Close(m.ClientID)
		delete(s.names, m.ClientID)
		if named || linked {
			s.emit(PeerLeft{Peer: m.ClientID})
		}

	case protocol.RelayOffer:
		if err := s.mgr.HandleOffer(from, m.SDP); err != nil {
			log.Warn().Err(err).Str("module", "client").Str("peer_id", string(from)).Msg("relayed offer")
		}
	case protocol.RelayAnswer:
		if err := s.mgr.HandleAnswer(from, m.SDP); err != nil {
			log.Warn().Err(err).Str("module", "client").Str("peer_id", string(from)).Msg("relayed answer")
		}
	case protocol.RelayCandidate:
		if err := s.mgr.HandleCandidate(from, m.Candidate); err != nil {
			log.Debug().Err(err).Str("module", "client").Str("peer_id", string(from)).Msg("relayed candidate")
		}

	case protocol.ChatBroadcast:
		s.emit(ChatMessage{SenderID: from, SenderName: m.SenderName, Text: m.Text})

	case protocol.PlayerStatusBroadcast:
		s.emit(PlayerStatusUpdate{Peer: m.ClientID, Status: m.PlayerStatus})

	case protocol.GameSetting:
		s.settings = m.GameSettings
		s.emit(GameSettingUpdate{Settings: m.GameSettings})

	case protocol.PlayerAudioUpdate:
		s.emit(PositionsUpdate{Listener: m.Listener, Players: m.Players})

	default:
		log.Warn().Str("module", "client").Str("type", string(env.Type)).Msg("unexpected data message for player")
	}
}

func (s *Session) playerPeerGone(p *Peer, state PeerState) {
	if s.done || p.ID != s.ownerID || s.ws != nil {
		return
	}
	log.Warn().Str("module", "client").Str("state", state.String()).Msg("owner link lost")
	s.emit(RoomClosed{})
	s.finish(ErrRoomClosed)
}
