package orch

import (
	"github.com/dkeye/voicemesh/internal/app"
	"github.com/dkeye/voicemesh/internal/core"
	"github.com/dkeye/voicemesh/internal/domain"
	"github.com/dkeye/voicemesh/internal/metrics"
	"github.com/dkeye/voicemesh/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Route validates one inbound frame and forwards it. Payloads are never
// interpreted beyond the addressed clientId; frames are forwarded verbatim.
func (o *Orchestrator) Route(sender *app.Conn, data []byte) {
	if ok, first := o.Limiter.Allow(sender.ID); !ok {
		o.Metrics.Envelope("", metrics.Rejected)
		if first {
			log.Warn().Str("module", "orch").Str("conn_id", string(sender.ID)).Msg("rate limit exceeded")
			o.send(sender, protocol.Error{Message: protocol.MsgRateLimited, ClientID: sender.ID}, "")
		}
		return
	}

	env, target, err := protocol.Peek(data)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("conn_id", string(sender.ID)).Msg("bad json")
		o.Metrics.Envelope("", metrics.Rejected)
		return
	}
	if sender.Room == "" {
		log.Warn().Str("module", "orch").Str("conn_id", string(sender.ID)).Msg("message from connection without room")
		return
	}

	switch sender.Role {
	case domain.RoleOwner:
		o.routeFromOwner(sender, env.Type, target, data)
	case domain.RoleClient:
		o.routeFromClient(sender, env.Type, target, data)
	}
}

func (o *Orchestrator) routeFromOwner(owner *app.Conn, typ protocol.MessageType, target domain.PeerID, data []byte) {
	switch typ {
	case protocol.TypeAuth, protocol.TypeAuthSuccess, protocol.TypeOffer, protocol.TypeAnswer, protocol.TypeICECandidate:
		o.forward(owner, typ, target, data)
	case protocol.TypeDisconnect:
		o.Metrics.Envelope(string(typ), metrics.Forwarded)
		o.kick(owner, target)
	case protocol.TypeError:
		if o.forward(owner, typ, target, data) {
			o.kick(owner, target)
		}
	default:
		o.Metrics.Envelope(string(typ), metrics.Rejected)
		log.Warn().Str("module", "orch").Str("conn_id", string(owner.ID)).Str("type", string(typ)).Msg("unhandled owner message")
	}
}

func (o *Orchestrator) routeFromClient(client *app.Conn, typ protocol.MessageType, target domain.PeerID, data []byte) {
	switch typ {
	case protocol.TypeAuth, protocol.TypeOffer, protocol.TypeAnswer, protocol.TypeICECandidate:
		owner, ok := o.Registry.Owner(client.Room)
		if !ok {
			o.Metrics.Envelope(string(typ), metrics.Dropped)
			return
		}
		// Clients only ever talk to their owner.
		if target != "" && target != owner.ID {
			o.Metrics.Envelope(string(typ), metrics.Rejected)
			log.Warn().Str("module", "orch").Str("conn_id", string(client.ID)).Str("target", string(target)).Msg("client addressed a non-owner peer")
			return
		}
		o.forward(client, typ, owner.ID, data)
	default:
		o.Metrics.Envelope(string(typ), metrics.Rejected)
		log.Warn().Str("module", "orch").Str("conn_id", string(client.ID)).Str("type", string(typ)).Msg("unhandled client message")
	}
}

// forward sends data unchanged to target in the sender's room. Best effort: a
// missing target is logged and the frame dropped.
func (o *Orchestrator) forward(sender *app.Conn, typ protocol.MessageType, target domain.PeerID, data []byte) bool {
	if target == "" || target == sender.ID {
		o.Metrics.Envelope(string(typ), metrics.Dropped)
		log.Warn().Str("module", "orch").Str("conn_id", string(sender.ID)).Str("type", string(typ)).Msg("no target for message")
		return false
	}
	to, ok := o.Registry.Member(sender.Room, target)
	if !ok {
		o.Metrics.Envelope(string(typ), metrics.Dropped)
		log.Warn().Str("module", "orch").Str("room", string(sender.Room)).Str("target", string(target)).Str("type", string(typ)).Msg("target not connected, dropping")
		return false
	}
	log.Debug().Str("module", "orch").Str("from", string(sender.ID)).Str("to", string(to.ID)).Str("type", string(typ)).Msg("forward")
	if !o.deliver(to, core.Frame(data)) {
		o.Metrics.Envelope(string(typ), metrics.Dropped)
		return false
	}
	o.Metrics.Envelope(string(typ), metrics.Forwarded)
	return true
}
