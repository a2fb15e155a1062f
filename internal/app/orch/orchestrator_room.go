package orch

import (
	"errors"

	"github.com/dkeye/voicemesh/internal/app"
	"github.com/dkeye/voicemesh/internal/domain"
	"github.com/dkeye/voicemesh/internal/protocol"
	"github.com/rs/zerolog/log"
)

// ConnectOwner opens a room for a freshly accepted owner socket.
func (o *Orchestrator) ConnectOwner(owner *app.Conn) domain.RoomCode {
	o.Metrics.ConnOpened(domain.RoleOwner)
	code := o.Registry.CreateRoom(owner)
	o.Metrics.RoomOpened()
	o.send(owner, protocol.RoomCreated{RoomCode: code, YourID: owner.ID}, "")
	return code
}

// ConnectClient joins a room. On failure the client gets one error envelope
// and its socket is closed.
func (o *Orchestrator) ConnectClient(client *app.Conn, code domain.RoomCode) error {
	o.Metrics.ConnOpened(domain.RoleClient)
	owner, err := o.Registry.JoinRoom(client, code)
	if err != nil {
		msg := protocol.MsgRoomNotFound
		if errors.Is(err, app.ErrRoomHasNoOwner) {
			msg = protocol.MsgRoomHasNoOwner
			log.Error().Str("module", "orch").Str("room", string(code)).Str("conn_id", string(client.ID)).Msg("room exists but has no owner")
		} else {
			log.Warn().Str("module", "orch").Str("room", string(code)).Str("conn_id", string(client.ID)).Msg("join to unknown room")
		}
		o.send(client, protocol.Error{Message: msg}, "")
		client.Signal.Close()
		return err
	}
	o.send(owner, protocol.NewClient{ClientID: client.ID}, "")
	o.send(client, protocol.OwnerInfo{OwnerID: owner.ID, YourID: client.ID}, "")
	return nil
}

// Disconnect runs once per connection after its socket is gone.
func (o *Orchestrator) Disconnect(conn *app.Conn) {
	o.Metrics.ConnClosed(conn.Role)
	o.Limiter.Forget(conn.ID)
	if conn.Room == "" {
		return
	}
	switch conn.Role {
	case domain.RoleOwner:
		o.closeRoom(conn)
	case domain.RoleClient:
		o.Registry.RemoveClient(conn.Room, conn.ID)
		// The owner is told even when it asked for this close itself.
		if owner, ok := o.Registry.Owner(conn.Room); ok {
			o.send(owner, protocol.Disconnect{ClientID: conn.ID}, "")
		}
	}
}

func (o *Orchestrator) closeRoom(owner *app.Conn) {
	clients, ok := o.Registry.CloseRoom(owner.Room)
	if !ok {
		return
	}
	o.Metrics.RoomClosed()
	log.Info().Str("module", "orch").Str("room", string(owner.Room)).Int("clients", len(clients)).Msg("owner left, closing room")
	for _, c := range clients {
		o.send(c, protocol.RoomClosed{}, "")
		c.Signal.Close()
	}
}

// kick closes a client on the owner's request.
func (o *Orchestrator) kick(owner *app.Conn, target domain.PeerID) {
	c, ok := o.Registry.RemoveClient(owner.Room, target)
	if !ok {
		log.Warn().Str("module", "orch").Str("room", string(owner.Room)).Str("target", string(target)).Msg("disconnect for unknown client")
		return
	}
	log.Info().Str("module", "orch").Str("room", string(owner.Room)).Str("conn_id", string(target)).Msg("client disconnected by owner")
	c.Signal.Close()
}
