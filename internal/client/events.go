package client

import (
	"github.com/dkeye/voicemesh/internal/domain"
	"github.com/pion/webrtc/v4"
)

// Event is what a session reports to its host application. Events are
// delivered on the session goroutine; sinks must not block.
type Event interface {
	isEvent()
}

type EventSink func(Event)

type RoomCreated struct {
	Code domain.RoomCode
	ID   domain.PeerID
}

// IdentityAssigned tells a player the owner accepted its code.
type IdentityAssigned struct {
	ID   domain.PeerID
	Name string
}

type StreamAdded struct {
	Peer  domain.PeerID
	Track *webrtc.TrackRemote
}

type StreamRemoved struct {
	Peer domain.PeerID
}

type DataChannelOpen struct {
	Peer  domain.PeerID
	Label string
}

type ChatMessage struct {
	SenderID   domain.PeerID
	SenderName string
	Text       string
}

type RoomStateReceived struct {
	Players []domain.Player
}

type PeerDiscovered struct {
	Player domain.Player
}

type PeerLeft struct {
	Peer domain.PeerID
}

type PlayerStatusUpdate struct {
	Peer   domain.PeerID
	Status domain.PlayerStatus
}

type GameSettingUpdate struct {
	Settings domain.GameSettings
}

type PeerStateChanged struct {
	Peer  domain.PeerID
	State PeerState
}

type ErrorEvent struct {
	Peer    domain.PeerID
	Message string
	Err     error
}

type RoomClosed struct{}

// PositionsUpdate carries the listener's own pose and everyone else's, by name.
type PositionsUpdate struct {
	Listener *domain.Pose
	Players  map[string]domain.Pose
}

func (RoomCreated) isEvent()        {}
func (IdentityAssigned) isEvent()   {}
func (StreamAdded) isEvent()        {}
func (StreamRemoved) isEvent()      {}
func (DataChannelOpen) isEvent()    {}
func (ChatMessage) isEvent()        {}
func (RoomStateReceived) isEvent()  {}
func (PeerDiscovered) isEvent()     {}
func (PeerLeft) isEvent()           {}
func (PlayerStatusUpdate) isEvent() {}
func (GameSettingUpdate) isEvent()  {}
func (PeerStateChanged) isEvent()   {}
func (ErrorEvent) isEvent()         {}
func (RoomClosed) isEvent()         {}
func (PositionsUpdate) isEvent()    {}
