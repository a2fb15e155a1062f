// Package protocol defines the two wire unions of the system: signaling envelopes
// exchanged over the WebSocket and relay envelopes carried inside data channels.
package protocol

import (
	"errors"
	"fmt"

	"github.com/dkeye/voicemesh/internal/domain"
	json "github.com/goccy/go-json"
	"github.com/pion/webrtc/v4"
)

var (
	ErrMalformed   = errors.New("malformed envelope")
	ErrUnknownType = errors.New("unknown envelope type")
)

type MessageType string

const (
	TypeRoomCreated  MessageType = "room-created"
	TypeNewClient    MessageType = "new-client"
	TypeOwnerInfo    MessageType = "owner-info"
	TypeAuth         MessageType = "auth"
	TypeAuthSuccess  MessageType = "auth-success"
	TypeOffer        MessageType = "offer"
	TypeAnswer       MessageType = "answer"
	TypeICECandidate MessageType = "ice-candidate"
	TypeDisconnect   MessageType = "disconnect"
	TypeError        MessageType = "error"
	TypeRoomClosed   MessageType = "room-closed"
)

const (
	MsgRoomNotFound      = "Room not found"
	MsgRoomHasNoOwner    = "Room has no owner."
	MsgInvalidPlayerCode = "Invalid player code"
	MsgInvalidPlayerName = "Invalid player name"
	MsgRateLimited       = "Rate limit exceeded"
)

// Envelope is the WebSocket wire form. The router only ever looks at Type and
// the clientId inside Payload.
type Envelope struct {
	Type     MessageType     `json:"type"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	SenderID domain.PeerID   `json:"senderId,omitempty"`
}

// Message is the closed set of signaling payloads.
type Message interface {
	Type() MessageType
	isMessage()
}

type RoomCreated struct {
	RoomCode domain.RoomCode `json:"roomCode"`
	YourID   domain.PeerID   `json:"yourId"`
}

type NewClient struct {
	ClientID domain.PeerID `json:"clientId"`
}

type OwnerInfo struct {
	OwnerID domain.PeerID `json:"ownerId"`
	YourID  domain.PeerID `json:"yourId"`
}

// Auth carries the player code; ClientID addresses the owner.
type Auth struct {
	PlayerCode domain.PlayerCode `json:"playerId"`
	ClientID   domain.PeerID     `json:"clientId"`
}

type AuthSuccess struct {
	ClientID   domain.PeerID `json:"clientId"`
	PlayerName string        `json:"playerName"`
}

type Offer struct {
	Offer    webrtc.SessionDescription `json:"offer"`
	ClientID domain.PeerID             `json:"clientId"`
}

type Answer struct {
	Answer   webrtc.SessionDescription `json:"answer"`
	ClientID domain.PeerID             `json:"clientId"`
}

type ICECandidate struct {
	Candidate webrtc.ICECandidateInit `json:"candidate"`
	ClientID  domain.PeerID           `json:"clientId"`
}

type Disconnect struct {
	ClientID domain.PeerID `json:"clientId,omitempty"`
}

type Error struct {
	Message  string        `json:"message"`
	ClientID domain.PeerID `json:"clientId,omitempty"`
}

type RoomClosed struct{}

func (RoomCreated) Type() MessageType  { return TypeRoomCreated }
func (NewClient) Type() MessageType    { return TypeNewClient }
func (OwnerInfo) Type() MessageType    { return TypeOwnerInfo }
func (Auth) Type() MessageType         { return TypeAuth }
func (AuthSuccess) Type() MessageType  { return TypeAuthSuccess }
func (Offer) Type() MessageType        { return TypeOffer }
func (Answer) Type() MessageType       { return TypeAnswer }
func (ICECandidate) Type() MessageType { return TypeICECandidate }
func (Disconnect) Type() MessageType   { return TypeDisconnect }
func (Error) Type() MessageType        { return TypeError }
func (RoomClosed) Type() MessageType   { return TypeRoomClosed }

func (RoomCreated) isMessage()  {}
func (NewClient) isMessage()    {}
func (OwnerInfo) isMessage()    {}
func (Auth) isMessage()         {}
func (AuthSuccess) isMessage()  {}
func (Offer) isMessage()        {}
func (Answer) isMessage()       {}
func (ICECandidate) isMessage() {}
func (Disconnect) isMessage()   {}
func (Error) isMessage()        {}
func (RoomClosed) isMessage()   {}

// Addressed reports whether envelopes of this type name a peer through payload.clientId.
func (t MessageType) Addressed() bool {
	switch t {
	case TypeAuth, TypeAuthSuccess, TypeOffer, TypeAnswer, TypeICECandidate, TypeDisconnect, TypeError:
		return true
	}
	return false
}

// Peek parses only the envelope header and the addressed clientId, if any.
func Peek(data []byte) (Envelope, domain.PeerID, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return env, "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return env, "", fmt.Errorf("%w: missing type", ErrMalformed)
	}
	if !env.Type.Addressed() || len(env.Payload) == 0 {
		return env, "", nil
	}
	var target struct {
		ClientID domain.PeerID `json:"clientId"`
	}
	if err := json.Unmarshal(env.Payload, &target); err != nil {
		return env, "", fmt.Errorf("%w: payload: %v", ErrMalformed, err)
	}
	return env, target.ClientID, nil
}

// Decode parses a full signaling envelope into its typed payload.
func Decode(data []byte) (Envelope, Message, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return env, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	var (
		msg Message
		err error
	)
	switch env.Type {
	case TypeRoomCreated:
		msg, err = decodeMessage[RoomCreated](env.Payload)
	case TypeNewClient:
		msg, err = decodeMessage[NewClient](env.Payload)
	case TypeOwnerInfo:
		msg, err = decodeMessage[OwnerInfo](env.Payload)
	case TypeAuth:
		msg, err = decodeMessage[Auth](env.Payload)
	case TypeAuthSuccess:
		msg, err = decodeMessage[AuthSuccess](env.Payload)
	case TypeOffer:
		msg, err = decodeMessage[Offer](env.Payload)
	case TypeAnswer:
		msg, err = decodeMessage[Answer](env.Payload)
	case TypeICECandidate:
		msg, err = decodeMessage[ICECandidate](env.Payload)
	case TypeDisconnect:
		msg, err = decodeMessage[Disconnect](env.Payload)
	case TypeError:
		msg, err = decodeMessage[Error](env.Payload)
	case TypeRoomClosed:
		msg = RoomClosed{}
	default:
		return env, nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	if err != nil {
		return env, nil, fmt.Errorf("%w: %s payload: %v", ErrMalformed, env.Type, err)
	}
	return env, msg, nil
}

func decodeMessage[T Message](raw json.RawMessage) (Message, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Encode wraps msg into an envelope stamped with sender (may be empty for server-originated messages).
func Encode(msg Message, sender domain.PeerID) ([]byte, error) {
	env := Envelope{Type: msg.Type(), SenderID: sender}
	if _, empty := msg.(RoomClosed); !empty {
		payload, err := json.Marshal(msg)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", msg.Type(), err)
		}
		env.Payload = payload
	}
	return json.Marshal(env)
}
