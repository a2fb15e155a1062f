package protocol

import (
	"fmt"

	"github.com/dkeye/voicemesh/internal/domain"
	json "github.com/goccy/go-json"
	"github.com/pion/webrtc/v4"
)

type DataType string

const (
	DataOffer                 DataType = "offer"
	DataAnswer                DataType = "answer"
	DataICECandidate          DataType = "ice-candidate"
	DataRoomState             DataType = "room-state"
	DataClientJoined          DataType = "client-joined"
	DataClientLeft            DataType = "client-left"
	DataChat                  DataType = "chat"
	DataChatBroadcast         DataType = "chat-broadcast"
	DataPlayerStatus          DataType = "player-status"
	DataPlayerStatusBroadcast DataType = "player-status-update-broadcast"
	DataGameSetting           DataType = "game-setting"
	DataPlayerAudioUpdate     DataType = "player-audio-update"
)

// DataEnvelope is the relay-layer wire form carried inside a data channel.
type DataEnvelope struct {
	Type     DataType        `json:"data-channel-type"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	SenderID domain.PeerID   `json:"senderId,omitempty"`
}

// DataMessage is the closed set of data-channel payloads.
type DataMessage interface {
	DataType() DataType
	isDataMessage()
}

// RelayOffer, RelayAnswer and RelayCandidate are addressed to ClientID and
// forwarded untouched by the owner.
type RelayOffer struct {
	SDP      webrtc.SessionDescription `json:"sdp"`
	ClientID domain.PeerID             `json:"clientId"`
}

type RelayAnswer struct {
	SDP      webrtc.SessionDescription `json:"sdp"`
	ClientID domain.PeerID             `json:"clientId"`
}

type RelayCandidate struct {
	Candidate webrtc.ICECandidateInit `json:"candidate"`
	ClientID  domain.PeerID           `json:"clientId"`
}

type RoomState struct {
	Players []domain.Player `json:"players"`
}

type ClientJoined struct {
	ID   domain.PeerID `json:"id"`
	Name string        `json:"name"`
}

type ClientLeft struct {
	ClientID domain.PeerID `json:"clientId"`
}

type Chat struct {
	Text string `json:"text"`
}

type ChatBroadcast struct {
	SenderName string `json:"senderName"`
	Text       string `json:"text"`
}

type PlayerStatus struct {
	domain.PlayerStatus
}

type PlayerStatusBroadcast struct {
	ClientID domain.PeerID `json:"clientId"`
	domain.PlayerStatus
}

type GameSetting struct {
	domain.GameSettings
}

// PlayerAudioUpdate carries the recipient's own pose as Listener and every
// other player's pose keyed by display name.
type PlayerAudioUpdate struct {
	Listener *domain.Pose           `json:"listener,omitempty"`
	Players  map[string]domain.Pose `json:"players"`
}

func (RelayOffer) DataType() DataType            { return DataOffer }
func (RelayAnswer) DataType() DataType           { return DataAnswer }
func (RelayCandidate) DataType() DataType        { return DataICECandidate }
func (RoomState) DataType() DataType             { return DataRoomState }
func (ClientJoined) DataType() DataType          { return DataClientJoined }
func (ClientLeft) DataType() DataType            { return DataClientLeft }
func (Chat) DataType() DataType                  { return DataChat }
func (ChatBroadcast) DataType() DataType         { return DataChatBroadcast }
func (PlayerStatus) DataType() DataType          { return DataPlayerStatus }
func (PlayerStatusBroadcast) DataType() DataType { return DataPlayerStatusBroadcast }
func (GameSetting) DataType() DataType           { return DataGameSetting }
func (PlayerAudioUpdate) DataType() DataType     { return DataPlayerAudioUpdate }

func (RelayOffer) isDataMessage()            {}
func (RelayAnswer) isDataMessage()           {}
func (RelayCandidate) isDataMessage()        {}
func (RoomState) isDataMessage()             {}
func (ClientJoined) isDataMessage()          {}
func (ClientLeft) isDataMessage()            {}
func (Chat) isDataMessage()                  {}
func (ChatBroadcast) isDataMessage()         {}
func (PlayerStatus) isDataMessage()          {}
func (PlayerStatusBroadcast) isDataMessage() {}
func (GameSetting) isDataMessage()           {}
func (PlayerAudioUpdate) isDataMessage()     {}

// Relayed reports whether the owner forwards this type to payload.clientId instead of consuming it.
func (t DataType) Relayed() bool {
	return t == DataOffer || t == DataAnswer || t == DataICECandidate
}

func DecodeData(data []byte) (DataEnvelope, DataMessage, error) {
	var env DataEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return env, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	var (
		msg DataMessage
		err error
	)
	switch env.Type {
	case DataOffer:
		msg, err = decodePayload[RelayOffer](env.Payload)
	case DataAnswer:
		msg, err = decodePayload[RelayAnswer](env.Payload)
	case DataICECandidate:
		msg, err = decodePayload[RelayCandidate](env.Payload)
	case DataRoomState:
		msg, err = decodePayload[RoomState](env.Payload)
	case DataClientJoined:
		msg, err = decodePayload[ClientJoined](env.Payload)
	case DataClientLeft:
		msg, err = decodePayload[ClientLeft](env.Payload)
	case DataChat:
		msg, err = decodePayload[Chat](env.Payload)
	case DataChatBroadcast:
		msg, err = decodePayload[ChatBroadcast](env.Payload)
	case DataPlayerStatus:
		msg, err = decodePayload[PlayerStatus](env.Payload)
	case DataPlayerStatusBroadcast:
		msg, err = decodePayload[PlayerStatusBroadcast](env.Payload)
	case DataGameSetting:
		msg, err = decodePayload[GameSetting](env.Payload)
	case DataPlayerAudioUpdate:
		msg, err = decodePayload[PlayerAudioUpdate](env.Payload)
	default:
		return env, nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	if err != nil {
		return env, nil, fmt.Errorf("%w: %s payload: %v", ErrMalformed, env.Type, err)
	}
	return env, msg, nil
}

func decodePayload[T DataMessage](raw json.RawMessage) (DataMessage, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func EncodeData(msg DataMessage, sender domain.PeerID) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msg.DataType(), err)
	}
	return json.Marshal(DataEnvelope{Type: msg.DataType(), Payload: payload, SenderID: sender})
}
