package app

import (
	"errors"
	"math/rand/v2"
	"sync"

	"github.com/dkeye/voicemesh/internal/core"
	"github.com/dkeye/voicemesh/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrRoomHasNoOwner = errors.New("room has no owner")
)

// Conn is one accepted WebSocket as the registry sees it.
type Conn struct {
	ID     domain.PeerID
	Role   domain.Role
	Signal core.SignalConnection

	// Room is set once by CreateRoom or JoinRoom.
	Room domain.RoomCode
}

func NewConn(id domain.PeerID, role domain.Role, sig core.SignalConnection) *Conn {
	return &Conn{ID: id, Role: role, Signal: sig}
}

type room struct {
	code    domain.RoomCode
	owner   *Conn
	clients map[domain.PeerID]*Conn
}

// Registry maps room codes to their connections.
// Create, join, remove and close are serialized by one mutex.
type Registry struct {
	mu    sync.RWMutex
	rooms map[domain.RoomCode]*room
	intn  func(n int) int
}

type RegistryOption func(*Registry)

// WithCodeSource replaces the random source used for room codes.
func WithCodeSource(intn func(n int) int) RegistryOption {
	return func(r *Registry) { r.intn = intn }
}

func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		rooms: make(map[domain.RoomCode]*room),
		intn:  rand.IntN,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateRoom registers owner under a fresh code that no active room uses.
func (r *Registry) CreateRoom(owner *Conn) domain.RoomCode {
	r.mu.Lock()
	defer r.mu.Unlock()
	code := domain.NewRoomCode(r.intn)
	for {
		if _, taken := r.rooms[code]; !taken {
			break
		}
		log.Debug().Str("module", "app.registry").Str("room", string(code)).Msg("room code collision, retrying")
		code = domain.NewRoomCode(r.intn)
	}
	r.rooms[code] = &room{
		code:    code,
		owner:   owner,
		clients: make(map[domain.PeerID]*Conn),
	}
	owner.Room = code
	log.Info().Str("module", "app.registry").Str("room", string(code)).Str("owner", string(owner.ID)).Msg("room created")
	return code
}

// JoinRoom adds client to the room and returns the room owner.
func (r *Registry) JoinRoom(client *Conn, code domain.RoomCode) (*Conn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[code]
	if !ok {
		return nil, ErrRoomNotFound
	}
	if rm.owner == nil {
		return nil, ErrRoomHasNoOwner
	}
	rm.clients[client.ID] = client
	client.Room = code
	log.Info().Str("module", "app.registry").Str("room", string(code)).Str("conn_id", string(client.ID)).Msg("client joined")
	return rm.owner, nil
}

func (r *Registry) Owner(code domain.RoomCode) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[code]
	if !ok || rm.owner == nil {
		return nil, false
	}
	return rm.owner, true
}

// Member finds the owner or a client of the room by id.
func (r *Registry) Member(code domain.RoomCode, id domain.PeerID) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[code]
	if !ok {
		return nil, false
	}
	if rm.owner != nil && rm.owner.ID == id {
		return rm.owner, true
	}
	c, ok := rm.clients[id]
	return c, ok
}

// RemoveClient drops a client from its room. It reports false if it was not there.
func (r *Registry) RemoveClient(code domain.RoomCode, id domain.PeerID) (*Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[code]
	if !ok {
		return nil, false
	}
	c, ok := rm.clients[id]
	if !ok {
		return nil, false
	}
	delete(rm.clients, id)
	log.Info().Str("module", "app.registry").Str("room", string(code)).Str("conn_id", string(id)).Msg("client removed")
	return c, true
}

// CloseRoom deletes the room and hands back its clients so the caller can notify
// and close them outside the lock.
func (r *Registry) CloseRoom(code domain.RoomCode) ([]*Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[code]
	if !ok {
		return nil, false
	}
	delete(r.rooms, code)
	out := make([]*Conn, 0, len(rm.clients))
	for _, c := range rm.clients {
		out = append(out, c)
	}
	log.Info().Str("module", "app.registry").Str("room", string(code)).Int("clients", len(out)).Msg("room closed")
	return out, true
}

type RoomInfo struct {
	Code    domain.RoomCode `json:"roomCode"`
	Clients int             `json:"clients"`
}

func (r *Registry) Info(code domain.RoomCode) (RoomInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[code]
	if !ok {
		return RoomInfo{}, false
	}
	return RoomInfo{Code: code, Clients: len(rm.clients)}, true
}

func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
