// Package bridge is the game-side collaborator of a session: the roster of
// in-game players, their numeric join codes and in-game chat.
package bridge

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/dkeye/voicemesh/internal/domain"
	"github.com/rs/zerolog/log"
)

var ErrUnknownPlayer = errors.New("unknown player")

const (
	minCode = 1000
	maxCode = 9999
)

type EventKind int

const (
	PlayerJoined EventKind = iota
	PlayerLeft
)

type Event struct {
	Kind EventKind
	Name string
}

type Bridge interface {
	PlayerNames() []string
	GenerateAndAssignCode(name string) (domain.PlayerCode, error)
	PlayerNameByCode(code domain.PlayerCode) (string, bool)
	SendMessage(text, playerName string) error
	Events() <-chan Event
}

// World is an in-memory game for headless sessions and tests.
type World struct {
	mu     sync.Mutex
	online map[string]bool
	codes  map[domain.PlayerCode]string
	byName map[string]domain.PlayerCode
	poses  map[string]domain.Pose
	events chan Event
	intn   func(n int) int
	inbox  map[string][]string
}

func NewWorld() *World {
	return &World{
		online: make(map[string]bool),
		codes:  make(map[domain.PlayerCode]string),
		byName: make(map[string]domain.PlayerCode),
		poses:  make(map[string]domain.Pose),
		events: make(chan Event, 64),
		intn:   rand.IntN,
		inbox:  make(map[string][]string),
	}
}

func (w *World) emit(e Event) {
	select {
	case w.events <- e:
	default:
		log.Warn().Str("module", "bridge").Str("player", e.Name).Msg("event dropped, nobody listening")
	}
}

func (w *World) Join(name string) {
	w.mu.Lock()
	already := w.online[name]
	w.online[name] = true
	w.mu.Unlock()
	if !already {
		w.emit(Event{Kind: PlayerJoined, Name: name})
	}
}

// Leave takes a player offline and invalidates their code.
func (w *World) Leave(name string) {
	w.mu.Lock()
	if !w.online[name] {
		w.mu.Unlock()
		return
	}
	delete(w.online, name)
	if code, ok := w.byName[name]; ok {
		delete(w.codes, code)
		delete(w.byName, name)
	}
	delete(w.poses, name)
	w.mu.Unlock()
	w.emit(Event{Kind: PlayerLeft, Name: name})
}

func (w *World) PlayerNames() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.online))
	for name := range w.online {
		out = append(out, name)
	}
	return out
}

// GenerateAndAssignCode gives an online player a fresh code, replacing any previous one.
func (w *World) GenerateAndAssignCode(name string) (domain.PlayerCode, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.online[name] {
		return "", fmt.Errorf("assign code to %q: %w", name, ErrUnknownPlayer)
	}
	if len(w.codes) > maxCode-minCode {
		return "", errors.New("no player codes left")
	}
	if old, ok := w.byName[name]; ok {
		delete(w.codes, old)
	}
	var code domain.PlayerCode
	for {
		code = domain.PlayerCode(fmt.Sprintf("%d", minCode+w.intn(maxCode-minCode+1)))
		if _, taken := w.codes[code]; !taken {
			break
		}
	}
	w.codes[code] = name
	w.byName[name] = code
	return code, nil
}

func (w *World) PlayerNameByCode(code domain.PlayerCode) (string, bool) {
	if !code.Valid() {
		return "", false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	name, ok := w.codes[code]
	return name, ok
}

func (w *World) SendMessage(text, playerName string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.online[playerName] {
		return fmt.Errorf("message to %q: %w", playerName, ErrUnknownPlayer)
	}
	w.inbox[playerName] = append(w.inbox[playerName], text)
	log.Info().Str("module", "bridge").Str("player", playerName).Str("text", text).Msg("in-game message")
	return nil
}

// Messages returns what SendMessage delivered to playerName.
func (w *World) Messages(playerName string) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.inbox[playerName]...)
}

func (w *World) Events() <-chan Event { return w.events }

func (w *World) SetPose(name string, p domain.Pose) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.online[name] {
		w.poses[name] = p
	}
}

// Poses returns the last known pose of every online player that has one.
func (w *World) Poses() map[string]domain.Pose {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]domain.Pose, len(w.poses))
	for name, p := range w.poses {
		out[name] = p
	}
	return out
}

// NotifyPlayerCode tells a player in game chat how to join the voice room.
func NotifyPlayerCode(b Bridge, room domain.RoomCode, name string) (domain.PlayerCode, error) {
	code, err := b.GenerateAndAssignCode(name)
	if err != nil {
		return "", err
	}
	text := fmt.Sprintf("Voice chat: room %s, your code is %s", room, code)
	if err := b.SendMessage(text, name); err != nil {
		return "", err
	}
	return code, nil
}
