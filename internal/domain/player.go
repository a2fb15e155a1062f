// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"regexp"
)

const (
	MaxNameLen      = 36
	UnknownName     = "Unknown"
	DefaultOwnerTag = "Owner"
)

var (
	ErrNameTooLong = errors.New("name too long")
	ErrNameEmpty   = errors.New("name empty")
)

var playerCodeRe = regexp.MustCompile(`^[0-9]{4}$`)

// PlayerCode is the short numeric secret a player types to prove an in-game identity.
type PlayerCode string

func (c PlayerCode) Valid() bool { return playerCodeRe.MatchString(string(c)) }

// Player is a roster entry: a signaling id and the in-game display name bound to it.
type Player struct {
	ID   PeerID `json:"id"`
	Name string `json:"name"`
}

func NewPlayer(id PeerID, name string) (*Player, error) {
	p := &Player{ID: id}
	if err := p.SetName(name); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Player) SetName(name string) error {
	if len(name) == 0 {
		return ErrNameEmpty
	}
	if len(name) > MaxNameLen {
		return ErrNameTooLong
	}
	p.Name = name
	return nil
}
