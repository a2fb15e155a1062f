package domain

import "regexp"

type (
	RoomCode string
	PeerID   string
)

type Role string

const (
	RoleOwner  Role = "owner"
	RoleClient Role = "client"
)

const RoomCodeLen = 6

const roomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

var roomCodeRe = regexp.MustCompile(`^[A-Z]{6}$`)

// NewRoomCode draws RoomCodeLen letters, intn(n) must return a value in [0, n).
func NewRoomCode(intn func(n int) int) RoomCode {
	b := make([]byte, RoomCodeLen)
	for i := range b {
		b[i] = roomCodeAlphabet[intn(len(roomCodeAlphabet))]
	}
	return RoomCode(b)
}

func (c RoomCode) Valid() bool { return roomCodeRe.MatchString(string(c)) }
