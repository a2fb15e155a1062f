package app

import "github.com/dkeye/voicemesh/internal/domain"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickMember
)

// Policy decides what happens to a connection whose outbound queue is full.
type Policy interface {
	OnBackPressure(conn *Conn) BackpressureAction
}

// SimplePolicy never kicks an owner, since that would tear the whole room down.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(conn *Conn) BackpressureAction {
	if conn.Role == domain.RoleOwner {
		return DropFrame
	}
	return KickMember
}
