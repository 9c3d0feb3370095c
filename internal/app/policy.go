package app

import (
	"github.com/dkeye/SignMeet/internal/core"
	"github.com/dkeye/SignMeet/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

// Policy decides what happens to a connection whose send buffer is full.
type Policy interface {
	OnBackPressure(room domain.RoomID, sid core.SessionID) BackpressureAction
}

// SimplePolicy kicks slow members: a peer that misses signaling frames
// cannot complete negotiation anyway.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(domain.RoomID, core.SessionID) BackpressureAction {
	return KickMember
}
