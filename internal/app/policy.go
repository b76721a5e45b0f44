package app

import (
	"errors"

	"github.com/dkeye/watchparty/internal/core"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
	DropFrame
)

// Policy decides what happens to a peer that could not take a broadcast frame.
type Policy interface {
	OnBackPressure(room *core.RoomState, peer Peer, err error) BackpressureAction
}

// SimplePolicy kicks closed peers and peers whose buffer is full.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(_ *core.RoomState, _ Peer, _ error) BackpressureAction {
	return KickMember
}

// TolerantPolicy drops frames for slow peers and only kicks closed ones.
type TolerantPolicy struct{}

func (TolerantPolicy) OnBackPressure(_ *core.RoomState, _ Peer, err error) BackpressureAction {
	if errors.Is(err, core.ErrBackpressure) {
		return DropFrame
	}
	return KickMember
}

// PolicyByName maps a config value to a policy, defaulting to SimplePolicy.
func PolicyByName(name string) Policy {
	switch name {
	case "drop":
		return TolerantPolicy{}
	default:
		return SimplePolicy{}
	}
}
