package orch

import "errors"

var (
	ErrNotBound     = errors.New("connection not bound to a room")
	ErrRoomMismatch = errors.New("connection bound to another room")
	ErrNotMember    = errors.New("target is not a room member")
	ErrGateway      = errors.New("persistence gateway failure")
)
