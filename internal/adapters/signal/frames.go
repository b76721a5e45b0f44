package signal

import (
	"errors"

	"github.com/dkeye/watchparty/internal/app/orch"
	"github.com/dkeye/watchparty/internal/core"
	"github.com/dkeye/watchparty/internal/domain"
)

// Outbound frame types that only this adapter emits. Room and chat frames
// come from the coordinator.
const (
	TypeConnected = "CONNECTED"
	TypePong      = "PONG"
	TypeWhoAmI    = "WHOAMI"
	TypeError     = "ERROR"
)

// Error codes carried by ERROR frames.
const (
	CodeBadPayload   = "bad_payload"
	CodeUnknownEvent = "unknown_event"
	CodeInvalid      = "invalid"
	CodeNotJoined    = "not_joined"
	CodeRoomMismatch = "room_mismatch"
	CodeNotMember    = "not_member"
	CodeUnavailable  = "unavailable"
	CodeRateLimited  = "rate_limited"
	CodeClosed       = "closed"
	CodeInternal     = "internal"
)

var ErrRateLimited = errors.New("rate limited")

type Connected struct {
	Type string         `json:"type"`
	SID  core.SessionID `json:"sid"`
}

type Pong struct {
	Type string `json:"type"`
}

type WhoAmI struct {
	Type string         `json:"type"`
	SID  core.SessionID `json:"sid"`
	User *domain.User   `json:"user"`
	Room *domain.RoomID `json:"room"`
}

type ErrorFrame struct {
	Type    string    `json:"type"`
	Error   string    `json:"error"`
	Op      EventType `json:"op,omitempty"`
	Message string    `json:"message,omitempty"`
}

// ErrorCode maps a handler error onto the code sent to the client.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrUnknownEvent):
		return CodeUnknownEvent
	case errors.Is(err, ErrBadPayload):
		return CodeBadPayload
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimited
	case errors.Is(err, orch.ErrNotBound):
		return CodeNotJoined
	case errors.Is(err, orch.ErrRoomMismatch):
		return CodeRoomMismatch
	case errors.Is(err, orch.ErrNotMember):
		return CodeNotMember
	case errors.Is(err, orch.ErrGateway):
		return CodeUnavailable
	case errors.Is(err, core.ErrConnClosed):
		return CodeClosed
	case errors.Is(err, domain.ErrContentEmpty),
		errors.Is(err, domain.ErrContentTooLong),
		errors.Is(err, domain.ErrUserIDEmpty),
		errors.Is(err, domain.ErrUserIDTooLong),
		errors.Is(err, domain.ErrUsernameTooLong),
		errors.Is(err, domain.ErrRoomIDEmpty),
		errors.Is(err, domain.ErrRoomIDTooLong):
		return CodeInvalid
	default:
		return CodeInternal
	}
}

func (ctl *SignalWSController) sendError(c core.SignalConnection, op EventType, err error) {
	code := ErrorCode(err)
	frame := ErrorFrame{Type: TypeError, Error: code, Op: op}
	// Internal details stay in the logs.
	if code != CodeInternal && code != CodeUnavailable {
		frame.Message = err.Error()
	}
	ctl.sendJSON(c, frame)
}
