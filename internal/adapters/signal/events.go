package signal

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/watchparty/internal/domain"
	"github.com/go-playground/validator/v10"
)

var (
	ErrBadPayload   = errors.New("bad payload")
	ErrUnknownEvent = errors.New("unknown event")
)

type EventType string

// Inbound frame types.
const (
	EventJoin        EventType = "JOIN"
	EventChat        EventType = "CHATMESSAGE"
	EventSetStreamer EventType = "SETSTREAMER"
	EventLeave       EventType = "LEAVE"
	EventPing        EventType = "PING"
	EventWhoAmI      EventType = "WHOAMI"
)

// Event is one validated inbound frame.
type Event interface {
	Type() EventType
}

type UserPayload struct {
	ID    string `json:"id" validate:"required,max=64"`
	Name  string `json:"name" validate:"max=64"`
	Image string `json:"image" validate:"omitempty,max=512"`
}

func (u UserPayload) Domain() domain.User {
	return domain.User{ID: domain.UserID(u.ID), Name: u.Name, Image: u.Image}
}

type JoinEvent struct {
	RoomID      string      `json:"roomID" validate:"required,max=64"`
	User        UserPayload `json:"user" validate:"required"`
	RoomName    string      `json:"roomName" validate:"max=64"`
	Description string      `json:"description" validate:"max=512"`
	Image       string      `json:"image" validate:"omitempty,max=512"`
}

// ChatEvent may carry the sender for compatibility; the bound user is
// authoritative.
type ChatEvent struct {
	RoomID  string       `json:"roomID" validate:"required,max=64"`
	User    *UserPayload `json:"user,omitempty"`
	Content string       `json:"content" validate:"required"`
}

type SetStreamerEvent struct {
	RoomID        string `json:"roomID" validate:"required,max=64"`
	NewStreamerID string `json:"newStreamerID" validate:"required,max=64"`
}

type LeaveEvent struct {
	RoomID string `json:"roomID" validate:"max=64"`
}

type PingEvent struct{}

type WhoAmIEvent struct{}

func (JoinEvent) Type() EventType        { return EventJoin }
func (ChatEvent) Type() EventType        { return EventChat }
func (SetStreamerEvent) Type() EventType { return EventSetStreamer }
func (LeaveEvent) Type() EventType       { return EventLeave }
func (PingEvent) Type() EventType        { return EventPing }
func (WhoAmIEvent) Type() EventType      { return EventWhoAmI }

var validate = validator.New(validator.WithRequiredStructEnabled())

// DecodeEvent parses {"type": ...} frames into their typed event and
// validates the required fields of that kind.
func DecodeEvent(data []byte) (Event, error) {
	var env struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadPayload, err)
	}

	var ev Event
	switch env.Type {
	case EventJoin:
		ev = &JoinEvent{}
	case EventChat:
		ev = &ChatEvent{}
	case EventSetStreamer:
		ev = &SetStreamerEvent{}
	case EventLeave:
		ev = &LeaveEvent{}
	case EventPing:
		return PingEvent{}, nil
	case EventWhoAmI:
		return WhoAmIEvent{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}
	if err := json.Unmarshal(data, ev); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadPayload, err)
	}
	if err := validate.Struct(ev); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadPayload, err)
	}
	return ev, nil
}
