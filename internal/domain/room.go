package domain

import (
	"errors"
	"time"
)

const (
	MaxRoomIDLen          = 64
	MaxRoomNameLen        = 64
	MaxRoomDescriptionLen = 512
)

var (
	ErrRoomIDEmpty   = errors.New("room id empty")
	ErrRoomIDTooLong = errors.New("room id too long")
)

type (
	RoomName string
	RoomID   string
)

// Room mirrors the authoritative row kept by the persistence gateway.
// Streamer is nil when nobody is streaming.
type Room struct {
	ID          RoomID    `json:"id"`
	Name        RoomName  `json:"name"`
	Description string    `json:"description,omitempty"`
	Image       string    `json:"image,omitempty"`
	Streamer    *UserID   `json:"streamer"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (id RoomID) Validate() error {
	if len(id) == 0 {
		return ErrRoomIDEmpty
	}
	if len(id) > MaxRoomIDLen {
		return ErrRoomIDTooLong
	}
	return nil
}

// StreamerIs reports whether uid is the recorded streamer.
func (r Room) StreamerIs(uid UserID) bool {
	return r.Streamer != nil && *r.Streamer == uid
}

// NewRoom builds the row written when a room is first joined.
// The creator becomes the default streamer.
func NewRoom(id RoomID, name RoomName, creator UserID) *Room {
	if name == "" {
		name = RoomName(id)
	}
	streamer := creator
	return &Room{ID: id, Name: name, Streamer: &streamer}
}
