package orch

import (
	"github.com/dkeye/watchparty/internal/core"
	"github.com/dkeye/watchparty/internal/domain"
)

// Outbound frame types.
const (
	TypeRoomUpdate  = "ROOM_UPDATE"
	TypeChatMessage = "CHAT_MESSAGE"
	TypeLeft        = "LEFT"
)

type RoomUpdate struct {
	Type string            `json:"type"`
	Room core.RoomSnapshot `json:"room"`
}

func NewRoomUpdate(s core.RoomSnapshot) RoomUpdate {
	return RoomUpdate{Type: TypeRoomUpdate, Room: s}
}

type ChatBroadcast struct {
	Type    string             `json:"type"`
	Message domain.ChatMessage `json:"message"`
}

// Left tells a connection it is no longer bound to Room.
type Left struct {
	Type   string        `json:"type"`
	Room   domain.RoomID `json:"room"`
	Reason string        `json:"reason,omitempty"`
}
