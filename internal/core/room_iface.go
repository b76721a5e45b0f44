package core

import (
	"github.com/dkeye/watchparty/internal/domain"
)

// MemberDTO is a read-only view for APIs (no transport fields).
type MemberDTO struct {
	ID    domain.UserID `json:"id"`
	Name  string        `json:"name"`
	Image string        `json:"image,omitempty"`
}

// RoomSnapshot is the full room view; receivers replace their state with it.
// It is immutable once taken.
type RoomSnapshot struct {
	ID          domain.RoomID   `json:"id"`
	Name        domain.RoomName `json:"name"`
	Description string          `json:"description,omitempty"`
	Image       string          `json:"image,omitempty"`
	Streamer    *domain.UserID  `json:"streamer"`
	Members     []MemberDTO     `json:"members"`
}

type RoomInfo struct {
	ID          domain.RoomID   `json:"id"`
	Name        domain.RoomName `json:"name"`
	Streamer    *domain.UserID  `json:"streamer"`
	MemberCount int             `json:"member_count"`
}

// RoomManager hands out room state under a per-room exclusion.
type RoomManager interface {
	// Acquire locks the room and returns its state together with the release func.
	// Mutations of a room's membership or streamer happen only between Acquire and release.
	Acquire(id domain.RoomID) (*RoomState, func())
	Get(id domain.RoomID) (*RoomState, bool)
	List() []RoomInfo
}
