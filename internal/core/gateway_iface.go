//go:generate go run go.uber.org/mock/mockgen -source=gateway_iface.go -destination=../../mocks/mock_gateway.go -package=mocks

package core

import (
	"context"
	"errors"

	"github.com/dkeye/watchparty/internal/domain"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrGatewayStatus = errors.New("gateway status")
)

// RoomRecord is the persisted room together with its membership rows.
type RoomRecord struct {
	Room  domain.Room   `json:"room"`
	Users []domain.User `json:"users"`
}

// Gateway is the persistence collaborator. It owns users, rooms and
// memberships; the coordinator only reads snapshots and requests changes.
// Every call may block on I/O and must honour ctx.
type Gateway interface {
	// GetOrCreateRoom returns the existing row or inserts seed.
	GetOrCreateRoom(ctx context.Context, seed domain.Room) (*domain.Room, error)
	GetRoom(ctx context.Context, id domain.RoomID) (*RoomRecord, error)
	// AddMember upserts the membership row. A user is in at most one room,
	// so rows for other rooms are dropped.
	AddMember(ctx context.Context, roomID domain.RoomID, user domain.User) (*domain.Membership, error)
	RemoveMember(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error
	// SetStreamer replaces the streamer; nil clears it.
	SetStreamer(ctx context.Context, roomID domain.RoomID, userID *domain.UserID) (*domain.Room, error)
	DeleteRoom(ctx context.Context, roomID domain.RoomID) error
	GetUser(ctx context.Context, id domain.UserID) (*domain.User, error)
}
