package store

import (
	"time"

	"github.com/dkeye/watchparty/internal/core"
	"github.com/dkeye/watchparty/internal/domain"
)

// UserRecord is the users table.
type UserRecord struct {
	ID        string    `gorm:"primarykey;size:64"`
	Name      string    `gorm:"size:64"`
	Image     string    `gorm:"size:512"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (UserRecord) TableName() string {
	return "users"
}

// RoomRecord is the rooms table. Streamer is NULL when unset.
type RoomRecord struct {
	ID          string    `gorm:"primarykey;size:64"`
	Name        string    `gorm:"size:64;not null"`
	Description string    `gorm:"size:512"`
	Image       string    `gorm:"size:512"`
	Streamer    *string   `gorm:"size:64"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (RoomRecord) TableName() string {
	return "rooms"
}

// MembershipRecord is the user_rooms table; the unique user index keeps a
// user in at most one room.
type MembershipRecord struct {
	ID       uint      `gorm:"primarykey"`
	UserID   string    `gorm:"size:64;not null;uniqueIndex"`
	RoomID   string    `gorm:"size:64;not null;index"`
	JoinedAt time.Time `gorm:"not null"`
}

func (MembershipRecord) TableName() string {
	return "user_rooms"
}

func (u UserRecord) toDomain() domain.User {
	return domain.User{ID: domain.UserID(u.ID), Name: u.Name, Image: u.Image}
}

func (r RoomRecord) toDomain() domain.Room {
	room := domain.Room{
		ID:          domain.RoomID(r.ID),
		Name:        domain.RoomName(r.Name),
		Description: r.Description,
		Image:       r.Image,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.Streamer != nil {
		s := domain.UserID(*r.Streamer)
		room.Streamer = &s
	}
	return room
}

func roomFromDomain(r domain.Room) RoomRecord {
	rec := RoomRecord{
		ID:          string(r.ID),
		Name:        string(r.Name),
		Description: r.Description,
		Image:       r.Image,
	}
	if r.Streamer != nil {
		s := string(*r.Streamer)
		rec.Streamer = &s
	}
	return rec
}

func (m MembershipRecord) toDomain() domain.Membership {
	return domain.Membership{UserID: domain.UserID(m.UserID), RoomID: domain.RoomID(m.RoomID), JoinedAt: m.JoinedAt}
}

var _ core.Gateway = (*Store)(nil)
