package domain

import "time"

// Membership relates a user to the single room they are currently in.
type Membership struct {
	UserID   UserID    `json:"userId"`
	RoomID   RoomID    `json:"roomId"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Member represents user's participation meta for a room.
// No transport or lifecycle logic here.
type Member struct {
	User     User
	JoinedAt time.Time
	// seq orders members that joined within the same clock tick.
	Seq uint64
}

func NewMember(user User, seq uint64, at time.Time) *Member {
	return &Member{User: user, Seq: seq, JoinedAt: at}
}
