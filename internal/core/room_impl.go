package core

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/dkeye/watchparty/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

type memberEntry struct {
	member   *domain.Member
	sessions map[SessionID]struct{}
}

// RoomState is the in-memory view of a room: live members and the streamer.
// Writers hold the room exclusion from RoomManager.Acquire; the RWMutex only
// protects concurrent readers (listing, REST) against those writers.
type RoomState struct {
	mu      sync.RWMutex
	room    domain.Room
	loaded  bool
	members map[domain.UserID]*memberEntry
	seq     uint64
}

func NewRoomState(id domain.RoomID) *RoomState {
	return &RoomState{
		room:    domain.Room{ID: id, Name: domain.RoomName(id)},
		members: make(map[domain.UserID]*memberEntry),
	}
}

func (r *RoomState) ID() domain.RoomID {
	return r.room.ID
}

// Room returns a copy of the cached room row.
func (r *RoomState) Room() domain.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := r.room
	if r.room.Streamer != nil {
		s := *r.room.Streamer
		out.Streamer = &s
	}
	return out
}

// Loaded reports whether the row was fetched from the gateway at least once.
func (r *RoomState) Loaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded
}

// SetRoom replaces the cached row, including its streamer.
func (r *RoomState) SetRoom(room domain.Room) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room.ID = r.room.ID
	r.room = room
	r.loaded = true
}

func (r *RoomState) Streamer() *domain.UserID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.room.Streamer == nil {
		return nil
	}
	s := *r.room.Streamer
	return &s
}

func (r *RoomState) SetStreamer(uid *domain.UserID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if uid == nil {
		r.room.Streamer = nil
		return
	}
	s := *uid
	r.room.Streamer = &s
}

// AddMember binds sid for user. It reports whether the user was not a member before.
func (r *RoomState) AddMember(sid SessionID, user domain.User, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.members[user.ID]
	if !ok {
		r.seq++
		e = &memberEntry{
			member:   domain.NewMember(user, r.seq, now),
			sessions: make(map[SessionID]struct{}),
		}
		r.members[user.ID] = e
	}
	e.member.User = user
	e.sessions[sid] = struct{}{}
	log.Debug().Str("module", "core.room").Str("room", string(r.room.ID)).Str("sid", string(sid)).Str("user", string(user.ID)).Msg("member added")
	return !ok
}

// RemoveMember drops sid. It reports whether it was the user's last session,
// i.e. the user is no longer a member.
func (r *RoomState) RemoveMember(sid SessionID, uid domain.UserID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.members[uid]
	if !ok {
		return false
	}
	delete(e.sessions, sid)
	if len(e.sessions) > 0 {
		return false
	}
	delete(r.members, uid)
	log.Debug().Str("module", "core.room").Str("room", string(r.room.ID)).Str("sid", string(sid)).Str("user", string(uid)).Msg("member removed")
	return true
}

func (r *RoomState) HasMember(uid domain.UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[uid]
	return ok
}

func (r *RoomState) HasSession(sid SessionID, uid domain.UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.members[uid]
	if !ok {
		return false
	}
	_, ok = e.sessions[sid]
	return ok
}

// Sessions counts the connections bound for uid in this room.
func (r *RoomState) Sessions(uid domain.UserID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.members[uid]; ok {
		return len(e.sessions)
	}
	return 0
}

func (r *RoomState) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

func (r *RoomState) Empty() bool {
	return r.MemberCount() == 0
}

// NextStreamer picks the earliest-joined member other than exclude.
func (r *RoomState) NextStreamer(exclude domain.UserID) (domain.UserID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var best *domain.Member
	for uid, e := range r.members {
		if uid == exclude {
			continue
		}
		if best == nil || e.member.Seq < best.Seq {
			best = e.member
		}
	}
	if best == nil {
		return "", false
	}
	return best.User.ID, true
}

// orderedMembers must be called with r.mu held.
func (r *RoomState) orderedMembers() []*domain.Member {
	out := lo.MapToSlice(r.members, func(_ domain.UserID, e *memberEntry) *domain.Member {
		return e.member
	})
	slices.SortFunc(out, func(a, b *domain.Member) int {
		return cmp.Compare(a.Seq, b.Seq)
	})
	return out
}

func (r *RoomState) MembersSnapshot() []MemberDTO {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Map(r.orderedMembers(), func(m *domain.Member, _ int) MemberDTO {
		return MemberDTO{ID: m.User.ID, Name: m.User.DisplayName(), Image: m.User.Image}
	})
}

func (r *RoomState) Snapshot() RoomSnapshot {
	room := r.Room()
	return RoomSnapshot{
		ID:          room.ID,
		Name:        room.Name,
		Description: room.Description,
		Image:       room.Image,
		Streamer:    room.Streamer,
		Members:     r.MembersSnapshot(),
	}
}

func (r *RoomState) Info() RoomInfo {
	room := r.Room()
	return RoomInfo{
		ID:          room.ID,
		Name:        room.Name,
		Streamer:    room.Streamer,
		MemberCount: r.MemberCount(),
	}
}
