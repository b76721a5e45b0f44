package app

import (
	"context"
	"sync"

	"github.com/dkeye/watchparty/internal/core"
	"github.com/dkeye/watchparty/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

type sessionEntry struct {
	Signal core.SignalConnection
	Cancel context.CancelFunc
	User   *domain.User
	RoomID domain.RoomID
	closed bool
}

// Binding is the {user, room} pair bound to a connection.
type Binding struct {
	SID    core.SessionID
	User   domain.User
	RoomID domain.RoomID
}

// Peer is one connection subscribed to a room.
type Peer struct {
	SID    core.SessionID
	User   domain.User
	Signal core.SignalConnection
}

// Registry tracks live connections, their binding and the room -> connections index.
// The coordinator is its only writer for bindings.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
	byRoom   map[domain.RoomID]map[core.SessionID]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[core.SessionID]*sessionEntry),
		byRoom:   make(map[domain.RoomID]map[core.SessionID]struct{}),
	}
}

// Register records a freshly opened connection with no binding.
func (r *Registry) Register(sid core.SessionID, sig core.SignalConnection, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sid] = &sessionEntry{Signal: sig, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("registered session")
}

// Deregister marks the connection closed. Only the first call returns true,
// later ones and unknown sessions are no-ops.
func (r *Registry) Deregister(sid core.SessionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok || e.closed {
		return false
	}
	e.closed = true
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("deregistered session")
	return true
}

// Drop forgets the connection entirely, dropping any binding left.
func (r *Registry) Drop(sid core.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[sid]; ok {
		r.unindex(sid, e)
		delete(r.sessions, sid)
	}
}

func (r *Registry) Signal(sid core.SessionID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok {
		return nil, false
	}
	return e.Signal, true
}

// Bind registers or overwrites the binding of sid and subscribes it to roomID.
// A previous room subscription is removed first.
func (r *Registry) Bind(sid core.SessionID, user domain.User, roomID domain.RoomID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok || e.closed {
		return core.ErrConnClosed
	}
	r.unindex(sid, e)
	u := user
	e.User = &u
	e.RoomID = roomID
	set, ok := r.byRoom[roomID]
	if !ok {
		set = make(map[core.SessionID]struct{})
		r.byRoom[roomID] = set
	}
	set[sid] = struct{}{}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("room", string(roomID)).Str("user", string(user.ID)).Msg("bound session")
	return nil
}

// Unbind removes the binding and the room subscription. Unbinding an unbound
// connection is a no-op and returns false.
func (r *Registry) Unbind(sid core.SessionID) (Binding, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok || e.User == nil {
		return Binding{}, false
	}
	b := Binding{SID: sid, User: *e.User, RoomID: e.RoomID}
	r.unindex(sid, e)
	e.User = nil
	e.RoomID = ""
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("room", string(b.RoomID)).Msg("unbind session")
	return b, true
}

// unindex must be called with r.mu held.
func (r *Registry) unindex(sid core.SessionID, e *sessionEntry) {
	if e.RoomID == "" {
		return
	}
	if set, ok := r.byRoom[e.RoomID]; ok {
		delete(set, sid)
		if len(set) == 0 {
			delete(r.byRoom, e.RoomID)
		}
	}
}

func (r *Registry) Lookup(sid core.SessionID) (Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok || e.User == nil {
		return Binding{}, false
	}
	return Binding{SID: sid, User: *e.User, RoomID: e.RoomID}, true
}

// MembersOf returns the connections currently subscribed to roomID.
func (r *Registry) MembersOf(roomID domain.RoomID) []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.byRoom[roomID]
	out := make([]Peer, 0, len(set))
	for sid := range set {
		e := r.sessions[sid]
		out = append(out, Peer{SID: sid, User: *e.User, Signal: e.Signal})
	}
	return out
}

// BindingsOfUser lists every connection bound to uid, whatever the room.
func (r *Registry) BindingsOfUser(uid domain.UserID) []Binding {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Binding, 0, 1)
	for sid, e := range r.sessions {
		if e.User != nil && e.User.ID == uid {
			out = append(out, Binding{SID: sid, User: *e.User, RoomID: e.RoomID})
		}
	}
	return out
}

// Sessions lists every registered connection id.
func (r *Registry) Sessions() []core.SessionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.sessions)
}

func (r *Registry) Cancel(sid core.SessionID) bool {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("canceled session")
	return true
}
