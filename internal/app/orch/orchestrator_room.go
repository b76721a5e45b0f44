package orch

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/watchparty/internal/app"
	"github.com/dkeye/watchparty/internal/core"
	"github.com/dkeye/watchparty/internal/domain"
	"github.com/rs/zerolog/log"
)

const maxLeaveAttempts = 3

// JoinRequest carries the room to join and the metadata used if it has to be created.
type JoinRequest struct {
	RoomID      domain.RoomID
	Name        domain.RoomName
	Description string
	Image       string
}

// Join binds sid to the room as user. A previous binding of sid, and bindings
// of the same user in other rooms, are torn down first. Joins of one
// connection, and joins of one user, run one at a time so that both
// teardown decisions still hold when the room is entered.
func (o *Orchestrator) Join(ctx context.Context, sid core.SessionID, user domain.User, req JoinRequest) error {
	if err := user.Validate(); err != nil {
		return err
	}
	if err := req.RoomID.Validate(); err != nil {
		return err
	}
	unlockConn := o.conns.Lock(sid)
	defer unlockConn()
	unlockUser := o.users.Lock(user.ID)
	defer unlockUser()

	if b, ok := o.Registry.Lookup(sid); ok {
		if b.RoomID == req.RoomID && b.User.ID == user.ID {
			o.echoSnapshot(sid, req.RoomID)
			return nil
		}
		if err := o.leave(ctx, sid, false); err != nil {
			return err
		}
		log.Info().Str("module", "orch").Str("sid", string(sid)).Str("from_room", string(b.RoomID)).Msg("left previous room")
	}
	for _, other := range o.Registry.BindingsOfUser(user.ID) {
		if other.RoomID == req.RoomID {
			continue
		}
		if err := o.leave(ctx, other.SID, false); err != nil {
			return err
		}
		o.sendTo(other.SID, Left{Type: TypeLeft, Room: other.RoomID, Reason: "joined_elsewhere"})
	}

	state, release := o.Rooms.Acquire(req.RoomID)
	defer release()
	return o.joinLocked(ctx, state, sid, user, req)
}

func (o *Orchestrator) joinLocked(ctx context.Context, state *core.RoomState, sid core.SessionID, user domain.User, req JoinRequest) error {
	gctx, cancel := o.gatewayCtx(ctx)
	defer cancel()
	logger := log.With().Str("module", "orch").Str("sid", string(sid)).Str("room", string(req.RoomID)).Str("user", string(user.ID)).Logger()

	stored, err := o.Gateway.GetUser(gctx, user.ID)
	switch {
	case err == nil:
		user = *stored
	case errors.Is(err, core.ErrNotFound):
	default:
		logger.Error().Err(err).Msg("join: get user")
		return fmt.Errorf("%w: get user: %w", ErrGateway, err)
	}

	seed := domain.NewRoom(req.RoomID, req.Name, user.ID)
	seed.Description = req.Description
	seed.Image = req.Image
	room, err := o.Gateway.GetOrCreateRoom(gctx, *seed)
	if err != nil {
		logger.Error().Err(err).Msg("join: get or create room")
		return fmt.Errorf("%w: get or create room: %w", ErrGateway, err)
	}

	newMember := !state.HasMember(user.ID)
	if newMember {
		if _, err := o.Gateway.AddMember(gctx, req.RoomID, user); err != nil {
			logger.Error().Err(err).Msg("join: add member")
			o.scheduleIfEmpty(state, *room)
			return fmt.Errorf("%w: add member: %w", ErrGateway, err)
		}
	}

	// The persisted streamer must be a live member once this join is applied.
	streamerValid := room.Streamer != nil && (*room.Streamer == user.ID || state.HasMember(*room.Streamer))
	if !streamerValid {
		next, ok := state.NextStreamer("")
		if !ok {
			next = user.ID
		}
		updated, err := o.Gateway.SetStreamer(gctx, req.RoomID, &next)
		if err != nil {
			logger.Error().Err(err).Msg("join: reconcile streamer")
			o.compensateJoin(state, user.ID, newMember, *room)
			return fmt.Errorf("%w: set streamer: %w", ErrGateway, err)
		}
		room = updated
		room.Streamer = &next
	}

	if err := o.Registry.Bind(sid, user, req.RoomID); err != nil {
		logger.Warn().Err(err).Msg("join: connection gone before bind")
		o.compensateJoin(state, user.ID, newMember, *room)
		return err
	}
	o.Reclaimer.Cancel(req.RoomID)
	state.SetRoom(*room)
	state.AddMember(sid, user, o.now())
	logger.Info().Bool("new_member", newMember).Msg("joined room")

	o.broadcast(state, NewRoomUpdate(state.Snapshot()))
	return nil
}

// compensateJoin undoes the gateway side of an aborted join, best effort.
func (o *Orchestrator) compensateJoin(state *core.RoomState, uid domain.UserID, newMember bool, room domain.Room) {
	ctx, cancel := o.gatewayCtx(context.Background())
	defer cancel()
	if newMember {
		if err := o.Gateway.RemoveMember(ctx, room.ID, uid); err != nil && !errors.Is(err, core.ErrNotFound) {
			log.Error().Err(err).Str("module", "orch").Str("room", string(room.ID)).Str("user", string(uid)).Msg("compensate join: remove member")
		}
	}
	if state.Empty() {
		if _, err := o.Gateway.SetStreamer(ctx, room.ID, nil); err != nil {
			log.Error().Err(err).Str("module", "orch").Str("room", string(room.ID)).Msg("compensate join: clear streamer")
		}
	}
	o.scheduleIfEmpty(state, room)
}

func (o *Orchestrator) scheduleIfEmpty(state *core.RoomState, room domain.Room) {
	if state.Empty() {
		o.Reclaimer.Schedule(room)
	}
}

// Leave handles an explicit LEAVE from a live connection. Leaving while
// unbound is a no-op.
func (o *Orchestrator) Leave(ctx context.Context, sid core.SessionID) error {
	unlock := o.conns.Lock(sid)
	defer unlock()
	return o.leave(ctx, sid, false)
}

// leave unbinds sid from its room. With force the local teardown happens
// even when the gateway fails, since the connection is gone anyway.
func (o *Orchestrator) leave(ctx context.Context, sid core.SessionID, force bool) error {
	for attempt := 0; attempt < maxLeaveAttempts; attempt++ {
		b, ok := o.Registry.Lookup(sid)
		if !ok {
			return nil
		}
		state, release := o.Rooms.Acquire(b.RoomID)
		cur, ok := o.Registry.Lookup(sid)
		if !ok {
			release()
			return nil
		}
		if cur.RoomID != b.RoomID {
			release()
			continue
		}
		err := o.leaveLocked(ctx, state, cur, force)
		release()
		return err
	}
	return fmt.Errorf("leave %s: binding kept moving", sid)
}

func (o *Orchestrator) leaveLocked(ctx context.Context, state *core.RoomState, b app.Binding, force bool) error {
	gctx, cancel := o.gatewayCtx(ctx)
	defer cancel()
	logger := log.With().Str("module", "orch").Str("sid", string(b.SID)).Str("room", string(b.RoomID)).Str("user", string(b.User.ID)).Logger()

	lastSession := state.Sessions(b.User.ID) <= 1
	if lastSession {
		if err := o.Gateway.RemoveMember(gctx, b.RoomID, b.User.ID); err != nil && !errors.Is(err, core.ErrNotFound) {
			logger.Error().Err(err).Bool("force", force).Msg("leave: remove member")
			if !force {
				return fmt.Errorf("%w: remove member: %w", ErrGateway, err)
			}
		}
	}

	failover := lastSession && state.Room().StreamerIs(b.User.ID)
	var next *domain.UserID
	if failover {
		if uid, ok := state.NextStreamer(b.User.ID); ok {
			next = &uid
		}
		if _, err := o.Gateway.SetStreamer(gctx, b.RoomID, next); err != nil {
			// Membership is already gone from the store; the next join reconciles the streamer.
			logger.Error().Err(err).Msg("leave: streamer failover")
		}
	}

	o.Registry.Unbind(b.SID)
	state.RemoveMember(b.SID, b.User.ID)
	if failover {
		state.SetStreamer(next)
	}
	logger.Info().Bool("failover", failover).Int("remaining", state.MemberCount()).Msg("left room")

	if state.Empty() {
		o.Reclaimer.Schedule(state.Room())
		return nil
	}
	o.broadcast(state, NewRoomUpdate(state.Snapshot()))
	return nil
}

// SetStreamer hands the streamer role to target, who must be a live member.
func (o *Orchestrator) SetStreamer(ctx context.Context, sid core.SessionID, roomID domain.RoomID, target domain.UserID) error {
	b, ok := o.Registry.Lookup(sid)
	if !ok {
		return ErrNotBound
	}
	if b.RoomID != roomID {
		return ErrRoomMismatch
	}
	state, release := o.Rooms.Acquire(roomID)
	defer release()
	if cur, ok := o.Registry.Lookup(sid); !ok || cur.RoomID != roomID {
		return ErrNotBound
	}
	if !state.HasMember(target) {
		return ErrNotMember
	}

	if !state.Room().StreamerIs(target) {
		gctx, cancel := o.gatewayCtx(ctx)
		defer cancel()
		room, err := o.Gateway.SetStreamer(gctx, roomID, &target)
		if err != nil {
			log.Error().Err(err).Str("module", "orch").Str("room", string(roomID)).Str("target", string(target)).Msg("set streamer")
			return fmt.Errorf("%w: set streamer: %w", ErrGateway, err)
		}
		room.Streamer = &target
		state.SetRoom(*room)
		log.Info().Str("module", "orch").Str("room", string(roomID)).Str("streamer", string(target)).Msg("streamer changed")
	}

	o.broadcast(state, NewRoomUpdate(state.Snapshot()))
	return nil
}

func (o *Orchestrator) echoSnapshot(sid core.SessionID, roomID domain.RoomID) {
	state, ok := o.Rooms.Get(roomID)
	if !ok {
		return
	}
	o.sendTo(sid, NewRoomUpdate(state.Snapshot()))
}
