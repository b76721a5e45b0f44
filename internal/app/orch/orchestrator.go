package orch

import (
	"context"
	"time"

	"github.com/dkeye/watchparty/internal/app"
	"github.com/dkeye/watchparty/internal/core"
	"github.com/dkeye/watchparty/internal/domain"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
)

const (
	defaultGatewayTimeout = 5 * time.Second
	defaultGraceWindow    = 5 * time.Minute
)

type Options struct {
	Gateway        core.Gateway
	Registry       *app.Registry
	Rooms          core.RoomManager
	Policy         app.Policy
	GatewayTimeout time.Duration
	GraceWindow    time.Duration
	ReservedRooms  []string
	ChatMaxLength  int
}

// Orchestrator is the room coordinator. It is the only writer of the
// registry bindings and of room state, always under the room's exclusion.
type Orchestrator struct {
	Registry  *app.Registry
	Rooms     core.RoomManager
	Policy    app.Policy
	Gateway   core.Gateway
	Reclaimer *app.Reclaimer

	// JOIN takes conns then users, then the room; LEAVE takes conns.
	conns       app.KeyedMutex[core.SessionID]
	users       app.KeyedMutex[domain.UserID]
	disconnects inflight

	timeout    time.Duration
	chatMaxLen int
	now        func() time.Time
	newID      func() string
}

func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		Registry:   opts.Registry,
		Rooms:      opts.Rooms,
		Policy:     opts.Policy,
		Gateway:    opts.Gateway,
		timeout:    opts.GatewayTimeout,
		chatMaxLen: opts.ChatMaxLength,
		now:        func() time.Time { return time.Now().UTC() },
		newID:      func() string { return ulid.Make().String() },
	}
	if o.Registry == nil {
		o.Registry = app.NewRegistry()
	}
	if o.Rooms == nil {
		o.Rooms = app.NewRoomManager()
	}
	if o.Policy == nil {
		o.Policy = app.SimplePolicy{}
	}
	if o.timeout <= 0 {
		o.timeout = defaultGatewayTimeout
	}
	if opts.GraceWindow <= 0 {
		opts.GraceWindow = defaultGraceWindow
	}
	o.Reclaimer = app.NewReclaimer(opts.GraceWindow, opts.ReservedRooms, o.reclaim)
	return o
}

func (o *Orchestrator) gatewayCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, o.timeout)
}

// RoomSnapshot returns the live view of a room, or the persisted one when
// nobody is connected.
func (o *Orchestrator) RoomSnapshot(ctx context.Context, id domain.RoomID) (*core.RoomSnapshot, error) {
	if state, ok := o.Rooms.Get(id); ok && !state.Empty() {
		s := state.Snapshot()
		return &s, nil
	}
	gctx, cancel := o.gatewayCtx(ctx)
	defer cancel()
	rec, err := o.Gateway.GetRoom(gctx, id)
	if err != nil {
		return nil, err
	}
	return &core.RoomSnapshot{
		ID:          rec.Room.ID,
		Name:        rec.Room.Name,
		Description: rec.Room.Description,
		Image:       rec.Room.Image,
		Streamer:    rec.Room.Streamer,
		Members: func() []core.MemberDTO {
			out := make([]core.MemberDTO, 0, len(rec.Users))
			for _, u := range rec.Users {
				out = append(out, core.MemberDTO{ID: u.ID, Name: u.DisplayName(), Image: u.Image})
			}
			return out
		}(),
	}, nil
}

func (o *Orchestrator) ListRooms() []core.RoomInfo {
	return o.Rooms.List()
}

// reclaim runs when a grace window expires.
func (o *Orchestrator) reclaim(id domain.RoomID, gen uint64) {
	state, release := o.Rooms.Acquire(id)
	defer release()
	if !o.Reclaimer.Claim(id, gen) {
		return
	}
	if !state.Empty() {
		return
	}
	if state.Loaded() && o.Reclaimer.IsReserved(state.Room()) {
		return
	}
	ctx, cancel := o.gatewayCtx(context.Background())
	defer cancel()
	if err := o.Gateway.DeleteRoom(ctx, id); err != nil {
		log.Error().Err(err).Str("module", "orch").Str("room", string(id)).Msg("reclaim room")
		return
	}
	log.Info().Str("module", "orch").Str("room", string(id)).Msg("room reclaimed")
}

// Shutdown stops pending reclaims and disconnects every connection. It
// returns once every disconnect, including ones started by the transport,
// has finished its leave.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.Reclaimer.Stop()
	for _, sid := range o.Registry.Sessions() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if sig, ok := o.Registry.Signal(sid); ok {
			sig.Close()
		}
		o.Registry.Cancel(sid)
		o.OnDisconnect(sid)
	}
	return o.disconnects.wait(ctx)
}
