package signal

import (
	"context"

	"github.com/dkeye/watchparty/internal/app/orch"
	"github.com/dkeye/watchparty/internal/core"
	"github.com/dkeye/watchparty/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleJoin(ctx context.Context, sid core.SessionID, c core.SignalConnection, e *JoinEvent) {
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", e.RoomID).Str("user", e.User.ID).Msg("join")
	req := orch.JoinRequest{
		RoomID:      domain.RoomID(e.RoomID),
		Name:        domain.RoomName(e.RoomName),
		Description: e.Description,
		Image:       e.Image,
	}
	if err := ctl.Orch.Join(ctx, sid, e.User.Domain(), req); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("join rejected")
		ctl.sendError(c, EventJoin, err)
	}
}

// handleLeave leaves the current room; the connection stays open.
func (ctl *SignalWSController) handleLeave(ctx context.Context, sid core.SessionID, c core.SignalConnection, e *LeaveEvent) {
	b, bound := ctl.Orch.Registry.Lookup(sid)
	if bound && e.RoomID != "" && domain.RoomID(e.RoomID) != b.RoomID {
		ctl.sendError(c, EventLeave, orch.ErrRoomMismatch)
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Bool("bound", bound).Msg("leave")
	if err := ctl.Orch.Leave(ctx, sid); err != nil {
		ctl.sendError(c, EventLeave, err)
		return
	}
	ctl.sendJSON(c, orch.Left{Type: orch.TypeLeft, Room: b.RoomID})
}

func (ctl *SignalWSController) handleSetStreamer(ctx context.Context, sid core.SessionID, c core.SignalConnection, e *SetStreamerEvent) {
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", e.RoomID).Str("target", e.NewStreamerID).Msg("set streamer")
	if err := ctl.Orch.SetStreamer(ctx, sid, domain.RoomID(e.RoomID), domain.UserID(e.NewStreamerID)); err != nil {
		ctl.sendError(c, EventSetStreamer, err)
	}
}
