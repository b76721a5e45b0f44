package signal

import (
	"context"

	"github.com/dkeye/watchparty/internal/app/orch"
	"github.com/dkeye/watchparty/internal/core"
	"github.com/dkeye/watchparty/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleChat(ctx context.Context, sid core.SessionID, c core.SignalConnection, e *ChatEvent) {
	b, ok := ctl.Orch.Registry.Lookup(sid)
	if !ok {
		ctl.sendError(c, EventChat, orch.ErrNotBound)
		return
	}
	if ctl.Limiter != nil && !ctl.Limiter.Allow(b.User.ID) {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Str("user", string(b.User.ID)).Msg("chat rate limited")
		ctl.sendError(c, EventChat, ErrRateLimited)
		return
	}
	if _, err := ctl.Orch.Chat(ctx, sid, domain.RoomID(e.RoomID), e.Content); err != nil {
		ctl.sendError(c, EventChat, err)
	}
}
