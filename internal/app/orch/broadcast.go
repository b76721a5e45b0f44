package orch

import (
	"encoding/json"

	"github.com/dkeye/watchparty/internal/app"
	"github.com/dkeye/watchparty/internal/core"
	"github.com/rs/zerolog/log"
)

// PublishResult reports delivery stats of one fan-out.
type PublishResult struct {
	SendTo  int
	Dropped []app.Peer
}

// broadcast delivers v to every connection subscribed to the room, the
// trigger included. The caller holds the room exclusion, which keeps
// per-room frame order; sends never block. Peers that fail are handed to the
// policy, and kicked ones are disconnected off the caller's goroutine.
func (o *Orchestrator) broadcast(state *core.RoomState, v any) PublishResult {
	res := PublishResult{}
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("broadcast marshal")
		return res
	}
	for _, p := range o.Registry.MembersOf(state.ID()) {
		if err := p.Signal.TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, p)
			switch o.Policy.OnBackPressure(state, p, err) {
			case app.KickMember:
				log.Warn().Err(err).Str("module", "orch").Str("sid", string(p.SID)).Msg("kicking peer")
				go o.Kick(p.SID)
			case app.DropFrame, app.NoAction:
			}
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "orch").Str("room", string(state.ID())).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

// sendTo delivers v to a single connection, best effort.
func (o *Orchestrator) sendTo(sid core.SessionID, v any) {
	sig, ok := o.Registry.Signal(sid)
	if !ok {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("sendTo marshal")
		return
	}
	if err := sig.TrySend(data); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("sid", string(sid)).Msg("sendTo failed")
	}
}
