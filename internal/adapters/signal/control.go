package signal

import (
	"github.com/dkeye/watchparty/internal/core"
)

func (ctl *SignalWSController) handlePing(c core.SignalConnection) {
	ctl.sendJSON(c, Pong{Type: TypePong})
}

func (ctl *SignalWSController) handleWhoAmI(sid core.SessionID, c core.SignalConnection) {
	resp := WhoAmI{Type: TypeWhoAmI, SID: sid}
	if b, ok := ctl.Orch.Registry.Lookup(sid); ok {
		resp.User = &b.User
		resp.Room = &b.RoomID
	}
	ctl.sendJSON(c, resp)
}
