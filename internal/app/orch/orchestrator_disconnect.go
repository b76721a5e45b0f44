package orch

import (
	"context"
	"sync"

	"github.com/dkeye/watchparty/internal/core"
	"github.com/rs/zerolog/log"
)

// OnDisconnect turns a transport close into exactly one leave, however many
// times the close fires or whether a client LEAVE already ran.
func (o *Orchestrator) OnDisconnect(sid core.SessionID) {
	o.disconnects.begin()
	defer o.disconnects.end()
	if !o.Registry.Deregister(sid) {
		return
	}
	if err := o.leave(context.Background(), sid, true); err != nil {
		log.Error().Err(err).Str("module", "orch").Str("sid", string(sid)).Msg("disconnect leave")
	}
	o.Registry.Drop(sid)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Msg("disconnected")
}

// Kick closes the transport of sid and runs its disconnect cleanup.
func (o *Orchestrator) Kick(sid core.SessionID) {
	if sig, ok := o.Registry.Signal(sid); ok {
		sig.Close()
	}
	o.Registry.Cancel(sid)
	o.OnDisconnect(sid)
}

// inflight counts disconnects still running their leave.
type inflight struct {
	mu   sync.Mutex
	n    int
	idle chan struct{}
}

func (f *inflight) begin() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.n == 0 {
		f.idle = make(chan struct{})
	}
	f.n++
}

func (f *inflight) end() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n--
	if f.n == 0 {
		close(f.idle)
	}
}

func (f *inflight) wait(ctx context.Context) error {
	f.mu.Lock()
	if f.n == 0 {
		f.mu.Unlock()
		return nil
	}
	idle := f.idle
	f.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
