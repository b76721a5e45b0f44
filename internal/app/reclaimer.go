package app

import (
	"strings"
	"sync"
	"time"

	"github.com/dkeye/watchparty/internal/domain"
	"github.com/rs/zerolog/log"
)

type pending struct {
	timer *time.Timer
	gen   uint64
}

// Reclaimer delays the deletion of emptied rooms by a grace window.
// Reserved rooms are never scheduled.
type Reclaimer struct {
	mu       sync.Mutex
	window   time.Duration
	reserved map[string]struct{}
	pending  map[domain.RoomID]pending
	gen      uint64
	stopped  bool
	fire     func(id domain.RoomID, gen uint64)
}

// NewReclaimer calls fire from the timer goroutine when a window expires.
// fire must call Claim before deleting anything.
func NewReclaimer(window time.Duration, reserved []string, fire func(id domain.RoomID, gen uint64)) *Reclaimer {
	set := make(map[string]struct{}, len(reserved))
	for _, r := range reserved {
		if r = strings.TrimSpace(r); r != "" {
			set[strings.ToLower(r)] = struct{}{}
		}
	}
	return &Reclaimer{
		window:   window,
		reserved: set,
		pending:  make(map[domain.RoomID]pending),
		fire:     fire,
	}
}

// IsReserved matches the room id or name against the allow-list, case-insensitively.
func (r *Reclaimer) IsReserved(room domain.Room) bool {
	if _, ok := r.reserved[strings.ToLower(string(room.ID))]; ok {
		return true
	}
	_, ok := r.reserved[strings.ToLower(string(room.Name))]
	return ok
}

// Schedule (re)starts the grace window for room. Returns false for reserved rooms.
func (r *Reclaimer) Schedule(room domain.Room) bool {
	if r.IsReserved(room) {
		log.Debug().Str("module", "app.reclaimer").Str("room", string(room.ID)).Msg("reserved room, not scheduled")
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return false
	}
	if p, ok := r.pending[room.ID]; ok {
		p.timer.Stop()
	}
	r.gen++
	gen := r.gen
	id := room.ID
	r.pending[id] = pending{
		gen:   gen,
		timer: time.AfterFunc(r.window, func() { r.fire(id, gen) }),
	}
	log.Info().Str("module", "app.reclaimer").Str("room", string(id)).Dur("grace", r.window).Msg("room reclaim scheduled")
	return true
}

// Cancel stops a pending reclaim. It reports whether one was pending.
func (r *Reclaimer) Cancel(id domain.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pending[id]
	if !ok {
		return false
	}
	p.timer.Stop()
	delete(r.pending, id)
	log.Info().Str("module", "app.reclaimer").Str("room", string(id)).Msg("room reclaim cancelled")
	return true
}

// Claim consumes the pending entry if gen is still the current one.
// A false result means the reclaim was cancelled or rescheduled meanwhile.
func (r *Reclaimer) Claim(id domain.RoomID, gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pending[id]
	if !ok || p.gen != gen {
		return false
	}
	delete(r.pending, id)
	return true
}

func (r *Reclaimer) Pending(id domain.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[id]
	return ok
}

// Stop cancels every pending timer; later Schedule calls are ignored.
func (r *Reclaimer) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	for id, p := range r.pending {
		p.timer.Stop()
		delete(r.pending, id)
	}
}
